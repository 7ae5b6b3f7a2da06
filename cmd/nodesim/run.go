package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/nodesim/internal/config"
	"github.com/san-kum/nodesim/internal/forcing"
	"github.com/san-kum/nodesim/internal/logging"
	"github.com/san-kum/nodesim/internal/modelfile"
	"github.com/san-kum/nodesim/internal/output"
	"github.com/san-kum/nodesim/internal/sim"
	"github.com/san-kum/nodesim/internal/viz"
)

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	baseDir := "."
	if len(args) > 0 {
		loaded, err := config.Load(args[0])
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		baseDir = filepath.Dir(args[0])
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	resolvePaths(cfg, baseDir)

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logging.Init(level, cfg.Log.Format)
	log := logging.New("cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := modelfile.Load(cfg.Model)
	if err != nil {
		return err
	}
	if p := config.GetPreset(cfg.Preset); p != nil {
		n := p.Apply(m)
		log.Info("preset applied", "preset", cfg.Preset, "groups", n)
	}
	if cfg.InitialState != "" {
		snap, err := output.LoadSnapshot(cfg.InitialState)
		if err != nil {
			return fmt.Errorf("load initial state: %w", err)
		}
		if err := snap.Apply(m); err != nil {
			return fmt.Errorf("apply initial state: %w", err)
		}
		log.Info("initial state applied", "path", cfg.InitialState, "nodes", len(snap.Nodes), "time", snap.Time)
	}

	fc, err := loadForcing(cfg.Forcing)
	if err != nil {
		return err
	}

	net, err := modelfile.Build(ctx, m, fc)
	if err != nil {
		return err
	}

	simCfg := cfg.Sim()
	eng, err := sim.New(net.Arena, net.Stages, fc, simCfg)
	if err != nil {
		return err
	}

	hooks, err := openSinks(ctx, cfg, m, simCfg)
	if err != nil {
		return err
	}
	hooks.attach(eng)

	if !quiet {
		eng.OnProgress(func(p sim.Progress) {
			fmt.Fprintf(os.Stderr, "\r%s", viz.RenderProgress(p, 30))
			if p.Step == p.Steps {
				fmt.Fprintln(os.Stderr)
			}
		})
	}

	started := time.Now()
	runErr := eng.Run(ctx)

	if !quiet {
		workers := simCfg.Parallel
		if workers == 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		fmt.Println(viz.RenderSummary(viz.Summary{
			Model:   cfg.Model,
			Nodes:   net.Arena.Len(),
			Stages:  net.Stages.Len(),
			Widest:  net.Stages.Widest(),
			Steps:   simCfg.Steps(),
			Done:    eng.Progress().Step,
			Start:   simCfg.Start,
			End:     simCfg.End,
			Dt:      simCfg.Dt,
			Workers: workers,
			Elapsed: time.Since(started),
			Phase:   eng.Phase().String(),
			Err:     runErr,
			Files:   hooks.files(),
		}))
	}
	return runErr
}

// applyFlags copies every flag the user set over the values of the run file.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Model = modelPath
	}
	if flags.Changed("start") {
		t, err := time.Parse(time.RFC3339, simStart)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		cfg.SimStart = t
	}
	if flags.Changed("end") {
		t, err := time.Parse(time.RFC3339, simEnd)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
		cfg.SimEnd = t
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("parallel") {
		cfg.Parallel = parallel
	}
	if flags.Changed("min-parallel") {
		cfg.MinParallelStage = minParallel
	}
	if flags.Changed("check-numeric") {
		cfg.CheckNumeric = checkNumeric
	}
	if flags.Changed("preset") {
		cfg.Preset = preset
	}
	if flags.Changed("output-dir") {
		cfg.Output.Dir = outputDir
	}
	if flags.Changed("format") {
		cfg.Output.Format = format
	}
	if flags.Changed("initial-state") {
		cfg.InitialState = initialState
	}
	if flags.Changed("save-final-state") {
		cfg.SaveFinalState = saveFinal
	}
	if flags.Changed("debug") {
		cfg.DebugNodes = append(cfg.DebugNodes, debugNodes...)
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	return nil
}

// resolvePaths makes relative paths of the run file relative to its
// directory.
func resolvePaths(cfg *config.Config, base string) {
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	cfg.Model = rel(cfg.Model)
	cfg.InitialState = rel(cfg.InitialState)
	cfg.Output.Dir = rel(cfg.Output.Dir)
	for name, path := range cfg.Forcing {
		cfg.Forcing[name] = rel(path)
	}
}

// loadForcing reads one CSV table per variable. It returns nil when the run
// has no forcing files.
func loadForcing(files map[string]string) (forcing.Collection, error) {
	if len(files) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	s := forcing.NewSeries()
	for _, name := range names {
		f, err := os.Open(files[name])
		if err != nil {
			return nil, fmt.Errorf("forcing variable %q: %w", name, err)
		}
		err = s.LoadCSV(name, f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// sinks are the hooks of one run. They are registered with the engine only
// after every one of them opened.
type sinks struct {
	outputs   []sim.OutputHook
	snapshots []sim.SnapshotHook
	static    []string
	snaps     *output.SnapshotWriter
}

func (s *sinks) addOutput(h sim.OutputHook, path string) {
	s.outputs = append(s.outputs, h)
	s.static = append(s.static, path)
}

// attach registers the hooks with eng, which closes them when it drains.
func (s *sinks) attach(eng *sim.Engine) {
	for _, h := range s.outputs {
		eng.AddOutput(h)
	}
	for _, h := range s.snapshots {
		eng.AddSnapshot(h)
	}
}

// Close closes every hook that holds a file.
func (s *sinks) Close() error {
	var errs []error
	for _, h := range s.outputs {
		if c, ok := h.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	for _, h := range s.snapshots {
		if c, ok := h.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// files lists the files written so far.
func (s *sinks) files() []string {
	files := append([]string(nil), s.static...)
	if s.snaps != nil {
		files = append(files, s.snaps.Written...)
	}
	return files
}

// openSinks opens the output, debug and snapshot hooks of the run. When one
// fails the hooks opened before it are closed.
func openSinks(ctx context.Context, cfg *config.Config, m *modelfile.Model, simCfg sim.Config) (_ *sinks, err error) {
	s := &sinks{}
	defer func() {
		if err != nil {
			if cerr := s.Close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	}()

	var rules []output.Rule
	for _, r := range cfg.Output.Select {
		rules = append(rules, output.Rule{Node: r.Node, Variable: r.Variable})
	}
	sel := output.NewSelection(rules...)

	switch cfg.Output.Format {
	case "csv":
		path := filepath.Join(cfg.Output.Dir, "outputs.csv")
		sink, err := output.CreateCSV(path, sel)
		if err != nil {
			return nil, err
		}
		s.addOutput(sink, path)
	case "sqlite":
		if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
			return nil, err
		}
		path := filepath.Join(cfg.Output.Dir, "outputs.db")
		sink, err := output.OpenSQLite(ctx, path, sel)
		if err != nil {
			return nil, err
		}
		s.addOutput(sink, path)
	}

	if len(cfg.DebugNodes) > 0 || debugGroups(m) {
		path := filepath.Join(cfg.Output.Dir, "debug.jsonl")
		sink, err := output.CreateDebug(path, cfg.DebugNodes...)
		if err != nil {
			return nil, err
		}
		s.addOutput(sink, path)
	}

	if len(cfg.StateOutputTimes) > 0 || cfg.SaveFinalState {
		var final time.Time
		if cfg.SaveFinalState {
			final = simCfg.LastStepEnd()
		}
		w, err := output.NewSnapshotWriter(cfg.Output.Dir, cfg.StateOutputTimes, final)
		if err != nil {
			return nil, err
		}
		s.snapshots = append(s.snapshots, w)
		s.snaps = w
	}
	return s, nil
}

func debugGroups(m *modelfile.Model) bool {
	for _, g := range m.Groups {
		if g.Debug {
			return true
		}
	}
	return false
}
