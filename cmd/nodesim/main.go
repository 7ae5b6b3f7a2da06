package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/nodesim/internal/config"
	"github.com/san-kum/nodesim/internal/forcing"
	"github.com/san-kum/nodesim/internal/integrators"
	"github.com/san-kum/nodesim/internal/kinds"
	"github.com/san-kum/nodesim/internal/modelfile"
	"github.com/san-kum/nodesim/internal/node"
	"github.com/san-kum/nodesim/internal/output"
	"github.com/san-kum/nodesim/internal/viz"
)

var (
	// run overrides
	modelPath    string
	simStart     string
	simEnd       string
	dt           int
	parallel     int
	minParallel  int
	checkNumeric bool
	preset       string
	outputDir    string
	format       string
	initialState string
	saveFinal    bool
	debugNodes   []string
	logLevel     string
	logFormat    string
	quiet        bool
	// presentation
	theme      string
	maxMembers int
	// plot
	plotNode     string
	plotVariable string
	plotWidth    int
	plotHeight   int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd registers the nodesim commands. Flag variables are reset to
// their defaults on every call.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nodesim",
		Short:         "level-parallel node network simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return viz.SetTheme(theme)
		},
	}
	rootCmd.PersistentFlags().StringVar(&theme, "theme", viz.Current.Name, "colour theme ("+strings.Join(viz.ThemeNames(), ", ")+")")

	runCmd := &cobra.Command{
		Use:   "run [config.yaml]",
		Short: "run a simulation",
		Long: "Runs the network of a model file over the configured period. Values from the\n" +
			"run file can be overridden with flags.",
		Args: cobra.MaximumNArgs(1),
		RunE: runSimulation,
	}
	runCmd.Flags().StringVar(&modelPath, "model", "", "model file (.yaml, .yml or .hcl)")
	runCmd.Flags().StringVar(&simStart, "start", "", "simulation start (RFC3339)")
	runCmd.Flags().StringVar(&simEnd, "end", "", "simulation end (RFC3339)")
	runCmd.Flags().IntVar(&dt, "dt", config.DefaultDt, "time step in seconds")
	runCmd.Flags().IntVar(&parallel, "parallel", 0, "workers per stage (0 = GOMAXPROCS)")
	runCmd.Flags().IntVar(&minParallel, "min-parallel", config.DefaultMinParallel, "smallest stage run in parallel")
	runCmd.Flags().BoolVar(&checkNumeric, "check-numeric", false, "fail on NaN or Inf states and outputs")
	runCmd.Flags().StringVar(&preset, "preset", "", "integrator preset applied to every stateful group")
	runCmd.Flags().StringVar(&outputDir, "output-dir", config.DefaultOutputDir, "directory for outputs and snapshots")
	runCmd.Flags().StringVar(&format, "format", config.DefaultFormat, "output format (csv, sqlite, none)")
	runCmd.Flags().StringVar(&initialState, "initial-state", "", "snapshot file used as initial condition")
	runCmd.Flags().BoolVar(&saveFinal, "save-final-state", false, "write a snapshot after the last step")
	runCmd.Flags().StringSliceVar(&debugNodes, "debug", nil, "node ids to trace in debug.jsonl")
	runCmd.Flags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&logFormat, "log-format", config.DefaultLogFormat, "log format (text, json)")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress bar and summary")

	stagesCmd := &cobra.Command{
		Use:   "stages [model]",
		Short: "show the processing stages of a model",
		Args:  cobra.ExactArgs(1),
		RunE:  showStages,
	}
	stagesCmd.Flags().IntVar(&maxMembers, "max-members", 0, "members shown per stage (0 = all)")

	plotCmd := &cobra.Command{
		Use:   "plot [outputs.csv|outputs.db]",
		Short: "plot one output series",
		Args:  cobra.ExactArgs(1),
		RunE:  plotSeries,
	}
	plotCmd.Flags().StringVar(&plotNode, "node", "", "node id")
	plotCmd.Flags().StringVar(&plotVariable, "variable", "", "output variable")
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 12, "plot height")
	_ = plotCmd.MarkFlagRequired("node")
	_ = plotCmd.MarkFlagRequired("variable")

	integratorsCmd := &cobra.Command{
		Use:   "integrators",
		Short: "list integration methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME")
			for code := 1; ; code++ {
				integ, err := integrators.FromCode(code, integrators.Options{})
				if err != nil {
					break
				}
				fmt.Fprintf(w, "%d\t%s\n", code, integ.Name())
			}
			return w.Flush()
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list integrator presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PRESET\tINTEGRATOR\tEPS\tNMAX")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%s\t%g\t%d\n", name, p.Integrator, p.Eps, p.NMax)
			}
			return w.Flush()
		},
	}

	kindsCmd := &cobra.Command{
		Use:   "kinds",
		Short: "list node kinds and their variables",
		RunE:  listKinds,
	}

	snapshotCmd := &cobra.Command{
		Use:   "snapshot [state.yaml]",
		Short: "print a state snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  showSnapshot,
	}

	rootCmd.AddCommand(runCmd, stagesCmd, plotCmd, integratorsCmd, presetsCmd, kindsCmd, snapshotCmd)
	return rootCmd
}

// showStages builds the network with zero forcing so only the model file
// is needed.
func showStages(cmd *cobra.Command, args []string) error {
	m, err := modelfile.Load(args[0])
	if err != nil {
		return err
	}
	net, err := modelfile.Build(context.Background(), m, placeholderForcing(m))
	if err != nil {
		return err
	}
	fmt.Printf("%d nodes, %d stages, widest %d\n\n", net.Arena.Len(), net.Stages.Len(), net.Stages.Widest())
	fmt.Println(viz.RenderStages(net.Arena, net.Stages, maxMembers))
	return nil
}

func placeholderForcing(m *modelfile.Model) forcing.Collection {
	if len(m.External) == 0 {
		return nil
	}
	values := make(map[string]map[string]float64)
	for _, e := range m.External {
		if values[e.Variable] == nil {
			values[e.Variable] = make(map[string]float64)
		}
		values[e.Variable][e.Location] = 0
	}
	return forcing.NewStatic(values)
}

func plotSeries(cmd *cobra.Command, args []string) error {
	path := args[0]
	var (
		points []output.Point
		err    error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		points, err = output.ReadCSVSeries(path, plotNode, plotVariable)
	case ".db", ".sqlite":
		points, err = output.ReadSQLiteSeries(cmd.Context(), path, plotNode, plotVariable)
	default:
		return fmt.Errorf("cannot plot %s: want a .csv or .db file", path)
	}
	if err != nil {
		return err
	}
	fmt.Println(viz.Plot(points, plotNode+" "+plotVariable, plotWidth, plotHeight))
	return nil
}

func listKinds(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tVARIABLE KIND\tNAMES")
	for _, name := range kinds.Names() {
		k, err := kinds.Lookup(name)
		if err != nil {
			return err
		}
		s, err := node.NewSchema(name, k.Schema())
		if err != nil {
			return err
		}
		first := true
		for vk := node.Scalars; vk <= node.Outputs; vk++ {
			names := s.Names(vk)
			if len(names) == 0 {
				continue
			}
			label := ""
			if first {
				label = name
				first = false
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", label, vk, strings.Join(names, ", "))
		}
	}
	return w.Flush()
}

func showSnapshot(cmd *cobra.Command, args []string) error {
	snap, err := output.LoadSnapshot(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("step %d at %s, %d nodes\n\n", snap.Step, snap.Time.Format(output.TimeLayout), len(snap.Nodes))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tVARIABLE\tVALUE")
	for _, ns := range snap.Nodes {
		names := make([]string, 0, len(ns.Scalars))
		for k := range ns.Scalars {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Fprintf(w, "%s\t%s\t%g\n", ns.ID, k, ns.Scalars[k])
		}
		vnames := make([]string, 0, len(ns.Vectors))
		for k := range ns.Vectors {
			vnames = append(vnames, k)
		}
		sort.Strings(vnames)
		for _, k := range vnames {
			fmt.Fprintf(w, "%s\t%s\t%v\n", ns.ID, k, ns.Vectors[k])
		}
	}
	return w.Flush()
}
