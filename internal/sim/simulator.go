package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/forcing"
	"github.com/san-kum/nodesim/internal/logging"
	"github.com/san-kum/nodesim/internal/node"
	"github.com/san-kum/nodesim/internal/schedule"
)

// Engine drives a prepared network through the time loop. Stages run in
// order with a full barrier between them; members of one stage run
// concurrently.
type Engine struct {
	arena   *node.Arena
	stages  schedule.Stages
	members [][]node.Handle
	forcing forcing.Collection
	cfg     Config

	outputs    []OutputHook
	snapshots  []SnapshotHook
	onProgress func(Progress)

	phase    atomic.Int32
	progress atomic.Pointer[Progress]
	log      *slog.Logger
}

// New validates cfg. fc may be nil for networks without external inputs.
func New(a *node.Arena, stages schedule.Stages, fc forcing.Collection, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &dynamo.SetupError{Op: "configure run", Err: err}
	}
	members := make([][]node.Handle, stages.Len())
	stages.Each(func(k int, m []int) bool {
		for _, i := range m {
			members[k] = append(members[k], node.Handle(i))
		}
		return true
	})
	return &Engine{
		arena:   a,
		stages:  stages,
		members: members,
		forcing: fc,
		cfg:     cfg,
		log:     logging.New("sim"),
	}, nil
}

func (e *Engine) AddOutput(h OutputHook)     { e.outputs = append(e.outputs, h) }
func (e *Engine) AddSnapshot(h SnapshotHook) { e.snapshots = append(e.snapshots, h) }

// OnProgress registers fn, called after every completed step.
func (e *Engine) OnProgress(fn func(Progress)) { e.onProgress = fn }

func (e *Engine) Phase() Phase { return Phase(e.phase.Load()) }

// Progress returns the state after the last completed step.
func (e *Engine) Progress() Progress {
	if p := e.progress.Load(); p != nil {
		return *p
	}
	return Progress{Steps: e.cfg.Steps()}
}

func (e *Engine) Config() Config { return e.cfg }

// Run executes every step. The first failure ends the run; outputs of
// completed steps are kept. Cancellation is honoured between steps.
func (e *Engine) Run(ctx context.Context) error {
	if e.Phase() != Setup {
		return &dynamo.SetupError{Op: "run", Err: errors.New("engine already ran")}
	}
	e.phase.Store(int32(Stepping))

	steps := e.cfg.Steps()
	dt := e.cfg.step()
	dtSec := float64(e.cfg.Dt)
	workers := e.cfg.workers()
	started := time.Now()
	lastDecile := 0

	e.log.Info("run started", "steps", steps, "stages", e.stages.Len(), "nodes", e.arena.Len(),
		"dt", e.cfg.Dt, "workers", workers)

	for step := 1; step <= steps; step++ {
		if err := ctx.Err(); err != nil {
			return e.fail(err)
		}

		t0 := e.cfg.Start.Add(time.Duration(step-1) * dt)
		t1 := t0.Add(dt)

		if e.forcing != nil {
			if err := e.forcing.Refresh(ctx, t0, t1); err != nil {
				return e.fail(&dynamo.StepError{Step: step, Time: t1, Op: "refresh", Err: err})
			}
		}

		for k := range e.members {
			if err := e.runStage(step, t1, k, dtSec, workers); err != nil {
				return e.fail(err)
			}
		}

		e.arena.Commit()

		if err := e.emit(step, t1); err != nil {
			return e.fail(err)
		}

		elapsed := time.Since(started)
		p := Progress{
			Step:    step,
			Steps:   steps,
			Time:    t1,
			Elapsed: elapsed,
			ETA:     time.Duration(float64(elapsed) / float64(step) * float64(steps-step)),
		}
		e.progress.Store(&p)
		if decile := step * 10 / steps; decile > lastDecile {
			lastDecile = decile
			e.log.Info("progress", "percent", decile*10, "step", step, "time", t1,
				"elapsed", elapsed.Round(time.Millisecond), "eta", p.ETA.Round(time.Second))
		}
		if e.onProgress != nil {
			e.onProgress(p)
		}
	}

	if err := e.drain(); err != nil {
		e.phase.Store(int32(Failed))
		return err
	}
	e.phase.Store(int32(Done))
	e.log.Info("run finished", "steps", steps, "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

func (e *Engine) emit(step int, t time.Time) error {
	for _, h := range e.outputs {
		for _, n := range e.arena.Nodes() {
			if err := h.Output(step, t, n); err != nil {
				return &dynamo.StepError{Step: step, Time: t, Node: n.ID(), Op: "output", Err: err}
			}
		}
	}
	for _, h := range e.snapshots {
		if err := h.Snapshot(step, t, e.arena); err != nil {
			return &dynamo.StepError{Step: step, Time: t, Op: "snapshot", Err: err}
		}
	}
	return nil
}

// fail closes the hooks and records the failure. The original error is
// returned; close errors are only logged.
func (e *Engine) fail(err error) error {
	e.phase.Store(int32(Draining))
	if cerr := e.drain(); cerr != nil {
		e.log.Warn("closing sinks after failure", "error", cerr)
	}
	e.phase.Store(int32(Failed))
	e.log.Error("run failed", "error", err)
	return err
}

func (e *Engine) drain() error {
	e.phase.Store(int32(Draining))
	var errs []error
	closed := make(map[any]bool)
	closeHook := func(h any) {
		if c, ok := h.(io.Closer); ok && !closed[h] {
			closed[h] = true
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, h := range e.outputs {
		closeHook(h)
	}
	for _, h := range e.snapshots {
		closeHook(h)
	}
	return errors.Join(errs...)
}
