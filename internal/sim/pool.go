package sim

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/node"
)

// runStage simulates every member of stage k and waits for all of them.
// Failures do not stop siblings; they are collected and returned together.
func (e *Engine) runStage(step int, t time.Time, k int, dt float64, workers int) error {
	members := e.members[k]
	failures := make([]*dynamo.StepError, len(members))
	run := func(i int) {
		failures[i] = e.simulate(step, t, e.arena.Node(members[i]), dt)
	}

	if workers <= 1 || len(members) < e.cfg.MinParallel || len(members) == 1 {
		for i := range members {
			run(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i := range members {
			i := i // per-iteration copy; go directive is pre-1.22
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait() // failures are collected per member
	}

	var failed []*dynamo.StepError
	for _, f := range failures {
		if f != nil {
			failed = append(failed, f)
		}
	}
	if len(failed) == 0 {
		e.log.Debug("stage done", "step", step, "stage", k, "members", len(members))
		return nil
	}
	return &dynamo.StageError{Step: step, Time: t, Stage: k, Failures: failed}
}

func (e *Engine) simulate(step int, t time.Time, n *node.Node, dt float64) (failure *dynamo.StepError) {
	defer func() {
		if r := recover(); r != nil {
			failure = &dynamo.StepError{Step: step, Time: t, Node: n.ID(), Op: "simulate",
				Err: fmt.Errorf("%w: %v", dynamo.ErrNodePanic, r)}
			e.log.Error("node panicked", "step", step, "node", n.ID(), "time", t, "panic", r)
		}
	}()

	if err := n.Simulate(dt); err != nil {
		e.log.Error("node failed", "step", step, "node", n.ID(), "time", t, "error", err)
		return &dynamo.StepError{Step: step, Time: t, Node: n.ID(), Op: "simulate", Err: err}
	}
	if e.cfg.CheckNumeric {
		if err := n.CheckNumeric(); err != nil {
			e.log.Error("invalid numbers", "step", step, "node", n.ID(), "time", t, "error", err)
			return &dynamo.StepError{Step: step, Time: t, Node: n.ID(), Op: "check", Err: err}
		}
	}
	return nil
}
