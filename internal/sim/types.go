package sim

import (
	"fmt"
	"runtime"
	"time"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/node"
)

type Phase int32

const (
	Setup Phase = iota
	Stepping
	Draining
	Done
	Failed
)

func (p Phase) String() string {
	switch p {
	case Setup:
		return "setup"
	case Stepping:
		return "stepping"
	case Draining:
		return "draining"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

type Config struct {
	Start time.Time
	End   time.Time
	Dt    int // seconds

	Parallel     int // worker cap per stage, 0 means GOMAXPROCS
	MinParallel  int // stages smaller than this run sequentially
	CheckNumeric bool
}

func (c Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %d", dynamo.ErrInvalidConfig, c.Dt)
	}
	if !c.Start.Before(c.End) {
		return fmt.Errorf("%w: start %s not before end %s", dynamo.ErrInvalidConfig,
			c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339))
	}
	if c.Parallel < 0 {
		return fmt.Errorf("%w: parallel must be >= 0, got %d", dynamo.ErrInvalidConfig, c.Parallel)
	}
	if c.MinParallel < 0 {
		return fmt.Errorf("%w: min parallel stage size must be >= 0, got %d", dynamo.ErrInvalidConfig, c.MinParallel)
	}
	return nil
}

// Steps is ceil((End-Start)/Dt).
func (c Config) Steps() int {
	span := c.End.Sub(c.Start)
	dt := time.Duration(c.Dt) * time.Second
	return int((span + dt - 1) / dt)
}

// LastStepEnd is the end of the final step. It is after End when the
// period is not a whole number of steps.
func (c Config) LastStepEnd() time.Time {
	return c.Start.Add(time.Duration(c.Steps()) * c.step())
}

func (c Config) step() time.Duration { return time.Duration(c.Dt) * time.Second }

func (c Config) workers() int {
	if c.Parallel == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.Parallel
}

// OutputHook receives every node after each completed step. t is the end
// of the step.
type OutputHook interface {
	Output(step int, t time.Time, n *node.Node) error
}

// SnapshotHook is called once per completed step with the whole network.
type SnapshotHook interface {
	Snapshot(step int, t time.Time, a *node.Arena) error
}

type Progress struct {
	Step    int
	Steps   int
	Time    time.Time
	Elapsed time.Duration
	ETA     time.Duration
}

func (p Progress) Fraction() float64 {
	if p.Steps == 0 {
		return 1
	}
	return float64(p.Step) / float64(p.Steps)
}
