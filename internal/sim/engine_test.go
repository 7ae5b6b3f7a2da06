package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/san-kum/nodesim/internal/dynamo"
	"github.com/san-kum/nodesim/internal/forcing"
	"github.com/san-kum/nodesim/internal/linkage"
	"github.com/san-kum/nodesim/internal/node"
)

func fwd(target, tvar, source, svar string) linkage.LinkRow {
	return linkage.LinkRow{Target: target, TargetVar: tvar, Source: source, SourceVar: svar, Forward: true}
}

func back(target, tvar, source, svar string) linkage.LinkRow {
	return linkage.LinkRow{Target: target, TargetVar: tvar, Source: source, SourceVar: svar}
}

func run(nw *network, cfg Config, hooks ...OutputHook) (*Engine, error) {
	e, err := New(nw.arena, nw.stages, nil, cfg)
	gomega.Expect(err).To(gomega.Succeed())
	for _, h := range hooks {
		e.AddOutput(h)
	}
	return e, e.Run(context.Background())
}

var _ = ginkgo.Describe("Engine", func() {
	ginkgo.Describe("level assignment and stages", func() {
		ginkgo.It("puts a forward consumer one stage after its producer", func() {
			nw, err := build([]nodeDecl{
				{id: "A", kind: ticker{}},
				{id: "B", kind: echo{}},
			}, []linkage.LinkRow{fwd("B", "in", "A", "value")}, nil, nil)
			gomega.Expect(err).To(gomega.Succeed())

			gomega.Expect(nw.levels).To(gomega.Equal([]int{1, 2}))
			gomega.Expect(stageIDs(nw)).To(gomega.Equal([][]string{{"A"}, {"B"}}))
		})

		ginkgo.It("rejects mutual forward bindings as a cycle", func() {
			_, err := build([]nodeDecl{
				{id: "A", kind: tickEcho{}},
				{id: "B", kind: echo{}},
			}, []linkage.LinkRow{
				fwd("A", "in", "B", "seen"),
				fwd("B", "in", "A", "value"),
			}, nil, nil)
			gomega.Expect(errors.Is(err, dynamo.ErrForwardCycle)).To(gomega.BeTrue(), "got %v", err)
		})

		ginkgo.It("breaks the cycle when one direction is backward", func() {
			nw, err := build([]nodeDecl{
				{id: "A", kind: tickEcho{}},
				{id: "B", kind: echo{}},
			}, []linkage.LinkRow{
				fwd("A", "in", "B", "seen"),
				back("B", "in", "A", "value"),
			}, nil, nil)
			gomega.Expect(err).To(gomega.Succeed())

			gomega.Expect(nw.levels).To(gomega.Equal([]int{2, 1}))
			gomega.Expect(stageIDs(nw)).To(gomega.Equal([][]string{{"B"}, {"A"}}))
		})

		ginkgo.It("keeps two backward readers in one stage", func() {
			nw, err := build([]nodeDecl{
				{id: "A", kind: tickEcho{}},
				{id: "B", kind: tickEcho{}},
			}, []linkage.LinkRow{
				back("A", "in", "B", "value"),
				back("B", "in", "A", "value"),
			}, nil, nil)
			gomega.Expect(err).To(gomega.Succeed())

			gomega.Expect(nw.levels).To(gomega.Equal([]int{1, 1}))
			gomega.Expect(stageIDs(nw)).To(gomega.Equal([][]string{{"A", "B"}}))
		})
	})

	ginkgo.Describe("data flow", func() {
		ginkgo.It("shows a forward consumer the producer value of the same step", func() {
			nw, err := build([]nodeDecl{
				{id: "A", kind: ticker{}},
				{id: "B", kind: echo{}},
			}, []linkage.LinkRow{fwd("B", "in", "A", "value")}, nil, nil)
			gomega.Expect(err).To(gomega.Succeed())

			rec := newRecorder()
			e, err := run(nw, hours(5), rec)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(e.Phase()).To(gomega.Equal(Done))

			gomega.Expect(rec.column("A", 0)).To(gomega.Equal([]float64{1, 2, 3, 4, 5}))
			gomega.Expect(rec.column("B", 0)).To(gomega.Equal([]float64{1, 2, 3, 4, 5}))
		})

		ginkgo.It("shows a backward reader the previous step, or the initial value at step 1", func() {
			nw, err := build([]nodeDecl{
				{id: "A", kind: tickEcho{}},
				{id: "B", kind: echo{}},
			}, []linkage.LinkRow{
				fwd("A", "in", "B", "seen"),
				back("B", "in", "A", "value"),
			}, nil, nil)
			gomega.Expect(err).To(gomega.Succeed())

			rec := newRecorder()
			_, err = run(nw, hours(4), rec)
			gomega.Expect(err).To(gomega.Succeed())

			gomega.Expect(rec.column("A", 0)).To(gomega.Equal([]float64{1, 2, 3, 4}))
			gomega.Expect(rec.column("B", 0)).To(gomega.Equal([]float64{0, 1, 2, 3}))
			// A reads B forward, after B's stage ran
			gomega.Expect(rec.column("A", 1)).To(gomega.Equal([]float64{0, 1, 2, 3}))
		})

		ginkgo.It("gives the same results sequentially and in parallel", func() {
			decls := []nodeDecl{{id: "src", kind: ticker{}}}
			var links []linkage.LinkRow
			for i := 0; i < 64; i++ {
				id := fmt.Sprintf("e%02d", i)
				decls = append(decls, nodeDecl{id: id, kind: echo{}})
				links = append(links, fwd(id, "in", "src", "value"))
			}

			results := make([]*recorder, 2)
			for i, cfg := range []Config{
				{Start: epoch, End: epoch.Add(10 * time.Hour), Dt: 3600, Parallel: 1},
				{Start: epoch, End: epoch.Add(10 * time.Hour), Dt: 3600, Parallel: 8, MinParallel: 2},
			} {
				nw, err := build(decls, links, nil, nil)
				gomega.Expect(err).To(gomega.Succeed())
				results[i] = newRecorder()
				_, err = run(nw, cfg, results[i])
				gomega.Expect(err).To(gomega.Succeed())
			}
			gomega.Expect(results[1].values).To(gomega.Equal(results[0].values))
		})

		ginkgo.It("sums weighted forcing terms per step", func() {
			rain := forcing.NewSeries()
			gomega.Expect(rain.Add("rain", []string{"n", "s"}, []forcing.Record{
				{End: epoch.Add(time.Hour), Values: []float64{1, 2}},
				{End: epoch.Add(2 * time.Hour), Values: []float64{3, 4}},
			})).To(gomega.Succeed())

			nw, err := build([]nodeDecl{{id: "G", kind: gauge{}}}, nil, []linkage.ExternalRow{
				{Node: "G", Variable: "rain", Location: "n", Weight: 0.5},
				{Node: "G", Variable: "rain", Location: "s", Weight: 0.5},
			}, rain)
			gomega.Expect(err).To(gomega.Succeed())

			e, err := New(nw.arena, nw.stages, rain, hours(2))
			gomega.Expect(err).To(gomega.Succeed())
			rec := newRecorder()
			e.AddOutput(rec)
			gomega.Expect(e.Run(context.Background())).To(gomega.Succeed())
			gomega.Expect(rec.column("G", 0)).To(gomega.Equal([]float64{1.5, 3.5}))
		})
	})

	ginkgo.Describe("failures", func() {
		faultyNet := func(mode float64) *network {
			nw, err := build([]nodeDecl{
				{id: "ok", kind: ticker{}},
				{id: "f1", kind: faulty{}, params: map[string]float64{"fail_at": 3, "mode": mode}},
				{id: "f2", kind: faulty{}, params: map[string]float64{"fail_at": 3, "mode": mode}},
				{id: "down", kind: echo{}},
			}, []linkage.LinkRow{fwd("down", "in", "f1", "value")}, nil, nil)
			gomega.Expect(err).To(gomega.Succeed())
			return nw
		}

		ginkgo.It("aggregates every failure of a stage and stops the run", func() {
			nw := faultyNet(0)
			rec := newRecorder()
			e, err := run(nw, hours(10), rec)

			var se *dynamo.StageError
			gomega.Expect(errors.As(err, &se)).To(gomega.BeTrue(), "got %v", err)
			gomega.Expect(se.Step).To(gomega.Equal(3))
			gomega.Expect(se.Stage).To(gomega.Equal(0))
			gomega.Expect(se.Time).To(gomega.Equal(epoch.Add(3 * time.Hour)))
			gomega.Expect(se.Failures).To(gomega.HaveLen(2))
			gomega.Expect(se.Failures[0].Node).To(gomega.Equal("f1"))
			gomega.Expect(se.Failures[1].Node).To(gomega.Equal("f2"))
			gomega.Expect(e.Phase()).To(gomega.Equal(Failed))

			// completed steps were emitted, the failing one was not
			gomega.Expect(rec.column("ok", 0)).To(gomega.Equal([]float64{1, 2}))
			gomega.Expect(rec.column("down", 0)).To(gomega.Equal([]float64{1, 2}))
			gomega.Expect(rec.closed).To(gomega.BeTrue())
		})

		ginkgo.It("does not run later stages of a failed step", func() {
			nw := faultyNet(0)
			_, err := run(nw, hours(10))
			gomega.Expect(err).To(gomega.HaveOccurred())

			h, _ := nw.arena.Lookup("down")
			gomega.Expect(nw.arena.Node(h).Output(0)).To(gomega.Equal(2.0))
		})

		ginkgo.It("recovers panics into step errors", func() {
			_, err := run(faultyNet(1), hours(10))
			gomega.Expect(errors.Is(err, dynamo.ErrNodePanic)).To(gomega.BeTrue(), "got %v", err)
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("table exhausted"))
		})

		ginkgo.It("checks numbers only when enabled", func() {
			_, err := run(faultyNet(2), hours(10))
			gomega.Expect(err).To(gomega.Succeed())

			cfg := hours(10)
			cfg.CheckNumeric = true
			_, err = run(faultyNet(2), cfg)
			gomega.Expect(errors.Is(err, dynamo.ErrInvalidState)).To(gomega.BeTrue(), "got %v", err)

			var step *dynamo.StepError
			gomega.Expect(errors.As(err, &step)).To(gomega.BeTrue())
			gomega.Expect(step.Op).To(gomega.Equal("check"))
			gomega.Expect(step.Step).To(gomega.Equal(3))
		})

		ginkgo.It("fails the step when forcing cannot be refreshed", func() {
			rain := forcing.NewSeries()
			gomega.Expect(rain.Add("rain", []string{"x"}, []forcing.Record{
				{End: epoch.Add(time.Hour), Values: []float64{1}},
			})).To(gomega.Succeed())
			nw, err := build([]nodeDecl{{id: "G", kind: gauge{}}}, nil, []linkage.ExternalRow{
				{Node: "G", Variable: "rain", Location: "x", Weight: 1},
			}, rain)
			gomega.Expect(err).To(gomega.Succeed())

			e, err := New(nw.arena, nw.stages, rain, hours(3))
			gomega.Expect(err).To(gomega.Succeed())
			err = e.Run(context.Background())

			var step *dynamo.StepError
			gomega.Expect(errors.As(err, &step)).To(gomega.BeTrue(), "got %v", err)
			gomega.Expect(step.Op).To(gomega.Equal("refresh"))
			gomega.Expect(step.Step).To(gomega.Equal(2))
			gomega.Expect(step.Node).To(gomega.BeEmpty())
			gomega.Expect(errors.Is(err, forcing.ErrNotCovered)).To(gomega.BeTrue())
		})

		ginkgo.It("reports snapshot failures with the step", func() {
			nw, err := build([]nodeDecl{{id: "A", kind: ticker{}}}, nil, nil, nil)
			gomega.Expect(err).To(gomega.Succeed())
			e, err := New(nw.arena, nw.stages, nil, hours(5))
			gomega.Expect(err).To(gomega.Succeed())
			e.AddSnapshot(failingSnapshot{at: 4})

			err = e.Run(context.Background())
			var step *dynamo.StepError
			gomega.Expect(errors.As(err, &step)).To(gomega.BeTrue(), "got %v", err)
			gomega.Expect(step.Op).To(gomega.Equal("snapshot"))
			gomega.Expect(step.Step).To(gomega.Equal(4))
		})

		ginkgo.It("stops between steps when the context is cancelled", func() {
			nw, err := build([]nodeDecl{{id: "A", kind: ticker{}}}, nil, nil, nil)
			gomega.Expect(err).To(gomega.Succeed())
			e, err := New(nw.arena, nw.stages, nil, hours(100))
			gomega.Expect(err).To(gomega.Succeed())

			ctx, cancel := context.WithCancel(context.Background())
			e.OnProgress(func(p Progress) {
				if p.Step == 7 {
					cancel()
				}
			})
			err = e.Run(ctx)
			gomega.Expect(errors.Is(err, context.Canceled)).To(gomega.BeTrue())
			gomega.Expect(e.Progress().Step).To(gomega.Equal(7))
			gomega.Expect(e.Phase()).To(gomega.Equal(Failed))
		})
	})

	ginkgo.Describe("configuration", func() {
		ginkgo.It("rounds the step count up", func() {
			cfg := Config{Start: epoch, End: epoch.Add(90 * time.Minute), Dt: 3600}
			gomega.Expect(cfg.Steps()).To(gomega.Equal(2))
			cfg.End = epoch.Add(2 * time.Hour)
			gomega.Expect(cfg.Steps()).To(gomega.Equal(2))
		})

		ginkgo.DescribeTable("rejects invalid settings",
			func(cfg Config) {
				gomega.Expect(errors.Is(cfg.Validate(), dynamo.ErrInvalidConfig)).To(gomega.BeTrue())
			},
			ginkgo.Entry("zero dt", Config{Start: epoch, End: epoch.Add(time.Hour)}),
			ginkgo.Entry("negative dt", Config{Start: epoch, End: epoch.Add(time.Hour), Dt: -1}),
			ginkgo.Entry("start equals end", Config{Start: epoch, End: epoch, Dt: 60}),
			ginkgo.Entry("start after end", Config{Start: epoch.Add(time.Hour), End: epoch, Dt: 60}),
			ginkgo.Entry("negative parallel", Config{Start: epoch, End: epoch.Add(time.Hour), Dt: 60, Parallel: -2}),
			ginkgo.Entry("negative threshold", Config{Start: epoch, End: epoch.Add(time.Hour), Dt: 60, MinParallel: -1}),
		)

		ginkgo.It("refuses to run twice", func() {
			nw, err := build([]nodeDecl{{id: "A", kind: ticker{}}}, nil, nil, nil)
			gomega.Expect(err).To(gomega.Succeed())
			e, err := run(nw, hours(1))
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(e.Run(context.Background())).NotTo(gomega.Succeed())
		})

		ginkgo.It("reports progress for every step", func() {
			nw, err := build([]nodeDecl{{id: "A", kind: ticker{}}}, nil, nil, nil)
			gomega.Expect(err).To(gomega.Succeed())
			e, err := New(nw.arena, nw.stages, nil, hours(20))
			gomega.Expect(err).To(gomega.Succeed())

			var seen []int
			e.OnProgress(func(p Progress) { seen = append(seen, p.Step) })
			gomega.Expect(e.Run(context.Background())).To(gomega.Succeed())
			gomega.Expect(seen).To(gomega.HaveLen(20))
			gomega.Expect(e.Progress().Fraction()).To(gomega.Equal(1.0))
			gomega.Expect(e.Progress().ETA).To(gomega.Equal(time.Duration(0)))
		})
	})
})

// gauge reports its external input.
type gauge struct{}

func (gauge) Name() string { return "gauge" }
func (gauge) Schema() node.SchemaSpec {
	return node.SchemaSpec{ExtInputs: []string{"rain"}, Outputs: []string{"rain"}}
}
func (gauge) Simulate(n *node.Node, _ float64) error {
	n.SetOutput(0, n.InputExt(0))
	return nil
}
