package viz

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/nodesim/internal/node"
	"github.com/san-kum/nodesim/internal/output"
	"github.com/san-kum/nodesim/internal/schedule"
	"github.com/san-kum/nodesim/internal/sim"
)

// Summary describes a finished or failed run.
type Summary struct {
	Model   string
	Nodes   int
	Stages  int
	Widest  int
	Steps   int
	Done    int
	Start   time.Time
	End     time.Time
	Dt      int
	Workers int
	Elapsed time.Duration
	Phase   string
	Err     error
	Files   []string
}

func RenderSummary(s Summary) string {
	st := NewStyles(Current)

	status := st.OK.Render(s.Phase)
	if s.Err != nil {
		status = st.Failed.Render(s.Phase)
	}

	rows := [][2]string{
		{"model", s.Model},
		{"network", fmt.Sprintf("%d nodes in %d stages (widest %d)", s.Nodes, s.Stages, s.Widest)},
		{"period", fmt.Sprintf("%s .. %s", s.Start.UTC().Format(time.RFC3339), s.End.UTC().Format(time.RFC3339))},
		{"steps", fmt.Sprintf("%d of %d, dt %ds", s.Done, s.Steps, s.Dt)},
		{"workers", fmt.Sprintf("%d", s.Workers)},
		{"elapsed", s.Elapsed.Round(time.Millisecond).String()},
		{"status", status},
	}
	if s.Err != nil {
		rows = append(rows, [2]string{"error", st.Failed.Render(s.Err.Error())})
	}
	for _, f := range s.Files {
		rows = append(rows, [2]string{"wrote", f})
	}

	var b strings.Builder
	b.WriteString(st.Title.Render("nodesim run"))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(st.Label.Render(fmt.Sprintf("%-8s", r[0])))
		b.WriteString("  ")
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	return st.Panel.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderStages lists every stage with its level and members. At most
// maxMembers ids are shown per stage; 0 shows all.
func RenderStages(a *node.Arena, stages schedule.Stages, maxMembers int) string {
	st := NewStyles(Current)

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		st.Header.Width(7).Render("stage"),
		st.Header.Width(7).Render("level"),
		st.Header.Width(7).Render("nodes"),
		st.Header.Render("members"),
	)

	lines := []string{header}
	stages.Each(func(k int, members []int) bool {
		ids := make([]string, 0, len(members))
		for i, h := range members {
			if maxMembers > 0 && i == maxMembers {
				ids = append(ids, st.Subtle.Render(fmt.Sprintf("+%d more", len(members)-maxMembers)))
				break
			}
			ids = append(ids, a.Node(node.Handle(h)).ID())
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(7).Render(fmt.Sprintf("%d", k)),
			lipgloss.NewStyle().Width(7).Render(fmt.Sprintf("%d", stages.Level(k))),
			st.Value.Width(7).Render(fmt.Sprintf("%d", len(members))),
			strings.Join(ids, " "),
		))
		return true
	})
	return strings.Join(lines, "\n")
}

// RenderProgress renders one line for p.
func RenderProgress(p sim.Progress, width int) string {
	st := NewStyles(Current)
	return fmt.Sprintf("%s %3.0f%%  step %d/%d  %s  eta %s",
		st.ProgressBar(p.Fraction(), width), 100*p.Fraction(), p.Step, p.Steps,
		p.Time.UTC().Format(time.RFC3339), p.ETA.Round(time.Second))
}

// Plot draws the values of points against their order.
func Plot(points []output.Point, caption string, width, height int) string {
	if len(points) == 0 {
		return NewStyles(Current).Subtle.Render("no data for " + caption)
	}
	data := make([]float64, len(points))
	for i, p := range points {
		data[i] = p.Value
	}
	if len(points) > 1 {
		caption = fmt.Sprintf("%s (%s .. %s)", caption,
			points[0].Time.UTC().Format(time.RFC3339), points[len(points)-1].Time.UTC().Format(time.RFC3339))
	}
	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}
