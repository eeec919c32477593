package analysis

import (
	"math"
	"strings"

	"evacsim/internal/format"
)

// Render writes the report as a summary table followed by a comparison table.
func Render(r *Report, mode format.Mode) string {
	var b strings.Builder

	summary := format.NewTable(mode)
	title := "Evacuation time"
	if r.Source != "" {
		title += " (" + r.Source + ")"
	}
	summary.Title(title)
	summary.Header("Scenario", "Count", "Mean", "Std", "Min", "25%", "50%", "75%", "Max")
	for _, s := range r.Summaries {
		summary.Row(s.Scenario, format.Count(s.Count),
			format.Float(s.Mean, 2), format.Float(s.SampleStd, 2), format.Float(s.Min, 0),
			format.Float(s.Q1, 2), format.Float(s.Median, 2), format.Float(s.Q3, 2), format.Float(s.Max, 0))
	}
	summary.Columns(rightAligned(2, 9)...)
	b.WriteString(summary.String())
	b.WriteString("\n\n")

	if len(r.Comparisons) == 0 {
		return b.String()
	}
	cmp := format.NewTable(mode)
	cmp.Header("First", "Second", "Alternative", "U", "p", "Reject", "Cohen's d", "Sample size")
	for _, c := range r.Comparisons {
		size := "-"
		if !math.IsNaN(c.SampleSize) {
			size = format.Float(math.Ceil(c.SampleSize), 0)
		}
		cmp.Row(c.First, c.Second, string(c.Alternative), format.Float(c.Test.U, 1), format.PValue(c.Test.PValue),
			format.BoolMark(c.Reject), format.Float(c.EffectSize, 3), size)
	}
	cmp.Columns(rightAligned(4, 8)...)
	b.WriteString(cmp.String())
	b.WriteString("\n")

	for _, c := range r.Comparisons {
		b.WriteString(c.Decision())
		b.WriteString("\n")
		if c.Reject {
			b.WriteString("ALTERNATIVE HYPOTHESIS: " + c.Claim + "\n")
		}
	}
	return b.String()
}

func rightAligned(from, to int) []format.ColumnConfig {
	var out []format.ColumnConfig
	for n := from; n <= to; n++ {
		out = append(out, format.ColumnConfig{Number: n, Align: format.AlignRight})
	}
	return out
}
