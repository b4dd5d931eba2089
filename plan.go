package cascade

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
)

// Explain renders the collector's current plan as a human-readable table:
// one row per model in sort order, how many instances it holds, whether it
// holds exactly one instance that passes CanFastUpdate, and how many
// deferred field updates target it. It is a diagnostic only — never called by
// Collect or Update — useful for logging what a planner decided before
// committing to it.
func (c *Collector) Explain() string {
	t := table.NewWriter()
	t.Style().Format.Footer = text.FormatDefault // keep model labels verbatim in the footer
	t.AppendHeader(table.Row{"model", "instances", "fast-path candidate", "field updates"})

	fieldUpdateCounts := map[string]int{}
	for _, key := range c.fieldUpdatesOrder {
		fieldUpdateCounts[key.field.Model.Label]++
	}

	for _, m := range c.dataOrder {
		set := c.data[m]
		fast := "no"
		if set.len() == 1 && c.CanFastUpdate(set.instances()[0], nil) {
			fast = "yes"
		}
		t.AppendRow(table.Row{m.Label, set.len(), fast, fieldUpdateCounts[m.Label]})
	}

	if len(c.fastModObjs) > 0 {
		names := make([]string, 0, len(c.fastModObjs))
		for _, qs := range c.fastModObjs {
			if m := qs.Model(); m != nil {
				names = append(names, m.Label)
			}
		}
		t.AppendFooter(table.Row{"deferred fast updates", strings.Join(names, ", "), "", ""})
	}

	return fmt.Sprintf("cascade plan (using=%q)\n%s", c.using, t.Render())
}
