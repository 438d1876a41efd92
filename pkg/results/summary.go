package results

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// RenderSummary draws a human-readable table of all rows collected in this
// run. Timed-out cells are visible as such instead of posing as zeros.
func RenderSummary(out io.Writer, rows []AggregateRow) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{
		"Variant", "Workload", "Conns", "RPS", "Latency (ms)",
		"RSS avg (KB)", "CPU avg (%)", "Status",
	})

	for _, row := range rows {
		status := "ok"
		if row.TimedOut {
			status = "timeout"
		}
		total := row.TotalUsage()
		table.Append([]string{
			row.Variant,
			row.Workload,
			strconv.Itoa(row.Connections),
			formatFloat(row.RequestsPerSec),
			formatFloat(row.LatencyMeanMs),
			formatFloat(total.RSSAvgKB),
			formatFloat(total.CPUAvgPct),
			status,
		})
	}

	table.Render()
}
