// Package results owns the persisted benchmark output: per-cell aggregate
// rows appended to delimited tables, a derived analysis table with merged
// resource totals, and the human summary rendered at end of run.
package results

import (
	"time"

	"github.com/wasmbench/gwbench/pkg/loadgen"
	"github.com/wasmbench/gwbench/pkg/sampler"
	"github.com/wasmbench/gwbench/pkg/variant"
)

// CellMeta identifies one (variant, workload, concurrency) measurement cell.
type CellMeta struct {
	RunTS       time.Time
	Variant     string
	Workload    string
	Threads     int
	Connections int
	DurationS   float64
}

// AggregateRow is one persisted record per measurement cell. It is append-only
// and never mutated after being written.
type AggregateRow struct {
	CellMeta

	RequestsPerSec float64
	LatencyMeanMs  float64

	Gateway sampler.Usage
	Helper  sampler.Usage

	// HasHelper reports whether the variant's deployment mode tracks a helper
	// target at all; without it the helper columns carry a not-available
	// marker in the derived table.
	HasHelper bool
	// TimedOut marks a cell whose load generator invocation exceeded the hard
	// timeout. Its throughput and latency fields are zeroed, not dropped.
	TimedOut bool
}

// Aggregate combines the load generator report with the sampler series of all
// tracked targets into one row. Empty series degrade to all-zero usage.
func Aggregate(meta CellMeta, report loadgen.Report, series map[string]sampler.Series, hasHelper bool) AggregateRow {
	return AggregateRow{
		CellMeta:       meta,
		RequestsPerSec: report.RequestsPerSec,
		LatencyMeanMs:  report.LatencyMeanMs,
		Gateway:        series[variant.GatewayTarget].Aggregate(),
		Helper:         series[variant.HelperTarget].Aggregate(),
		HasHelper:      hasHelper,
	}
}

// TimeoutRow records a cell whose load generation stalled: measured fields
// are zeroed and the row is marked, so the cell stays visible in the table
// instead of silently disappearing.
func TimeoutRow(meta CellMeta, series map[string]sampler.Series, hasHelper bool) AggregateRow {
	row := Aggregate(meta, loadgen.Report{}, series, hasHelper)
	row.TimedOut = true
	return row
}

// TotalUsage merges the resource usage of all tracked targets into one view,
// for deployment modes that split work across a short-lived helper per
// request.
func (r AggregateRow) TotalUsage() sampler.Usage {
	return sampler.Usage{
		RSSAvgKB:   r.Gateway.RSSAvgKB + r.Helper.RSSAvgKB,
		RSSPeakKB:  r.Gateway.RSSPeakKB + r.Helper.RSSPeakKB,
		CPUAvgPct:  r.Gateway.CPUAvgPct + r.Helper.CPUAvgPct,
		CPUPeakPct: r.Gateway.CPUPeakPct + r.Helper.CPUPeakPct,
	}
}
