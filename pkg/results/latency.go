package results

import (
	"time"
)

var (
	coldStartHeader   = []string{"run_ts", "variant", "run_ms"}
	warmLatencyHeader = []string{"run_ts", "variant", "workload", "run_ms"}
)

// ColdStartTable persists one row per cold-start iteration: the time from
// process launch to the first successful health response.
type ColdStartTable struct {
	table *csvTable
}

// OpenColdStartTable opens (or creates) the cold-start results table.
func OpenColdStartTable(path string, accumulate bool) (*ColdStartTable, error) {
	table, err := openCSVTable(path, accumulate, coldStartHeader)
	if err != nil {
		return nil, err
	}
	return &ColdStartTable{table: table}, nil
}

// Append persists one cold-start iteration.
func (t *ColdStartTable) Append(runTS time.Time, variantName string, runMs float64) error {
	return t.table.append([]string{
		runTS.Format("2006-01-02T15:04:05"),
		variantName,
		formatFloat(runMs),
	})
}

// Close flushes and closes the table.
func (t *ColdStartTable) Close() error {
	return t.table.close()
}

// WarmLatencyTable persists one row per warm-latency iteration: the
// round-trip time to a long-running, already-ready server.
type WarmLatencyTable struct {
	table *csvTable
}

// OpenWarmLatencyTable opens (or creates) the warm-latency results table.
func OpenWarmLatencyTable(path string, accumulate bool) (*WarmLatencyTable, error) {
	table, err := openCSVTable(path, accumulate, warmLatencyHeader)
	if err != nil {
		return nil, err
	}
	return &WarmLatencyTable{table: table}, nil
}

// Append persists one warm-latency iteration.
func (t *WarmLatencyTable) Append(runTS time.Time, variantName, workload string, runMs float64) error {
	return t.table.append([]string{
		runTS.Format("2006-01-02T15:04:05"),
		variantName,
		workload,
		formatFloat(runMs),
	})
}

// Close flushes and closes the table.
func (t *WarmLatencyTable) Close() error {
	return t.table.close()
}
