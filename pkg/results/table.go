package results

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// notAvailable marks columns of targets known to be unsamplable under a
// deployment mode in the derived table.
const notAvailable = "NA"

var throughputHeader = []string{
	"run_ts", "variant", "workload", "threads", "conns", "duration_s",
	"rps", "latency_mean_ms",
	"gateway_rss_avg_kb", "gateway_rss_peak_kb", "gateway_cpu_avg", "gateway_cpu_peak",
	"helper_rss_avg_kb", "helper_rss_peak_kb", "helper_cpu_avg", "helper_cpu_peak",
	"timeout",
}

var analysisHeader = append(append([]string{}, throughputHeader[:len(throughputHeader)-1]...),
	"total_rss_avg_kb", "total_rss_peak_kb", "total_cpu_avg", "total_cpu_peak", "timeout")

// csvTable is an append-only delimited table on disk. It is opened once per
// run with an explicit truncate-or-append mode and is never accessed
// concurrently: the single coordinating goroutine appends one row per cell.
type csvTable struct {
	file   *os.File
	writer *csv.Writer
	path   string
}

func openCSVTable(path string, accumulate bool, header []string) (*csvTable, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "creating directory for results table %q failed", path)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if accumulate {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening results table %q failed", path)
	}

	table := &csvTable{
		file:   file,
		writer: csv.NewWriter(file),
		path:   path,
	}

	// Header goes in only when the table is fresh, so accumulated runs keep
	// appending to one well-formed table.
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "stating results table %q failed", path)
	}
	if info.Size() == 0 {
		if err := table.append(header); err != nil {
			file.Close()
			return nil, err
		}
	}

	return table, nil
}

// append writes one record and flushes it to disk immediately: rows already
// aggregated must survive an interrupt of the cells that follow.
func (t *csvTable) append(record []string) error {
	if err := t.writer.Write(record); err != nil {
		return errors.Wrapf(err, "appending to results table %q failed", t.path)
	}
	t.writer.Flush()
	return errors.Wrapf(t.writer.Error(), "flushing results table %q failed", t.path)
}

func (t *csvTable) close() error {
	t.writer.Flush()
	if err := t.writer.Error(); err != nil {
		t.file.Close()
		return errors.Wrapf(err, "flushing results table %q failed", t.path)
	}
	return errors.Wrapf(t.file.Close(), "closing results table %q failed", t.path)
}

// ThroughputTable persists one AggregateRow per measurement cell.
type ThroughputTable struct {
	table *csvTable
}

// OpenThroughputTable opens (or creates) the throughput results table.
// With accumulate false the table is reset for a fresh run; with true, rows
// from prior runs are preserved and new rows appended.
func OpenThroughputTable(path string, accumulate bool) (*ThroughputTable, error) {
	table, err := openCSVTable(path, accumulate, throughputHeader)
	if err != nil {
		return nil, err
	}
	return &ThroughputTable{table: table}, nil
}

// Append persists one row.
func (t *ThroughputTable) Append(row AggregateRow) error {
	return t.table.append(append(rowCommonFields(row),
		formatBool(row.TimedOut),
	))
}

// Close flushes and closes the table.
func (t *ThroughputTable) Close() error {
	return t.table.close()
}

// AnalysisTable is the derived table: base columns plus total-resource
// columns, with a not-available marker substituted for helper columns of
// modes that track no helper target.
type AnalysisTable struct {
	table *csvTable
}

// OpenAnalysisTable opens (or creates) the derived analysis table.
func OpenAnalysisTable(path string, accumulate bool) (*AnalysisTable, error) {
	table, err := openCSVTable(path, accumulate, analysisHeader)
	if err != nil {
		return nil, err
	}
	return &AnalysisTable{table: table}, nil
}

// Append persists one derived row.
func (t *AnalysisTable) Append(row AggregateRow) error {
	record := rowCommonFields(row)
	if !row.HasHelper {
		// Helper columns are the last four of the common fields.
		for i := len(record) - 4; i < len(record); i++ {
			record[i] = notAvailable
		}
	}

	total := row.TotalUsage()
	record = append(record,
		formatFloat(total.RSSAvgKB),
		formatFloat(total.RSSPeakKB),
		formatFloat(total.CPUAvgPct),
		formatFloat(total.CPUPeakPct),
		formatBool(row.TimedOut),
	)
	return t.table.append(record)
}

// Close flushes and closes the table.
func (t *AnalysisTable) Close() error {
	return t.table.close()
}

func rowCommonFields(row AggregateRow) []string {
	return []string{
		row.RunTS.Format("2006-01-02T15:04:05"),
		row.Variant,
		row.Workload,
		strconv.Itoa(row.Threads),
		strconv.Itoa(row.Connections),
		formatFloat(row.DurationS),
		formatFloat(row.RequestsPerSec),
		formatFloat(row.LatencyMeanMs),
		formatFloat(row.Gateway.RSSAvgKB),
		formatFloat(row.Gateway.RSSPeakKB),
		formatFloat(row.Gateway.CPUAvgPct),
		formatFloat(row.Gateway.CPUPeakPct),
		formatFloat(row.Helper.RSSAvgKB),
		formatFloat(row.Helper.RSSPeakKB),
		formatFloat(row.Helper.CPUAvgPct),
		formatFloat(row.Helper.CPUPeakPct),
	}
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}

func formatBool(value bool) string {
	if value {
		return "1"
	}
	return "0"
}
