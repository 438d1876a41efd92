package sampler

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Sample is one resource reading of a target.
type Sample struct {
	Time   time.Time
	RSSKB  uint64
	CPUPct float64
}

// Series is an append-only ordered sequence of samples scoped to one
// measurement cell's wall-clock window.
type Series []Sample

// Usage holds sample-derived statistics for one target.
type Usage struct {
	RSSAvgKB   float64
	RSSPeakKB  float64
	CPUAvgPct  float64
	CPUPeakPct float64
}

// Aggregate computes arithmetic mean and maximum of memory and CPU across the
// series. An empty series yields an all-zero aggregate rather than an error:
// some deployment modes are known to produce unsamplable short-lived workers
// and that is a documented measurement limitation.
func (s Series) Aggregate() Usage {
	if len(s) == 0 {
		return Usage{}
	}

	var usage Usage
	for _, sample := range s {
		rss := float64(sample.RSSKB)
		usage.RSSAvgKB += rss
		usage.CPUAvgPct += sample.CPUPct
		if rss > usage.RSSPeakKB {
			usage.RSSPeakKB = rss
		}
		if sample.CPUPct > usage.CPUPeakPct {
			usage.CPUPeakPct = sample.CPUPct
		}
	}
	usage.RSSAvgKB /= float64(len(s))
	usage.CPUAvgPct /= float64(len(s))
	return usage
}

// WriteCSV stores the raw series under path with a ts_ms,rss_kb,cpu_pct
// header. The raw per-cell series is kept next to the aggregated table for
// postmortem inspection.
func (s Series) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "creating directory for series file %q failed", path)
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating series file %q failed", path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"ts_ms", "rss_kb", "cpu_pct"}); err != nil {
		return errors.Wrap(err, "writing series header failed")
	}
	for _, sample := range s {
		record := []string{
			fmt.Sprintf("%d", sample.Time.UnixMilli()),
			fmt.Sprintf("%d", sample.RSSKB),
			fmt.Sprintf("%.2f", sample.CPUPct),
		}
		if err := writer.Write(record); err != nil {
			return errors.Wrap(err, "writing series row failed")
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "flushing series file failed")
}
