package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wasmbench/gwbench/pkg/loadgen"
	"github.com/wasmbench/gwbench/pkg/results"
	"github.com/wasmbench/gwbench/pkg/sampler"
	"github.com/wasmbench/gwbench/pkg/variant"
)

// RunThroughput measures sustained request throughput: per variant, per
// (workload, connections) cell, wrk drives load while the resource sampler
// tracks every measurable target. A failing variant skips its remaining
// cells; a timed-out cell is recorded and the variant continues.
func (r *Runner) RunThroughput() error {
	if err := r.preflight([]string{"wrk"}); err != nil {
		return err
	}

	throughputTable, err := results.OpenThroughputTable(
		filepath.Join(r.config.OutputDir, "throughput.csv"), r.config.Accumulate)
	if err != nil {
		return err
	}
	defer throughputTable.Close()

	analysisTable, err := results.OpenAnalysisTable(
		filepath.Join(r.config.OutputDir, "throughput_analysis.csv"), r.config.Accumulate)
	if err != nil {
		return err
	}
	defer analysisTable.Close()

	var allRows []results.AggregateRow
	for _, v := range r.config.Variants {
		rows, err := r.runVariantThroughput(v, throughputTable, analysisTable)
		allRows = append(allRows, rows...)
		if err != nil {
			log.Errorf("variant %q failed, skipping its remaining cells: %v", v.Name, err)
			continue
		}
	}

	results.RenderSummary(os.Stdout, allRows)
	return nil
}

func (r *Runner) runVariantThroughput(v variant.Variant, throughputTable *results.ThroughputTable, analysisTable *results.AnalysisTable) ([]results.AggregateRow, error) {
	deployment, err := r.deployFor(v)
	if err != nil {
		return nil, err
	}

	handle, cleanup, err := r.launch(v, deployment)
	if err != nil {
		return nil, err
	}
	defer cleanup.Close()
	cleanup.MarkMeasuring()

	var rows []results.AggregateRow
	for _, workload := range r.config.Workloads {
		for _, connections := range r.config.Connections {
			row, err := r.runCell(v, deployment, handle, cleanup, workload, connections)
			if err != nil {
				return rows, err
			}
			rows = append(rows, row)
			if err := throughputTable.Append(row); err != nil {
				return rows, err
			}
			if err := analysisTable.Append(row); err != nil {
				return rows, err
			}
		}
	}
	return rows, nil
}

// cellCleanup is the slice of the teardown handle a measurement cell needs:
// sampler stops registered while the cell runs, cleared once the cell has
// stopped them itself.
type cellCleanup interface {
	AddSamplerStop(stop func())
	ClearSamplerStops()
}

// runCell measures one (workload, connections) cell. Timeouts and unreadable
// reports degrade to a marked row; only infrastructure failures (table I/O,
// unresolvable sample targets) escalate.
func (r *Runner) runCell(v variant.Variant, deployment variant.Deployment, handle *variant.Handle, cleanup cellCleanup, workload Workload, connections int) (results.AggregateRow, error) {
	url := workload.URL(v.BaseURL())
	meta := results.CellMeta{
		RunTS:       r.now(),
		Variant:     v.Name,
		Workload:    workload.Name,
		Threads:     r.config.Threads,
		Connections: connections,
		DurationS:   r.config.Duration.Seconds(),
	}
	log.Infof("cell %s/%s c=%d for %s", v.Name, workload.Name, connections, r.config.Duration)

	loadgen.Warmup(url, r.config.WarmupRequests)

	targets, err := deployment.SampleTargets(handle)
	if err != nil {
		return results.AggregateRow{}, errors.Wrapf(err, "resolving sample targets of %q failed", v.Name)
	}
	samplers := make([]*sampler.Sampler, 0, len(targets))
	for _, target := range targets {
		s := sampler.Start(target, r.config.SampleInterval)
		samplers = append(samplers, s)
		// An interrupt mid-cell must stop the samplers before the target
		// process goes away.
		cleanup.AddSamplerStop(func() { s.Stop() })
	}

	wrk := loadgen.New(r.exec, loadgen.Config{
		WrkPath:     r.config.WrkPath,
		Threads:     r.config.Threads,
		Connections: connections,
		Duration:    r.config.Duration,
	})
	report, runErr := wrk.Run(url)

	series := map[string]sampler.Series{}
	for _, s := range samplers {
		series[s.TargetName()] = s.Stop()
	}
	cleanup.ClearSamplerStops()
	r.persistSeries(meta, series)

	if runErr != nil {
		if errors.Cause(runErr) == loadgen.ErrTimeout {
			log.Warnf("cell %s/%s c=%d timed out; recording it", v.Name, workload.Name, connections)
			return results.TimeoutRow(meta, series, deployment.HelperSamplable()), nil
		}
		return results.AggregateRow{}, runErr
	}
	return results.Aggregate(meta, report, series, deployment.HelperSamplable()), nil
}

// persistSeries stores the raw per-cell sample series next to the aggregated
// tables. Failures are logged, not escalated: the aggregate row is the
// deliverable, the raw series a diagnostic.
func (r *Runner) persistSeries(meta results.CellMeta, series map[string]sampler.Series) {
	for name, s := range series {
		path := filepath.Join(r.config.OutputDir, "samples",
			fmt.Sprintf("%s_%s_c%d_%s.csv", meta.Variant, meta.Workload, meta.Connections, name))
		if err := s.WriteCSV(path); err != nil {
			log.Warnf("storing sample series %q failed: %v", path, err)
		}
	}
}
