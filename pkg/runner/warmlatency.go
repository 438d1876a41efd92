package runner

import (
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/wasmbench/gwbench/pkg/microbench"
	"github.com/wasmbench/gwbench/pkg/results"
	"github.com/wasmbench/gwbench/pkg/variant"
)

// RunWarmLatency measures single-request round-trip time against an
// already-ready server: one launch per variant, then hyperfine times a curl
// invocation per workload with its own warmup runs.
func (r *Runner) RunWarmLatency() error {
	if err := r.preflight([]string{"hyperfine", "curl"}); err != nil {
		return err
	}

	table, err := results.OpenWarmLatencyTable(
		filepath.Join(r.config.OutputDir, "warm_latency.csv"), r.config.Accumulate)
	if err != nil {
		return err
	}
	defer table.Close()

	for _, v := range r.config.Variants {
		if err := r.runVariantWarmLatency(v, table); err != nil {
			log.Errorf("variant %q failed, skipping its remaining workloads: %v", v.Name, err)
			continue
		}
	}
	return nil
}

func (r *Runner) runVariantWarmLatency(v variant.Variant, table *results.WarmLatencyTable) error {
	deployment, err := r.deployFor(v)
	if err != nil {
		return err
	}

	_, cleanup, err := r.launch(v, deployment)
	if err != nil {
		return err
	}
	defer cleanup.Close()
	cleanup.MarkMeasuring()

	hyperfine := microbench.New(r.exec, microbench.Config{
		HyperfinePath: r.config.HyperfinePath,
		Warmup:        r.config.HyperfineWarmup,
		Runs:          r.config.HyperfineRuns,
	})

	for _, workload := range r.config.Workloads {
		url := workload.URL(v.BaseURL())
		log.Infof("warm latency %s/%s over %d runs", v.Name, workload.Name, r.config.HyperfineRuns)

		timingsMs, err := hyperfine.Time(fmt.Sprintf("curl -s -o /dev/null %s", url))
		if err != nil {
			return err
		}
		runTS := r.now()
		for _, runMs := range timingsMs {
			if err := table.Append(runTS, v.Name, workload.Name, runMs); err != nil {
				return err
			}
		}
	}
	return nil
}
