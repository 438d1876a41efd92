package runner

import (
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wasmbench/gwbench/pkg/executor"
	"github.com/wasmbench/gwbench/pkg/results"
	"github.com/wasmbench/gwbench/pkg/variant"
)

// RunColdStart measures time from process launch to the first successful
// health response. Each iteration launches a fresh instance and tears it down
// again, so no state survives between measurements.
func (r *Runner) RunColdStart() error {
	if err := r.preflight(nil); err != nil {
		return err
	}

	table, err := results.OpenColdStartTable(
		filepath.Join(r.config.OutputDir, "cold_start.csv"), r.config.Accumulate)
	if err != nil {
		return err
	}
	defer table.Close()

	for _, v := range r.config.Variants {
		if err := r.runVariantColdStart(v, table); err != nil {
			log.Errorf("variant %q failed, skipping its remaining iterations: %v", v.Name, err)
			continue
		}
	}
	return nil
}

func (r *Runner) runVariantColdStart(v variant.Variant, table *results.ColdStartTable) error {
	deployment, err := r.deployFor(v)
	if err != nil {
		return err
	}

	for i := 0; i < r.config.ColdStartIterations; i++ {
		startupMs, err := r.coldStartOnce(v, deployment)
		if err != nil {
			return err
		}
		log.Infof("cold start %s iteration %d/%d: %.2f ms",
			v.Name, i+1, r.config.ColdStartIterations, startupMs)
		if err := table.Append(r.now(), v.Name, startupMs); err != nil {
			return err
		}
	}
	return nil
}

// coldStartOnce launches one instance and returns the launch-to-ready wall
// time in milliseconds. The instance is always torn down, measured or not.
func (r *Runner) coldStartOnce(v variant.Variant, deployment variant.Deployment) (float64, error) {
	if err := r.resolver.EnsureFree(v.Port); err != nil {
		return 0, err
	}

	launchedAt := r.now()
	handle, err := deployment.Launch(r.exec)
	if err != nil {
		return 0, err
	}

	cleanup := r.coordinator.Register(v.Name)
	cleanup.AddAction("stop process", handle.Task.Stop)
	cleanup.AddAction("mode teardown", func() error {
		return deployment.Teardown(handle)
	})
	defer cleanup.Close()

	if err := r.prober.WaitReady(v.HealthURL()); err != nil {
		log.Errorf("variant %q never became ready, server log tail:\n%s",
			v.Name, executor.TailOutput(handle.Task, 10))
		return 0, err
	}
	cleanup.MarkReady()

	return float64(r.now().Sub(launchedAt)) / float64(time.Millisecond), nil
}
