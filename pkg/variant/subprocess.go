package variant

import (
	"github.com/pkg/errors"

	"github.com/wasmbench/gwbench/pkg/executor"
	"github.com/wasmbench/gwbench/pkg/sampler"
)

// subprocessDeployment runs a server that spawns a short-lived helper process
// per request. The gateway is sampled as a fixed pid; the helpers can only be
// measured in aggregate by scanning the process table for their name, since
// no single helper lives long enough to be pinned at sampler start.
type subprocessDeployment struct {
	variant Variant
}

func (d subprocessDeployment) Launch(exec executor.Executor) (*Handle, error) {
	task, err := exec.Execute(d.variant.StartCommand)
	if err != nil {
		return nil, errors.Wrapf(err, "launching variant %q failed", d.variant.Name)
	}
	return &Handle{Variant: d.variant, Task: task}, nil
}

func (d subprocessDeployment) SampleTargets(h *Handle) ([]sampler.Target, error) {
	gateway, err := sampler.NewProcessTarget(GatewayTarget, h.Pid(), h.Pid())
	if err != nil {
		return nil, err
	}
	helpers := sampler.NewScanTarget(HelperTarget, d.variant.HelperProcess, h.Pid())
	return []sampler.Target{gateway, helpers}, nil
}

func (d subprocessDeployment) Teardown(h *Handle) error {
	// The helpers die with their requests; the gateway's process group covers
	// any that are still in flight.
	return nil
}

func (d subprocessDeployment) HelperSamplable() bool {
	return true
}
