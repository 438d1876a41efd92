package variant

import (
	"github.com/pkg/errors"

	"github.com/wasmbench/gwbench/pkg/executor"
	"github.com/wasmbench/gwbench/pkg/sampler"
)

// bareDeployment runs the server as a direct local process. The launched pid
// is the measured pid.
type bareDeployment struct {
	variant Variant
}

func (d bareDeployment) Launch(exec executor.Executor) (*Handle, error) {
	task, err := exec.Execute(d.variant.StartCommand)
	if err != nil {
		return nil, errors.Wrapf(err, "launching variant %q failed", d.variant.Name)
	}
	return &Handle{Variant: d.variant, Task: task}, nil
}

func (d bareDeployment) SampleTargets(h *Handle) ([]sampler.Target, error) {
	target, err := sampler.NewProcessTarget(GatewayTarget, h.Pid(), h.Pid())
	if err != nil {
		return nil, err
	}
	return []sampler.Target{target}, nil
}

func (d bareDeployment) Teardown(h *Handle) error {
	// Nothing beyond the process itself to release.
	return nil
}

func (d bareDeployment) HelperSamplable() bool {
	return false
}
