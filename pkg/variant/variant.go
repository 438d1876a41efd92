// Package variant models the interchangeable deployment variants of the
// service under test and the deployment-mode-specific behavior for launching
// them, resolving their measurable process identities and tearing them down.
package variant

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/wasmbench/gwbench/pkg/executor"
	"github.com/wasmbench/gwbench/pkg/sampler"
)

// Mode is the deployment mode tag of a variant. The set is closed: every mode
// maps to one Deployment implementation selected once at configuration time.
type Mode string

const (
	// ModeBare runs the prebuilt server binary as a direct process.
	ModeBare Mode = "bare"
	// ModeDocker runs the server inside a container; the launched process is
	// only a supervisor over the actual resource-consuming process.
	ModeDocker Mode = "docker"
	// ModeSubprocess runs a server that spawns a short-lived helper process
	// per request; the helpers are measured in aggregate.
	ModeSubprocess Mode = "subprocess"
)

// GatewayTarget and HelperTarget name the two tracked measurement targets in
// result columns.
const (
	GatewayTarget = "gateway"
	HelperTarget  = "helper"
)

// Variant is one configuration of the server under test. It is constructed
// from static configuration before the run begins and is immutable during
// the run.
type Variant struct {
	Name string
	Mode Mode
	// StartCommand launches the prebuilt server artifact directly. Routing
	// the launch through a build-and-run wrapper would hand us the wrapper's
	// pid: resource samples would read near-zero once the wrapper idles,
	// silently invalidating every subsequent cell.
	StartCommand string
	Port         int
	// ContainerName identifies the container in docker mode.
	ContainerName string
	// HelperProcess is the process name prefix of the per-request helper in
	// subprocess mode.
	HelperProcess string
}

// BaseURL returns the root endpoint of the variant's server.
func (v Variant) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", v.Port)
}

// HealthURL returns the health endpoint of the variant's server.
func (v Variant) HealthURL() string {
	return v.BaseURL() + "/health"
}

// Validate checks that the variant configuration is complete for its mode.
func (v Variant) Validate() error {
	if v.Name == "" {
		return errors.New("variant has no name")
	}
	if v.StartCommand == "" {
		return errors.Errorf("variant %q has no start command", v.Name)
	}
	if v.Port <= 0 {
		return errors.Errorf("variant %q has no port", v.Name)
	}
	switch v.Mode {
	case ModeBare:
	case ModeDocker:
		if v.ContainerName == "" {
			return errors.Errorf("docker variant %q has no container name", v.Name)
		}
	case ModeSubprocess:
		if v.HelperProcess == "" {
			return errors.Errorf("subprocess variant %q has no helper process name", v.Name)
		}
	default:
		return errors.Errorf("variant %q has unknown mode %q", v.Name, v.Mode)
	}
	return nil
}

// Handle is the process identity of a running variant instance. It is valid
// only between a successful readiness probe and the first teardown action.
type Handle struct {
	Variant Variant
	Task    executor.TaskHandle
	// WorkerPid is the resolved inner worker identity when the launched
	// process is an indirection over the actual resource-consuming process.
	// Zero when the launched process is the worker itself.
	WorkerPid int
}

// Pid returns the identity of the directly launched process.
func (h *Handle) Pid() int {
	return h.Task.Pid()
}

// Deployment is the capability set every deployment mode implements.
type Deployment interface {
	// Launch starts the variant's server and captures the direct child
	// identity, resolving the inner worker identity where the mode has one.
	Launch(exec executor.Executor) (*Handle, error)
	// SampleTargets resolves the measurement targets for a running instance.
	// Targets are fixed at sampler start, not re-resolved per tick.
	SampleTargets(h *Handle) ([]sampler.Target, error)
	// Teardown releases mode-specific resources beyond the process itself.
	// It is best-effort and safe to invoke on an already-dead instance.
	Teardown(h *Handle) error
	// HelperSamplable reports whether the helper target produces samples
	// under this mode. Unsamplable targets get a not-available marker in the
	// derived results table.
	HelperSamplable() bool
}

// DeploymentFor selects the Deployment implementation for the variant's mode.
func DeploymentFor(v Variant) (Deployment, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	switch v.Mode {
	case ModeBare:
		return bareDeployment{variant: v}, nil
	case ModeDocker:
		return newDockerDeployment(v)
	case ModeSubprocess:
		return subprocessDeployment{variant: v}, nil
	}
	return nil, errors.Errorf("variant %q has unknown mode %q", v.Name, v.Mode)
}
