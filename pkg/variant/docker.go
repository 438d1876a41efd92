package variant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wasmbench/gwbench/pkg/executor"
	"github.com/wasmbench/gwbench/pkg/sampler"
)

const (
	// inspectAttempts bounds the wait for the container to appear after the
	// `docker run` supervisor is spawned.
	inspectAttempts = 50
	inspectInterval = 200 * time.Millisecond

	dockerOpTimeout = 30 * time.Second
)

// dockerDeployment runs the server inside a container. The launched process
// is the runtime's client supervisor, so the actual resource-consuming
// process identity has to be resolved from the runtime before sampling;
// sampling the supervisor instead would read near-zero after the first
// measurement interval.
type dockerDeployment struct {
	variant Variant
	cli     *client.Client
}

func newDockerDeployment(v Variant) (Deployment, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "connecting to docker daemon failed")
	}
	return dockerDeployment{variant: v, cli: cli}, nil
}

// Launch spawns the `docker run` supervisor and returns right away, so the
// caller can register cleanup before anything else. The worker pid is not
// known yet; SampleTargets resolves it on first use.
func (d dockerDeployment) Launch(exec executor.Executor) (*Handle, error) {
	task, err := exec.Execute(d.variant.StartCommand)
	if err != nil {
		return nil, errors.Wrapf(err, "launching variant %q failed", d.variant.Name)
	}
	return &Handle{Variant: d.variant, Task: task}, nil
}

// resolveWorkerPid polls the runtime until the named container is running and
// returns its init process identity on the host.
func (d dockerDeployment) resolveWorkerPid() (int, error) {
	var workerPid int

	err := retry.Do(
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), dockerOpTimeout)
			defer cancel()

			info, err := d.cli.ContainerInspect(ctx, d.variant.ContainerName)
			if err != nil {
				return err
			}
			if !info.State.Running || info.State.Pid == 0 {
				return errors.Errorf("container %q is not running yet", d.variant.ContainerName)
			}
			workerPid = info.State.Pid
			return nil
		},
		retry.Attempts(inspectAttempts),
		retry.Delay(inspectInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	return workerPid, err
}

func (d dockerDeployment) SampleTargets(h *Handle) ([]sampler.Target, error) {
	if h.WorkerPid == 0 {
		workerPid, err := d.resolveWorkerPid()
		if err != nil {
			return nil, errors.Wrapf(err, "resolving container worker pid for variant %q failed", d.variant.Name)
		}
		log.Debugf("variant %q: supervisor pid %d, container worker pid %d",
			d.variant.Name, h.Pid(), workerPid)
		h.WorkerPid = workerPid
	}

	// Sample the resolved inner worker; track liveness via the supervisor the
	// launcher owns.
	target, err := sampler.NewProcessTarget(GatewayTarget, h.WorkerPid, h.Pid())
	if err != nil {
		return nil, err
	}
	return []sampler.Target{target}, nil
}

func (d dockerDeployment) Teardown(h *Handle) error {
	ctx, cancel := context.WithTimeout(context.Background(), dockerOpTimeout)
	defer cancel()

	stopTimeout := 5
	err := d.cli.ContainerStop(ctx, d.variant.ContainerName, container.StopOptions{Timeout: &stopTimeout})
	if err != nil && !client.IsErrNotFound(err) {
		log.Warnf("stopping container %q failed: %v", d.variant.ContainerName, err)
	}

	err = d.cli.ContainerRemove(ctx, d.variant.ContainerName, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return errors.Wrapf(err, "removing container %q failed", d.variant.ContainerName)
	}
	return nil
}

func (d dockerDeployment) HelperSamplable() bool {
	return false
}

// InjectUpstreamNetwork rewrites a `docker run` start command to join the
// network namespace of the auxiliary upstream service's container, so the
// containerized variant can reach the upstream by name for proxy workloads.
func InjectUpstreamNetwork(startCommand, upstreamContainer string) string {
	if upstreamContainer == "" || !strings.Contains(startCommand, "docker run") {
		return startCommand
	}
	if strings.Contains(startCommand, "--network") {
		return startCommand
	}
	return strings.Replace(
		startCommand,
		"docker run",
		fmt.Sprintf("docker run --network container:%s", upstreamContainer),
		1,
	)
}
