// Package runner orchestrates benchmark protocols over the configured
// variants: throughput under sustained load, cold-start readiness time and
// warm single-request latency.
package runner

import (
	"net/http"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wasmbench/gwbench/pkg/executor"
	"github.com/wasmbench/gwbench/pkg/ports"
	"github.com/wasmbench/gwbench/pkg/probe"
	"github.com/wasmbench/gwbench/pkg/teardown"
	"github.com/wasmbench/gwbench/pkg/variant"
)

// Workload is one endpoint of the server under test exercised during
// measurement.
type Workload struct {
	Name string
	// Path is appended to the variant's base URL.
	Path string
}

// URL resolves the workload endpoint against a variant's base URL.
func (w Workload) URL(baseURL string) string {
	return baseURL + w.Path
}

// Config is the full static configuration of a benchmark run.
type Config struct {
	Variants  []variant.Variant
	Workloads []Workload

	// Throughput protocol.
	Threads        int
	Connections    []int
	Duration       time.Duration
	WarmupRequests int

	// Cold-start protocol.
	ColdStartIterations int

	// Warm-latency protocol.
	HyperfineWarmup int
	HyperfineRuns   int

	SampleInterval time.Duration
	ProbeAttempts  int
	ProbeInterval  time.Duration

	OutputDir  string
	Accumulate bool

	WrkPath       string
	HyperfinePath string

	// UpstreamURL is probed before any proxy workload runs. Empty disables
	// the check.
	UpstreamURL string
}

type portEnsurer interface {
	EnsureFree(port int) error
}

type readinessProber interface {
	WaitReady(healthURL string) error
}

// Runner executes benchmark protocols. The collaborators are interfaces so
// protocol logic is testable without processes, sockets or containers.
type Runner struct {
	config      Config
	exec        executor.Executor
	resolver    portEnsurer
	prober      readinessProber
	coordinator *teardown.Coordinator

	deployFor      func(variant.Variant) (variant.Deployment, error)
	verifyListener func(port, launchedPid int) error
	lookPath       func(file string) (string, error)
	now            func() time.Time
}

// New assembles a Runner with production collaborators. A stale container
// reaper is attached when the configuration includes a docker variant and the
// docker daemon is reachable.
func New(config Config) *Runner {
	local := executor.NewLocal()

	var reaper ports.StaleContainerReaper
	if hasDockerVariant(config.Variants) {
		dockerReaper, err := ports.NewDockerReaper()
		if err != nil {
			log.Warnf("docker daemon unavailable for stale container cleanup: %v", err)
		} else {
			reaper = dockerReaper
		}
	}

	return &Runner{
		config:      config,
		exec:        local,
		resolver:    ports.NewResolver(local, reaper),
		prober:      probe.NewProber(config.ProbeAttempts, config.ProbeInterval),
		coordinator: teardown.NewCoordinator(),

		deployFor:      variant.DeploymentFor,
		verifyListener: probe.VerifyListener,
		lookPath:       exec.LookPath,
		now:            time.Now,
	}
}

// Coordinator exposes the run-wide teardown coordinator, so the command can
// route interrupt signals into it.
func (r *Runner) Coordinator() *teardown.Coordinator {
	return r.coordinator
}

func hasDockerVariant(variants []variant.Variant) bool {
	for _, v := range variants {
		if v.Mode == variant.ModeDocker {
			return true
		}
	}
	return false
}

func hasProxyWorkload(workloads []Workload) bool {
	for _, w := range workloads {
		if w.Name == "proxy" {
			return true
		}
	}
	return false
}

// preflight verifies every external tool the protocol needs before the first
// variant is touched. A missing tool aborts the whole run: discovering it
// mid-run would leave earlier variants measured and later ones not.
func (r *Runner) preflight(tools []string) error {
	for _, v := range r.config.Variants {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	if hasDockerVariant(r.config.Variants) {
		tools = append(tools, "docker")
	}
	for _, tool := range tools {
		if _, err := r.lookPath(tool); err != nil {
			return errors.Errorf("required tool %q not found on PATH", tool)
		}
	}

	if hasProxyWorkload(r.config.Workloads) && r.config.UpstreamURL != "" {
		if err := checkUpstream(r.config.UpstreamURL); err != nil {
			return err
		}
	}
	return nil
}

func checkUpstream(upstreamURL string) error {
	client := http.Client{Timeout: 3 * time.Second}
	response, err := client.Get(upstreamURL)
	if err != nil {
		return errors.Wrapf(err, "upstream service %q is not reachable", upstreamURL)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return errors.Errorf("upstream service %q answered %d", upstreamURL, response.StatusCode)
	}
	return nil
}

// launch brings one variant up to the ready state: free port, spawn, early
// exit check, readiness probe and listener verification. The returned
// teardown handle already has the process stop and mode teardown registered,
// so interrupt-time cleanup covers partially launched variants.
func (r *Runner) launch(v variant.Variant, deployment variant.Deployment) (*variant.Handle, *teardown.Handle, error) {
	if err := r.resolver.EnsureFree(v.Port); err != nil {
		return nil, nil, err
	}

	handle, err := deployment.Launch(r.exec)
	if err != nil {
		return nil, nil, err
	}

	cleanup := r.coordinator.Register(v.Name)
	cleanup.AddAction("stop process", handle.Task.Stop)
	cleanup.AddAction("mode teardown", func() error {
		return deployment.Teardown(handle)
	})

	if _, err := executor.CheckIfProcessFailedToExecute(v.StartCommand, r.exec.Name(), handle.Task); err != nil {
		cleanup.Close()
		return nil, nil, err
	}

	if err := r.prober.WaitReady(v.HealthURL()); err != nil {
		log.Errorf("variant %q never became ready, server log tail:\n%s",
			v.Name, executor.TailOutput(handle.Task, 10))
		cleanup.Close()
		return nil, nil, err
	}

	// In docker mode the listening socket belongs to the daemon's proxy, not
	// to the launched client process, so ancestry gives no signal there.
	if v.Mode != variant.ModeDocker {
		if err := r.verifyListener(v.Port, handle.Pid()); err != nil {
			cleanup.Close()
			return nil, nil, err
		}
	}

	cleanup.MarkReady()
	return handle, cleanup, nil
}
