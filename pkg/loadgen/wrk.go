// Package loadgen wraps an external wrk invocation with a hard wall-clock
// timeout and parses its textual report into throughput and latency figures.
package loadgen

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wasmbench/gwbench/pkg/executor"
)

// DefaultTimeoutCushion is added on top of the requested duration for the
// hard timeout, so the orchestrator never blocks indefinitely on a stalled
// target. A timed-out cell is recorded, not fatal to the variant.
const DefaultTimeoutCushion = 15 * time.Second

// ErrTimeout marks a load generator invocation that exceeded its hard
// wall-clock timeout.
var ErrTimeout = errors.New("load generator exceeded hard timeout")

// Config contains all data for running wrk.
type Config struct {
	WrkPath        string
	Threads        int
	Connections    int
	Duration       time.Duration
	TimeoutCushion time.Duration
}

// DefaultConfig is a Config constructor with defaults used in tests.
func DefaultConfig() Config {
	return Config{
		WrkPath:        "wrk",
		Threads:        2,
		Connections:    100,
		Duration:       10 * time.Second,
		TimeoutCushion: DefaultTimeoutCushion,
	}
}

// Wrk is a driver for the wrk HTTP load generator.
type Wrk struct {
	exec   executor.Executor
	config Config
}

// New returns a new Wrk load generator driver.
func New(exec executor.Executor, config Config) Wrk {
	if config.TimeoutCushion <= 0 {
		config.TimeoutCushion = DefaultTimeoutCushion
	}
	return Wrk{
		exec:   exec,
		config: config,
	}
}

func (w Wrk) loadCommand(url string) string {
	return fmt.Sprintf("%s -t%d -c%d -d%ds --latency %s",
		w.config.WrkPath,
		w.config.Threads,
		w.config.Connections,
		int(w.config.Duration.Seconds()),
		url,
	)
}

// Run generates sustained load against url for the configured duration and
// returns the parsed report. The invocation is bounded by duration plus the
// timeout cushion; on timeout everything left running by the stalled
// invocation is stopped and ErrTimeout is returned.
func (w Wrk) Run(url string) (Report, error) {
	command := w.loadCommand(url)

	handle, err := w.exec.Execute(command)
	if err != nil {
		return Report{}, errors.Wrapf(err, "executing load generator command %q failed", command)
	}
	defer handle.Clean()

	if !handle.Wait(w.config.Duration + w.config.TimeoutCushion) {
		log.Errorf("load generator %q stalled; stopping it", command)
		if stopErr := handle.Stop(); stopErr != nil {
			log.Errorf("stopping stalled load generator failed: %v", stopErr)
		}
		return Report{}, ErrTimeout
	}

	exitCode, err := handle.ExitCode()
	if err != nil {
		return Report{}, err
	}
	if exitCode != 0 {
		executor.LogUnsuccessfulExecution(command, w.exec.Name(), handle)
		return Report{}, errors.Errorf("load generator exited with code %d", exitCode)
	}

	stdoutFile, err := handle.StdoutFile()
	if err != nil {
		return Report{}, err
	}
	output, err := io.ReadAll(stdoutFile)
	if err != nil {
		return Report{}, errors.Wrap(err, "reading load generator output failed")
	}

	report, err := ParseReport(string(output))
	if err != nil {
		return Report{}, errors.Wrapf(err, "parsing report of %q failed", command)
	}
	return report, nil
}

// Warmup issues count best-effort requests against url before measurement.
// Failures are expected while caches warm up and are never escalated.
func Warmup(url string, count int) {
	client := http.Client{Timeout: 2 * time.Second}
	failed := 0
	for i := 0; i < count; i++ {
		resp, err := client.Get(url)
		if err != nil {
			failed++
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if failed > 0 {
		log.Debugf("warm-up: %d of %d requests failed", failed, count)
	}
}
