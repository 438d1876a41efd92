// Package microbench wraps the external hyperfine timing tool used by the
// cold-start and warm-latency protocols. Hyperfine repeatedly times a shell
// command and exports a structured report with per-iteration timings.
package microbench

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/wasmbench/gwbench/pkg/executor"
)

// runTimeout bounds one hyperfine invocation. Timed commands are short
// (a curl round trip or a server start), so this is generous.
const runTimeout = 10 * time.Minute

// Config contains all data for running hyperfine.
type Config struct {
	HyperfinePath string
	Warmup        int
	Runs          int
}

// DefaultConfig is a Config constructor with defaults used in tests.
func DefaultConfig() Config {
	return Config{
		HyperfinePath: "hyperfine",
		Warmup:        3,
		Runs:          10,
	}
}

// Hyperfine is a driver for the hyperfine micro-benchmark timing tool.
type Hyperfine struct {
	exec   executor.Executor
	config Config
}

// New returns a new Hyperfine driver.
func New(exec executor.Executor, config Config) Hyperfine {
	return Hyperfine{
		exec:   exec,
		config: config,
	}
}

// Time runs the given shell command repeatedly and returns per-iteration
// wall-clock timings in milliseconds.
func (h Hyperfine) Time(command string) ([]float64, error) {
	exportPath := filepath.Join(os.TempDir(), fmt.Sprintf("gwbench-hyperfine-%s.json", uuid.NewString()))
	defer os.Remove(exportPath)

	invocation := fmt.Sprintf("%s --warmup %d --runs %d --export-json %s '%s'",
		h.config.HyperfinePath,
		h.config.Warmup,
		h.config.Runs,
		exportPath,
		command,
	)

	handle, err := h.exec.Execute(invocation)
	if err != nil {
		return nil, errors.Wrapf(err, "executing timing tool command %q failed", invocation)
	}
	defer handle.Clean()

	if !handle.Wait(runTimeout) {
		handle.Stop()
		return nil, errors.Errorf("timing tool %q did not finish within %s", invocation, runTimeout)
	}

	exitCode, err := handle.ExitCode()
	if err != nil {
		return nil, err
	}
	if exitCode != 0 {
		executor.LogUnsuccessfulExecution(invocation, h.exec.Name(), handle)
		return nil, errors.Errorf("timing tool exited with code %d", exitCode)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading timing tool export failed")
	}
	return ParseTimingsMs(data)
}

// hyperfineExport is the modern export schema: results carry per-command
// iteration times in seconds.
type hyperfineExport struct {
	Results []struct {
		Times []float64 `json:"times"`
	} `json:"results"`
}

// flatExport is the older schema with a top-level times list.
type flatExport struct {
	Times []float64 `json:"times"`
}

// ParseTimingsMs extracts per-iteration timings from a structured report and
// converts them from seconds to milliseconds. Two known export schemas are
// supported; anything else is a parse error.
func ParseTimingsMs(data []byte) ([]float64, error) {
	var export hyperfineExport
	if err := json.Unmarshal(data, &export); err == nil && len(export.Results) > 0 && len(export.Results[0].Times) > 0 {
		return secondsToMs(export.Results[0].Times), nil
	}

	var flat flatExport
	if err := json.Unmarshal(data, &flat); err == nil && len(flat.Times) > 0 {
		return secondsToMs(flat.Times), nil
	}

	return nil, errors.New("timing report matches no known schema or contains no timings")
}

func secondsToMs(seconds []float64) []float64 {
	ms := make([]float64, len(seconds))
	for i, s := range seconds {
		ms[i] = s * 1000.0
	}
	return ms
}
