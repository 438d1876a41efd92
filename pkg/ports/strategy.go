// Package ports clears the benchmark port before a variant starts. A port
// left occupied by a prior, improperly cleaned run corrupts every subsequent
// measurement, so failing to free it is intentionally fatal and noisy.
package ports

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	gopsnet "github.com/shirou/gopsutil/v3/net"

	"github.com/wasmbench/gwbench/pkg/executor"
)

// Strategy identifies processes currently listening on a TCP port.
// Discovery is layered: not every environment ships the same
// process-inspection tools, so strategies are tried in order until one
// yields a non-empty result.
type Strategy interface {
	Name() string
	ListenerPids(port int) ([]int, error)
}

// connTableStrategy walks the kernel connection table via gopsutil.
// It needs no external tool but may miss listeners hidden behind container
// network namespacing.
type connTableStrategy struct{}

func (connTableStrategy) Name() string { return "conn-table" }

func (connTableStrategy) ListenerPids(port int) ([]int, error) {
	conns, err := gopsnet.Connections("tcp")
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, conn := range conns {
		if conn.Status == "LISTEN" && conn.Laddr.Port == uint32(port) && conn.Pid > 0 {
			pids = append(pids, int(conn.Pid))
		}
	}
	return dedup(pids), nil
}

// lsofStrategy shells out to lsof.
type lsofStrategy struct {
	exec executor.Executor
}

func (lsofStrategy) Name() string { return "lsof" }

func (s lsofStrategy) ListenerPids(port int) ([]int, error) {
	out, err := runForOutput(s.exec, fmt.Sprintf("lsof -t -i tcp:%d -s TCP:LISTEN", port))
	if err != nil {
		// lsof exits non-zero when nothing matches; treat as no listeners.
		return nil, nil
	}
	return parsePids(out), nil
}

// fuserStrategy shells out to fuser.
type fuserStrategy struct {
	exec executor.Executor
}

func (fuserStrategy) Name() string { return "fuser" }

func (s fuserStrategy) ListenerPids(port int) ([]int, error) {
	out, err := runForOutput(s.exec, fmt.Sprintf("fuser %d/tcp", port))
	if err != nil {
		// fuser exits non-zero when nothing matches; treat as no listeners.
		return nil, nil
	}
	return parsePids(out), nil
}

// runForOutput executes a short-lived discovery command and returns its stdout.
func runForOutput(exec executor.Executor, command string) (string, error) {
	handle, err := exec.Execute(command)
	if err != nil {
		return "", err
	}
	defer handle.EraseOutput()
	defer handle.Clean()

	handle.Wait(0)
	exitCode, err := handle.ExitCode()
	if err != nil {
		return "", err
	}
	if exitCode != 0 {
		return "", fmt.Errorf("command %q exited with code %d", command, exitCode)
	}

	stdout, err := handle.StdoutFile()
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(stdout)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parsePids(output string) []int {
	var pids []int
	for _, field := range strings.Fields(output) {
		pid, err := strconv.Atoi(strings.TrimSuffix(field, ":"))
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return dedup(pids)
}

func dedup(pids []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, pid := range pids {
		if !seen[pid] {
			seen[pid] = true
			out = append(out, pid)
		}
	}
	return out
}
