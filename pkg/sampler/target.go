package sampler

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessTarget samples a single fixed pid. The liveness pid may be a
// different identity than the sampled one (e.g. a container supervisor
// tracked for liveness while the resolved inner worker is measured).
type ProcessTarget struct {
	name        string
	proc        *process.Process
	livenessPid int32
}

// NewProcessTarget resolves the sample pid once, at construction time.
func NewProcessTarget(name string, samplePid, livenessPid int) (*ProcessTarget, error) {
	proc, err := process.NewProcess(int32(samplePid))
	if err != nil {
		return nil, errors.Wrapf(err, "resolving sample target pid %d failed", samplePid)
	}
	// Prime the CPU counter; the first Percent call always returns 0.
	proc.Percent(0)

	return &ProcessTarget{
		name:        name,
		proc:        proc,
		livenessPid: int32(livenessPid),
	}, nil
}

// Name identifies the target in result columns.
func (t *ProcessTarget) Name() string {
	return t.name
}

// Alive reports whether the liveness process still exists.
func (t *ProcessTarget) Alive() bool {
	alive, err := process.PidExists(t.livenessPid)
	return err == nil && alive
}

// Sample reads resident memory and CPU usage of the sampled pid.
// CPU is the fraction of one CPU used since the previous call, the same
// definition as top.
func (t *ProcessTarget) Sample() (uint64, float64, error) {
	mem, err := t.proc.MemoryInfo()
	if err != nil {
		return 0, 0, errors.Wrapf(err, "reading memory of pid %d failed", t.proc.Pid)
	}
	cpu, err := t.proc.Percent(0)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "reading cpu of pid %d failed", t.proc.Pid)
	}
	return mem.RSS / 1024, cpu, nil
}

// ScanTarget aggregates RSS and CPU across all processes whose name starts
// with a given prefix. It serves deployment modes that split work across a
// short-lived helper process per request, where no single pid can be pinned
// at sampler start. Liveness is tracked via the long-running server pid.
type ScanTarget struct {
	name        string
	prefix      string
	livenessPid int32

	// Persistent process handles keep per-pid CPU tick deltas between scans.
	procs map[int32]*process.Process
}

// NewScanTarget creates a target aggregating all processes matching prefix.
func NewScanTarget(name, prefix string, livenessPid int) *ScanTarget {
	return &ScanTarget{
		name:        name,
		prefix:      prefix,
		livenessPid: int32(livenessPid),
		procs:       map[int32]*process.Process{},
	}
}

// Name identifies the target in result columns.
func (t *ScanTarget) Name() string {
	return t.name
}

// Alive reports whether the liveness process still exists.
func (t *ScanTarget) Alive() bool {
	alive, err := process.PidExists(t.livenessPid)
	return err == nil && alive
}

// Sample sums resident memory and CPU over every matching process.
// A scan with no matches is a valid zero reading, not an error.
func (t *ScanTarget) Sample() (uint64, float64, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, 0, errors.Wrap(err, "listing processes failed")
	}

	seen := map[int32]bool{}
	var rssKB uint64
	var cpuPct float64

	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil || !strings.HasPrefix(name, t.prefix) {
			continue
		}
		seen[proc.Pid] = true

		handle, ok := t.procs[proc.Pid]
		if !ok {
			handle = proc
			// First reading of a fresh pid only primes its CPU counter.
			handle.Percent(0)
			t.procs[proc.Pid] = handle
		}

		if mem, err := handle.MemoryInfo(); err == nil {
			rssKB += mem.RSS / 1024
		}
		if cpu, err := handle.Percent(0); err == nil {
			cpuPct += cpu
		}
	}

	// Drop handles of processes that are gone.
	for pid := range t.procs {
		if !seen[pid] {
			delete(t.procs, pid)
		}
	}

	return rssKB, cpuPct, nil
}
