package ports

import (
	"syscall"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"

	"github.com/wasmbench/gwbench/pkg/executor"
)

const (
	defaultAttempts  = 5
	defaultBackoff   = 500 * time.Millisecond
	killGracePeriod  = 1 * time.Second
	killPollInterval = 50 * time.Millisecond
)

// StaleContainerReaper removes leftover container instances publishing a host
// port. A process-table scan alone is insufficient when the listener lives
// inside container network namespacing.
type StaleContainerReaper interface {
	ReapPort(port int) (removed []string, err error)
}

// Resolver frees a benchmark port by discovering and terminating every
// process listening on it, using an ordered chain of discovery strategies.
type Resolver struct {
	strategies []Strategy
	reaper     StaleContainerReaper
	attempts   uint
	backoff    time.Duration
}

// NewResolver builds a Resolver with the default strategy chain.
// reaper may be nil when no containerized variant is configured.
func NewResolver(exec executor.Executor, reaper StaleContainerReaper) *Resolver {
	return &Resolver{
		strategies: []Strategy{
			connTableStrategy{},
			lsofStrategy{exec: exec},
			fuserStrategy{exec: exec},
		},
		reaper:   reaper,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

// NewResolverWithStrategies builds a Resolver with an explicit chain.
// Used by tests to exercise the chain with fakes.
func NewResolverWithStrategies(strategies []Strategy, reaper StaleContainerReaper) *Resolver {
	return &Resolver{
		strategies: strategies,
		reaper:     reaper,
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
	}
}

// Discover returns pids listening on the port, found by the first strategy in
// the chain that yields a non-empty result, together with that strategy name.
func (r *Resolver) Discover(port int) (pids []int, strategy string, err error) {
	for _, s := range r.strategies {
		pids, err := s.ListenerPids(port)
		if err != nil {
			log.Debugf("port discovery strategy %q failed: %v", s.Name(), err)
			continue
		}
		if len(pids) > 0 {
			return pids, s.Name(), nil
		}
	}
	return nil, "", nil
}

// EnsureFree terminates every listener on the port and polls until none
// remains. It fails only after the bounded retry budget is exhausted, and the
// failure names the offending pids so the operator can see exactly what kept
// the port busy.
func (r *Resolver) EnsureFree(port int) error {
	err := retry.Do(
		func() error {
			if r.reaper != nil {
				removed, err := r.reaper.ReapPort(port)
				if err != nil {
					log.Debugf("reaping stale containers on port %d failed: %v", port, err)
				}
				for _, id := range removed {
					log.Warnf("removed stale container %s publishing port %d", id, port)
				}
			}

			pids, strategy, err := r.Discover(port)
			if err != nil {
				return err
			}
			if len(pids) == 0 {
				return nil
			}

			log.Warnf("port %d is occupied by pids %v (found via %s); terminating them", port, pids, strategy)
			for _, pid := range pids {
				terminatePid(pid)
			}
			return errors.Errorf("port %d still occupied by pids %v", port, pids)
		},
		retry.Attempts(r.attempts),
		retry.Delay(r.backoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	return errors.Wrapf(err, "could not free port %d", port)
}

// terminatePid sends SIGTERM and escalates to SIGKILL after a short grace
// period. Signals to already-dead processes are swallowed.
func terminatePid(pid int) {
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return
	}

	deadline := time.Now().Add(killGracePeriod)
	for time.Now().Before(deadline) {
		if alive, err := process.PidExists(int32(pid)); err == nil && !alive {
			return
		}
		time.Sleep(killPollInterval)
	}

	log.Warnf("pid %d ignored SIGTERM; sending SIGKILL", pid)
	syscall.Kill(pid, syscall.SIGKILL)
}
