// Package teardown tracks every launched variant and guarantees its cleanup
// actions run exactly once, in order, even when the run is interrupted.
package teardown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// State describes where a variant is in its lifecycle.
type State int

const (
	// LAUNCHED means the process has been spawned but is not known ready yet.
	LAUNCHED State = iota
	// READY means the health endpoint answered and measurement may begin.
	READY
	// MEASURING means samplers and load generation are active.
	MEASURING
	// STOPPING means Close has begun running cleanup actions.
	STOPPING
	// CLEAN means all cleanup actions have run.
	CLEAN
)

func (s State) String() string {
	switch s {
	case LAUNCHED:
		return "LAUNCHED"
	case READY:
		return "READY"
	case MEASURING:
		return "MEASURING"
	case STOPPING:
		return "STOPPING"
	case CLEAN:
		return "CLEAN"
	}
	return "UNKNOWN"
}

type action struct {
	name string
	run  func() error
}

// Handle is the per-variant cleanup record. Sampler stops registered on it run
// before the ordered actions, so the series is flushed while the target still
// exists. Close is idempotent.
type Handle struct {
	name string

	mu       sync.Mutex
	state    State
	samplers []func()
	actions  []action

	closeOnce sync.Once
	closeErr  error
}

// Name returns the variant name this handle tracks.
func (h *Handle) Name() string {
	return h.name
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// MarkReady records that the variant answered its health check.
func (h *Handle) MarkReady() {
	h.setState(READY)
}

// MarkMeasuring records that measurement has started.
func (h *Handle) MarkMeasuring() {
	h.setState(MEASURING)
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	log.Debugf("teardown: %q %v -> %v", h.name, h.state, s)
	h.state = s
}

// AddSamplerStop registers a sampler stop function. All sampler stops run
// before any cleanup action.
func (h *Handle) AddSamplerStop(stop func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samplers = append(h.samplers, stop)
}

// ClearSamplerStops drops all registered sampler stops. Called after the
// samplers have been stopped and drained at the end of a cell, so a later
// Close does not stop them a second time.
func (h *Handle) ClearSamplerStops() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samplers = nil
}

// AddAction registers a named cleanup action. Actions run in registration
// order: process stop before mode teardown before port release.
func (h *Handle) AddAction(name string, run func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions = append(h.actions, action{name: name, run: run})
}

// Close runs all sampler stops, then all cleanup actions in order, collecting
// every error instead of aborting on the first. Subsequent calls do nothing
// and return the first call's result.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.setState(STOPPING)

		h.mu.Lock()
		samplers := h.samplers
		actions := h.actions
		h.mu.Unlock()

		for _, stop := range samplers {
			stop()
		}

		var errs *multierror.Error
		for _, a := range actions {
			log.Debugf("teardown: %q running %q", h.name, a.name)
			if err := a.run(); err != nil {
				log.Warnf("teardown: %q action %q failed: %v", h.name, a.name, err)
				errs = multierror.Append(errs, err)
			}
		}

		h.setState(CLEAN)
		h.closeErr = errs.ErrorOrNil()
	})
	return h.closeErr
}

// Coordinator registers every launched variant and can close them all, most
// recently launched first. One coordinator lives for the whole run.
type Coordinator struct {
	mu      sync.Mutex
	handles []*Handle
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Register creates a handle for a freshly spawned variant. It must be called
// atomically with the spawn, before readiness probing.
func (c *Coordinator) Register(name string) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	handle := &Handle{name: name, state: LAUNCHED}
	c.handles = append(c.handles, handle)
	return handle
}

// CloseAll closes every registered handle in reverse registration order and
// collects all errors.
func (c *Coordinator) CloseAll() error {
	c.mu.Lock()
	handles := make([]*Handle, len(c.handles))
	copy(handles, c.handles)
	c.mu.Unlock()

	var errs *multierror.Error
	for i := len(handles) - 1; i >= 0; i-- {
		if err := handles[i].Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// HandleInterrupts closes all registered handles when SIGINT or SIGTERM
// arrives, then exits non-zero. The returned function unregisters the
// listener.
func (c *Coordinator) HandleInterrupts() func() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-signals
		if !ok {
			return
		}
		log.Warnf("teardown: closing all variants on signal %v", sig)
		if err := c.CloseAll(); err != nil {
			log.Errorf("teardown: cleanup after signal failed: %v", err)
		}
		os.Exit(1)
	}()
	return func() {
		signal.Stop(signals)
		close(signals)
	}
}
