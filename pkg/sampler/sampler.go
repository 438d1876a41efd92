// Package sampler implements a background resource poller. One Sampler per
// measured target reads resident memory and CPU usage at a fixed interval and
// appends rows to an in-memory series. The series is handed to the aggregator
// only after a synchronized Stop, so there are no concurrent readers
// and writers.
package sampler

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultInterval is the sampling period used by the throughput protocol.
const DefaultInterval = 200 * time.Millisecond

// Target is a source of resource readings for one measured identity.
// The identity used for liveness may differ from the identity being sampled
// (e.g. liveness tracked via a supervisor process while samples come from a
// resolved inner worker). Both are fixed when the target is constructed.
type Target interface {
	// Name identifies the target in result columns.
	Name() string
	// Alive reports whether the liveness identity still exists.
	Alive() bool
	// Sample reads resident memory in KB and CPU percentage.
	Sample() (rssKB uint64, cpuPct float64, err error)
}

// Sampler polls one Target in a background goroutine.
type Sampler struct {
	target   Target
	interval time.Duration

	samples     Series
	stopChannel chan struct{}
	doneChannel chan struct{}
	stopOnce    sync.Once
}

// Start spawns the sampling loop for given target.
func Start(target Target, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Sampler{
		target:      target,
		interval:    interval,
		stopChannel: make(chan struct{}),
		doneChannel: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Sampler) loop() {
	defer close(s.doneChannel)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChannel:
			return
		case <-ticker.C:
			if !s.target.Alive() {
				log.Debugf("sampler %q: target is gone, ending series", s.target.Name())
				return
			}
			rssKB, cpuPct, err := s.target.Sample()
			if err != nil {
				// Process momentarily unreadable; skip the tick, keep the loop.
				log.Debugf("sampler %q: skipping tick: %v", s.target.Name(), err)
				continue
			}
			s.samples = append(s.samples, Sample{
				Time:   time.Now(),
				RSSKB:  rssKB,
				CPUPct: cpuPct,
			})
		}
	}
}

// Stop ends the sampling loop and returns the collected series.
// It blocks until the loop goroutine exits, so all buffered rows are flushed
// before the aggregator reads them. Stop is idempotent; repeated calls return
// the same series.
func (s *Sampler) Stop() Series {
	s.stopOnce.Do(func() {
		close(s.stopChannel)
	})
	<-s.doneChannel
	return s.samples
}

// TargetName returns the name of the sampled target.
func (s *Sampler) TargetName() string {
	return s.target.Name()
}
