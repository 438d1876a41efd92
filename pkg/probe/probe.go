// Package probe detects readiness of a launched server without a fixed delay,
// and verifies that the process listening on the benchmark port is the one
// that was just launched.
package probe

import (
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// defaultAttemptTimeout bounds a single health request.
const defaultAttemptTimeout = 1 * time.Second

// Prober polls a health URL until success or until the attempt budget is
// exhausted. Exhaustion is fatal to the variant: a server that never becomes
// healthy cannot usefully run any measurement cell.
type Prober struct {
	client      *http.Client
	maxAttempts uint
	interval    time.Duration
}

// NewProber returns a Prober with given attempt budget and poll interval.
func NewProber(maxAttempts int, interval time.Duration) *Prober {
	return &Prober{
		client:      &http.Client{Timeout: defaultAttemptTimeout},
		maxAttempts: uint(maxAttempts),
		interval:    interval,
	}
}

// NewProberWithClient returns a Prober with an injected HTTP client.
// Used by tests to control the per-attempt timeout.
func NewProberWithClient(client *http.Client, maxAttempts int, interval time.Duration) *Prober {
	return &Prober{
		client:      client,
		maxAttempts: uint(maxAttempts),
		interval:    interval,
	}
}

// WaitReady polls healthURL and returns as soon as one attempt answers
// HTTP 200. It returns an error when the attempt budget is exhausted.
func (p *Prober) WaitReady(healthURL string) error {
	started := time.Now()

	err := retry.Do(
		func() error {
			resp, err := p.client.Get(healthURL)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return errors.Errorf("health endpoint returned status %d", resp.StatusCode)
			}
			return nil
		},
		retry.Attempts(p.maxAttempts),
		retry.Delay(p.interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	if err != nil {
		return errors.Wrapf(err, "server did not become ready at %s after %d attempts", healthURL, p.maxAttempts)
	}

	log.Debugf("server ready at %s after %s", healthURL, time.Since(started))
	return nil
}
