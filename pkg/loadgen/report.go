package loadgen

import (
	"regexp"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Report holds the figures parsed from the load generator's textual output.
type Report struct {
	RequestsPerSec float64
	LatencyMeanMs  float64
}

var (
	requestsPerSecRegex = regexp.MustCompile(`Requests/sec:\s+(\d+(?:\.\d+)?)`)
	latencyRegex        = regexp.MustCompile(`Latency\s+(\d+(?:\.\d+)?)([a-zµ]+)`)
)

func matchNotFound(match []string) bool {
	return match == nil || len(match) < 2 || len(match[1]) == 0
}

// ParseReport extracts throughput and mean latency from a wrk report.
func ParseReport(output string) (Report, error) {
	rps, err := parseRequestsPerSec(output)
	if err != nil {
		return Report{}, err
	}
	latencyMs, err := parseLatencyMs(output)
	if err != nil {
		return Report{}, err
	}
	return Report{
		RequestsPerSec: rps,
		LatencyMeanMs:  latencyMs,
	}, nil
}

func parseRequestsPerSec(output string) (float64, error) {
	match := requestsPerSecRegex.FindStringSubmatch(output)
	if matchNotFound(match) {
		return 0, errors.Errorf("cannot find Requests/sec figure in output: %s", output)
	}

	value, err := decimal.NewFromString(match[1])
	if err != nil {
		return 0, errors.Wrapf(err, "cannot parse Requests/sec value %q", match[1])
	}
	return value.InexactFloat64(), nil
}

// parseLatencyMs extracts the mean latency figure and normalizes it to
// milliseconds regardless of the unit wrk chose to report. An unrecognized
// unit suffix is a hard parse error: silently defaulting was observed to
// produce empty result fields instead of a visible failure.
func parseLatencyMs(output string) (float64, error) {
	match := latencyRegex.FindStringSubmatch(output)
	if matchNotFound(match) || len(match) < 3 {
		return 0, errors.Errorf("cannot find Latency figure in output: %s", output)
	}

	value, err := decimal.NewFromString(match[1])
	if err != nil {
		return 0, errors.Wrapf(err, "cannot parse Latency value %q", match[1])
	}

	unit := match[2]
	switch unit {
	case "us", "µs":
		value = value.Div(decimal.NewFromInt(1000))
	case "ms":
		// Already in milliseconds.
	case "s":
		value = value.Mul(decimal.NewFromInt(1000))
	default:
		return 0, errors.Errorf("unrecognized latency unit %q in output", unit)
	}

	return value.InexactFloat64(), nil
}
