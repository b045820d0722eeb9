// Package fitness defines the boundary to the analytical side of the
// platform. The gateway computes a fitness value for an executed sample;
// this package only submits, polls and bounds the wait, keeping fitness
// collection decoupled from hardware execution.
package fitness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crucible-lab/crucible/internal/ctxlog"
)

// KindGatewayFailure is the diagnostic kind recorded when the gateway
// reports a failed or never-arriving measurement.
const KindGatewayFailure = "GATEWAY_FAILURE"

// PollStatus is the state of one submitted measurement.
type PollStatus int

const (
	// Pending means the measurement is still being computed.
	Pending PollStatus = iota
	// Ready means a fitness value is available.
	Ready
	// Failed means the gateway could not produce a value.
	Failed
)

// Handle identifies one submitted measurement.
type Handle struct {
	Token string
}

// Sample is one poll result.
type Sample struct {
	Status PollStatus
	Value  float64
	Detail string
}

// Gateway is the consumed interface of the analytical instrument pipeline.
type Gateway interface {
	// Submit registers a completed sample for measurement.
	Submit(ctx context.Context, individualID string) (Handle, error)
	// Poll reports the current state of a submitted measurement.
	Poll(ctx context.Context, h Handle) (Sample, error)
}

// ErrGateway wraps gateway-reported measurement failures.
var ErrGateway = errors.New("fitness gateway failure")

// Collector submits samples and waits, bounded, for their fitness.
type Collector struct {
	gateway  Gateway
	timeout  time.Duration
	interval time.Duration
}

// NewCollector builds a collector with the per-individual wait bound.
func NewCollector(gateway Gateway, timeout time.Duration) *Collector {
	return &Collector{gateway: gateway, timeout: timeout, interval: time.Second}
}

// NewCollectorWithInterval is used by tests to tighten the poll cadence.
func NewCollectorWithInterval(gateway Gateway, timeout, interval time.Duration) *Collector {
	return &Collector{gateway: gateway, timeout: timeout, interval: interval}
}

// Collect submits the individual's sample and polls until a value arrives,
// the gateway reports failure, or the bounded wait elapses.
func (c *Collector) Collect(ctx context.Context, individualID string) (float64, error) {
	logger := ctxlog.FromContext(ctx).With("individual", individualID)

	h, err := c.gateway.Submit(ctx, individualID)
	if err != nil {
		return 0, fmt.Errorf("%w: submit: %v", ErrGateway, err)
	}
	logger.Debug("Sample submitted for measurement.", "token", h.Token)

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.interval)
	defer tick.Stop()

	for {
		sample, err := c.gateway.Poll(ctx, h)
		if err != nil {
			return 0, fmt.Errorf("%w: poll: %v", ErrGateway, err)
		}
		switch sample.Status {
		case Ready:
			logger.Debug("Fitness received.", "fitness", sample.Value)
			return sample.Value, nil
		case Failed:
			return 0, fmt.Errorf("%w: %s", ErrGateway, sample.Detail)
		}

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %v", ErrGateway, ctx.Err())
		case <-deadline.C:
			return 0, fmt.Errorf("%w: no value within %s", ErrGateway, c.timeout)
		case <-tick.C:
		}
	}
}
