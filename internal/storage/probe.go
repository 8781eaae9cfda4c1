package storage

import (
	"context"
	"errors"
	"time"
)

// ProbeKind classifies the outcome of an availability probe.
type ProbeKind int

const (
	ProbeOK ProbeKind = iota
	ProbeUnreachable
	ProbeUnauthorized
	ProbeCanceled
)

func (k ProbeKind) String() string {
	switch k {
	case ProbeOK:
		return "ok"
	case ProbeUnauthorized:
		return "unauthorized"
	case ProbeCanceled:
		return "canceled"
	default:
		return "unreachable"
	}
}

// Availability is the result of CheckAvailability.
type Availability struct {
	Available bool
	Kind      ProbeKind
	Err       error
}

// CheckAvailability lists the account's containers to confirm it is reachable.
// Failures are reported in the result, never returned.
func (g *Gateway) CheckAvailability(ctx context.Context) Availability {
	start := time.Now()
	if g.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.probeTimeout)
		defer cancel()
	}

	_, err := g.store.ListContainers(ctx)
	g.observer.RecordOperation("probe", time.Since(start), err)
	if err == nil {
		return Availability{Available: true, Kind: ProbeOK}
	}

	result := Availability{Kind: classifyProbeError(err), Err: err}
	g.log.Warn().Err(err).Stringer("kind", result.Kind).Msg("storage account unavailable")
	return result
}

func classifyProbeError(err error) ProbeKind {
	switch {
	case errors.Is(err, context.Canceled):
		return ProbeCanceled
	case errors.Is(err, ErrUnauthorized):
		return ProbeUnauthorized
	default:
		return ProbeUnreachable
	}
}
