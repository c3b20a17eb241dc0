// Package gate implements the blocking readiness checks the sequencer waits
// on: container health, model bootstrap and HTTP reachability.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"stackctl/internal/metrics"
	"stackctl/internal/poll"
)

// DefaultLogTail is how many log lines are attached to gate failures.
const DefaultLogTail = 50

// Inspector answers container questions for one compose project.
type Inspector interface {
	ContainerID(ctx context.Context, service string) (string, error)
	HealthStatus(ctx context.Context, id string) (string, error)
	LifecycleStatus(ctx context.Context, id string) (string, error)
	Logs(ctx context.Context, service string, tail int) (string, error)
}

// HealthGate waits for a service's declared health check to pass.
type HealthGate struct {
	Inspector Inspector
	Poller    poll.Poller
	Log       zerolog.Logger
	LogTail   int
}

// Observation is one probe of a service.
type Observation struct {
	ID        string
	Health    string
	Lifecycle string
	State     State
}

// Probe inspects a service once. Query failures are reported as Absent or
// Starting rather than errors: containers may lag compose commands.
func (g HealthGate) Probe(ctx context.Context, service string) Observation {
	id, err := g.Inspector.ContainerID(ctx, service)
	if err != nil {
		g.Log.Debug().Err(err).Str("service", service).Msg("container lookup failed")
		return Observation{State: Absent}
	}
	if id == "" {
		return Observation{State: Absent}
	}
	obs := Observation{ID: id}
	if obs.Health, err = g.Inspector.HealthStatus(ctx, id); err != nil {
		g.Log.Debug().Err(err).Str("service", service).Msg("health query failed")
		obs.State = Starting
		return obs
	}
	if obs.Lifecycle, err = g.Inspector.LifecycleStatus(ctx, id); err != nil {
		g.Log.Debug().Err(err).Str("service", service).Msg("status query failed")
		obs.State = Starting
		return obs
	}
	obs.State = Classify(id, obs.Health, obs.Lifecycle)
	return obs
}

func (g HealthGate) recentLogs(ctx context.Context, service string) string {
	tail := g.LogTail
	if tail <= 0 {
		tail = DefaultLogTail
	}
	// Diagnostics must survive an interrupted run context.
	out, err := g.Inspector.Logs(context.WithoutCancel(ctx), service, tail)
	if err != nil {
		g.Log.Debug().Err(err).Str("service", service).Msg("could not fetch logs")
	}
	return out
}

// Await polls until service is healthy. It stops early when the container
// exits or dies, or runs without a health check.
func (g HealthGate) Await(ctx context.Context, service string, maxAttempts int, delay time.Duration) error {
	log := g.Log.With().Str("service", service).Logger()
	log.Info().Int("attempts", maxAttempts).Dur("delay", delay).Msg("waiting for service to become healthy")
	var last Observation
	n, err := g.Poller.Until(ctx, maxAttempts, delay, func(ctx context.Context, attempt int) (bool, error) {
		metrics.IncPoll("health", service)
		last = g.Probe(ctx, service)
		log.Debug().Int("attempt", attempt).Str("state", last.State.String()).Msg("health probe")
		switch {
		case last.State == Healthy:
			return true, nil
		case last.State.Terminal():
			return false, &ServiceTerminatedError{Service: service, Status: last.Lifecycle}
		case last.State == NoHealthCheck:
			return false, &NoHealthCheckError{Service: service}
		}
		return false, nil
	})
	switch {
	case err == nil:
		metrics.GateOutcome("health", service, "healthy")
		log.Info().Int("attempts", n).Msg("service healthy")
		return nil
	case errors.Is(err, poll.ErrTimeout):
		metrics.GateOutcome("health", service, "timeout")
		return &UnhealthyError{Service: service, Attempts: n, LastHealth: last.Health, Logs: g.recentLogs(ctx, service)}
	}
	var term *ServiceTerminatedError
	if errors.As(err, &term) {
		metrics.GateOutcome("health", service, "terminated")
		term.Logs = g.recentLogs(ctx, service)
		return term
	}
	metrics.GateOutcome("health", service, "error")
	return err
}
