package gate

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stackctl/internal/execx"
	"stackctl/internal/metrics"
	"stackctl/internal/poll"
)

const (
	DefaultBootstrapTimeout = time.Hour
	DefaultBootstrapDelay   = 5 * time.Second
	DefaultProgressEvery    = 30 * time.Second
)

// ModelLister reports the model ids a model server currently has.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// LogSource returns recent log output of a service.
type LogSource interface {
	Logs(ctx context.Context, service string, tail int) (string, error)
}

// BootstrapGate waits until every required model is available in the model
// server. Downloads are large and their duration depends on bandwidth, so
// the wait is bounded by wall-clock time rather than attempts.
type BootstrapGate struct {
	Models   ModelLister
	Follower LogFollower
	Logs     LogSource
	Service  string
	// Out receives the live log stream; defaults to os.Stderr.
	Out    io.Writer
	Poller poll.Poller
	// Now defaults to time.Now.
	Now           func() time.Time
	Delay         time.Duration
	ProgressEvery time.Duration
	StreamRestart time.Duration
	LogTail       int
	Log           zerolog.Logger
}

// normalizeModel treats "llama3" and "llama3:latest" as the same id.
func normalizeModel(id string) string {
	id = strings.TrimSpace(id)
	if id != "" && !strings.Contains(id, ":") {
		return id + ":latest"
	}
	return id
}

// Missing returns the required ids not present in available, in order.
func Missing(required, available []string) []string {
	have := make(map[string]struct{}, len(available))
	for _, a := range available {
		have[normalizeModel(a)] = struct{}{}
	}
	var missing []string
	for _, r := range required {
		if _, ok := have[normalizeModel(r)]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}

// Await blocks until all required models are available or timeout elapses.
// When verbose, the model server's logs are streamed to Out for the duration
// of the wait; the stream is stopped before Await returns on every path.
func (g BootstrapGate) Await(ctx context.Context, required []string, timeout time.Duration, verbose bool) error {
	now := g.Now
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = DefaultBootstrapTimeout
	}
	delay := g.Delay
	if delay <= 0 {
		delay = DefaultBootstrapDelay
	}
	every := g.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	log := g.Log.With().Str("service", g.Service).Logger()

	stopStream := func() {}
	if verbose && g.Follower != nil {
		out := g.Out
		if out == nil {
			out = os.Stderr
		}
		pw := &execx.PrefixWriter{W: out, Prefix: g.Service + " | "}
		restart := g.StreamRestart
		if restart <= 0 {
			restart = delay
		}
		stream := StartLogStream(ctx, g.Follower, g.Service, 20, pw, restart, log)
		stopStream = func() {
			stream.Stop()
			_ = pw.Flush()
		}
		defer stopStream()
	}

	start := now()
	var lastNotice time.Time
	missing := append([]string(nil), required...)
	log.Info().Strs("models", required).Dur("timeout", timeout).Msg("waiting for model bootstrap")
	n, err := g.Poller.Until(ctx, 0, delay, func(ctx context.Context, attempt int) (bool, error) {
		elapsed := now().Sub(start)
		if elapsed >= timeout {
			return false, &BootstrapTimeoutError{Missing: missing, Elapsed: elapsed}
		}
		metrics.IncPoll("bootstrap", g.Service)
		available, lerr := g.Models.ListModels(ctx)
		if lerr != nil {
			// the server may still be starting
			log.Debug().Err(lerr).Msg("model list unavailable")
			available = nil
		}
		missing = Missing(required, available)
		metrics.SetMissingModels(len(missing))
		if len(missing) == 0 {
			return true, nil
		}
		if lastNotice.IsZero() || now().Sub(lastNotice) >= every {
			lastNotice = now()
			log.Info().
				Strs("required", required).
				Strs("missing", missing).
				Dur("elapsed", elapsed.Round(time.Second)).
				Msg("models still downloading")
		}
		return false, nil
	})
	if err == nil {
		metrics.GateOutcome("bootstrap", g.Service, "ready")
		log.Info().Int("polls", n).Dur("elapsed", now().Sub(start).Round(time.Second)).Msg("all required models available")
		return nil
	}
	stopStream()
	var te *BootstrapTimeoutError
	if errors.As(err, &te) {
		metrics.GateOutcome("bootstrap", g.Service, "timeout")
		sort.Strings(te.Missing)
		if g.Logs != nil {
			tail := g.LogTail
			if tail <= 0 {
				tail = DefaultLogTail
			}
			te.Logs, _ = g.Logs.Logs(context.WithoutCancel(ctx), g.Service, tail)
		}
		return te
	}
	metrics.GateOutcome("bootstrap", g.Service, "error")
	return err
}
