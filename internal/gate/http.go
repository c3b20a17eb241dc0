package gate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"stackctl/internal/metrics"
	"stackctl/internal/poll"
)

// HTTPGate waits for a URL to answer with a 2xx status.
type HTTPGate struct {
	// Client defaults to one with a 2 second timeout.
	Client *http.Client
	Poller poll.Poller
	Log    zerolog.Logger
}

func (g HTTPGate) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return &http.Client{Timeout: 2 * time.Second}
}

// Check issues a single GET and reports whether it succeeded.
func (g HTTPGate) Check(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := g.client().Do(req)
	if err != nil {
		return false, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// Await polls url until it answers 2xx or attempts run out. The returned
// error wraps poll.ErrTimeout on exhaustion.
func (g HTTPGate) Await(ctx context.Context, url string, maxAttempts int, delay time.Duration) error {
	log := g.Log.With().Str("url", url).Logger()
	log.Info().Int("attempts", maxAttempts).Msg("waiting for HTTP endpoint")
	n, err := g.Poller.Until(ctx, maxAttempts, delay, func(ctx context.Context, attempt int) (bool, error) {
		metrics.IncPoll("http", url)
		return g.Check(ctx, url)
	})
	switch {
	case err == nil:
		metrics.GateOutcome("http", url, "ready")
		log.Info().Int("attempts", n).Msg("endpoint ready")
		return nil
	case errors.Is(err, poll.ErrTimeout):
		metrics.GateOutcome("http", url, "timeout")
		return fmt.Errorf("%s not ready after %d attempts: %w", url, n, err)
	}
	metrics.GateOutcome("http", url, "error")
	return err
}
