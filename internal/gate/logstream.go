package gate

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"stackctl/internal/poll"
)

// LogFollower streams a service's logs until ctx is done.
type LogFollower interface {
	FollowLogs(ctx context.Context, service string, tail int, w io.Writer) error
}

// LogStream owns a background log-follow goroutine. Stop cancels it and
// waits for it to return.
type LogStream struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartLogStream follows service logs into w, restarting the follower after
// restart whenever it exits early (the container may not exist yet).
func StartLogStream(ctx context.Context, f LogFollower, service string, tail int, w io.Writer, restart time.Duration, log zerolog.Logger) *LogStream {
	sctx, cancel := context.WithCancel(ctx)
	s := &LogStream{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for {
			err := f.FollowLogs(sctx, service, tail, w)
			if sctx.Err() != nil {
				return
			}
			log.Debug().Err(err).Str("service", service).Msg("log follower exited, restarting")
			// only replay history once
			tail = 0
			if poll.Sleep(sctx, restart) != nil {
				return
			}
		}
	}()
	return s
}

// Stop cancels the stream and blocks until the goroutine has exited. It is
// safe to call more than once.
func (s *LogStream) Stop() {
	s.cancel()
	<-s.done
}
