package stackctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stackctl/internal/gate"
	"stackctl/internal/metrics"
)

// Policy decides what a step failure does to the run.
type Policy int

const (
	// FailFast aborts the whole run.
	FailFast Policy = iota
	// SoftFail records a warning and continues.
	SoftFail
)

func (p Policy) String() string {
	if p == SoftFail {
		return "soft-fail"
	}
	return "fail-fast"
}

// Step is one ordered unit of the bring-up.
type Step struct {
	Name   string
	Policy Policy
	Run    func(ctx context.Context) error
}

type skipError struct{ reason string }

func (e skipError) Error() string { return e.reason }

// Skip is returned by a step that deliberately did nothing.
func Skip(format string, a ...any) error { return skipError{reason: fmt.Sprintf(format, a...)} }

func isSkip(err error) (string, bool) {
	var s skipError
	if errors.As(err, &s) {
		return s.reason, true
	}
	return "", false
}

// StepError is returned when a fail-fast step aborts the run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s failed: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }

// Observer is told about step progress; the status endpoint implements it.
type Observer interface {
	StepStarted(name string)
	StepFinished(name, outcome string, d time.Duration, err error)
	Warn(msg string)
}

// Report summarizes a completed run.
type Report struct {
	Completed []string
	Skipped   []string
	Warnings  []string
}

// Sequencer runs steps strictly in order. Later steps depend on the side
// effects of earlier ones, so nothing runs in parallel.
type Sequencer struct {
	Steps    []Step
	Log      zerolog.Logger
	Observer Observer
	// Diag receives recent service logs when a fail-fast step fails.
	Diag io.Writer
}

func (s *Sequencer) observe(fn func(o Observer)) {
	if s.Observer != nil {
		fn(s.Observer)
	}
}

// Run executes every step. It stops at the first fail-fast failure and
// returns a *StepError; soft failures become warnings in the report.
func (s *Sequencer) Run(ctx context.Context) (Report, error) {
	var rep Report
	for i, st := range s.Steps {
		log := s.Log.With().Str("step", st.Name).Logger()
		log.Info().Msgf("[%d/%d] %s", i+1, len(s.Steps), st.Name)
		s.observe(func(o Observer) { o.StepStarted(st.Name) })
		start := time.Now()
		err := st.Run(ctx)
		d := time.Since(start)

		if reason, ok := isSkip(err); ok {
			log.Info().Str("reason", reason).Msg("skipped")
			rep.Skipped = append(rep.Skipped, st.Name)
			metrics.ObserveStep(st.Name, "skipped", d)
			s.observe(func(o Observer) { o.StepFinished(st.Name, "skipped", d, nil) })
			continue
		}
		if err == nil {
			rep.Completed = append(rep.Completed, st.Name)
			metrics.ObserveStep(st.Name, "ok", d)
			s.observe(func(o Observer) { o.StepFinished(st.Name, "ok", d, nil) })
			continue
		}
		if st.Policy == SoftFail && ctx.Err() == nil {
			for _, line := range strings.Split(err.Error(), "\n") {
				if line = strings.TrimSpace(line); line != "" {
					log.Warn().Msg(line)
					rep.Warnings = append(rep.Warnings, line)
					s.observe(func(o Observer) { o.Warn(line) })
				}
			}
			metrics.ObserveStep(st.Name, "warned", d)
			s.observe(func(o Observer) { o.StepFinished(st.Name, "warned", d, err) })
			continue
		}

		log.Error().Err(err).Dur("after", d.Round(time.Millisecond)).Msg("step failed")
		if logs, ok := gate.RecentLogs(err); ok && s.Diag != nil {
			fmt.Fprintf(s.Diag, "---- recent logs (%s) ----\n%s\n---- end of logs ----\n", st.Name, strings.TrimRight(logs, "\n"))
		}
		metrics.ObserveStep(st.Name, "failed", d)
		s.observe(func(o Observer) { o.StepFinished(st.Name, "failed", d, err) })
		return rep, &StepError{Step: st.Name, Err: err}
	}
	return rep, nil
}
