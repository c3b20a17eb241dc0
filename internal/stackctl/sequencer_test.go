package stackctl

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackctl/internal/gate"
)

type recordingObserver struct {
	started  []string
	outcomes []string
	warnings []string
}

func (o *recordingObserver) StepStarted(name string) { o.started = append(o.started, name) }

func (o *recordingObserver) StepFinished(name, outcome string, d time.Duration, err error) {
	o.outcomes = append(o.outcomes, name+"="+outcome)
}

func (o *recordingObserver) Warn(msg string) { o.warnings = append(o.warnings, msg) }

func step(name string, p Policy, err error, ran *[]string) Step {
	return Step{Name: name, Policy: p, Run: func(ctx context.Context) error {
		*ran = append(*ran, name)
		return err
	}}
}

func TestSequencerRunsInOrder(t *testing.T) {
	var ran []string
	obs := &recordingObserver{}
	seq := &Sequencer{
		Steps: []Step{
			step("a", FailFast, nil, &ran),
			step("b", FailFast, Skip("nothing to do"), &ran),
			step("c", SoftFail, errors.New("c is slow"), &ran),
			step("d", FailFast, nil, &ran),
		},
		Log:      zerolog.Nop(),
		Observer: obs,
	}
	rep, err := seq.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ran)
	assert.Equal(t, []string{"a", "d"}, rep.Completed)
	assert.Equal(t, []string{"b"}, rep.Skipped)
	assert.Equal(t, []string{"c is slow"}, rep.Warnings)
	assert.Equal(t, []string{"a=ok", "b=skipped", "c=warned", "d=ok"}, obs.outcomes)
	assert.Equal(t, []string{"c is slow"}, obs.warnings)
}

func TestSequencerFailFastStops(t *testing.T) {
	var ran []string
	boom := errors.New("boom")
	seq := &Sequencer{
		Steps: []Step{
			step("a", FailFast, nil, &ran),
			step("b", FailFast, boom, &ran),
			step("c", SoftFail, nil, &ran),
		},
		Log: zerolog.Nop(),
	}
	rep, err := seq.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "b", se.Step)
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, []string{"a"}, rep.Completed)
}

func TestSequencerDumpsGateLogs(t *testing.T) {
	var ran []string
	var diag bytes.Buffer
	gerr := &gate.ServiceTerminatedError{Service: "db", Status: "exited", Logs: "FATAL: bad password\n"}
	seq := &Sequencer{
		Steps: []Step{step("infra", FailFast, gerr, &ran)},
		Log:   zerolog.Nop(),
		Diag:  &diag,
	}
	_, err := seq.Run(context.Background())
	require.Error(t, err)
	assert.True(t, gate.IsTerminated(err))
	assert.Contains(t, diag.String(), "FATAL: bad password")
	assert.Contains(t, diag.String(), "recent logs (infra)")
}

func TestSequencerSoftFailSplitsJoinedErrors(t *testing.T) {
	var ran []string
	seq := &Sequencer{
		Steps: []Step{step("http", SoftFail, errors.Join(errors.New("api down"), errors.New("ui down")), &ran)},
		Log:   zerolog.Nop(),
	}
	rep, err := seq.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"api down", "ui down"}, rep.Warnings)
}

func TestSequencerSoftFailAbortsWhenInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	seq := &Sequencer{
		Steps: []Step{{Name: "http", Policy: SoftFail, Run: func(ctx context.Context) error { return ctx.Err() }}},
		Log:   zerolog.Nop(),
	}
	_, err := seq.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
