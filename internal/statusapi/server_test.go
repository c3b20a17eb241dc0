package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker(t *testing.T) {
	tr := NewTracker("run-1")
	tr.StepStarted("infra")
	assert.Equal(t, "infra", tr.Snapshot().Current)
	tr.StepFinished("infra", "ok", 3*time.Second, nil)
	tr.StepStarted("http")
	tr.StepFinished("http", "warned", time.Second, errors.New("ui not ready"))
	tr.Warn("ui not ready")
	tr.Finish(nil)

	s := tr.Snapshot()
	assert.True(t, s.Done)
	assert.Empty(t, s.Current)
	require.Len(t, s.Steps, 2)
	assert.Equal(t, 3.0, s.Steps[0].Seconds)
	assert.Equal(t, "ui not ready", s.Steps[1].Error)
	assert.Equal(t, []string{"ui not ready"}, s.Warnings)

	// snapshots do not alias internal state
	s.Warnings[0] = "changed"
	assert.Equal(t, "ui not ready", tr.Snapshot().Warnings[0])
}

func TestRouter(t *testing.T) {
	tr := NewTracker("run-2")
	tr.StepStarted("models")
	ts := httptest.NewServer(NewRouter(tr))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "run-2", st.RunID)
	assert.Equal(t, "models", st.Current)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestStartShutdown(t *testing.T) {
	s, err := Start("127.0.0.1:0", NewTracker("run-3"), zerolog.Nop())
	require.NoError(t, err)
	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", s.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
