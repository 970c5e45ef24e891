package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReporter struct {
	state   string
	current string
}

func (f *fakeReporter) State() (string, string) {
	return f.state, f.current
}

func TestStatusEndpoint(t *testing.T) {
	srv := NewServer(0, &fakeReporter{state: "mining", current: "https://museum.example"}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "mining", body["status"])
	assert.Equal(t, "https://museum.example", body["current_source"])
}

func TestStatusIdle(t *testing.T) {
	srv := NewServer(0, &fakeReporter{state: "idle"}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "idle", body["status"])
	assert.Empty(t, body["current_source"])
}

func TestHealthz(t *testing.T) {
	srv := NewServer(0, &fakeReporter{}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
