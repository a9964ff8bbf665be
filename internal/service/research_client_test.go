package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *ResearchClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewResearchClient(&ResearchClientConfig{
		APIKey:          "test-key",
		BaseURL:         srv.URL,
		APIVersion:      "v1beta",
		Agent:           "test-agent",
		RequestTimeout:  timeout,
		GenerateTimeout: timeout,
	})
	require.NoError(t, err)
	return c
}

func TestNewResearchClient_RequiresAPIKey(t *testing.T) {
	_, err := NewResearchClient(&ResearchClientConfig{})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestResearchClient_CreateJob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/interactions", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body createInteractionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-agent", body.Agent)
		assert.Equal(t, "what is go?", body.Input)
		assert.True(t, body.Background)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"remote-1","status":"in_progress"}`))
	}, time.Second)

	id, err := c.CreateJob(context.Background(), "what is go?", JobConfig{})
	require.NoError(t, err)
	assert.Equal(t, "remote-1", id)
}

func TestResearchClient_CreateJob_ThinkingSummaries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body createInteractionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.NotNil(t, body.AgentConfig) {
			assert.Equal(t, "deep-research", body.AgentConfig.Type)
			assert.Equal(t, "auto", body.AgentConfig.ThinkingSummaries)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"remote-2","status":"in_progress"}`))
	}, time.Second)

	id, err := c.CreateJob(context.Background(), "q", JobConfig{ThinkingSummaries: true})
	require.NoError(t, err)
	assert.Equal(t, "remote-2", id)
}

func TestResearchClient_CreateJob_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"backend exploded"}}`))
	}, time.Second)

	_, err := c.CreateJob(context.Background(), "q", JobConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHTTP)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
	assert.Contains(t, te.Error(), "backend exploded")
}

func TestResearchClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := c.GetJobStatus(context.Background(), "remote-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrDeadlineExceeded)
}

func TestResearchClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewResearchClient(&ResearchClientConfig{APIKey: "k", BaseURL: url, RequestTimeout: time.Second})
	require.NoError(t, err)

	_, err = c.CreateJob(context.Background(), "q", JobConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestResearchClient_GetJobStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1beta/interactions/remote-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "remote-1",
			"status": "completed",
			"outputs": [
				{"type": "thought", "text": "hidden"},
				{"type": "text", "text": "part one"},
				{"type": "text", "text": "part two"}
			],
			"sources": [{"title": "Go", "url": "https://go.dev", "snippet": "The Go language"}]
		}`))
	}, time.Second)

	st, err := c.GetJobStatus(context.Background(), "remote-1")
	require.NoError(t, err)
	assert.Equal(t, RemoteCompleted, st.State)
	assert.Equal(t, []string{"part one", "part two"}, st.Outputs)
	require.Len(t, st.Sources, 1)
	assert.Equal(t, "https://go.dev", st.Sources[0].URL)
}

func TestResearchClient_CancelJob(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{name: "accepted", status: http.StatusOK, want: true},
		{name: "rejected", status: http.StatusConflict, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1beta/interactions/remote-1:cancel", r.URL.Path)
				w.WriteHeader(tt.status)
			}, time.Second)

			assert.Equal(t, tt.want, c.CancelJob(context.Background(), "remote-1"))
		})
	}

	t.Run("no remote id", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		}, time.Second)
		assert.False(t, c.CancelJob(context.Background(), ""))
	})
}

func TestResearchClient_GenerateOnce_SeparatesThoughts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/refiner:generateContent", r.URL.Path)

		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.GenerationConfig.ThinkingConfig.IncludeThoughts)
		if assert.NotNil(t, body.GenerationConfig.Temperature) {
			assert.InDelta(t, 0.2, *body.GenerationConfig.Temperature, 1e-9)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[
			{"text":"let me think","thought":true},
			{"text":"final "},
			{"text":"answer"}
		]}}]}`))
	}, time.Second)

	temp := 0.2
	gen, err := c.GenerateOnce(context.Background(), "improve", GenerateOptions{Model: "refiner", Temperature: &temp})
	require.NoError(t, err)
	assert.Equal(t, "final answer", gen.Answer)
	assert.Equal(t, "let me think", gen.Thoughts)
}

func TestParseRemoteState(t *testing.T) {
	assert.Equal(t, RemoteCompleted, parseRemoteState("COMPLETED"))
	assert.Equal(t, RemoteFailed, parseRemoteState("failed"))
	assert.Equal(t, RemoteCancelled, parseRemoteState("canceled"))
	assert.Equal(t, RemoteInProgress, parseRemoteState("something-new"))
}
