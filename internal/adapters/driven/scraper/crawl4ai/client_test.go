package crawl4ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docvector/internal/core/domain"
)

// fakeBackend scripts the crawl endpoints for one job.
type fakeBackend struct {
	t *testing.T

	taskID string
	// statuses are served in order; the last one repeats.
	statuses []statusResponse

	polls       atomic.Int32
	maxTasks    int
	healthCalls atomic.Int32
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		b.healthCalls.Add(1)
		writeJSON(b.t, w, healthResponse{Status: "ok", MaxConcurrentTasks: b.maxTasks})
	})
	mux.HandleFunc("POST /crawl", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&payload))
		require.NotEmpty(b.t, payload["urls"])
		writeJSON(b.t, w, submitResponse{TaskID: b.taskID})
	})
	mux.HandleFunc("GET /task/", func(w http.ResponseWriter, _ *http.Request) {
		i := int(b.polls.Add(1)) - 1
		if i >= len(b.statuses) {
			i = len(b.statuses) - 1
		}
		writeJSON(b.t, w, b.statuses[i])
	})
	return mux
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	backend.t = t
	if backend.taskID == "" {
		backend.taskID = "task-1"
	}
	if backend.maxTasks == 0 {
		backend.maxTasks = 4
	}
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	return New(Config{
		BaseURL:      server.URL,
		PollInterval: time.Millisecond,
	})
}

func TestClient_CheckHealth(t *testing.T) {
	client := newTestClient(t, &fakeBackend{maxTasks: 7})

	health, err := client.CheckHealth(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 7, health.MaxConcurrentJobs)
}

func TestClient_CheckHealth_BackendDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	client := New(Config{BaseURL: server.URL})

	_, err := client.CheckHealth(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBackendUnreachable)
}

func TestClient_SubmitAndAwait_Completes(t *testing.T) {
	lastModified := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{
		statuses: []statusResponse{
			{Status: statusPending},
			{Status: statusProcessing},
			{Status: statusCompleted, Result: &resultPayload{
				URL:          "https://docs.example.com/a",
				Title:        "Page A",
				Markdown:     "# Page A",
				HTML:         "<h1>Page A</h1>",
				LastModified: lastModified.Format(time.RFC3339),
				Metadata:     map[string]any{"depth": float64(1)},
			}},
		},
	}
	client := newTestClient(t, backend)

	result, err := client.SubmitAndAwait(context.Background(),
		[]string{"https://docs.example.com/a"}, nil, time.Second)

	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.com/a", result.URL)
	assert.Equal(t, "Page A", result.Title)
	assert.Equal(t, "# Page A", result.Content, "markdown wins over raw html")
	require.NotNil(t, result.LastModified)
	assert.True(t, result.LastModified.Equal(lastModified))
	assert.Equal(t, float64(1), result.Metadata["depth"])
	assert.GreaterOrEqual(t, backend.polls.Load(), int32(3))
}

func TestClient_SubmitAndAwait_HTMLFallback(t *testing.T) {
	backend := &fakeBackend{
		statuses: []statusResponse{
			{Status: statusCompleted, Result: &resultPayload{
				URL:  "https://docs.example.com/a",
				HTML: "<p>raw</p>",
			}},
		},
	}
	client := newTestClient(t, backend)

	result, err := client.SubmitAndAwait(context.Background(),
		[]string{"https://docs.example.com/a"}, nil, time.Second)

	require.NoError(t, err)
	assert.Equal(t, "<p>raw</p>", result.Content)
	assert.Nil(t, result.LastModified)
}

func TestClient_SubmitAndAwait_HTTPDateLastModified(t *testing.T) {
	backend := &fakeBackend{
		statuses: []statusResponse{
			{Status: statusCompleted, Result: &resultPayload{
				URL:          "https://docs.example.com/a",
				Markdown:     "body",
				LastModified: "Sun, 15 Mar 2026 12:00:00 GMT",
			}},
		},
	}
	client := newTestClient(t, backend)

	result, err := client.SubmitAndAwait(context.Background(),
		[]string{"https://docs.example.com/a"}, nil, time.Second)

	require.NoError(t, err)
	require.NotNil(t, result.LastModified)
	assert.Equal(t, 2026, result.LastModified.Year())
}

func TestClient_SubmitAndAwait_JobFailed(t *testing.T) {
	backend := &fakeBackend{
		statuses: []statusResponse{
			{Status: statusProcessing},
			{Status: statusFailed, Error: "render crashed"},
		},
	}
	client := newTestClient(t, backend)

	_, err := client.SubmitAndAwait(context.Background(),
		[]string{"https://docs.example.com/a"}, nil, time.Second)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrJobFailed)
	var jobErr *JobError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "task-1", jobErr.JobID)
	assert.Contains(t, jobErr.Detail, "render crashed")
}

func TestClient_SubmitAndAwait_Timeout(t *testing.T) {
	backend := &fakeBackend{
		statuses: []statusResponse{{Status: statusProcessing}},
	}
	client := newTestClient(t, backend)

	_, err := client.SubmitAndAwait(context.Background(),
		[]string{"https://docs.example.com/a"}, nil, 20*time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrJobTimeout)
}

func TestClient_Submit_RequiresURLs(t *testing.T) {
	client := newTestClient(t, &fakeBackend{})

	_, err := client.Submit(context.Background(), nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClient_Submit_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			writeJSON(t, w, healthResponse{Status: "ok", MaxConcurrentTasks: 2})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail": "queue full"}`))
	}))
	t.Cleanup(server.Close)
	client := New(Config{BaseURL: server.URL})

	_, err := client.Submit(context.Background(), []string{"https://docs.example.com/a"}, nil)

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "queue full", apiErr.Message)
}

func TestClient_Submit_PermitLimitsConcurrency(t *testing.T) {
	backend := &fakeBackend{
		statuses: []statusResponse{
			{Status: statusCompleted, Result: &resultPayload{
				URL:      "https://docs.example.com/a",
				Markdown: "body",
			}},
		},
	}
	backend.t = t
	backend.taskID = "task-1"
	backend.maxTasks = 4
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	client := New(Config{
		BaseURL:           server.URL,
		PollInterval:      time.Millisecond,
		MaxConcurrentJobs: 1,
	})

	jobID, err := client.Submit(context.Background(), []string{"https://docs.example.com/a"}, nil)
	require.NoError(t, err)

	// With the single permit held, a second submission must block.
	blocked, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Submit(blocked, []string{"https://docs.example.com/b"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// AwaitResult releases the permit at its terminal state.
	_, err = client.AwaitResult(context.Background(), jobID, time.Second, 0)
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), []string{"https://docs.example.com/b"}, nil)
	require.NoError(t, err)
}

func TestClient_Submit_SeedsPermitsFromHealthProbe(t *testing.T) {
	backend := &fakeBackend{
		maxTasks: 3,
		statuses: []statusResponse{
			{Status: statusCompleted, Result: &resultPayload{
				URL:      "https://docs.example.com/a",
				Markdown: "body",
			}},
		},
	}
	client := newTestClient(t, backend)

	_, err := client.Submit(context.Background(), []string{"https://docs.example.com/a"}, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), backend.healthCalls.Load())
	assert.Equal(t, 3, cap(client.permits))
}

func TestClient_Submit_DefaultsToOnePermitWhenProbeFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			http.Error(w, `{"detail": "no health here"}`, http.StatusNotFound)
			return
		}
		writeJSON(t, w, submitResponse{TaskID: "task-1"})
	}))
	t.Cleanup(server.Close)
	client := New(Config{BaseURL: server.URL})

	_, err := client.Submit(context.Background(), []string{"https://docs.example.com/a"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, cap(client.permits))
}

func TestClient_AwaitResult_UnknownJobStateFails(t *testing.T) {
	backend := &fakeBackend{
		statuses: []statusResponse{{Status: "exploded"}},
	}
	client := newTestClient(t, backend)

	_, err := client.SubmitAndAwait(context.Background(),
		[]string{"https://docs.example.com/a"}, nil, time.Second)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected job status")
}

func TestClient_AwaitResult_CompletedWithoutResult(t *testing.T) {
	backend := &fakeBackend{
		statuses: []statusResponse{{Status: statusCompleted}},
	}
	client := newTestClient(t, backend)

	_, err := client.SubmitAndAwait(context.Background(),
		[]string{"https://docs.example.com/a"}, nil, time.Second)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a result payload")
}

func TestClient_ReleasePermitIsIdempotent(t *testing.T) {
	backend := &fakeBackend{
		statuses: []statusResponse{
			{Status: statusCompleted, Result: &resultPayload{
				URL:      "https://docs.example.com/a",
				Markdown: "body",
			}},
		},
	}
	backend.t = t
	backend.taskID = "task-1"
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)
	client := New(Config{
		BaseURL:           server.URL,
		PollInterval:      time.Millisecond,
		MaxConcurrentJobs: 1,
	})

	jobID, err := client.Submit(context.Background(), []string{"https://docs.example.com/a"}, nil)
	require.NoError(t, err)

	_, err = client.AwaitResult(context.Background(), jobID, time.Second, 0)
	require.NoError(t, err)

	// A second release for the same job must not over-drain the permit set.
	client.releasePermit(jobID)
	assert.Empty(t, client.permits)

	var submitted atomic.Int32
	done := make(chan error, 1)
	go func() {
		_, err := client.Submit(context.Background(), []string{"https://docs.example.com/b"}, nil)
		submitted.Add(1)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("submit blocked after permit release")
	}
	assert.Equal(t, int32(1), submitted.Load())
}

func TestStateFromStatus(t *testing.T) {
	tests := []struct {
		status string
		want   domain.JobState
	}{
		{statusPending, domain.JobSubmitted},
		{statusProcessing, domain.JobRunning},
		{statusCompleted, domain.JobSucceeded},
		{statusFailed, domain.JobFailed},
	}
	for _, tt := range tests {
		state, err := stateFromStatus(tt.status)
		require.NoError(t, err)
		assert.Equal(t, tt.want, state)
	}

	_, err := stateFromStatus("unknown")
	assert.Error(t, err)
}

func TestClient_BearerTokenIsSent(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		writeJSON(t, w, healthResponse{Status: "ok", MaxConcurrentTasks: 1})
	}))
	t.Cleanup(server.Close)
	client := New(Config{BaseURL: server.URL, APIToken: "secret-token"})

	_, err := client.CheckHealth(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth.Load())
}

func TestAPIError_IsNotJobFailed(t *testing.T) {
	err := error(&APIError{StatusCode: 503, Message: "down"})

	assert.False(t, errors.Is(err, domain.ErrJobFailed))
	assert.Contains(t, err.Error(), "503")
}
