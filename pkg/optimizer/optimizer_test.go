package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ergbridge/ergbridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(ts *httptest.Server) *HTTPClient {
	return &HTTPClient{
		client:  ts.Client(),
		baseURL: ts.URL,
		token:   "secret",
	}
}

func TestSchedule(t *testing.T) {
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/schedule", r.URL.Path)
		require.Equal(t, "POST", r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req types.ScheduleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Boxes, 1)
		assert.Equal(t, "switch.pool_pump", req.Boxes[0].Entity)

		json.NewEncoder(w).Encode(types.ScheduleResponse{
			Assignments: []types.Assignment{{
				Entity:         "switch.pool_pump",
				Slots:          []time.Time{start},
				RunTimeSeconds: 300,
			}},
		})
	}))
	defer ts.Close()

	c := testClient(ts)
	resp, err := c.Schedule(context.Background(), types.ScheduleRequest{
		Boxes: []types.PowerBox{{Entity: "switch.pool_pump", Start: start}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Assignments, 1)
	assert.Equal(t, 300.0, resp.Assignments[0].RunTimeSeconds)
}

func TestScheduleClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "unbounded problem"})
	}))
	defer ts.Close()

	c := testClient(ts)
	_, err := c.Schedule(context.Background(), types.ScheduleRequest{})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "unbounded problem", apiErr.Message)
	assert.Equal(t, int64(1), calls.Load(), "4xx is permanent")
}

func TestScheduleServerErrorRetried(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		// the retried request must carry the body again
		var req types.ScheduleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Boxes, 1)
		json.NewEncoder(w).Encode(types.ScheduleResponse{})
	}))
	defer ts.Close()

	c := testClient(ts)
	_, err := c.Schedule(context.Background(), types.ScheduleRequest{
		Boxes: []types.PowerBox{{Entity: "switch.pool_pump"}},
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, calls.Load(), int64(2))
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v1/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer ts.Close()

		assert.NoError(t, testClient(ts).Health(context.Background()))
	})

	t.Run("not found", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}))
		defer ts.Close()

		err := testClient(ts).Health(context.Background())
		require.Error(t, err)
		var apiErr *APIError
		assert.True(t, errors.As(err, &apiErr))
	})
}
