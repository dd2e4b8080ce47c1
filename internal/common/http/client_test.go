package http

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
)

type echo struct {
	Value string `json:"value"`
}

func TestClient_PostJSON(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int
		status    int
		body      string
		wantCalls int32
		wantErr   bool
		wantCode  int
	}{
		{name: "first try", status: http.StatusOK, wantCalls: 1},
		{name: "recovers after retry", failFirst: 1, status: http.StatusOK, wantCalls: 2},
		{name: "gives up", failFirst: 5, status: http.StatusOK, wantCalls: 3, wantErr: true, wantCode: http.StatusServiceUnavailable},
		{name: "malformed body is not retried", status: http.StatusOK, body: "{", wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				if int(n) <= tt.failFirst {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				if tt.body != "" {
					_, _ = w.Write([]byte(tt.body))
					return
				}
				var in echo
				require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
				_ = json.NewEncoder(w).Encode(in)
			}))
			defer server.Close()

			var retries []int
			c := NewClient(time.Second,
				WithRetries(2, time.Millisecond),
				WithRetryHook(func(attempt int, err error) { retries = append(retries, attempt) }))

			var out echo
			err := c.PostJSON(context.Background(), server.URL, echo{Value: "hello"}, &out)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
			if tt.wantErr {
				require.Error(t, err)
				if tt.wantCode != 0 {
					var se *StatusError
					require.True(t, errors.As(err, &se))
					assert.Equal(t, tt.wantCode, se.Code)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "hello", out.Value)
			assert.Len(t, retries, int(tt.wantCalls)-1)
		})
	}
}

func TestClient_PostJSON_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(time.Second, WithRetries(10, 40*time.Millisecond))
	err := c.PostJSON(ctx, server.URL, echo{}, &echo{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
