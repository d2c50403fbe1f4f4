package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/riverwatch/internal/httpx"
	"github.com/riverwatch/riverwatch/internal/model"
)

func TestDoJSON_SucceedsOnFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := httpx.New(2*time.Second, 2, 10*time.Millisecond)
	var out struct{ OK bool `json:"ok"` }
	err := c.DoJSON(context.Background(), "test", http.MethodGet, srv.URL, nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestDoJSON_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := httpx.New(2*time.Second, 3, 5*time.Millisecond)
	var out struct{ OK bool `json:"ok"` }
	err := c.DoJSON(context.Background(), "test", http.MethodGet, srv.URL, nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDoJSON_4xxIsTerminalNoRetry(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := httpx.New(2*time.Second, 3, 5*time.Millisecond)
	err := c.DoJSON(context.Background(), "test", http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)
	var terminal model.ErrTerminalUpstream
	assert.True(t, errors.As(err, &terminal))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDoJSON_ExhaustsRetriesReturnsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := httpx.New(2*time.Second, 1, 2*time.Millisecond)
	err := c.DoJSON(context.Background(), "test", http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)
	var transient model.ErrTransientUpstream
	assert.True(t, errors.As(err, &transient))
}

func TestDoJSON_CancelledContextStopsRetryLoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := httpx.New(2*time.Second, 5, 50*time.Millisecond)
	err := c.DoJSON(ctx, "test", http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)
}
