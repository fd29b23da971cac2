package resilience_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/munchies-pricing/internal/resilience"
)

func TestDoJSONRetriesServerErrorsAndReplaysBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"amount":"10.00"}` {
			http.Error(w, "body not replayed", http.StatusBadRequest)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cl := resilience.HTTPClient{
		Client:      srv.Client(),
		Target:      "test",
		BaseBackoff: time.Millisecond,
		MaxAttempts: 3,
	}
	var out struct {
		OK bool `json:"ok"`
	}
	err := cl.DoJSON(context.Background(), http.MethodPost, srv.URL, nil, map[string]string{"amount": "10.00"}, &out)
	require.NoError(t, err)
	require.True(t, out.OK)
	require.Equal(t, int32(3), calls.Load())
}

func TestDoJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	cl := resilience.HTTPClient{Client: srv.Client(), BaseBackoff: time.Millisecond, MaxAttempts: 3}
	err := cl.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	var statusErr *resilience.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestDoFailsFastWhenCircuitOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(1, 0.5, time.Hour)
	cl := resilience.HTTPClient{Client: srv.Client(), Breaker: breaker, BaseBackoff: time.Millisecond, MaxAttempts: 1}

	err := cl.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	require.Error(t, err)
	err = cl.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
}

func TestDoWithoutBreakerUsesEveryAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cl := resilience.HTTPClient{Client: srv.Client(), Target: "nobreaker", BaseBackoff: time.Millisecond, MaxAttempts: 4}
	err := cl.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	var statusErr *resilience.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	require.NotErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, int32(4), calls.Load())
}

func TestNilBreakerAlwaysAdmits(t *testing.T) {
	var breaker *resilience.Breaker
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.True(t, breaker.Allow(ctx))
		breaker.Report(ctx, false)
	}
}
