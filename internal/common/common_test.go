package common

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newIdem(t *testing.T) (Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Idem{R: client, TTL: time.Minute}, mr
}

func TestIdemReplaysCompletedResponse(t *testing.T) {
	idem, _ := newIdem(t)
	var calls int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		JSON(w, http.StatusCreated, map[string]any{"call": n})
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
		req.Header.Set("Idempotency-Key", "abc")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)
	second := send()
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	idem, _ := newIdem(t)
	var calls int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "try again", nil)
			return
		}
		JSON(w, http.StatusCreated, map[string]any{"ok": true})
	}))

	for _, want := range []int{http.StatusServiceUnavailable, http.StatusCreated} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
		req.Header.Set("Idempotency-Key", "retry-me")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, want, rr.Code)
	}
}

func TestIdemInFlightConflict(t *testing.T) {
	idem, mr := newIdem(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	req.Header.Set("Idempotency-Key", "busy")
	require.NoError(t, mr.Set(idem.key(req, "busy"), idemPending))

	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for an in-flight key")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "IDEMPOTENT_IN_PROGRESS")
}

func TestIdemScopesKeysPerCaller(t *testing.T) {
	idem, _ := newIdem(t)
	idem.Scope = func(r *http.Request) string { return r.Header.Get("X-User-ID") }
	var calls int32
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		JSON(w, http.StatusOK, map[string]any{})
	}))
	for _, user := range []string{"u1", "u2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
		req.Header.Set("Idempotency-Key", "same")
		req.Header.Set("X-User-ID", user)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestTrustedUserCopiesHeader(t *testing.T) {
	var seen string
	var present bool
	h := TrustedUser("X-Gateway-User")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, present = UserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Gateway-User", " user-7 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, present)
	require.Equal(t, "user-7", seen)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.False(t, present)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4242"
	require.Equal(t, "10.0.0.5", ClientIP(req))
	req.Header.Set("X-Forwarded-For", "198.51.100.3, 10.0.0.5")
	require.Equal(t, "198.51.100.3", ClientIP(req))
}
