package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remoteAddr string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", nil)
	req.RemoteAddr = remoteAddr
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_AllowsUpToMax(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for i := range 3 {
		w := hit(h, "192.168.1.1:1234")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := hit(h, "192.168.1.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:2").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1").Code)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.take("k", start)
		require.True(t, ok)
	}
	_, _, ok := l.take("k", start.Add(30*time.Second))
	assert.False(t, ok, "window still full")

	// Halfway into the next window half of the previous count still applies.
	at := start.Add(90 * time.Second)
	for range 2 {
		_, _, ok = l.take("k", at)
		require.True(t, ok)
	}
	_, _, ok = l.take("k", at)
	assert.False(t, ok)

	// Two windows later nothing carries over.
	remaining, _, ok := l.take("k", start.Add(3*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Second})
	now := time.Now()
	l.take("old", now.Add(-5*time.Second))
	l.take("new", now)

	l.evict(now)
	assert.NotContains(t, l.windows, "old")
	assert.Contains(t, l.windows, "new")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		remote string
		want   string
	}{
		{name: "forwarded chain", header: http.Header{"X-Forwarded-For": {"1.1.1.1, 2.2.2.2"}}, remote: "3.3.3.3:1", want: "1.1.1.1"},
		{name: "real ip", header: http.Header{"X-Real-Ip": {"4.4.4.4"}}, remote: "3.3.3.3:1", want: "4.4.4.4"},
		{name: "peer", remote: "3.3.3.3:1", want: "3.3.3.3"},
		{name: "peer without port", remote: "pipe", want: "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header = tt.header
			if r.Header == nil {
				r.Header = http.Header{}
			}
			r.RemoteAddr = tt.remote
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestSessionOrIP(t *testing.T) {
	verify := func(r *http.Request) (string, bool) {
		c, err := r.Cookie("food-cart")
		if err != nil || !strings.HasPrefix(c.Value, "signed-") {
			return "", false
		}
		return strings.TrimPrefix(c.Value, "signed-"), true
	}
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: SessionOrIP(verify)})(okHandler())

	withCookie := func(v string) func(*http.Request) {
		return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "food-cart", Value: v}) }
	}

	// Two verified sessions behind one NAT address get separate budgets.
	assert.Equal(t, http.StatusOK, hit(h, "9.9.9.9:1", withCookie("signed-a")).Code)
	assert.Equal(t, http.StatusOK, hit(h, "9.9.9.9:1", withCookie("signed-b")).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "9.9.9.9:1", withCookie("signed-a")).Code)
	assert.Equal(t, http.StatusOK, hit(h, "9.9.9.9:1").Code)
}

func TestSessionOrIP_ForgedCookiesShareAddressBudget(t *testing.T) {
	reject := func(*http.Request) (string, bool) { return "", false }
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute, KeyFunc: SessionOrIP(reject)})(okHandler())

	allowed := 0
	for i := range 50 {
		forged := func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "food-cart", Value: "forged-" + strconv.Itoa(i)})
		}
		if hit(h, "7.7.7.7:1", forged).Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}
