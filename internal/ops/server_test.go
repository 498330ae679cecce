package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	logx "gatebot/pkg/logx"
)

func TestHandlerAuthAndRoutes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "ops_test_total", Help: "x"})
	reg.MustRegister(c)
	c.Inc()

	s := New(Config{}, reg, nil, logx.Nop())
	h := s.Handler(Config{Token: "sekret"})

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no token", "/healthz", "", http.StatusUnauthorized},
		{"query token", "/healthz?token=sekret", "", http.StatusOK},
		{"bad query token", "/healthz?token=nope", "Bearer sekret", http.StatusUnauthorized},
		{"bearer", "/metrics", "Bearer sekret", http.StatusOK},
		{"pprof off", "/debug/pprof/", "Bearer sekret", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, tc.want, rec.Code, tc.name)
		if tc.path == "/metrics" {
			require.Contains(t, rec.Body.String(), "ops_test_total 1")
		}
	}
}

func TestHealthzDegraded(t *testing.T) {
	t.Parallel()

	s := New(Config{}, nil, func(context.Context) (map[string]any, error) {
		return map[string]any{"db": "down"}, errors.New("ping failed")
	}, logx.Nop())

	rec := httptest.NewRecorder()
	s.Handler(Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"db":"down"`)
	require.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.1:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		require.Equal(t, want, isLoopbackAddr(in), in)
	}
}
