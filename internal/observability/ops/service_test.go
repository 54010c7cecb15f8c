package ops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "finalword/pkg/logx"
)

func get(t *testing.T, url, token string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestServiceEnableDisable(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Pprof: true}, logx.Nop(),
		WithHealth(func(context.Context) error {
			if !healthy.Load() {
				return errors.New("store down")
			}
			return nil
		}),
		WithStatus(func() any { return map[string]int{"pending": 3} }),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)
	t.Cleanup(func() { s.Stop(context.Background()) })

	addr := s.Addr()
	if addr == "" {
		t.Fatal("expected ops server to expose address")
	}
	base := "http://" + addr

	if code, body := get(t, base+"/healthz", ""); code != http.StatusOK || body != "ok" {
		t.Fatalf("/healthz = %d %q", code, body)
	}
	healthy.Store(false)
	if code, _ := get(t, base+"/healthz", ""); code != http.StatusServiceUnavailable {
		t.Fatalf("/healthz unhealthy = %d", code)
	}
	if code, body := get(t, base+"/status", ""); code != http.StatusOK || !strings.Contains(body, `"pending": 3`) {
		t.Fatalf("/status = %d %q", code, body)
	}
	if code, _ := get(t, base+"/metrics", ""); code != http.StatusOK {
		t.Fatalf("/metrics = %d", code)
	}
	if code, _ := get(t, base+"/debug/pprof/", ""); code != http.StatusOK {
		t.Fatalf("/debug/pprof/ = %d", code)
	}

	s.Reconfigure(ctx, Config{Enabled: false})
	if s.Addr() != "" {
		t.Fatalf("expected listener to be closed")
	}
	if _, err := http.Get(base + "/healthz"); err == nil {
		t.Fatalf("expected connection error after disable")
	}
}

func TestTokenAuth(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "s3cret"}, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() { s.Stop(context.Background()) })
	base := "http://" + s.Addr()

	if code, _ := get(t, base+"/healthz", ""); code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", code)
	}
	if code, _ := get(t, base+"/healthz", "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d", code)
	}
	if code, _ := get(t, base+"/healthz", "s3cret"); code != http.StatusOK {
		t.Fatalf("bearer token = %d", code)
	}
	if code, _ := get(t, base+"/healthz?token=s3cret", ""); code != http.StatusOK {
		t.Fatalf("query token = %d", code)
	}
	// pprof is off unless enabled
	if code, _ := get(t, base+"/debug/pprof/", "s3cret"); code != http.StatusNotFound {
		t.Fatalf("pprof disabled = %d", code)
	}
}

func TestRefusesPublicBindWithoutToken(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())
	if s.Addr() != "" {
		t.Fatalf("server should not listen on a public address without a token")
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:9090": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9090":          false,
		"0.0.0.0:9090":   false,
		"10.0.0.1:9090":  false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackAddr(in); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", in, got, want)
		}
	}
}
