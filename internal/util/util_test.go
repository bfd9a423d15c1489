package util

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

func TestRobotsChecker_DisallowAndCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			_, _ = fmt.Fprint(w, "User-agent: Veracity\nDisallow: /private\nCrawl-delay: 2\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "Veracity/0.1 (+https://example.com)", time.Minute)
	ctx := context.Background()

	allowed, delay := checker.CanFetch(ctx, server.URL+"/public/page")
	if !allowed {
		t.Error("Expected /public/page to be allowed")
	}
	if delay != 2*time.Second {
		t.Errorf("Expected crawl delay 2s, got %v", delay)
	}

	if allowed, _ := checker.CanFetch(ctx, server.URL+"/private/doc"); allowed {
		t.Error("Expected /private/doc to be disallowed")
	}

	if hits.Load() != 1 {
		t.Errorf("Expected robots.txt fetched once, got %d", hits.Load())
	}
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "Veracity", time.Minute)
	if allowed, _ := checker.CanFetch(context.Background(), server.URL+"/anything"); !allowed {
		t.Error("Expected fetch to be allowed without robots.txt")
	}
}

func TestNewProxyFunc_NoProxy(t *testing.T) {
	proxy := NewProxyFunc("http://proxy.local:3128", "", "internal.example, .corp")

	tests := []struct {
		target string
		direct bool
	}{
		{"http://api.internal.example/x", true},
		{"http://host.corp/x", true},
		{"http://public.example.com/x", false},
	}

	for _, tt := range tests {
		u, _ := url.Parse(tt.target)
		got, err := proxy(&http.Request{URL: u})
		if err != nil {
			t.Fatalf("proxy(%s): %v", tt.target, err)
		}
		if tt.direct && got != nil {
			t.Errorf("Expected %s to bypass proxy, got %v", tt.target, got)
		}
		if !tt.direct && (got == nil || got.Host != "proxy.local:3128") {
			t.Errorf("Expected %s to use proxy, got %v", tt.target, got)
		}
	}
}

func TestNewHTTPClient_RedirectLimit(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	cfg := model.DefaultConfig().HTTP
	cfg.MaxRedirects = 2
	client := NewHTTPClient(cfg)

	resp, err := client.Get(server.URL + "/")
	if err == nil {
		_ = resp.Body.Close()
		t.Fatal("Expected redirect limit error")
	}
}
