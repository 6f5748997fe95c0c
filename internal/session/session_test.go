package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shahidirfan100/Google-Trends-Scraper/internal/fingerprint"
	"github.com/shahidirfan100/Google-Trends-Scraper/pkg/useragent"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(Config{Fingerprint: fingerprint.ProfileGo})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSession_SetsBrowserHeaders(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	s := newTestSession(t)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	res, err := s.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", res.StatusCode)
	}
	if string(res.Body) != "ok" {
		t.Errorf("expected full body read, got %q", res.Body)
	}

	if ua := got.Get("User-Agent"); ua == "" || !strings.Contains(ua, "Mozilla") {
		t.Errorf("expected browser User-Agent, got %q", ua)
	}
	if accept := got.Get("Accept"); !strings.Contains(accept, "application/json") {
		t.Errorf("expected JSON accept header, got %q", accept)
	}
	if lang := got.Get("Accept-Language"); lang == "" {
		t.Error("expected Accept-Language header")
	}
	if ref := got.Get("Referer"); !strings.Contains(ref, "trends.google.com") {
		t.Errorf("expected explore page referer, got %q", ref)
	}
}

func TestSession_CookiesPersistAcrossRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("NID"); err != nil {
			http.SetCookie(w, &http.Cookie{Name: "NID", Value: "abc123"})
			w.Write([]byte("first"))
			return
		}
		w.Write([]byte("returning"))
	}))
	defer server.Close()

	s := newTestSession(t)
	for i, want := range []string{"first", "returning", "returning"} {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		res, err := s.Do(context.Background(), req)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		if string(res.Body) != want {
			t.Errorf("request %d: expected body %q, got %q", i, want, res.Body)
		}
	}
}

func TestSession_NonOKStatusIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("<html>blocked</html>"))
	}))
	defer server.Close()

	s := newTestSession(t)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	res, err := s.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("status classification belongs to the transport, Do must not fail: %v", err)
	}
	if res.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", res.StatusCode)
	}
}

func TestSession_UserAgentRotatesSequentially(t *testing.T) {
	var agents []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	pool := useragent.NewPool([]string{"ua-one", "ua-two"})
	s, err := New(Config{Fingerprint: fingerprint.ProfileGo, UAPool: pool})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
		if _, err := s.Do(context.Background(), req); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	want := []string{"ua-one", "ua-two", "ua-one"}
	for i := range want {
		if agents[i] != want[i] {
			t.Errorf("request %d: expected UA %q, got %q", i, want[i], agents[i])
		}
	}
}

func TestSession_WarmToleratesClientErrors(t *testing.T) {
	// Warm targets the real explore URL, so only the status handling is
	// covered here through Do against a local server.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := newTestSession(t)
	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	res, err := s.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if res.StatusCode < 500 {
		t.Fatalf("expected server error status, got %d", res.StatusCode)
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	s, err := New(Config{Fingerprint: fingerprint.ProfileGo})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if s.config.Timeout == 0 {
		t.Error("expected default timeout")
	}
	if s.config.UAPool == nil {
		t.Error("expected default user agent pool")
	}
	if s.config.Language == "" {
		t.Error("expected default Accept-Language")
	}
}

func TestNew_UnknownFingerprintRejected(t *testing.T) {
	if _, err := New(Config{Fingerprint: "netscape"}); err == nil {
		t.Fatal("expected error for unknown fingerprint profile")
	}
}
