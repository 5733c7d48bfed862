package scrape

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestLoader_Stdin verifies stdin input is read and returned as string.
//
// This is the mode the extract command uses when piping HTML from a dump.
func TestLoader_Stdin(t *testing.T) {
	t.Parallel()

	l := NewLoader(http.DefaultClient, 1*time.Second, "")
	html, err := l.Load(context.Background(), Input{
		Stdin: bytes.NewBufferString("<p>x</p>"),
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if html != "<p>x</p>" {
		t.Fatalf("unexpected html: %q", html)
	}
}

// TestLoader_URL_Non2xx verifies we include status code and a body snippet.
// This dramatically improves debuggability when scraping.
func TestLoader_URL_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(&http.Client{Timeout: 2 * time.Second}, 2*time.Second, "")
	_, err := l.Load(context.Background(), Input{URL: srv.URL})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "http status 403") || !strings.Contains(msg, "nope") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestLoader_URL_UserAgent verifies the configured User-Agent header reaches
// the server, and that an empty configuration falls back to the default.
func TestLoader_URL_UserAgent(t *testing.T) {
	t.Parallel()

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Write([]byte("<p>ok</p>"))
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(srv.Client(), 2*time.Second, "custom-agent/2.0")
	if _, err := l.Load(context.Background(), Input{URL: srv.URL}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "custom-agent/2.0" {
		t.Fatalf("expected custom User-Agent, got %q", got)
	}

	l = NewLoader(srv.Client(), 2*time.Second, "   ")
	if _, err := l.Load(context.Background(), Input{URL: srv.URL}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != defaultUserAgent {
		t.Fatalf("expected default User-Agent, got %q", got)
	}
}

// TestLoader_URL_Charset verifies non-UTF-8 pages are converted using the
// response Content-Type, so accented street names survive.
func TestLoader_URL_Charset(t *testing.T) {
	t.Parallel()

	// "Töölönkatu" with ö as ISO-8859-1 byte 0xF6.
	latin1 := []byte{'T', 0xF6, 0xF6, 'l', 0xF6, 'n', 'k', 'a', 't', 'u'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write(latin1)
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(srv.Client(), 2*time.Second, "")
	html, err := l.Load(context.Background(), Input{URL: srv.URL})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if html != "Töölönkatu" {
		t.Fatalf("expected decoded UTF-8, got %q", html)
	}
}

// TestLoader_Timeout verifies a slow server fails within the configured
// timeout instead of hanging the batch.
func TestLoader_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	l := NewLoader(srv.Client(), 50*time.Millisecond, "")
	start := time.Now()
	_, err := l.Load(context.Background(), Input{URL: srv.URL})
	if err == nil {
		t.Fatalf("expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("load did not respect timeout, took %v", elapsed)
	}
}
