package transport

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aiproto/runtime/compiler"
)

func TestDoNonStreamingReadsFullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining-Requests", "42")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := New()
	req := &compiler.CompiledRequest{Method: http.MethodPost, URL: srv.URL, Headers: map[string]string{"Content-Type": "application/json"}, Body: []byte(`{}`)}

	resp, err := client.Do(context.Background(), req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Streaming {
		t.Fatalf("expected non-streaming response")
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining-Requests"); got != "42" {
		t.Fatalf("expected rate limit header to be preserved, got %q", got)
	}
}

func TestDoStreamingLeavesBodyOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: hello\n\n"))
	}))
	defer srv.Close()

	client := New()
	req := &compiler.CompiledRequest{Method: http.MethodPost, URL: srv.URL, Body: []byte(`{}`)}

	resp, err := client.Do(context.Background(), req, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Streaming || resp.Stream == nil {
		t.Fatalf("expected an open stream")
	}
	defer resp.Stream.Close()

	data, err := io.ReadAll(resp.Stream)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if string(data) != "data: hello\n\n" {
		t.Fatalf("unexpected stream contents: %q", data)
	}
}

func TestDoNonStreamingCapsBodySize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	client := New(WithMaxBodyBytes(10))
	req := &compiler.CompiledRequest{Method: http.MethodPost, URL: srv.URL, Body: []byte(`{}`)}

	resp, err := client.Do(context.Background(), req, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Body) != 10 {
		t.Fatalf("expected body capped at 10 bytes, got %d", len(resp.Body))
	}
}

func TestDoStreamingIdleTimeoutAbortsSilentProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: hello\n\n"))
		w.(http.Flusher).Flush()
		time.Sleep(2 * time.Second)
		w.Write([]byte("data: too-late\n\n"))
	}))
	defer srv.Close()

	client := New(WithStreamIdleTimeout(50 * time.Millisecond))
	req := &compiler.CompiledRequest{Method: http.MethodPost, URL: srv.URL, Body: []byte(`{}`)}

	resp, err := client.Do(context.Background(), req, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Stream.Close()

	reader := bufio.NewReader(resp.Stream)
	first, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading first chunk: %v", err)
	}
	if first != "data: hello\n" {
		t.Fatalf("unexpected first chunk: %q", first)
	}

	if _, err := reader.ReadString('\n'); err == nil {
		t.Fatalf("expected the idle timeout to abort the read before the provider's delayed second chunk")
	}
}

func TestDoStreamingHasNoOverallDurationCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < 4; i++ {
			w.Write([]byte("data: chunk\n\n"))
			flusher.Flush()
			time.Sleep(30 * time.Millisecond)
		}
	}))
	defer srv.Close()

	// A non-streaming deadline shorter than the stream's total runtime would
	// truncate it if applied; the streaming branch must ignore requestTimeout
	// entirely and bound only the gap between chunks.
	client := New(WithRequestTimeout(10*time.Millisecond), WithStreamIdleTimeout(200*time.Millisecond))
	req := &compiler.CompiledRequest{Method: http.MethodPost, URL: srv.URL, Body: []byte(`{}`)}

	resp, err := client.Do(context.Background(), req, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Stream.Close()

	data, err := io.ReadAll(resp.Stream)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if got := len(data); got == 0 {
		t.Fatalf("expected the full, slowly-delivered stream to be read, got %d bytes", got)
	}
}
