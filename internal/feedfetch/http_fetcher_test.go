package feedfetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/valpere/tiledeck/internal/config"
)

func testConfig(baseURL string) *config.Config {
	var cfg config.Config
	cfg.Server.BaseURL = baseURL
	cfg.Server.Timeout = 5 * time.Second
	cfg.Server.MaxRetries = 2
	return &cfg
}

func TestHTTPFetcherFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got == "" {
			t.Errorf("expected Accept header to be set")
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"z":1,"x":0,"y":0,"layers":{}}`))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(testConfig(server.URL))
	resp, err := fetcher.Fetch(NewRequest(server.URL))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if string(resp.Data) != `{"z":1,"x":0,"y":0,"layers":{}}` {
		t.Errorf("unexpected body: %s", resp.Data)
	}
}

func TestHTTPFetcherFetchWithRetryGivesUpOn4xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(testConfig(server.URL))
	_, err := fetcher.FetchWithRetry(NewRequest(server.URL))
	if err == nil {
		t.Fatalf("expected error for 404 response")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a 4xx response, got %d", attempts)
	}
}

func TestHTTPFetcherFetchWithRetryRetriesOn5xx(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Server.MaxRetries = 3
	fetcher := NewHTTPFetcher(cfg)
	resp, err := fetcher.FetchWithRetry(NewRequest(server.URL))
	if err != nil {
		t.Fatalf("FetchWithRetry: %v", err)
	}
	if string(resp.Data) != "ok" {
		t.Errorf("unexpected body: %s", resp.Data)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}
