// internal/feedfetch/http_fetcher.go - HTTP feed document fetching
package feedfetch

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/valpere/tiledeck/internal/config"
)

// HTTPFetcher implements Fetcher by retrieving the feed document over
// HTTP or HTTPS.
type HTTPFetcher struct {
	client *http.Client
	config *config.ServerConfig
}

// NewHTTPFetcher creates a new HTTP-based feed fetcher.
func NewHTTPFetcher(cfg *config.Config) *HTTPFetcher {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Network.MaxIdleConns,
		IdleConnTimeout:     cfg.Network.IdleConnTimeout,
		DisableKeepAlives:   cfg.Network.DisableKeepAlive,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if cfg.Network.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.Network.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{
		Timeout:   cfg.Server.Timeout,
		Transport: transport,
	}

	return &HTTPFetcher{
		client: client,
		config: &cfg.Server,
	}
}

// Fetch retrieves the feed document in a single attempt.
func (f *HTTPFetcher) Fetch(request *Request) (*Response, error) {
	start := time.Now()

	req, err := f.buildHTTPRequest(request)
	if err != nil {
		return &Response{Request: request, Error: fmt.Errorf("failed to build HTTP request: %w", err)}, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &Response{Request: request, FetchTime: time.Since(start),
			Error: fmt.Errorf("HTTP request failed: %w", err)}, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return &Response{Request: request, StatusCode: resp.StatusCode, Headers: resp.Header,
				FetchTime: time.Since(start), Error: fmt.Errorf("failed to create gzip reader: %w", err)}, err
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return &Response{Request: request, StatusCode: resp.StatusCode, Headers: resp.Header,
			FetchTime: time.Since(start), Error: fmt.Errorf("failed to read response body: %w", err)}, err
	}

	response := &Response{
		Request:    request,
		Data:       data,
		Headers:    resp.Header,
		StatusCode: resp.StatusCode,
		Size:       len(data),
		FetchTime:  time.Since(start),
	}

	if resp.StatusCode != http.StatusOK {
		response.Error = fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		return response, response.Error
	}

	return response, nil
}

// FetchWithRetry retries Fetch on transient failures, sleeping
// attempt² seconds before each retry (1s, 4s, 9s, ...).
func (f *HTTPFetcher) FetchWithRetry(request *Request) (*Response, error) {
	var lastResponse *Response
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}

		attempts++
		response, err := f.Fetch(request)
		if err == nil {
			return response, nil
		}

		lastResponse = response
		lastErr = err

		if !f.shouldRetry(response, err) {
			break
		}
	}

	return lastResponse, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (f *HTTPFetcher) buildHTTPRequest(req *Request) (*http.Request, error) {
	httpReq, err := http.NewRequest("GET", req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/x-ndjson, application/json")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate")
	httpReq.Header.Set("User-Agent", "tiledeck/1.0")

	if f.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+f.config.APIKey)
	}
	for key, value := range f.config.Headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

func (f *HTTPFetcher) shouldRetry(response *Response, err error) bool {
	if response == nil {
		return true
	}
	if response.StatusCode >= 400 && response.StatusCode < 500 {
		return false
	}
	if response.StatusCode >= 500 || response.StatusCode == 0 {
		return true
	}
	return false
}
