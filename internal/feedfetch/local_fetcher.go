// internal/feedfetch/local_fetcher.go - Local file feed fetching
package feedfetch

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valpere/tiledeck/internal"
	"github.com/valpere/tiledeck/internal/config"
)

// LocalFetcher implements Fetcher by reading the feed document from
// the local file system.
type LocalFetcher struct {
	config *config.LocalConfig
}

// NewLocalFetcher creates a new local file feed fetcher.
func NewLocalFetcher(cfg *config.Config) *LocalFetcher {
	return &LocalFetcher{config: &cfg.Local}
}

// Fetch reads the feed document from the local file system, gzip
// fully-decompressing it when its name indicates a compressed file.
func (f *LocalFetcher) Fetch(request *Request) (*Response, error) {
	start := time.Now()

	filePath, err := f.resolvePath(request)
	if err != nil {
		return &Response{Request: request, Error: internal.NewError(internal.ErrorCodeValidation, "failed to resolve file path", err)}, err
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			notFoundErr := internal.NewError(internal.ErrorCodeNotFound, fmt.Sprintf("feed file not found: %s", filePath), err)
			return &Response{Request: request, FetchTime: time.Since(start), Error: notFoundErr}, notFoundErr
		}
		accessErr := internal.NewError(internal.ErrorCodeFileSystem, fmt.Sprintf("cannot access feed file: %s", filePath), err)
		return &Response{Request: request, FetchTime: time.Since(start), Error: accessErr}, accessErr
	}

	if !fileInfo.Mode().IsRegular() {
		typeErr := internal.NewError(internal.ErrorCodeValidation, fmt.Sprintf("path is not a regular file: %s", filePath), nil)
		return &Response{Request: request, FetchTime: time.Since(start), Error: typeErr}, typeErr
	}

	file, err := os.Open(filePath)
	if err != nil {
		openErr := internal.NewError(internal.ErrorCodeFileSystem, fmt.Sprintf("failed to open feed file: %s", filePath), err)
		return &Response{Request: request, FetchTime: time.Since(start), Error: openErr}, openErr
	}
	defer file.Close()

	var reader io.Reader = file
	compressed := isCompressedFile(filePath)
	if compressed {
		gzipReader, err := gzip.NewReader(file)
		if err != nil {
			compressErr := internal.NewError(internal.ErrorCodeProcessing, fmt.Sprintf("failed to create gzip reader for: %s", filePath), err)
			return &Response{Request: request, FetchTime: time.Since(start), Error: compressErr}, compressErr
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		readErr := internal.NewError(internal.ErrorCodeFileSystem, fmt.Sprintf("failed to read feed file: %s", filePath), err)
		return &Response{Request: request, FetchTime: time.Since(start), Error: readErr}, readErr
	}

	response := &Response{
		Request:    request,
		Data:       data,
		StatusCode: 200,
		Size:       len(data),
		FetchTime:  time.Since(start),
	}
	response.Headers = make(map[string][]string)
	response.Headers["Content-Type"] = []string{"application/x-ndjson"}
	response.Headers["Content-Length"] = []string{fmt.Sprintf("%d", len(data))}
	if compressed {
		response.Headers["Content-Encoding"] = []string{"gzip"}
	}

	return response, nil
}

// FetchWithRetry retries Fetch a few times in case of a transient file
// system issue, implemented mainly for interface consistency with
// HTTPFetcher.
func (f *LocalFetcher) FetchWithRetry(request *Request) (*Response, error) {
	const maxRetries = 3
	var lastResponse *Response
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt*100) * time.Millisecond)
		}

		attempts++
		response, err := f.Fetch(request)
		if err == nil {
			return response, nil
		}

		lastResponse = response
		lastErr = err

		if !shouldRetryLocal(err) {
			break
		}
	}

	return lastResponse, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// resolvePath treats an absolute request URL as a direct path and a
// relative one as relative to the configured base path.
func (f *LocalFetcher) resolvePath(request *Request) (string, error) {
	if request.URL == "" {
		return "", fmt.Errorf("feed request requires a file path")
	}
	if filepath.IsAbs(request.URL) {
		return request.URL, nil
	}
	return filepath.Join(f.config.BasePath, request.URL), nil
}

func isCompressedFile(filePath string) bool {
	return strings.HasSuffix(strings.ToLower(filePath), ".gz")
}

func shouldRetryLocal(err error) bool {
	if appErr, ok := err.(*internal.Error); ok {
		switch appErr.Code {
		case internal.ErrorCodeNotFound, internal.ErrorCodePermission, internal.ErrorCodeValidation:
			return false
		}
	}
	return true
}
