package utils

import (
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "github.com/fitlife/fitlife-sync/pkg/errors"
)

// maxErrorBody bounds how much of an error response is kept in details.
const maxErrorBody = 4 << 10

// HTTPClientConfig holds configuration for HTTP client creation
type HTTPClientConfig struct {
	Timeout   time.Duration
	Transport http.RoundTripper
}

// DefaultHTTPClientConfig returns default HTTP client configuration
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout: 30 * time.Second,
	}
}

// NewHTTPClient creates a new HTTP client with the given configuration
func NewHTTPClient(config HTTPClientConfig) *http.Client {
	return &http.Client{
		Timeout:   config.Timeout,
		Transport: config.Transport,
	}
}

// NewDefaultHTTPClient creates a new HTTP client with default configuration
func NewDefaultHTTPClient() *http.Client {
	return NewHTTPClient(DefaultHTTPClientConfig())
}

// IsRetryableStatus reports whether a response status is worth retrying
// later: timeouts, throttling and server errors.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// StatusDetails is attached to errors built from HTTP responses.
type StatusDetails struct {
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`
}

// CheckHTTPResponse returns nil for 2xx responses. Retryable statuses become
// NETWORK_UNAVAILABLE and every other failure SERVER_REJECTED. The response
// body is consumed for non-2xx responses.
func CheckHTTPResponse(resp *http.Response, method, url string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	details := StatusDetails{Status: resp.StatusCode, Body: string(body)}

	if IsRetryableStatus(resp.StatusCode) {
		return pkgerrors.Newf(pkgerrors.CodeNetworkUnavailable, "%s %s: server returned %d", method, url, resp.StatusCode).
			WithDetails(details)
	}
	return pkgerrors.Newf(pkgerrors.CodeServerRejected, "%s %s: server returned %d", method, url, resp.StatusCode).
		WithDetails(details)
}

// TransportError wraps a failed round trip as NETWORK_UNAVAILABLE.
func TransportError(err error, method, url string) error {
	return pkgerrors.Wrap(pkgerrors.CodeNetworkUnavailable, err, fmt.Sprintf("%s %s", method, url))
}

// SafeCloseResponse drains and closes the response body so the connection
// can be reused.
func SafeCloseResponse(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
	}
}
