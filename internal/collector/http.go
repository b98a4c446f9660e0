package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// HTTPStatusError is returned for non-200 upstream responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// RetryPolicy bounds retries of transient upstream failures.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy retries a few times within ten seconds.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxElapsedTime:  10 * time.Second,
}

// NewHTTPClient builds a client with an optional proxy.
func NewHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// getWithRetry issues a GET and returns the body of a 200 response. Transport
// errors, 429 and 5xx are retried; other statuses fail immediately.
func getWithRetry(ctx context.Context, client *http.Client, endpoint string, policy RetryPolicy, logger zerolog.Logger) ([]byte, error) {
	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "Mozilla/5.0")
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			logger.Debug().Err(err).Int("attempt", attempt).Msg("request failed")
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				logger.Debug().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("retryable status")
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		body = data
		return nil
	}

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxElapsedTime > 0 {
		b.MaxElapsedTime = policy.MaxElapsedTime
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, policy.MaxRetries), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyHTTPError maps a transport or status failure onto a FetchError.
func classifyHTTPError(symbol string, err error) *FetchError {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusNotFound, statusErr.StatusCode == http.StatusUnprocessableEntity:
			return newFetchError(NotFound, symbol, err)
		case statusErr.StatusCode == http.StatusTooManyRequests, statusErr.StatusCode >= 500:
			return newFetchError(NetworkFailure, symbol, err)
		default:
			return newFetchError(UpstreamMalformed, symbol, err)
		}
	}
	return newFetchError(NetworkFailure, symbol, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
