// Package httpclient is the thin authenticated-POST wrapper shared by
// the streamer, the query-backed collector and the verification engine:
// gzip-compressed JSON bodies, Api-Key auth, retry with backoff on
// retryable statuses, and a per-endpoint minimum inter-request delay.
package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/newrelic/infra-integrations-sdk/v3/log"

	"github.com/newrelic/mq-telemetry-pipeline/internal/errs"
)

// Config carries the per-client tunables.
type Config struct {
	APIKey           string
	Timeout          time.Duration
	RetryAttempts    int
	RetryDelay       time.Duration
	MinRequestDelay  time.Duration // minimum delay between requests to one endpoint
	Gzip             bool
}

// Client performs authenticated POSTs against a fixed endpoint family
// (events, metrics, GraphQL), applying gzip, retry/backoff and a
// minimum inter-request delay. Circuit breaking is layered on top by
// the caller wrapping PostJSON in an internal/breaker.Breaker -- this package
// has no breaker awareness of its own.
type Client struct {
	httpClient *http.Client
	cfg        Config

	mu       sync.Mutex
	lastSent time.Time
}

// New constructs a Client. A zero Timeout defaults to 10s.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

// PostJSON POSTs body (marshaled to JSON, gzip-compressed when
// cfg.Gzip) to url with the Api-Key header set, retrying transient
// failures up to cfg.RetryAttempts times with exponential backoff. It
// returns the response body on success.
func (c *Client) PostJSON(ctx context.Context, url string, body any, extraHeaders map[string]string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: marshal request body: %w", err)
	}

	var lastErr error
	attempts := c.cfg.RetryAttempts
	if attempts < 0 {
		attempts = 0
	}
	delay := c.cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	for i := 0; i <= attempts; i++ {
		c.throttle()

		respBody, status, err := c.doOnce(ctx, url, payload, extraHeaders)
		if err == nil {
			return respBody, nil
		}
		lastErr = err

		if !shouldRetry(status, err) {
			return nil, lastErr
		}
		if i < attempts {
			wait := backoff(delay, i)
			var ra *retryAfterError
			if errors.As(err, &ra) && ra.after > 0 {
				wait = ra.after
			}
			log.Warn("httpclient: POST %s failed (attempt %d/%d), retrying in %s: %v", url, i+1, attempts+1, wait, err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", errs.ErrCancelled, ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, url string, payload []byte, extraHeaders map[string]string) ([]byte, int, error) {
	reqBody := payload
	encoding := ""
	if c.cfg.Gzip {
		compressed, err := gzipCompress(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("httpclient: gzip request body: %w", err)
		}
		reqBody = compressed
		encoding = "gzip"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, 0, fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", c.cfg.APIKey)
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, fmt.Errorf("%w: %v", errs.ErrTimeout, err)
		}
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d", errs.ErrAuthFailed, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, resp.StatusCode, &retryAfterError{
			after: parseRetryAfter(resp.Header.Get("Retry-After")),
			err:   fmt.Errorf("%w: status %d", errs.ErrRateLimited, resp.StatusCode),
		}
	}
	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d, body %s", errs.ErrBackendUnavailable, resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, resp.StatusCode, fmt.Errorf("httpclient: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, resp.StatusCode, nil
}

// retryAfterError carries a backend-specified Retry-After delay along
// with the underlying rate-limit error, so the retry loop can honor the
// server's pacing instead of its own exponential backoff.
type retryAfterError struct {
	after time.Duration
	err   error
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

// parseRetryAfter reads a Retry-After header value, either delta-seconds
// or an HTTP date, capped at the same 60s ceiling backoff uses. Zero
// means absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	const capDelay = 60 * time.Second
	if secs, err := strconv.Atoi(value); err == nil {
		d := time.Duration(secs) * time.Second
		if d < 0 {
			return 0
		}
		if d > capDelay {
			return capDelay
		}
		return d
	}
	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		if d < 0 {
			return 0
		}
		if d > capDelay {
			return capDelay
		}
		return d
	}
	return 0
}

// shouldRetry classifies a failed attempt: 5xx, rate limiting and
// network-level errors are retryable; auth failures and other 4xx are
// not.
func shouldRetry(status int, err error) bool {
	if status == http.StatusTooManyRequests || status >= 500 {
		return true
	}
	kind := errs.Classify(err)
	return errs.Retryable(kind)
}

func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	const capDelay = 60 * time.Second
	if d > capDelay {
		d = capDelay
	}
	return d
}

// throttle enforces cfg.MinRequestDelay between outbound requests;
// requests beyond quota are queued, not rejected.
func (c *Client) throttle() {
	if c.cfg.MinRequestDelay <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := c.cfg.MinRequestDelay - time.Since(c.lastSent); wait > 0 {
		time.Sleep(wait)
	}
	c.lastSent = time.Now()
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
