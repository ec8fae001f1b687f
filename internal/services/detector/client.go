package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vdiff/internal/labels"
	"vdiff/internal/media/frames"
	"vdiff/internal/services"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryAttempts  = 3
	defaultJPEGQuality    = 90
)

// Config captures the settings needed to reach the inference service.
type Config struct {
	URL            string
	APIKey         string
	TimeoutSeconds int
	JPEGQuality    int
}

// Client posts frames to an HTTP detection endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the total attempt count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a detection client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}
	client := &Client{
		cfg: Config{
			URL:            strings.TrimSpace(cfg.URL),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds: cfg.TimeoutSeconds,
			JPEGQuality:    quality,
		},
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("detector request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Detect encodes the frame as JPEG and returns the service's detections.
func (c *Client) Detect(ctx context.Context, stream string, frame frames.Frame) ([]labels.Detection, error) {
	if c.cfg.URL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "detector", "detect", "url required", nil)
	}
	if frame.Image == nil {
		return nil, &frames.DecodeError{Path: stream, Index: frame.Index, Reason: "missing image"}
	}
	var body bytes.Buffer
	if err := jpeg.Encode(&body, frame.Image, &jpeg.Options{Quality: c.cfg.JPEGQuality}); err != nil {
		return nil, &frames.DecodeError{Path: stream, Index: frame.Index, Reason: "jpeg encode: " + err.Error()}
	}
	payload := body.Bytes()

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := c.postOnce(ctx, stream, frame, payload)
		if err == nil {
			return toDetections(resp.Detections), nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			return nil, classify(ctx, err)
		}
		if attempt == attempts {
			break
		}
		if err := c.sleep(ctx, c.retryDelay(err, attempt)); err != nil {
			return nil, err
		}
	}
	return nil, services.Wrap(services.ErrTransient, "detector", "detect", fmt.Sprintf("failed after %d attempts", attempts), lastErr)
}

// HealthCheck verifies the endpoint answers. Any status below 500 counts as
// reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.URL == "" {
		return services.Wrap(services.ErrConfiguration, "detector", "health", "url required", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "detector", "health", "build request", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(ctx, fmt.Errorf("detector health: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= http.StatusInternalServerError {
		return services.Wrap(services.ErrExternalTool, "detector", "health", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) postOnce(ctx context.Context, stream string, frame frames.Frame, payload []byte) (wireResponse, error) {
	var decoded wireResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return decoded, fmt.Errorf("detector request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Stream", stream)
	req.Header.Set("X-Frame-Index", strconv.Itoa(frame.Index))
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decoded, fmt.Errorf("detector request: http error (timeout=%s): %w", c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decoded, fmt.Errorf("detector request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return decoded, &httpStatusError{StatusCode: resp.StatusCode, Body: string(body), RetryAfter: retryAfter}
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return decoded, fmt.Errorf("detector request: decode response: %w", err)
	}
	if msg := strings.TrimSpace(decoded.Error); msg != "" {
		return decoded, fmt.Errorf("detector request: service error: %s", msg)
	}
	return decoded, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, "detector", "detect", "", err)
	}
	return services.Wrap(services.ErrExternalTool, "detector", "detect", "", err)
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

// retryable reports whether err is a throttling, server-side or timeout
// failure worth another attempt.
func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

func (c *Client) retryDelay(err error, attempt int) time.Duration {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return c.capDelay(statusErr.RetryAfter)
	}
	return c.backoffDelay(attempt)
}

// backoffDelay doubles the base delay per attempt: base, 2*base, 4*base, ...
func (c *Client) backoffDelay(attempt int) time.Duration {
	if c.retryBaseDelay <= 0 {
		return 0
	}
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if c.retryMaxDelay > 0 && delay > c.retryMaxDelay/2 {
			return c.retryMaxDelay
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
