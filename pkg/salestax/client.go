package salestax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/juniper/pkg/metrics"
	"github.com/Ramsey-B/juniper/pkg/tracing"
	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// ErrServiceUnavailable is returned while the circuit breaker is open.
var ErrServiceUnavailable = errors.New("sales-tax service is unavailable")

// StatusError is a non-2xx answer from the service.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: sales-tax service responded %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Temporary reports whether retrying later could succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// RetryConfig bounds the retries of transport failures and temporary answers
type RetryConfig struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config holds sales-tax client configuration
type Config struct {
	BaseURL            string
	APIKey             string
	Timeout            time.Duration
	MaxIdleConns       int
	IdleConnTimeout    time.Duration
	DisableCompression bool
	DisableKeepAlives  bool
	Breaker            BreakerConfig
	Retry              RetryConfig
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
		Breaker: BreakerConfig{
			MaxRequests:         1,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
	}
}

// Client calls the sales-tax service's identity directory and calculation
// endpoints. Transport failures and 5xx answers count against a circuit
// breaker; 4xx answers do not.
type Client struct {
	client  *http.Client
	baseURL *url.URL
	apiKey  string
	breaker *gobreaker.CircuitBreaker
	retry   RetryConfig
	logger  ectologger.Logger
}

// NewClient creates a new sales-tax client
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid sales-tax base url %q", cfg.BaseURL)
	}

	transport := &http.Transport{
		MaxIdleConns:       cfg.MaxIdleConns,
		IdleConnTimeout:    cfg.IdleConnTimeout,
		DisableCompression: cfg.DisableCompression,
		DisableKeepAlives:  cfg.DisableKeepAlives,
	}

	c := &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		retry:   cfg.Retry,
		logger:  logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "salestax",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.ConsecutiveFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warnf("Circuit breaker [%s] changed from %s to %s", name, from, to)
		},
	})

	return c, nil
}

// GetCustomerBySourcePlatformID looks up a customer by its source-platform id.
// A 404 means not found and returns nil, nil.
func (c *Client) GetCustomerBySourcePlatformID(ctx context.Context, corporationID, platform, platformID string) (*Customer, error) {
	ctx, span := tracing.StartSpan(ctx, "SalesTaxClient.GetCustomerBySourcePlatformID")
	defer span.End()

	endpoint := c.endpoint(corporationID, "customers")
	query := endpoint.Query()
	query.Set("source_platform", platform)
	query.Set("source_platform_id", platformID)
	endpoint.RawQuery = query.Encode()

	body, found, err := c.do(ctx, "get_customer", http.MethodGet, endpoint, nil)
	if err != nil || !found {
		return nil, err
	}

	var customer Customer
	if err := json.Unmarshal(body, &customer); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}
	return &customer, nil
}

// GetProductsBySourcePlatforms looks up products in one batch. platforms and
// platformIDs are parallel lists. Unknown products are absent from the result.
func (c *Client) GetProductsBySourcePlatforms(ctx context.Context, corporationID string, platforms, platformIDs []string) ([]Product, error) {
	ctx, span := tracing.StartSpan(ctx, "SalesTaxClient.GetProductsBySourcePlatforms")
	defer span.End()

	if len(platforms) != len(platformIDs) {
		return nil, fmt.Errorf("got %d platforms for %d platform ids", len(platforms), len(platformIDs))
	}
	if len(platformIDs) == 0 {
		return []Product{}, nil
	}

	body, found, err := c.do(ctx, "lookup_products", http.MethodPost, c.endpoint(corporationID, "products", "lookup"), productLookupRequest{
		SourcePlatforms:   platforms,
		SourcePlatformIDs: platformIDs,
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return []Product{}, nil
	}

	var response productLookupResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return response.Products, nil
}

// CalculateTax submits a built request.
func (c *Client) CalculateTax(ctx context.Context, request TaxCalculationRequest) (*CalculationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "SalesTaxClient.CalculateTax")
	defer span.End()

	body, found, err := c.do(ctx, "calculate_tax", http.MethodPost, c.endpoint(request.CorporationID, "tax", "calculate"), request)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &StatusError{Operation: "calculate_tax", StatusCode: http.StatusNotFound, Body: "corporation not found"}
	}

	var result CalculationResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode calculation result: %w", err)
	}
	return &result, nil
}

func (c *Client) endpoint(corporationID string, segments ...string) *url.URL {
	parts := append([]string{"v1", "corporations", url.PathEscape(corporationID)}, segments...)
	return c.baseURL.JoinPath(parts...)
}

type response struct {
	statusCode int
	body       []byte
}

// do sends the request through the circuit breaker, retrying transport
// failures and temporary answers. found is false on 404.
func (c *Client) do(ctx context.Context, operation, method string, endpoint *url.URL, payload any) ([]byte, bool, error) {
	var reqBody []byte
	if payload != nil {
		var err error
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, false, fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
	}

	start := time.Now()
	resp, err := backoff.Retry(ctx, func() (*response, error) {
		return c.attempt(ctx, operation, method, endpoint, reqBody)
	}, c.retryOptions()...)
	metrics.HTTPRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, ErrServiceUnavailable) {
			c.logger.WithContext(ctx).Warnf("Circuit breaker rejected %s", operation)
			return nil, false, err
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return nil, false, err
		}
		c.logger.WithContext(ctx).WithError(err).Errorf("Sales-tax request failed: %s %s", method, endpoint.Redacted())
		return nil, false, err
	}

	c.logger.WithContext(ctx).Debugf("Sales-tax %s %s -> %d (%s)", method, endpoint.Redacted(), resp.statusCode, time.Since(start))

	if resp.statusCode == http.StatusNotFound {
		return nil, false, nil
	}
	return resp.body, true, nil
}

// attempt makes one call through the circuit breaker. Errors that a retry
// cannot fix are marked permanent.
func (c *Client) attempt(ctx context.Context, operation, method string, endpoint *url.URL, reqBody []byte) (*response, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.send(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, err
		}
		if resp.statusCode >= http.StatusInternalServerError {
			return nil, &StatusError{Operation: operation, StatusCode: resp.statusCode, Body: string(resp.body)}
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.HTTPRequestsTotal.WithLabelValues(operation, "rejected").Inc()
			return nil, backoff.Permanent(fmt.Errorf("%s: %w: %w", operation, ErrServiceUnavailable, err))
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			metrics.HTTPRequestsTotal.WithLabelValues(operation, strconv.Itoa(statusErr.StatusCode)).Inc()
		} else {
			metrics.HTTPRequestsTotal.WithLabelValues(operation, "error").Inc()
		}
		return nil, err
	}

	resp := result.(*response)
	metrics.HTTPRequestsTotal.WithLabelValues(operation, strconv.Itoa(resp.statusCode)).Inc()

	if resp.statusCode >= http.StatusBadRequest && resp.statusCode != http.StatusNotFound {
		statusErr := &StatusError{Operation: operation, StatusCode: resp.statusCode, Body: string(resp.body)}
		if statusErr.Temporary() {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}
	return resp, nil
}

func (c *Client) retryOptions() []backoff.RetryOption {
	maxAttempts := c.retry.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	if c.retry.InitialInterval > 0 {
		policy.InitialInterval = c.retry.InitialInterval
	}
	if c.retry.MaxInterval > 0 {
		policy.MaxInterval = c.retry.MaxInterval
	}

	return []backoff.RetryOption{
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxAttempts),
	}
}

func (c *Client) send(ctx context.Context, method string, endpoint *url.URL, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if traceParent := tracing.GetTraceParent(ctx); traceParent != "" {
		req.Header.Set("traceparent", traceParent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response too large: %d bytes (max %d)", resp.ContentLength, MaxResponseSize)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(respBody) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(respBody), MaxResponseSize)
	}

	return &response{statusCode: resp.StatusCode, body: respBody}, nil
}
