package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainErrors "github.com/cassiomorais/cashdesk/internal/domain/errors"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Endpoint names, used for timeouts, breakers, metrics and error ops.
const (
	OpSettings        = "payment-settings"
	OpCheckPlayer     = "check-player"
	OpWithdrawCheck   = "withdraw-check"
	OpWithdrawExecute = "withdraw-execute"
	OpPayment         = "payment"
	OpRequests        = "requests"
	OpLeaderboard     = "leaderboard"
	OpHistory         = "transaction-history"
)

const maxResponseBytes = 1 << 20

// Client talks to the admin/payment API. Every call goes through a
// per-endpoint timeout and circuit breaker, and every failure is classified
// as a TransportError, ServerRejectionError or ParseError.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	timeouts   map[string]time.Duration
	breakers   map[string]*gobreaker.CircuitBreaker[*rawResponse]
	metrics    *observability.Metrics
}

// NewClient builds a client from config. metrics may be nil.
func NewClient(cfg config.UpstreamConfig, metrics *observability.Metrics) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid upstream.base_url: %w", err)
	}

	c := &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		timeouts: map[string]time.Duration{
			OpSettings:        cfg.Timeouts.Settings,
			OpCheckPlayer:     cfg.Timeouts.CheckPlayer,
			OpWithdrawCheck:   cfg.Timeouts.WithdrawCheck,
			OpWithdrawExecute: cfg.Timeouts.Execute,
			OpPayment:         cfg.Timeouts.Payment,
			OpRequests:        cfg.Timeouts.Requests,
			OpLeaderboard:     cfg.Timeouts.Aggregates,
			OpHistory:         cfg.Timeouts.Aggregates,
		},
		breakers: make(map[string]*gobreaker.CircuitBreaker[*rawResponse]),
		metrics:  metrics,
	}

	threshold := cfg.CircuitBreakerThreshold
	if threshold == 0 {
		threshold = 10
	}
	for op := range c.timeouts {
		c.breakers[op] = c.newBreaker(op, threshold, cfg.CircuitBreakerTimeout)
	}
	return c, nil
}

func (c *Client) newBreaker(op string, threshold uint32, openFor time.Duration) *gobreaker.CircuitBreaker[*rawResponse] {
	name := "adminapi:" + op
	return gobreaker.NewCircuitBreaker[*rawResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Rejections and bad payloads mean the upstream is alive.
		IsSuccessful: func(err error) bool {
			return err == nil || !domainErrors.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.metrics != nil {
				c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
}

// doRequest performs req and decodes a 2xx body into V.
func doRequest[T any, V any](ctx context.Context, c *Client, op string, req *Request[T]) (*V, error) {
	if c.apiKey != "" {
		req.AddHeader("X-API-Key", c.apiKey)
	}

	start := time.Now()
	raw, err := c.execute(ctx, op, func(ctx context.Context) (*http.Request, error) {
		return buildRequest(ctx, c, req)
	})
	c.observe(ctx, op, start, err)
	if err != nil {
		return nil, err
	}

	var out V
	if len(bytes.TrimSpace(raw.Body)) == 0 {
		return nil, &domainErrors.ParseError{Op: op, Err: errors.New("empty body")}
	}
	if err := json.Unmarshal(raw.Body, &out); err != nil {
		return nil, &domainErrors.ParseError{Op: op, Err: err}
	}
	return &out, nil
}

func (c *Client) execute(ctx context.Context, op string, build func(context.Context) (*http.Request, error)) (*rawResponse, error) {
	if d := c.timeouts[op]; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	httpReq, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}

	raw, err := c.breakers[op].Execute(func() (*rawResponse, error) {
		return c.exchange(ctx, op, httpReq)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if c.metrics != nil {
			c.metrics.CircuitBreakerRequests.WithLabelValues("adminapi:"+op, "rejected").Inc()
		}
		return nil, &domainErrors.TransportError{Op: op, Err: fmt.Errorf("%w: %v", domainErrors.ErrUpstreamUnavailable, err)}
	}
	return raw, err
}

func (c *Client) exchange(ctx context.Context, op string, req *http.Request) (*rawResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &domainErrors.TransportError{Op: op, Err: fmt.Errorf("%w: %v", domainErrors.ErrUpstreamTimeout, err)}
		}
		return nil, &domainErrors.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domainErrors.TransportError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	raw := &rawResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}
	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		return nil, &domainErrors.TransportError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return nil, &domainErrors.ServerRejectionError{Op: op, StatusCode: resp.StatusCode, Message: rejectionMessage(body)}
	}
	return raw, nil
}

func (c *Client) observe(ctx context.Context, op string, start time.Time, err error) {
	elapsed := time.Since(start)
	kind := domainErrors.KindOf(err)
	result := string(kind)
	if kind == domainErrors.KindNone {
		result = "ok"
	}

	zerolog.Ctx(ctx).Debug().
		Str("endpoint", op).
		Dur("elapsed", elapsed).
		Str("result", result).
		Err(err).
		Msg("admin api call")

	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamRequestsTotal.WithLabelValues(op, result).Inc()
	c.metrics.UpstreamRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func buildRequest[T any](ctx context.Context, c *Client, r *Request[T]) (*http.Request, error) {
	var body []byte
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = b
	}

	path := r.Path
	for key, value := range r.PathParams {
		path = strings.ReplaceAll(path, "{"+key+"}", url.PathEscape(value))
	}
	rel, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	full := c.baseURL.ResolveReference(rel)
	if len(r.QueryParams) > 0 {
		q := full.Query()
		for key, value := range r.QueryParams {
			q.Set(key, value)
		}
		full.RawQuery = q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, full.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

// rejectionMessage extracts the human text of a 4xx answer.
func rejectionMessage(body []byte) string {
	var env envelope
	if json.Unmarshal(body, &env) == nil {
		if msg := env.errorText(); msg != "" {
			return msg
		}
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
			return detail.Detail
		}
	}
	return strings.TrimSpace(string(body))
}
