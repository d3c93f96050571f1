// Package api talks to the analytics backend over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/Patil2099/posthog/internal/logging"
	"github.com/Patil2099/posthog/internal/models"
)

const (
	userAgent      = "posthog-funnel"
	defaultTimeout = 30 * time.Second
)

// ErrUnexpectedStatus is wrapped by every non-2xx response error
var ErrUnexpectedStatus = errors.New("unexpected status from backend")

// StatusError carries the status and message of a failed request
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Client is the analytics backend client
type Client struct {
	http    *fasthttp.Client
	baseURL string
	apiKey  string
	timeout time.Duration
	logger  *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying fasthttp client
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each request; the context deadline wins when sooner
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger requests are traced to
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the backend at baseURL authenticating with
// a personal API key.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		http: &fasthttp.Client{
			Name:                     userAgent,
			MaxIdleConnDuration:      time.Minute,
			NoDefaultUserAgentHeader: true,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Named("api")
	}
	return c
}

// Funnel requests a funnel computation. The refresh flag travels in the
// query string and forces the backend to recompute.
func (c *Client) Funnel(ctx context.Context, params models.RequestParams) (*models.FunnelResponse, error) {
	var query url.Values
	if params.Refresh {
		query = url.Values{"refresh": {"true"}}
	}

	var resp models.FunnelResponse
	if err := c.do(ctx, fasthttp.MethodPost, "/api/insight/funnel/", query, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Persons fetches person profiles by uuid
func (c *Client) Persons(ctx context.Context, uuids []string) ([]models.Person, error) {
	if len(uuids) == 0 {
		return []models.Person{}, nil
	}

	var page models.Page[models.Person]
	query := url.Values{"uuid": {strings.Join(uuids, ",")}}
	if err := c.do(ctx, fasthttp.MethodGet, "/api/person/", query, nil, &page); err != nil {
		return nil, err
	}
	if page.Results == nil {
		page.Results = []models.Person{}
	}
	return page.Results, nil
}

// CreateInsight saves a named insight
func (c *Client) CreateInsight(ctx context.Context, req models.InsightRequest) (*models.Insight, error) {
	var insight models.Insight
	if err := c.do(ctx, fasthttp.MethodPost, "/api/insight/", nil, req, &insight); err != nil {
		return nil, err
	}
	return &insight, nil
}

// PropertyDefinitions lists event or person properties matching search
func (c *Client) PropertyDefinitions(ctx context.Context, kind models.PropertyDefinitionType, search string) ([]models.PropertyDefinition, error) {
	query := url.Values{}
	if kind != "" {
		query.Set("type", string(kind))
	}
	if search != "" {
		query.Set("search", search)
	}

	var page models.Page[models.PropertyDefinition]
	if err := c.do(ctx, fasthttp.MethodGet, "/api/projects/@current/property_definitions/", query, nil, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// EventDefinitions lists event names matching search
func (c *Client) EventDefinitions(ctx context.Context, search string) ([]models.EventDefinition, error) {
	query := url.Values{}
	if search != "" {
		query.Set("search", search)
	}

	var page models.Page[models.EventDefinition]
	if err := c.do(ctx, fasthttp.MethodGet, "/api/projects/@current/event_definitions/", query, nil, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// Cohorts lists the project's cohorts
func (c *Client) Cohorts(ctx context.Context) ([]models.Cohort, error) {
	var page models.Page[models.Cohort]
	if err := c.do(ctx, fasthttp.MethodGet, "/api/cohort/", nil, nil, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.Header.SetUserAgent(userAgent)
	if c.apiKey != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.apiKey)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	start := time.Now()
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)))

	if status < fasthttp.StatusOK || status >= fasthttp.StatusMultipleChoices {
		return &StatusError{Method: method, Path: path, Code: status, Detail: errorDetail(resp.Body())}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorDetail extracts the backend's error message from a response body
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}
	return detail
}
