package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"

	"github.com/psaab/bigsh/pkg/schema"
	"github.com/psaab/bigsh/pkg/selector"
)

// REST endpoints served by the controller.
const (
	SchemaEndpoint = "/api/v1/schema"
	DataEndpoint   = "/api/v1/data"
)

// Envelope is the JSON body of every data response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PlanBody is the JSON form of a selector.Plan.
type PlanBody struct {
	Op       string         `json:"op"`
	Selector string         `json:"selector"`
	Data     map[string]any `json:"data,omitempty"`
}

// NewPlanBody encodes p.
func NewPlanBody(p selector.Plan) PlanBody {
	return PlanBody{Op: p.Op.String(), Selector: p.Selector, Data: p.Data}
}

// Plan decodes b.
func (b PlanBody) Plan() (selector.Plan, error) {
	op, err := selector.ParseOperation(b.Op)
	if err != nil {
		return selector.Plan{}, err
	}
	return selector.Plan{Op: op, Selector: b.Selector, Data: b.Data}, nil
}

// EncodeFilter renders a query filter as the "filter" query parameter.
func EncodeFilter(filter map[string]any) string {
	return oj.JSON(filter, &ojg.Options{Sort: true})
}

// DecodeFilter parses a "filter" query parameter.
func DecodeFilter(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	v, err := oj.ParseString(s)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("filter: not an object")
	}
	return m, nil
}

// ClientConfig configures a REST Client.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	Retries int
	// CacheTTL keeps query results for repeated reads; zero disables it.
	CacheTTL time.Duration
	Logger   *slog.Logger
}

type cacheEntry struct {
	value any
	at    time.Time
}

// Client is a Store backed by the controller's REST API.
type Client struct {
	rc  *resty.Client
	log *slog.Logger
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	model *schema.Model
	cache map[string]cacheEntry
}

// NewClient returns a REST datastore client.
func NewClient(cfg ClientConfig) *Client {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}
	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		log.Debug("datastore response",
			"method", resp.Request.Method, "url", resp.Request.URL,
			"status", resp.StatusCode(), "elapsed", resp.Time())
		return nil
	})
	return &Client{
		rc:    rc,
		log:   log,
		ttl:   cfg.CacheTTL,
		now:   time.Now,
		cache: map[string]cacheEntry{},
	}
}

// SetModel installs a schema model, skipping the schema fetch.
func (c *Client) SetModel(m *schema.Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = m
}

// Model returns the controller's schema, fetching it on first use.
func (c *Client) Model(ctx context.Context) (*schema.Model, error) {
	c.mu.Lock()
	m := c.model
	c.mu.Unlock()
	if m != nil {
		return m, nil
	}
	m, err := c.FetchSchema(ctx)
	if err != nil {
		return nil, err
	}
	c.SetModel(m)
	return m, nil
}

// FetchSchema downloads and parses the schema.
func (c *Client) FetchSchema(ctx context.Context) (*schema.Model, error) {
	resp, err := c.rc.R().SetContext(ctx).Get(SchemaEndpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching schema: %w", err)
	}
	if resp.IsError() {
		return nil, &Error{Code: resp.StatusCode(), Path: SchemaEndpoint}
	}
	m, err := schema.ParseModel(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("fetching schema: %w", err)
	}
	return m, nil
}

// Query implements Querier.
func (c *Client) Query(ctx context.Context, path string, filter map[string]any) (*schema.Node, any, error) {
	m, err := c.Model(ctx)
	if err != nil {
		return nil, nil, err
	}
	path = schema.Clean(path)
	node, err := m.Lookup(path)
	if err != nil {
		return nil, nil, &Error{Code: 404, Path: path, Err: err}
	}

	req := c.rc.R().SetContext(ctx)
	key := path
	if len(filter) > 0 {
		f := EncodeFilter(filter)
		req.SetQueryParam("filter", f)
		key += "?" + f
	}
	if v, ok := c.cached(key); ok {
		return node, v, nil
	}

	var env Envelope
	resp, err := req.SetResult(&env).SetError(&env).Get(DataEndpoint + "/" + path)
	if err != nil {
		return nil, nil, fmt.Errorf("query %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, nil, responseError(resp.StatusCode(), path, env)
	}
	c.store(key, env.Data)
	return node, clone(env.Data), nil
}

// Apply implements Mutator. A successful write drops cached results.
func (c *Client) Apply(ctx context.Context, plan selector.Plan) error {
	var env Envelope
	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(NewPlanBody(plan)).
		SetResult(&env).
		SetError(&env).
		Post(DataEndpoint)
	if err != nil {
		return fmt.Errorf("apply %s: %w", plan.Selector, err)
	}
	if resp.IsError() {
		return responseError(resp.StatusCode(), plan.Selector, env)
	}
	c.Invalidate()
	return nil
}

// Invalidate drops every cached query result.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cache)
}

func (c *Client) cached(key string) (any, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.cache[key]
	if !ok || c.now().Sub(e.at) > c.ttl {
		return nil, false
	}
	return clone(e.value), true
}

func (c *Client) store(key string, v any) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{value: clone(v), at: c.now()}
}

func responseError(code int, path string, env Envelope) error {
	e := &Error{Code: code, Path: path}
	if env.Error != "" {
		e.Err = errors.New(env.Error)
	}
	return e
}
