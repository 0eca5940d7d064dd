// Package httpclient is the thin HTTP wrapper over the resilience
// layer. Every call routes through the retry engine; mutating calls
// that fail with a connectivity error while offline land in the
// offline queue instead of surfacing a generic failure.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/linkguard-hq/linkguard/pkg/circuitbreaker"
	"github.com/linkguard-hq/linkguard/pkg/logger"
	"github.com/linkguard-hq/linkguard/pkg/models"
	"github.com/linkguard-hq/linkguard/pkg/neterr"
	"github.com/linkguard-hq/linkguard/pkg/queue"
	"github.com/linkguard-hq/linkguard/pkg/retry"
)

// QueuedError is returned when a mutating call could not be sent and
// was parked in the offline queue instead. Callers can tell it apart
// from a hard failure and show "will retry when back online".
type QueuedError struct {
	RequestID string
}

func (e *QueuedError) Error() string {
	return fmt.Sprintf("request queued for replay (id %s)", e.RequestID)
}

// ErrCircuitOpen is returned when the per-host circuit breaker is
// open and the call was short-circuited.
var ErrCircuitOpen = fmt.Errorf("circuit breaker open")

// Request describes one HTTP call through the wrapper.
type Request struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string

	// Preset selects the retry profile; empty means the client's
	// default.
	Preset retry.Preset

	// Priority and MaxRetries apply if the request ends up queued.
	Priority   models.Priority
	MaxRetries int
}

// Response is the successful outcome of a call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// BreakerConfig tunes the per-host circuit breakers.
type BreakerConfig struct {
	Enabled      bool
	Threshold    int
	Window       time.Duration
	ResetTimeout time.Duration
}

// StatusSource is the slice of the status monitor the client needs.
type StatusSource interface {
	GetStatus() models.ConnectivityStatus
}

// Client wraps the transport with retry, offline queueing and
// per-host circuit breaking.
type Client struct {
	httpClient    *http.Client
	engine        *retry.Engine
	status        StatusSource
	logger        logger.Logger
	defaultPreset retry.Preset
	breakerCfg    BreakerConfig

	mu       sync.Mutex
	queue    *queue.OfflineQueue
	breakers map[string]*circuitbreaker.CircuitBreaker
}

// New creates a client. The offline queue is attached afterwards with
// AttachQueue because the queue needs the client as its Sender.
func New(engine *retry.Engine, status StatusSource, defaultPreset retry.Preset, breakerCfg BreakerConfig, log logger.Logger) *Client {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Client{
		httpClient:    createHTTPClient(),
		engine:        engine,
		status:        status,
		logger:        log,
		defaultPreset: defaultPreset,
		breakerCfg:    breakerCfg,
		breakers:      make(map[string]*circuitbreaker.CircuitBreaker),
	}
}

// AttachQueue wires in the offline queue for deferred mutating calls.
func (c *Client) AttachQueue(q *queue.OfflineQueue) {
	c.mu.Lock()
	c.queue = q
	c.mu.Unlock()
}

// Do executes a request through the retry engine. On a connectivity
// failure of a mutating call while offline, the request is enqueued
// and a *QueuedError comes back instead of a hard failure.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	breaker := c.breakerFor(req.URL)
	if breaker != nil && breaker.IsOpen() {
		return nil, ErrCircuitOpen
	}

	preset := req.Preset
	if preset == "" {
		preset = c.defaultPreset
	}

	data, err := c.engine.RetryAPICall(ctx, func(ctx context.Context) (interface{}, error) {
		return c.doOnce(ctx, req.Method, req.URL, req.Body, req.Headers)
	}, preset)

	if err == nil {
		if breaker != nil {
			breaker.RecordSuccess()
		}
		return data.(*Response), nil
	}

	if breaker != nil {
		breaker.RecordFailure()
	}

	if id, queued := c.maybeEnqueue(req, err); queued {
		return nil, &QueuedError{RequestID: id}
	}
	return nil, err
}

// Get issues a GET through the wrapper.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: url, Headers: headers})
}

// Post issues a POST through the wrapper.
func (c *Client) Post(ctx context.Context, url string, body []byte, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Body: body, Headers: headers})
}

// Send replays one queued request with a single raw attempt. The
// queue carries its own retry budget, so replays bypass the engine.
func (c *Client) Send(ctx context.Context, req *models.QueuedRequest) error {
	_, err := c.doOnce(ctx, req.Method, req.URL, req.Body, req.Headers)
	return err
}

var _ queue.Sender = (*Client)(nil)

// maybeEnqueue parks a failed mutating call in the offline queue when
// the failure was pure connectivity and the monitor agrees we are
// offline.
func (c *Client) maybeEnqueue(req Request, err error) (string, bool) {
	c.mu.Lock()
	q := c.queue
	c.mu.Unlock()

	if q == nil || !models.IsMutating(req.Method) {
		return "", false
	}
	if c.status != nil && c.status.GetStatus().IsOnline {
		return "", false
	}

	kind := neterr.Classify(err).Kind
	if kind != neterr.KindNetwork && kind != neterr.KindTimeout {
		return "", false
	}

	id := q.Enqueue(req.URL, req.Method, req.Body, req.Headers, queue.EnqueueOptions{
		Priority:   req.Priority,
		MaxRetries: req.MaxRetries,
	})
	c.logger.InfoWith(logger.Client, "Offline, queued %s %s for replay (id %s)", req.Method, req.URL, id)
	return id, true
}

// doOnce issues a single HTTP call and maps failures onto the tagged
// error taxonomy.
func (c *Client) doOnce(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (*Response, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &neterr.RequestError{Kind: neterr.KindOther, Err: err}
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, neterr.Classify(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.ErrorWith(logger.Client, "Failed to close response body: %v", closeErr)
		}
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, neterr.Network(err)
	}

	if resp.StatusCode >= 400 {
		return nil, neterr.HTTPStatus(resp.StatusCode, fmt.Errorf("%s %s: %s", method, rawURL, http.StatusText(resp.StatusCode)))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       bodyBytes,
	}, nil
}

// breakerFor returns the circuit breaker for the request's host,
// creating it on first use.
func (c *Client) breakerFor(rawURL string) *circuitbreaker.CircuitBreaker {
	if !c.breakerCfg.Enabled {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[u.Host]
	if !ok {
		cb = circuitbreaker.New(u.Host, true, c.breakerCfg.Threshold, c.breakerCfg.Window, c.breakerCfg.ResetTimeout, c.logger)
		c.breakers[u.Host] = cb
	}
	return cb
}

// Breakers snapshots the per-host breakers for status reporting.
func (c *Client) Breakers() []*circuitbreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*circuitbreaker.CircuitBreaker, 0, len(c.breakers))
	for _, cb := range c.breakers {
		out = append(out, cb)
	}
	return out
}

// ResetBreaker manually closes the breaker for a host. Returns false
// when no breaker exists for it.
func (c *Client) ResetBreaker(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[host]
	if !ok {
		return false
	}
	cb.Reset()
	return true
}

// createHTTPClient builds the transport with sane timeouts
func createHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
