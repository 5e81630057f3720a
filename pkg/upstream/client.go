// pkg/upstream/client.go
package upstream

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"tenantplane/pkg/audit"
	"tenantplane/pkg/credentials"
)

// Request describes one upstream operation call. Path is joined to the
// tenant's API base URL; Body is JSON-encoded when non-nil.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a completed upstream call.
type Response struct {
	Status   int
	Payload  map[string]any
	Attempts int
	Retried  bool
}

type ErrKind string

const (
	KindExhaustedRetries ErrKind = "exhausted_retries"
	KindNonRetryable     ErrKind = "non_retryable"
	KindTimeout          ErrKind = "timeout"
)

// CallError is the normalized failure of a throttle-aware call, with
// the attempt count and last upstream error attached.
type CallError struct {
	Kind     ErrKind
	TenantID string
	Attempts int
	Status   int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("upstream call for %s failed (%s) after %d attempt(s): %v", e.TenantID, e.Kind, e.Attempts, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// AsCallError unwraps err into a CallError when possible.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Client wraps outbound tenant API calls with timeout, retry-with-
// backoff and throttling handling. It holds no per-tenant state beyond
// the advisory hint cache, so one client serves every tenant.
type Client struct {
	log    *zap.SugaredLogger
	rec    *audit.Recorder
	hc     *http.Client
	policy Policy
	hints  *HintCache

	attemptTimeout time.Duration
}

type ClientOptions struct {
	Policy         Policy
	AttemptTimeout time.Duration
	HTTPClient     *http.Client // test hook; defaults to an otel-instrumented client
}

func NewClient(log *zap.SugaredLogger, rec *audit.Recorder, opts ClientOptions) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 30 * time.Second
	}
	return &Client{
		log:            log,
		rec:            rec,
		hc:             hc,
		policy:         opts.Policy.withDefaults(),
		hints:          NewHintCache(),
		attemptTimeout: opts.AttemptTimeout,
	}
}

// Do runs the request against the tenant's API surface, retrying per
// policy. correlationID ties the emitted call/retry/throttle events to
// the owning dispatch. Once ctx is done no new attempt starts; an
// attempt already in flight finishes on its own terms.
func (c *Client) Do(ctx context.Context, cred credentials.Credential, baseURL, correlationID string, req Request) (*Response, error) {
	tenant := cred.TenantID
	sched := newSchedule(c.policy)

	if d := c.hints.Pace(ctx, tenant); d > 0 {
		c.log.Debugw("paced by rate-limit hint", "tenant", tenant, "delay", d)
	}

	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &CallError{Kind: KindNonRetryable, TenantID: tenant, Err: err}
		}
		body = b
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, &CallError{Kind: KindTimeout, TenantID: tenant, Attempts: sched.attempts, Err: err}
		}
		attempt := sched.started()
		status, payload, retryAfter, err := c.attempt(ctx, cred, baseURL, req, body)
		c.event(tenant, correlationID, audit.TypeCall, map[string]any{
			"attempt": attempt,
			"method":  req.Method,
			"path":    req.Path,
			"status":  status,
			"error":   errString(err),
		})

		switch {
		case err == nil && isThrottle(status, retryAfter):
			// Throttling wins over any hard status in the same
			// response; treat it as transient and pace off it.
			c.hints.Observe(tenant, retryAfter)
			delay, ok := sched.nextThrottle(retryAfter)
			if !ok {
				callsTotal.WithLabelValues(tenant, "exhausted").Inc()
				return nil, &CallError{Kind: KindExhaustedRetries, TenantID: tenant, Attempts: sched.attempts, Status: status,
					Err: fmt.Errorf("throttled with status %d", status)}
			}
			retriesTotal.WithLabelValues(tenant, "throttle").Inc()
			backoffSeconds.Observe(delay.Seconds())
			c.event(tenant, correlationID, audit.TypeThrottle, map[string]any{
				"attempt": attempt, "delay_ms": delay.Milliseconds(), "status": status, "hinted": retryAfter > 0,
			})
			if err := c.wait(ctx, delay); err != nil {
				return nil, &CallError{Kind: KindTimeout, TenantID: tenant, Attempts: sched.attempts, Err: err}
			}

		case err != nil || status >= 500:
			if err != nil && ctx.Err() != nil {
				return nil, &CallError{Kind: KindTimeout, TenantID: tenant, Attempts: sched.attempts, Err: ctx.Err()}
			}
			if err == nil {
				err = fmt.Errorf("server error %d", status)
			}
			delay, ok := sched.nextTransient()
			if !ok {
				callsTotal.WithLabelValues(tenant, "exhausted").Inc()
				return nil, &CallError{Kind: KindExhaustedRetries, TenantID: tenant, Attempts: sched.attempts, Status: status, Err: err}
			}
			retriesTotal.WithLabelValues(tenant, "transient").Inc()
			backoffSeconds.Observe(delay.Seconds())
			c.event(tenant, correlationID, audit.TypeRetry, map[string]any{
				"attempt": attempt, "delay_ms": delay.Milliseconds(), "error": err.Error(),
			})
			if werr := c.wait(ctx, delay); werr != nil {
				return nil, &CallError{Kind: KindTimeout, TenantID: tenant, Attempts: sched.attempts, Err: werr}
			}

		case status >= 400:
			callsTotal.WithLabelValues(tenant, "rejected").Inc()
			return nil, &CallError{Kind: KindNonRetryable, TenantID: tenant, Attempts: sched.attempts, Status: status,
				Err: fmt.Errorf("upstream rejected request with status %d", status)}

		default:
			callsTotal.WithLabelValues(tenant, "ok").Inc()
			return &Response{Status: status, Payload: payload, Attempts: sched.attempts, Retried: sched.attempts > 1}, nil
		}
	}
}

// attempt performs one HTTP exchange with the per-attempt timeout.
func (c *Client) attempt(ctx context.Context, cred credentials.Credential, baseURL string, req Request, body []byte) (int, map[string]any, time.Duration, error) {
	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	u := strings.TrimRight(baseURL, "/") + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	hreq, err := http.NewRequestWithContext(actx, req.Method, u, rd)
	if err != nil {
		return 0, nil, 0, err
	}
	hreq.Header.Set("Authorization", "Bearer "+cred.Token)
	if body != nil {
		hreq.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(hreq)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	var payload map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}
	return resp.StatusCode, payload, retryAfter, nil
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) event(tenant, correlationID string, typ audit.Type, detail map[string]any) {
	if c.rec == nil {
		return
	}
	c.rec.Record(audit.Event{TenantID: tenant, CorrelationID: correlationID, Type: typ, Detail: detail})
}

// isThrottle recognizes an upstream rate-limit signal: the canonical
// statuses, or any response carrying a retry-after hint.
func isThrottle(status int, retryAfter time.Duration) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return retryAfter > 0
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
