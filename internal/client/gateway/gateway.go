// Package gateway is the single path from the client runtime to the backend
// REST API.
//
// Every call goes through (*Gateway).Do, which:
//  1. attaches "Authorization: Bearer <token>" when the credential store has
//     a live token;
//  2. normalises the body (empty -> {}, non-JSON text -> {"message": text});
//  3. on HTTP 401 clears the credential store, publishes one
//     events.SessionExpired and fails with KindSessionExpired;
//  4. on any other non-2xx fails with KindServer, carrying status, message
//     and body fields;
//  5. on success persists a "token" and/or "user" found in the body, so the
//     store follows the server after any call, not only login;
//  6. publishes an events.Alert for failures unless the call is Silent.
//
// Network and decoding failures are KindTransport. Timeouts are whatever the
// configured *http.Client does.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/events"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-call correlation id.
const RequestIDHeader = "X-Request-ID"

const maxBodySize = 1 << 20

// ErrResponseTooLarge is the cause of a KindTransport error for a body over
// 1 MiB.
var ErrResponseTooLarge = errors.New("response body exceeds 1 MiB")

// TokenStore is the part of the credential store the gateway needs.
// *session.Store satisfies it.
type TokenStore interface {
	Load(ctx context.Context) (string, bool)
	SaveSession(ctx context.Context, token string, u *session.User) error
	Clear(ctx context.Context) error
}

type Gateway struct {
	baseURL string
	client  *http.Client
	store   TokenStore
	log     logging.Logger
	expired *events.Bus[events.SessionExpired]
	alerts  *events.Bus[events.Alert]
	metrics *Metrics
}

type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

func WithLogger(l logging.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// WithSessionExpired sets the bus that receives the 401 notification.
func WithSessionExpired(b *events.Bus[events.SessionExpired]) Option {
	return func(g *Gateway) { g.expired = b }
}

// WithAlerts sets the bus for user-facing error notices.
func WithAlerts(b *events.Bus[events.Alert]) Option {
	return func(g *Gateway) { g.alerts = b }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

func New(baseURL string, store TokenStore, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		store:   store,
		log:     logging.Nop(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// SessionExpired returns the bus the gateway publishes 401s on, creating one
// if none was configured.
func (g *Gateway) SessionExpired() *events.Bus[events.SessionExpired] {
	if g.expired == nil {
		g.expired = events.NewBus[events.SessionExpired]()
	}
	return g.expired
}

// Alerts returns the alert bus, creating one if none was configured.
func (g *Gateway) Alerts() *events.Bus[events.Alert] {
	if g.alerts == nil {
		g.alerts = events.NewBus[events.Alert]()
	}
	return g.alerts
}

type requestOptions struct {
	silent  bool
	noAuth  bool
	headers map[string]string
}

type RequestOption func(*requestOptions)

// Silent keeps a failure off the alert bus; the caller shows its own message.
func Silent() RequestOption {
	return func(o *requestOptions) { o.silent = true }
}

// WithoutAuth sends the call without the bearer token.
func WithoutAuth() RequestOption {
	return func(o *requestOptions) { o.noAuth = true }
}

func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// Do performs one backend call. body, when non-nil, is sent as JSON.
// Any returned error is a *Error.
func (g *Gateway) Do(ctx context.Context, method, path string, body any, opts ...RequestOption) (*Response, error) {
	var ro requestOptions
	for _, o := range opts {
		o(&ro)
	}

	reqID := uuid.NewString()
	log := g.log.With("request_id", reqID, "method", method, "path", path)

	req, err := g.newRequest(ctx, method, path, body, reqID, ro)
	if err != nil {
		return nil, g.fail(ctx, log, ro, &Error{Kind: KindTransport, Message: "cannot build request", RequestID: reqID, Err: err})
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.metrics.observe(method, 0, time.Since(start))
		return nil, g.fail(ctx, log, ro, &Error{Kind: KindTransport, Message: "network error", RequestID: reqID, Err: err})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	g.metrics.observe(method, resp.StatusCode, time.Since(start))
	log.Debug(ctx, "backend answered", "status", resp.StatusCode)

	// The status alone decides a 401; the body is irrelevant.
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, g.expire(ctx, log, reqID, path)
	}
	if err != nil {
		return nil, g.fail(ctx, log, ro, &Error{Kind: KindTransport, Status: resp.StatusCode, Message: "cannot read response", RequestID: reqID, Err: err})
	}
	if len(data) > maxBodySize {
		return nil, g.fail(ctx, log, ro, &Error{Kind: KindTransport, Status: resp.StatusCode, Message: "response too large", RequestID: reqID, Err: ErrResponseTooLarge})
	}

	raw, fields := normalizeBody(data)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fields.message()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, g.fail(ctx, log, ro, &Error{
			Kind:      KindServer,
			Status:    resp.StatusCode,
			Message:   msg,
			RequestID: reqID,
			Fields:    fields,
		})
	}

	res := &Response{Status: resp.StatusCode, RequestID: reqID, Fields: fields, raw: raw}
	if err := g.persist(ctx, log, res); err != nil {
		return nil, g.fail(ctx, log, ro, &Error{Kind: KindTransport, Status: resp.StatusCode, Message: "malformed response", RequestID: reqID, Err: err})
	}
	return res, nil
}

func (g *Gateway) newRequest(ctx context.Context, method, path string, body any, reqID string, ro requestOptions) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.url(path), reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(RequestIDHeader, reqID)
	if !ro.noAuth {
		if token, ok := g.store.Load(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range ro.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (g *Gateway) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return g.baseURL + path
}

// expire handles a 401: clear, notify once, then fail.
func (g *Gateway) expire(ctx context.Context, log logging.Logger, reqID, path string) error {
	if err := g.store.Clear(ctx); err != nil {
		log.Warn(ctx, "clearing session after 401 failed", "error", err)
	}
	g.metrics.sessionExpired()
	log.Info(ctx, "session expired")
	g.expired.Publish(events.SessionExpired{RequestID: reqID, Path: path})
	return &Error{Kind: KindSessionExpired, Status: http.StatusUnauthorized, Message: "session expired", RequestID: reqID}
}

func (g *Gateway) fail(ctx context.Context, log logging.Logger, ro requestOptions, e *Error) error {
	if e.Kind == KindServer {
		log.Info(ctx, "backend rejected request", "status", e.Status, "message", e.Message)
	} else {
		log.Warn(ctx, "backend call failed", "kind", e.Kind.String(), "error", e.Err)
	}
	if !ro.silent {
		g.alerts.Publish(events.Alert{RequestID: e.RequestID, Status: e.Status, Message: e.Error()})
	}
	return e
}

var errBadToken = errors.New(`"token" is not a string`)

// persist copies a fresh token and/or profile from a successful body into the
// store. Store failures are logged; a body whose token or user cannot be
// decoded is reported to the caller. A body announcing a pending second
// factor never creates a session, and a user without a token is only kept
// when a session already exists.
func (g *Gateway) persist(ctx context.Context, log logging.Logger, res *Response) error {
	if res.Fields.Bool("requires_2fa") {
		return nil
	}
	var (
		token string
		user  *session.User
	)
	if res.Fields.Has("token") {
		if err := res.Fields.Decode("token", &token); err != nil {
			return errBadToken
		}
	}
	if res.Fields.Has("user") {
		user = &session.User{}
		if err := res.Fields.Decode("user", user); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}
	}
	if token == "" && user != nil {
		if _, ok := g.store.Load(ctx); !ok {
			// A profile is only cached alongside a session.
			user = nil
		}
	}
	if token == "" && user == nil {
		return nil
	}
	if err := g.store.SaveSession(ctx, token, user); err != nil {
		log.Warn(ctx, "persisting session from response failed", "error", err)
	}
	return nil
}
