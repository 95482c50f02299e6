package gateway

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

	"github.com/google/uuid"
	"github.com/inconshreveable/log15"
)

// HTTPConfig configures the HTTP gateway.
type HTTPConfig struct {
	// Endpoint is the base URL of the hosted store.
	Endpoint string

	// AccessKey authenticates every call.
	AccessKey string

	// Timeout is the transport default applied to every call.
	Timeout time.Duration

	// MaxRetries bounds the built-in retry for network/timeout failures on
	// reads. Writes are never retried.
	MaxRetries int

	// RetryBaseDelay is the backoff base; attempt n waits base << n.
	RetryBaseDelay time.Duration

	// ProcedureTimeout caps per-request procedure timeouts. Must not exceed
	// Timeout.
	ProcedureTimeout time.Duration
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 100 * time.Millisecond
	}
	if c.ProcedureTimeout <= 0 {
		c.ProcedureTimeout = DefaultProcedureTimeout
	}
	return c
}

// Validate reports configuration problems as config-kind errors so callers
// can distinguish "not set up" from transport failures.
func (c HTTPConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return NewError(KindConfig, "endpoint is not configured")
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		return WrapError(KindConfig, err, "endpoint %q is not a valid URL", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return NewError(KindConfig, "access key is not configured")
	}
	cfg := c.withDefaults()
	if cfg.ProcedureTimeout > cfg.Timeout {
		return NewError(KindConfig, "procedure timeout %s exceeds transport timeout %s", cfg.ProcedureTimeout, cfg.Timeout)
	}
	return nil
}

// HTTP is the Gateway implementation speaking the hosted store's REST
// dialect.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
	log    log15.Logger
}

var _ Gateway = (*HTTP)(nil)

// NewHTTP creates an HTTP gateway. A nil logger silences gateway logging.
func NewHTTP(cfg HTTPConfig, logger log15.Logger) (*HTTP, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	if logger == nil {
		logger = log15.New("module", "gateway")
		logger.SetHandler(log15.DiscardHandler())
	}

	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger,
	}, nil
}

// envelope is the wire response shape.
type envelope struct {
	Data  []Row `json:"data"`
	Error *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// Query implements Gateway.Query with bounded retry for transient failures.
func (g *HTTP) Query(ctx context.Context, req ReadRequest) ([]Row, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	u := g.entityURL(req.Entity, req.Filter)
	if req.Limit > 0 {
		q := u.Query()
		q.Set("limit", strconv.Itoa(req.Limit))
		u.RawQuery = q.Encode()
	}

	return g.withRetry(ctx, "Query "+req.Entity, func() ([]Row, error) {
		return g.roundTrip(ctx, http.MethodGet, u.String(), nil)
	})
}

// Mutate implements Gateway.Mutate. Writes are issued exactly once; a
// timed-out write may or may not have been applied and retrying it here
// could double-apply.
func (g *HTTP) Mutate(ctx context.Context, req WriteRequest) (Row, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		method string
		body   []byte
		err    error
	)

	switch req.Op {
	case OpInsert:
		method = http.MethodPost
	case OpUpdate:
		method = http.MethodPatch
	case OpDelete:
		method = http.MethodDelete
	}

	if req.Op != OpDelete {
		if body, err = json.Marshal(req.Payload); err != nil {
			return nil, WrapError(KindValidation, err, "payload is not serializable")
		}
	}

	u := g.entityURL(req.Entity, req.Match)

	rows, err := g.roundTrip(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return req.Payload, nil
	}
	return rows[0], nil
}

// Call implements Gateway.Call, racing the procedure against its hard
// timeout. A late result is discarded with the cancelled context.
func (g *HTTP) Call(ctx context.Context, req ProcedureRequest) (Row, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req.Args)
	if err != nil {
		return nil, WrapError(KindValidation, err, "procedure args are not serializable")
	}

	timeout := req.EffectiveTimeout(g.cfg.ProcedureTimeout)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := *g.base()
	u.Path = strings.TrimSuffix(u.Path, "/") + "/rest/v1/rpc/" + req.Name

	rows, err := g.roundTrip(callCtx, http.MethodPost, u.String(), body)
	if err != nil {
		if KindOf(err) == KindTimeout {
			return nil, WrapError(KindTimeout, err, "procedure %s exceeded %s", req.Name, timeout)
		}
		return nil, err
	}
	if len(rows) == 0 {
		return Row{}, nil
	}
	return rows[0], nil
}

// withRetry runs op up to MaxRetries+1 times for retryable kinds, backing
// off between attempts.
func (g *HTTP) withRetry(ctx context.Context, label string, op func() ([]Row, error)) ([]Row, error) {
	var lastErr error

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		rows, err := op()
		if err == nil {
			return rows, nil
		}
		lastErr = err

		kind := KindOf(err)
		if !kind.Retryable() || attempt == g.cfg.MaxRetries {
			return nil, err
		}

		delay := g.cfg.RetryBaseDelay << uint(attempt)
		g.log.Warn("retrying gateway call",
			"op", label, "attempt", attempt+1, "kind", string(kind), "delay", delay, "err", err)

		select {
		case <-ctx.Done():
			return nil, WrapError(KindTimeout, ctx.Err(), "%s cancelled while retrying", label)
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

func (g *HTTP) base() *url.URL {
	u, _ := url.Parse(g.cfg.Endpoint)
	return u
}

// entityURL builds /rest/v1/{entity} with the filter rendered as query
// parameters: col=eq.value plus or=(a.eq.1,b.eq.2).
func (g *HTTP) entityURL(entity string, f Filter) *url.URL {
	u := *g.base()
	u.Path = strings.TrimSuffix(u.Path, "/") + "/rest/v1/" + entity

	q := u.Query()
	for _, c := range f.Eq {
		q.Add(c.Column, "eq."+fmt.Sprint(c.Value))
	}
	if len(f.Or) > 0 {
		parts := make([]string, 0, len(f.Or))
		for _, c := range f.Or {
			parts = append(parts, c.Column+".eq."+fmt.Sprint(c.Value))
		}
		q.Set("or", "("+strings.Join(parts, ",")+")")
	}
	u.RawQuery = q.Encode()

	return &u
}

// roundTrip performs a single attempt and classifies the outcome.
func (g *HTTP) roundTrip(ctx context.Context, method, rawURL string, body []byte) ([]Row, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, WrapError(KindUnknown, err, "building request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("apikey", g.cfg.AccessKey)
	req.Header.Set("Authorization", "Bearer "+g.cfg.AccessKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, WrapError(KindTimeout, err, "%s %s timed out", method, rawURL)
		}
		return nil, WrapError(KindNetwork, err, "%s %s failed", method, rawURL)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(KindNetwork, err, "reading response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, g.statusError(resp.StatusCode, raw)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, WrapError(KindUnknown, err, "decoding response")
		}
	}

	if env.Error != nil {
		return nil, NewError(kindFromWire(env.Error.Kind), "%s", env.Error.Message)
	}

	return env.Data, nil
}

func (g *HTTP) statusError(status int, raw []byte) error {
	var env envelope
	msg := http.StatusText(status)
	if json.Unmarshal(raw, &env) == nil && env.Error != nil && env.Error.Message != "" {
		msg = env.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(KindPermission, "%s", msg)
	case status == http.StatusNotFound || status == http.StatusNotAcceptable:
		return NewError(KindNotFound, "%s", msg)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return NewError(KindValidation, "%s", msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewError(KindTimeout, "%s", msg)
	case status >= 500:
		return NewError(KindNetwork, "server error %d: %s", status, msg)
	}

	return NewError(KindUnknown, "unexpected status %d: %s", status, msg)
}

func kindFromWire(s string) Kind {
	switch Kind(s) {
	case KindNetwork, KindTimeout, KindPermission, KindNotFound, KindValidation, KindConfig:
		return Kind(s)
	}
	return KindUnknown
}
