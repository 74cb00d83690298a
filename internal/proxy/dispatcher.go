// Package proxy implements the failover dispatch loop: it walks the ordered
// candidate accounts, retries the buffered request against each one, and
// forwards the first response that is neither a rate-limit signal nor a
// transport failure.
package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/relayguard/relayguard/internal/errors"
	"github.com/relayguard/relayguard/internal/logging"
	"github.com/relayguard/relayguard/internal/models"
	"github.com/relayguard/relayguard/internal/provider"
	"github.com/relayguard/relayguard/internal/selector"
	"github.com/relayguard/relayguard/internal/store"
)

// TokenSource yields a usable access token for an account, refreshing if
// needed. Returns "" for API-key accounts.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, account *models.Account) (string, error)
}

// Forwarder receives one record per dispatch attempt. Fire-and-forget:
// dispatch state never depends on what the forwarder does with it.
type Forwarder interface {
	Forward(rec *models.ForwardRecord)
}

// Doer is the outbound client contract, satisfied by *upstream.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder observes dispatch outcomes, satisfied by *metrics.Metrics.
type Recorder interface {
	RecordAttempt(account, outcome string)
	RecordFailover(reason string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAttempt(string, string) {}
func (noopRecorder) RecordFailover(string)        {}

// Attempt outcomes reported to the Recorder.
const (
	OutcomeForwarded   = "forwarded"
	OutcomeRateLimited = "rate_limited"
	OutcomeTransport   = "transport_error"
	OutcomeNoToken     = "no_token"
)

type Dispatcher struct {
	store     store.Store
	selector  *selector.Selector
	tokens    TokenSource
	provider  *provider.Provider
	client    Doer
	forwarder Forwarder
	logger    *logging.Logger
	recorder  Recorder
	cooldown  time.Duration
	now       func() time.Time
}

type Option func(*Dispatcher)

func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

func WithForwarder(f Forwarder) Option {
	return func(d *Dispatcher) { d.forwarder = f }
}

// WithRateLimitCooldown sets the fallback cooldown applied when the provider
// gives no reset hint.
func WithRateLimitCooldown(cd time.Duration) Option {
	return func(d *Dispatcher) { d.cooldown = cd }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(st store.Store, sel *selector.Selector, tokens TokenSource, prov *provider.Provider, client Doer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    st,
		selector: sel,
		tokens:   tokens,
		provider: prov,
		client:   client,
		logger:   logging.NewLogger(),
		recorder: noopRecorder{},
		cooldown: time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the failover loop for one inbound request. body is the
// buffered request body, re-sent on every attempt. The returned response is
// forwarded verbatim to the caller; its body is not consumed here. On total
// failure the error is a *errors.ErrProvider.
func (d *Dispatcher) Dispatch(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	meta := models.RequestMeta{
		ID:        logging.GetCorrelationID(ctx),
		Timestamp: d.now(),
		AgentUsed: req.Header.Get("User-Agent"),
	}
	if meta.ID == "" {
		meta.ID = logging.GenerateCorrelationID()
	}

	candidates := d.selector.Candidates(d.now())
	failovers := 0
	attempt := 0

	for _, account := range candidates {
		token, skip := d.authenticate(ctx, account)
		if skip {
			d.recorder.RecordAttempt(account.Name, OutcomeNoToken)
			failovers++
			continue
		}
		attempt++

		if provider.FirstPartyClient(req.Header) && account.IsOAuth() && account.APIKey == "" && provider.StandardAPIPath(req.URL.Path) {
			d.logger.WarnWithContext(ctx, "oauth-only account on standard API surface, attempting anyway",
				"account", account.Name, "path", req.URL.Path)
		}

		resp, err := d.attempt(ctx, req, body, account, token, meta, attempt, failovers, false)
		if err != nil {
			d.logger.ErrorWithContext(ctx, "upstream attempt failed",
				"account", account.Name, "attempt", attempt, "error", err.Error())
			d.recorder.RecordAttempt(account.Name, OutcomeTransport)
			d.recorder.RecordFailover(OutcomeTransport)
			failovers++
			continue
		}

		if info := d.provider.Inspect(resp); info.Limited {
			d.markRateLimited(ctx, account.Name, info.ResetAt)
			drainBody(resp)
			d.recorder.RecordAttempt(account.Name, OutcomeRateLimited)
			d.recorder.RecordFailover(OutcomeRateLimited)
			failovers++
			continue
		}

		d.selector.MarkUsed(account.Name, d.now())
		d.recorder.RecordAttempt(account.Name, OutcomeForwarded)
		return resp, nil
	}

	return d.unauthenticatedFallback(ctx, req, body, meta, attempt, failovers)
}

// authenticate resolves the credential for an attempt. skip means the
// account is OAuth-mode with no reachable token and cannot carry the request.
func (d *Dispatcher) authenticate(ctx context.Context, account *models.Account) (token string, skip bool) {
	if !account.IsOAuth() {
		return "", false
	}
	token, err := d.tokens.GetValidAccessToken(ctx, account)
	if err != nil {
		d.logger.WarnWithContext(ctx, "token unavailable, skipping account",
			"account", account.Name, "error", err.Error())
		if account.APIKey != "" {
			return "", false
		}
		return "", true
	}
	return token, false
}

func (d *Dispatcher) attempt(ctx context.Context, req *http.Request, body []byte, account *models.Account, token string, meta models.RequestMeta, attempt, failovers int, unauthenticated bool) (*http.Response, error) {
	targetURL := d.provider.BuildURL(req.URL.Path, req.URL.RawQuery)

	out, err := http.NewRequestWithContext(ctx, req.Method, targetURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	apiKey := ""
	accountName := ""
	if account != nil {
		apiKey = account.APIKey
		accountName = account.Name
	}
	if unauthenticated {
		token, apiKey = "", ""
	}
	out.Header = d.provider.PrepareHeaders(req.Header, token, apiKey)

	resp, doErr := d.client.Do(out)

	if d.forwarder != nil {
		d.forwarder.Forward(&models.ForwardRecord{
			RequestID:    meta.ID,
			Method:       req.Method,
			Path:         req.URL.Path,
			AccountName:  accountName,
			Headers:      req.Header.Clone(),
			Body:         body,
			Response:     resp,
			Timestamp:    d.now(),
			Attempt:      attempt,
			Failovers:    failovers,
			AgentUsed:    meta.AgentUsed,
			Unauthorized: unauthenticated,
		})
	}
	return resp, doErr
}

func (d *Dispatcher) unauthenticatedFallback(ctx context.Context, req *http.Request, body []byte, meta models.RequestMeta, attempt, failovers int) (*http.Response, error) {
	d.logger.InfoWithContext(ctx, "candidate accounts exhausted, attempting unauthenticated",
		"attempts", attempt, "failovers", failovers)

	resp, err := d.attempt(ctx, req, body, nil, "", meta, attempt+1, failovers, true)
	if err != nil {
		d.recorder.RecordAttempt("", OutcomeTransport)
		return nil, &errors.ErrProvider{
			StatusCode: http.StatusBadGateway,
			Detail:     "all accounts exhausted and unauthenticated attempt failed",
			Err:        err,
		}
	}
	d.recorder.RecordAttempt("", OutcomeForwarded)
	return resp, nil
}

func (d *Dispatcher) markRateLimited(ctx context.Context, name string, resetAt time.Time) {
	until := resetAt
	if until.IsZero() {
		until = d.now().Add(d.cooldown)
	}
	if err := d.store.SetAccountRateLimitedUntil(name, &until); err != nil {
		d.logger.ErrorWithContext(ctx, "failed to persist rate-limit cooldown",
			"account", name, "error", err.Error())
	}
	d.logger.WarnWithContext(ctx, "account rate limited",
		"account", name, "until", until.Format(time.RFC3339))
}

// drainBody discards the remaining body before closing so the underlying
// connection can be reused for the next attempt.
func drainBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
