package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayguard/relayguard/internal/config"
	apperrors "github.com/relayguard/relayguard/internal/errors"
	"github.com/relayguard/relayguard/internal/models"
	"github.com/relayguard/relayguard/internal/oauth"
	"github.com/relayguard/relayguard/internal/store"
)

type stubDispatcher struct {
	resp   *http.Response
	err    error
	called int
	body   []byte
}

func (d *stubDispatcher) Dispatch(_ context.Context, _ *http.Request, body []byte) (*http.Response, error) {
	d.called++
	d.body = body
	if d.err != nil {
		return nil, d.err
	}
	return d.resp, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 8318
	cfg.API.Keys = []string{"test-admin-key"}
	cfg.OAuth.AuthorizeURL = "https://auth.example.com/authorize"
	cfg.OAuth.TokenURL = "https://auth.example.com/token"
	cfg.OAuth.ClientID = "client-123"
	cfg.OAuth.Scopes = []string{"inference"}
	cfg.OAuth.RedirectURI = "https://relay.local/callback"
	cfg.Session.TTL = 10 * time.Minute
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, st store.Store, d Dispatcher, ex *oauth.Client) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	if st == nil {
		st = store.NewMemoryStore()
	}
	if d == nil {
		d = &stubDispatcher{resp: &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("")),
		}}
	}
	if ex == nil {
		ex = oauth.NewClient()
	}
	return NewServer(cfg, st, d, ex)
}

func doJSON(t *testing.T, s *Server, method, path, apiKey string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(DefaultAPIKeyHeader, apiKey)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil, nil, nil)
	w := doJSON(t, s, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestMetricsEndpointNoAuth(t *testing.T) {
	s := newTestServer(t, nil, nil, nil, nil)
	w := doJSON(t, s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRequiresAPIKey(t *testing.T) {
	s := newTestServer(t, nil, nil, nil, nil)

	w := doJSON(t, s, http.MethodGet, "/admin/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, s, http.MethodGet, "/admin/accounts", "wrong-key", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, s, http.MethodGet, "/admin/accounts", "test-admin-key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListAccountsRedactsCredentials(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.SetAccount(&models.Account{
		Name: "acct", APIKey: "sk-secret", RefreshToken: "rt-secret", Enabled: true,
	}))
	s := newTestServer(t, nil, st, nil, nil)

	w := doJSON(t, s, http.MethodGet, "/admin/accounts", "test-admin-key", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "sk-secret")
	assert.NotContains(t, body, "rt-secret")
	assert.Contains(t, body, `"has_api_key":true`)
	assert.Contains(t, body, `"has_refresh_token":true`)
}

func TestUpsertAndDeleteAccount(t *testing.T) {
	st := store.NewMemoryStore()
	s := newTestServer(t, nil, st, nil, nil)

	w := doJSON(t, s, http.MethodPost, "/admin/accounts", "test-admin-key", UpsertAccountRequest{
		Name: "new-acct", APIKey: "sk-1", Tier: "pro", Priority: 5,
	})
	require.Equal(t, http.StatusOK, w.Code)

	acc, ok := st.GetAccount("new-acct")
	require.True(t, ok)
	assert.Equal(t, "pro", acc.Tier)
	assert.True(t, acc.Enabled)

	w = doJSON(t, s, http.MethodDelete, "/admin/accounts/new-acct", "test-admin-key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, ok = st.GetAccount("new-acct")
	assert.False(t, ok)

	w = doJSON(t, s, http.MethodDelete, "/admin/accounts/missing", "test-admin-key", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpsertAccountRejectsCredentialless(t *testing.T) {
	s := newTestServer(t, nil, nil, nil, nil)
	w := doJSON(t, s, http.MethodPost, "/admin/accounts", "test-admin-key", UpsertAccountRequest{
		Name: "no-creds",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClearCooldown(t *testing.T) {
	st := store.NewMemoryStore()
	until := time.Now().Add(time.Hour)
	require.NoError(t, st.SetAccount(&models.Account{Name: "a", APIKey: "k", Enabled: true, RateLimitedUntil: &until}))
	s := newTestServer(t, nil, st, nil, nil)

	w := doJSON(t, s, http.MethodPost, "/admin/accounts/a/cooldown/clear", "test-admin-key", nil)
	require.Equal(t, http.StatusOK, w.Code)

	acc, ok := st.GetAccount("a")
	require.True(t, ok)
	assert.Nil(t, acc.RateLimitedUntil)
}

func TestProxyForwardsDispatcherResponse(t *testing.T) {
	d := &stubDispatcher{resp: &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}, "Request-Id": {"req_1"}},
		Body:       io.NopCloser(strings.NewReader(`{"completion":"hi"}`)),
	}}
	s := newTestServer(t, nil, nil, d, nil)

	w := doJSON(t, s, http.MethodPost, "/v1/messages", "", map[string]any{"model": "x"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"completion":"hi"}`, w.Body.String())
	assert.Equal(t, "req_1", w.Header().Get("Request-Id"))
	assert.Equal(t, 1, d.called)
	assert.Contains(t, string(d.body), `"model":"x"`)
}

func TestProxyUpstreamErrorForwarded(t *testing.T) {
	d := &stubDispatcher{resp: &http.Response{
		StatusCode: http.StatusBadRequest,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(`{"error":"bad request"}`)),
	}}
	s := newTestServer(t, nil, nil, d, nil)

	w := doJSON(t, s, http.MethodPost, "/v1/messages", "", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bad request")
}

func TestProxyProviderErrorBecomesStatus(t *testing.T) {
	d := &stubDispatcher{err: &apperrors.ErrProvider{StatusCode: http.StatusBadGateway, Detail: "exhausted"}}
	s := newTestServer(t, nil, nil, d, nil)

	w := doJSON(t, s, http.MethodPost, "/v1/messages", "", map[string]any{})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "upstream unavailable")
}

func TestOAuthAuthorizeCreatesSession(t *testing.T) {
	st := store.NewMemoryStore()
	s := newTestServer(t, nil, st, nil, nil)

	w := doJSON(t, s, http.MethodPost, "/oauth/authorize", "test-admin-key", AuthorizeRequest{
		AccountName: "acct-1", Mode: "max", Tier: "max",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp AuthorizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	assert.Contains(t, resp.AuthorizationURL, "code_challenge=")
	assert.Contains(t, resp.AuthorizationURL, "code_challenge_method=S256")

	sess, ok := st.GetSession(resp.SessionID)
	require.True(t, ok)
	assert.Equal(t, "acct-1", sess.AccountName)
	assert.Equal(t, models.ModeMax, sess.Mode)
	assert.NotEmpty(t, sess.Verifier)
}

func TestOAuthAuthorizeRejectsUnknownMode(t *testing.T) {
	s := newTestServer(t, nil, nil, nil, nil)
	w := doJSON(t, s, http.MethodPost, "/oauth/authorize", "test-admin-key", AuthorizeRequest{
		AccountName: "acct-1", Mode: "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOAuthExchangeFlow(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-new","refresh_token":"rt-new","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	cfg := testConfig()
	cfg.OAuth.TokenURL = tokenSrv.URL

	st := store.NewMemoryStore()
	s := newTestServer(t, cfg, st, nil, oauth.NewClient())

	w := doJSON(t, s, http.MethodPost, "/oauth/authorize", "test-admin-key", AuthorizeRequest{
		AccountName: "acct-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var auth AuthorizeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auth))

	sess, ok := st.GetSession(auth.SessionID)
	require.True(t, ok)

	w = doJSON(t, s, http.MethodPost, "/oauth/exchange", "test-admin-key", ExchangeRequest{
		SessionID: auth.SessionID, Code: "the-code#" + sess.State,
	})
	require.Equal(t, http.StatusOK, w.Code)

	acc, ok := st.GetAccount("acct-1")
	require.True(t, ok)
	assert.Equal(t, "at-new", acc.AccessToken)
	assert.Equal(t, "rt-new", acc.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), acc.AccessTokenExpiresAt, 5*time.Second)

	// Session is single-use.
	_, ok = st.GetSession(auth.SessionID)
	assert.False(t, ok)

	w = doJSON(t, s, http.MethodPost, "/oauth/exchange", "test-admin-key", ExchangeRequest{
		SessionID: auth.SessionID, Code: "the-code",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOAuthExchangeValidatesState(t *testing.T) {
	var tokenCalls int
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	cfg := testConfig()
	cfg.OAuth.TokenURL = tokenSrv.URL

	st := store.NewMemoryStore()
	s := newTestServer(t, cfg, st, nil, oauth.NewClient())

	startSession := func() *models.OAuthSession {
		w := doJSON(t, s, http.MethodPost, "/oauth/authorize", "test-admin-key", AuthorizeRequest{
			AccountName: "acct-1",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		var auth AuthorizeResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auth))
		sess, ok := st.GetSession(auth.SessionID)
		require.True(t, ok)
		return sess
	}

	sess := startSession()

	// Forged explicit state: rejected before the token endpoint is touched,
	// and the session stays redeemable.
	w := doJSON(t, s, http.MethodPost, "/oauth/exchange", "test-admin-key", ExchangeRequest{
		SessionID: sess.ID, Code: "the-code", State: "attacker-forged-state",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, tokenCalls)
	_, ok := st.GetSession(sess.ID)
	assert.True(t, ok, "forged exchange must not retire the session")

	// Mismatched embedded state is rejected the same way.
	w = doJSON(t, s, http.MethodPost, "/oauth/exchange", "test-admin-key", ExchangeRequest{
		SessionID: sess.ID, Code: "the-code#wrong-state",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, tokenCalls)

	// Matching explicit state succeeds.
	w = doJSON(t, s, http.MethodPost, "/oauth/exchange", "test-admin-key", ExchangeRequest{
		SessionID: sess.ID, Code: "the-code", State: sess.State,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, tokenCalls)

	// Matching embedded state succeeds too.
	sess = startSession()
	w = doJSON(t, s, http.MethodPost, "/oauth/exchange", "test-admin-key", ExchangeRequest{
		SessionID: sess.ID, Code: "the-code#" + sess.State,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, tokenCalls)
}

func TestOAuthExchangeExpiredSession(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	require.NoError(t, st.CreateSession(&models.OAuthSession{
		ID:          "expired-session",
		AccountName: "acct",
		Verifier:    "v",
		CreatedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(-time.Minute),
	}))
	s := newTestServer(t, nil, st, nil, nil)

	w := doJSON(t, s, http.MethodPost, "/oauth/exchange", "test-admin-key", ExchangeRequest{
		SessionID: "expired-session", Code: "code",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	st := store.NewMemoryStore()
	until := time.Now().Add(time.Hour)
	require.NoError(t, st.SetAccount(&models.Account{Name: "a", APIKey: "k", Enabled: true, RateLimitedUntil: &until}))
	require.NoError(t, st.SetAccount(&models.Account{Name: "b", APIKey: "k", Enabled: true}))
	s := newTestServer(t, nil, st, nil, nil)

	w := doJSON(t, s, http.MethodGet, "/admin/stats", "test-admin-key", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 2, stats["accounts"])
	assert.EqualValues(t, 1, stats["rate_limited_accounts"])
}
