package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relayguard/relayguard/internal/config"
	"github.com/relayguard/relayguard/internal/errors"
	"github.com/relayguard/relayguard/internal/models"
)

// Client executes the authorization-code and refresh-token grants against the
// provider's token endpoint.
type Client struct {
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for token requests
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new exchange client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildAuthorizationRequest constructs the provider's authorize URL with a
// freshly generated anti-forgery state. Pure construction: the caller is
// responsible for persisting the state and verifier via the session store.
func BuildAuthorizationRequest(cfg config.OAuthProviderConfig, pkce models.PKCEChallenge) (string, string, error) {
	state, err := randomToken(32)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}

	u, err := url.Parse(cfg.AuthorizeURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid authorize URL: %w", err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", cfg.ClientID)
	q.Set("redirect_uri", cfg.RedirectURI)
	q.Set("scope", strings.Join(cfg.Scopes, " "))
	q.Set("code_challenge", pkce.Challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("state", state)
	u.RawQuery = q.Encode()

	return u.String(), state, nil
}

// SplitCode separates a composite "code#state" value into its parts. Some
// authorization surfaces cannot do a separate state round-trip and embed the
// state after the first '#'; a bare code yields an empty state.
func SplitCode(raw string) (code, state string) {
	if idx := strings.Index(raw, "#"); idx >= 0 {
		return raw[:idx], raw[idx+1:]
	}
	return raw, ""
}

// tokenRequest is the JSON body sent to the token endpoint.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	ClientID     string `json:"client_id"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	State        string `json:"state,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// tokenResponse is the JSON payload returned by the token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// oauthErrorResponse is the provider's structured error payload.
type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeCode trades an authorization code for tokens. The code may arrive
// either bare or as a composite "code#state" string; an explicitly supplied
// stateParam is preferred over the embedded state.
func (c *Client) ExchangeCode(ctx context.Context, rawCode, verifier string, cfg config.OAuthProviderConfig, stateParam string) (models.TokenResult, error) {
	code, embeddedState := SplitCode(rawCode)
	state := stateParam
	if state == "" {
		state = embeddedState
	}

	return c.requestToken(ctx, cfg.TokenURL, tokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		RedirectURI:  cfg.RedirectURI,
		ClientID:     cfg.ClientID,
		CodeVerifier: verifier,
		State:        state,
	})
}

// Refresh trades a refresh token for a new token set.
func (c *Client) Refresh(ctx context.Context, refreshToken string, cfg config.OAuthProviderConfig) (models.TokenResult, error) {
	return c.requestToken(ctx, cfg.TokenURL, tokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
		ClientID:     cfg.ClientID,
	})
}

func (c *Client) requestToken(ctx context.Context, tokenURL string, body tokenRequest) (models.TokenResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return models.TokenResult{}, &errors.ErrOAuth{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(payload))
	if err != nil {
		return models.TokenResult{}, &errors.ErrOAuth{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.TokenResult{}, &errors.ErrOAuth{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.TokenResult{}, &errors.ErrOAuth{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var provider oauthErrorResponse
		if err := json.Unmarshal(raw, &provider); err == nil && provider.Error != "" {
			return models.TokenResult{}, &errors.ErrOAuth{
				Code:        provider.Error,
				Description: provider.ErrorDescription,
			}
		}
		return models.TokenResult{}, &errors.ErrOAuth{Status: resp.Status}
	}

	var token tokenResponse
	if err := json.Unmarshal(raw, &token); err != nil {
		return models.TokenResult{}, &errors.ErrOAuth{Err: err}
	}
	if token.AccessToken == "" {
		return models.TokenResult{}, &errors.ErrOAuth{Status: "token endpoint returned no access_token"}
	}

	return models.TokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}, nil
}
