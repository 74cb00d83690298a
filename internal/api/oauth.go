package api

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/relayguard/relayguard/internal/errors"
	"github.com/relayguard/relayguard/internal/models"
	"github.com/relayguard/relayguard/internal/oauth"
)

// AuthorizeRequest starts a browser authorization handshake for an account.
type AuthorizeRequest struct {
	AccountName string `json:"account_name" binding:"required"`
	Mode        string `json:"mode,omitempty"`
	Tier        string `json:"tier,omitempty"`
}

// AuthorizeResponse carries the URL the user must visit and the session id
// that redeems the resulting code.
type AuthorizeResponse struct {
	SessionID        string    `json:"session_id"`
	AuthorizationURL string    `json:"authorization_url"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// handleOAuthAuthorize generates PKCE material, persists a session bound to
// it, and hands back the authorization URL.
func (s *Server) handleOAuthAuthorize(c *gin.Context) {
	var req AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode := models.AuthMode(req.Mode)
	if req.Mode == "" {
		mode = models.ModeConsole
	}
	if !mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mode: " + req.Mode})
		return
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate PKCE material"})
		return
	}

	providerCfg := s.oauthCfg.ProviderConfig(mode)
	authURL, state, err := oauth.BuildAuthorizationRequest(providerCfg, pkce)
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "authorization URL construction failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build authorization URL"})
		return
	}

	ttl := s.sessionCfg.TTL
	if ttl <= 0 {
		ttl = models.DefaultSessionTTL
	}
	now := time.Now()
	sess := &models.OAuthSession{
		ID:          uuid.NewString(),
		AccountName: req.AccountName,
		Verifier:    pkce.Verifier,
		State:       state,
		Mode:        mode,
		Tier:        req.Tier,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	if err := s.store.CreateSession(sess); err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "session creation failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	s.logger.InfoWithContext(c.Request.Context(), "authorization started",
		"session_id", sess.ID,
		"account", req.AccountName,
		"mode", string(mode),
	)

	c.JSON(http.StatusCreated, AuthorizeResponse{
		SessionID:        sess.ID,
		AuthorizationURL: authURL,
		ExpiresAt:        sess.ExpiresAt,
	})
}

// ExchangeRequest redeems an authorization code against a stored session.
type ExchangeRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Code      string `json:"code" binding:"required"`
	State     string `json:"state,omitempty"`
}

// ExchangeResponse confirms the account now holds fresh tokens. Token values
// are never echoed back.
type ExchangeResponse struct {
	AccountName string    `json:"account_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// handleOAuthExchange exchanges the user-supplied code for tokens using the
// session's PKCE verifier, persists them on the account, and retires the
// session. Sessions are single-use regardless of the exchange outcome for
// anything but a missing session.
func (s *Server) handleOAuthExchange(c *gin.Context) {
	var req ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, ok := s.store.GetSession(req.SessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found or expired"})
		return
	}

	// Anti-forgery check: the state echoed back by the caller (explicit
	// field, else the fragment embedded in the code) must match the one
	// issued with the authorization URL. The session survives a mismatch so
	// a forged callback cannot retire the real handshake.
	if sess.State != "" {
		state := req.State
		if state == "" {
			_, state = oauth.SplitCode(req.Code)
		}
		if state != sess.State {
			s.logger.WarnWithContext(c.Request.Context(), "state mismatch on code exchange",
				"session_id", sess.ID, "account", sess.AccountName)
			c.JSON(http.StatusBadRequest, gin.H{"error": "state mismatch"})
			return
		}
	}

	providerCfg := s.oauthCfg.ProviderConfig(sess.Mode)
	result, err := s.exchanger.ExchangeCode(c.Request.Context(), req.Code, sess.Verifier, providerCfg, req.State)
	if err != nil {
		_ = s.store.DeleteSession(sess.ID)
		status := http.StatusBadGateway
		var oauthErr *apperrors.ErrOAuth
		if stderrors.As(err, &oauthErr) {
			status = http.StatusBadRequest
		}
		s.logger.ErrorWithContext(c.Request.Context(), "code exchange failed",
			"session_id", sess.ID, "account", sess.AccountName, "error", err.Error())
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	account, ok := s.store.GetAccount(sess.AccountName)
	if !ok {
		account = &models.Account{
			Name:    sess.AccountName,
			Tier:    sess.Tier,
			Mode:    sess.Mode,
			Enabled: true,
		}
	}
	account.RefreshToken = result.RefreshToken
	account.AccessToken = result.AccessToken
	account.AccessTokenExpiresAt = result.ExpiresAt
	if sess.Tier != "" {
		account.Tier = sess.Tier
	}
	account.Mode = sess.Mode

	if err := s.store.SetAccount(account); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	_ = s.store.DeleteSession(sess.ID)

	s.logger.InfoWithContext(c.Request.Context(), "account authorized",
		"account", account.Name, "mode", string(account.Mode))

	c.JSON(http.StatusOK, ExchangeResponse{
		AccountName: account.Name,
		ExpiresAt:   result.ExpiresAt,
	})
}
