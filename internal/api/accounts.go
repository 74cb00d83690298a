package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relayguard/relayguard/internal/models"
)

// AccountView is the redacted account representation returned by the
// management API. Credentials never leave the process.
type AccountView struct {
	Name             string     `json:"name"`
	Tier             string     `json:"tier,omitempty"`
	Priority         int        `json:"priority"`
	Enabled          bool       `json:"enabled"`
	Mode             string     `json:"mode,omitempty"`
	HasAPIKey        bool       `json:"has_api_key"`
	HasRefreshToken  bool       `json:"has_refresh_token"`
	TokenExpiresAt   *time.Time `json:"token_expires_at,omitempty"`
	RateLimitedUntil *time.Time `json:"rate_limited_until,omitempty"`
}

func accountView(acc *models.Account) AccountView {
	v := AccountView{
		Name:             acc.Name,
		Tier:             acc.Tier,
		Priority:         acc.Priority,
		Enabled:          acc.Enabled,
		Mode:             string(acc.Mode),
		HasAPIKey:        acc.APIKey != "",
		HasRefreshToken:  acc.RefreshToken != "",
		RateLimitedUntil: acc.RateLimitedUntil,
	}
	if !acc.AccessTokenExpiresAt.IsZero() {
		expires := acc.AccessTokenExpiresAt
		v.TokenExpiresAt = &expires
	}
	return v
}

// handleListAccounts returns every account, credentials redacted.
func (s *Server) handleListAccounts(c *gin.Context) {
	accounts := s.store.ListAccounts().SortByPriority()

	views := make([]AccountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, accountView(acc))
	}
	c.JSON(http.StatusOK, views)
}

// UpsertAccountRequest creates or replaces an account.
type UpsertAccountRequest struct {
	Name         string `json:"name" binding:"required"`
	APIKey       string `json:"api_key,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Tier         string `json:"tier,omitempty"`
	Priority     int    `json:"priority,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
	Mode         string `json:"mode,omitempty"`
}

func (s *Server) handleUpsertAccount(c *gin.Context) {
	var req UpsertAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	mode := models.AuthMode(req.Mode)
	if req.Mode == "" {
		mode = models.ModeConsole
	}

	acc := &models.Account{
		Name:         req.Name,
		APIKey:       req.APIKey,
		RefreshToken: req.RefreshToken,
		Tier:         req.Tier,
		Priority:     req.Priority,
		Enabled:      enabled,
		Mode:         mode,
	}
	if existing, ok := s.store.GetAccount(req.Name); ok {
		// Preserve cached tokens across metadata updates.
		acc.AccessToken = existing.AccessToken
		acc.AccessTokenExpiresAt = existing.AccessTokenExpiresAt
		if acc.RefreshToken == "" {
			acc.RefreshToken = existing.RefreshToken
		}
		if acc.APIKey == "" {
			acc.APIKey = existing.APIKey
		}
	}

	if err := acc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.SetAccount(acc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.logger.InfoWithContext(c.Request.Context(), "account upserted", "account", acc.Name)
	c.JSON(http.StatusOK, accountView(acc))
}

func (s *Server) handleDeleteAccount(c *gin.Context) {
	name := c.Param("name")
	if !s.store.DeleteAccount(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}
	s.logger.InfoWithContext(c.Request.Context(), "account deleted", "account", name)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// handleClearCooldown lifts an account's rate-limit cooldown early.
func (s *Server) handleClearCooldown(c *gin.Context) {
	name := c.Param("name")
	if err := s.store.SetAccountRateLimitedUntil(name, nil); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.logger.InfoWithContext(c.Request.Context(), "cooldown cleared", "account", name)
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (s *Server) handleStats(c *gin.Context) {
	accounts := s.store.ListAccounts()
	now := time.Now()

	rateLimited := 0
	for _, acc := range accounts {
		if acc.IsRateLimited(now) {
			rateLimited++
		}
	}
	s.metrics.SetRateLimitedAccounts(rateLimited)

	stats := gin.H{
		"accounts":              len(accounts),
		"enabled_accounts":      len(accounts.FilterEnabled()),
		"rate_limited_accounts": rateLimited,
	}
	if s.sweeper != nil {
		stats["session_sweeper"] = s.sweeper.GetStats()
	}
	c.JSON(http.StatusOK, stats)
}
