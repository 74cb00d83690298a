package cli

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayguard/relayguard/internal/config"
	"github.com/relayguard/relayguard/internal/models"
	"github.com/relayguard/relayguard/internal/store"
)

func seedAccountsFromConfig(s store.Store, cfg *config.Config) error {
	if s == nil || cfg == nil {
		return nil
	}

	for _, acc := range cfg.Accounts {
		enabled := true
		if acc.Enabled != nil {
			enabled = *acc.Enabled
		}
		mode := models.AuthMode(acc.Mode)
		if mode == "" {
			mode = models.ModeConsole
		}

		account := &models.Account{
			Name:         acc.Name,
			APIKey:       acc.APIKey,
			RefreshToken: acc.RefreshToken,
			Tier:         acc.Tier,
			Priority:     acc.Priority,
			Enabled:      enabled,
			Mode:         mode,
		}

		// Re-seeding must not wipe tokens acquired since the last start.
		if existing, ok := s.GetAccount(acc.Name); ok {
			account.AccessToken = existing.AccessToken
			account.AccessTokenExpiresAt = existing.AccessTokenExpiresAt
			if account.RefreshToken == "" {
				account.RefreshToken = existing.RefreshToken
			}
			if account.APIKey == "" {
				account.APIKey = existing.APIKey
			}
			account.RateLimitedUntil = existing.RateLimitedUntil
			account.CreatedAt = existing.CreatedAt
		}

		if err := account.Validate(); err != nil {
			return fmt.Errorf("invalid account %s: %w", acc.Name, err)
		}
		if err := s.SetAccount(account); err != nil {
			return fmt.Errorf("failed to store account %s: %w", acc.Name, err)
		}
	}

	return nil
}

// accountsCmd represents the accounts command
var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"a", "acc"},
	Short:   "List accounts stored in the database",
	Long: `List the accounts known to RelayGuard with their credential status.

Credentials are never printed; the output only shows whether an API key
or refresh token is present.

Examples:
  # Show all accounts
  relayguard accounts

  # Output as JSON
  relayguard accounts --json | jq '.'`,
	RunE: runAccounts,
}

func init() {
	RootCmd.AddCommand(accountsCmd)
}

// accountDisplayInfo is the redacted per-account view printed by the CLI.
type accountDisplayInfo struct {
	Name             string     `json:"name"`
	Tier             string     `json:"tier"`
	Priority         int        `json:"priority"`
	Mode             string     `json:"mode,omitempty"`
	Enabled          bool       `json:"enabled"`
	HasAPIKey        bool       `json:"has_api_key"`
	HasRefreshToken  bool       `json:"has_refresh_token"`
	TokenExpiresAt   *time.Time `json:"token_expires_at,omitempty"`
	RateLimitedUntil *time.Time `json:"rate_limited_until,omitempty"`
}

func runAccounts(cmd *cobra.Command, args []string) error {
	s, err := store.NewSQLiteStore(globalFlags.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	accounts := s.ListAccounts().SortByPriority()

	infos := make([]accountDisplayInfo, 0, len(accounts))
	for _, acc := range accounts {
		info := accountDisplayInfo{
			Name:             acc.Name,
			Tier:             acc.Tier,
			Priority:         acc.Priority,
			Mode:             string(acc.Mode),
			Enabled:          acc.Enabled,
			HasAPIKey:        acc.APIKey != "",
			HasRefreshToken:  acc.RefreshToken != "",
			RateLimitedUntil: acc.RateLimitedUntil,
		}
		if !acc.AccessTokenExpiresAt.IsZero() {
			expiry := acc.AccessTokenExpiresAt
			info.TokenExpiresAt = &expiry
		}
		infos = append(infos, info)
	}

	if globalFlags.JSON {
		return outputAccountsJSON(infos)
	}
	return outputAccountsTable(infos)
}

func outputAccountsJSON(infos []accountDisplayInfo) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(infos)
}

func outputAccountsTable(infos []accountDisplayInfo) error {
	if len(infos) == 0 {
		fmt.Println("No accounts stored. Seed them via the config file or `relayguard login`.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTIER\tPRIORITY\tMODE\tENABLED\tAPI KEY\tREFRESH TOKEN\tCOOLDOWN")

	now := time.Now()
	for _, info := range infos {
		cooldown := "-"
		if info.RateLimitedUntil != nil && info.RateLimitedUntil.After(now) {
			cooldown = fmt.Sprintf("until %s", info.RateLimitedUntil.Format(time.RFC3339))
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			info.Name,
			info.Tier,
			info.Priority,
			info.Mode,
			yesNo(info.Enabled),
			yesNo(info.HasAPIKey),
			yesNo(info.HasRefreshToken),
			cooldown,
		)
	}

	if err := w.Flush(); err != nil {
		log.Printf("Error flushing tabwriter: %v", err)
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
