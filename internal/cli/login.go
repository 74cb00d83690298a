package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayguard/relayguard/internal/config"
	"github.com/relayguard/relayguard/internal/models"
	"github.com/relayguard/relayguard/internal/oauth"
	"github.com/relayguard/relayguard/internal/store"
)

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:     "login <account-name>",
	Aliases: []string{"auth", "authorize"},
	Short:   "Authorize an account via the OAuth flow",
	Long: `Run the OAuth authorization flow for an account and store its tokens.

The command prints an authorization URL. Open it in a browser, approve
access, and paste the resulting code back into the terminal. The code
may carry the state fragment after '#' exactly as the provider returns
it.

Examples:
  # Authorize a console-surface account
  relayguard login work-account

  # Authorize against the max surface
  relayguard login personal --mode max --tier max`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

var loginFlags struct {
	Mode string
	Tier string
}

func init() {
	loginCmd.Flags().StringVar(&loginFlags.Mode, "mode", string(models.ModeConsole), "Authorization surface (console or max)")
	loginCmd.Flags().StringVar(&loginFlags.Tier, "tier", "", "Account tier (free, pro, team, max, enterprise)")

	RootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	accountName := args[0]

	mode := models.AuthMode(loginFlags.Mode)
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q (want console or max)", loginFlags.Mode)
	}

	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	pkce, err := oauth.GeneratePKCE()
	if err != nil {
		return fmt.Errorf("failed to generate PKCE challenge: %w", err)
	}

	providerCfg := cfg.OAuth.ProviderConfig(mode)
	authURL, _, err := oauth.BuildAuthorizationRequest(providerCfg, pkce)
	if err != nil {
		return fmt.Errorf("failed to build authorization URL: %w", err)
	}

	fmt.Println("Open the following URL in your browser and approve access:")
	fmt.Println()
	fmt.Println("  " + authURL)
	fmt.Println()
	fmt.Print("Paste the authorization code here: ")

	reader := bufio.NewReader(os.Stdin)
	rawCode, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	rawCode = strings.TrimSpace(rawCode)
	if rawCode == "" {
		return fmt.Errorf("no authorization code provided")
	}

	client := oauth.NewClient()
	result, err := client.ExchangeCode(cmd.Context(), rawCode, pkce.Verifier, providerCfg, "")
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}

	s, err := store.NewSQLiteStore(globalFlags.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	account, ok := s.GetAccount(accountName)
	if !ok {
		account = &models.Account{
			Name:     accountName,
			Enabled:  true,
			Priority: 50,
		}
	}
	account.Mode = mode
	if loginFlags.Tier != "" {
		account.Tier = loginFlags.Tier
	}
	account.RefreshToken = result.RefreshToken
	account.AccessToken = result.AccessToken
	account.AccessTokenExpiresAt = result.ExpiresAt

	if err := account.Validate(); err != nil {
		return fmt.Errorf("invalid account after exchange: %w", err)
	}
	if err := s.SetAccount(account); err != nil {
		return fmt.Errorf("failed to store account: %w", err)
	}

	fmt.Printf("Account %s authorized; access token valid until %s\n",
		accountName, result.ExpiresAt.Format(time.RFC3339))
	return nil
}
