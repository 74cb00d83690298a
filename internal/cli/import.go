package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayguard/relayguard/internal/models"
	"github.com/relayguard/relayguard/internal/store"
)

// credentialsFile mirrors the on-disk credential format written by the
// first-party CLI.
type credentialsFile struct {
	ClaudeAiOauth struct {
		AccessToken      string   `json:"accessToken"`
		RefreshToken     string   `json:"refreshToken"`
		ExpiresAt        int64    `json:"expiresAt"`
		Scopes           []string `json:"scopes"`
		SubscriptionType string   `json:"subscriptionType"`
	} `json:"claudeAiOauth"`
}

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:     "import [credentials_path...]",
	Aliases: []string{"sync"},
	Short:   "Import CLI credential files into the database",
	Long: `Import OAuth credentials from first-party CLI credential files.

Without arguments the default locations are scanned; explicit paths or
the RELAYGUARD_CREDENTIALS_PATH environment variable (comma-separated)
override them. Each file becomes one account named after its directory.

Examples:
  # Scan the default locations
  relayguard import

  # Import a specific file under a chosen account name
  relayguard import ~/.claude/.credentials.json --name work-account`,
	RunE: runImport,
}

var importFlags struct {
	Name string
	Tier string
}

func init() {
	importCmd.Flags().StringVar(&importFlags.Name, "name", "", "Account name (single-file import only)")
	importCmd.Flags().StringVar(&importFlags.Tier, "tier", "", "Account tier for imported accounts")

	RootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		paths = resolveCredentialPaths("RELAYGUARD_CREDENTIALS_PATH", []string{
			"~/.claude/.credentials.json",
			"~/.config/claude/.credentials.json",
		})
	} else {
		for i, p := range paths {
			paths[i] = expandHome(p)
		}
	}
	if importFlags.Name != "" && len(paths) > 1 {
		return fmt.Errorf("--name only applies when importing a single file")
	}

	s, err := store.NewSQLiteStore(globalFlags.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	var newCount, updatedCount int
	for _, path := range paths {
		created, err := importCredentialFile(s, path, importFlags.Name, importFlags.Tier)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to import %s: %w", path, err)
		}
		if created {
			newCount++
		} else {
			updatedCount++
		}
	}

	if newCount == 0 && updatedCount == 0 {
		fmt.Println("No credential files found.")
		return nil
	}
	fmt.Printf("Import complete: %d new, %d updated\n", newCount, updatedCount)
	return nil
}

func importCredentialFile(s store.Store, path, name, tier string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	var file credentialsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return false, err
	}
	if file.ClaudeAiOauth.RefreshToken == "" {
		return false, fmt.Errorf("no refresh token in %s", path)
	}

	if name == "" {
		name = credentialAccountName(path)
	}

	account, exists := s.GetAccount(name)
	if !exists {
		account = &models.Account{
			Name:     name,
			Enabled:  true,
			Priority: 50,
			Mode:     models.ModeMax,
		}
	}
	if tier != "" {
		account.Tier = tier
	} else if account.Tier == "" {
		account.Tier = strings.ToLower(file.ClaudeAiOauth.SubscriptionType)
	}
	account.RefreshToken = file.ClaudeAiOauth.RefreshToken
	account.AccessToken = file.ClaudeAiOauth.AccessToken
	if file.ClaudeAiOauth.ExpiresAt > 0 {
		account.AccessTokenExpiresAt = time.UnixMilli(file.ClaudeAiOauth.ExpiresAt)
	}

	if err := account.Validate(); err != nil {
		return false, err
	}
	if err := s.SetAccount(account); err != nil {
		return false, err
	}
	return !exists, nil
}

func resolveCredentialPaths(envKey string, defaults []string) []string {
	if raw := strings.TrimSpace(os.Getenv(envKey)); raw != "" {
		parts := strings.Split(raw, ",")
		var paths []string
		for _, p := range parts {
			path := strings.TrimSpace(p)
			if path == "" {
				continue
			}
			paths = append(paths, expandHome(path))
		}
		return paths
	}

	var paths []string
	for _, p := range defaults {
		paths = append(paths, expandHome(p))
	}
	return paths
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// credentialAccountName derives an account name from the credential file's
// parent directory, e.g. ~/.claude/.credentials.json -> "claude".
func credentialAccountName(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	dir = strings.TrimPrefix(dir, ".")
	if dir == "" || dir == "/" {
		return "imported"
	}
	return dir
}
