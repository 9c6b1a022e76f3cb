// Package cli implements the gdauth command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halcyon-labs/gdauth/auth"
	"github.com/halcyon-labs/gdauth/internal/configstore"
	"github.com/halcyon-labs/gdauth/internal/logger"
	"github.com/halcyon-labs/gdauth/internal/tokenstore"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	flagVerbose   bool
	flagConfigDir string
	flagAccount   string
)

var rootCmd = &cobra.Command{
	Use:   "gdauth",
	Short: "Obtain and manage access credentials for authorization domains",
	Long: `gdauth drives the supported authentication flows (OAuth 2.0,
OAuth 1.0a and legacy ClientLogin) against the configured authorization
domains, and persists OAuth 2.0 refresh tokens for later sessions.

Configuration lives in ~/.gdauth/config.toml:

  account = "liz@gmail.com"

  [oauth2]
  client_id = "YOUR_CLIENT_ID"
  client_secret = "YOUR_CLIENT_SECRET"

  [domains]
  cl = "https://www.google.com/calendar/feeds/"`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(flagVerbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default ~/.gdauth)")
	rootCmd.PersistentFlags().StringVar(&flagAccount, "account", "", "account name for token storage (default from config)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openConfig loads the configuration store.
func openConfig() (*configstore.Store, error) {
	cfg, err := configstore.New(flagConfigDir)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// openTokens opens the refresh token store next to the configuration.
func openTokens() (*tokenstore.Store, error) {
	store, err := tokenstore.New(flagConfigDir)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}
	return store, nil
}

// loadDomains builds the authorization domains from the [domains] config
// table, keyed by service name.
func loadDomains(cfg *configstore.Store) ([]*auth.Domain, map[string]*auth.Domain, error) {
	services := cfg.Keys("domains")
	if len(services) == 0 {
		return nil, nil, fmt.Errorf("no authorization domains configured; add a [domains] table to %s", cfg.Path())
	}

	domains := make([]*auth.Domain, 0, len(services))
	byService := make(map[string]*auth.Domain, len(services))
	for _, service := range services {
		scope := cfg.GetString("domains." + service)
		if scope == "" {
			return nil, nil, fmt.Errorf("domain %q has an empty scope", service)
		}
		d := auth.NewDomain(service, scope)
		domains = append(domains, d)
		byService[service] = d
	}
	return domains, byService, nil
}

// accountName resolves the account for token storage: the --account flag,
// falling back to the config file.
func accountName(cfg *configstore.Store) (string, error) {
	if flagAccount != "" {
		return flagAccount, nil
	}
	if account := cfg.GetString("account"); account != "" {
		return account, nil
	}
	return "", fmt.Errorf("no account configured; set account in %s or pass --account", cfg.Path())
}
