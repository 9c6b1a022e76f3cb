package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halcyon-labs/gdauth/auth"
	"github.com/halcyon-labs/gdauth/auth/oauth2"
	"github.com/halcyon-labs/gdauth/internal/tokenstore"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Mint a fresh access token from the stored refresh token",
	RunE:  runRefresh,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the stored refresh token",
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured domains and stored accounts",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
}

// restoredAuthorizer builds an OAuth 2.0 authorizer carrying the refresh
// token stored for account, together with the service-name map of its
// registered domains.
func restoredAuthorizer(cmd *cobra.Command, account string) (*oauth2.Authorizer, map[string]*auth.Domain, *tokenstore.Store, error) {
	cfg, err := openConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	authorizer, byService, err := newOAuth2Authorizer(cfg, oauth2.OOBRedirectURI)
	if err != nil {
		return nil, nil, nil, err
	}

	tokens, err := openTokens()
	if err != nil {
		return nil, nil, nil, err
	}

	token, err := tokens.Load(cmd.Context(), account)
	if errors.Is(err, tokenstore.ErrNotFound) {
		tokens.Close()
		return nil, nil, nil, fmt.Errorf("no refresh token stored for %s; run 'gdauth login' first", account)
	}
	if err != nil {
		tokens.Close()
		return nil, nil, nil, err
	}

	authorizer.SetRefreshToken(token)
	return authorizer, byService, tokens, nil
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	cfg, err := openConfig()
	if err != nil {
		return err
	}
	account, err := accountName(cfg)
	if err != nil {
		return err
	}

	authorizer, byService, tokens, err := restoredAuthorizer(cmd, account)
	if err != nil {
		return err
	}
	defer tokens.Close()

	refreshed, err := authorizer.RefreshAuthorization(cmd.Context())
	if err != nil {
		if auth.IsDenied(err) {
			return fmt.Errorf("refresh token for %s was revoked; run 'gdauth login' again", account)
		}
		return err
	}
	if !refreshed {
		cmd.Println("Nothing to refresh.")
		return nil
	}

	// The server may rotate the refresh token.
	if err := tokens.Save(cmd.Context(), account, authorizer.ClientID(), authorizer.RefreshToken()); err != nil {
		return err
	}

	cmd.Printf("Access token refreshed for %s. Authorized domains:\n", account)
	for _, service := range cfg.Keys("domains") {
		domain := byService[service]
		if authorizer.IsAuthorizedForDomain(domain) {
			cmd.Printf("  %s  %s\n", service, domain.Scope())
		}
	}
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cfg, err := openConfig()
	if err != nil {
		return err
	}
	account, err := accountName(cfg)
	if err != nil {
		return err
	}

	tokens, err := openTokens()
	if err != nil {
		return err
	}
	defer tokens.Close()

	if err := tokens.Delete(cmd.Context(), account); err != nil {
		return err
	}
	cmd.Printf("Logged out %s.\n", account)
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := openConfig()
	if err != nil {
		return err
	}

	_, byService, err := loadDomains(cfg)
	if err != nil {
		return err
	}
	cmd.Println("Configured domains:")
	for _, service := range cfg.Keys("domains") {
		cmd.Printf("  %s  %s\n", service, byService[service].Scope())
	}

	tokens, err := openTokens()
	if err != nil {
		return err
	}
	defer tokens.Close()

	accounts, err := tokens.Accounts(cmd.Context())
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		cmd.Println("\nNo stored accounts. Run 'gdauth login' to authorize one.")
		return nil
	}
	cmd.Println("\nAccounts with a stored refresh token:")
	for _, account := range accounts {
		cmd.Printf("  %s\n", account)
	}
	return nil
}
