package cli

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/halcyon-labs/gdauth/auth"
	"github.com/halcyon-labs/gdauth/auth/oauth2"
	"github.com/halcyon-labs/gdauth/internal/callback"
	"github.com/halcyon-labs/gdauth/internal/configstore"
	"github.com/halcyon-labs/gdauth/internal/logger"
)

var (
	loginHint        string
	loginIncremental bool
	loginOOB         bool
	loginPort        int
	loginTimeout     time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize via the OAuth 2.0 browser flow",
	Long: `Opens the consent page in your browser, receives the authorization
code on a loopback port and exchanges it for tokens. The refresh token is
stored so later sessions can mint access tokens without the browser.

With --oob no local server is started; the code shown by the consent page
is entered manually instead.`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginHint, "login-hint", "", "e-mail address to pre-select on the consent page")
	loginCmd.Flags().BoolVar(&loginIncremental, "incremental", false, "include previously granted scopes in the new grant")
	loginCmd.Flags().BoolVar(&loginOOB, "oob", false, "enter the authorization code manually instead of using a loopback server")
	loginCmd.Flags().IntVar(&loginPort, "port", 0, "loopback port for the redirect (0 picks a free one)")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "how long to wait for the authorization redirect")
	rootCmd.AddCommand(loginCmd)
}

// newOAuth2Authorizer builds an OAuth 2.0 authorizer from configuration.
// The returned map resolves service names to the domain values registered
// with the authorizer; domains are matched by identity, so callers must
// use these rather than rebuilding them.
func newOAuth2Authorizer(cfg *configstore.Store, redirectURI string) (*oauth2.Authorizer, map[string]*auth.Domain, error) {
	clientID := cfg.GetString("oauth2.client_id")
	clientSecret := cfg.GetString("oauth2.client_secret")
	if clientID == "" || clientSecret == "" {
		return nil, nil, fmt.Errorf("oauth2.client_id and oauth2.client_secret must be set in %s", cfg.Path())
	}

	domains, byService, err := loadDomains(cfg)
	if err != nil {
		return nil, nil, err
	}

	var opts []oauth2.Option
	if authURL := cfg.GetString("oauth2.auth_url"); authURL != "" {
		opts = append(opts, oauth2.WithEndpoints(authURL, cfg.GetString("oauth2.token_url")))
	}

	a := oauth2.New(clientID, clientSecret, redirectURI, domains, opts...)
	a.SetLocale(cfg.GetString("locale"))
	return a, byService, nil
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cfg, err := openConfig()
	if err != nil {
		return err
	}
	account, err := accountName(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
	defer cancel()

	var code string
	var authorizer *oauth2.Authorizer

	if loginOOB {
		authorizer, _, err = newOAuth2Authorizer(cfg, oauth2.OOBRedirectURI)
		if err != nil {
			return err
		}

		cmd.Println("Open this URL in your browser and authorize the application:")
		cmd.Println()
		cmd.Println("  " + authorizer.BuildAuthenticationURI(loginHint, loginIncremental))
		cmd.Println()
		cmd.Print("Authorization code: ")
		code, err = readLine()
		if err != nil {
			return err
		}
	} else {
		state := uuid.NewString()
		srv := callback.NewServer(loginPort, state)
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()

		authorizer, _, err = newOAuth2Authorizer(cfg, srv.RedirectURI())
		if err != nil {
			return err
		}

		uri := authorizer.BuildAuthenticationURI(loginHint, loginIncremental) +
			"&state=" + url.QueryEscape(state)
		if err := callback.OpenBrowser(uri); err != nil {
			logger.Debug("login: opening browser: %v", err)
			cmd.Println("Open this URL in your browser to authorize the application:")
			cmd.Println()
			cmd.Println("  " + uri)
			cmd.Println()
		}

		cmd.Printf("Waiting for authorization on %s ...\n", srv.RedirectURI())
		code, err = srv.WaitForCode(ctx)
		if err != nil {
			return fmt.Errorf("waiting for authorization redirect: %w", err)
		}
	}

	if err := authorizer.RequestAuthorization(ctx, code); err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}

	tokens, err := openTokens()
	if err != nil {
		return err
	}
	defer tokens.Close()

	if err := tokens.Save(ctx, account, authorizer.ClientID(), authorizer.RefreshToken()); err != nil {
		return err
	}

	cmd.Printf("Authorized %s. Refresh token stored.\n", account)
	return nil
}

// readLine reads one trimmed line from stdin.
func readLine() (string, error) {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
