package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halcyon-labs/gdauth/auth"
	"github.com/halcyon-labs/gdauth/auth/oauth1"
)

var oauth1Cmd = &cobra.Command{
	Use:   "oauth1",
	Short: "Authorize via the OAuth 1.0a dance (deprecated protocol)",
	Long: `Runs the three-legged OAuth 1.0a dance: obtains temporary
credentials, prints the authorization URI to open in a browser, then
exchanges the verifier shown there for token credentials. Credentials are
held in memory only.

Set oauth1.application_name in the configuration to the name shown to the
user on the authorization page.`,
	RunE: runOAuth1,
}

func init() {
	rootCmd.AddCommand(oauth1Cmd)
}

func runOAuth1(cmd *cobra.Command, _ []string) error {
	cfg, err := openConfig()
	if err != nil {
		return err
	}

	applicationName := cfg.GetString("oauth1.application_name")
	if applicationName == "" {
		return fmt.Errorf("oauth1.application_name must be set in %s", cfg.Path())
	}

	domains, byService, err := loadDomains(cfg)
	if err != nil {
		return err
	}

	authorizer := oauth1.New(applicationName, domains)
	authorizer.SetLocale(cfg.GetString("locale"))

	token, tokenSecret, uri, err := authorizer.BuildAuthenticationURI(cmd.Context())
	if err != nil {
		return fmt.Errorf("requesting temporary credentials: %w", err)
	}
	defer tokenSecret.Zero()

	cmd.Println("Open this URL in your browser and authorize the application:")
	cmd.Println()
	cmd.Println("  " + uri)
	cmd.Println()
	cmd.Print("Verification code: ")
	verifier, err := readLine()
	if err != nil {
		return err
	}

	if err := authorizer.RequestAuthorization(cmd.Context(), token, tokenSecret, verifier); err != nil {
		if auth.IsDenied(err) {
			return fmt.Errorf("access was denied by the user or server")
		}
		return fmt.Errorf("exchanging verifier: %w", err)
	}

	cmd.Printf("Authorized %d domain(s):\n", len(domains))
	for _, service := range cfg.Keys("domains") {
		if authorizer.IsAuthorizedForDomain(byService[service]) {
			cmd.Printf("  %s\n", service)
		}
	}
	return nil
}
