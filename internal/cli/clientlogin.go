package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/halcyon-labs/gdauth/auth"
	"github.com/halcyon-labs/gdauth/auth/clientlogin"
)

var clientLoginUsername string

var clientLoginCmd = &cobra.Command{
	Use:   "clientlogin",
	Short: "Authenticate with username and password (deprecated protocol)",
	Long: `Authenticates against the legacy ClientLogin endpoint, requesting one
token per configured domain. Tokens are held in memory only; the protocol
has no refresh operation, so nothing is persisted.

Set clientlogin.client_id in the configuration to identify the
application, e.g. "example-corp-myapp-1.0".`,
	RunE: runClientLogin,
}

func init() {
	clientLoginCmd.Flags().StringVarP(&clientLoginUsername, "username", "u", "", "username or full e-mail address")
	rootCmd.AddCommand(clientLoginCmd)
}

func runClientLogin(cmd *cobra.Command, _ []string) error {
	cfg, err := openConfig()
	if err != nil {
		return err
	}

	clientID := cfg.GetString("clientlogin.client_id")
	if clientID == "" {
		return fmt.Errorf("clientlogin.client_id must be set in %s", cfg.Path())
	}

	domains, byService, err := loadDomains(cfg)
	if err != nil {
		return err
	}

	username := clientLoginUsername
	if username == "" {
		cmd.Print("Username: ")
		username, err = readLine()
		if err != nil {
			return err
		}
	}

	cmd.Print("Password: ")
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	cmd.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	password := string(passwordBytes)
	for i := range passwordBytes {
		passwordBytes[i] = 0
	}

	var opts []clientlogin.Option
	if endpoint := cfg.GetString("clientlogin.endpoint"); endpoint != "" {
		opts = append(opts, clientlogin.WithEndpoint(endpoint))
	}
	opts = append(opts, clientlogin.WithCaptchaHandler(func(imageURI string) string {
		cmd.Println("The server requires a CAPTCHA answer.")
		cmd.Printf("Open this image: %s\n", imageURI)
		cmd.Print("Answer: ")
		answer, err := readLine()
		if err != nil {
			return ""
		}
		return answer
	}))

	authorizer := clientlogin.New(clientID, domains, opts...)
	if err := authorizer.Authenticate(cmd.Context(), username, password); err != nil {
		switch {
		case auth.IsDenied(err):
			return fmt.Errorf("the username or password was incorrect")
		case auth.IsCanceled(err):
			return err
		default:
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	cmd.Printf("Authenticated %s for %d domain(s):\n", authorizer.Username(), len(domains))
	for _, service := range cfg.Keys("domains") {
		if authorizer.IsAuthorizedForDomain(byService[service]) {
			cmd.Printf("  %s\n", service)
		}
	}
	return nil
}
