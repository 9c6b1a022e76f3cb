package cli

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/halcyon-labs/gdauth/internal/logger"
)

var fetchService string

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Perform an authorized GET request",
	Long: `Fetches a URL with the stored credentials attached, mainly for
verifying that authorization works. The request is signed for the domain
named by --service; it must be one of the configured domains.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchService, "service", "", "service name of the domain to sign for (required)")
	_ = fetchCmd.MarkFlagRequired("service")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
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

	domain, ok := byService[fetchService]
	if !ok {
		return fmt.Errorf("unknown service %q; configured: %v", fetchService, cfg.Keys("domains"))
	}

	if _, err := authorizer.RefreshAuthorization(cmd.Context()); err != nil {
		return fmt.Errorf("refreshing authorization: %w", err)
	}
	if err := tokens.Save(cmd.Context(), account, authorizer.ClientID(), authorizer.RefreshToken()); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, args[0], nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	authorizer.ProcessRequest(domain, req)
	if req.Header.Get("Authorization") == "" {
		logger.Warn("fetch: request to %s will be sent unauthenticated", args[0])
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	cmd.Printf("%s\n\n", resp.Status)
	if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	return nil
}
