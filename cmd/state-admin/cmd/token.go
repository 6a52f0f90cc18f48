package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dai-trader/config"
	"dai-trader/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the status API",
	Long: `Sign an API token with the configured auth.jwt_secret (AUTH_JWT_SECRET).

Read tokens see status, trades and the event stream. Admin tokens may also
record distributions, reset the circuit breaker and trigger a cycle.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

var (
	tokenSubject string
	tokenScope   string
	tokenTTL     time.Duration
)

// loadConfig is replaced in tests.
var loadConfig = config.Load

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "who the token is for")
	tokenCmd.Flags().StringVar(&tokenScope, "scope", auth.ScopeRead, "read or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.AuthConfig.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be set and at least 32 characters")
	}

	m := auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer)
	token, err := m.GenerateAccessToken(tokenSubject, tokenScope, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
