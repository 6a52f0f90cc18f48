package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dai-trader/internal/vault"
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage broker credentials stored in Vault",
	Long: `Store or remove the Binance API key pair the trader reads from Vault when
vault.enabled is set. Mainnet and testnet keys are kept apart.

Examples:
  state-admin credentials set --api-key KEY --secret-key SECRET
  state-admin credentials delete --testnet`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Write the API key pair",
	Args:  cobra.NoArgs,
	RunE:  runCredentialsSet,
}

var credentialsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the API key pair",
	Args:  cobra.NoArgs,
	RunE:  runCredentialsDelete,
}

var (
	credAPIKey    string
	credSecretKey string
	credTestnet   bool
)

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsDeleteCmd)

	credentialsCmd.PersistentFlags().BoolVar(&credTestnet, "testnet", false, "use the testnet slot")
	credentialsSetCmd.Flags().StringVar(&credAPIKey, "api-key", "", "Binance API key (required)")
	credentialsSetCmd.Flags().StringVar(&credSecretKey, "secret-key", "", "Binance secret key (required)")
	credentialsSetCmd.MarkFlagRequired("api-key")
	credentialsSetCmd.MarkFlagRequired("secret-key")
}

func openVault() (*vault.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.VaultConfig.Enabled {
		return nil, fmt.Errorf("vault is not enabled (set VAULT_ENABLED=true)")
	}
	return vault.NewClient(cfg.VaultConfig)
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	client, err := openVault()
	if err != nil {
		return err
	}
	err = client.StoreCredentials(cmd.Context(), vault.Credentials{
		APIKey:    credAPIKey,
		SecretKey: credSecretKey,
		IsTestnet: credTestnet,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %s credentials\n", network(credTestnet))
	return nil
}

func runCredentialsDelete(cmd *cobra.Command, args []string) error {
	client, err := openVault()
	if err != nil {
		return err
	}
	if err := client.DeleteCredentials(cmd.Context(), credTestnet); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s credentials\n", network(credTestnet))
	return nil
}

func network(testnet bool) string {
	if testnet {
		return "testnet"
	}
	return "mainnet"
}
