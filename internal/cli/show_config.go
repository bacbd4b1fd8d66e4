package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/youmna-rabie/line-relay/internal/config"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(showConfigCmd)
}

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets redacted",
	RunE:  showConfig,
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Read(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration is not valid: %w", err)
	}
	return nil
}
