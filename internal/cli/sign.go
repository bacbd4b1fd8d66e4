package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/youmna-rabie/line-relay/internal/channel"
	"github.com/youmna-rabie/line-relay/internal/config"
)

var signFile string

func init() {
	signCmd.Flags().StringVar(&signFile, "file", "-", "webhook body to sign (- for stdin)")
	rootCmd.AddCommand(signCmd)
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Print the X-Line-Signature for a webhook body",
	Long: "sign computes the signature LINE would send for the given body using the configured " +
		"channel secret, for replaying webhooks against a local relay.",
	RunE: signBody,
}

func signBody(cmd *cobra.Command, args []string) error {
	cfg, err := config.Read(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Line.ChannelSecret == "" {
		return errors.New("line.channel_secret is required (CHANNEL_SECRET)")
	}

	var body []byte
	if signFile == "-" {
		body, err = io.ReadAll(cmd.InOrStdin())
	} else {
		body, err = os.ReadFile(signFile)
	}
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}

	line := channel.NewLineChannel("line", cfg.Line.ChannelSecret)
	fmt.Fprintln(cmd.OutOrStdout(), line.Sign(body))
	return nil
}
