package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/youmna-rabie/line-relay/internal/config"
	"github.com/youmna-rabie/line-relay/internal/locale"
)

func init() {
	rootCmd.AddCommand(listLocalesCmd)
}

var listLocalesCmd = &cobra.Command{
	Use:   "list-locales",
	Short: "Print available reply locales",
	RunE:  listLocales,
}

func listLocales(cmd *cobra.Command, args []string) error {
	cfg, err := config.Read(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg := locale.NewRegistry()
	if len(cfg.Relay.LocaleDirs) > 0 {
		if err := reg.Scan(cfg.Relay.LocaleDirs); err != nil {
			return fmt.Errorf("scanning locales: %w", err)
		}
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-3s %-10s %s\n", "", "NAME", "SOURCE")
	for _, name := range reg.Names() {
		l, _ := reg.Lookup(name)
		source := l.Path
		if source == "" {
			source = "built-in"
		}
		active := ""
		if name == cfg.Relay.Locale {
			active = "*"
		}
		fmt.Fprintf(w, "%-3s %-10s %s\n", active, name, source)
	}
	return nil
}
