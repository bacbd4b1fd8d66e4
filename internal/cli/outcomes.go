package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/youmna-rabie/line-relay/internal/transport"
	"github.com/youmna-rabie/line-relay/internal/types"
)

var (
	outcomesLimit int
	outcomesAddr  string
)

func init() {
	listOutcomesCmd.Flags().IntVar(&outcomesLimit, "limit", 20, "maximum number of outcomes to display")
	listOutcomesCmd.Flags().StringVar(&outcomesAddr, "addr", "http://localhost:3000", "base URL of a running relay")
	rootCmd.AddCommand(listOutcomesCmd)
}

var listOutcomesCmd = &cobra.Command{
	Use:   "list-outcomes",
	Short: "Print recent outcomes from a running relay",
	RunE:  listOutcomes,
}

func listOutcomes(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(strings.TrimSuffix(outcomesAddr, "/") + "/admin/outcomes")
	if err != nil {
		return fmt.Errorf("parsing --addr: %w", err)
	}
	u.RawQuery = url.Values{"limit": {strconv.Itoa(outcomesLimit)}}.Encode()

	client := transport.NewHTTPClient(1, 10*time.Second)
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("querying relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("querying relay: HTTP %d", resp.StatusCode)
	}

	var body struct {
		Outcomes []types.Outcome `json:"outcomes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding outcomes: %w", err)
	}

	w := cmd.OutOrStdout()
	if len(body.Outcomes) == 0 {
		fmt.Fprintln(w, "No outcomes recorded yet.")
		return nil
	}

	fmt.Fprintf(w, "%-28s  %-10s  %-18s  %s\n", "EVENT", "STATUS", "DETAIL", "TIMESTAMP")
	for _, o := range body.Outcomes {
		fmt.Fprintf(w, "%-28s  %-10s  %-18s  %s\n", o.EventID, o.Status, detail(o), o.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// detail summarizes why an outcome is not a plain delivery.
func detail(o types.Outcome) string {
	switch {
	case o.Reason != "":
		return o.Reason
	case o.Cause != "" && o.FallbackSent:
		return o.Cause + " (fallback)"
	case o.Cause != "":
		return o.Stage + "/" + o.Cause
	default:
		return "-"
	}
}
