package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lythra/lythra/internal/bus"
	"github.com/lythra/lythra/internal/config"
	"github.com/lythra/lythra/internal/platform"
)

var (
	eventsServer string
	eventsType   string
	eventsModule string
	eventsLimit  int
	eventsOutput outputFlags
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the event log of a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		base := strings.TrimSpace(eventsServer)
		if base == "" {
			base = "http://" + net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
		}
		u, err := url.Parse(strings.TrimRight(base, "/") + "/api/v1/events")
		if err != nil {
			return fmt.Errorf("server url: %w", err)
		}
		q := u.Query()
		if eventsType != "" {
			q.Set("type", eventsType)
		}
		if eventsModule != "" {
			q.Set("moduleId", eventsModule)
		}
		if eventsLimit > 0 {
			q.Set("limit", strconv.Itoa(eventsLimit))
		}
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		resp, err := platform.NewHTTPClient(cfg.Network.Timeout).Do(req)
		if err != nil {
			return fmt.Errorf("query server (is `lythra serve` running?): %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Error string `json:"error"`
			}
			_ = json.NewDecoder(resp.Body).Decode(&apiErr)
			return fmt.Errorf("server returned %s: %s", resp.Status, apiErr.Error)
		}
		var events []bus.Event
		if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
			return fmt.Errorf("decode events: %w", err)
		}

		if done, err := eventsOutput.emit(cmd.OutOrStdout(), events); done {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tTYPE\tMODULE\tINSTANCE")
		for _, e := range events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Type, dash(e.ModuleType), dash(e.ModuleID))
		}
		return tw.Flush()
	},
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	eventsCmd.Flags().StringVar(&eventsServer, "server", "", "Server base URL (defaults to the configured host and port)")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "Only events of this type")
	eventsCmd.Flags().StringVar(&eventsModule, "module", "", "Only events for this instance id")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 0, "Show at most the newest N events")
	eventsOutput.AddFlags(eventsCmd.Flags())
	rootCmd.AddCommand(eventsCmd)
}
