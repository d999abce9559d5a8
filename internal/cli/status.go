package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/joat/internal/agent"
	"github.com/flynn-ai/joat/internal/logging"
	"github.com/flynn-ai/joat/pkg/protocol"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend reachability, the active profile and model availability",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := newAgent(ctx, cfg, logging.Log)
		if err != nil {
			return err
		}
		defer a.Close()

		status := a.Status(ctx)
		if statusJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
}

func printStatus(out io.Writer, s *agent.Status) {
	backend := "unreachable"
	if s.Backend.Reachable {
		backend = fmt.Sprintf("reachable, %d models installed", len(s.Backend.Installed))
	}
	fmt.Fprintf(out, "Backend:  %s (%s)\n", s.Backend.Endpoint, backend)
	if s.Backend.Error != "" {
		fmt.Fprintf(out, "          %s\n", s.Backend.Error)
	}
	if s.Backend.Circuit == "open" {
		fmt.Fprintf(out, "          circuit %s, backend calls are paused\n", s.Backend.Circuit)
	}
	fmt.Fprintf(out, "Profile:  %s (%s)\n", s.Profile, s.Reason)
	fmt.Fprintf(out, "Sessions: %d\n\n", s.Sessions)

	available := make(map[string]bool, len(s.Backend.Models))
	for _, m := range s.Backend.Models {
		available[m.Name] = m.Available
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tMODEL\tINSTALLED")
	for _, c := range protocol.Categories() {
		id := s.Mapping[c]
		fmt.Fprintf(w, "%s\t%s\t%s\n", c, id, yesNo(available[id]))
	}
	_ = w.Flush()

	if s.Stats != nil && s.Stats.RequestCount+s.Stats.ErrorCount > 0 {
		fmt.Fprintf(out, "\nQueries: %d answered, %d failed, avg %.0f ms\n",
			s.Stats.RequestCount, s.Stats.ErrorCount, s.Stats.AvgLatencyMs)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
