package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/joat/internal/logging"
)

var (
	askSession string
	askExplain bool
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Answer a single query",
	Example: `  joat ask "Write a Python function to reverse a string"
  joat ask --explain "Solve 2x + 5 = 13"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		query := strings.Join(args, " ")
		out := cmd.OutOrStdout()

		a, err := newAgent(ctx, cfg, logging.Log)
		if err != nil {
			return err
		}
		defer a.Close()

		if askSession != "" {
			if _, err := a.ResumeSession(ctx, askSession); err != nil {
				logging.Log.WithError(err).Debug("session not resumed")
			}
		}

		resp, err := ask(ctx, a, query, askSession, retries)
		if askJSON && resp != nil {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(resp); encErr != nil {
				return encErr
			}
			return err
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(out, resp.Text)
		if askExplain {
			fmt.Fprintf(out, "\ncategory: %s (rule %s)\nmodel:    %s\nprofile:  %s\nlatency:  %s\n",
				resp.Category, resp.RuleID, resp.Model, resp.Profile, resp.Latency)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "continue an archived session")
	askCmd.Flags().BoolVar(&askExplain, "explain", false, "show how the query was routed")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
}
