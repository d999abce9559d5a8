package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/joat/internal/errors"
	"github.com/flynn-ai/joat/internal/memory"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [session]",
	Short: "List archived sessions, or print one session's turns",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		out := cmd.OutOrStdout()

		if !cfg.Context.Archive {
			return errors.NewBuilder(errors.CodeArchiveUnavailable, "the conversation archive is disabled").
				User().
				WithSuggestion("Set context.archive = true in your config").
				Build()
		}

		store, err := memory.Open(cfg.Paths.ArchiveDB)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 0 {
			sessions, err := store.ListSessions(ctx, historyLimit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No archived sessions.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tTURNS\tUPDATED")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%d\t%s\n", s.ID, s.TurnCount, s.UpdatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		}

		turns, err := store.Load(ctx, args[0])
		if err != nil {
			return err
		}
		if len(turns) == 0 {
			fmt.Fprintf(out, "Session %s has no archived turns.\n", args[0])
			return nil
		}

		models := make([]string, 0, len(turns))
		for id := range turns {
			models = append(models, id)
		}
		sort.Strings(models)

		for _, id := range models {
			list := turns[id]
			if len(list) > historyTurns {
				list = list[len(list)-historyTurns:]
			}
			fmt.Fprintf(out, "== %s ==\n", id)
			for _, t := range list {
				fmt.Fprintf(out, "%s  %s: %s\n", t.Timestamp.Format("15:04:05"), t.Role, preview(t.Content, historyPreview))
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of sessions to list")
}
