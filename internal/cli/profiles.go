package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flynn-ai/joat/internal/config"
	"github.com/flynn-ai/joat/pkg/protocol"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List configured profiles and check that they are complete",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printProfiles(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func printProfiles(out io.Writer, c *config.Config) {
	valid, err := c.Profiles()

	tables := make(map[string]map[string]string, len(c.Routing.Profiles))
	for raw, table := range c.Routing.Profiles {
		tables[config.NormalizeProfile(raw)] = table
	}
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		state := "INVALID"
		if _, ok := valid[name]; ok {
			state = "ok"
		}
		fmt.Fprintf(out, "[%s] %s\n", name, state)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, category := range protocol.Categories() {
			id := tables[name][string(category)]
			if id == "" {
				id = "(missing)"
			}
			fmt.Fprintf(w, "  %s\t%s\n", category, id)
		}
		_ = w.Flush()
		fmt.Fprintln(out)
	}

	if err != nil {
		fmt.Fprintf(out, "Problems:\n%s\n\n", err)
	}
	if c.Routing.Profile != "" {
		fmt.Fprintf(out, "Forced profile: %s\n", c.Routing.Profile)
	} else {
		fmt.Fprintln(out, "Profile is auto-detected from installed models.")
	}
}
