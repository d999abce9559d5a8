package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configShowPath bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after the config file, the mapping file and
environment overrides have been applied.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configShowPath {
			fmt.Fprintln(cmd.OutOrStdout(), configPath)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), cfg.String())
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "print only the config file path")
}
