package cli

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"
)

// version is set at link time: -ldflags "-X github.com/flynn-ai/joat/internal/cli.version=v1.2.3".
var version = ""

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the joat version",
	Args:  cobra.NoArgs,
	// Skip config loading.
	PersistentPreRun: func(*cobra.Command, []string) {},
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := buildVersion()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

func buildVersion() (string, error) {
	if version != "" {
		return version, nil
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", fmt.Errorf("could not read build info")
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version, nil
	}

	var revision, at string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			at = s.Value
		}
	}
	if revision == "" && at == "" {
		return "", fmt.Errorf("version information is not available")
	}

	// Pseudo version in the form 0.0.0-<rev>-<yyyymmddhhmmss>.
	v := "0.0.0"
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if revision != "" {
		v += "-" + revision
	}
	if t, err := time.Parse(time.RFC3339, at); err == nil {
		v += "-" + t.UTC().Format("20060102150405")
	}
	return v, nil
}
