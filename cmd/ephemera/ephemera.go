// Package ephemeracmder is the root of the ephemera CLI.
package ephemeracmder

import (
	"github.com/spf13/cobra"

	cleanupcmder "github.com/papercomputeco/ephemera/cmd/ephemera/cleanup"
	configcmder "github.com/papercomputeco/ephemera/cmd/ephemera/config"
	logscmder "github.com/papercomputeco/ephemera/cmd/ephemera/logs"
	servecmder "github.com/papercomputeco/ephemera/cmd/ephemera/serve"
	sessioncmder "github.com/papercomputeco/ephemera/cmd/ephemera/session"
	statuscmder "github.com/papercomputeco/ephemera/cmd/ephemera/status"
	versioncmder "github.com/papercomputeco/ephemera/cmd/version"
)

const ephemeraLongDesc string = `Ephemera keeps short-lived chat state in Redis.

Sessions, recent messages, and participants live under TTLs; derived data is
cached in hot, warm, and cold tiers; idle sessions are removed sooner as
Redis memory fills up.

Run the background duties with:
  ephemera serve

Inspect state with:
  ephemera status
  ephemera session stats <id>
  ephemera logs --follow`

const ephemeraShortDesc string = "Ephemera - ephemeral chat state on Redis"

func NewEphemeraCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ephemera",
		Short:         ephemeraShortDesc,
		Long:          ephemeraLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("json", false, "Print JSON output and logs")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .ephemera/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(cleanupcmder.NewCleanupCmd())
	cmd.AddCommand(sessioncmder.NewSessionCmd())
	cmd.AddCommand(logscmder.NewLogsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
