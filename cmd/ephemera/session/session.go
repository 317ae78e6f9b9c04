// Package sessioncmder provides the session command for inspecting and
// managing a single chat session.
package sessioncmder

import (
	"github.com/spf13/cobra"
)

const sessionLongDesc string = `Inspect and manage one chat session.

Use subcommands to read or change a session by id:
  ephemera session stats <id>            Show counts, TTL, and activity
  ephemera session recent <id>           Print the newest messages
  ephemera session ttl <id> <duration>   Set the lifetime of every session key
  ephemera session end <id>              Delete the session and its cache entries

Examples:
  ephemera session recent room-42 --limit 20 --since 1h
  ephemera session ttl room-42 48h`

const sessionShortDesc string = "Inspect and manage a chat session"

func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: sessionShortDesc,
		Long:  sessionLongDesc,
	}

	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newRecentCmd())
	cmd.AddCommand(newTTLCmd())
	cmd.AddCommand(newEndCmd())

	return cmd
}
