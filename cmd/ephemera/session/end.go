package sessioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/cmd/ephemera/cmdutil"
	"github.com/papercomputeco/ephemera/pkg/cliui"
	"github.com/papercomputeco/ephemera/pkg/utils"
)

const endLongDesc string = `End a session.

Deletes the message list, metadata, and participants of the session, drops it
from the active set, removes its cache entries, and publishes an
ephemera.session.ended event.

Examples:
  ephemera session end room-42`

const endShortDesc string = "Delete a session and its cache entries"

func newEndCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end <id>",
		Short: endShortDesc,
		Long:  endLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnd(cmd, args[0])
		},
	}

	cmdutil.AddStoreFlags(cmd)

	return cmd
}

func runEnd(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	a, err := cmdutil.OpenApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	res, err := a.History.EndSession(ctx, id)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cmdutil.JSONOutput(cmd) {
		return cmdutil.PrintJSON(w, res)
	}

	fmt.Fprintf(w, "  %s Ended %s, freed %s and %d cache keys\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(id),
		utils.FormatBytes(res.FreedBytes),
		res.CacheKeys,
	)
	if res.CacheFailed {
		fmt.Fprintf(w, "  %s %s\n", cliui.FailMark, cliui.DimStyle.Render("cache entries could not be removed; they will expire on their own"))
	}
	return nil
}
