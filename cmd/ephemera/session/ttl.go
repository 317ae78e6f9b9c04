package sessioncmder

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/cmd/ephemera/cmdutil"
	"github.com/papercomputeco/ephemera/pkg/cliui"
)

const ttlShortDesc string = "Set the lifetime of every key of a session"

func newTTLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ttl <id> <duration>",
		Short: ttlShortDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[1], err)
			}
			return runTTL(cmd, args[0], ttl)
		},
	}

	cmdutil.AddStoreFlags(cmd)

	return cmd
}

func runTTL(cmd *cobra.Command, id string, ttl time.Duration) error {
	ctx := cmd.Context()
	a, err := cmdutil.OpenApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if err := a.History.SetSessionTTL(ctx, id, ttl); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s %s expires in %s\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(id),
		cliui.ValueStyle.Render(ttl.String()),
	)
	return nil
}
