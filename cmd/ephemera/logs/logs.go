// Package logscmder provides the logs command that prints or follows the
// JSON log written by "ephemera serve".
package logscmder

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/cmd/ephemera/cmdutil"
	"github.com/papercomputeco/ephemera/pkg/logtail"
	"github.com/papercomputeco/ephemera/pkg/runstate"
)

const logsLongDesc string = `Print the serve log.

"ephemera serve" writes JSON records to ephemera.log in the .ephemera/
directory. This prints the newest records and, with --follow, keeps printing
new ones until interrupted.

Examples:
  ephemera logs
  ephemera logs -n 200
  ephemera logs --follow`

const logsShortDesc string = "Print or follow the serve log"

type logsCommander struct {
	lines  int
	follow bool
}

func NewLogsCmd() *cobra.Command {
	cmder := &logsCommander{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: logsShortDesc,
		Long:  logsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().IntVarP(&cmder.lines, "lines", "n", 50, "Number of records to print, 0 for all")
	cmd.Flags().BoolVarP(&cmder.follow, "follow", "f", false, "Keep printing new records")

	return cmd
}

func (c *logsCommander) run(cmd *cobra.Command) error {
	rs, err := runstate.NewManager(cmdutil.ConfigDir(cmd))
	if err != nil {
		return err
	}

	lines, err := logtail.Last(rs.LogPath, c.lines)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no serve log at %s; has \"ephemera serve\" run here?", rs.LogPath)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
	if !c.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return logtail.Follow(ctx, rs.LogPath, w)
}
