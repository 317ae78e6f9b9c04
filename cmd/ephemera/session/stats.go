package sessioncmder

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/cmd/ephemera/cmdutil"
	"github.com/papercomputeco/ephemera/pkg/cliui"
)

const statsShortDesc string = "Show counts, TTL, and activity of a session"

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <id>",
		Short: statsShortDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, args[0])
		},
	}

	cmdutil.AddStoreFlags(cmd)

	return cmd
}

func runStats(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	a, err := cmdutil.OpenApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	st, err := a.History.SessionStats(ctx, id)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cmdutil.JSONOutput(cmd) {
		return cmdutil.PrintJSON(w, st)
	}

	ttl := cliui.DimStyle.Render("none")
	if st.TTL > 0 {
		ttl = st.TTL.String()
	}
	rows := [][2]string{
		{"status", string(st.Status)},
		{"messages", strconv.FormatInt(st.MessageCount, 10)},
		{"stored", strconv.FormatInt(st.StoredMessages, 10)},
		{"participants", strconv.FormatInt(st.ParticipantCount, 10)},
		{"ttl", ttl},
	}
	if !st.CreatedAt.IsZero() {
		rows = append(rows,
			[2]string{"created", st.CreatedAt.Format("2006-01-02 15:04:05")},
			[2]string{"last activity", st.LastActivity.Format("2006-01-02 15:04:05")},
		)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, cliui.Panel("Session "+id, rows))
	fmt.Fprintln(w)
	return nil
}
