package sessioncmder

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/cmd/ephemera/cmdutil"
	"github.com/papercomputeco/ephemera/pkg/cliui"
	"github.com/papercomputeco/ephemera/pkg/session"
	"github.com/papercomputeco/ephemera/pkg/utils"
)

const recentLongDesc string = `Print the newest messages of a session, oldest first.

Bodies are shortened to one line unless --full is given, in which case they
are rendered as markdown on a terminal.

Examples:
  ephemera session recent room-42
  ephemera session recent room-42 --limit 5 --since 30m --full`

const recentShortDesc string = "Print the newest messages of a session"

type recentCommander struct {
	limit int
	since time.Duration
	full  bool
}

func newRecentCmd() *cobra.Command {
	cmder := &recentCommander{}

	cmd := &cobra.Command{
		Use:   "recent <id>",
		Short: recentShortDesc,
		Long:  recentLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmdutil.AddStoreFlags(cmd)
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 20, "Maximum number of messages")
	cmd.Flags().DurationVar(&cmder.since, "since", 0, "Only messages newer than this age (e.g. 1h)")
	cmd.Flags().BoolVar(&cmder.full, "full", false, "Print whole message bodies")

	return cmd
}

func (c *recentCommander) run(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	a, err := cmdutil.OpenApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	msgs, err := a.History.RecentMessages(ctx, id, c.limit, c.since)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cmdutil.JSONOutput(cmd) {
		if msgs == nil {
			msgs = []session.Message{}
		}
		return cmdutil.PrintJSON(w, msgs)
	}

	if len(msgs) == 0 {
		fmt.Fprintf(w, "  %s No messages in %s.\n", cliui.DimStyle.Render("●"), id)
		return nil
	}

	render := c.full && cliui.IsTerminal(w)
	fmt.Fprintln(w)
	for i, m := range msgs {
		sender := m.SenderID
		if m.SenderName != "" {
			sender = m.SenderName
		}
		header := fmt.Sprintf("  %s %s %s",
			cliui.DimStyle.Render(fmt.Sprintf("%d.", i+1)),
			cliui.RoleStyle.Render("["+string(m.Type)+"] "+sender),
			cliui.DimStyle.Render(m.Timestamp.Format("15:04:05")),
		)

		switch {
		case render:
			body, err := cliui.RenderMarkdown(m.Body, 80)
			if err != nil {
				body = m.Body
			}
			fmt.Fprintln(w, header)
			fmt.Fprint(w, body)
		case c.full:
			fmt.Fprintln(w, header)
			fmt.Fprintf(w, "     %s\n", m.Body)
		default:
			fmt.Fprintf(w, "%s %s\n", header, cliui.PreviewStyle.Render(utils.Truncate(m.Body, 72)))
		}
	}
	fmt.Fprintln(w)
	return nil
}
