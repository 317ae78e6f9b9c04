// Package cleanupcmder provides the cleanup command that removes idle
// sessions once, outside the serve schedule.
package cleanupcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/cmd/ephemera/cmdutil"
	"github.com/papercomputeco/ephemera/pkg/cliui"
	"github.com/papercomputeco/ephemera/pkg/pressure"
	"github.com/papercomputeco/ephemera/pkg/utils"
)

const cleanupLongDesc string = `Remove idle sessions now.

The idle age allowed depends on the current memory status: twice the session
TTL when healthy, the TTL under warning, and half of it when critical or worse.
With --force every session idle for more than an hour is removed regardless of
memory status.

Expired sessions are dropped from the active set first.

Examples:
  ephemera cleanup
  ephemera cleanup --force`

const cleanupShortDesc string = "Remove idle sessions now"

type cleanupCommander struct {
	force bool
}

// cleanupOutput is the --json shape.
type cleanupOutput struct {
	Reconciled int                    `json:"reconciled"`
	Result     pressure.CleanupResult `json:"result"`
}

func NewCleanupCmd() *cobra.Command {
	cmder := &cleanupCommander{}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: cleanupShortDesc,
		Long:  cleanupLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmdutil.AddStoreFlags(cmd)
	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Remove every session idle for more than an hour")

	return cmd
}

func (c *cleanupCommander) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := cmdutil.OpenApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var out cleanupOutput
	if cmdutil.JSONOutput(cmd) {
		if out.Reconciled, err = a.Reconcile(ctx); err != nil {
			return err
		}
		if out.Result, err = a.Pressure.Cleanup(ctx, c.force); err != nil {
			return err
		}
		return cmdutil.PrintJSON(cmd.OutOrStdout(), out)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	err = cliui.Step(w, "Reconciling active sessions", func() error {
		out.Reconciled, err = a.Reconcile(ctx)
		return err
	})
	if err != nil {
		return err
	}
	err = cliui.Step(w, "Removing idle sessions", func() error {
		out.Result, err = a.Pressure.Cleanup(ctx, c.force)
		return err
	})
	if err != nil {
		return err
	}

	r := out.Result
	fmt.Fprintln(w)
	fmt.Fprint(w, cliui.Panel("Cleanup", [][2]string{
		{"memory status", cliui.Badge(string(r.Status))},
		{"idle longer than", r.Age.String()},
		{"expired dropped", fmt.Sprint(out.Reconciled)},
		{"candidates", fmt.Sprint(r.Candidates)},
		{"removed", fmt.Sprint(r.Cleaned)},
		{"kept, active again", fmt.Sprint(r.Skipped)},
		{"failed", fmt.Sprint(r.Failed)},
		{"cache keys dropped", fmt.Sprint(r.CacheKeys)},
		{"freed", utils.FormatBytes(r.BytesFreed)},
	}))
	fmt.Fprintln(w)
	return nil
}
