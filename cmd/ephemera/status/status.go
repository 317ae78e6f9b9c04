// Package statuscmder provides the status command for displaying store,
// memory, cache, and serve state.
package statuscmder

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/cmd/ephemera/cmdutil"
	"github.com/papercomputeco/ephemera/pkg/app"
	"github.com/papercomputeco/ephemera/pkg/cliui"
	"github.com/papercomputeco/ephemera/pkg/runstate"
	"github.com/papercomputeco/ephemera/pkg/utils"
)

const statusLongDesc string = `Show the connection, memory, and session state.

Probes Redis, samples its memory usage, counts active sessions, and reports
whether "ephemera serve" is running for this .ephemera/ directory.

Examples:
  ephemera status
  ephemera status --json`

const statusShortDesc string = "Show store, memory, and session state"

// statusOutput is the --json shape.
type statusOutput struct {
	app.Report
	Serve *runstate.State `json:"serve,omitempty"`
}

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}

	cmdutil.AddStoreFlags(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command) error {
	var serve *runstate.State
	if rs, err := runstate.NewManager(cmdutil.ConfigDir(cmd)); err == nil {
		if st, err := rs.LoadState(); err == nil && st.Alive() {
			serve = st
		}
	}

	a, err := cmdutil.OpenApp(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	report := a.Health(cmd.Context())
	out := cmd.OutOrStdout()
	if cmdutil.JSONOutput(cmd) {
		return cmdutil.PrintJSON(out, statusOutput{Report: report, Serve: serve})
	}
	render(out, report, serve)
	return nil
}

func render(w io.Writer, r app.Report, serve *runstate.State) {
	st := r.Store.Stats
	storeRows := [][2]string{
		{"status", cliui.Badge(st.Status.String())},
		{"address", st.Addr},
		{"round trip", cliui.FormatDuration(st.LastRTT)},
		{"pool", fmt.Sprintf("%d of %d open, %d idle", st.TotalConns, st.MaxConns, st.IdleConns)},
		{"errors", strconv.FormatInt(st.ConnectionErrors, 10)},
		{"failed connects", strconv.FormatInt(st.FailedConns, 10)},
		{"pool timeouts", strconv.FormatInt(st.PoolTimeouts, 10)},
	}
	if r.Store.Error != "" {
		storeRows = append(storeRows, [2]string{"error", r.Store.Error})
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, cliui.Panel("Store", storeRows))

	m := r.Memory
	memRows := [][2]string{}
	if r.MemoryError != "" {
		memRows = append(memRows, [2]string{"error", cliui.DimStyle.Render(r.MemoryError)})
	} else {
		memRows = append(memRows,
			[2]string{"status", cliui.Badge(string(m.Status))},
			[2]string{"used", fmt.Sprintf("%s of %s (%.1f%%)", utils.FormatBytes(m.UsedBytes), utils.FormatBytes(m.MaxBytes), m.UsageRatio*100)},
			[2]string{"active sessions", strconv.FormatInt(m.ActiveSessions, 10)},
		)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, cliui.Panel("Memory", memRows))

	c := r.Cache
	fmt.Fprintln(w)
	fmt.Fprint(w, cliui.Panel("Cache", [][2]string{
		{"requests", strconv.FormatInt(c.Requests, 10)},
		{"hit rate", fmt.Sprintf("%.1f%%", c.HitRate*100)},
		{"tracked keys", strconv.Itoa(c.TrackedKeys)},
	}))

	fmt.Fprintln(w)
	if serve == nil {
		fmt.Fprintf(w, "  %s %s\n\n", cliui.DimStyle.Render("●"), cliui.DimStyle.Render("ephemera serve is not running"))
		return
	}
	fmt.Fprint(w, cliui.Panel("Serve", [][2]string{
		{"pid", strconv.Itoa(serve.PID)},
		{"since", serve.StartedAt.Format("2006-01-02 15:04:05")},
		{"store", serve.StoreAddr},
		{"events", serve.EventsProvider},
		{"log", serve.LogPath},
	}))
	fmt.Fprintln(w)
}
