// Package cmdutil holds the config, logger, and app plumbing shared by the
// ephemera subcommands.
package cmdutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/pkg/app"
	"github.com/papercomputeco/ephemera/pkg/cliui"
	"github.com/papercomputeco/ephemera/pkg/config"
	"github.com/papercomputeco/ephemera/pkg/logger"
)

// AddStoreFlags declares the store and events flags on cmd.
func AddStoreFlags(cmd *cobra.Command) {
	config.AddFlags(cmd, config.StoreFlags)
}

// ConfigDir returns the --config-dir persistent flag.
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

// JSONOutput reports whether --json was given.
func JSONOutput(cmd *cobra.Command) bool {
	j, _ := cmd.Flags().GetBool("json")
	return j
}

// LoadConfig resolves flags, environment, config.toml, and defaults.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, err
	}
	if err := config.BindFlags(v, cmd, config.StoreFlags); err != nil {
		return nil, err
	}
	return config.FromViper(v)
}

// NewLogger builds the console logger. Output goes to stderr so command
// results on stdout stay clean. extra adds more loggers, e.g. a log file.
func NewLogger(cmd *cobra.Command, cfg *config.Config, extra ...*slog.Logger) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	jsonOut := JSONOutput(cmd) || cfg.Log.JSON
	w := cmd.ErrOrStderr()

	console := logger.New(
		logger.WithDebug(debug || cfg.Log.Debug),
		logger.WithJSON(jsonOut),
		logger.WithPretty(!jsonOut && cliui.IsTerminal(w)),
		logger.WithWriter(w),
	)
	if len(extra) == 0 {
		return console
	}
	return logger.Multi(append([]*slog.Logger{console}, extra...)...)
}

// OpenApp connects a one-shot App for commands that run a single operation.
// Its logs are limited to warnings unless --debug is set.
func OpenApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	l := NewLogger(cmd, cfg)
	if !debug && !cfg.Log.Debug {
		l = logger.New(logger.WithLevel(slog.LevelWarn), logger.WithWriter(cmd.ErrOrStderr()))
	}
	a, err := app.New(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("connecting to store at %s: %w", app.StoreConfig(cfg).Addr(), err)
	}
	return a, nil
}

// PrintJSON writes v indented to w.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// OpenLogFile opens path for appending the serve log.
func OpenLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}
