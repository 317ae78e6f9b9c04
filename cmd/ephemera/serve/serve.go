// Package servecmder provides the serve command that runs the periodic
// duties against the store until interrupted.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/cmd/ephemera/cmdutil"
	"github.com/papercomputeco/ephemera/pkg/app"
	"github.com/papercomputeco/ephemera/pkg/logger"
	"github.com/papercomputeco/ephemera/pkg/runstate"
	"github.com/papercomputeco/ephemera/pkg/utils"
)

type ServeCommander struct {
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

const serveLongDesc string = `Run the ephemera background duties.

Connects to Redis and runs, each on its own interval:
  cache-optimize      move cache keys between hot, warm, and cold TTLs
  memory-check        sample memory and force a cleanup under pressure
  session-cleanup     remove sessions idle beyond the allowed age
  session-reconcile   drop expired sessions from the active set

Logs go to the terminal and, as JSON, to ephemera.log in the .ephemera/
directory. Only one serve may run per directory.`

const serveShortDesc string = "Run the ephemera background duties"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return cmder.run(ctx, cmd)
		},
	}

	cmdutil.AddStoreFlags(cmd)
	cmd.Flags().DurationVar(&cmder.shutdownTimeout, "shutdown-timeout", 30*time.Second, "How long to wait for running duties on shutdown")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := cmdutil.LoadConfig(cmd)
	if err != nil {
		return err
	}

	rs, err := runstate.NewManager(cmdutil.ConfigDir(cmd))
	if err != nil {
		return err
	}
	lock, err := rs.Lock()
	if err != nil {
		return err
	}
	defer lock.Release()

	logFile, err := cmdutil.OpenLogFile(rs.LogPath)
	if err != nil {
		return err
	}
	defer logFile.Close()

	c.logger = cmdutil.NewLogger(cmd, cfg, logger.New(
		logger.WithJSON(true),
		logger.WithDebug(cfg.Log.Debug),
		logger.WithWriter(logFile),
	))
	c.logger.Info(utils.Build().String())

	a, err := app.New(ctx, cfg, c.logger)
	if err != nil {
		return fmt.Errorf("starting ephemera: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			c.logger.Error("shutdown incomplete", "error", err)
		}
		if err := rs.ClearState(); err != nil {
			c.logger.Warn("clearing serve state", "error", err)
		}
	}()

	if err := a.Start(); err != nil {
		return err
	}

	state := &runstate.State{
		PID:            os.Getpid(),
		StartedAt:      time.Now(),
		StoreAddr:      app.StoreConfig(cfg).Addr(),
		EventsProvider: cfg.Events.Provider,
	}
	if err := rs.SaveState(state); err != nil {
		c.logger.Warn("saving serve state", "error", err)
	}

	c.logger.Info("ephemera serving",
		"store", state.StoreAddr,
		"events", state.EventsProvider,
		"log_file", rs.LogPath,
	)

	<-ctx.Done()
	c.logger.Info("received signal, shutting down")
	return nil
}
