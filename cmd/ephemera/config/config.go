// Package configcmder provides the config command for managing persistent
// ephemera configuration stored in the .ephemera/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/pkg/cliui"
	"github.com/papercomputeco/ephemera/pkg/config"
)

const configLongDesc string = `Manage persistent ephemera configuration.

Configuration is stored as config.toml in the .ephemera/ directory. CLI flags
and EPHEMERA_* environment variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  store.host, store.port, store.max_retries,
  session.message_ttl_hours, session.max_messages,
  cache.hot_ttl_seconds, cache.recent_window,
  memory.warning_threshold, memory.cleanup_interval,
  events.provider, events.brokers, events.topic,
  log.debug, log.json

Use subcommands to get, set, or list configuration values:
  ephemera config set <key> <value>    Set a configuration value
  ephemera config get <key>            Get a configuration value
  ephemera config list                 List all configuration values

Examples:
  ephemera config set store.host redis.internal
  ephemera config set memory.check_interval 30s
  ephemera config get events.provider
  ephemera config list`

const configShortDesc string = "Manage persistent ephemera configuration"

// secretKeys are never echoed back.
var secretKeys = map[string]bool{
	"store.password": true,
}

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func checkKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func display(key, value string) string {
	switch {
	case value == "":
		return "<not set>"
	case secretKeys[key]:
		return "<set>"
	default:
		return value
	}
}

func openConfiger(cmd *cobra.Command) (*config.Configer, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

func printTarget(w io.Writer, target string) {
	fmt.Fprintf(w, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Config file:"),
		cliui.DimStyle.Render(target),
	)
}
