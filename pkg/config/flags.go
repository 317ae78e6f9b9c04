package config

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is a command-line override for one config key. Commands share these
// definitions so a flag reads the same on every subcommand.
type Flag struct {
	Name      string
	Shorthand string
	// Key is the dotted config key the flag overrides.
	Key   string
	Usage string
}

// StoreFlags are accepted by every command that opens the store.
var StoreFlags = []Flag{
	{Name: "redis-host", Key: "store.host", Usage: "Redis host"},
	{Name: "redis-port", Shorthand: "p", Key: "store.port", Usage: "Redis port"},
	{Name: "redis-db", Key: "store.db", Usage: "Redis logical database"},
	{Name: "redis-password", Key: "store.password", Usage: "Redis password"},
	{Name: "events-provider", Key: "events.provider", Usage: "Session event sink (nop, kafka)"},
	{Name: "events-brokers", Key: "events.brokers", Usage: "Comma separated Kafka brokers"},
	{Name: "events-topic", Key: "events.topic", Usage: "Kafka topic for session events"},
}

// AddFlags declares flags on cmd with the config defaults as flag defaults.
// Integer keys get integer flags so bad input fails at parse time.
func AddFlags(cmd *cobra.Command, flags []Flag) {
	d := NewDefaultConfig()
	fs := cmd.Flags()
	for _, f := range flags {
		k, err := lookup(f.Key)
		if err != nil {
			panic(fmt.Sprintf("flag --%s: %v", f.Name, err))
		}
		def := k.get(d)
		if k.kind == kindInt {
			n, _ := strconv.Atoi(def)
			fs.IntP(f.Name, f.Shorthand, n, f.Usage)
			continue
		}
		fs.StringP(f.Name, f.Shorthand, def, f.Usage)
	}
}

// BindFlags hooks the flags declared on cmd into v. viper only prefers a
// flag over env and file when the flag was given explicitly.
func BindFlags(v *viper.Viper, cmd *cobra.Command, flags []Flag) error {
	for _, f := range flags {
		pf := cmd.Flags().Lookup(f.Name)
		if pf == nil {
			continue
		}
		if err := v.BindPFlag(f.Key, pf); err != nil {
			return fmt.Errorf("binding --%s: %w", f.Name, err)
		}
	}
	return nil
}
