package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/ephemera/pkg/dotdir"
)

// EnvPrefix namespaces environment overrides: store.host is read from
// EPHEMERA_STORE_HOST.
const EnvPrefix = "EPHEMERA"

// InitViper layers defaults, config.toml from the resolved .ephemera/
// directory, and the environment. Flags join the chain through BindFlags and
// then take precedence over all three.
func InitViper(configDir string) (*viper.Viper, error) {
	path, err := dotdir.File(configDir, dotdir.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	v := viper.New()
	setViperDefaults(v)
	v.SetConfigType("toml")

	switch _, err := os.Stat(path); {
	case err == nil:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// FromViper resolves every known key through v's precedence chain into a
// Config and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	for _, k := range keys {
		if err := k.set(cfg, v.GetString(k.name)); err != nil {
			return nil, err
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of
// truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	for _, k := range keys {
		v.SetDefault(k.name, k.get(d))
	}
}
