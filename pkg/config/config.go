package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/ephemera/pkg/dotdir"
)

// CurrentV is the config.toml schema version this build reads. A file
// without a version is treated as current.
const CurrentV = 0

// Configer reads and writes config.toml in one .ephemera/ directory.
type Configer struct {
	path string
}

// NewConfiger resolves the directory for override. The file itself may not
// exist yet; SaveConfig creates it.
func NewConfiger(override string) (*Configer, error) {
	path, err := dotdir.File(override, dotdir.ConfigFile)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return &Configer{path: path}, nil
}

// GetTarget returns the config.toml path.
func (c *Configer) GetTarget() string {
	return c.path
}

// LoadConfig reads config.toml. A missing file yields NewDefaultConfig();
// keys absent from the file keep their defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NewDefaultConfig(), nil
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}
	fillDefaults(cfg)
	return cfg, nil
}

// fillDefaults copies the default into every key left at its zero value.
// Booleans default to false, so they are never touched.
func fillDefaults(cfg *Config) {
	d := NewDefaultConfig()
	for _, k := range keys {
		switch k.get(cfg) {
		case "", "0", "0s":
			_ = k.set(cfg, k.get(d))
		}
	}
}

// SaveConfig writes cfg as TOML. The file can carry the store password, so
// only the owner may read it.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(c.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SetConfigValue updates one key and saves the file if the result still
// validates.
func (c *Configer) SetConfigValue(name, value string) error {
	k, err := lookup(name)
	if err != nil {
		return err
	}
	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}
	if err := k.set(cfg, value); err != nil {
		return err
	}
	if err := Validate(cfg); err != nil {
		return err
	}
	return c.SaveConfig(cfg)
}

// GetConfigValue returns the effective value of one key.
func (c *Configer) GetConfigValue(name string) (string, error) {
	k, err := lookup(name)
	if err != nil {
		return "", err
	}
	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}
	return k.get(cfg), nil
}

// ParseConfigTOML decodes data and rejects versions other than CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}
	if cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}
	return cfg, nil
}
