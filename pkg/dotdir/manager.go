// Package dotdir locates the .ephemera/ directory that holds config.toml,
// the serve log, and the serve run state.
package dotdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Name is the directory looked up in the working and home directories.
const Name = ".ephemera"

// Files kept in the directory.
const (
	ConfigFile = "config.toml"
	LogFile    = "ephemera.log"
	StateFile  = "serve.json"
	LockFile   = "serve.lock"
)

// Resolve returns the absolute directory to use and creates it when missing.
// An explicit override wins, then ./.ephemera if it already exists, then
// ~/.ephemera.
func Resolve(override string) (string, error) {
	dir, err := pick(override)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// File resolves the directory and joins name onto it.
func File(override, name string) (string, error) {
	dir, err := Resolve(override)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func pick(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	local := filepath.Join(cwd, Name)
	info, err := os.Stat(local)
	switch {
	case err == nil && info.IsDir():
		return local, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("checking %s: %w", local, err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, Name), nil
}
