// Package runstate records the running "ephemera serve" process in the
// .ephemera/ directory so a second serve refuses to start and "ephemera
// status" can report on it.
package runstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/papercomputeco/ephemera/pkg/dotdir"
)

const stateVersion = 1

// ErrAlreadyRunning is returned by Lock when another serve holds the lock.
var ErrAlreadyRunning = errors.New("ephemera serve is already running for this directory")

// State describes the serve process.
type State struct {
	Version        int       `json:"version"`
	PID            int       `json:"pid"`
	StartedAt      time.Time `json:"started_at"`
	StoreAddr      string    `json:"store_addr"`
	EventsProvider string    `json:"events_provider"`
	LogPath        string    `json:"log_path"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Alive reports whether the recorded process still exists.
func (s *State) Alive() bool {
	if s == nil || s.PID <= 0 {
		return false
	}
	err := syscall.Kill(s.PID, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Manager locates the run state files of one .ephemera/ directory.
type Manager struct {
	Dir       string
	StatePath string
	LogPath   string
	LockPath  string
}

// Lock is a held serve lock.
type Lock struct {
	file *os.File
}

// NewManager resolves configDir like the rest of the CLI does.
func NewManager(configDir string) (*Manager, error) {
	dir, err := dotdir.Resolve(configDir)
	if err != nil {
		return nil, err
	}
	return &Manager{
		Dir:       dir,
		StatePath: filepath.Join(dir, dotdir.StateFile),
		LogPath:   filepath.Join(dir, dotdir.LogFile),
		LockPath:  filepath.Join(dir, dotdir.LockFile),
	}, nil
}

// Lock takes the serve lock without blocking.
func (m *Manager) Lock() (*Lock, error) {
	file, err := os.OpenFile(m.LockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("locking serve file: %w", err)
	}

	return &Lock{file: file}, nil
}

// Release drops the lock. It is safe on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("unlocking serve file: %w", err)
	}
	return l.file.Close()
}

// LoadState returns nil without error when no state has been saved.
func (m *Manager) LoadState() (*State, error) {
	data, err := os.ReadFile(m.StatePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("reading serve state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing serve state: %w", err)
	}
	return &state, nil
}

// SaveState stamps and writes state. Readers see the old file or the new
// one, never a partial write.
func (m *Manager) SaveState(state *State) error {
	if state == nil {
		return errors.New("cannot save nil state")
	}
	if state.Version == 0 {
		state.Version = stateVersion
	}
	if state.LogPath == "" {
		state.LogPath = m.LogPath
	}
	state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding serve state: %w", err)
	}
	return replaceFile(m.StatePath, data)
}

// ClearState removes the state file. A missing file is not an error.
func (m *Manager) ClearState() error {
	if err := os.Remove(m.StatePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing serve state: %w", err)
	}
	return nil
}

// replaceFile writes data next to path and renames it into place.
func replaceFile(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
