// Package operator is the implementation of the operator profile component.
// Profiles record who performed an action (technician display name, local
// timezone) and are stamped into manifests and receipts. Each profile is a
// small TOML file in the profiles directory.
package operator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/archivetools/aqc/internal/constants"
	"github.com/ubuntu/decorate"
)

var (
	// ErrProfileNotFound is returned when an operator profile file is not found.
	ErrProfileNotFound = errors.New("operator profile not found")
)

// Manager is a struct that manages operator profile files.
type Manager struct {
	path string

	log *slog.Logger
}

// Profile is the contents of one operator profile file.
type Profile struct {
	DisplayName string `toml:"display_name"`
	Timezone    string `toml:"timezone,omitempty"`
}

// New returns a new operator profile Manager.
// path is the folder the profiles are stored into.
func New(l *slog.Logger, path string) *Manager {
	return &Manager{log: l, path: path}
}

var profileFilePattern = `%s` + constants.OperatorFilenameSuffix

// Get returns the profile for the given operator name.
// If the profile file does not exist, ErrProfileNotFound is returned.
func (m Manager) Get(name string) (p Profile, err error) {
	defer func() {
		var pe *os.PathError
		if errors.As(err, &pe) && errors.Is(pe.Err, os.ErrNotExist) {
			err = errors.Join(ErrProfileNotFound, err)
		}
	}()

	_, err = toml.DecodeFile(m.getFile(name), &p)
	if err != nil {
		return Profile{}, err
	}
	m.log.Debug("Read operator profile", "operator", name, "displayName", p.DisplayName)

	return p, nil
}

// Set creates or replaces the profile for the given operator name.
func (m Manager) Set(name string, p Profile) (err error) {
	defer decorate.OnError(&err, "could not set operator profile")

	if strings.TrimSpace(name) == "" {
		return errors.New("operator name cannot be empty")
	}
	if p.DisplayName == "" {
		p.DisplayName = name
	}

	return p.write(m.getFile(name))
}

// DisplayName resolves an operator name to its profile display name.
// When no profile exists the raw name is used, so an unregistered technician
// is still recorded rather than dropped.
func (m Manager) DisplayName(name string) string {
	if name == "" {
		return ""
	}

	p, err := m.Get(name)
	if errors.Is(err, ErrProfileNotFound) {
		m.log.Warn("No profile for operator, recording raw name", "operator", name)
		return name
	}
	if err != nil {
		m.log.Warn("Could not read operator profile, recording raw name", "operator", name, "error", err)
		return name
	}

	return p.DisplayName
}

// List returns the names of all operators with a validly named profile file, sorted.
func (m Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), constants.OperatorFilenameSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), constants.OperatorFilenameSuffix))
	}

	slices.Sort(names)
	return names, nil
}

// getFile returns the expected path to the profile file for the given operator.
// It does not check if the file exists, or if it is valid.
func (m Manager) getFile(name string) string {
	return filepath.Join(m.path, fmt.Sprintf(profileFilePattern, name))
}

// write writes the profile to the given path atomically, replacing it if it
// already exists. Not atomic on Windows. Makes dir if it does not exist.
func (p Profile) write(path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("could not create directory: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "operator-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %v", err)
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove temporary file", "file", tmp.Name(), "error", err)
		}
	}()

	if err := toml.NewEncoder(tmp).Encode(p); err != nil {
		return fmt.Errorf("could not encode profile: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temporary file: %v", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not rename temporary file: %v", err)
	}
	return nil
}
