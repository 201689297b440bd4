package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/autobuilder/internal/logger"
)

// DefaultFileName is the configuration file looked up in the working directory.
const DefaultFileName = "autobuilder.yaml"

var (
	// ErrCreated is returned by Open when no file existed and the defaults
	// were written for the operator to review.
	ErrCreated = errors.New("configuration file created with defaults; review it and rerun")
	// ErrIncompatible is returned by Open when the file belongs to an older
	// major release. The old file is renamed aside and defaults are written.
	ErrIncompatible = errors.New("configuration file is from an incompatible release")
)

// Load reads and parses a configuration from the given YAML file path.
// Fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	// The defaults carry a version; a file without one is treated as 0.0.
	cfg.Version = ""
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// applyDefaults fills in what a partial file leaves unset: nil collections
// and stages the file does not list.
func applyDefaults(cfg *Config) {
	if cfg.ScriptPaths == nil {
		cfg.ScriptPaths = map[string]string{}
	}
	if cfg.ExcludedTests == nil {
		cfg.ExcludedTests = []string{}
	}
	listed := make(map[string]bool, len(cfg.Stages))
	for _, st := range cfg.Stages {
		listed[st.Name] = true
	}
	for _, name := range KnownStages {
		if !listed[name] {
			cfg.Stages = append(cfg.Stages, StageToggle{Name: name})
		}
	}
}

// Marshal encodes cfg as YAML with two-space indentation.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding config YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes cfg to path atomically.
func Save(path string, cfg *Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// Open loads the configuration at path, creating or migrating it first.
//
//   - missing file: defaults are written and ErrCreated is returned;
//   - older major version: the file is renamed to <name>.old.yaml, defaults
//     are written and ErrIncompatible is returned;
//   - any other version mismatch: defaults are written to <name>.new.yaml,
//     the existing file is loaded, and a warning is returned.
func Open(path string) (cfg *Config, warning string, err error) {
	log := logger.WithComponent("config")

	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if err := Save(path, Default()); err != nil {
			return nil, "", fmt.Errorf("writing default config: %w", err)
		}
		log.Info().Str("path", path).Msg("created default config")
		return nil, "", ErrCreated
	}

	cfg, err = Load(path)
	if err != nil {
		return nil, "", err
	}
	if cfg.Version == Version {
		return cfg, "", nil
	}

	fileMajor, fileMinor := parseVersion(cfg.Version)
	curMajor, curMinor := parseVersion(Version)

	if curMajor > fileMajor {
		old := siblingPath(path, "old")
		if err := os.Rename(path, old); err != nil {
			return nil, "", fmt.Errorf("renaming outdated config: %w", err)
		}
		if err := Save(path, Default()); err != nil {
			return nil, "", fmt.Errorf("writing default config: %w", err)
		}
		log.Warn().Str("path", path).Str("old", old).Str("version", cfg.Version).Msg("replaced incompatible config")
		return nil, "", fmt.Errorf("%w: version %q renamed to %s", ErrIncompatible, cfg.Version, old)
	}

	if fileMajor != curMajor || fileMinor != curMinor {
		fresh := siblingPath(path, "new")
		if err := Save(fresh, Default()); err != nil {
			return nil, "", fmt.Errorf("writing reference config: %w", err)
		}
		warning = fmt.Sprintf("%s may be out of date (version %q, current %q); a reference file was written to %s. "+
			"Bump the version to %s after reviewing.", path, cfg.Version, Version, fresh, Version)
		log.Warn().Str("path", path).Str("version", cfg.Version).Msg("config version mismatch")
	}
	return cfg, warning, nil
}

// parseVersion reads "major.minor"; anything unparsable counts as 0.
func parseVersion(v string) (major, minor int) {
	parts := strings.SplitN(strings.TrimSpace(v), ".", 3)
	if len(parts) > 0 {
		major, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return major, minor
}

// siblingPath turns dir/autobuilder.yaml into dir/autobuilder.<tag>.yaml.
func siblingPath(path, tag string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + tag + ext
}

// ScriptPath resolves the executable for a stage or for list-tests.
func (c *Config) ScriptPath(name string) (string, error) {
	file, ok := c.ScriptPaths[name]
	if !ok || file == "" {
		return "", fmt.Errorf("no script configured for %q", name)
	}
	if filepath.IsAbs(file) {
		return file, nil
	}
	folder := c.ScriptFolder
	if !filepath.IsAbs(folder) {
		folder = filepath.Join(c.dir, folder)
	}
	return filepath.Join(folder, file), nil
}

// Manager owns the persisted configuration. Callers read immutable
// snapshots; every mutation is validated, saved atomically and re-read.
type Manager struct {
	path string

	mu  sync.Mutex
	cfg *Config
}

// NewManager wraps an already loaded configuration.
func NewManager(path string, cfg *Config) *Manager {
	return &Manager{path: path, cfg: cfg}
}

// Path returns the file the manager persists to.
func (m *Manager) Path() string {
	return m.path
}

// Current returns the current snapshot. It must not be modified.
func (m *Manager) Current() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Update applies fn to a copy of the current configuration, persists it and
// makes the re-read file the new snapshot. An invalid result is rejected and
// the snapshot is left unchanged.
func (m *Manager) Update(fn func(*Config)) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.cfg.Clone()
	fn(next)
	if errs := Validate(next); len(errs) > 0 {
		return m.cfg, errs[0]
	}
	if err := Save(m.path, next); err != nil {
		return m.cfg, fmt.Errorf("saving config: %w", err)
	}
	reloaded, err := Load(m.path)
	if err != nil {
		return m.cfg, fmt.Errorf("reloading config: %w", err)
	}
	m.cfg = reloaded
	logger.WithComponent("config").Debug().Str("path", m.path).Msg("config updated")
	return reloaded, nil
}
