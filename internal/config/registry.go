package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "batchpair"
	configFile = "config.yaml"

	// ConfigDirEnv overrides the configuration directory
	ConfigDirEnv = "BATCHPAIR_CONFIG_DIR"
)

var (
	loadOnce   sync.Once
	loaded     *Registry
	loadErr    error
	writeMutex sync.Mutex
)

// GetConfigDir returns the directory holding the config file.
//
// BATCHPAIR_CONFIG_DIR wins when set. Otherwise Windows uses
// %LOCALAPPDATA%\batchpair and every other platform uses
// $XDG_CONFIG_HOME/batchpair, falling back to ~/.config/batchpair.
func GetConfigDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir, nil
	}

	if runtime.GOOS == "windows" {
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			profile := os.Getenv("USERPROFILE")
			if profile == "" {
				return "", errors.New("cannot locate the config directory: LOCALAPPDATA and USERPROFILE are unset")
			}
			base = filepath.Join(profile, "AppData", "Local")
		}
		return filepath.Join(base, appName), nil
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" && runtime.GOOS != "darwin" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate the home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// GetConfigPath returns the path of the config file
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// LoadRegistry loads the registry from the default path once per process.
// Later calls return the same instance.
func LoadRegistry() (*Registry, error) {
	loadOnce.Do(func() {
		path, err := GetConfigPath()
		if err != nil {
			loadErr = fmt.Errorf("failed to get config path: %w", err)
			return
		}
		loaded, loadErr = LoadFile(path)
	})
	return loaded, loadErr
}

// LoadFile reads a registry from path. A missing file yields a default
// registry; missing sections are filled with defaults.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	reg := &Registry{}
	if err := yaml.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if reg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d in %s (expected %d)", reg.Version, path, CurrentVersion)
	}
	if reg.Preferences == nil {
		reg.Preferences = DefaultPreferences()
	}
	if reg.Devices == nil {
		reg.Devices = make(map[string]*Device)
	}
	return reg, nil
}

// Save writes the registry to the default path
func (r *Registry) Save() error {
	path, err := GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return r.SaveTo(path)
}

const fileHeader = `# batchpair configuration
#
# preferences: defaults for the wizard and 'batchpair pair'
# devices:     names and groups remembered from earlier pairings
#
# The pairing service token is never written here. Pass it with --token
# or BATCHPAIR_TOKEN.

`

// SaveTo writes the registry to path through a temporary file, so a crash
// never leaves a truncated config behind
func (r *Registry) SaveTo(path string) error {
	writeMutex.Lock()
	defer writeMutex.Unlock()

	// The history names devices in someone's home: user-only permissions
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	body, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+configFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary config file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(fileHeader)
	if err == nil {
		_, err = tmp.Write(body)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// CreateDefaultConfig writes a config file with default preferences to
// path. An existing file is only replaced when force is set.
func CreateDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}
	return NewRegistry().SaveTo(path)
}
