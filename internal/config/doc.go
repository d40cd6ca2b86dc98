// Package config provides user configuration management for batchpair.
//
// Two layers live here. The Registry is a YAML file holding application
// preferences and a history of paired devices, used to pre-fill names and
// groups when a known serial is added again. Settings is the effective
// runtime configuration, layered with viper: command-line flags override
// BATCHPAIR_* environment variables, which override the registry
// preferences, which override built-in defaults.
//
// # Configuration File Location
//
// BATCHPAIR_CONFIG_DIR or --config take precedence. Otherwise:
//   - Linux: $XDG_CONFIG_HOME/batchpair/config.yaml or $HOME/.config/batchpair/config.yaml
//   - macOS: $HOME/.config/batchpair/config.yaml
//   - Windows: %LOCALAPPDATA%\batchpair\config.yaml
//
// # Security
//
// The session token is NEVER written to the configuration file. It is
// supplied per run through --token or BATCHPAIR_TOKEN.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry.RecordPairing("SN-000001", "Hall sensor", []string{"home"}, "sensor", time.Now())
//
//	if err := registry.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// LoadRegistry loads once per process. Saves are serialised and go
// through a temporary file that is renamed into place.
package config
