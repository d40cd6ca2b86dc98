package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable batchpair reads
const EnvPrefix = "BATCHPAIR"

// Setting keys. Flags of the same name bind to them; environment
// variables are the upper-cased key with EnvPrefix, e.g. BATCHPAIR_POLL_INTERVAL.
const (
	KeyService         = "service"
	KeyToken           = "token"
	KeyPollInterval    = "poll_interval"
	KeyRequestTimeout  = "request_timeout"
	KeyDiscoverTimeout = "discover_timeout"
	KeyAutoDiscover    = "auto_discover"
	KeyDefaultGroups   = "default_groups"
	KeyLogLevel        = "log_level"
	KeyLogFile         = "log_file"
)

// Settings is the effective configuration of one run
type Settings struct {
	ServiceURL      string
	Token           string
	PollInterval    time.Duration
	RequestTimeout  time.Duration
	DiscoverTimeout time.Duration
	AutoDiscover    bool
	DefaultGroups   []string
	LogLevel        string
	LogFile         string
}

// NewViper returns a viper instance layered over prefs: built-in defaults
// at the bottom, then the non-zero preferences, then BATCHPAIR_*
// environment variables. Flags are added on top with BindFlags.
func NewViper(prefs *Preferences) *viper.Viper {
	v := viper.New()

	defaults := DefaultPreferences()
	v.SetDefault(KeyService, defaults.ServiceURL)
	v.SetDefault(KeyPollInterval, defaults.PollInterval)
	v.SetDefault(KeyRequestTimeout, defaults.RequestTimeout)
	v.SetDefault(KeyDiscoverTimeout, defaults.DiscoverTimeout)
	v.SetDefault(KeyAutoDiscover, defaults.AutoDiscover)
	v.SetDefault(KeyDefaultGroups, []string{})
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyToken, "")

	if prefs != nil {
		// MergeConfigMap only errors on a nil map
		_ = v.MergeConfigMap(preferenceMap(prefs))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

func preferenceMap(p *Preferences) map[string]any {
	m := map[string]any{KeyAutoDiscover: p.AutoDiscover}
	if p.ServiceURL != "" {
		m[KeyService] = p.ServiceURL
	}
	if p.PollInterval > 0 {
		m[KeyPollInterval] = p.PollInterval.String()
	}
	if p.RequestTimeout > 0 {
		m[KeyRequestTimeout] = p.RequestTimeout.String()
	}
	if p.DiscoverTimeout > 0 {
		m[KeyDiscoverTimeout] = p.DiscoverTimeout.String()
	}
	if len(p.DefaultGroups) > 0 {
		m[KeyDefaultGroups] = p.DefaultGroups
	}
	return m
}

// BindFlags binds every flag in fs whose name matches a setting key,
// accepting dashes in place of underscores (--poll-interval).
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !isKey(key) || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

func isKey(key string) bool {
	switch key {
	case KeyService, KeyToken, KeyPollInterval, KeyRequestTimeout, KeyDiscoverTimeout,
		KeyAutoDiscover, KeyDefaultGroups, KeyLogLevel, KeyLogFile:
		return true
	}
	return false
}

// LoadSettings resolves and validates the effective settings from v
func LoadSettings(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		ServiceURL:      strings.TrimRight(strings.TrimSpace(v.GetString(KeyService)), "/"),
		Token:           strings.TrimSpace(v.GetString(KeyToken)),
		PollInterval:    v.GetDuration(KeyPollInterval),
		RequestTimeout:  v.GetDuration(KeyRequestTimeout),
		DiscoverTimeout: v.GetDuration(KeyDiscoverTimeout),
		AutoDiscover:    v.GetBool(KeyAutoDiscover),
		DefaultGroups:   cleanList(v.GetStringSlice(KeyDefaultGroups)),
		LogLevel:        strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFile:         strings.TrimSpace(v.GetString(KeyLogFile)),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the settings are usable. An empty log level
// keeps logging silent.
func (s *Settings) Validate() error {
	u, err := url.Parse(s.ServiceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s %q: expected an http(s) URL", KeyService, s.ServiceURL)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("invalid %s %v: must be positive", KeyPollInterval, s.PollInterval)
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("invalid %s %v: must be positive", KeyRequestTimeout, s.RequestTimeout)
	}
	if s.DiscoverTimeout <= 0 {
		return fmt.Errorf("invalid %s %v: must be positive", KeyDiscoverTimeout, s.DiscoverTimeout)
	}
	switch s.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid %s %q: expected debug, info, warn or error", KeyLogLevel, s.LogLevel)
	}
	return nil
}

// cleanList trims entries, drops empty ones and splits comma-joined
// values as they arrive from environment variables.
func cleanList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
