package config

import (
	"sort"
	"time"
)

// CurrentVersion is the registry file format version
const CurrentVersion = 1

// Registry represents the entire user configuration file.
// This stores application preferences and the paired device history.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device serial number
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device is what batchpair remembers about a device it paired before.
// This is keyed by the device's serial number in the Registry.
type Device struct {
	Name       string    `yaml:"name,omitempty"`        // Name sent with the last settings commit
	Groups     []string  `yaml:"groups,omitempty"`      // Group ids sent with the last settings commit
	DeviceType string    `yaml:"device_type,omitempty"` // Type reported by the pairing service
	LastPaired time.Time `yaml:"last_paired,omitempty"` // When the device last finished pairing
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	ServiceURL      string        `yaml:"service_url,omitempty"`    // Pairing service root URL
	PollInterval    time.Duration `yaml:"poll_interval"`            // Pairing status poll interval
	RequestTimeout  time.Duration `yaml:"request_timeout"`          // Per-request timeout
	DefaultGroups   []string      `yaml:"default_groups,omitempty"` // Groups given to newly added devices
	AutoDiscover    bool          `yaml:"auto_discover"`            // Browse for devices in pairing mode on startup
	DiscoverTimeout time.Duration `yaml:"discover_timeout"`         // mDNS discovery timeout
}

// Built-in preference defaults
const (
	DefaultServiceURL      = "http://127.0.0.1:8787"
	DefaultPollInterval    = 5 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultDiscoverTimeout = 10 * time.Second
)

// DefaultPreferences returns the preferences of a fresh installation
func DefaultPreferences() *Preferences {
	return &Preferences{
		ServiceURL:      DefaultServiceURL,
		PollInterval:    DefaultPollInterval,
		RequestTimeout:  DefaultRequestTimeout,
		AutoDiscover:    false,
		DiscoverTimeout: DefaultDiscoverTimeout,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Devices:     make(map[string]*Device),
		Preferences: DefaultPreferences(),
	}
}

// GetDevice retrieves device history by serial number.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(serial string) *Device {
	return r.Devices[serial]
}

// EnsureDevice ensures a device entry exists in the registry.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(serial string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[serial]; exists {
		return device
	}

	device := &Device{}
	r.Devices[serial] = device
	return device
}

// RecordPairing stores the settings a device was committed with
func (r *Registry) RecordPairing(serial, name string, groups []string, deviceType string, at time.Time) {
	device := r.EnsureDevice(serial)
	device.Name = name
	device.Groups = append([]string(nil), groups...)
	if deviceType != "" {
		device.DeviceType = deviceType
	}
	device.LastPaired = at
}

// Suggest returns the name and groups to pre-fill for serial: the
// remembered ones when the device was paired before, else the default
// groups and no name.
func (r *Registry) Suggest(serial string) (string, []string) {
	if device := r.GetDevice(serial); device != nil {
		return device.Name, append([]string(nil), device.Groups...)
	}
	if r.Preferences != nil {
		return "", append([]string(nil), r.Preferences.DefaultGroups...)
	}
	return "", nil
}

// Serials returns the serials of every remembered device, sorted
func (r *Registry) Serials() []string {
	serials := make([]string, 0, len(r.Devices))
	for sn := range r.Devices {
		serials = append(serials, sn)
	}
	sort.Strings(serials)
	return serials
}

// Forget removes a device from the history
func (r *Registry) Forget(serial string) bool {
	if _, ok := r.Devices[serial]; !ok {
		return false
	}
	delete(r.Devices, serial)
	return true
}
