package discovery

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"
)

// TXT record keys published by devices
const (
	TXTSerial = "sn"
	TXTMode   = "mode"
	TXTType   = "type"

	// ModePairing is the TXT mode value of a device waiting to be paired
	ModePairing = "pairing"
)

// Device represents a device discovered on the network
type Device struct {
	// Serial is the normalised device serial number (e.g., "SN-000123")
	Serial string

	// Hostname is the mDNS hostname (e.g., "bp-SN-000123.local.")
	Hostname string

	// IP is the first advertised address, IPv4 preferred. May be empty.
	IP string

	Port int

	// Metadata contains the raw TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the device was first seen
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	if d.IP == "" {
		return fmt.Sprintf("Device %s (%s)", d.Serial, d.Hostname)
	}
	return fmt.Sprintf("Device %s (%s) at %s", d.Serial, d.Hostname, d.Address())
}

// Address returns host:port of the advertised endpoint
func (d *Device) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// InPairingMode reports whether the device advertises that it waits to be
// paired. Devices without a mode record are assumed to be.
func (d *Device) InPairingMode() bool {
	mode, ok := d.Metadata[TXTMode]
	return !ok || mode == ModePairing
}

// DeviceType returns the advertised device type, if any
func (d *Device) DeviceType() string {
	return d.GetMetadata(TXTType)
}

// Serials returns the distinct serials of devices, sorted
func Serials(devices []*Device) []string {
	seen := make(map[string]bool, len(devices))
	serials := make([]string, 0, len(devices))
	for _, d := range devices {
		if d == nil || seen[d.Serial] {
			continue
		}
		seen[d.Serial] = true
		serials = append(serials, d.Serial)
	}
	sort.Strings(serials)
	return serials
}
