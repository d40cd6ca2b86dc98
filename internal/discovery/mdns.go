package discovery

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/batchpair/internal/batch"
	"github.com/muurk/batchpair/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type advertised by devices in pairing mode
	ServiceType = "_batchpair._tcp"

	// ServiceDomain is the browse domain
	ServiceDomain = "local."

	// DefaultScanTimeout bounds a scan when no timeout is configured
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is assumed when an advertisement carries no port
	DefaultPort = 80
)

// hostnamePattern matches hostnames of devices without a TXT serial (e.g., "bp-SN-000123.local")
var hostnamePattern = regexp.MustCompile(`^bp-([A-Za-z0-9-]+)\.local\.?$`)

// Scanner browses for devices in pairing mode
type Scanner struct {
	// Timeout is how long a scan listens for announcements
	Timeout time.Duration

	// IncludeAll keeps devices that are not in pairing mode
	IncludeAll bool

	now func() time.Time
}

// NewScanner returns a scanner using DefaultScanTimeout
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		now:     time.Now,
	}
}

// Scan discovers devices on the local network until the timeout expires
// or ctx is cancelled. Results are sorted by serial.
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	collected := newCollector(s)
	if err := browse(ctx, collected.add); err != nil {
		return nil, err
	}
	<-ctx.Done()

	devices := collected.devices()
	logging.Debug("mDNS scan finished",
		zap.Int("devices", len(devices)),
		zap.Duration("timeout", s.Timeout))
	return devices, nil
}

// browse starts an mDNS browse for ServiceType and hands every entry to
// handle until ctx ends. It returns once the browse is running.
func browse(ctx context.Context, handle func(*zeroconf.ServiceEntry)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for e := range entries {
			handle(e)
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return fmt.Errorf("mDNS browse for %s: %w", ServiceType, err)
	}
	return nil
}

// collector deduplicates entries by serial. The zeroconf browser delivers
// entries from its own goroutine.
type collector struct {
	scanner *Scanner
	mu      sync.Mutex
	bySN    map[string]*Device
}

func newCollector(s *Scanner) *collector {
	return &collector{scanner: s, bySN: make(map[string]*Device)}
}

func (c *collector) add(entry *zeroconf.ServiceEntry) {
	device := c.scanner.parseServiceEntry(entry)
	if device == nil {
		return
	}
	if !c.scanner.IncludeAll && !device.InPairingMode() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.bySN[device.Serial]; ok {
		// Keep the first sighting time, take the newer address
		device.DiscoveredAt = prev.DiscoveredAt
		if device.IP == "" {
			device.IP = prev.IP
		}
	}
	c.bySN[device.Serial] = device
}

func (c *collector) devices() []*Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Device, 0, len(c.bySN))
	for _, d := range c.bySN {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if no valid serial can be found.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil {
		return nil
	}

	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		k, v, _ := strings.Cut(txt, "=")
		metadata[k] = v
	}

	serial := metadata[TXTSerial]
	if serial == "" {
		matches := hostnamePattern.FindStringSubmatch(entry.HostName)
		if len(matches) < 2 {
			return nil
		}
		serial = matches[1]
	}
	serial = batch.NormalizeSerial(serial)
	if msg := batch.ValidateSerialFormat(serial); msg != "" {
		logging.Debug("Ignoring mDNS entry with invalid serial",
			zap.String("host", entry.HostName),
			zap.String("reason", msg))
		return nil
	}

	var ip string
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0].String()
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}

	return &Device{
		Serial:       serial,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: now(),
	}
}

// ScanForDevices is a convenience function to scan for devices in pairing
// mode with a custom timeout
func ScanForDevices(ctx context.Context, timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	return scanner.Scan(ctx)
}

// Advertisement describes a device to publish over mDNS
type Advertisement struct {
	Serial     string
	DeviceType string
	Port       int
}

// Advertise publishes ad as a device in pairing mode. Call Shutdown on
// the returned server to withdraw it.
func Advertise(ad Advertisement) (*zeroconf.Server, error) {
	serial := batch.NormalizeSerial(ad.Serial)
	if msg := batch.ValidateSerialFormat(serial); msg != "" {
		return nil, fmt.Errorf("cannot advertise %q: %s", ad.Serial, msg)
	}
	port := ad.Port
	if port == 0 {
		port = DefaultPort
	}

	txt := []string{TXTSerial + "=" + serial, TXTMode + "=" + ModePairing}
	if ad.DeviceType != "" {
		txt = append(txt, TXTType+"="+ad.DeviceType)
	}

	server, err := zeroconf.Register("bp-"+serial, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service for %s: %w", serial, err)
	}
	logging.Info("Advertising device over mDNS",
		zap.String("serial", serial),
		zap.Int("port", port))
	return server, nil
}
