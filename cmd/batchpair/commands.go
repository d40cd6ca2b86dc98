package main

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/batchpair/internal/batch"
	"github.com/muurk/batchpair/internal/config"
	"github.com/muurk/batchpair/internal/discovery"
	"github.com/muurk/batchpair/internal/logging"
	"github.com/muurk/batchpair/internal/simulator"
	"github.com/muurk/batchpair/internal/ui"
	"github.com/muurk/batchpair/internal/version"
)

// scanCmd discovers devices waiting to be paired
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for devices in pairing mode",
	Long: `Scan for devices using mDNS/DNS-SD discovery.

This command browses the local network for devices advertising the
_batchpair._tcp service in pairing mode and lists their serial numbers.
The serials can be passed straight to 'batchpair pair'.`,
	Example: `  # Scan for 10 seconds (default)
  batchpair scan

  # Quick 3-second scan
  batchpair scan --discover-timeout 3s

  # Include devices that are already paired
  batchpair scan --all`,
	RunE: runScan,
}

var scanAll bool

func init() {
	scanCmd.Flags().Duration("discover-timeout", 0, "Scan duration (default from config)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Also list devices that are not in pairing mode")
}

func runScan(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = env.settings.DiscoverTimeout
	scanner.IncludeAll = scanAll

	header := ui.NewHeader("Device discovery", "batchpair scan", []ui.Param{
		{Key: "Service type", Value: discovery.ServiceType},
		{Key: "Timeout", Value: scanner.Timeout.String()},
	})
	fmt.Println(header.Render())
	fmt.Println()
	fmt.Println(ui.PleaseWait("Scanning for devices", ""))
	devices, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure devices are powered on and in pairing mode")
		fmt.Println("  - Verify your computer is on the same network as the devices")
		fmt.Println("  - Check that multicast traffic (UDP 5353) is not blocked")
		fmt.Println("  - Try increasing --discover-timeout for slower networks")
		return nil
	}

	fmt.Printf("\nFound %d device(s):\n\n", len(devices))
	for _, d := range devices {
		fmt.Printf("  %s\n", d)
		if t := d.DeviceType(); t != "" {
			fmt.Printf("    Type: %s\n", t)
		}
		if !d.InPairingMode() {
			fmt.Println("    Not in pairing mode")
		}
		if name, _ := env.registry.Suggest(d.Serial); name != "" {
			fmt.Printf("    Previously paired as: %s\n", name)
		}
	}
	fmt.Println()
	fmt.Printf("Use 'batchpair pair %s' to pair them\n", strings.Join(discovery.Serials(devices), " "))
	return nil
}

// Simulate command flags
var (
	simListen      string
	simPinTTL      time.Duration
	simPollsToPair int
	simReject      map[string]string
	simFail        []string
	simAdvertise   []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an in-memory pairing service for testing",
	Long: `Run a simulated pairing service on a local port.

The simulator speaks the same API as the real pairing service. Devices
confirm their pin code on their own after a few status polls, so a whole
batch can be paired without hardware. By default it listens on the
address of --service.

With --advertise the simulator also announces the given serials over
mDNS, so discovery in the wizard and 'batchpair scan' find them.`,
	Example: `  # Serve on the default service address
  batchpair simulate

  # Reject one serial and let another fail pairing
  batchpair simulate --reject SN-BAD001="unknown serial" --fail SN-000003

  # Announce two devices over mDNS
  batchpair simulate --advertise SN-000001,GW-000002`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simListen, "listen", "", "Listen address host:port (default from --service)")
	simulateCmd.Flags().DurationVar(&simPinTTL, "pin-ttl", simulator.DefaultPinTTL, "Lifetime of issued pin codes")
	simulateCmd.Flags().IntVar(&simPollsToPair, "polls-to-pair", simulator.DefaultPollsToPair, "Status polls before a device reports its result")
	simulateCmd.Flags().StringToStringVar(&simReject, "reject", nil, "Serial to reject as SERIAL=REASON (repeatable)")
	simulateCmd.Flags().StringSliceVar(&simFail, "fail", nil, "Serial whose pairing fails (repeatable)")
	simulateCmd.Flags().StringSliceVar(&simAdvertise, "advertise", nil, "Serial to announce over mDNS (repeatable)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	host, port, err := listenAddress(simListen, env.settings.ServiceURL)
	if err != nil {
		return err
	}

	failing := make(map[string]bool, len(simFail))
	for _, sn := range simFail {
		failing[batch.NormalizeSerial(sn)] = true
	}
	rejected := make(map[string]string, len(simReject))
	for sn, reason := range simReject {
		rejected[batch.NormalizeSerial(sn)] = reason
	}
	service := simulator.NewService(simulator.Config{
		Token:       env.settings.Token,
		PinTTL:      simPinTTL,
		PollsToPair: simPollsToPair,
		Rejected:    rejected,
		Failing:     failing,
	}, nil)

	for _, sn := range simAdvertise {
		ad, err := discovery.Advertise(discovery.Advertisement{Serial: sn, Port: port})
		if err != nil {
			return err
		}
		defer ad.Shutdown()
	}

	server := simulator.NewServer(service, host, port)
	return server.Run(cmd.Context(), func(addr string) {
		fmt.Printf("Pairing simulator listening on http://%s\n", addr)
		if len(simAdvertise) > 0 {
			fmt.Printf("Advertising %d device(s) over mDNS\n", len(simAdvertise))
		}
		fmt.Println("Press Ctrl+C to stop")
	})
}

// listenAddress returns the host and port to serve on: listen when set,
// otherwise the address of serviceURL
func listenAddress(listen, serviceURL string) (string, int, error) {
	addr := listen
	if addr == "" {
		u, err := url.Parse(serviceURL)
		if err != nil {
			return "", 0, fmt.Errorf("invalid service URL: %w", err)
		}
		addr = u.Host
		if u.Port() == "" {
			if u.Scheme == "https" {
				return "", 0, fmt.Errorf("the simulator serves plain http; set --listen")
			}
			addr = net.JoinHostPort(u.Hostname(), "80")
		}
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in listen address %q", addr)
	}
	return host, port, nil
}

// configCmd groups config file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default preferences",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		if err := config.CreateDefaultConfig(path, configForce); err != nil {
			return err
		}
		fmt.Printf("✓ Config written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment(cmd)
		if err != nil {
			return err
		}
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}

		s := env.settings
		token := "(not set)"
		if s.Token != "" {
			token = "(set)"
		}
		level := s.LogLevel
		if level == "" {
			level = "(silent)"
		}

		fmt.Printf("Config file:      %s\n", path)
		fmt.Printf("Service:          %s\n", s.ServiceURL)
		fmt.Printf("Token:            %s\n", token)
		fmt.Printf("Poll interval:    %s\n", s.PollInterval)
		fmt.Printf("Request timeout:  %s\n", s.RequestTimeout)
		fmt.Printf("Discover timeout: %s\n", s.DiscoverTimeout)
		fmt.Printf("Auto discover:    %t\n", s.AutoDiscover)
		fmt.Printf("Default groups:   %s\n", strings.Join(s.DefaultGroups, ", "))
		fmt.Printf("Log level:        %s\n", level)
		if s.LogFile != "" {
			fmt.Printf("Log file:         %s\n", s.LogFile)
		}

		serials := env.registry.Serials()
		fmt.Printf("\nKnown devices:    %d\n", len(serials))
		for _, sn := range serials {
			d := env.registry.GetDevice(sn)
			fmt.Printf("  %-20s %-24s %s\n", sn, d.Name, strings.Join(d.Groups, ","))
		}
		return nil
	},
}

var configForgetCmd = &cobra.Command{
	Use:   "forget <serial>...",
	Short: "Remove devices from the pairing history",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		removed := 0
		for _, sn := range args {
			if registry.Forget(sn) {
				removed++
			} else {
				fmt.Printf("  %s is not in the history\n", sn)
			}
		}
		if removed == 0 {
			return nil
		}
		if err := saveRegistry(registry); err != nil {
			return err
		}
		logging.Info("Devices forgotten", zap.Int("count", removed))
		fmt.Printf("✓ Forgot %d device(s)\n", removed)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configForgetCmd)
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		fmt.Printf("batchpair %s (commit: %s)\n", info.Version, info.Commit)
		fmt.Printf("  Go:       %s\n", info.GoVersion)
		fmt.Printf("  Platform: %s\n", info.Platform)
	},
}
