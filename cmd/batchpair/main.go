// Batchpair pairs a batch of devices with a remote pairing service.
//
// Run without arguments it opens an interactive wizard that walks the
// batch through four steps: enter serial numbers, confirm pin codes on
// each device, name and group the devices, and finish. The pair command
// runs the same flow without a terminal UI.
//
// Usage:
//
//	batchpair [flags]
//	batchpair pair SN-000001 SN-000002 [flags]
//	batchpair scan
//	batchpair simulate
//
// See 'batchpair --help' for available options.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/muurk/batchpair/internal/config"
	"github.com/muurk/batchpair/internal/discovery"
	"github.com/muurk/batchpair/internal/logging"
	"github.com/muurk/batchpair/internal/pairingapi"
	"github.com/muurk/batchpair/internal/version"
	"github.com/muurk/batchpair/internal/wizard"
	"github.com/muurk/batchpair/internal/wizard/tui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "batchpair",
	Short: "Pair a batch of devices with the pairing service",
	Long: `Batchpair registers several devices with the pairing service in one go.

Running batchpair without a subcommand opens the interactive wizard:

  1. Enter serial numbers    add devices by hand or discover them with 'd'
  2. Confirm pin codes       enter the pin code shown on each device
  3. Device settings         give every device a name and its groups
  4. Finished

Settings come from flags, BATCHPAIR_* environment variables and the
config file, in that order. Run 'batchpair config show' to see the result.`,
	Example: `  # Open the wizard against a local simulator
  batchpair simulate &
  batchpair --service http://127.0.0.1:8787

  # Pair two devices without the wizard
  batchpair pair SN-000001 SN-000002 --name SN-000001="Hall sensor"`,
	RunE:          runWizard,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Global flags
var configPath string

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default is the user config directory)")
	flags.String("service", config.DefaultServiceURL, "Pairing service URL")
	flags.String("token", "", "Bearer token for the pairing service")
	flags.Duration("poll-interval", config.DefaultPollInterval, "How often pairing status is polled")
	flags.Duration("request-timeout", config.DefaultRequestTimeout, "Timeout for each pairing service call")
	flags.String("log-level", "", "Log level (debug, info, warn, error); silent when empty")
	flags.String("log-file", "", "Write logs to a rotated file instead of stdout")

	rootCmd.Flags().Bool("auto-discover", false, "Scan for devices in pairing mode when the wizard opens")
	rootCmd.Flags().Duration("discover-timeout", config.DefaultDiscoverTimeout, "How long a discovery scan runs")

	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// environment is the configuration shared by every command
type environment struct {
	settings *config.Settings
	registry *config.Registry
}

// loadEnvironment resolves the effective settings for cmd and sets up
// logging from them
func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}

	v := config.NewViper(registry.Preferences)
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	settings, err := config.LoadSettings(v)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.Initialize(logging.Options{
		Level: settings.LogLevel,
		File:  settings.LogFile,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.Debug("Settings loaded",
		zap.String("service", settings.ServiceURL),
		zap.Duration("poll_interval", settings.PollInterval),
		zap.Bool("token", settings.Token != ""),
	)

	return &environment{settings: settings, registry: registry}, nil
}

func loadRegistry() (*config.Registry, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	registry, err := config.LoadRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return registry, nil
}

func saveRegistry(registry *config.Registry) error {
	if configPath != "" {
		return registry.SaveTo(configPath)
	}
	return registry.Save()
}

// newController creates a wizard controller talking to the configured
// pairing service
func (env *environment) newController(opts ...wizard.Option) *wizard.Controller {
	client := pairingapi.NewClient(env.settings.ServiceURL, env.settings.Token)
	client.SetTimeout(env.settings.RequestTimeout)

	opts = append([]wizard.Option{
		wizard.WithPollInterval(env.settings.PollInterval),
		wizard.WithRequestTimeout(env.settings.RequestTimeout),
	}, opts...)
	return wizard.New(client, opts...)
}

// recordHistory stores the name, groups and type of every device in a
// finished batch so the next run can suggest them
func (env *environment) recordHistory(snap wizard.Snapshot) error {
	now := time.Now()
	for _, e := range snap.Entries {
		env.registry.RecordPairing(e.SerialNumber, e.Name, e.GroupIDs, e.DeviceType, now)
	}
	if err := saveRegistry(env.registry); err != nil {
		return fmt.Errorf("failed to save device history: %w", err)
	}
	logging.Info("Device history saved", zap.Int("devices", len(snap.Entries)))
	return nil
}

func runWizard(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("the wizard needs an interactive terminal; use 'batchpair pair' instead")
	}
	if env.settings.LogLevel != "" && env.settings.LogFile == "" {
		return errors.New("logging to stdout would corrupt the wizard screen; set --log-file as well")
	}
	width, height, err := term.GetSize(fd)
	if err != nil {
		width, height = tui.DefaultWidth, tui.DefaultHeight
	}

	ctx := cmd.Context()
	bridge := tui.NewBridge()
	ctrl := env.newController(wizard.WithObserver(bridge))
	defer bridge.Close()
	defer ctrl.Close()

	scanner := discovery.NewScanner()
	scanner.Timeout = env.settings.DiscoverTimeout

	model := tui.NewModel(ctrl, tui.Options{
		Context:      ctx,
		Suggester:    env.registry,
		Scan:         tui.MDNSScan(scanner),
		AutoDiscover: env.settings.AutoDiscover,
		Width:        width,
		Height:       height,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(p.Send)

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("wizard error: %w", err)
	}

	m, ok := final.(tui.Model)
	if !ok || !m.Finished() {
		// Interrupted before the wizard quit on its own
		ctrl.Cancel()
		fmt.Println("Pairing cancelled.")
		return nil
	}

	snap := m.Snapshot()
	fmt.Printf("✓ Paired %d device(s)\n", len(snap.Entries))
	return env.recordHistory(snap)
}
