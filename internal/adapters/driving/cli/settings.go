package cli

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage project settings",
	Long: `View and change the project configuration stored in config.toml.

Use 'settings set <key> <value>' for single keys or 'settings wizard' for
interactive setup.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one setting",
	Long: `Set one setting. Keys:
  sync_folder               folder that receives account trees
  data_dir                  database and position files (default: config dir)
  position_store            sqlite or file
  poll.interval             e.g. 5m
  poll.concurrency          accounts polled at once
  poll.max_attempts         fetch attempts on transient errors
  poll.cycle_timeout        e.g. 30m, 0 for none
  box.window_seconds        how long the Box stream is read per poll
  dropbox.longpoll_seconds  Dropbox long-poll wait, 30 to 480
  metrics.addr              Prometheus listen address, empty to disable`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup wizard",
	Long:  `Run an interactive wizard to configure the sync folder and polling.`,
	RunE:  runSettingsWizard,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsWizardCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	settings, err := s.Settings.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Sync folder: %s\n", valueOr(settings.SyncFolder, "(not set)"))
	cmd.Printf("  Data dir: %s\n", valueOr(settings.DataDir, "(config dir)"))
	cmd.Printf("  Position store: %s\n", settings.PositionBackend)
	cmd.Println()

	cmd.Println("[Poll]")
	cmd.Printf("  Interval: %s\n", settings.Poll.Interval)
	cmd.Printf("  Concurrency: %d\n", settings.Poll.Concurrency)
	cmd.Printf("  Max attempts: %d\n", settings.Poll.MaxAttempts)
	cmd.Printf("  Cycle timeout: %s\n", settings.Poll.CycleTimeout)
	cmd.Println()

	cmd.Println("[Providers]")
	cmd.Printf("  Box window: %s\n", settings.Box.Window)
	cmd.Printf("  Dropbox long-poll: %s\n", settings.Dropbox.LongpollTimeout)
	cmd.Println()

	cmd.Println("[Metrics]")
	cmd.Printf("  Address: %s\n", valueOr(settings.Metrics.Addr, "(disabled)"))
	cmd.Println()
	cmd.Println("[Tracing]")
	cmd.Printf("  OTLP endpoint: %s\n", valueOr(settings.Tracing.Endpoint, "(disabled)"))
	if settings.Tracing.Endpoint != "" {
		cmd.Printf("  Insecure: %t\n", settings.Tracing.Insecure)
	}
	cmd.Println()

	if err := settings.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'cloudpoll settings wizard' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if err := s.Settings.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("%s = %s\n", args[0], args[1])
	return nil
}

func runSettingsWizard(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	settings, err := s.Settings.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("cloudpoll Settings Wizard")
	cmd.Println("=========================")
	cmd.Println()

	reader := bufio.NewReader(cmd.InOrStdin())

	cmd.Println("Step 1: Sync folder")
	cmd.Printf("Enter path [%s]: ", settings.SyncFolder)
	if input := readLine(reader); input != "" {
		settings.SyncFolder = input
	}
	cmd.Println()

	cmd.Println("Step 2: Position store")
	backends := []domain.PositionBackend{domain.PositionBackendSQLite, domain.PositionBackendFile}
	current := 1
	for i, b := range backends {
		cmd.Printf("  %d. %s\n", i+1, b)
		if b == settings.PositionBackend {
			current = i + 1
		}
	}
	cmd.Printf("\nEnter choice [%d]: ", current)
	settings.PositionBackend = backends[parseChoice(readLine(reader), len(backends), current)-1]
	cmd.Println()

	cmd.Println("Step 3: Poll interval")
	cmd.Printf("Enter duration [%s]: ", settings.Poll.Interval)
	if input := readLine(reader); input != "" {
		d, err := time.ParseDuration(input)
		if err != nil {
			return fmt.Errorf("%w: poll interval: %v", domain.ErrInvalidInput, err)
		}
		settings.Poll.Interval = d
	}
	cmd.Println()

	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.Settings.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	cmd.Println("Settings saved.")
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
