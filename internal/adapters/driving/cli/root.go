// Package cli is the cobra command tree of the cloudpoll binary.
package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/cloudpoll/internal/core/ports/driving"
	"github.com/custodia-labs/cloudpoll/internal/logger"
)

// version is set at build time with -ldflags.
var version = "dev"

// skipBootstrap marks commands that run without project services.
const skipBootstrap = "skip-bootstrap"

// Runner is a long-running background component, such as the local
// folder listener.
type Runner interface {
	Run(ctx context.Context) error
}

// Services holds everything the commands drive.
type Services struct {
	Accounts  driving.AccountService
	Poller    driving.PollOrchestrator
	Settings  driving.SettingsService
	Scheduler driving.Scheduler

	// Listener watches the sync folder during `run`. Optional.
	Listener Runner

	// Metrics serves /metrics during `run`. Optional.
	Metrics http.Handler
}

// BootstrapFunc builds the services for a config directory.
// The returned close function releases them.
type BootstrapFunc func(configDir string) (*Services, func() error, error)

var (
	current   *Services
	bootstrap BootstrapFunc
	closeFn   func() error

	configDir string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "cloudpoll",
	Short: "Mirror cloud storage accounts into a local folder",
	Long: `cloudpoll polls Box, Dropbox and Google Drive accounts for changes and
applies them to a local sync folder, one acct<ID> folder per account.

Positions are committed after every batch, so an interrupted poll resumes
where it left off.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(*cobra.Command, []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "",
		"config directory (default $CPOLL_CONFIGS or ~/.cloudpoll)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show debug output")
}

// SetBootstrap sets the function that builds services once flags are parsed.
func SetBootstrap(fn BootstrapFunc) {
	bootstrap = fn
}

// SetServices injects ready-made services, bypassing bootstrap.
func SetServices(s *Services) {
	current = s
}

// Execute runs the root command.
func Execute() error {
	defer logger.Sync()
	err := rootCmd.Execute()
	if cerr := teardown(); err == nil {
		err = cerr
	}
	return err
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if cmd.Annotations[skipBootstrap] == "true" || current != nil || bootstrap == nil {
		return nil
	}
	s, closer, err := bootstrap(configDir)
	if err != nil {
		return err
	}
	current = s
	closeFn = closer
	return nil
}

func teardown() error {
	if closeFn == nil {
		return nil
	}
	fn := closeFn
	closeFn = nil
	return fn()
}

// requireServices returns the services or an error naming what is missing.
func requireServices() (*Services, error) {
	if current == nil {
		return nil, errors.New("services not configured")
	}
	return current, nil
}
