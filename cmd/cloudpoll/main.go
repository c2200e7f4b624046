// Command cloudpoll mirrors Box, Dropbox and Google Drive accounts into a
// local sync folder.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/custodia-labs/cloudpoll/internal/adapters/driven/config/file"
	"github.com/custodia-labs/cloudpoll/internal/adapters/driven/metrics"
	filestore "github.com/custodia-labs/cloudpoll/internal/adapters/driven/storage/file"
	"github.com/custodia-labs/cloudpoll/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/cloudpoll/internal/adapters/driving/cli"
	"github.com/custodia-labs/cloudpoll/internal/connectors"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/ports/driven"
	"github.com/custodia-labs/cloudpoll/internal/core/services"
	"github.com/custodia-labs/cloudpoll/internal/localsync"
	"github.com/custodia-labs/cloudpoll/internal/logger"
	"github.com/custodia-labs/cloudpoll/internal/telemetry"
)

// positionsDir holds per-account position files when position_store is file.
const positionsDir = "positions"

// shutdownTimeout bounds the final span flush.
const shutdownTimeout = 5 * time.Second

func main() {
	cli.SetBootstrap(bootstrap)
	if err := cli.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

// bootstrap wires the stores, connectors and services for a config directory.
func bootstrap(configDir string) (*cli.Services, func() error, error) {
	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore)
	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}

	shutdownTracing, err := telemetry.Setup(context.Background(), settings.Tracing)
	if err != nil {
		logger.Warn("tracing disabled: %v", err)
	}

	dataDir := settings.DataDir
	if dataDir == "" {
		dataDir = filepath.Dir(configStore.Path())
	}
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	logger.Debugw("database opened", "path", store.Path())

	var positions driven.PositionStore = store.PositionStore()
	if settings.PositionBackend == domain.PositionBackendFile {
		fs, err := filestore.NewPositionStore(filepath.Join(dataDir, positionsDir))
		if err != nil {
			store.Close()
			_ = shutdownTracing(context.Background())
			return nil, nil, fmt.Errorf("open position files: %w", err)
		}
		positions = fs
	}

	accounts := store.AccountStore()
	index := store.IndexStore()

	factory := connectors.NewFactory(*settings)
	pool := services.NewConnectorPool(factory, accounts)

	accountService := services.NewAccountService(accounts, positions)
	accountService.SetEvictor(pool)

	layout := localsync.NewLayout(settings.SyncFolder)
	handlers := localsync.NewHandlers(layout, pool, index)
	router := services.NewActionRouter(handlers.RouterHandlers())

	observer := metrics.NewObserver(prometheus.DefaultRegisterer)
	poller := services.NewPollOrchestrator(
		accounts,
		positions,
		pool,
		services.NewChangeNormalizer(),
		router,
		settings.Poll,
		services.WithObserver(observer),
		services.WithHistory(store.SchedulerStore()),
	)
	scheduler := services.NewScheduler(settingsService.GetSchedulerConfig(), store.SchedulerStore(), poller)

	svc := &cli.Services{
		Accounts:  accountService,
		Poller:    poller,
		Settings:  settingsService,
		Scheduler: scheduler,
		Metrics:   metrics.Handler(),
	}
	if settings.SyncFolder != "" {
		svc.Listener = localsync.NewFolderListener(layout, index)
	}

	closeAll := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(pool.Close(), store.Close(), shutdownTracing(ctx))
	}
	return svc, closeAll, nil
}
