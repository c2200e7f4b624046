package cli

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/custodia-labs/cloudpoll/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/cloudpoll/internal/core/domain"
	"github.com/custodia-labs/cloudpoll/internal/core/services"
)

// mockPoller implements driving.PollOrchestrator for testing.
type mockPoller struct {
	report  *domain.CycleReport
	reports []domain.CycleReport
	status  map[string]*domain.AccountStatus
	history map[string][]domain.CycleReport
	err     error
	polled  []string
}

func (m *mockPoller) Poll(_ context.Context, accountID string) (*domain.CycleReport, error) {
	m.polled = append(m.polled, accountID)
	return m.report, m.err
}

func (m *mockPoller) PollAll(_ context.Context) ([]domain.CycleReport, error) {
	m.polled = append(m.polled, "*")
	return m.reports, m.err
}

func (m *mockPoller) Status(_ context.Context, accountID string) (*domain.AccountStatus, error) {
	st, ok := m.status[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return st, nil
}

func (m *mockPoller) History(_ context.Context, accountID string, limit int) ([]domain.CycleReport, error) {
	reports := m.history[accountID]
	if len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

// mockScheduler implements driving.Scheduler for testing.
type mockScheduler struct {
	mu      sync.Mutex
	started bool
	stopped bool
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

// mockRunner implements Runner for testing.
type mockRunner struct {
	ran chan struct{}
}

func (m *mockRunner) Run(ctx context.Context) error {
	close(m.ran)
	<-ctx.Done()
	return nil
}

type testEnv struct {
	accounts  *services.AccountService
	positions *memory.PositionStore
	poller    *mockPoller
	settings  *services.SettingsService
	scheduler *mockScheduler
}

// setupCLITest injects services backed by memory stores. The previous
// services are restored when the test ends.
func setupCLITest(t *testing.T) *testEnv {
	t.Helper()
	positions := memory.NewPositionStore()
	env := &testEnv{
		accounts:  services.NewAccountService(memory.NewAccountStore(), positions),
		positions: positions,
		poller:    &mockPoller{status: map[string]*domain.AccountStatus{}},
		settings:  services.NewSettingsService(memory.NewConfigStore()),
		scheduler: &mockScheduler{},
	}

	old := current
	SetServices(&Services{
		Accounts:  env.accounts,
		Poller:    env.poller,
		Settings:  env.settings,
		Scheduler: env.scheduler,
	})
	oldReader := passwordReader
	oldAuthorizer := authorizer
	t.Cleanup(func() {
		current = old
		passwordReader = oldReader
		authorizer = oldAuthorizer
	})
	return env
}

// executeCommand runs the root command with args and returns its output.
func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	addName, addToken, addRefreshToken, addClientID, addClientSecret, addPollFolder = "", "", "", "", "", ""
	addExtra = nil
	resetAll = false
	authorizePort = 0
	statusHistory = 0

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}

type nopHandler struct{}

func (nopHandler) ServeHTTP(http.ResponseWriter, *http.Request) {}
