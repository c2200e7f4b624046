package driven

import (
	"time"

	"github.com/custodia-labs/cloudpoll/internal/core/domain"
)

// PollObserver receives poll events for metrics.
// Implementations must be safe for concurrent use.
type PollObserver interface {
	// FetchAttempt is called after every feed call.
	FetchAttempt(accountType domain.AccountType, err error)

	// Dispatched is called after every handler call.
	Dispatched(accountType domain.AccountType, action domain.Action, err error)

	// Dropped is called when the normaliser skips an item.
	Dropped(accountType domain.AccountType, reason string)

	// CycleFinished is called once per cycle.
	CycleFinished(report domain.CycleReport, elapsed time.Duration)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) FetchAttempt(domain.AccountType, error)              {}
func (NopObserver) Dispatched(domain.AccountType, domain.Action, error) {}
func (NopObserver) Dropped(domain.AccountType, string)                  {}
func (NopObserver) CycleFinished(domain.CycleReport, time.Duration)     {}
