package domain

import "time"

// PollState is the state of one account's poll cycle.
type PollState string

const (
	PollStateIdle        PollState = "IDLE"
	PollStateFetching    PollState = "FETCHING"
	PollStateNormalizing PollState = "NORMALIZING"
	PollStateDispatching PollState = "DISPATCHING"
	PollStateCommitting  PollState = "COMMITTING"
	PollStateFailed      PollState = "FAILED"
)

// FeedBatch is one response from a provider feed.
type FeedBatch struct {
	// Items are in provider order.
	Items []RawChangeItem

	// NewPosition is the position to commit once Items are dispatched.
	NewPosition string

	// HasMore means the feed must be called again with NewPosition
	// before the cycle may commit.
	HasMore bool

	// NeedsEnumeration asks the cycle to enumerate the whole tree
	// (stream feeds on their first poll).
	NeedsEnumeration bool
}

// ParentRef is one hop of a parent walk.
type ParentRef struct {
	// ID is the item that was resolved.
	ID string

	// Name is the item's own name.
	Name string

	// ParentID is the next hop, empty at the root.
	ParentID string

	// IsRoot marks the sync root itself, which contributes no path segment.
	IsRoot bool
}

// CycleContext is the immutable input of one poll cycle.
type CycleContext struct {
	// ID identifies the cycle in logs.
	ID string

	AccountID   string
	AccountType AccountType

	// Position is the committed position the cycle started from.
	Position string

	// Deadline bounds the whole cycle. Zero means none.
	Deadline time.Time
}

// Initial reports whether the cycle starts from the sentinel position.
func (c CycleContext) Initial() bool {
	return IsSentinel(c.Position)
}

// CycleReport summarises a finished poll cycle.
type CycleReport struct {
	CycleID     string
	AccountID   string
	AccountType AccountType

	// OldPosition is the position the cycle started from.
	OldPosition string

	// NewPosition is the committed position (equal to OldPosition when nothing committed).
	NewPosition string

	// State is IDLE on success and FAILED otherwise.
	State PollState

	// Initial is true for full-enumeration cycles.
	Initial bool

	// Committed is true when the position store was written.
	Committed bool

	// Cancelled is true when the context ended the cycle.
	Cancelled bool

	// Batches is the number of feed responses consumed.
	Batches int

	// Attempts is the number of fetch attempts including retries.
	Attempts int

	// Actions counts dispatched records by action.
	Actions map[Action]int

	// Dropped counts items the normaliser skipped.
	Dropped int

	// HandlerErrors counts records whose handler failed.
	HandlerErrors int

	StartedAt time.Time
	EndedAt   time.Time

	// Error holds the failure message when State is FAILED.
	Error string
}

// Dispatched returns the total number of records handed to the router.
func (r *CycleReport) Dispatched() int {
	n := 0
	for _, c := range r.Actions {
		n += c
	}
	return n
}

// Duration returns how long the cycle ran.
func (r *CycleReport) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// AccountStatus describes an account's poll state for status output.
type AccountStatus struct {
	Account    Account
	Running    bool
	State      PollState
	LastReport *CycleReport
}
