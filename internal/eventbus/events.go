package eventbus

import "time"

// Kind discriminates event types on the bus.
type Kind string

const (
	KindBalanceChange Kind = "balance_change"
	KindTransfer      Kind = "transfer"
)

// Event is the common shape of everything dispatched on the bus. Events are
// snapshots: they are created fresh per operation and must not be retained
// by listeners expecting future mutation.
type Event interface {
	EventKind() Kind
	OccurredAt() time.Time
}

// BalanceChange is fired after a single account's balance has been
// committed in memory.
type BalanceChange struct {
	Identity   string
	OldBalance int64
	NewBalance int64
	Reason     string
	At         time.Time
}

func (e BalanceChange) EventKind() Kind       { return KindBalanceChange }
func (e BalanceChange) OccurredAt() time.Time { return e.At }

// Delta is the signed change applied to the account, in minor units.
func (e BalanceChange) Delta() int64 { return e.NewBalance - e.OldBalance }

// Transfer describes a player-to-player transfer. As a hook argument the
// transfer is pending (Fee already computed); as a fired event it has
// committed.
type Transfer struct {
	Source      string
	Destination string
	Amount      int64
	Fee         int64
	Reason      string
	At          time.Time
}

func (e Transfer) EventKind() Kind       { return KindTransfer }
func (e Transfer) OccurredAt() time.Time { return e.At }
