package domain

import (
	"math"
	"time"
)

// UnlimitedAllowance is the sentinel reported by allowance queries, and
// carried by Approved events, while the approve-all flag is set for a pair.
const UnlimitedAllowance uint64 = math.MaxUint64

// EventKind discriminates the three record types on the ledger event stream.
type EventKind string

const (
	EventTransferred        EventKind = "transferred"
	EventApproved           EventKind = "approved"
	EventAllowanceDecreased EventKind = "allowance_decreased"
)

// Event is a single append-only record on the ledger stream. Seq is the
// ledger-wide sequence position, assigned in commit order starting at 1.
// From/To are set for transfer records, Owner/Spender for allowance records.
// Data is opaque caller-supplied context carried through unmodified.
type Event struct {
	Seq     uint64    `json:"seq"`
	Kind    EventKind `json:"kind"`
	From    Account   `json:"from,omitempty"`
	To      Account   `json:"to,omitempty"`
	Owner   Account   `json:"owner,omitempty"`
	Spender Account   `json:"spender,omitempty"`
	Amount  uint64    `json:"amount"`
	Data    []byte    `json:"data,omitempty"`
	At      time.Time `json:"at"`
}
