package domain

import (
	"context"
	"time"
)

// SettlementKind names the embedded option that produced an instruction.
type SettlementKind string

const (
	SettlementCall    SettlementKind = "call"
	SettlementPut     SettlementKind = "put"
	SettlementConvert SettlementKind = "convert"
)

// SettlementInstruction is the hand-off to an external settlement collaborator
// after an option zeroes a holding: cash repayment for call/put, equity
// issuance for convert. Execution is out of band; the ledger only records and
// forwards the instruction.
type SettlementInstruction struct {
	ID       string         `json:"id"`
	Kind     SettlementKind `json:"kind"`
	Holder   Account        `json:"holder"`
	Amount   uint64         `json:"amount"`
	IssuedAt time.Time      `json:"issued_at"`
}

// SettlementResult reports a completed option settlement to the caller.
type SettlementResult struct {
	Instruction SettlementInstruction `json:"instruction"`
	Seq         uint64                `json:"seq"`
	IssueVolume uint64                `json:"issue_volume"`
}

// Settler is an external settlement collaborator. A failed hand-off aborts the
// whole settlement operation; the ledger is left untouched.
type Settler interface {
	Settle(ctx context.Context, instr SettlementInstruction) error
}

// IssuerAuthorizer is the external identity collaborator consulted for
// issuer-only operations.
type IssuerAuthorizer interface {
	IsIssuer(ctx context.Context, caller Account) (bool, error)
}
