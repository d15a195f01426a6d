package wallet

import "time"

// Wallet is the per-user money record: spendable balance plus funds
// held in escrow, both in whole tögrög. A wallet is created lazily the
// first time an operation touches the user.
type Wallet struct {
	ID            string
	UserID        string
	Balance       int64
	EscrowBalance int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Type classifies a ledger entry.
type Type string

const (
	TypeDeposit       Type = "deposit"
	TypeWithdrawal    Type = "withdrawal"
	TypeTransfer      Type = "transfer"
	TypeEscrow        Type = "escrow"
	TypeEscrowRelease Type = "escrow_release"
)

// Status is the ledger entry state. Entries are immutable once written
// except for the pending -> completed/cancelled transition.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Transaction is one append-only ledger entry describing a money
// movement. SenderID is nil for external deposits, ReceiverID is nil
// for external withdrawals.
type Transaction struct {
	ID          string
	SenderID    *string
	ReceiverID  *string
	Amount      int64
	Type        Type
	Status      Status
	Description string
	CreatedAt   time.Time
}
