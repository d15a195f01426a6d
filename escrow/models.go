package escrow

import "time"

// Status is the escrow lifecycle state. There are only two: funds are
// held pending until both parties confirm, then the record completes at
// settlement. No cancellation path exists.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Escrow is one platform-held transfer awaiting dual confirmation. The
// amount is debited from the sender's spendable balance into their
// escrow balance at creation and credited to the receiver at settlement.
type Escrow struct {
	ID                string
	SenderID          string
	ReceiverID        string
	Amount            int64
	Status            Status
	SenderConfirmed   bool
	ReceiverConfirmed bool
	Description       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
