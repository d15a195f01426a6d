package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"ajilpay/wallet"
)

var (
	// ErrInvalidAmount signals a non-positive amount.
	ErrInvalidAmount = errors.New("escrow: invalid amount")
	// ErrInsufficientBalance signals the amount exceeds the sender's
	// spendable balance.
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
	// ErrSelfTransfer signals sender and receiver are the same identity.
	ErrSelfTransfer = errors.New("escrow: cannot escrow to self")
	// ErrNotParticipant signals the confirming user is neither the
	// sender nor the receiver of the escrow.
	ErrNotParticipant = errors.New("escrow: user is not a party to this escrow")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletStore is the slice of the wallet repository the escrow engine
// needs: locked balance mutations and ledger appends inside its own
// transaction. *wallet.PGRepository satisfies it.
type WalletStore interface {
	EnsureWalletForUpdate(ctx context.Context, tx pgx.Tx, userID string) (wallet.Wallet, error)
	EnsurePairForUpdate(ctx context.Context, tx pgx.Tx, firstUserID, secondUserID string) (wallet.Wallet, wallet.Wallet, error)
	SetBalances(ctx context.Context, tx pgx.Tx, userID string, balance, escrowBalance int64) error
	InsertTransaction(ctx context.Context, tx pgx.Tx, params wallet.InsertTransactionParams) (wallet.Transaction, error)
	ReserveIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error
}

// Service implements the escrow hold-and-release state machine:
// pending with zero or one confirmation, completed once both parties
// have confirmed and the funds move. Each transition runs inside a
// single database transaction.
type Service struct {
	pool    TxBeginner
	repo    Repository
	wallets WalletStore
}

// NewService creates an escrow service.
func NewService(pool TxBeginner, repo Repository, wallets WalletStore) *Service {
	return &Service{pool: pool, repo: repo, wallets: wallets}
}

// CreateParams describes a new escrow transfer.
type CreateParams struct {
	SenderID       string
	ReceiverID     string
	Amount         int64
	Description    string
	IdempotencyKey string
}

// Create earmarks funds for the receiver: the amount moves from the
// sender's balance into their escrow balance and a pending escrow
// record is written together with a pending ledger entry.
func (s *Service) Create(ctx context.Context, params CreateParams) (Escrow, error) {
	if params.Amount <= 0 {
		return Escrow{}, ErrInvalidAmount
	}
	if params.SenderID == params.ReceiverID {
		return Escrow{}, ErrSelfTransfer
	}
	if params.SenderID == "" || params.ReceiverID == "" {
		return Escrow{}, fmt.Errorf("escrow: missing party id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IdempotencyKey != "" {
		if err := s.wallets.ReserveIdempotencyKey(ctx, tx, params.IdempotencyKey); err != nil {
			return Escrow{}, err
		}
	}

	w, err := s.wallets.EnsureWalletForUpdate(ctx, tx, params.SenderID)
	if err != nil {
		return Escrow{}, err
	}
	if params.Amount > w.Balance {
		return Escrow{}, ErrInsufficientBalance
	}

	if err := s.wallets.SetBalances(ctx, tx, params.SenderID,
		w.Balance-params.Amount, w.EscrowBalance+params.Amount); err != nil {
		return Escrow{}, err
	}

	e, err := s.repo.Insert(ctx, tx, InsertParams{
		SenderID:    params.SenderID,
		ReceiverID:  params.ReceiverID,
		Amount:      params.Amount,
		Description: params.Description,
	})
	if err != nil {
		return Escrow{}, err
	}

	if _, err := s.wallets.InsertTransaction(ctx, tx, wallet.InsertTransactionParams{
		SenderID:    &params.SenderID,
		ReceiverID:  &params.ReceiverID,
		Amount:      params.Amount,
		Type:        wallet.TypeEscrow,
		Status:      wallet.StatusPending,
		Description: params.Description,
	}); err != nil {
		return Escrow{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, fmt.Errorf("escrow: commit create: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"escrow_id":   e.ID,
		"sender_id":   params.SenderID,
		"receiver_id": params.ReceiverID,
		"amount":      params.Amount,
	}).Info("escrow created")

	return e, nil
}

// Confirm records the calling party's confirmation. Confirming twice is
// a no-op, as is confirming an escrow that already completed. Once both
// flags are set the funds settle in the same transaction: the held
// amount leaves the sender's escrow balance and lands on the receiver's
// balance exactly once, and a completed escrow_release ledger entry is
// appended. A single confirmation moves no funds.
func (s *Service) Confirm(ctx context.Context, escrowID, actorID string) (Escrow, error) {
	if escrowID == "" || actorID == "" {
		return Escrow{}, fmt.Errorf("escrow: missing id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	e, err := s.repo.GetForUpdate(ctx, tx, escrowID)
	if err != nil {
		return Escrow{}, err
	}

	switch actorID {
	case e.SenderID, e.ReceiverID:
	default:
		return Escrow{}, ErrNotParticipant
	}

	// Settlement already happened; the row lock guarantees nobody is
	// mid-settlement, so this is a pure no-op replay.
	if e.Status == StatusCompleted {
		return e, nil
	}

	senderConfirmed := e.SenderConfirmed || actorID == e.SenderID
	receiverConfirmed := e.ReceiverConfirmed || actorID == e.ReceiverID
	if senderConfirmed == e.SenderConfirmed && receiverConfirmed == e.ReceiverConfirmed {
		// Re-confirmation by the same party, nothing to write.
		return e, nil
	}

	if err := s.repo.SetConfirmations(ctx, tx, e.ID, senderConfirmed, receiverConfirmed); err != nil {
		return Escrow{}, err
	}
	e.SenderConfirmed = senderConfirmed
	e.ReceiverConfirmed = receiverConfirmed

	if senderConfirmed && receiverConfirmed {
		if err := s.settle(ctx, tx, &e); err != nil {
			return Escrow{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Escrow{}, fmt.Errorf("escrow: commit confirm: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"escrow_id": e.ID,
		"actor_id":  actorID,
		"status":    e.Status,
	}).Info("escrow confirmed")

	return e, nil
}

// settle moves the held funds inside the caller's transaction. The
// sender's escrow balance must still hold the full amount; anything
// less means the books are broken and the transaction must not commit.
func (s *Service) settle(ctx context.Context, tx pgx.Tx, e *Escrow) error {
	sender, receiver, err := s.wallets.EnsurePairForUpdate(ctx, tx, e.SenderID, e.ReceiverID)
	if err != nil {
		return err
	}
	if sender.EscrowBalance < e.Amount {
		return fmt.Errorf("escrow: held balance %d below escrow amount %d for escrow %s",
			sender.EscrowBalance, e.Amount, e.ID)
	}

	if err := s.wallets.SetBalances(ctx, tx, e.SenderID,
		sender.Balance, sender.EscrowBalance-e.Amount); err != nil {
		return err
	}
	if err := s.wallets.SetBalances(ctx, tx, e.ReceiverID,
		receiver.Balance+e.Amount, receiver.EscrowBalance); err != nil {
		return err
	}

	if err := s.repo.MarkCompleted(ctx, tx, e.ID); err != nil {
		return err
	}
	e.Status = StatusCompleted

	if _, err := s.wallets.InsertTransaction(ctx, tx, wallet.InsertTransactionParams{
		SenderID:    &e.SenderID,
		ReceiverID:  &e.ReceiverID,
		Amount:      e.Amount,
		Type:        wallet.TypeEscrowRelease,
		Status:      wallet.StatusCompleted,
		Description: "Escrow released",
	}); err != nil {
		return err
	}

	return nil
}

// ListByUser returns the escrows the user participates in, newest
// first. The limit is clamped to 50.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]Escrow, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return s.repo.ListByUser(ctx, userID, limit)
}
