package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidAmount signals a non-positive amount.
	ErrInvalidAmount = errors.New("wallet: invalid amount")
	// ErrInsufficientBalance signals the amount exceeds the spendable balance.
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")
	// ErrSelfTransfer signals sender and receiver are the same identity.
	ErrSelfTransfer = errors.New("wallet: cannot transfer to self")
	// ErrNotPending signals a settlement attempt on a ledger entry that
	// is not a pending withdrawal.
	ErrNotPending = errors.New("wallet: transaction is not a pending withdrawal")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service implements the money-movement operations. Every mutating
// operation runs inside a single database transaction with the touched
// wallet rows locked, so a concurrent operation on the same wallet
// serialises behind it instead of losing an update.
type Service struct {
	pool TxBeginner
	repo Repository
}

// NewService creates a wallet service.
func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{pool: pool, repo: repo}
}

// DepositParams describes a simulated external funding of a wallet.
type DepositParams struct {
	UserID         string
	Amount         int64
	Description    string
	IdempotencyKey string
}

// WithdrawParams describes a withdrawal request. The ledger entry is
// written pending; settlement happens through SettleWithdrawal.
type WithdrawParams struct {
	UserID         string
	Amount         int64
	Description    string
	IdempotencyKey string
}

// TransferParams describes a direct wallet-to-wallet transfer.
type TransferParams struct {
	SenderID       string
	ReceiverID     string
	Amount         int64
	Description    string
	IdempotencyKey string
}

// SettleWithdrawalParams describes the back-office decision on a
// pending withdrawal.
type SettleWithdrawalParams struct {
	TransactionID string
	Approve       bool
}

// GetOrCreateWallet fetches the user's wallet, creating it with zero
// balances on first access.
func (s *Service) GetOrCreateWallet(ctx context.Context, userID string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, fmt.Errorf("wallet: missing user id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	w, err := s.repo.EnsureWalletForUpdate(ctx, tx, userID)
	if err != nil {
		return Wallet{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, fmt.Errorf("wallet: commit: %w", err)
	}
	return w, nil
}

// Deposit credits the balance immediately and appends a completed
// deposit entry. Funding is simulated; no external verification happens.
func (s *Service) Deposit(ctx context.Context, params DepositParams) (Transaction, error) {
	if params.Amount < 1 {
		return Transaction{}, ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IdempotencyKey != "" {
		if err := s.repo.ReserveIdempotencyKey(ctx, tx, params.IdempotencyKey); err != nil {
			return Transaction{}, err
		}
	}

	w, err := s.repo.EnsureWalletForUpdate(ctx, tx, params.UserID)
	if err != nil {
		return Transaction{}, err
	}
	if err := s.repo.SetBalances(ctx, tx, params.UserID, w.Balance+params.Amount, w.EscrowBalance); err != nil {
		return Transaction{}, err
	}

	entry, err := s.repo.InsertTransaction(ctx, tx, InsertTransactionParams{
		ReceiverID:  &params.UserID,
		Amount:      params.Amount,
		Type:        TypeDeposit,
		Status:      StatusCompleted,
		Description: params.Description,
	})
	if err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("wallet: commit deposit: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id": params.UserID,
		"amount":  params.Amount,
		"type":    TypeDeposit,
	}).Info("wallet deposit")

	return entry, nil
}

// Withdraw debits the balance immediately and appends a pending
// withdrawal entry awaiting back-office settlement.
func (s *Service) Withdraw(ctx context.Context, params WithdrawParams) (Transaction, error) {
	if params.Amount < 1 {
		return Transaction{}, ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IdempotencyKey != "" {
		if err := s.repo.ReserveIdempotencyKey(ctx, tx, params.IdempotencyKey); err != nil {
			return Transaction{}, err
		}
	}

	w, err := s.repo.EnsureWalletForUpdate(ctx, tx, params.UserID)
	if err != nil {
		return Transaction{}, err
	}
	if params.Amount > w.Balance {
		return Transaction{}, ErrInsufficientBalance
	}
	if err := s.repo.SetBalances(ctx, tx, params.UserID, w.Balance-params.Amount, w.EscrowBalance); err != nil {
		return Transaction{}, err
	}

	entry, err := s.repo.InsertTransaction(ctx, tx, InsertTransactionParams{
		SenderID:    &params.UserID,
		Amount:      params.Amount,
		Type:        TypeWithdrawal,
		Status:      StatusPending,
		Description: params.Description,
	})
	if err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("wallet: commit withdrawal: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id": params.UserID,
		"amount":  params.Amount,
		"type":    TypeWithdrawal,
	}).Info("wallet withdrawal requested")

	return entry, nil
}

// Transfer moves funds directly from the sender's balance to the
// receiver's balance, creating the receiver wallet if absent. Both
// wallets stay locked until the ledger entry commits with them.
func (s *Service) Transfer(ctx context.Context, params TransferParams) (Transaction, error) {
	if params.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if params.SenderID == params.ReceiverID {
		return Transaction{}, ErrSelfTransfer
	}
	if params.SenderID == "" || params.ReceiverID == "" {
		return Transaction{}, fmt.Errorf("wallet: missing party id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IdempotencyKey != "" {
		if err := s.repo.ReserveIdempotencyKey(ctx, tx, params.IdempotencyKey); err != nil {
			return Transaction{}, err
		}
	}

	sender, receiver, err := s.repo.EnsurePairForUpdate(ctx, tx, params.SenderID, params.ReceiverID)
	if err != nil {
		return Transaction{}, err
	}
	if params.Amount > sender.Balance {
		return Transaction{}, ErrInsufficientBalance
	}

	if err := s.repo.SetBalances(ctx, tx, params.SenderID, sender.Balance-params.Amount, sender.EscrowBalance); err != nil {
		return Transaction{}, err
	}
	if err := s.repo.SetBalances(ctx, tx, params.ReceiverID, receiver.Balance+params.Amount, receiver.EscrowBalance); err != nil {
		return Transaction{}, err
	}

	entry, err := s.repo.InsertTransaction(ctx, tx, InsertTransactionParams{
		SenderID:    &params.SenderID,
		ReceiverID:  &params.ReceiverID,
		Amount:      params.Amount,
		Type:        TypeTransfer,
		Status:      StatusCompleted,
		Description: params.Description,
	})
	if err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("wallet: commit transfer: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"sender_id":   params.SenderID,
		"receiver_id": params.ReceiverID,
		"amount":      params.Amount,
		"type":        TypeTransfer,
	}).Info("wallet transfer")

	return entry, nil
}

// History returns the user's ledger entries, newest first. The limit is
// clamped to 50, matching what the wallet screen shows.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return s.repo.ListTransactions(ctx, userID, limit)
}

// PendingWithdrawals returns the back-office settlement queue.
func (s *Service) PendingWithdrawals(ctx context.Context) ([]Transaction, error) {
	return s.repo.ListPendingWithdrawals(ctx)
}

// SettleWithdrawal applies the back-office decision on a pending
// withdrawal: approve completes it, reject cancels it and returns the
// funds to the requester's balance.
func (s *Service) SettleWithdrawal(ctx context.Context, params SettleWithdrawalParams) (Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := s.repo.GetTransactionForUpdate(ctx, tx, params.TransactionID)
	if err != nil {
		return Transaction{}, err
	}
	if entry.Type != TypeWithdrawal || entry.Status != StatusPending || entry.SenderID == nil {
		return Transaction{}, ErrNotPending
	}

	status := StatusCompleted
	if !params.Approve {
		status = StatusCancelled
		w, err := s.repo.EnsureWalletForUpdate(ctx, tx, *entry.SenderID)
		if err != nil {
			return Transaction{}, err
		}
		if err := s.repo.SetBalances(ctx, tx, *entry.SenderID, w.Balance+entry.Amount, w.EscrowBalance); err != nil {
			return Transaction{}, err
		}
	}

	if err := s.repo.SetTransactionStatus(ctx, tx, entry.ID, status); err != nil {
		return Transaction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Transaction{}, fmt.Errorf("wallet: commit settlement: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"transaction_id": entry.ID,
		"status":         status,
	}).Info("withdrawal settled")

	entry.Status = status
	return entry, nil
}
