package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrDuplicateOperation signals a mutating call replayed an
	// already-reserved idempotency key.
	ErrDuplicateOperation = errors.New("wallet: duplicate operation")
	// ErrTransactionNotFound is returned when no ledger entry exists
	// for the provided identifier.
	ErrTransactionNotFound = errors.New("wallet: transaction not found")
	// ErrWalletNotFound is returned by non-creating reads.
	ErrWalletNotFound = errors.New("wallet: wallet not found")
)

// InsertTransactionParams contains write parameters for one ledger entry.
type InsertTransactionParams struct {
	SenderID    *string
	ReceiverID  *string
	Amount      int64
	Type        Type
	Status      Status
	Description string
}

// Repository handles data access for wallets and the ledger. The
// tx-scoped methods must run inside the caller's transaction so that a
// multi-wallet operation is atomic and row locks are held until commit.
type Repository interface {
	EnsureWalletForUpdate(ctx context.Context, tx pgx.Tx, userID string) (Wallet, error)
	EnsurePairForUpdate(ctx context.Context, tx pgx.Tx, firstUserID, secondUserID string) (Wallet, Wallet, error)
	SetBalances(ctx context.Context, tx pgx.Tx, userID string, balance, escrowBalance int64) error
	InsertTransaction(ctx context.Context, tx pgx.Tx, params InsertTransactionParams) (Transaction, error)
	ReserveIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error
	GetTransactionForUpdate(ctx context.Context, tx pgx.Tx, id string) (Transaction, error)
	SetTransactionStatus(ctx context.Context, tx pgx.Tx, id string, status Status) error
	GetWallet(ctx context.Context, userID string) (Wallet, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error)
	ListPendingWithdrawals(ctx context.Context) ([]Transaction, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed wallet repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const walletColumns = `id, user_id, balance, escrow_balance, created_at, updated_at`

// EnsureWalletForUpdate creates the wallet if absent and locks it for
// the remainder of the transaction.
func (r *PGRepository) EnsureWalletForUpdate(ctx context.Context, tx pgx.Tx, userID string) (Wallet, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return Wallet{}, fmt.Errorf("wallet: ensure wallet: %w", err)
	}

	row := tx.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	w, err := scanWallet(row)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet: lock wallet: %w", err)
	}
	return w, nil
}

// EnsurePairForUpdate locks two wallets, creating either if absent.
// Wallets are always locked in ascending user-id order so concurrent
// transfers touching the same pair cannot deadlock.
func (r *PGRepository) EnsurePairForUpdate(ctx context.Context, tx pgx.Tx, firstUserID, secondUserID string) (Wallet, Wallet, error) {
	a, b := firstUserID, secondUserID
	if b < a {
		a, b = b, a
	}

	wa, err := r.EnsureWalletForUpdate(ctx, tx, a)
	if err != nil {
		return Wallet{}, Wallet{}, err
	}
	wb, err := r.EnsureWalletForUpdate(ctx, tx, b)
	if err != nil {
		return Wallet{}, Wallet{}, err
	}

	if wa.UserID == firstUserID {
		return wa, wb, nil
	}
	return wb, wa, nil
}

// SetBalances writes both balance columns for a wallet the caller has
// already locked. The CHECK constraints are the last line of defence
// against a negative balance slipping through.
func (r *PGRepository) SetBalances(ctx context.Context, tx pgx.Tx, userID string, balance, escrowBalance int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE wallets
		SET balance = $2,
		    escrow_balance = $3,
		    updated_at = now()
		WHERE user_id = $1
	`, userID, balance, escrowBalance)
	if err != nil {
		return fmt.Errorf("wallet: set balances: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet: set balances: no wallet for user %s", userID)
	}
	return nil
}

// InsertTransaction appends one ledger entry inside the transaction.
func (r *PGRepository) InsertTransaction(ctx context.Context, tx pgx.Tx, params InsertTransactionParams) (Transaction, error) {
	const insertSQL = `
		INSERT INTO wallet_transactions (sender_id, receiver_id, amount, type, status, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, sender_id, receiver_id, amount, type, status, description, created_at
	`

	row := tx.QueryRow(ctx, insertSQL,
		params.SenderID,
		params.ReceiverID,
		params.Amount,
		params.Type,
		params.Status,
		params.Description,
	)
	t, err := scanTransaction(row)
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet: insert transaction: %w", err)
	}
	return t, nil
}

// ReserveIdempotencyKey attempts to reserve the key inside the active
// transaction, mapping the unique-violation to ErrDuplicateOperation.
func (r *PGRepository) ReserveIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	if key == "" {
		return fmt.Errorf("wallet: empty idempotency key")
	}

	if _, err := tx.Exec(ctx, `INSERT INTO idempotency (key) VALUES ($1)`, key); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateOperation
		}
		return fmt.Errorf("wallet: reserve idempotency key: %w", err)
	}

	return nil
}

// GetTransactionForUpdate fetches one ledger entry with a row lock.
func (r *PGRepository) GetTransactionForUpdate(ctx context.Context, tx pgx.Tx, id string) (Transaction, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, sender_id, receiver_id, amount, type, status, description, created_at
		FROM wallet_transactions
		WHERE id = $1
		FOR UPDATE
	`, id)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, fmt.Errorf("wallet: get transaction for update: %w", err)
	}
	return t, nil
}

// SetTransactionStatus applies the pending -> completed/cancelled
// transition on a ledger entry the caller has already locked.
func (r *PGRepository) SetTransactionStatus(ctx context.Context, tx pgx.Tx, id string, status Status) error {
	tag, err := tx.Exec(ctx,
		`UPDATE wallet_transactions SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("wallet: set transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// GetWallet reads a wallet snapshot without locking. Callers that
// intend to mutate must go through EnsureWalletForUpdate instead.
func (r *PGRepository) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, fmt.Errorf("wallet: get wallet: %w", err)
	}
	return w, nil
}

// ListTransactions returns the ledger entries where the user is sender
// or receiver, newest first.
func (r *PGRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sender_id, receiver_id, amount, type, status, description, created_at
		FROM wallet_transactions
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("wallet: list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("wallet: scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("wallet: iterate transactions: %w", err)
	}
	return out, nil
}

// ListPendingWithdrawals returns the back-office queue of withdrawal
// requests awaiting settlement, oldest first.
func (r *PGRepository) ListPendingWithdrawals(ctx context.Context) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sender_id, receiver_id, amount, type, status, description, created_at
		FROM wallet_transactions
		WHERE type = 'withdrawal' AND status = 'pending'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("wallet: list pending withdrawals: %w", err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("wallet: scan withdrawal: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("wallet: iterate withdrawals: %w", err)
	}
	return out, nil
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	return w, row.Scan(
		&w.ID,
		&w.UserID,
		&w.Balance,
		&w.EscrowBalance,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t    Transaction
		desc *string
	)
	err := row.Scan(
		&t.ID,
		&t.SenderID,
		&t.ReceiverID,
		&t.Amount,
		&t.Type,
		&t.Status,
		&desc,
		&t.CreatedAt,
	)
	if err != nil {
		return Transaction{}, err
	}
	if desc != nil {
		t.Description = *desc
	}
	return t, nil
}
