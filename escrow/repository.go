package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no escrow exists for the identifier.
var ErrNotFound = errors.New("escrow: not found")

// InsertParams contains write parameters for a new escrow record.
type InsertParams struct {
	SenderID    string
	ReceiverID  string
	Amount      int64
	Description string
}

// Repository handles data access for escrow records. Tx-scoped methods
// run inside the caller's transaction so the escrow row lock is held
// together with the wallet row locks.
type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, params InsertParams) (Escrow, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Escrow, error)
	SetConfirmations(ctx context.Context, tx pgx.Tx, id string, senderConfirmed, receiverConfirmed bool) error
	MarkCompleted(ctx context.Context, tx pgx.Tx, id string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Escrow, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed escrow repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const escrowColumns = `id, sender_id, receiver_id, amount, status, sender_confirmed, receiver_confirmed, description, created_at, updated_at`

// Insert creates a pending, unconfirmed escrow record.
func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, params InsertParams) (Escrow, error) {
	const insertSQL = `
		INSERT INTO escrow_transactions (sender_id, receiver_id, amount, description)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + escrowColumns

	row := tx.QueryRow(ctx, insertSQL,
		params.SenderID, params.ReceiverID, params.Amount, params.Description)
	e, err := scanEscrow(row)
	if err != nil {
		return Escrow{}, fmt.Errorf("escrow: insert: %w", err)
	}
	return e, nil
}

// GetForUpdate fetches one escrow record with a row lock.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Escrow, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+escrowColumns+` FROM escrow_transactions WHERE id = $1 FOR UPDATE`, id)
	e, err := scanEscrow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Escrow{}, ErrNotFound
		}
		return Escrow{}, fmt.Errorf("escrow: get for update: %w", err)
	}
	return e, nil
}

// SetConfirmations writes both confirmation flags on a locked row.
func (r *PGRepository) SetConfirmations(ctx context.Context, tx pgx.Tx, id string, senderConfirmed, receiverConfirmed bool) error {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_transactions
		SET sender_confirmed = $2,
		    receiver_confirmed = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, senderConfirmed, receiverConfirmed)
	if err != nil {
		return fmt.Errorf("escrow: set confirmations: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCompleted transitions a locked escrow row to completed.
func (r *PGRepository) MarkCompleted(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE escrow_transactions
		SET status = 'completed',
		    updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("escrow: mark completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("escrow: mark completed: escrow %s not pending", id)
	}
	return nil
}

// ListByUser returns escrows where the user is sender or receiver,
// newest first.
func (r *PGRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Escrow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+`
		FROM escrow_transactions
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("escrow: list: %w", err)
	}
	defer rows.Close()

	out := make([]Escrow, 0, limit)
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("escrow: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate: %w", err)
	}
	return out, nil
}

func scanEscrow(row pgx.Row) (Escrow, error) {
	var (
		e    Escrow
		desc *string
	)
	err := row.Scan(
		&e.ID,
		&e.SenderID,
		&e.ReceiverID,
		&e.Amount,
		&e.Status,
		&e.SenderConfirmed,
		&e.ReceiverConfirmed,
		&desc,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return Escrow{}, err
	}
	if desc != nil {
		e.Description = *desc
	}
	return e, nil
}
