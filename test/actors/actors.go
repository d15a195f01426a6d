// Package actors contains the concurrent workloads for the wallet
// stress test. Each actor loops until stopped, driving one slice of the
// money-movement surface through the real services. Domain errors such
// as insufficient balance are expected under contention and ignored;
// anything else is surfaced to the errgroup.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"ajilpay/escrow"
	"ajilpay/wallet"
)

// expected reports whether the error is a legitimate outcome under
// contention and chaos: a domain rejection, a cancelled context, or a
// connection the chaos actor tore down mid-flight. The transaction
// behind a torn connection rolls back; the oracles prove nothing
// half-applied survives.
func expected(err error) bool {
	if errors.Is(err, wallet.ErrInsufficientBalance) ||
		errors.Is(err, wallet.ErrDuplicateOperation) ||
		errors.Is(err, wallet.ErrNotPending) ||
		errors.Is(err, escrow.ErrInsufficientBalance) ||
		errors.Is(err, escrow.ErrNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "57P01", "40001", "40P01": // admin shutdown, serialization failure, deadlock
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "conn closed") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "unexpected EOF")
}

// Depositor keeps feeding a user's wallet with small deposits.
func Depositor(ctx context.Context, svc *wallet.Service, userID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := svc.Deposit(ctx, wallet.DepositParams{
			UserID:      userID,
			Amount:      int64(100 + rand.Intn(900)),
			Description: "Bank deposit - Khan Bank",
		})
		if err != nil && !expected(err) {
			return fmt.Errorf("depositor: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Transferrer shuffles funds between random pairs of users, including
// pairs in both directions to exercise the lock ordering.
func Transferrer(ctx context.Context, svc *wallet.Service, userIDs []string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		from := userIDs[rand.Intn(len(userIDs))]
		to := userIDs[rand.Intn(len(userIDs))]
		if from != to {
			_, err := svc.Transfer(ctx, wallet.TransferParams{
				SenderID:   from,
				ReceiverID: to,
				Amount:     int64(1 + rand.Intn(300)),
			})
			if err != nil && !expected(err) {
				return fmt.Errorf("transferrer: %w", err)
			}
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}

// EscrowWorkload creates escrows and then confirms them from both
// sides, sometimes redundantly, so replayed confirmations and already
// completed escrows are hit under load.
func EscrowWorkload(ctx context.Context, svc *escrow.Service, senderID, receiverID string, stop <-chan struct{}) error {
	open := make([]string, 0, 16)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		if len(open) < 4 || rand.Intn(3) == 0 {
			e, err := svc.Create(ctx, escrow.CreateParams{
				SenderID:    senderID,
				ReceiverID:  receiverID,
				Amount:      int64(50 + rand.Intn(200)),
				Description: "Job escrow",
			})
			if err == nil {
				open = append(open, e.ID)
			} else if !expected(err) {
				return fmt.Errorf("escrow create: %w", err)
			}
		}

		if len(open) > 0 {
			idx := rand.Intn(len(open))
			id := open[idx]
			actor := senderID
			if rand.Intn(2) == 0 {
				actor = receiverID
			}
			e, err := svc.Confirm(ctx, id, actor)
			if err != nil && !expected(err) {
				return fmt.Errorf("escrow confirm: %w", err)
			}
			if err == nil && e.Status == escrow.StatusCompleted {
				// Replay a completed escrow on purpose, then retire it.
				if _, err := svc.Confirm(ctx, id, actor); err != nil && !expected(err) {
					return fmt.Errorf("escrow replay: %w", err)
				}
				open = append(open[:idx], open[idx+1:]...)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Withdrawer files withdrawal requests against a user's balance.
func Withdrawer(ctx context.Context, svc *wallet.Service, userID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := svc.Withdraw(ctx, wallet.WithdrawParams{
			UserID:      userID,
			Amount:      int64(10 + rand.Intn(200)),
			Description: "Withdrawal to Golomt Bank",
		})
		if err != nil && !expected(err) {
			return fmt.Errorf("withdrawer: %w", err)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// Settler plays the back office, approving or rejecting pending
// withdrawals. Two settlers racing on the same entry must not double
// refund; the row lock plus the pending check make the loser a no-op.
func Settler(ctx context.Context, svc *wallet.Service, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		pending, err := svc.PendingWithdrawals(ctx)
		if err != nil {
			if !expected(err) {
				return fmt.Errorf("settler list: %w", err)
			}
			continue
		}
		for _, p := range pending {
			_, err := svc.SettleWithdrawal(ctx, wallet.SettleWithdrawalParams{
				TransactionID: p.ID,
				Approve:       rand.Intn(2) == 0,
			})
			if err != nil && !expected(err) {
				return fmt.Errorf("settler settle: %w", err)
			}
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// IdempotentDepositor replays the same deposit key forever; the first
// call may land, every other attempt must come back as a duplicate.
func IdempotentDepositor(ctx context.Context, svc *wallet.Service, userID, key string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := svc.Deposit(ctx, wallet.DepositParams{
			UserID:         userID,
			Amount:         5000,
			Description:    "Bank deposit - TDB",
			IdempotencyKey: key,
		})
		if err != nil && !expected(err) {
			return fmt.Errorf("idempotent depositor: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}
