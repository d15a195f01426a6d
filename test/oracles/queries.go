// Package oracles holds the SQL invariants the stress test checks
// while the actors run. Every query returns rows only when the books
// are broken; each statement reads one snapshot, so an in-flight
// transaction can never produce a false positive.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_no_negative_balances",
			SQL: `SELECT user_id, balance, escrow_balance FROM wallets
                  WHERE balance < 0 OR escrow_balance < 0`,
		},
		{
			Name: "O2_money_conservation",
			SQL: `SELECT held.total, flow.expected
                  FROM (SELECT COALESCE(SUM(balance + escrow_balance), 0) AS total FROM wallets) held,
                       (SELECT COALESCE(SUM(CASE
                            WHEN type = 'deposit' AND status = 'completed' THEN amount
                            WHEN type = 'withdrawal' AND status IN ('pending', 'completed') THEN -amount
                            ELSE 0 END), 0) AS expected
                        FROM wallet_transactions) flow
                  WHERE held.total <> flow.expected`,
		},
		{
			Name: "O3_escrow_balance_matches_pending_holds",
			SQL: `SELECT w.user_id, w.escrow_balance, COALESCE(p.held, 0) AS held
                  FROM wallets w
                  LEFT JOIN (SELECT sender_id, SUM(amount) AS held
                             FROM escrow_transactions
                             WHERE status = 'pending'
                             GROUP BY sender_id) p ON p.sender_id = w.user_id
                  WHERE w.escrow_balance <> COALESCE(p.held, 0)`,
		},
		{
			Name: "O4_completed_escrow_dual_confirmed",
			SQL: `SELECT id FROM escrow_transactions
                  WHERE status = 'completed'
                    AND NOT (sender_confirmed AND receiver_confirmed)`,
		},
		{
			Name: "O5_one_release_per_completed_escrow",
			SQL: `SELECT done.n AS completed_escrows, rel.n AS release_entries
                  FROM (SELECT COUNT(*) AS n FROM escrow_transactions WHERE status = 'completed') done,
                       (SELECT COUNT(*) AS n FROM wallet_transactions WHERE type = 'escrow_release') rel
                  WHERE done.n <> rel.n`,
		},
		{
			Name: "O6_idempotent_deposit_single_entry",
			SQL: `SELECT description, COUNT(*) FROM wallet_transactions
                  WHERE type = 'deposit' AND description = 'Bank deposit - TDB'
                  GROUP BY description HAVING COUNT(*) > 1`,
		},
		{
			Name: "O7_ledger_status_by_type",
			SQL: `SELECT id, type, status FROM wallet_transactions
                  WHERE (type IN ('deposit', 'transfer', 'escrow_release') AND status <> 'completed')
                     OR (type = 'escrow' AND status NOT IN ('pending', 'completed'))`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and
// sample row text), or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
