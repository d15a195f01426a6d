package infra

import (
	"context"
	"fmt"
	"os"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// StressDSNEnv points the stress run at an existing database instead of
// starting a container.
const StressDSNEnv = "AJILPAY_STRESS_PG_DSN"

// PGContainer wraps the dockerized PostgreSQL backing a stress run. The
// zero value stands in when an external database is reused, so Terminate
// stays safe to defer unconditionally.
type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres16 boots a postgres:16 container provisioned for the
// wallet schema and returns its DSN. overrideDSN (the -dsn flag) and
// AJILPAY_STRESS_PG_DSN both short-circuit the container.
func StartPostgres16(ctx context.Context, overrideDSN string) (*PGContainer, string, error) {
	if overrideDSN != "" {
		return &PGContainer{}, overrideDSN, nil
	}
	if dsn := os.Getenv(StressDSNEnv); dsn != "" {
		return &PGContainer{}, dsn, nil
	}

	pgC, err := postgres.Run(ctx,
		"postgres:16",
		postgres.WithDatabase("ajilpay_stress"),
		postgres.WithUsername("ajilpay"),
		postgres.WithPassword("ajilpay"),
	)
	if err != nil {
		return nil, "", fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", fmt.Errorf("resolve connection string: %w", err)
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
