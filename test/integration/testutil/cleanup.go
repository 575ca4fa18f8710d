//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates every table and resets the reserve fund row.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		// Prizes
		"bet_slip_matches",
		"bet_slips",
		"matches",
		"rounds",

		// Payments
		"payment_events",
		"payment_orders",
		"withdrawals",
		"payment_gateways",

		// Core
		"event_outbox",
		"transactions",
		"wallets",
		"users",

		// Security
		"login_attempts",
	}

	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE")
	}
	_, _ = env.Pool.Exec(ctx, "UPDATE reserve_fund SET balance = 0, updated_at = now() WHERE id = 1")
}
