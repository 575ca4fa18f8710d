package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/repository"
)

// AuditReport holds the outcome of a wallet audit.
type AuditReport struct {
	WalletID         uuid.UUID        `json:"wallet_id"`
	Balance          int64            `json:"balance"`
	Credits          int64            `json:"credits"`
	Debits           int64            `json:"debits"`
	TransactionCount int              `json:"transaction_count"`
	Invariants       []InvariantCheck `json:"invariants"`
	AllPassed        bool             `json:"all_passed"`
}

// InvariantCheck records a single invariant validation.
type InvariantCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Auditor validates a wallet against its transaction log.
//
// Invariants:
//  1. Balance invariant: balance == Σ SUCCESS credits − Σ SUCCESS debits
//  2. Balance non-negativity
//  3. Ledger parity: newest SUCCESS snapshot matches the wallet row
type Auditor struct {
	wallets      repository.WalletRepository
	transactions repository.TransactionRepository
}

// NewAuditor creates a wallet auditor.
func NewAuditor(wallets repository.WalletRepository, transactions repository.TransactionRepository) *Auditor {
	return &Auditor{wallets: wallets, transactions: transactions}
}

// AuditWallet reads the wallet, its SUCCESS sums and its last snapshot from db
// and evaluates every invariant. Pass a repeatable-read transaction for a
// consistent view under concurrent writes.
func (a *Auditor) AuditWallet(ctx context.Context, db repository.DBTX, walletID uuid.UUID) (*AuditReport, error) {
	wallet, err := a.wallets.FindByID(ctx, db, walletID)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	if wallet == nil {
		return nil, domain.ErrNotFound("wallet", walletID.String())
	}

	sums, err := a.transactions.SumSuccess(ctx, db, walletID)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	snapshot, err := a.transactions.LastBalanceSnapshot(ctx, db, walletID)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}

	return Evaluate(wallet, sums, snapshot), nil
}

// Evaluate checks the invariants for already-loaded state.
func Evaluate(wallet *domain.Wallet, sums domain.TransactionSums, lastSnapshot *int64) *AuditReport {
	checks := make([]InvariantCheck, 0, 3)

	expected := sums.Credits - sums.Debits
	checks = append(checks, InvariantCheck{
		Name:   "balance_invariant",
		Passed: wallet.Balance == expected,
		Detail: fmt.Sprintf("balance=%d credits=%d debits=%d expected=%d", wallet.Balance, sums.Credits, sums.Debits, expected),
	})

	checks = append(checks, InvariantCheck{
		Name:   "balance_non_negative",
		Passed: wallet.Balance >= 0,
		Detail: fmt.Sprintf("balance=%d", wallet.Balance),
	})

	if lastSnapshot != nil {
		checks = append(checks, InvariantCheck{
			Name:   "ledger_parity",
			Passed: *lastSnapshot == wallet.Balance,
			Detail: fmt.Sprintf("wallet=%d lastTx=%d", wallet.Balance, *lastSnapshot),
		})
	} else {
		checks = append(checks, InvariantCheck{
			Name:   "ledger_parity",
			Passed: wallet.Balance == 0,
			Detail: "no settled transactions (empty ledger)",
		})
	}

	allPassed := true
	for _, c := range checks {
		if !c.Passed {
			allPassed = false
		}
	}

	return &AuditReport{
		WalletID:         wallet.ID,
		Balance:          wallet.Balance,
		Credits:          sums.Credits,
		Debits:           sums.Debits,
		TransactionCount: sums.Count,
		Invariants:       checks,
		AllPassed:        allPassed,
	}
}
