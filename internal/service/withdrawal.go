package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/ledger"
	"github.com/palpitai/platform/internal/policy"
	"github.com/palpitai/platform/internal/provider"
	"github.com/palpitai/platform/internal/repository"
)

// StaleProcessingAfter is how long a withdrawal may sit in PROCESSING before
// Recover accepts it.
const StaleProcessingAfter = 5 * time.Minute

// WithdrawalService handles withdrawal requests and the admin payout workflow.
// Funds leave the wallet when the request is made; a rejection refunds them.
type WithdrawalService struct {
	pool        *pgxpool.Pool
	withdrawals repository.WithdrawalRepository
	wallets     repository.WalletRepository
	users       repository.UserRepository
	outbox      repository.OutboxRepository
	gateways    *GatewayService
	engine      *ledger.Engine
	limits      policy.MoneyLimits
	logger      *slog.Logger
	now         func() time.Time
}

// NewWithdrawalService creates a WithdrawalService.
func NewWithdrawalService(
	pool *pgxpool.Pool,
	withdrawals repository.WithdrawalRepository,
	wallets repository.WalletRepository,
	users repository.UserRepository,
	outbox repository.OutboxRepository,
	gateways *GatewayService,
	engine *ledger.Engine,
	limits policy.MoneyLimits,
	logger *slog.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		pool:        pool,
		withdrawals: withdrawals,
		wallets:     wallets,
		users:       users,
		outbox:      outbox,
		gateways:    gateways,
		engine:      engine,
		limits:      limits,
		logger:      logger,
		now:         time.Now,
	}
}

// Withdraw debits amount from the user's wallet and queues a PENDING withdrawal
// for admin review.
func (s *WithdrawalService) Withdraw(ctx context.Context, userID uuid.UUID, amount int64, pixKey string) (*domain.WithdrawResult, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if err := policy.EvaluateWithdrawal(s.limits, amount).Err(); err != nil {
		return nil, err
	}
	if err := domain.ValidatePixKey(pixKey); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	wallet, err := s.wallets.FindByUserID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find wallet", err)
	}
	if wallet == nil {
		return nil, domain.ErrNotFound("wallet for user", userID.String())
	}

	w := &domain.Withdrawal{
		ID:           uuid.New(),
		UserID:       userID,
		WalletID:     wallet.ID,
		Amount:       amount,
		PixKey:       strings.TrimSpace(pixKey),
		Status:       domain.WithdrawalPending,
		PayoutStatus: domain.WithdrawalPayoutNone,
	}
	var balance int64

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		res, err := s.engine.ExecuteDebit(ctx, tx, domain.DebitParams{
			WalletID:    wallet.ID,
			Type:        domain.TxWithdraw,
			Amount:      amount,
			Description: "Saque via Pix",
			ExternalID:  "withdrawal:" + w.ID.String(),
		})
		if err != nil {
			return internalErr("debit withdrawal", err)
		}
		w.TransactionID = res.Transaction.ID
		balance = res.Wallet.Balance

		if err := s.withdrawals.Create(ctx, tx, w); err != nil {
			return domain.ErrInternal("create withdrawal", err)
		}
		if err := s.outbox.Insert(ctx, tx, domain.NewWithdrawalEvent(w, domain.EventWithdrawalRequested)); err != nil {
			return domain.ErrInternal("insert outbox event", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal requested", "withdrawal_id", w.ID, "user_id", userID, "amount", amount)
	return &domain.WithdrawResult{
		TransactionID: w.TransactionID,
		WithdrawalID:  w.ID,
		Status:        w.Status,
		Balance:       balance,
	}, nil
}

// Approve reviews a PENDING withdrawal. When the active gateway pays out
// automatically the Pix transfer is sent; a gateway failure releases the
// withdrawal back to PENDING. Otherwise it is approved for a manual transfer.
func (s *WithdrawalService) Approve(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != domain.WithdrawalPending {
		return nil, domain.ErrInvalidState(fmt.Sprintf("withdrawal is %s", w.Status))
	}

	ok, err := s.withdrawals.Claim(ctx, s.pool, id, domain.WithdrawalPending, domain.WithdrawalProcessing)
	if err != nil {
		return nil, domain.ErrInternal("claim withdrawal", err)
	}
	if !ok {
		return nil, domain.ErrInvalidState("withdrawal is already being reviewed")
	}

	gw, prov, err := s.gateways.Active(ctx)
	if err != nil && !domain.HasCode(err, domain.CodeNoActiveGateway) {
		s.release(ctx, id)
		return nil, err
	}

	var (
		gatewayID *uuid.UUID
		payoutID  *string
		payout    = domain.WithdrawalPayoutNone
	)
	if gw != nil && gw.AutomaticWithdrawal {
		p, err := s.sendPayout(ctx, w, prov)
		if err != nil {
			s.release(ctx, id)
			s.logger.Error("withdrawal payout failed", "withdrawal_id", id, "gateway_id", gw.ID, "error", err)
			return nil, err
		}
		gatewayID, payoutID, payout = &gw.ID, &p.ID, domain.FromPayoutStatus(p.Status)

		// The transfer is out: keep its id on the PROCESSING row so Recover can finish it.
		if err := s.withdrawals.UpdatePayout(ctx, s.pool, id, gatewayID, payoutID, payout); err != nil {
			s.logger.Error("record payout failed", "withdrawal_id", id, "payout_id", p.ID, "error", err)
		}
	}

	if err := s.completeApproval(ctx, w, gatewayID, payoutID, payout); err != nil {
		s.logger.Error("complete approval failed", "withdrawal_id", id, "error", err)
		return nil, err
	}

	s.logger.Info("withdrawal approved", "withdrawal_id", id, "payout_status", payout)
	return s.find(ctx, id)
}

// Recover finishes a withdrawal left in PROCESSING for longer than
// StaleProcessingAfter. A recorded payout completes the approval; without one
// the withdrawal goes back to PENDING for review.
func (s *WithdrawalService) Recover(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != domain.WithdrawalProcessing {
		return nil, domain.ErrInvalidState(fmt.Sprintf("withdrawal is %s", w.Status))
	}
	if s.now().Sub(w.UpdatedAt) < StaleProcessingAfter {
		return nil, domain.ErrInvalidState("withdrawal review is still in progress")
	}

	if w.PayoutID == nil {
		ok, err := s.withdrawals.Claim(ctx, s.pool, id, domain.WithdrawalProcessing, domain.WithdrawalPending)
		if err != nil {
			return nil, domain.ErrInternal("release withdrawal", err)
		}
		if !ok {
			return nil, domain.ErrInvalidState("withdrawal left PROCESSING")
		}
		s.logger.Warn("stale withdrawal released without payout", "withdrawal_id", id)
		return s.find(ctx, id)
	}

	if err := s.completeApproval(ctx, w, w.GatewayID, w.PayoutID, w.PayoutStatus); err != nil {
		return nil, err
	}
	s.logger.Info("stale withdrawal approved from recorded payout", "withdrawal_id", id, "payout_id", *w.PayoutID)
	return s.find(ctx, id)
}

func (s *WithdrawalService) completeApproval(ctx context.Context, w *domain.Withdrawal, gatewayID *uuid.UUID, payoutID *string, payout domain.WithdrawalPayoutStatus) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		ok, err := s.withdrawals.CompleteApproval(ctx, tx, w.ID, gatewayID, payoutID, payout)
		if err != nil {
			return domain.ErrInternal("complete approval", err)
		}
		if !ok {
			return domain.ErrInvalidState("withdrawal left PROCESSING during approval")
		}
		w.Status, w.PayoutStatus = domain.WithdrawalApproved, payout
		return s.outbox.Insert(ctx, tx, domain.NewWithdrawalEvent(w, domain.EventWithdrawalApproved))
	})
	if err != nil {
		return internalErr("approve withdrawal", err)
	}
	return nil
}

// Reject refunds a PENDING withdrawal with a REFUND credit and marks it REJECTED.
func (s *WithdrawalService) Reject(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		w, err := s.withdrawals.FindByID(ctx, tx, id)
		if err != nil {
			return domain.ErrInternal("find withdrawal", err)
		}
		if w == nil {
			return domain.ErrNotFound("withdrawal", id.String())
		}
		if w.Status != domain.WithdrawalPending {
			return domain.ErrInvalidState(fmt.Sprintf("withdrawal is %s", w.Status))
		}

		refund, err := s.engine.ExecuteCredit(ctx, tx, domain.CreditParams{
			WalletID:    w.WalletID,
			Type:        domain.TxRefund,
			Amount:      w.Amount,
			Description: "Estorno de saque recusado",
			ExternalID:  "withdrawal-refund:" + w.ID.String(),
		})
		if err != nil {
			return internalErr("refund withdrawal", err)
		}

		ok, err := s.withdrawals.MarkRejected(ctx, tx, id, refund.Transaction.ID)
		if err != nil {
			return domain.ErrInternal("reject withdrawal", err)
		}
		if !ok {
			return domain.ErrInvalidState("withdrawal left PENDING during rejection")
		}

		w.Status = domain.WithdrawalRejected
		return s.outbox.Insert(ctx, tx, domain.NewWithdrawalEvent(w, domain.EventWithdrawalRejected))
	})
	if err != nil {
		return nil, internalErr("reject withdrawal", err)
	}

	s.logger.Info("withdrawal rejected", "withdrawal_id", id)
	return s.find(ctx, id)
}

// RetryPayout re-sends the Pix transfer of an APPROVED withdrawal whose payout
// never happened or failed.
func (s *WithdrawalService) RetryPayout(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status != domain.WithdrawalApproved ||
		(w.PayoutStatus != domain.WithdrawalPayoutNone && w.PayoutStatus != domain.WithdrawalPayoutFailed) {
		return nil, domain.ErrInvalidState(fmt.Sprintf("withdrawal is %s with payout %s", w.Status, w.PayoutStatus))
	}

	gw, prov, err := s.gateways.Active(ctx)
	if err != nil {
		return nil, err
	}

	ok, err := s.withdrawals.ClaimPayout(ctx, s.pool, id)
	if err != nil {
		return nil, domain.ErrInternal("claim payout", err)
	}
	if !ok {
		return nil, domain.ErrInvalidState("payout is already in progress")
	}

	p, err := s.sendPayout(ctx, w, prov)
	if err != nil {
		if uerr := s.withdrawals.UpdatePayout(ctx, s.pool, id, nil, nil, domain.WithdrawalPayoutFailed); uerr != nil {
			s.logger.Error("mark payout failed", "withdrawal_id", id, "error", uerr)
		}
		return nil, err
	}
	if err := s.withdrawals.UpdatePayout(ctx, s.pool, id, &gw.ID, &p.ID, domain.FromPayoutStatus(p.Status)); err != nil {
		return nil, domain.ErrInternal("update payout", err)
	}
	return s.find(ctx, id)
}

// RefreshPayoutStatus asks the gateway that sent the payout for its current state.
func (s *WithdrawalService) RefreshPayoutStatus(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.PayoutID == nil || w.GatewayID == nil {
		return nil, domain.ErrInvalidState("withdrawal has no gateway payout")
	}

	prov, err := s.gateways.ForGateway(ctx, *w.GatewayID)
	if err != nil {
		return nil, err
	}
	status, err := prov.GetPayoutStatus(ctx, *w.PayoutID)
	if err != nil {
		return nil, err
	}

	if err := s.withdrawals.UpdatePayout(ctx, s.pool, id, w.GatewayID, w.PayoutID, domain.FromPayoutStatus(status)); err != nil {
		return nil, domain.ErrInternal("update payout", err)
	}
	return s.find(ctx, id)
}

// List returns withdrawals, optionally filtered by status.
func (s *WithdrawalService) List(ctx context.Context, status *domain.WithdrawalStatus, page domain.Page) ([]domain.Withdrawal, error) {
	list, err := s.withdrawals.List(ctx, s.pool, status, page)
	if err != nil {
		return nil, domain.ErrInternal("list withdrawals", err)
	}
	return list, nil
}

func (s *WithdrawalService) find(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	w, err := s.withdrawals.FindByID(ctx, s.pool, id)
	if err != nil {
		return nil, domain.ErrInternal("find withdrawal", err)
	}
	if w == nil {
		return nil, domain.ErrNotFound("withdrawal", id.String())
	}
	return w, nil
}

func (s *WithdrawalService) sendPayout(ctx context.Context, w *domain.Withdrawal, prov provider.Provider) (*domain.Payout, error) {
	var email string
	if u, err := s.users.FindByID(ctx, s.pool, w.UserID); err == nil && u != nil {
		email = u.Email
	}
	return prov.CreatePayout(ctx, provider.PayoutRequest{
		Amount:         w.Amount,
		PixKey:         w.PixKey,
		Description:    "Saque ID: " + w.ID.String(),
		RecipientEmail: email,
		IdempotencyKey: uuid.New().String(),
	})
}

// release returns a PROCESSING withdrawal to PENDING after a failed payout.
func (s *WithdrawalService) release(ctx context.Context, id uuid.UUID) {
	if _, err := s.withdrawals.Claim(ctx, s.pool, id, domain.WithdrawalProcessing, domain.WithdrawalPending); err != nil {
		s.logger.Error("release withdrawal failed", "withdrawal_id", id, "error", err)
	}
}
