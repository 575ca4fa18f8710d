package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/guard"
	"github.com/palpitai/platform/internal/infra"
	"github.com/palpitai/platform/internal/ledger"
	"github.com/palpitai/platform/internal/policy"
	"github.com/palpitai/platform/internal/provider"
	"github.com/palpitai/platform/internal/repository"
)

// Notifier pushes a realtime event to a connected user.
type Notifier interface {
	NotifyUser(userID string, event string, data interface{})
}

// EventPaymentStatus is the websocket event sent after an order transition.
const EventPaymentStatus = "payment.status"

// Webhook outcomes, also used as the metrics label.
const (
	WebhookInvalid      = "invalid"
	WebhookUnknownOrder = "unknown_order"
	WebhookDuplicate    = "duplicate"
	WebhookProcessed    = "processed"
)

// PaymentDeps wires a PaymentService.
type PaymentDeps struct {
	Pool           *pgxpool.Pool
	Orders         repository.PaymentOrderRepository
	Users          repository.UserRepository
	Wallets        repository.WalletRepository
	Transactions   repository.TransactionRepository
	Outbox         repository.OutboxRepository
	Gateways       *GatewayService
	Engine         *ledger.Engine
	Limits         policy.MoneyLimits
	DepositLimiter *guard.RateLimiter
	Throttle       *guard.PollThrottle
	Notifier       Notifier
	Metrics        *infra.Metrics
	Logger         *slog.Logger
}

// PaymentService creates Pix deposits and reconciles them from webhook and poll.
// Both observers drive the same transition function.
type PaymentService struct {
	pool           *pgxpool.Pool
	orders         repository.PaymentOrderRepository
	users          repository.UserRepository
	wallets        repository.WalletRepository
	txRepo         repository.TransactionRepository
	outbox         repository.OutboxRepository
	gateways       *GatewayService
	engine         *ledger.Engine
	limits         policy.MoneyLimits
	depositLimiter *guard.RateLimiter
	throttle       *guard.PollThrottle
	notifier       Notifier
	metrics        *infra.Metrics
	logger         *slog.Logger
	now            func() time.Time
}

// NewPaymentService creates a PaymentService.
func NewPaymentService(d PaymentDeps) *PaymentService {
	return &PaymentService{
		pool:           d.Pool,
		orders:         d.Orders,
		users:          d.Users,
		wallets:        d.Wallets,
		txRepo:         d.Transactions,
		outbox:         d.Outbox,
		gateways:       d.Gateways,
		engine:         d.Engine,
		limits:         d.Limits,
		depositLimiter: d.DepositLimiter,
		throttle:       d.Throttle,
		notifier:       d.Notifier,
		metrics:        d.Metrics,
		logger:         d.Logger,
		now:            time.Now,
	}
}

// CreateDeposit opens a Pix charge on the active gateway and records a PENDING
// order with its PENDING DEPOSIT transaction. The gateway is called before any
// write, so a failed charge leaves nothing behind.
func (s *PaymentService) CreateDeposit(ctx context.Context, userID uuid.UUID, amount int64) (*domain.DepositResult, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if s.depositLimiter != nil {
		if err := s.depositLimiter.Allow(ctx, "deposit:"+userID.String()); err != nil {
			return nil, err
		}
	}

	user, err := s.users.FindByID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	wallet, err := s.wallets.FindByUserID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find wallet", err)
	}
	if wallet == nil {
		return nil, domain.ErrNotFound("wallet for user", userID.String())
	}

	daily, err := s.txRepo.DailySumByType(ctx, s.pool, wallet.ID, domain.TxDeposit)
	if err != nil {
		return nil, domain.ErrInternal("daily deposit query", err)
	}
	if err := policy.EvaluateDeposit(s.limits, amount, daily).Err(); err != nil {
		return nil, err
	}

	gw, prov, err := s.gateways.Active(ctx)
	if err != nil {
		return nil, err
	}

	orderID := uuid.New()
	charge, err := prov.CreatePixPayment(ctx, provider.ChargeRequest{
		Amount:         amount,
		PayerEmail:     user.Email,
		Description:    fmt.Sprintf("Depósito Palpita Aí - %s", infra.FormatReais(amount)),
		IdempotencyKey: orderID.String(),
	})
	if err != nil {
		s.logger.Error("pix charge failed", "user_id", userID, "gateway_id", gw.ID, "error", err)
		return nil, err
	}

	order := &domain.PaymentOrder{
		ID:          orderID,
		UserID:      userID,
		GatewayID:   gw.ID,
		ExternalID:  charge.ExternalID,
		Amount:      amount,
		PixCode:     charge.PixCode,
		PixQrBase64: charge.PixQrBase64,
		ExpiresAt:   charge.ExpiresAt,
		Status:      domain.OrderPending,
	}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		externalID := "pix:" + orderID.String()
		meta, _ := json.Marshal(map[string]string{
			"paymentOrderId": orderID.String(),
			"gatewayId":      gw.ID.String(),
			"provider":       string(gw.Provider),
		})
		res, err := s.engine.ExecuteOpenPending(ctx, tx, domain.OpenPendingParams{
			WalletID:    wallet.ID,
			Type:        domain.TxDeposit,
			Amount:      amount,
			Description: "Depósito via Pix",
			ExternalID:  &externalID,
			Metadata:    meta,
		})
		if err != nil {
			return internalErr("open pending deposit", err)
		}
		order.TransactionID = res.Transaction.ID

		if err := s.orders.Create(ctx, tx, order); err != nil {
			return domain.ErrInternal("create payment order", err)
		}
		return s.orders.InsertEvent(ctx, tx, &domain.PaymentEvent{
			ID:       uuid.New(),
			OrderID:  order.ID,
			Source:   domain.SourceCreate,
			ToStatus: domain.OrderPending,
			Message:  fmt.Sprintf("pix charge %s created", charge.ExternalID),
		})
	})
	if err != nil {
		return nil, internalErr("record deposit", err)
	}

	s.logger.Info("deposit created", "order_id", order.ID, "user_id", userID, "amount", amount, "gateway_id", gw.ID)
	return &domain.DepositResult{
		PaymentOrderID: order.ID,
		Amount:         order.Amount,
		PixCode:        order.PixCode,
		PixQrBase64:    order.PixQrBase64,
		ExpiresAt:      order.ExpiresAt,
	}, nil
}

// CheckPaymentStatus answers a user's status query for one of their orders.
// Local expiry is evaluated first; otherwise the creating gateway is polled,
// subject to the per-order throttle.
func (s *PaymentService) CheckPaymentStatus(ctx context.Context, orderID, userID uuid.UUID) (*domain.PaymentStatusResult, error) {
	order, err := s.orders.FindByID(ctx, s.pool, orderID)
	if err != nil {
		return nil, domain.ErrInternal("find payment order", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound("payment order", orderID.String())
	}
	if order.UserID != userID {
		return nil, domain.ErrForbidden("payment order belongs to another user")
	}

	status, err := s.observe(ctx, order, domain.SourcePoll)
	if err != nil {
		return nil, err
	}
	return &domain.PaymentStatusResult{PaymentOrderID: order.ID, Status: status}, nil
}

// HandleWebhook processes a gateway notification. It never fails the caller:
// every problem is logged and the outcome is returned for observability only.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte) string {
	outcome := s.handleWebhook(ctx, payload)
	s.metrics.Webhook(outcome)
	return outcome
}

func (s *PaymentService) handleWebhook(ctx context.Context, payload []byte) string {
	externalID, ok := ExtractPaymentID(payload)
	if !ok {
		s.logger.Warn("webhook without payment id", "bytes", len(payload))
		return WebhookInvalid
	}

	order, err := s.orders.FindByExternalID(ctx, s.pool, externalID)
	if err != nil {
		s.logger.Error("webhook order lookup failed", "external_id", externalID, "error", err)
		return WebhookInvalid
	}
	if order == nil {
		s.logger.Warn("payment order not found for webhook", "external_id", externalID)
		return WebhookUnknownOrder
	}
	if order.Status.IsTerminal() {
		return WebhookDuplicate
	}

	if _, err := s.observe(ctx, order, domain.SourceWebhook); err != nil {
		s.logger.Error("webhook reconciliation failed", "order_id", order.ID, "error", err)
	}
	return WebhookProcessed
}

// observe brings a loaded order up to date and returns its current status.
// Gateway failures are logged and reported as the unchanged status. Local expiry
// only short-circuits a poll; a webhook always asks the gateway.
func (s *PaymentService) observe(ctx context.Context, order *domain.PaymentOrder, source domain.ReconcileSource) (domain.PaymentOrderStatus, error) {
	if order.Status.IsTerminal() {
		return order.Status, nil
	}
	if source == domain.SourcePoll && order.IsExpired(s.now()) {
		return s.Transition(ctx, order.ID, domain.OrderExpired, domain.SourceExpiry, "charge expired before payment")
	}
	if source == domain.SourcePoll && !s.throttle.Allow(ctx, order.ID.String()) {
		return order.Status, nil
	}

	prov, err := s.gateways.ForGateway(ctx, order.GatewayID)
	if err != nil {
		s.logger.Error("resolve order gateway failed",
			"order_id", order.ID, "gateway_id", order.GatewayID, "source", source, "error", err)
		return order.Status, nil
	}
	status, err := prov.GetPaymentStatus(ctx, order.ExternalID)
	if err != nil {
		s.logger.Error("gateway status query failed",
			"order_id", order.ID, "gateway_id", order.GatewayID, "source", source, "error", err)
		return order.Status, nil
	}

	if status == domain.OrderPending {
		if err := s.orders.TouchCheckedAt(ctx, s.pool, order.ID, s.now()); err != nil {
			s.logger.Warn("touch checked_at failed", "order_id", order.ID, "error", err)
		}
		return domain.OrderPending, nil
	}
	return s.Transition(ctx, order.ID, status, source, fmt.Sprintf("gateway reported %s", status))
}

// Transition moves a PENDING order to a terminal status exactly once. The order
// row is locked and re-read first; an order already terminal is a no-op that
// returns its stored status. APPROVED credits the wallet through the linked
// PENDING transaction in the same database transaction.
func (s *PaymentService) Transition(ctx context.Context, orderID uuid.UUID, to domain.PaymentOrderStatus, source domain.ReconcileSource, message string) (domain.PaymentOrderStatus, error) {
	if !to.IsTerminal() {
		return "", domain.ErrValidation(fmt.Sprintf("%s is not a terminal payment status", to))
	}

	var order *domain.PaymentOrder
	var applied bool

	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		order, err = s.orders.LockForUpdate(ctx, tx, orderID)
		if err != nil {
			return domain.ErrInternal("lock payment order", err)
		}
		if order == nil {
			return domain.ErrNotFound("payment order", orderID.String())
		}
		if order.Status.IsTerminal() {
			return nil
		}

		if to == domain.OrderApproved {
			_, err = s.engine.ExecuteSettlePending(ctx, tx, order.TransactionID)
		} else {
			_, err = s.engine.ExecuteFailPending(ctx, tx, order.TransactionID, to.TransactionStatus())
		}
		if err != nil {
			return internalErr("settle deposit transaction", err)
		}

		ok, err := s.orders.UpdateStatus(ctx, tx, order.ID, to, s.now())
		if err != nil {
			return domain.ErrInternal("update payment order", err)
		}
		if !ok {
			return domain.ErrInvalidState("payment order left PENDING while locked")
		}

		from := order.Status
		if err := s.orders.InsertEvent(ctx, tx, &domain.PaymentEvent{
			ID:         uuid.New(),
			OrderID:    order.ID,
			Source:     source,
			FromStatus: &from,
			ToStatus:   to,
			Message:    message,
		}); err != nil {
			return domain.ErrInternal("insert payment event", err)
		}

		order.Status = to
		if err := s.outbox.Insert(ctx, tx, domain.NewPaymentOrderSettledEvent(order, source)); err != nil {
			return domain.ErrInternal("insert outbox event", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return "", err
	}

	if applied {
		s.metrics.Reconciliation(string(source), string(to))
		s.logger.Info("payment order transitioned",
			"order_id", order.ID, "status", to, "source", source, "amount", order.Amount)
		if s.notifier != nil {
			s.notifier.NotifyUser(order.UserID.String(), EventPaymentStatus, domain.PaymentStatusResult{
				PaymentOrderID: order.ID,
				Status:         to,
			})
		}
	}
	return order.Status, nil
}

// ExtractPaymentID reads the gateway payment id from a webhook body: data.id
// first, then id. Both string and numeric ids are accepted.
func ExtractPaymentID(payload []byte) (string, bool) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", false
	}

	if raw, ok := body["data"]; ok {
		var data map[string]json.RawMessage
		if json.Unmarshal(raw, &data) == nil {
			if id, ok := scalarID(data["id"]); ok {
				return id, true
			}
		}
	}
	return scalarID(body["id"])
}

func scalarID(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}
