package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/guard"
	"github.com/palpitai/platform/internal/infra"
	"github.com/palpitai/platform/internal/provider"
	"github.com/palpitai/platform/internal/repository"
)

// ProviderFactory builds a provider client from a stored gateway configuration.
type ProviderFactory interface {
	Build(g *domain.Gateway) (provider.Provider, error)
	Forget(id uuid.UUID)
}

// GatewayService is the gateway registry: admin CRUD over payment_gateways and
// resolution of provider clients for money operations.
type GatewayService struct {
	pool     *pgxpool.Pool
	gateways repository.GatewayRepository
	factory  ProviderFactory
	breaker  *guard.CircuitBreaker
	metrics  *infra.Metrics
	logger   *slog.Logger
}

// NewGatewayService creates a GatewayService.
func NewGatewayService(
	pool *pgxpool.Pool,
	gateways repository.GatewayRepository,
	factory ProviderFactory,
	breaker *guard.CircuitBreaker,
	metrics *infra.Metrics,
	logger *slog.Logger,
) *GatewayService {
	return &GatewayService{
		pool:     pool,
		gateways: gateways,
		factory:  factory,
		breaker:  breaker,
		metrics:  metrics,
		logger:   logger,
	}
}

// CreateGatewayInput holds the fields of a new gateway configuration.
type CreateGatewayInput struct {
	Name                string             `json:"name"`
	Provider            domain.GatewayKind `json:"provider"`
	Credentials         json.RawMessage    `json:"credentials"`
	AutomaticWithdrawal *bool              `json:"automaticWithdrawal"`
}

// UpdateGatewayInput holds a partial gateway update. Credential values equal to
// domain.CredentialMask keep the stored value.
type UpdateGatewayInput struct {
	Name                *string         `json:"name"`
	Credentials         json.RawMessage `json:"credentials"`
	AutomaticWithdrawal *bool           `json:"automaticWithdrawal"`
}

// List returns every gateway with secrets masked.
func (s *GatewayService) List(ctx context.Context) ([]domain.Gateway, error) {
	list, err := s.gateways.List(ctx, s.pool)
	if err != nil {
		return nil, domain.ErrInternal("list gateways", err)
	}
	for i := range list {
		list[i].Credentials = MaskCredentials(list[i].Provider, list[i].Credentials)
	}
	return list, nil
}

// Get returns one gateway with secrets masked.
func (s *GatewayService) Get(ctx context.Context, id uuid.UUID) (*domain.Gateway, error) {
	g, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Credentials = MaskCredentials(g.Provider, g.Credentials)
	return g, nil
}

// Create stores a new, inactive gateway configuration.
func (s *GatewayService) Create(ctx context.Context, input CreateGatewayInput) (*domain.Gateway, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domain.ErrValidation("name is required")
	}
	if !input.Provider.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("unsupported provider %q", input.Provider))
	}

	g := &domain.Gateway{
		ID:                  uuid.New(),
		Name:                strings.TrimSpace(input.Name),
		Provider:            input.Provider,
		Credentials:         input.Credentials,
		AutomaticWithdrawal: true,
	}
	if input.AutomaticWithdrawal != nil {
		g.AutomaticWithdrawal = *input.AutomaticWithdrawal
	}
	if len(g.Credentials) == 0 {
		g.Credentials = json.RawMessage(`{}`)
	}
	if _, err := s.factory.Build(g); err != nil {
		return nil, err
	}

	if err := s.gateways.Create(ctx, s.pool, g); err != nil {
		return nil, domain.ErrInternal("create gateway", err)
	}
	s.logger.Info("gateway created", "gateway_id", g.ID, "provider", g.Provider)

	g.Credentials = MaskCredentials(g.Provider, g.Credentials)
	return g, nil
}

// Update applies a partial update to a gateway configuration.
func (s *GatewayService) Update(ctx context.Context, id uuid.UUID, input UpdateGatewayInput) (*domain.Gateway, error) {
	g, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.ErrValidation("name cannot be empty")
		}
		g.Name = name
	}
	if input.AutomaticWithdrawal != nil {
		g.AutomaticWithdrawal = *input.AutomaticWithdrawal
	}
	if len(input.Credentials) > 0 {
		merged, err := MergeCredentials(g.Credentials, input.Credentials)
		if err != nil {
			return nil, err
		}
		g.Credentials = merged
		if _, err := s.factory.Build(g); err != nil {
			return nil, err
		}
	}

	if err := s.gateways.Update(ctx, s.pool, g); err != nil {
		return nil, domain.ErrInternal("update gateway", err)
	}
	s.factory.Forget(id)

	g.Credentials = MaskCredentials(g.Provider, g.Credentials)
	return g, nil
}

// Activate makes id the only active gateway.
func (s *GatewayService) Activate(ctx context.Context, id uuid.UUID) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := s.gateways.DeactivateAll(ctx, tx); err != nil {
			return domain.ErrInternal("deactivate gateways", err)
		}
		ok, err := s.gateways.SetActive(ctx, tx, id, true)
		if err != nil {
			return domain.ErrInternal("activate gateway", err)
		}
		if !ok {
			return domain.ErrNotFound("gateway", id.String())
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("gateway activated", "gateway_id", id)
	return nil
}

// Deactivate turns a gateway off. Deposits fail with NoActiveGateway until another is activated.
func (s *GatewayService) Deactivate(ctx context.Context, id uuid.UUID) error {
	ok, err := s.gateways.SetActive(ctx, s.pool, id, false)
	if err != nil {
		return domain.ErrInternal("deactivate gateway", err)
	}
	if !ok {
		return domain.ErrNotFound("gateway", id.String())
	}
	s.factory.Forget(id)
	return nil
}

// Delete removes a gateway configuration.
func (s *GatewayService) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.gateways.Delete(ctx, s.pool, id)
	if err != nil {
		return domain.ErrInternal("delete gateway", err)
	}
	if !ok {
		return domain.ErrNotFound("gateway", id.String())
	}
	s.factory.Forget(id)
	return nil
}

// Active resolves the active gateway and its provider client.
func (s *GatewayService) Active(ctx context.Context) (*domain.Gateway, provider.Provider, error) {
	g, err := s.gateways.FindActive(ctx, s.pool)
	if err != nil {
		return nil, nil, domain.ErrInternal("find active gateway", err)
	}
	if g == nil {
		return nil, nil, domain.ErrNoActiveGateway()
	}
	p, err := s.client(g)
	if err != nil {
		return nil, nil, err
	}
	return g, p, nil
}

// ForGateway resolves the provider client of a stored gateway, active or not.
func (s *GatewayService) ForGateway(ctx context.Context, id uuid.UUID) (provider.Provider, error) {
	g, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.client(g)
}

func (s *GatewayService) find(ctx context.Context, id uuid.UUID) (*domain.Gateway, error) {
	g, err := s.gateways.FindByID(ctx, s.pool, id)
	if err != nil {
		return nil, domain.ErrInternal("find gateway", err)
	}
	if g == nil {
		return nil, domain.ErrNotFound("gateway", id.String())
	}
	return g, nil
}

func (s *GatewayService) client(g *domain.Gateway) (provider.Provider, error) {
	p, err := s.factory.Build(g)
	if err != nil {
		return nil, err
	}
	return NewGuardedProvider(p, g.ID.String(), s.breaker, s.metrics), nil
}

// guardedProvider runs every call through the gateway's circuit breaker and
// reports it to metrics. Failures surface as GatewayError.
type guardedProvider struct {
	inner   provider.Provider
	key     string
	breaker *guard.CircuitBreaker
	metrics *infra.Metrics
}

// NewGuardedProvider wraps p with the breaker circuit named key.
func NewGuardedProvider(p provider.Provider, key string, breaker *guard.CircuitBreaker, metrics *infra.Metrics) provider.Provider {
	return &guardedProvider{inner: p, key: key, breaker: breaker, metrics: metrics}
}

func (g *guardedProvider) Kind() domain.GatewayKind { return g.inner.Kind() }

func (g *guardedProvider) call(ctx context.Context, op string, fn func() error) error {
	var callErr error
	if g.breaker != nil {
		callErr = g.breaker.Do(ctx, g.key, fn)
	} else {
		callErr = fn()
	}
	g.metrics.GatewayCall(string(g.inner.Kind()), op, callErr)
	if callErr == nil {
		return nil
	}
	if appErr, ok := domain.AsAppError(callErr); ok && appErr.Code == domain.CodeGateway {
		return appErr
	}
	return domain.ErrGateway(fmt.Sprintf("%s %s failed", g.inner.Kind(), op), callErr)
}

func (g *guardedProvider) CreatePixPayment(ctx context.Context, req provider.ChargeRequest) (*domain.PixCharge, error) {
	var out *domain.PixCharge
	err := g.call(ctx, "create_charge", func() error {
		var err error
		out, err = g.inner.CreatePixPayment(ctx, req)
		return err
	})
	return out, err
}

func (g *guardedProvider) GetPaymentStatus(ctx context.Context, externalID string) (domain.PaymentOrderStatus, error) {
	var out domain.PaymentOrderStatus
	err := g.call(ctx, "payment_status", func() error {
		var err error
		out, err = g.inner.GetPaymentStatus(ctx, externalID)
		return err
	})
	return out, err
}

func (g *guardedProvider) CreatePayout(ctx context.Context, req provider.PayoutRequest) (*domain.Payout, error) {
	var out *domain.Payout
	err := g.call(ctx, "create_payout", func() error {
		var err error
		out, err = g.inner.CreatePayout(ctx, req)
		return err
	})
	return out, err
}

func (g *guardedProvider) GetPayoutStatus(ctx context.Context, payoutID string) (domain.PayoutStatus, error) {
	var out domain.PayoutStatus
	err := g.call(ctx, "payout_status", func() error {
		var err error
		out, err = g.inner.GetPayoutStatus(ctx, payoutID)
		return err
	})
	return out, err
}

// MaskCredentials replaces the provider's secret credential values with
// domain.CredentialMask. Malformed credentials are returned as an empty object.
func MaskCredentials(kind domain.GatewayKind, raw json.RawMessage) json.RawMessage {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return json.RawMessage(`{}`)
	}
	for _, key := range provider.SecretFields(kind) {
		if v, ok := fields[key]; ok && v != nil && v != "" {
			fields[key] = domain.CredentialMask
		}
	}
	out, _ := json.Marshal(fields)
	return out
}

// MergeCredentials overlays update on current. Keys whose value is the mask keep
// the current value.
func MergeCredentials(current, update json.RawMessage) (json.RawMessage, error) {
	base := map[string]interface{}{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &base); err != nil {
			return nil, domain.ErrInternal("decode stored credentials", err)
		}
	}
	var patch map[string]interface{}
	if err := json.Unmarshal(update, &patch); err != nil {
		return nil, domain.ErrValidation("credentials must be a JSON object")
	}
	for k, v := range patch {
		if v == domain.CredentialMask {
			continue
		}
		base[k] = v
	}
	out, err := json.Marshal(base)
	if err != nil {
		return nil, domain.ErrInternal("encode credentials", err)
	}
	return out, nil
}
