package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
)

// Provider is the four-operation Pix capability every gateway variant implements.
// Implementations are stateless per call apart from credentials and cached auth tokens.
type Provider interface {
	Kind() domain.GatewayKind

	// CreatePixPayment opens an inbound Pix charge.
	CreatePixPayment(ctx context.Context, req ChargeRequest) (*domain.PixCharge, error)

	// GetPaymentStatus queries an inbound charge by the gateway's id.
	GetPaymentStatus(ctx context.Context, externalID string) (domain.PaymentOrderStatus, error)

	// CreatePayout sends an outbound Pix transfer.
	CreatePayout(ctx context.Context, req PayoutRequest) (*domain.Payout, error)

	// GetPayoutStatus queries an outbound transfer.
	GetPayoutStatus(ctx context.Context, payoutID string) (domain.PayoutStatus, error)
}

// ChargeRequest is the input of CreatePixPayment. Amount is in centavos.
type ChargeRequest struct {
	Amount         int64
	PayerEmail     string
	Description    string
	IdempotencyKey string
}

// PayoutRequest is the input of CreatePayout. Amount is in centavos.
type PayoutRequest struct {
	Amount         int64
	PixKey         string
	Description    string
	RecipientEmail string
	IdempotencyKey string
}

// Options configure every provider built by a Factory.
type Options struct {
	Timeout   time.Duration
	ChargeTTL time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.ChargeTTL <= 0 {
		o.ChargeTTL = 30 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Factory builds a Provider from a stored gateway configuration. Providers of
// stored gateways are cached by id so HTTP transports and OAuth tokens survive
// across calls; a credentials change rebuilds the entry.
type Factory struct {
	opts Options

	mu    sync.Mutex
	cache map[uuid.UUID]cachedProvider
}

type cachedProvider struct {
	fingerprint string
	p           Provider
}

// NewFactory creates a Factory.
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts.withDefaults(), cache: make(map[uuid.UUID]cachedProvider)}
}

// Build returns the Provider variant for g.Provider, reusing the cached client
// when g has an id and its credentials have not changed.
func (f *Factory) Build(g *domain.Gateway) (Provider, error) {
	if g.ID == uuid.Nil {
		return f.build(g)
	}
	fp := fingerprint(g)

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cache[g.ID]; ok && c.fingerprint == fp {
		return c.p, nil
	}
	p, err := f.build(g)
	if err != nil {
		return nil, err
	}
	f.cache[g.ID] = cachedProvider{fingerprint: fp, p: p}
	return p, nil
}

// Forget drops the cached client of a gateway.
func (f *Factory) Forget(id uuid.UUID) {
	f.mu.Lock()
	delete(f.cache, id)
	f.mu.Unlock()
}

func fingerprint(g *domain.Gateway) string {
	return string(g.Provider) + "|" + string(g.Credentials)
}

func (f *Factory) build(g *domain.Gateway) (Provider, error) {
	switch g.Provider {
	case domain.GatewayMercadoPago:
		var creds MercadoPagoCredentials
		if err := decodeCredentials(g.Credentials, &creds); err != nil {
			return nil, err
		}
		p, err := NewMercadoPago(creds, f.opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case domain.GatewayEfiPay:
		var creds EfiPayCredentials
		if err := decodeCredentials(g.Credentials, &creds); err != nil {
			return nil, err
		}
		p, err := NewEfiPay(creds, f.opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, domain.ErrValidation(fmt.Sprintf("unsupported payment provider %q", g.Provider))
	}
}

func decodeCredentials(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return domain.ErrValidation(fmt.Sprintf("invalid gateway credentials: %v", err))
	}
	return nil
}

// SecretFields lists the credential keys that are masked in admin responses.
func SecretFields(kind domain.GatewayKind) []string {
	switch kind {
	case domain.GatewayMercadoPago:
		return []string{"accessToken"}
	case domain.GatewayEfiPay:
		return []string{"clientSecret", "certificateBase64", "certificatePassword"}
	}
	return nil
}
