package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
)

const mercadoPagoBaseURL = "https://api.mercadopago.com"

// MercadoPagoCredentials is the credentials document of a MERCADOPAGO gateway.
type MercadoPagoCredentials struct {
	AccessToken string `json:"accessToken"`
	BaseURL     string `json:"baseUrl,omitempty"`
}

// MercadoPago talks to the Mercado Pago payments and transaction-intents APIs.
type MercadoPago struct {
	api   apiClient
	token string
	opts  Options
}

// NewMercadoPago creates a Mercado Pago provider.
func NewMercadoPago(creds MercadoPagoCredentials, opts Options) (*MercadoPago, error) {
	if creds.AccessToken == "" {
		return nil, domain.ErrValidation("mercadopago credentials require accessToken")
	}
	base := creds.BaseURL
	if base == "" {
		base = mercadoPagoBaseURL
	}
	opts = opts.withDefaults()
	return &MercadoPago{
		api: apiClient{
			provider: "mercadopago",
			baseURL:  base,
			http:     &http.Client{Timeout: opts.Timeout},
		},
		token: creds.AccessToken,
		opts:  opts,
	}, nil
}

func (p *MercadoPago) Kind() domain.GatewayKind { return domain.GatewayMercadoPago }

func (p *MercadoPago) headers(idempotencyKey string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + p.token}
	if idempotencyKey != "" {
		h["X-Idempotency-Key"] = idempotencyKey
	}
	return h
}

type mpPayer struct {
	Email string `json:"email"`
}

type mpPaymentRequest struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description"`
	PaymentMethodID   string      `json:"payment_method_id"`
	Payer             mpPayer     `json:"payer"`
	DateOfExpiration  string      `json:"date_of_expiration"`
}

type mpPaymentResponse struct {
	ID                 flexString `json:"id"`
	Status             string     `json:"status"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (p *MercadoPago) CreatePixPayment(ctx context.Context, req ChargeRequest) (*domain.PixCharge, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	expiresAt := p.opts.Now().Add(p.opts.ChargeTTL)

	var resp mpPaymentResponse
	err := p.api.doJSON(ctx, http.MethodPost, "/v1/payments", mpPaymentRequest{
		TransactionAmount: json.Number(infra.FormatReais(req.Amount)),
		Description:       req.Description,
		PaymentMethodID:   "pix",
		Payer:             mpPayer{Email: req.PayerEmail},
		DateOfExpiration:  expiresAt.Format("2006-01-02T15:04:05.000-07:00"),
	}, &resp, p.headers(key))
	if err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("mercadopago payment response missing id")
	}

	return &domain.PixCharge{
		ExternalID:  string(resp.ID),
		PixCode:     resp.PointOfInteraction.TransactionData.QRCode,
		PixQrBase64: resp.PointOfInteraction.TransactionData.QRCodeBase64,
		ExpiresAt:   expiresAt,
	}, nil
}

// MercadoPagoPaymentStatus maps a Mercado Pago payment status onto an order status.
func MercadoPagoPaymentStatus(status string) domain.PaymentOrderStatus {
	switch strings.ToLower(status) {
	case "approved":
		return domain.OrderApproved
	case "cancelled", "rejected", "refunded", "charged_back":
		return domain.OrderCancelled
	case "expired":
		return domain.OrderExpired
	default:
		return domain.OrderPending
	}
}

func (p *MercadoPago) GetPaymentStatus(ctx context.Context, externalID string) (domain.PaymentOrderStatus, error) {
	var resp mpPaymentResponse
	if err := p.api.doJSON(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(externalID), nil, &resp, p.headers("")); err != nil {
		return "", err
	}
	return MercadoPagoPaymentStatus(resp.Status), nil
}

type mpAmount struct {
	Value    json.Number `json:"value"`
	Currency string      `json:"currency"`
}

type mpAccount struct {
	Amount   mpAmount `json:"amount"`
	ChavePix string   `json:"chave_pix,omitempty"`
}

type mpTransactionIntent struct {
	ExternalReference  string `json:"external_reference"`
	Description        string `json:"description,omitempty"`
	PointOfInteraction struct {
		Type string `json:"type"`
	} `json:"point_of_interaction"`
	Transaction struct {
		From struct {
			Accounts []mpAccount `json:"accounts"`
		} `json:"from"`
		To struct {
			Accounts []mpAccount `json:"accounts"`
		} `json:"to"`
	} `json:"transaction"`
}

type mpIntentResponse struct {
	ID     flexString `json:"id"`
	Status string     `json:"status"`
}

// MercadoPagoPayoutStatus maps a transaction-intent status onto a payout status.
func MercadoPagoPayoutStatus(status string) domain.PayoutStatus {
	switch strings.ToLower(status) {
	case "approved", "processed":
		return domain.PayoutApproved
	case "rejected", "failed", "cancelled":
		return domain.PayoutFailed
	default:
		return domain.PayoutPending
	}
}

func (p *MercadoPago) CreatePayout(ctx context.Context, req PayoutRequest) (*domain.Payout, error) {
	ref := req.IdempotencyKey
	if ref == "" {
		ref = "payout-" + uuid.NewString()
	}
	amount := mpAmount{Value: json.Number(infra.FormatReais(req.Amount)), Currency: "BRL"}

	var body mpTransactionIntent
	body.ExternalReference = ref
	body.Description = req.Description
	body.PointOfInteraction.Type = "PSP_TRANSFER"
	body.Transaction.From.Accounts = []mpAccount{{Amount: amount}}
	body.Transaction.To.Accounts = []mpAccount{{Amount: amount, ChavePix: req.PixKey}}

	headers := p.headers(ref)
	headers["X-Enforce-Signature"] = "false"

	var resp mpIntentResponse
	if err := p.api.doJSON(ctx, http.MethodPost, "/v1/transaction-intents/process", body, &resp, headers); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("mercadopago payout response missing id")
	}
	return &domain.Payout{ID: string(resp.ID), Status: MercadoPagoPayoutStatus(resp.Status)}, nil
}

func (p *MercadoPago) GetPayoutStatus(ctx context.Context, payoutID string) (domain.PayoutStatus, error) {
	var resp mpIntentResponse
	if err := p.api.doJSON(ctx, http.MethodGet, "/v1/transaction-intents/"+url.PathEscape(payoutID), nil, &resp, p.headers("")); err != nil {
		return "", err
	}
	return MercadoPagoPayoutStatus(resp.Status), nil
}
