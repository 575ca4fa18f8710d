package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GatewayKind selects the provider implementation for a gateway configuration.
type GatewayKind string

const (
	GatewayMercadoPago GatewayKind = "MERCADOPAGO"
	GatewayEfiPay      GatewayKind = "EFIPAY"
)

// Valid reports whether k is a supported provider.
func (k GatewayKind) Valid() bool {
	return k == GatewayMercadoPago || k == GatewayEfiPay
}

// CredentialMask replaces secret values in admin responses. Updates carrying it are ignored.
const CredentialMask = "••••••••"

// Gateway is a payment_gateways row. At most one row is active.
type Gateway struct {
	ID                  uuid.UUID       `json:"id"`
	Name                string          `json:"name"`
	Provider            GatewayKind     `json:"provider"`
	Credentials         json.RawMessage `json:"credentials"`
	IsActive            bool            `json:"is_active"`
	AutomaticWithdrawal bool            `json:"automatic_withdrawal"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// PixCharge is the outcome of creating an inbound Pix charge.
type PixCharge struct {
	ExternalID  string
	PixCode     string
	PixQrBase64 string
	ExpiresAt   time.Time
}

// PayoutStatus is the gateway-side state of an outbound Pix transfer.
type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "PENDING"
	PayoutApproved PayoutStatus = "APPROVED"
	PayoutFailed   PayoutStatus = "FAILED"
)

// Payout is the outcome of an outbound Pix transfer request.
type Payout struct {
	ID     string       `json:"id"`
	Status PayoutStatus `json:"status"`
}
