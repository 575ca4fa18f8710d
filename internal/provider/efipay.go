package provider

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
	"golang.org/x/crypto/pkcs12"
)

const (
	efiProductionURL = "https://pix.api.efipay.com.br"
	efiSandboxURL    = "https://pix-h.api.efipay.com.br"
	efiSandboxPixKey = "11111111111"
)

// EfiPayCredentials is the credentials document of an EFIPAY gateway.
type EfiPayCredentials struct {
	ClientID            string   `json:"clientId"`
	ClientSecret        string   `json:"clientSecret"`
	PixKey              string   `json:"pixKey"`
	PayoutPixKey        string   `json:"payoutPixKey,omitempty"`
	CertificateBase64   string   `json:"certificateBase64"`
	CertificatePassword string   `json:"certificatePassword,omitempty"`
	Sandbox             flexBool `json:"sandbox"`
	BaseURL             string   `json:"baseUrl,omitempty"`
}

// EfiPay talks to the Efí Pix API over mutual TLS with an OAuth client-credentials token.
type EfiPay struct {
	api    apiClient
	creds  EfiPayCredentials
	opts   Options
	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewEfiPay creates an Efí provider. The PKCS#12 certificate, when present,
// becomes the client certificate of every request.
func NewEfiPay(creds EfiPayCredentials, opts Options) (*EfiPay, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, domain.ErrValidation("efipay credentials require clientId and clientSecret")
	}
	opts = opts.withDefaults()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if creds.CertificateBase64 != "" {
		cert, err := loadPKCS12(creds.CertificateBase64, creds.CertificatePassword)
		if err != nil {
			return nil, domain.ErrValidation(fmt.Sprintf("invalid efipay certificate: %v", err))
		}
		transport.TLSClientConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	base := creds.BaseURL
	if base == "" {
		base = efiProductionURL
		if creds.Sandbox {
			base = efiSandboxURL
		}
	}

	return &EfiPay{
		api: apiClient{
			provider: "efipay",
			baseURL:  base,
			http:     &http.Client{Timeout: opts.Timeout, Transport: transport},
		},
		creds: creds,
		opts:  opts,
	}, nil
}

// loadPKCS12 decodes a base64 .p12 bundle into a TLS certificate with its chain.
func loadPKCS12(b64, password string) (tls.Certificate, error) {
	clean := strings.Join(strings.Fields(b64), "")
	der, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode base64: %w", err)
	}
	blocks, err := pkcs12.ToPEM(der, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode pkcs12: %w", err)
	}

	var certPEM, keyPEM []byte
	for _, b := range blocks {
		if strings.Contains(b.Type, "PRIVATE KEY") {
			keyPEM = append(keyPEM, pem.EncodeToMemory(b)...)
		} else {
			certPEM = append(certPEM, pem.EncodeToMemory(b)...)
		}
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

func (p *EfiPay) Kind() domain.GatewayKind { return domain.GatewayEfiPay }

type efiToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns the cached OAuth token, fetching a new one a minute before expiry.
func (p *EfiPay) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.opts.Now()
	if p.token != "" && now.Before(p.expiry) {
		return p.token, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(p.creds.ClientID + ":" + p.creds.ClientSecret))
	var tok efiToken
	err := p.api.doJSON(ctx, http.MethodPost, "/oauth/token",
		map[string]string{"grant_type": "client_credentials"}, &tok,
		map[string]string{"Authorization": "Basic " + basic})
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("efipay oauth response missing access_token")
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl > 2*time.Minute {
		ttl -= time.Minute
	}
	p.token = tok.AccessToken
	p.expiry = now.Add(ttl)
	return p.token, nil
}

func (p *EfiPay) call(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}
	return p.api.doJSON(ctx, method, path, body, out, map[string]string{"Authorization": "Bearer " + token})
}

func (p *EfiPay) receiverKey() string {
	if p.creds.PixKey != "" {
		return p.creds.PixKey
	}
	if p.creds.Sandbox {
		return efiSandboxPixKey
	}
	return ""
}

type efiChargeRequest struct {
	Calendario struct {
		Expiracao int `json:"expiracao"`
	} `json:"calendario"`
	Valor struct {
		Original string `json:"original"`
	} `json:"valor"`
	Chave              string `json:"chave"`
	SolicitacaoPagador string `json:"solicitacaoPagador,omitempty"`
}

type efiChargeResponse struct {
	TxID   string `json:"txid"`
	Status string `json:"status"`
	Loc    struct {
		ID flexString `json:"id"`
	} `json:"loc"`
}

type efiQRCode struct {
	QRCode       string `json:"qrcode"`
	ImagemQRCode string `json:"imagemQrcode"`
}

func (p *EfiPay) CreatePixPayment(ctx context.Context, req ChargeRequest) (*domain.PixCharge, error) {
	key := p.receiverKey()
	if key == "" {
		return nil, domain.ErrValidation("efipay credentials require pixKey")
	}

	var body efiChargeRequest
	body.Calendario.Expiracao = int(p.opts.ChargeTTL / time.Second)
	body.Valor.Original = infra.FormatReais(req.Amount)
	body.Chave = key
	body.SolicitacaoPagador = req.Description

	var charge efiChargeResponse
	if err := p.call(ctx, http.MethodPost, "/v2/cob", body, &charge); err != nil {
		return nil, err
	}
	if charge.TxID == "" {
		return nil, fmt.Errorf("efipay charge response missing txid")
	}

	var qr efiQRCode
	if err := p.call(ctx, http.MethodGet, "/v2/loc/"+url.PathEscape(string(charge.Loc.ID))+"/qrcode", nil, &qr); err != nil {
		return nil, err
	}

	return &domain.PixCharge{
		ExternalID:  charge.TxID,
		PixCode:     qr.QRCode,
		PixQrBase64: stripDataURI(qr.ImagemQRCode),
		ExpiresAt:   p.opts.Now().Add(p.opts.ChargeTTL),
	}, nil
}

// stripDataURI drops a "data:image/png;base64," prefix so both providers return bare base64.
func stripDataURI(s string) string {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		return s[i+len(";base64,"):]
	}
	return s
}

// EfiPayChargeStatus maps a cob status onto an order status.
func EfiPayChargeStatus(status string) domain.PaymentOrderStatus {
	switch status {
	case "CONCLUIDA":
		return domain.OrderApproved
	case "REMOVIDA_PELO_USUARIO_RECEBEDOR", "REMOVIDA_PELO_PSP":
		return domain.OrderCancelled
	default:
		return domain.OrderPending
	}
}

func (p *EfiPay) GetPaymentStatus(ctx context.Context, externalID string) (domain.PaymentOrderStatus, error) {
	var charge efiChargeResponse
	if err := p.call(ctx, http.MethodGet, "/v2/cob/"+url.PathEscape(externalID), nil, &charge); err != nil {
		return "", err
	}
	return EfiPayChargeStatus(charge.Status), nil
}

type efiKey struct {
	Chave string `json:"chave"`
}

type efiPixSend struct {
	Valor      string `json:"valor"`
	Pagador    efiKey `json:"pagador"`
	Favorecido efiKey `json:"favorecido"`
}

type efiPixSendResponse struct {
	IDEnvio string `json:"idEnvio"`
	Status  string `json:"status"`
}

// EfiPayPayoutStatus maps a Pix send status onto a payout status.
func EfiPayPayoutStatus(status string) domain.PayoutStatus {
	switch status {
	case "REALIZADO":
		return domain.PayoutApproved
	case "NAO_REALIZADO":
		return domain.PayoutFailed
	default:
		return domain.PayoutPending
	}
}

func (p *EfiPay) CreatePayout(ctx context.Context, req PayoutRequest) (*domain.Payout, error) {
	payer := p.creds.PayoutPixKey
	if payer == "" {
		payer = p.receiverKey()
	}
	if payer == "" {
		return nil, domain.ErrValidation("efipay credentials require payoutPixKey or pixKey")
	}

	idEnvio := strings.ReplaceAll(req.IdempotencyKey, "-", "")
	if idEnvio == "" {
		idEnvio = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	var resp efiPixSendResponse
	err := p.call(ctx, http.MethodPut, "/v3/gn/pix/"+url.PathEscape(idEnvio), efiPixSend{
		Valor:      infra.FormatReais(req.Amount),
		Pagador:    efiKey{Chave: payer},
		Favorecido: efiKey{Chave: req.PixKey},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.IDEnvio == "" {
		resp.IDEnvio = idEnvio
	}
	return &domain.Payout{ID: resp.IDEnvio, Status: EfiPayPayoutStatus(resp.Status)}, nil
}

func (p *EfiPay) GetPayoutStatus(ctx context.Context, payoutID string) (domain.PayoutStatus, error) {
	var resp efiPixSendResponse
	if err := p.call(ctx, http.MethodGet, "/v2/gn/pix/enviados/id-envio/"+url.PathEscape(payoutID), nil, &resp); err != nil {
		return "", err
	}
	return EfiPayPayoutStatus(resp.Status), nil
}
