package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/palpitai/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type efiFake struct {
	tokenCalls int32
	mux        *http.ServeMux
}

func newEfiFake(t *testing.T) (*efiFake, *EfiPay) {
	t.Helper()
	f := &efiFake{mux: http.NewServeMux()}
	f.mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		atomic.AddInt32(&f.tokenCalls, 1)
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	})

	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	p, err := NewEfiPay(EfiPayCredentials{
		ClientID: "client", ClientSecret: "secret", PixKey: "chave@palpitai.com.br", BaseURL: srv.URL,
	}, fixedOptions())
	require.NoError(t, err)
	return f, p
}

func requireBearer(t *testing.T, r *http.Request) {
	assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
}

func TestEfiPay_CreatePixPayment(t *testing.T) {
	f, p := newEfiFake(t)
	f.mux.HandleFunc("/v2/cob", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		assert.Equal(t, http.MethodPost, r.Method)

		var body efiChargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 1800, body.Calendario.Expiracao)
		assert.Equal(t, "50.00", body.Valor.Original)
		assert.Equal(t, "chave@palpitai.com.br", body.Chave)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"txid":"abc123txid","status":"ATIVA","loc":{"id":77}}`))
	})
	f.mux.HandleFunc("/v2/loc/77/qrcode", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		_, _ = w.Write([]byte(`{"qrcode":"00020101pix","imagemQrcode":"data:image/png;base64,iVBORw0"}`))
	})

	charge, err := p.CreatePixPayment(context.Background(), ChargeRequest{Amount: 5000, Description: "Depósito"})
	require.NoError(t, err)
	assert.Equal(t, "abc123txid", charge.ExternalID)
	assert.Equal(t, "00020101pix", charge.PixCode)
	assert.Equal(t, "iVBORw0", charge.PixQrBase64)
}

func TestEfiPay_TokenCached(t *testing.T) {
	f, p := newEfiFake(t)
	f.mux.HandleFunc("/v2/cob/tx1", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		_, _ = w.Write([]byte(`{"txid":"tx1","status":"CONCLUIDA"}`))
	})

	for i := 0; i < 3; i++ {
		got, err := p.GetPaymentStatus(context.Background(), "tx1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderApproved, got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.tokenCalls))
}

func TestEfiPay_CreatePayout(t *testing.T) {
	f, p := newEfiFake(t)
	f.mux.HandleFunc("/v3/gn/pix/", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v3/gn/pix/abc123", r.URL.Path)

		var body efiPixSend
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "20.00", body.Valor)
		assert.Equal(t, "chave@palpitai.com.br", body.Pagador.Chave)
		assert.Equal(t, "12345678900", body.Favorecido.Chave)

		_, _ = w.Write([]byte(`{"idEnvio":"abc123","status":"EM_PROCESSAMENTO"}`))
	})

	payout, err := p.CreatePayout(context.Background(), PayoutRequest{Amount: 2000, PixKey: "12345678900", IdempotencyKey: "abc-123"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", payout.ID)
	assert.Equal(t, domain.PayoutPending, payout.Status)
}

func TestEfiPay_GetPayoutStatus(t *testing.T) {
	f, p := newEfiFake(t)
	f.mux.HandleFunc("/v2/gn/pix/enviados/id-envio/abc123", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"idEnvio":"abc123","status":"REALIZADO"}`))
	})

	got, err := p.GetPayoutStatus(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutApproved, got)
}

func TestEfiPay_OAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	p, err := NewEfiPay(EfiPayCredentials{ClientID: "c", ClientSecret: "s", PixKey: "k", BaseURL: srv.URL}, fixedOptions())
	require.NoError(t, err)

	_, err = p.GetPaymentStatus(context.Background(), "tx")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestEfiPayStatusMapping(t *testing.T) {
	assert.Equal(t, domain.OrderApproved, EfiPayChargeStatus("CONCLUIDA"))
	assert.Equal(t, domain.OrderCancelled, EfiPayChargeStatus("REMOVIDA_PELO_PSP"))
	assert.Equal(t, domain.OrderCancelled, EfiPayChargeStatus("REMOVIDA_PELO_USUARIO_RECEBEDOR"))
	assert.Equal(t, domain.OrderPending, EfiPayChargeStatus("ATIVA"))

	assert.Equal(t, domain.PayoutApproved, EfiPayPayoutStatus("REALIZADO"))
	assert.Equal(t, domain.PayoutFailed, EfiPayPayoutStatus("NAO_REALIZADO"))
	assert.Equal(t, domain.PayoutPending, EfiPayPayoutStatus("EM_PROCESSAMENTO"))
}

func TestNewEfiPay_InvalidCertificate(t *testing.T) {
	_, err := NewEfiPay(EfiPayCredentials{ClientID: "c", ClientSecret: "s", CertificateBase64: "bm90LWEtcDEy"}, Options{})
	assert.True(t, domain.HasCode(err, domain.CodeValidation))
}

func TestNewEfiPay_SandboxDefaults(t *testing.T) {
	p, err := NewEfiPay(EfiPayCredentials{ClientID: "c", ClientSecret: "s", Sandbox: true}, Options{})
	require.NoError(t, err)
	assert.Equal(t, efiSandboxURL, p.api.baseURL)
	assert.Equal(t, efiSandboxPixKey, p.receiverKey())
}
