package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Validator Tests ---

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
		errMsg  string
	}{
		{"valid email", "user@example.com", false, ""},
		{"valid email with dots", "first.last@example.com.br", false, ""},
		{"valid email with plus", "user+tag@example.com", false, ""},
		{"empty string", "", true, "email is required"},
		{"no at sign", "userexample.com", true, "invalid email format"},
		{"no domain", "user@", true, "invalid email format"},
		{"double at", "user@@example.com", true, "invalid email format"},
		{"no tld", "user@example", true, "invalid email format"},
		{"spaces", "user @example.com", true, "invalid email format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidatePositiveAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		wantErr bool
	}{
		{"one centavo", 1, false},
		{"ten reais", 1000, false},
		{"zero", 0, true},
		{"negative", -500, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositiveAmount(tt.amount)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCPF(t *testing.T) {
	tests := []struct {
		name    string
		cpf     string
		wantErr bool
	}{
		{"valid digits", "52998224725", false},
		{"valid formatted", "529.982.247-25", false},
		{"wrong first check digit", "52998224715", true},
		{"wrong second check digit", "52998224724", true},
		{"repeated digits", "11111111111", true},
		{"too short", "5299822472", true},
		{"letters", "5299822472a", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCPF(tt.cpf)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePixKey(t *testing.T) {
	assert.NoError(t, ValidatePixKey("user@example.com"))
	assert.NoError(t, ValidatePixKey("123e4567-e89b-12d3-a456-426614174000"))
	assert.Error(t, ValidatePixKey(""))
	assert.Error(t, ValidatePixKey("   "))

	long := make([]byte, MaxPixKeyLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ValidatePixKey(string(long)))
}

// --- AppError Tests ---

func TestAppError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := ErrNotFound("wallet", "abc-123")
		assert.Equal(t, "NOT_FOUND: wallet abc-123 not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := ErrGateway("create pix charge", cause)
		assert.Contains(t, err.Error(), "GATEWAY_ERROR")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ErrInternal("wrapped", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorFactories(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"ErrNotFound", ErrNotFound("order", "123"), CodeNotFound, 404},
		{"ErrConflict", ErrConflict("already exists"), CodeConflict, 409},
		{"ErrValidation", ErrValidation("bad input"), CodeValidation, 400},
		{"ErrUnauthorized", ErrUnauthorized("no token"), CodeUnauthorized, 401},
		{"ErrForbidden", ErrForbidden("not yours"), CodeForbidden, 403},
		{"ErrInsufficientFunds", ErrInsufficientFunds(), CodeInsufficientFunds, 400},
		{"ErrInvalidRoundState", ErrInvalidRoundState("round is OPEN"), CodeInvalidRoundState, 409},
		{"ErrRoundClosed", ErrRoundClosed("betting closed"), CodeRoundClosed, 409},
		{"ErrInvalidSelection", ErrInvalidSelection("unknown match"), CodeInvalidSelection, 400},
		{"ErrIncompleteResults", ErrIncompleteResults("r1", 2), CodeIncompleteResults, 409},
		{"ErrInvalidState", ErrInvalidState("not pending"), CodeInvalidState, 409},
		{"ErrNoActiveGateway", ErrNoActiveGateway(), CodeNoActiveGateway, 503},
		{"ErrGateway", ErrGateway("timeout", nil), CodeGateway, 502},
		{"ErrBelowMinimum", ErrBelowMinimum("deposit", 1000), CodeBelowMinimum, 400},
		{"ErrLimitExceeded", ErrLimitExceeded("daily"), CodeLimitExceeded, 422},
		{"ErrRateLimited", ErrRateLimited("slow down"), CodeRateLimited, 429},
		{"ErrAccountLocked", ErrAccountLocked("too many attempts"), CodeAccountLocked, 429},
		{"ErrInternal", ErrInternal("oops", nil), CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.Status)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("place bet: %w", ErrInsufficientFunds())
	assert.True(t, HasCode(wrapped, CodeInsufficientFunds))
	assert.False(t, HasCode(wrapped, CodeRoundClosed))
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.Status)
}

// --- Status Tests ---

func TestTransactionType_IsCredit(t *testing.T) {
	assert.True(t, TxDeposit.IsCredit())
	assert.True(t, TxPrize.IsCredit())
	assert.True(t, TxRefund.IsCredit())
	assert.False(t, TxWithdraw.IsCredit())
	assert.False(t, TxBet.IsCredit())
	assert.False(t, TransactionType("bogus").Valid())
}

func TestPaymentOrderStatus(t *testing.T) {
	tests := []struct {
		status   PaymentOrderStatus
		terminal bool
		txStatus TransactionStatus
	}{
		{OrderPending, false, TxStatusPending},
		{OrderApproved, true, TxStatusSuccess},
		{OrderCancelled, true, TxStatusCancelled},
		{OrderExpired, true, TxStatusFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.txStatus, tt.status.TransactionStatus())
		})
	}
}

func TestPaymentOrder_IsExpired(t *testing.T) {
	now := time.Now()
	order := &PaymentOrder{Status: OrderPending, ExpiresAt: now.Add(-time.Second)}
	assert.True(t, order.IsExpired(now))

	order.ExpiresAt = now.Add(time.Minute)
	assert.False(t, order.IsExpired(now))

	order.ExpiresAt = now.Add(-time.Minute)
	order.Status = OrderApproved
	assert.False(t, order.IsExpired(now), "terminal orders never expire")
}

func TestRound_AcceptsBets(t *testing.T) {
	now := time.Now()
	r := &Round{Status: RoundOpen, EndTime: now.Add(time.Hour)}
	assert.True(t, r.AcceptsBets(now))
	assert.True(t, r.AcceptsBets(r.EndTime), "deadline is inclusive")
	assert.False(t, r.AcceptsBets(r.EndTime.Add(time.Second)))

	r.Status = RoundClosed
	assert.False(t, r.AcceptsBets(now))
}

func TestFromPayoutStatus(t *testing.T) {
	assert.Equal(t, WithdrawalPayoutPaid, FromPayoutStatus(PayoutApproved))
	assert.Equal(t, WithdrawalPayoutFailed, FromPayoutStatus(PayoutFailed))
	assert.Equal(t, WithdrawalPayoutPending, FromPayoutStatus(PayoutPending))
}

func TestPage(t *testing.T) {
	assert.Equal(t, Page{Page: 1, Limit: 20}, Page{}.Normalize())
	assert.Equal(t, Page{Page: 1, Limit: 20}, Page{Page: -3, Limit: 500}.Normalize())
	assert.Equal(t, 40, Page{Page: 3, Limit: 20}.Offset())
}

// --- Event Factory Tests ---

func TestNewTransactionPostedEvent(t *testing.T) {
	walletID := uuid.New()
	tx := &Transaction{
		ID:       uuid.New(),
		WalletID: walletID,
		Type:     TxDeposit,
		Status:   TxStatusSuccess,
		Amount:   5000,
	}

	event := NewTransactionPostedEvent(tx)

	assert.NotEqual(t, uuid.Nil, event.EventID)
	assert.Equal(t, AggregateWallet, event.AggregateType)
	assert.Equal(t, walletID.String(), event.AggregateID)
	assert.Equal(t, EventTransactionPosted, event.EventType)
	assert.Equal(t, walletID.String(), event.PartitionKey)
	assert.False(t, event.OccurredAt.IsZero())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, float64(5000), payload["amount"])
	assert.Equal(t, "SUCCESS", payload["status"])
}

func TestNewPaymentOrderSettledEvent(t *testing.T) {
	order := &PaymentOrder{ID: uuid.New(), UserID: uuid.New(), Status: OrderApproved, Amount: 5000}
	event := NewPaymentOrderSettledEvent(order, SourceWebhook)

	assert.Equal(t, AggregatePayment, event.AggregateType)
	assert.Equal(t, order.ID.String(), event.AggregateID)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "APPROVED", payload["status"])
	assert.Equal(t, "webhook", payload["source"])
}

func TestNewWithdrawalEvent(t *testing.T) {
	w := &Withdrawal{ID: uuid.New(), UserID: uuid.New(), Amount: 2000, Status: WithdrawalRejected}
	event := NewWithdrawalEvent(w, EventWithdrawalRejected)
	assert.Equal(t, EventWithdrawalRejected, event.EventType)
	assert.Equal(t, AggregateWithdrawal, event.AggregateType)
}
