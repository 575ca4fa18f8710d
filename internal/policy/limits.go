package policy

import (
	"fmt"

	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/infra"
)

// MoneyLimits are the platform-wide amount rules, all in centavos.
// A zero max disables that check.
type MoneyLimits struct {
	MinDeposit       int64 `json:"min_deposit"`
	MaxSingleDeposit int64 `json:"max_single_deposit"`
	DailyDepositMax  int64 `json:"daily_deposit_max"`
	MinWithdrawal    int64 `json:"min_withdrawal"`
}

// LimitsFromConfig reads the limits from configuration.
func LimitsFromConfig(cfg *infra.Config) MoneyLimits {
	return MoneyLimits{
		MinDeposit:       cfg.MinDepositCents,
		MaxSingleDeposit: cfg.MaxSingleDepositCents,
		DailyDepositMax:  cfg.DailyDepositLimit,
		MinWithdrawal:    cfg.MinWithdrawalCents,
	}
}

// Evaluation holds the result of a limits check.
type Evaluation struct {
	Allowed       bool   `json:"allowed"`
	BreachedLimit string `json:"breached_limit,omitempty"`
	LimitValue    int64  `json:"limit_value,omitempty"`
	RequestedAmt  int64  `json:"requested_amount,omitempty"`
}

// Err converts a failed evaluation into the matching domain error, or nil.
func (e Evaluation) Err() error {
	if e.Allowed {
		return nil
	}
	switch e.BreachedLimit {
	case "min_deposit":
		return domain.ErrBelowMinimum("deposit", e.LimitValue)
	case "min_withdrawal":
		return domain.ErrBelowMinimum("withdrawal", e.LimitValue)
	case "daily_deposit":
		return domain.ErrLimitExceeded(fmt.Sprintf("daily deposit limit of %s reached", infra.FormatReais(e.LimitValue)))
	default:
		return domain.ErrLimitExceeded(fmt.Sprintf("single deposit limit is %s", infra.FormatReais(e.LimitValue)))
	}
}

// EvaluateDeposit checks a deposit amount. dailyDeposits is the running
// non-failed DEPOSIT total for the current day.
func EvaluateDeposit(l MoneyLimits, amount, dailyDeposits int64) Evaluation {
	if amount < l.MinDeposit {
		return Evaluation{BreachedLimit: "min_deposit", LimitValue: l.MinDeposit, RequestedAmt: amount}
	}
	if l.MaxSingleDeposit > 0 && amount > l.MaxSingleDeposit {
		return Evaluation{BreachedLimit: "single_deposit", LimitValue: l.MaxSingleDeposit, RequestedAmt: amount}
	}
	if l.DailyDepositMax > 0 && dailyDeposits+amount > l.DailyDepositMax {
		return Evaluation{BreachedLimit: "daily_deposit", LimitValue: l.DailyDepositMax, RequestedAmt: dailyDeposits + amount}
	}
	return Evaluation{Allowed: true}
}

// EvaluateWithdrawal checks a withdrawal amount against the minimum.
func EvaluateWithdrawal(l MoneyLimits, amount int64) Evaluation {
	if amount < l.MinWithdrawal {
		return Evaluation{BreachedLimit: "min_withdrawal", LimitValue: l.MinWithdrawal, RequestedAmt: amount}
	}
	return Evaluation{Allowed: true}
}
