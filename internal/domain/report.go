package domain

// PlatformStats is the admin dashboard summary.
type PlatformStats struct {
	Users              int   `json:"users"`
	Bets               int   `json:"bets"`
	ActiveRounds       int   `json:"active_rounds"`
	TotalVolume        int64 `json:"total_volume"`
	ReserveFund        int64 `json:"reserve_fund"`
	PendingWithdrawals int   `json:"pending_withdrawals"`
}

// Page is an offset pagination request.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps page to >= 1 and limit to 1..100 (default 20).
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	return p
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}
