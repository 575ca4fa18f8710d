package guard

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/palpitai/platform/internal/domain"
)

const (
	MaxAttempts   = 5
	LockoutWindow = 15 * time.Minute
)

// Querier is the subset of pgxpool.Pool the lockout needs.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Lockout tracks login attempts in login_attempts and blocks an email after
// MaxAttempts failures within LockoutWindow.
type Lockout struct {
	db     Querier
	logger *slog.Logger
}

// NewLockout creates a Lockout over db.
func NewLockout(db Querier, logger *slog.Logger) *Lockout {
	return &Lockout{db: db, logger: logger}
}

// RecordAttempt inserts a login attempt row.
func (l *Lockout) RecordAttempt(ctx context.Context, email, realm, ip string, success bool) {
	_, err := l.db.Exec(ctx, `
		INSERT INTO login_attempts (email, realm, ip_address, success)
		VALUES (lower($1), $2, $3, $4)`,
		email, realm, ip, success)
	if err != nil {
		l.logger.Warn("record login attempt failed", "error", err)
	}
}

// CheckLocked returns ErrAccountLocked if the account has >= MaxAttempts failed
// logins within the lockout window. Database errors do not block the login.
func (l *Lockout) CheckLocked(ctx context.Context, email string) error {
	var count int
	err := l.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = lower($1) AND success = false
		  AND created_at > $2`,
		email, time.Now().Add(-LockoutWindow)).Scan(&count)
	if err != nil {
		l.logger.Warn("lockout check failed", "error", err)
		return nil
	}
	if count >= MaxAttempts {
		return domain.ErrAccountLocked("too many failed login attempts, try again later")
	}
	return nil
}
