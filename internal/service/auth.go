package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/palpitai/platform/internal/auth"
	"github.com/palpitai/platform/internal/domain"
	"github.com/palpitai/platform/internal/guard"
	"github.com/palpitai/platform/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles user registration and login.
type AuthService struct {
	pool    *pgxpool.Pool
	users   repository.UserRepository
	wallets repository.WalletRepository
	outbox  repository.OutboxRepository
	jwtMgr  *auth.JWTManager
	lockout *guard.Lockout
	logger  *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	pool *pgxpool.Pool,
	users repository.UserRepository,
	wallets repository.WalletRepository,
	outbox repository.OutboxRepository,
	jwtMgr *auth.JWTManager,
	lockout *guard.Lockout,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		pool:    pool,
		users:   users,
		wallets: wallets,
		outbox:  outbox,
		jwtMgr:  jwtMgr,
		lockout: lockout,
		logger:  logger,
	}
}

// RegisterInput holds the registration request fields.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	CPF      string `json:"cpf"`
	Password string `json:"password"`
}

// Validate checks the registration fields.
func (in RegisterInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.ErrValidation("name is required")
	}
	if err := domain.ValidateEmail(in.Email); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateCPF(in.CPF); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if len(in.Password) < 8 {
		return domain.ErrValidation("password must be at least 8 characters")
	}
	return nil
}

// LoginInput holds the login request fields.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned on successful registration or login.
type AuthResult struct {
	Token  string      `json:"token"`
	UserID uuid.UUID   `json:"userId"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
}

// Register creates a user and a zero-balance wallet in one transaction.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	user, err := s.createUser(ctx, input, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// EnsureAdmin creates an ADMIN account for email unless one is already registered.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	existing, err := s.users.FindByEmail(ctx, s.pool, email)
	if err != nil {
		return domain.ErrInternal("find user", err)
	}
	if existing != nil {
		return nil
	}
	_, err = s.createUser(ctx, RegisterInput{
		Name:     "Administrador",
		Email:    email,
		Password: password,
	}, domain.RoleAdmin)
	return err
}

// Login authenticates a user and returns a JWT in the realm matching their role.
// Failed attempts count toward the lockout.
func (s *AuthService) Login(ctx context.Context, input LoginInput, ip string) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if err := s.lockout.CheckLocked(ctx, email); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, s.pool, email)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		s.lockout.RecordAttempt(ctx, email, "", ip, false)
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	s.lockout.RecordAttempt(ctx, email, string(auth.RealmForRole(user.Role)), ip, true)
	return s.issue(user)
}

// Me returns the authenticated user's profile.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, s.pool, userID)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return user, nil
}

func (s *AuthService) createUser(ctx context.Context, input RegisterInput, role domain.Role) (*domain.User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if role == domain.RoleUser {
		if err := input.Validate(); err != nil {
			return nil, err
		}
	} else if len(input.Password) < 8 {
		return nil, domain.ErrValidation("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(input.Name),
		Email:        input.Email,
		CPF:          domain.NormalizeCPF(input.CPF),
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	wallet := &domain.Wallet{ID: uuid.New(), UserID: user.ID}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := s.users.Create(ctx, tx, user); err != nil {
			return err
		}
		if err := s.wallets.Create(ctx, tx, wallet); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, domain.NewUserCreatedEvent(user.ID, wallet.ID, user.Email))
	})
	if err != nil {
		return nil, internalErr("register user", err)
	}

	s.logger.Info("user registered", "user_id", user.ID, "role", role)
	return user, nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, err := s.jwtMgr.GenerateToken(auth.RealmForRole(user.Role), user.ID, user.Email, user.Role)
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}
	return &AuthResult{
		Token:  token,
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Role:   user.Role,
	}, nil
}
