package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockparty/game-engine/internal/model"
)

// Service implements registration and login over a Store. Passwords are
// bcrypt-hashed; plaintext never reaches the store.
type Service struct {
	store        Store
	initialAsset decimal.Decimal
}

// NewService creates an account service. initialAsset is the starter grant
// credited to every new account.
func NewService(store Store, initialAsset decimal.Decimal) *Service {
	return &Service{store: store, initialAsset: initialAsset}
}

// Register creates a new account with the starter grant.
func (s *Service) Register(ctx context.Context, username, password, nickname string) (*model.Account, error) {
	if username == "" || password == "" || nickname == "" {
		return nil, errors.New("account: username, password, and nickname are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	acct := &model.Account{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		Nickname:     nickname,
		TotalAsset:   s.initialAsset,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.Create(ctx, acct); err != nil {
		return nil, err
	}

	slog.Info("account registered",
		"id", acct.ID,
		"username", username,
		"starter_grant", s.initialAsset.String(),
	)
	return acct, nil
}

// Login verifies credentials and returns the account snapshot.
func (s *Service) Login(ctx context.Context, username, password string) (*model.Account, error) {
	acct, err := s.store.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return acct, nil
}

// Get returns the account snapshot for a session id.
func (s *Service) Get(ctx context.Context, id string) (*model.Account, error) {
	return s.store.GetByID(ctx, id)
}

// SaveTotalAsset persists a settled (or topped-up) asset total.
func (s *Service) SaveTotalAsset(ctx context.Context, id string, totalAsset decimal.Decimal) error {
	return s.store.UpdateTotalAsset(ctx, id, totalAsset)
}
