// Package account owns persistent player accounts: registration, login,
// and the total asset carried across matches. PostgreSQL is the source of
// truth; Redis provides a read-through cache; the in-memory store backs
// tests and single-node development.
package account

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/model"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account: not found")

	// ErrUsernameTaken is returned when registering a duplicate username.
	ErrUsernameTaken = errors.New("account: username already taken")

	// ErrBadCredentials is returned for a wrong username or password.
	// One error for both, so login failures never leak which was wrong.
	ErrBadCredentials = errors.New("account: invalid username or password")
)

// Store is the persistence interface for accounts.
type Store interface {
	// Create persists a new account. Fails ErrUsernameTaken on duplicates.
	Create(ctx context.Context, acct *model.Account) error

	// GetByID retrieves an account by its id.
	GetByID(ctx context.Context, id string) (*model.Account, error)

	// GetByUsername retrieves an account by its login name.
	GetByUsername(ctx context.Context, username string) (*model.Account, error)

	// UpdateTotalAsset overwrites the persistent asset total after
	// settlement or a welfare top-up.
	UpdateTotalAsset(ctx context.Context, id string, totalAsset decimal.Decimal) error
}
