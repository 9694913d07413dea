package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Total assets are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the accounts table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			nickname      TEXT NOT NULL,
			total_asset   NUMERIC NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, acct *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, username, password_hash, nickname, total_asset, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		acct.ID, acct.Username, acct.PasswordHash, acct.Nickname,
		acct.TotalAsset.String(), acct.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return ErrUsernameTaken
	}
	return err
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return s.get(ctx,
		`SELECT id, username, password_hash, nickname, total_asset::TEXT, created_at
		 FROM accounts WHERE id = $1`, id)
}

func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	return s.get(ctx,
		`SELECT id, username, password_hash, nickname, total_asset::TEXT, created_at
		 FROM accounts WHERE username = $1`, username)
}

func (s *PostgresStore) get(ctx context.Context, query string, arg any) (*model.Account, error) {
	var acct model.Account
	var total string

	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Nickname,
			&total, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	acct.TotalAsset, _ = decimal.NewFromString(total)
	return &acct, nil
}

func (s *PostgresStore) UpdateTotalAsset(ctx context.Context, id string, totalAsset decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET total_asset = $2::NUMERIC WHERE id = $1`,
		id, totalAsset.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
