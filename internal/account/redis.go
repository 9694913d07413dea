package account

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/model"
)

// cachedAccount is the Redis representation. The password hash travels with
// it so cached logins stay consistent with the primary.
type cachedAccount struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Nickname     string    `json:"nickname"`
	TotalAsset   string    `json:"total_asset"`
	CreatedAt    time.Time `json:"created_at"`
}

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) Create(ctx context.Context, acct *model.Account) error {
	if err := s.primary.Create(ctx, acct); err != nil {
		return err
	}
	s.cacheAccount(ctx, acct)
	return nil
}

func (s *CachedStore) GetByID(ctx context.Context, id string) (*model.Account, error) {
	data, err := s.rdb.Get(ctx, accountKey(id)).Bytes()
	if err == nil {
		if acct := decodeCached(data); acct != nil {
			return acct, nil
		}
	}

	acct, err := s.primary.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, acct)
	return acct, nil
}

func (s *CachedStore) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	// Try cache via username→id mapping.
	id, err := s.rdb.Get(ctx, usernameKey(username)).Result()
	if err == nil {
		return s.GetByID(ctx, id)
	}

	acct, err := s.primary.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	s.cacheAccount(ctx, acct)
	return acct, nil
}

func (s *CachedStore) UpdateTotalAsset(ctx context.Context, id string, totalAsset decimal.Decimal) error {
	if err := s.primary.UpdateTotalAsset(ctx, id, totalAsset); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, accountKey(id))
	return nil
}

func (s *CachedStore) cacheAccount(ctx context.Context, acct *model.Account) {
	data, err := json.Marshal(cachedAccount{
		ID:           acct.ID,
		Username:     acct.Username,
		PasswordHash: acct.PasswordHash,
		Nickname:     acct.Nickname,
		TotalAsset:   acct.TotalAsset.String(),
		CreatedAt:    acct.CreatedAt,
	})
	if err != nil {
		return
	}
	s.rdb.Set(ctx, accountKey(acct.ID), data, s.ttl)
	s.rdb.Set(ctx, usernameKey(acct.Username), acct.ID, s.ttl)
}

func decodeCached(data []byte) *model.Account {
	var c cachedAccount
	if json.Unmarshal(data, &c) != nil {
		return nil
	}
	total, err := decimal.NewFromString(c.TotalAsset)
	if err != nil {
		return nil
	}
	return &model.Account{
		ID:           c.ID,
		Username:     c.Username,
		PasswordHash: c.PasswordHash,
		Nickname:     c.Nickname,
		TotalAsset:   total,
		CreatedAt:    c.CreatedAt,
	}
}

func accountKey(id string) string        { return fmt.Sprintf("account:%s", id) }
func usernameKey(username string) string { return fmt.Sprintf("account:name:%s", username) }
