package account

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account // id → account
	byName   map[string]string         // username → id
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*model.Account),
		byName:   make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[acct.Username]; ok {
		return ErrUsernameTaken
	}

	// Store a copy to avoid external mutation.
	cp := *acct
	s.accounts[acct.ID] = &cp
	s.byName[acct.Username] = acct.ID
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) GetByUsername(_ context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.accounts[id]
	return &cp, nil
}

func (s *MemoryStore) UpdateTotalAsset(_ context.Context, id string, totalAsset decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.TotalAsset = totalAsset
	return nil
}
