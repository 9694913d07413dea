// Package ledger owns per-session player records: cash, positions, match
// membership, and the persistent total asset carried across matches. All
// mutations are validated up front and applied atomically — a rejected
// trade leaves no partial state behind.
package ledger

import (
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/config"
	"github.com/stockparty/game-engine/internal/model"
)

var (
	// ErrUnknownPlayer is returned for a session id with no record.
	ErrUnknownPlayer = errors.New("ledger: unknown player")

	// ErrAlreadyInMatch is returned when joining twice.
	ErrAlreadyInMatch = errors.New("ledger: player already in match")

	// ErrNotInMatch is returned for trades outside match membership.
	ErrNotInMatch = errors.New("ledger: player not in match")

	// ErrInsufficientFunds is returned when cash (or total asset, for
	// joins) cannot cover the amount.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInsufficientPosition is returned when selling more than held.
	ErrInsufficientPosition = errors.New("ledger: insufficient position")

	// ErrUnknownInstrument is returned for trades in an uncatalogued code.
	ErrUnknownInstrument = errors.New("ledger: unknown instrument code")
)

// TradeResult reports the post-trade state for the acting player.
type TradeResult struct {
	Cash      decimal.Decimal  `json:"newCash"`
	Positions []model.Position `json:"newPositions"`
	Code      string           `json:"code"`
	Side      model.TradeSide  `json:"side"`
	Quantity  int64            `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
}

// Ledger holds every registered session. Not safe for concurrent use on its
// own — the match controller serializes all access.
type Ledger struct {
	players     map[string]*model.Player
	instruments []config.InstrumentConfig
	entryFee    decimal.Decimal
	joinSeq     int
}

// New creates an empty ledger over the configured instrument catalog.
func New(cfg config.Config) *Ledger {
	return &Ledger{
		players:     make(map[string]*model.Player),
		instruments: cfg.Instruments,
		entryFee:    cfg.EntryFee,
	}
}

// Register creates a session record outside the match: no cash, no
// positions. Re-registering an id refreshes the account snapshot without
// touching in-match state.
func (l *Ledger) Register(playerID, nickname string, totalAsset decimal.Decimal) *model.Player {
	if p, ok := l.players[playerID]; ok {
		p.Nickname = nickname
		if !p.InMatch {
			p.TotalAsset = totalAsset
		}
		return p
	}
	l.joinSeq++
	p := &model.Player{
		ID:         playerID,
		Nickname:   nickname,
		Cash:       decimal.Zero,
		TotalAsset: totalAsset,
		JoinSeq:    l.joinSeq,
	}
	l.players[playerID] = p
	return p
}

// Join enters the player into the current match: deducts the entry fee from
// the persistent total asset, stakes it as match cash, and opens one zero
// position per instrument.
func (l *Ledger) Join(playerID string) (*model.Player, error) {
	p, ok := l.players[playerID]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if p.InMatch {
		return nil, ErrAlreadyInMatch
	}
	if p.TotalAsset.LessThan(l.entryFee) {
		return nil, ErrInsufficientFunds
	}

	p.TotalAsset = p.TotalAsset.Sub(l.entryFee)
	p.Cash = l.entryFee
	p.Positions = l.emptyPositions()
	p.InMatch = true

	slog.Info("player joined match",
		"player", playerID,
		"nickname", p.Nickname,
		"cash", p.Cash.String(),
		"total_asset", p.TotalAsset.String(),
	)
	return p, nil
}

// Trade executes a buy or sell of exactly one unit at the given market
// price. Requested quantities are normalized to the fixed unit — the
// upstream client only ever sends 1.
func (l *Ledger) Trade(playerID, code string, side model.TradeSide, price decimal.Decimal) (TradeResult, error) {
	p, ok := l.players[playerID]
	if !ok {
		return TradeResult{}, ErrUnknownPlayer
	}
	if !p.InMatch {
		return TradeResult{}, ErrNotInMatch
	}

	pos := l.findPosition(p, code)
	if pos == nil {
		return TradeResult{}, ErrUnknownInstrument
	}

	const qty int64 = 1
	cost := price.Mul(decimal.NewFromInt(qty))

	switch side {
	case model.Buy:
		if p.Cash.LessThan(cost) {
			return TradeResult{}, ErrInsufficientFunds
		}
		p.Cash = p.Cash.Sub(cost)
		oldQty := pos.Quantity
		pos.Quantity += qty
		// Weighted average cost; sells never touch it.
		pos.AvgCost = pos.AvgCost.Mul(decimal.NewFromInt(oldQty)).
			Add(cost).
			Div(decimal.NewFromInt(pos.Quantity))

	case model.Sell:
		if pos.Quantity < qty {
			return TradeResult{}, ErrInsufficientPosition
		}
		p.Cash = p.Cash.Add(cost)
		pos.Quantity -= qty
		if pos.Quantity == 0 {
			pos.AvgCost = decimal.Zero
		}

	default:
		return TradeResult{}, errors.New("ledger: invalid trade side")
	}

	slog.Info("trade executed",
		"player", playerID,
		"code", code,
		"side", string(side),
		"price", price.String(),
		"cash", p.Cash.String(),
		"quantity", pos.Quantity,
	)

	return TradeResult{
		Cash:      p.Cash,
		Positions: clonePositions(p.Positions),
		Code:      code,
		Side:      side,
		Quantity:  qty,
		Price:     price,
	}, nil
}

// CreditCash adds amount straight to the player's match cash (money cards).
func (l *Ledger) CreditCash(playerID string, amount decimal.Decimal) (decimal.Decimal, error) {
	p, ok := l.players[playerID]
	if !ok {
		return decimal.Decimal{}, ErrUnknownPlayer
	}
	if !p.InMatch {
		return decimal.Decimal{}, ErrNotInMatch
	}
	p.Cash = p.Cash.Add(amount)
	return p.Cash, nil
}

// Settle closes out a player at match end: position value at the given
// prices plus remaining cash plus the entry-fee refund all fold back into
// the persistent total asset, and the match state is cleared. Calling it
// again for the same player is a no-op (membership flag already cleared).
func (l *Ledger) Settle(playerID string, prices map[string]decimal.Decimal) (model.SettlementReceipt, error) {
	p, ok := l.players[playerID]
	if !ok {
		return model.SettlementReceipt{}, ErrUnknownPlayer
	}
	if !p.InMatch {
		return model.SettlementReceipt{}, ErrNotInMatch
	}

	positionValue := decimal.Zero
	for _, pos := range p.Positions {
		if pos.Quantity == 0 {
			continue
		}
		positionValue = positionValue.Add(prices[pos.Code].Mul(decimal.NewFromInt(pos.Quantity)))
	}

	matchValue := p.Cash.Add(positionValue)
	receipt := model.SettlementReceipt{
		PlayerID:       playerID,
		Nickname:       p.Nickname,
		Cash:           p.Cash,
		PositionValue:  positionValue,
		MatchValue:     matchValue,
		EntryFeeRefund: l.entryFee,
		OldTotalAsset:  p.TotalAsset,
	}

	p.TotalAsset = p.TotalAsset.Add(matchValue).Add(l.entryFee)
	receipt.NewTotalAsset = p.TotalAsset

	p.InMatch = false
	p.Cash = decimal.Zero
	p.Positions = l.emptyPositions()

	slog.Info("player settled",
		"player", playerID,
		"match_value", matchValue.String(),
		"new_total_asset", p.TotalAsset.String(),
	)
	return receipt, nil
}

// TopUp raises a below-fee total asset back to the entry fee so a broke
// player can always buy the next ticket. Reports whether anything changed.
func (l *Ledger) TopUp(playerID string) (bool, error) {
	p, ok := l.players[playerID]
	if !ok {
		return false, ErrUnknownPlayer
	}
	if p.InMatch || p.TotalAsset.GreaterThanOrEqual(l.entryFee) {
		return false, nil
	}
	p.TotalAsset = l.entryFee
	return true, nil
}

// Remove drops a session entirely (disconnect grace window elapsed).
func (l *Ledger) Remove(playerID string) {
	delete(l.players, playerID)
}

// Get returns a copy of one player's record.
func (l *Ledger) Get(playerID string) (model.Player, error) {
	p, ok := l.players[playerID]
	if !ok {
		return model.Player{}, ErrUnknownPlayer
	}
	cp := *p
	cp.Positions = clonePositions(p.Positions)
	return cp, nil
}

// ActivePlayers returns copies of all in-match players ordered by
// registration sequence.
func (l *Ledger) ActivePlayers() []model.Player {
	return l.selectPlayers(true)
}

// AllPlayers returns copies of every registered session in registration
// order.
func (l *Ledger) AllPlayers() []model.Player {
	return l.selectPlayers(false)
}

func (l *Ledger) selectPlayers(activeOnly bool) []model.Player {
	out := make([]model.Player, 0, len(l.players))
	for _, p := range l.players {
		if activeOnly && !p.InMatch {
			continue
		}
		cp := *p
		cp.Positions = clonePositions(p.Positions)
		out = append(out, cp)
	}
	// Registration order keeps snapshots and tiebreaks deterministic.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].JoinSeq < out[j-1].JoinSeq; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (l *Ledger) emptyPositions() []model.Position {
	positions := make([]model.Position, 0, len(l.instruments))
	for _, inst := range l.instruments {
		positions = append(positions, model.Position{Code: inst.Code, AvgCost: decimal.Zero})
	}
	return positions
}

func (l *Ledger) findPosition(p *model.Player, code string) *model.Position {
	for i := range p.Positions {
		if p.Positions[i].Code == code {
			return &p.Positions[i]
		}
	}
	return nil
}

func clonePositions(in []model.Position) []model.Position {
	out := make([]model.Position, len(in))
	copy(out, in)
	return out
}
