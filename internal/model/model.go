// Package model defines the core domain types shared across the game engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Directional bias is a probability, not money, and stays float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchStatus is the lifecycle state of the current match.
type MatchStatus string

const (
	StatusWaiting  MatchStatus = "waiting"
	StatusRunning  MatchStatus = "running"
	StatusFinished MatchStatus = "finished"
)

// FrozenBias is the sentinel bias value marking a frozen instrument.
// Any negative bias means frozen; this is the value the freeze card writes.
const FrozenBias = -99.5

// NeutralBias is the bias of an instrument with no forced direction.
const NeutralBias = 0.5

// Instrument is one tradable stock. Price is an integer number of currency
// units (the round step floors), held as decimal for arithmetic with money.
// Volatility is the declared per-stock tuning parameter shown to clients;
// the round step itself is fixed.
type Instrument struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	PercentChange decimal.Decimal `json:"priceChange"` // vs previous round, 2dp
	Volatility    float64         `json:"volatility"`
	Bias          float64         `json:"-"` // 0.5 neutral, >0.5 up, <0.5 down, <0 frozen
}

// Frozen reports whether the instrument's price is frozen this round.
func (i Instrument) Frozen() bool { return i.Bias < 0 }

// Position is a player's holding in one instrument.
// Invariant: Quantity == 0 ⇒ AvgCost == 0. Quantity is never negative.
type Position struct {
	Code     string          `json:"code"`
	Quantity int64           `json:"quantity"`
	AvgCost  decimal.Decimal `json:"averagePrice"`
}

// Player is one connected session's game state. TotalAsset is the persistent
// account value carried across matches; Cash and Positions exist only while
// InMatch is true.
type Player struct {
	ID         string          `json:"clientId"`
	Nickname   string          `json:"nickname"`
	InMatch    bool            `json:"inGame"`
	Cash       decimal.Decimal `json:"cash"`
	TotalAsset decimal.Decimal `json:"totalAsset"`
	Positions  []Position      `json:"positions"`
	JoinSeq    int             `json:"-"` // session registration order, leaderboard tiebreak
}

// Position returns the player's position in code, or a zero position.
func (p *Player) Position(code string) Position {
	for _, pos := range p.Positions {
		if pos.Code == code {
			return pos
		}
	}
	return Position{Code: code}
}

// TradeSide is the direction of a trade.
type TradeSide string

const (
	Buy  TradeSide = "buy"
	Sell TradeSide = "sell"
)

// TargetKind says what a card is played against.
type TargetKind string

const (
	TargetInstrument TargetKind = "stock"
	TargetPlayer     TargetKind = "player"
)

// EffectTiming says when a card's effect resolves.
type EffectTiming string

const (
	TimingCurrent EffectTiming = "current"
	TimingNext    EffectTiming = "next"
)

// EffectKind is the price direction an active effect forces.
type EffectKind string

const (
	EffectRise   EffectKind = "rise"
	EffectFall   EffectKind = "fall"
	EffectFreeze EffectKind = "freeze"
)

// CardTemplate is one entry in the fixed card catalog.
type CardTemplate struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Rarity   string       `json:"rarity"` // UR, SR, R, N — display weighting only
	Target   TargetKind   `json:"target"`
	Timing   EffectTiming `json:"timing"`
	Duration int          `json:"duration"` // rounds
	Effect   string       `json:"effect"`   // user-facing description
}

// Card is a drawn instance of a template held in a player's inventory.
type Card struct {
	CardTemplate
	InstanceID string `json:"instanceId"`
}

// ActiveEffect is a card effect bound to an instrument. One per instrument;
// a newer effect overwrites the previous (last-write-wins).
type ActiveEffect struct {
	Code     string
	Kind     EffectKind
	Duration int
	Timing   EffectTiming
	Priority int
	SourceID string // player who played the card
}

// LeaderboardEntry is one row of the ranked standings.
type LeaderboardEntry struct {
	PlayerID      string          `json:"clientId"`
	Nickname      string          `json:"nickname"`
	TotalValue    decimal.Decimal `json:"totalValue"`
	Cash          decimal.Decimal `json:"cash"`
	PositionValue decimal.Decimal `json:"positionValue"`
}

// SettlementReceipt records one player's end-of-match settlement.
type SettlementReceipt struct {
	PlayerID       string          `json:"clientId"`
	Nickname       string          `json:"nickname"`
	Cash           decimal.Decimal `json:"cash"`
	PositionValue  decimal.Decimal `json:"positionValue"`
	MatchValue     decimal.Decimal `json:"matchValue"` // cash + position value
	EntryFeeRefund decimal.Decimal `json:"entryFeeRefund"`
	OldTotalAsset  decimal.Decimal `json:"oldTotalAsset"`
	NewTotalAsset  decimal.Decimal `json:"newTotalAsset"`
}

// Account is the persistent record behind a session. Survives matches and
// reconnects; the store implementations own durability.
type Account struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"`
	Nickname     string          `json:"nickname"`
	TotalAsset   decimal.Decimal `json:"totalAsset"`
	CreatedAt    time.Time       `json:"createdAt"`
}
