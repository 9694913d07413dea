// Package event defines the outbound messages the engine publishes and the
// Notifier interface the transport layer implements. The core never touches
// sockets; it hands envelopes to a Notifier and moves on.
package event

import (
	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/model"
)

// Message types.
const (
	TypeGameState    = "gameState"
	TypeTradeResult  = "tradeResult"
	TypeCards        = "cards"
	TypeNotification = "notification"
	TypeSettlement   = "settlement"
	TypeError        = "error"
)

// Message is the envelope every outbound event travels in.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Notifier delivers engine events to connected sessions. Implementations
// must not block the caller: the engine publishes from inside its
// serialized mutation handlers.
type Notifier interface {
	// Notify delivers a message to one session, if connected.
	Notify(playerID string, msg Message)

	// Broadcast delivers a message to every connected session.
	Broadcast(msg Message)
}

// StockView is one instrument as seen by one player: market state plus the
// player's own position in it.
type StockView struct {
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	PercentChange decimal.Decimal `json:"priceChange"`
	Volatility    float64         `json:"volatility"`
	Frozen        bool            `json:"frozen"`
	Position      int64           `json:"position"`
	AvgCost       decimal.Decimal `json:"averagePrice"`
}

// PlayerInfo is the per-player header of a game-state snapshot.
type PlayerInfo struct {
	PlayerID   string          `json:"clientId"`
	Nickname   string          `json:"nickname"`
	TotalAsset decimal.Decimal `json:"totalAsset"`
	Cash       decimal.Decimal `json:"cash"`
	InMatch    bool            `json:"inGame"`
}

// GameState is the per-player snapshot broadcast each round and after
// joins and money-card plays.
type GameState struct {
	Status        model.MatchStatus        `json:"status"`
	CurrentRound  int                      `json:"currentRound"`
	NextRoundTime int64                    `json:"nextRoundTime"` // unix millis, 0 when idle
	Stocks        []StockView              `json:"stocks"`
	Leaderboard   []model.LeaderboardEntry `json:"leaderboard"`
	PlayerInfo    PlayerInfo               `json:"playerInfo"`
}

// TradeResult reports a trade back to the acting player.
type TradeResult struct {
	Success   bool             `json:"success"`
	Reason    string           `json:"reason,omitempty"`
	NewCash   decimal.Decimal  `json:"newCash"`
	Positions []model.Position `json:"newPositions,omitempty"`
}

// CardsUpdate carries a player's full inventory after a draw or play.
type CardsUpdate struct {
	Cards []model.Card `json:"cards"`
}

// Notification is a human-readable notice (card effects, top-ups).
type Notification struct {
	Level   string `json:"type"` // success, warning, info
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Settlement wraps the end-of-match receipt sent to each settled player.
type Settlement struct {
	Receipt model.SettlementReceipt `json:"details"`
	Message string                  `json:"message"`
}

// Error reports a rejected command back to its sender only.
type Error struct {
	Reason string `json:"reason"`
}
