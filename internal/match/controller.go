// Package match owns the match lifecycle: the waiting→running→finished
// state machine, the round timer, and the per-round drive of the market,
// card engine, ledger, and leaderboard. Exactly one Controller instance
// holds all mutable match state.
//
// Every inbound command and every timer callback runs to completion under
// one mutex, so a trade and a round price update never interleave partially.
// No handler blocks on I/O; the transport layer receives events through the
// Notifier and does its own buffering.
package match

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stockparty/game-engine/internal/card"
	"github.com/stockparty/game-engine/internal/config"
	"github.com/stockparty/game-engine/internal/event"
	"github.com/stockparty/game-engine/internal/leaderboard"
	"github.com/stockparty/game-engine/internal/ledger"
	"github.com/stockparty/game-engine/internal/market"
	"github.com/stockparty/game-engine/internal/metrics"
	"github.com/stockparty/game-engine/internal/model"
)

// ErrMatchEnded is returned for joins while settlement is showing.
var ErrMatchEnded = errors.New("match: match has ended, wait for the next one")

// Controller is the single authority over match state. All cross-component
// references are injected at construction; nothing here is a global.
type Controller struct {
	mu sync.Mutex

	cfg      config.Config
	market   *market.Market
	cards    *card.Engine
	ledger   *ledger.Ledger
	notifier event.Notifier

	status        model.MatchStatus
	currentRound  int
	nextRoundTime time.Time
	settling      bool
	board         []model.LeaderboardEntry

	roundTimer  *time.Timer
	matchTimer  *time.Timer
	graceTimers map[string]*time.Timer
	closed      bool
}

// NewController wires the orchestrator. Call Start to begin the first match.
func NewController(cfg config.Config, mkt *market.Market, cards *card.Engine, led *ledger.Ledger, notifier event.Notifier) *Controller {
	return &Controller{
		cfg:         cfg,
		market:      mkt,
		cards:       cards,
		ledger:      led,
		notifier:    notifier,
		status:      model.StatusWaiting,
		graceTimers: make(map[string]*time.Timer),
	}
}

// Start launches the first match.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startNewMatchLocked()
}

// Stop cancels every timer. The controller cannot be restarted.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimersLocked()
	for id, t := range c.graceTimers {
		t.Stop()
		delete(c.graceTimers, id)
	}
}

// Status returns the current lifecycle state.
func (c *Controller) Status() model.MatchStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// CurrentRound returns the 1-based round counter.
func (c *Controller) CurrentRound() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRound
}

// Leaderboard returns the last computed standings.
func (c *Controller) Leaderboard() []model.LeaderboardEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.LeaderboardEntry, len(c.board))
	copy(out, c.board)
	return out
}

// --- Inbound commands (all serialized under the controller mutex) ---

// Init registers a session with its persistent account snapshot and sends
// the initial game-state view. A below-fee account is topped up to the
// entry fee so the player can always afford the next ticket.
func (c *Controller) Init(playerID string, acct model.Account) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.graceTimers[playerID]; ok {
		t.Stop()
		delete(c.graceTimers, playerID)
	}

	c.ledger.Register(playerID, acct.Nickname, acct.TotalAsset)
	c.cards.InitPlayer(playerID)

	if topped, _ := c.ledger.TopUp(playerID); topped {
		c.notifier.Notify(playerID, event.Message{
			Type: event.TypeNotification,
			Payload: event.Notification{
				Level:   "info",
				Title:   "Stipend",
				Message: fmt.Sprintf("Your balance was topped up to %s so you can enter the next match.", c.cfg.EntryFee),
			},
		})
	}

	c.board = c.computeLeaderboardLocked()
	c.notifier.Notify(playerID, c.snapshotMessageLocked(playerID))
	c.notifier.Notify(playerID, c.cardsMessage(playerID))
}

// JoinMatch enters the player into the current match.
func (c *Controller) JoinMatch(playerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == model.StatusFinished {
		c.notifyError(playerID, ErrMatchEnded)
		return ErrMatchEnded
	}

	if _, err := c.ledger.Join(playerID); err != nil {
		c.notifyError(playerID, err)
		return err
	}

	metrics.ActivePlayers.Set(float64(len(c.ledger.ActivePlayers())))
	c.board = c.computeLeaderboardLocked()
	c.broadcastSnapshotsLocked()
	return nil
}

// Trade executes a one-unit buy or sell at the authoritative market price.
// The requested quantity is accepted for wire compatibility and normalized.
func (c *Controller) Trade(playerID, code string, side model.TradeSide, _ int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	price, err := c.market.Price(code)
	if err != nil {
		c.notifyTradeFailure(playerID, err)
		return err
	}

	res, err := c.ledger.Trade(playerID, code, side, price)
	if err != nil {
		c.notifyTradeFailure(playerID, err)
		return err
	}

	metrics.TradesTotal.WithLabelValues(string(side)).Inc()
	c.notifier.Notify(playerID, event.Message{
		Type: event.TypeTradeResult,
		Payload: event.TradeResult{
			Success:   true,
			NewCash:   res.Cash,
			Positions: res.Positions,
		},
	})
	return nil
}

// UseCard consumes a card from the player's inventory and applies its
// effect. Failures go back to the acting player only.
func (c *Controller) UseCard(playerID, instanceID, targetID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.cards.Use(playerID, instanceID, targetID)
	if err != nil {
		c.notifyError(playerID, err)
		return err
	}

	metrics.CardsUsed.WithLabelValues(res.Card.ID).Inc()
	c.notifier.Notify(playerID, event.Message{
		Type:    event.TypeCards,
		Payload: event.CardsUpdate{Cards: res.Inventory},
	})

	if res.Amount.IsPositive() {
		// Money landed; show it to the player right away.
		c.notifier.Notify(playerID, event.Message{
			Type: event.TypeNotification,
			Payload: event.Notification{
				Level:   "success",
				Title:   "Money received",
				Message: res.Notice,
			},
		})
		c.board = c.computeLeaderboardLocked()
		c.notifier.Notify(playerID, c.snapshotMessageLocked(playerID))
	}

	if res.Code != "" {
		// Everyone gets to sweat about the incoming move.
		c.notifier.Broadcast(event.Message{
			Type: event.TypeNotification,
			Payload: event.Notification{
				Level:   "warning",
				Title:   "Stock status change",
				Message: res.Notice,
			},
		})
	}
	return nil
}

// RequestCards resends the player's inventory snapshot.
func (c *Controller) RequestCards(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier.Notify(playerID, c.cardsMessage(playerID))
}

// MarkDisconnected starts the removal grace window for a dropped session.
// The match state survives until the window elapses, so a quick reconnect
// carries cash, positions, and cards forward.
func (c *Controller) MarkDisconnected(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if t, ok := c.graceTimers[playerID]; ok {
		t.Stop()
	}
	c.graceTimers[playerID] = time.AfterFunc(c.cfg.GraceWindow, func() {
		c.removeExpiredSession(playerID)
	})
}

// MarkReconnected cancels a pending removal.
func (c *Controller) MarkReconnected(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.graceTimers[playerID]; ok {
		t.Stop()
		delete(c.graceTimers, playerID)
	}
}

func (c *Controller) removeExpiredSession(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if _, ok := c.graceTimers[playerID]; !ok {
		return // reconnected in the meantime
	}
	delete(c.graceTimers, playerID)

	c.ledger.Remove(playerID)
	c.cards.ClearPlayer(playerID)
	metrics.ActivePlayers.Set(float64(len(c.ledger.ActivePlayers())))
	c.board = c.computeLeaderboardLocked()
	slog.Info("session expired", "player", playerID)
}

// --- Match lifecycle ---

func (c *Controller) startNewMatchLocked() {
	if c.closed {
		return
	}
	c.stopTimersLocked()

	c.status = model.StatusRunning
	c.currentRound = 1
	c.settling = false
	c.board = nil
	c.nextRoundTime = time.Now().Add(c.cfg.RoundInterval)

	c.market.Initialize()
	c.cards.ClearEffects()

	c.roundTimer = time.AfterFunc(c.cfg.RoundInterval, c.advanceRound)

	slog.Info("match started",
		"round_interval", c.cfg.RoundInterval,
		"max_rounds", c.cfg.MaxRounds,
	)
	c.broadcastSnapshotsLocked()
}

// advanceRound is the round timer callback. It is rearmed unconditionally
// while the match runs, regardless of per-player errors during the tick.
func (c *Controller) advanceRound() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.status != model.StatusRunning {
		return
	}

	if c.currentRound >= c.cfg.MaxRounds {
		c.finishMatchLocked()
		return
	}

	c.currentRound++

	// Pending card effects resolve into forced directions, prices move
	// under them, then every bias returns to neutral: effects last exactly
	// one round on top of their own duration bookkeeping.
	c.cards.ProcessEffects()
	c.market.UpdateRound()
	c.market.ResetBiasAll()

	active := c.ledger.ActivePlayers()
	ids := make([]string, 0, len(active))
	for _, p := range active {
		ids = append(ids, p.ID)
	}
	for id, inv := range c.cards.Distribute(ids) {
		c.notifier.Notify(id, event.Message{
			Type:    event.TypeCards,
			Payload: event.CardsUpdate{Cards: inv},
		})
	}

	c.board = c.computeLeaderboardLocked()
	c.nextRoundTime = time.Now().Add(c.cfg.RoundInterval)
	c.roundTimer = time.AfterFunc(c.cfg.RoundInterval, c.advanceRound)

	metrics.RoundsTotal.Inc()
	slog.Info("round advanced", "round", c.currentRound)
	c.broadcastSnapshotsLocked()
}

// finishMatchLocked settles every active player and schedules the next
// match. The settling flag guards against overlapping settlement runs.
func (c *Controller) finishMatchLocked() {
	if c.settling {
		return
	}
	c.settling = true

	if c.roundTimer != nil {
		c.roundTimer.Stop()
		c.roundTimer = nil
	}

	c.status = model.StatusFinished
	c.nextRoundTime = time.Now().Add(c.cfg.MatchInterval)

	prices := c.market.PriceTable()
	for _, p := range c.ledger.ActivePlayers() {
		receipt, err := c.ledger.Settle(p.ID, prices)
		if err != nil {
			slog.Error("settlement failed", "player", p.ID, "err", err)
			continue
		}
		c.cards.ClearPlayer(p.ID)
		c.notifier.Notify(p.ID, event.Message{
			Type: event.TypeSettlement,
			Payload: event.Settlement{
				Receipt: receipt,
				Message: settlementMessage(receipt),
			},
		})
	}
	c.cards.ClearEffects()

	metrics.MatchesTotal.Inc()
	metrics.ActivePlayers.Set(0)

	c.matchTimer = time.AfterFunc(c.cfg.MatchInterval, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.startNewMatchLocked()
	})

	c.settling = false
	slog.Info("match finished", "next_match_in", c.cfg.MatchInterval)
	c.broadcastSnapshotsLocked()
}

func (c *Controller) stopTimersLocked() {
	if c.roundTimer != nil {
		c.roundTimer.Stop()
		c.roundTimer = nil
	}
	if c.matchTimer != nil {
		c.matchTimer.Stop()
		c.matchTimer = nil
	}
}

// --- Snapshots and notification plumbing ---

func (c *Controller) computeLeaderboardLocked() []model.LeaderboardEntry {
	return leaderboard.Compute(c.ledger.AllPlayers(), c.market.PriceTable())
}

func (c *Controller) snapshotMessageLocked(playerID string) event.Message {
	return event.Message{Type: event.TypeGameState, Payload: c.snapshotLocked(playerID)}
}

func (c *Controller) snapshotLocked(playerID string) event.GameState {
	p, err := c.ledger.Get(playerID)
	if err != nil {
		p = model.Player{ID: playerID}
	}

	stocks := make([]event.StockView, 0, len(c.cfg.Instruments))
	for _, inst := range c.market.Quotes() {
		pos := p.Position(inst.Code)
		stocks = append(stocks, event.StockView{
			Code:          inst.Code,
			Name:          inst.Name,
			Price:         inst.Price,
			PercentChange: inst.PercentChange,
			Volatility:    inst.Volatility,
			Frozen:        inst.Frozen(),
			Position:      pos.Quantity,
			AvgCost:       pos.AvgCost,
		})
	}

	var nextRound int64
	if !c.nextRoundTime.IsZero() {
		nextRound = c.nextRoundTime.UnixMilli()
	}

	return event.GameState{
		Status:        c.status,
		CurrentRound:  c.currentRound,
		NextRoundTime: nextRound,
		Stocks:        stocks,
		Leaderboard:   c.board,
		PlayerInfo: event.PlayerInfo{
			PlayerID:   p.ID,
			Nickname:   p.Nickname,
			TotalAsset: p.TotalAsset,
			Cash:       p.Cash,
			InMatch:    p.InMatch,
		},
	}
}

func (c *Controller) broadcastSnapshotsLocked() {
	for _, p := range c.ledger.AllPlayers() {
		c.notifier.Notify(p.ID, c.snapshotMessageLocked(p.ID))
	}
}

func (c *Controller) cardsMessage(playerID string) event.Message {
	return event.Message{
		Type:    event.TypeCards,
		Payload: event.CardsUpdate{Cards: c.cards.Cards(playerID)},
	}
}

func (c *Controller) notifyError(playerID string, err error) {
	c.notifier.Notify(playerID, event.Message{
		Type:    event.TypeError,
		Payload: event.Error{Reason: Reason(err)},
	})
}

func (c *Controller) notifyTradeFailure(playerID string, err error) {
	metrics.TradeRejections.WithLabelValues(Reason(err)).Inc()
	c.notifier.Notify(playerID, event.Message{
		Type:    event.TypeTradeResult,
		Payload: event.TradeResult{Success: false, Reason: Reason(err)},
	})
}

// Reason folds engine errors into the short strings clients show.
func Reason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient funds"
	case errors.Is(err, ledger.ErrInsufficientPosition):
		return "insufficient position"
	case errors.Is(err, ledger.ErrAlreadyInMatch):
		return "already in match"
	case errors.Is(err, ledger.ErrNotInMatch):
		return "not in match"
	case errors.Is(err, ledger.ErrUnknownPlayer), errors.Is(err, card.ErrUnknownPlayer):
		return "unknown session"
	case errors.Is(err, ledger.ErrUnknownInstrument), errors.Is(err, market.ErrUnknownInstrument):
		return "unknown stock"
	case errors.Is(err, card.ErrCardNotFound):
		return "card not found"
	case errors.Is(err, card.ErrInvalidTarget):
		return "invalid target"
	case errors.Is(err, card.ErrTargetFrozen):
		return "target is frozen"
	case errors.Is(err, ErrMatchEnded):
		return "match ended"
	default:
		return err.Error()
	}
}

func settlementMessage(r model.SettlementReceipt) string {
	return fmt.Sprintf(
		"Match settled:\nposition value %s\nremaining cash %s\nmatch total %s\nnew ticket grant %s",
		r.PositionValue, r.Cash, r.MatchValue, r.EntryFeeRefund,
	)
}
