// Package card owns the function-card catalog, per-player inventories, and
// the active timed effects bound to instruments. Inventories are FIFO and
// capacity-bounded; an instrument carries at most one active effect, with a
// newer card silently replacing the older one (last-write-wins).
package card

import (
	"errors"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/config"
	"github.com/stockparty/game-engine/internal/ledger"
	"github.com/stockparty/game-engine/internal/market"
	"github.com/stockparty/game-engine/internal/metrics"
	"github.com/stockparty/game-engine/internal/model"
)

var (
	// ErrCardNotFound is returned when the instance id is not in the
	// player's inventory (never drawn, or already consumed).
	ErrCardNotFound = errors.New("card: card not found in inventory")

	// ErrInvalidTarget is returned for an unknown target instrument.
	ErrInvalidTarget = errors.New("card: invalid target")

	// ErrTargetFrozen is returned when a rise/fall card targets a frozen
	// instrument.
	ErrTargetFrozen = errors.New("card: target instrument is frozen")

	// ErrUnknownPlayer is returned for a session with no inventory.
	ErrUnknownPlayer = errors.New("card: unknown player")
)

// UseResult reports what a successfully consumed card did.
type UseResult struct {
	Card      model.Card
	Inventory []model.Card // post-consumption inventory

	// Money cards.
	Amount  decimal.Decimal
	NewCash decimal.Decimal

	// Instrument cards.
	Code   string
	Effect model.EffectKind

	Notice string // user-facing effect description
}

// Engine resolves card draws, plays, and per-round effect expiry. Not safe
// for concurrent use on its own — the match controller serializes access.
type Engine struct {
	inventories map[string][]model.Card
	effects     map[string]model.ActiveEffect // instrument code → effect
	market      *market.Market
	ledger      *ledger.Ledger
	rng         *rand.Rand
	maxCards    int
	perRound    int
}

// NewEngine wires the card engine to the market (bias effects) and the
// ledger (money cards).
func NewEngine(cfg config.Config, mkt *market.Market, led *ledger.Ledger, rng *rand.Rand) *Engine {
	return &Engine{
		inventories: make(map[string][]model.Card),
		effects:     make(map[string]model.ActiveEffect),
		market:      mkt,
		ledger:      led,
		rng:         rng,
		maxCards:    cfg.MaxCards,
		perRound:    cfg.CardsPerRound,
	}
}

// InitPlayer creates an empty inventory if the player has none. Existing
// inventories are left alone so a reconnect keeps its cards.
func (e *Engine) InitPlayer(playerID string) {
	if _, ok := e.inventories[playerID]; !ok {
		e.inventories[playerID] = []model.Card{}
	}
}

// ClearPlayer drops a player's inventory (match end or session removal).
func (e *Engine) ClearPlayer(playerID string) {
	delete(e.inventories, playerID)
}

// Cards returns a copy of the player's inventory in draw order.
func (e *Engine) Cards(playerID string) []model.Card {
	inv := e.inventories[playerID]
	out := make([]model.Card, len(inv))
	copy(out, inv)
	return out
}

// Distribute draws cards for every listed player below capacity and returns
// the updated inventories for notification. The draw is uniform across the
// catalog; rarity bands are display-only.
func (e *Engine) Distribute(playerIDs []string) map[string][]model.Card {
	updated := make(map[string][]model.Card)
	for _, id := range playerIDs {
		e.InitPlayer(id)
		for n := 0; n < e.perRound; n++ {
			inv := e.inventories[id]
			if len(inv) >= e.maxCards {
				break
			}
			tpl := Catalog[e.rng.IntN(len(Catalog))]
			drawn := model.Card{CardTemplate: tpl, InstanceID: uuid.New().String()}
			e.inventories[id] = append(inv, drawn)
			metrics.CardsDrawn.WithLabelValues(tpl.ID).Inc()
		}
		updated[id] = e.Cards(id)
	}
	return updated
}

// Use consumes the identified card and applies its effect. On any error the
// card stays in the inventory, untouched.
func (e *Engine) Use(playerID, instanceID, targetID string) (UseResult, error) {
	inv, ok := e.inventories[playerID]
	if !ok {
		return UseResult{}, ErrUnknownPlayer
	}

	idx := -1
	for i, c := range inv {
		if c.InstanceID == instanceID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return UseResult{}, ErrCardNotFound
	}

	c := inv[idx]
	res := UseResult{Card: c}

	switch c.ID {
	case SmallMoney, BigMoney:
		amount := smallMoneyAmount
		if c.ID == BigMoney {
			amount = bigMoneyAmount
		}
		newCash, err := e.ledger.CreditCash(playerID, amount)
		if err != nil {
			return UseResult{}, err
		}
		res.Amount = amount
		res.NewCash = newCash
		res.Notice = "Payday! " + amount.String() + " in cash landed in your account."

	case ForceRise, ForceFall:
		if !e.market.Has(targetID) {
			return UseResult{}, ErrInvalidTarget
		}
		delta := biasNudge
		kind := model.EffectRise
		if c.ID == ForceFall {
			delta = -biasNudge
			kind = model.EffectFall
		}
		if _, err := e.market.AdjustBias(targetID, delta); err != nil {
			if errors.Is(err, market.ErrFrozen) {
				return UseResult{}, ErrTargetFrozen
			}
			return UseResult{}, ErrInvalidTarget
		}
		e.effects[targetID] = model.ActiveEffect{
			Code:     targetID,
			Kind:     kind,
			Duration: c.Duration,
			Timing:   c.Timing,
			Priority: priorityDirection,
			SourceID: playerID,
		}
		res.Code = targetID
		res.Effect = kind
		res.Notice = noticeFor(targetID, kind)

	case PriceFreeze:
		if !e.market.Has(targetID) {
			return UseResult{}, ErrInvalidTarget
		}
		if err := e.market.Freeze(targetID); err != nil {
			return UseResult{}, ErrInvalidTarget
		}
		e.effects[targetID] = model.ActiveEffect{
			Code:     targetID,
			Kind:     model.EffectFreeze,
			Duration: c.Duration,
			Timing:   c.Timing,
			Priority: priorityFreeze,
			SourceID: playerID,
		}
		res.Code = targetID
		res.Effect = model.EffectFreeze
		res.Notice = noticeFor(targetID, model.EffectFreeze)

	default:
		return UseResult{}, ErrCardNotFound
	}

	// Consume only after the effect landed.
	e.inventories[playerID] = append(inv[:idx], inv[idx+1:]...)
	res.Inventory = e.Cards(playerID)

	slog.Info("card used",
		"player", playerID,
		"card", c.ID,
		"target", targetID,
	)
	return res, nil
}

// ProcessEffects resolves pending effects at the round boundary: next-round
// directional effects force the instrument's bias for the upcoming price
// update, durations tick down, and expired effects drop out. A frozen
// instrument swallows directional effects — freeze wins.
func (e *Engine) ProcessEffects() {
	for code, eff := range e.effects {
		switch eff.Kind {
		case model.EffectRise, model.EffectFall:
			if eff.Timing == model.TimingNext {
				bias := 1.0
				if eff.Kind == model.EffectFall {
					bias = 0.0
				}
				// SetBias refuses frozen instruments; that is the
				// freeze-wins rule, not a failure.
				if err := e.market.SetBias(code, bias); err != nil && !errors.Is(err, market.ErrFrozen) {
					slog.Error("effect apply failed", "code", code, "err", err)
				}
			}
		case model.EffectFreeze:
			// Bias already carries the sentinel; nothing to mark.
		}

		eff.Duration--
		if eff.Duration <= 0 {
			delete(e.effects, code)
		} else {
			e.effects[code] = eff
		}
	}
}

// ActiveEffects returns a copy of the current instrument effects.
func (e *Engine) ActiveEffects() map[string]model.ActiveEffect {
	out := make(map[string]model.ActiveEffect, len(e.effects))
	for k, v := range e.effects {
		out[k] = v
	}
	return out
}

// ClearEffects drops all active effects (match end).
func (e *Engine) ClearEffects() {
	e.effects = make(map[string]model.ActiveEffect)
}

func noticeFor(code string, kind model.EffectKind) string {
	switch kind {
	case model.EffectRise:
		return code + " is guaranteed to rise next round!"
	case model.EffectFall:
		return code + " is guaranteed to fall next round!"
	default:
		return code + " is frozen for the next round!"
	}
}
