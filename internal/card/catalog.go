package card

import (
	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/model"
)

// Template ids. Dispatch in Use keys off these.
const (
	ForceRise   = "FORCE_RISE"
	ForceFall   = "FORCE_FALL"
	PriceFreeze = "PRICE_FREEZE"
	SmallMoney  = "SMALL_MONEY"
	BigMoney    = "BIG_MONEY"
)

// Money card payouts.
var (
	smallMoneyAmount = decimal.NewFromInt(50)
	bigMoneyAmount   = decimal.NewFromInt(500)
)

// biasNudge is the probability delta a rise/fall card applies on play.
const biasNudge = 0.01

// Effect priorities. Freeze outranks the directional effects.
const (
	priorityDirection = 100
	priorityFreeze    = 1000
)

// RarityBands is the declared draw distribution by rarity tier. The actual
// draw is uniform across templates (source behavior, kept); these bands are
// published for client-side display weighting only.
var RarityBands = map[string]float64{
	"UR": 0.05,
	"SR": 0.15,
	"R":  0.30,
	"N":  0.50,
}

// Catalog is the fixed list of card templates, in draw-index order.
var Catalog = []model.CardTemplate{
	{
		ID:       ForceRise,
		Name:     "Up Up Up",
		Rarity:   "N",
		Target:   model.TargetInstrument,
		Timing:   model.TimingNext,
		Duration: 1,
		Effect:   "Pick a stock: its price is guaranteed to rise next round.",
	},
	{
		ID:       ForceFall,
		Name:     "Down Down Down",
		Rarity:   "N",
		Target:   model.TargetInstrument,
		Timing:   model.TimingNext,
		Duration: 1,
		Effect:   "Pick a stock: its price is guaranteed to fall next round.",
	},
	{
		ID:       PriceFreeze,
		Name:     "Weld The Doors Shut",
		Rarity:   "SR",
		Target:   model.TargetInstrument,
		Timing:   model.TimingNext,
		Duration: 1,
		Effect:   "Pick a stock: its price is frozen for the next round.",
	},
	{
		ID:       SmallMoney,
		Name:     "Spot Me 50",
		Rarity:   "R",
		Target:   model.TargetPlayer,
		Timing:   model.TimingCurrent,
		Duration: 1,
		Effect:   "Payday! Receive 50 in cash immediately.",
	},
	{
		ID:       BigMoney,
		Name:     "It's The Lottery!",
		Rarity:   "UR",
		Target:   model.TargetPlayer,
		Timing:   model.TimingCurrent,
		Duration: 1,
		Effect:   "Jackpot! Receive 500 in cash immediately.",
	},
}

// TemplateByID returns the catalog entry for id, if any.
func TemplateByID(id string) (model.CardTemplate, bool) {
	for _, t := range Catalog {
		if t.ID == id {
			return t, true
		}
	}
	return model.CardTemplate{}, false
}
