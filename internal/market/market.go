// Package market owns the tradable instruments: current price, per-round
// percent change, and the directional bias that card effects steer.
//
// Price updates run once per round. A forced direction multiplies the price
// by a fixed step and floors to a whole unit; a neutral instrument takes a
// coin-flip between the two steps. Frozen instruments (negative bias) do not
// move at all. All prices use shopspring/decimal — never float64 for money.
package market

import (
	"errors"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/config"
	"github.com/stockparty/game-engine/internal/model"
)

var (
	// ErrUnknownInstrument is returned for a code outside the catalog.
	ErrUnknownInstrument = errors.New("market: unknown instrument code")

	// ErrFrozen is returned when setting a bias on a frozen instrument
	// without explicitly un-freezing it first.
	ErrFrozen = errors.New("market: instrument is frozen")
)

var (
	upStep   = decimal.RequireFromString("1.1")
	downStep = decimal.RequireFromString("0.9")
	hundred  = decimal.NewFromInt(100)
)

// Market holds the instrument map for one match. Not safe for concurrent
// use on its own — the match controller serializes all access.
type Market struct {
	instruments map[string]*model.Instrument
	order       []string // catalog order, for stable snapshots
	priceMin    decimal.Decimal
	priceMax    decimal.Decimal
	rng         *rand.Rand
}

// New creates a market over the configured instrument catalog. Prices are
// unset until Initialize is called at match start.
func New(cfg config.Config, rng *rand.Rand) *Market {
	m := &Market{
		instruments: make(map[string]*model.Instrument, len(cfg.Instruments)),
		priceMin:    cfg.PriceMin,
		priceMax:    cfg.PriceMax,
		rng:         rng,
	}
	for _, ic := range cfg.Instruments {
		m.instruments[ic.Code] = &model.Instrument{
			Code:       ic.Code,
			Name:       ic.Name,
			Volatility: ic.Volatility,
			Bias:       model.NeutralBias,
		}
		m.order = append(m.order, ic.Code)
	}
	return m
}

// Initialize seeds every instrument with a uniform random whole-unit price
// in [priceMin, priceMax) and a neutral bias. Called once per match start.
func (m *Market) Initialize() {
	span := m.priceMax.Sub(m.priceMin).InexactFloat64()
	for _, code := range m.order {
		inst := m.instruments[code]
		offset := decimal.NewFromFloat(m.rng.Float64() * span).Floor()
		inst.Price = m.priceMin.Add(offset)
		inst.PercentChange = decimal.Zero
		inst.Bias = model.NeutralBias
	}
}

// UpdateRound applies one round of price movement to every instrument.
// Frozen instruments are untouched. A biased instrument takes the forced
// step; a neutral one flips a coin. Results are floored to whole units and
// clamped to the configured price range.
func (m *Market) UpdateRound() {
	for _, code := range m.order {
		inst := m.instruments[code]
		if inst.Frozen() {
			inst.PercentChange = decimal.Zero
			continue
		}

		old := inst.Price
		up := inst.Bias > model.NeutralBias
		if inst.Bias == model.NeutralBias {
			up = m.rng.Float64() >= 0.5
		}

		step := downStep
		if up {
			step = upStep
		}
		price := old.Mul(step).Floor()

		if price.LessThan(m.priceMin) {
			price = m.priceMin
		}
		if price.GreaterThan(m.priceMax) {
			price = m.priceMax
		}

		inst.Price = price
		inst.PercentChange = price.Sub(old).Div(old).Mul(hundred).Round(2)
	}
}

// SetBias sets an instrument's directional bias. Fails on a frozen
// instrument; Freeze/Unfreeze are the explicit transitions.
func (m *Market) SetBias(code string, bias float64) error {
	inst, ok := m.instruments[code]
	if !ok {
		return ErrUnknownInstrument
	}
	if inst.Frozen() {
		return ErrFrozen
	}
	inst.Bias = bias
	return nil
}

// AdjustBias nudges an instrument's bias by delta (card rise/fall effect).
// Returns the new bias.
func (m *Market) AdjustBias(code string, delta float64) (float64, error) {
	inst, ok := m.instruments[code]
	if !ok {
		return 0, ErrUnknownInstrument
	}
	if inst.Frozen() {
		return 0, ErrFrozen
	}
	inst.Bias += delta
	return inst.Bias, nil
}

// Freeze marks an instrument frozen with the sentinel bias.
func (m *Market) Freeze(code string) error {
	inst, ok := m.instruments[code]
	if !ok {
		return ErrUnknownInstrument
	}
	inst.Bias = model.FrozenBias
	return nil
}

// Unfreeze returns a frozen instrument to neutral bias.
func (m *Market) Unfreeze(code string) error {
	inst, ok := m.instruments[code]
	if !ok {
		return ErrUnknownInstrument
	}
	inst.Bias = model.NeutralBias
	return nil
}

// ResetBiasAll returns every instrument to neutral bias. Called at each
// round boundary: forced directions last exactly one round, over and above
// the card engine's own duration bookkeeping.
func (m *Market) ResetBiasAll() {
	for _, inst := range m.instruments {
		inst.Bias = model.NeutralBias
	}
}

// Has reports whether code is in the catalog.
func (m *Market) Has(code string) bool {
	_, ok := m.instruments[code]
	return ok
}

// Quote returns the current state of one instrument.
func (m *Market) Quote(code string) (model.Instrument, error) {
	inst, ok := m.instruments[code]
	if !ok {
		return model.Instrument{}, ErrUnknownInstrument
	}
	return *inst, nil
}

// Price returns the current price of one instrument.
func (m *Market) Price(code string) (decimal.Decimal, error) {
	inst, ok := m.instruments[code]
	if !ok {
		return decimal.Decimal{}, ErrUnknownInstrument
	}
	return inst.Price, nil
}

// Quotes returns a snapshot of all instruments in catalog order.
func (m *Market) Quotes() []model.Instrument {
	out := make([]model.Instrument, 0, len(m.order))
	for _, code := range m.order {
		out = append(out, *m.instruments[code])
	}
	return out
}

// PriceTable returns code → current price for settlement and valuation.
func (m *Market) PriceTable() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(m.order))
	for code, inst := range m.instruments {
		out[code] = inst.Price
	}
	return out
}
