package card

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/config"
	"github.com/stockparty/game-engine/internal/ledger"
	"github.com/stockparty/game-engine/internal/market"
	"github.com/stockparty/game-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newTestEngine(t *testing.T) (*Engine, *market.Market, *ledger.Ledger) {
	t.Helper()
	cfg := config.Config{
		EntryFee:      decimal.NewFromInt(1000),
		PriceMin:      decimal.NewFromInt(50),
		PriceMax:      decimal.NewFromInt(1000),
		CardsPerRound: 1,
		MaxCards:      10,
		Instruments: []config.InstrumentConfig{
			{Code: "AAA", Name: "AAA Corp"},
			{Code: "BBB", Name: "BBB Corp"},
		},
	}
	rng := rand.New(rand.NewPCG(7, 11))
	mkt := market.New(cfg, rng)
	mkt.Initialize()
	led := ledger.New(cfg)
	led.Register("p1", "nick", decimal.NewFromInt(2000))
	if _, err := led.Join("p1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	return NewEngine(cfg, mkt, led, rng), mkt, led
}

// giveCard plants a known card instance in the inventory.
func giveCard(t *testing.T, e *Engine, playerID, templateID, instanceID string) {
	t.Helper()
	tpl, ok := TemplateByID(templateID)
	if !ok {
		t.Fatalf("no template %s", templateID)
	}
	e.InitPlayer(playerID)
	e.inventories[playerID] = append(e.inventories[playerID], model.Card{
		CardTemplate: tpl,
		InstanceID:   instanceID,
	})
}

// --- Distribution ---

func TestDistribute_DrawsOnePerRoundUpToCap(t *testing.T) {
	e, _, _ := newTestEngine(t)

	for i := 0; i < 12; i++ {
		e.Distribute([]string{"p1"})
	}

	inv := e.Cards("p1")
	if len(inv) != 10 {
		t.Fatalf("expected inventory capped at 10, got %d", len(inv))
	}
	seen := make(map[string]bool)
	for _, c := range inv {
		if seen[c.InstanceID] {
			t.Errorf("duplicate instance id %s", c.InstanceID)
		}
		seen[c.InstanceID] = true
		if _, ok := TemplateByID(c.ID); !ok {
			t.Errorf("drawn card has unknown template %s", c.ID)
		}
	}
}

func TestDistribute_ReturnsUpdatedInventories(t *testing.T) {
	e, _, _ := newTestEngine(t)

	updated := e.Distribute([]string{"p1"})
	if len(updated["p1"]) != 1 {
		t.Fatalf("expected 1 card for p1, got %d", len(updated["p1"]))
	}
}

// --- Money cards ---

func TestUse_MoneyCardsCreditCash(t *testing.T) {
	e, _, led := newTestEngine(t)
	giveCard(t, e, "p1", SmallMoney, "c-small")
	giveCard(t, e, "p1", BigMoney, "c-big")

	res, err := e.Use("p1", "c-small", "")
	if err != nil {
		t.Fatalf("small money: %v", err)
	}
	if !res.Amount.Equal(d(50)) || !res.NewCash.Equal(d(1050)) {
		t.Errorf("expected +50 → 1050, got amount %s cash %s", res.Amount, res.NewCash)
	}
	if len(res.Inventory) != 1 {
		t.Errorf("expected 1 card left, got %d", len(res.Inventory))
	}

	res, err = e.Use("p1", "c-big", "")
	if err != nil {
		t.Fatalf("big money: %v", err)
	}
	if !res.Amount.Equal(d(500)) || !res.NewCash.Equal(d(1550)) {
		t.Errorf("expected +500 → 1550, got amount %s cash %s", res.Amount, res.NewCash)
	}

	p, _ := led.Get("p1")
	if !p.Cash.Equal(d(1550)) {
		t.Errorf("ledger cash should be 1550, got %s", p.Cash)
	}
}

// --- Instrument cards ---

func TestUse_RiseAndFallNudgeBias(t *testing.T) {
	e, mkt, _ := newTestEngine(t)
	giveCard(t, e, "p1", ForceRise, "c-rise")
	giveCard(t, e, "p1", ForceFall, "c-fall")

	res, err := e.Use("p1", "c-rise", "AAA")
	if err != nil {
		t.Fatalf("rise: %v", err)
	}
	if res.Effect != model.EffectRise || res.Code != "AAA" {
		t.Errorf("unexpected result %+v", res)
	}
	inst, _ := mkt.Quote("AAA")
	if inst.Bias != 0.51 {
		t.Errorf("expected bias 0.51, got %v", inst.Bias)
	}

	if _, err := e.Use("p1", "c-fall", "BBB"); err != nil {
		t.Fatalf("fall: %v", err)
	}
	inst, _ = mkt.Quote("BBB")
	if inst.Bias != 0.49 {
		t.Errorf("expected bias 0.49, got %v", inst.Bias)
	}

	effects := e.ActiveEffects()
	if effects["AAA"].Kind != model.EffectRise || effects["BBB"].Kind != model.EffectFall {
		t.Errorf("unexpected effects %+v", effects)
	}
}

func TestUse_FreezeOutranksDirection(t *testing.T) {
	e, mkt, _ := newTestEngine(t)
	giveCard(t, e, "p1", PriceFreeze, "c-freeze")
	giveCard(t, e, "p1", ForceRise, "c-rise")

	if _, err := e.Use("p1", "c-freeze", "AAA"); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	inst, _ := mkt.Quote("AAA")
	if !inst.Frozen() {
		t.Fatal("instrument should be frozen")
	}

	// Direction cards bounce off a frozen target; the card is kept.
	if _, err := e.Use("p1", "c-rise", "AAA"); !errors.Is(err, ErrTargetFrozen) {
		t.Fatalf("expected ErrTargetFrozen, got %v", err)
	}
	if len(e.Cards("p1")) != 1 {
		t.Error("rejected card should stay in inventory")
	}
	if e.ActiveEffects()["AAA"].Kind != model.EffectFreeze {
		t.Error("freeze effect should survive the rejected play")
	}
}

func TestUse_LastWriteWinsPerInstrument(t *testing.T) {
	e, _, _ := newTestEngine(t)
	giveCard(t, e, "p1", ForceRise, "c-rise")
	giveCard(t, e, "p1", ForceFall, "c-fall")

	e.Use("p1", "c-rise", "AAA")
	e.Use("p1", "c-fall", "AAA")

	effects := e.ActiveEffects()
	if len(effects) != 1 || effects["AAA"].Kind != model.EffectFall {
		t.Errorf("expected single fall effect on AAA, got %+v", effects)
	}
}

func TestUse_Rejections(t *testing.T) {
	e, _, _ := newTestEngine(t)
	giveCard(t, e, "p1", ForceRise, "c-rise")

	if _, err := e.Use("ghost", "c-rise", "AAA"); !errors.Is(err, ErrUnknownPlayer) {
		t.Errorf("expected ErrUnknownPlayer, got %v", err)
	}
	if _, err := e.Use("p1", "no-such-card", "AAA"); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("expected ErrCardNotFound, got %v", err)
	}
	if _, err := e.Use("p1", "c-rise", "ZZZ"); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget, got %v", err)
	}
	if len(e.Cards("p1")) != 1 {
		t.Error("rejected plays must not consume the card")
	}

	// Successful play consumes; replaying the same instance fails.
	if _, err := e.Use("p1", "c-rise", "AAA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Use("p1", "c-rise", "AAA"); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("expected ErrCardNotFound on replay, got %v", err)
	}
}

// --- Round boundary ---

func TestProcessEffects_ForcesDirectionThenExpires(t *testing.T) {
	e, mkt, _ := newTestEngine(t)
	giveCard(t, e, "p1", ForceRise, "c-rise")
	e.Use("p1", "c-rise", "AAA")

	e.ProcessEffects()

	inst, _ := mkt.Quote("AAA")
	if inst.Bias != 1.0 {
		t.Errorf("expected forced bias 1.0, got %v", inst.Bias)
	}
	if len(e.ActiveEffects()) != 0 {
		t.Errorf("one-round effect should expire, got %+v", e.ActiveEffects())
	}
}

func TestProcessEffects_FreezeSwallowsDirection(t *testing.T) {
	e, mkt, _ := newTestEngine(t)
	giveCard(t, e, "p1", ForceRise, "c-rise")
	e.Use("p1", "c-rise", "AAA")

	// Freeze lands after the rise card was played.
	giveCard(t, e, "p1", PriceFreeze, "c-freeze")
	e.Use("p1", "c-freeze", "AAA")

	e.ProcessEffects()

	inst, _ := mkt.Quote("AAA")
	if !inst.Frozen() {
		t.Errorf("frozen instrument should stay frozen through the boundary, got bias %v", inst.Bias)
	}
}

// --- Inventory lifecycle ---

func TestInitPlayer_PreservesExistingInventory(t *testing.T) {
	e, _, _ := newTestEngine(t)
	giveCard(t, e, "p1", SmallMoney, "c-1")

	e.InitPlayer("p1")
	if len(e.Cards("p1")) != 1 {
		t.Error("reinit should keep the inventory")
	}

	e.ClearPlayer("p1")
	if len(e.Cards("p1")) != 0 {
		t.Error("clear should empty the inventory")
	}
}
