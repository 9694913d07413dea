// Package leaderboard derives the ranked match standings from player and
// price snapshots. It owns no state — Compute is a pure projection.
package leaderboard

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/stockparty/game-engine/internal/model"
)

// Size is the number of rows published to clients.
const Size = 10

// Compute ranks match-active players by total value (cash plus marked
// positions), descending. Sessions sharing a nickname collapse to the
// higher-valued one. Ties keep registration order, so rankings are
// deterministic and stable across recomputes.
func Compute(players []model.Player, prices map[string]decimal.Decimal) []model.LeaderboardEntry {
	byNickname := make(map[string]model.LeaderboardEntry)
	seq := make(map[string]int)

	for _, p := range players {
		if !p.InMatch {
			continue
		}

		positionValue := decimal.Zero
		for _, pos := range p.Positions {
			if pos.Quantity == 0 {
				continue
			}
			positionValue = positionValue.Add(prices[pos.Code].Mul(decimal.NewFromInt(pos.Quantity)))
		}
		total := p.Cash.Add(positionValue)

		entry := model.LeaderboardEntry{
			PlayerID:      p.ID,
			Nickname:      p.Nickname,
			TotalValue:    total,
			Cash:          p.Cash,
			PositionValue: positionValue,
		}

		prev, dup := byNickname[p.Nickname]
		if !dup || total.GreaterThan(prev.TotalValue) {
			byNickname[p.Nickname] = entry
			seq[p.Nickname] = p.JoinSeq
		}
	}

	entries := make([]model.LeaderboardEntry, 0, len(byNickname))
	for _, e := range byNickname {
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].TotalValue.Equal(entries[j].TotalValue) {
			return entries[i].TotalValue.GreaterThan(entries[j].TotalValue)
		}
		return seq[entries[i].Nickname] < seq[entries[j].Nickname]
	})

	if len(entries) > Size {
		entries = entries[:Size]
	}
	return entries
}
