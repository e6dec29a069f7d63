// Production and consumption math. Everything in this file is a pure
// function of its inputs; application to the ledger happens in the tick path.
package engine

import (
	"sort"

	"github.com/talgya/steadfall/internal/catalog"
	"github.com/talgya/steadfall/internal/config"
	"github.com/talgya/steadfall/internal/resources"
	"github.com/talgya/steadfall/internal/settlement"
)

// ProductionInput is one resource's calculator input for one settlement.
type ProductionInput struct {
	TileQuality     int // 0–100. Quality 0 means the resource is absent: skipped entirely.
	BiomeEfficiency float64
	TileBaseMod     float64

	// Extractor contribution. HasExtractor false means base-only production
	// (tier multiplier 1). Health 0–100 linearly scales the tier multiplier.
	HasExtractor   bool
	ExtractorLevel int
	Health         int

	// StaffingMult is 1.0 at or below required staffing, >1 with bonus
	// workers. Understaffed structures get no bonus, not zero output.
	StaffingMult float64
}

// TierMultiplier is the step-and-slope function of extractor level: each
// tier band has a base multiplier plus a per-level bonus inside the band;
// the top band continues unbounded.
func TierMultiplier(cfg *config.Config, level int) float64 {
	if level < 1 {
		level = 1
	}
	switch {
	case level >= cfg.TierStartLevels[2]:
		return cfg.TierBaseMults[2] + cfg.TierLevelBonuses[2]*float64(level-cfg.TierStartLevels[2])
	case level >= cfg.TierStartLevels[1]:
		return cfg.TierBaseMults[1] + cfg.TierLevelBonuses[1]*float64(level-cfg.TierStartLevels[1])
	default:
		return cfg.TierBaseMults[0] + cfg.TierLevelBonuses[0]*float64(level-cfg.TierStartLevels[0])
	}
}

// Production returns gross production in units for one resource over the
// elapsed ticks. The always-on base share means a settlement with no
// extractor still trickles every resource its tiles carry — no death spiral.
func Production(cfg *config.Config, in ProductionInput, elapsedTicks uint64, worldMult float64) float64 {
	if in.TileQuality <= 0 || elapsedTicks == 0 {
		return 0
	}

	base := float64(in.TileQuality) / 100.0 * in.BiomeEfficiency * in.TileBaseMod * cfg.BaseProductionPct

	tierMult := 1.0
	if in.HasExtractor {
		tierMult = TierMultiplier(cfg, in.ExtractorLevel) * float64(in.Health) / 100.0
		if in.StaffingMult > 1 {
			tierMult *= in.StaffingMult
		}
	}

	return base * tierMult * float64(elapsedTicks) * worldMult
}

// Consumption returns the amounts consumed over the elapsed ticks: food and
// water scale with population, wood/stone/ore maintenance with living
// structure count.
func Consumption(cfg *config.Config, population, structureCount int, elapsedTicks uint64) [resources.NumTypes]float64 {
	var out [resources.NumTypes]float64
	t := float64(elapsedTicks)
	out[resources.Food] = cfg.FoodPerCapita * float64(population) * t
	out[resources.Water] = cfg.WaterPerCapita * float64(population) * t
	out[resources.Wood] = cfg.WoodMaintenance * float64(structureCount) * t
	out[resources.Stone] = cfg.StoneMaintenance * float64(structureCount) * t
	out[resources.Ore] = cfg.OreMaintenance * float64(structureCount) * t
	return out
}

// bestExtractorFor picks the settlement's contributing extractor for a
// resource: highest level wins, ties broken by earliest creation. Redundant
// extractors of the same resource never stack.
func bestExtractorFor(s *settlement.Settlement, cat *catalog.Catalog, t resources.Type) *settlement.Structure {
	var candidates []*settlement.Structure
	for _, st := range s.Structures {
		if !st.Alive() {
			continue
		}
		def := cat.Get(st.DefID)
		if def == nil || def.Category != catalog.CategoryExtractor {
			continue
		}
		if rt, ok := def.ProducesType(); !ok || rt != t {
			continue
		}
		candidates = append(candidates, st)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Level != candidates[j].Level {
			return candidates[i].Level > candidates[j].Level
		}
		return candidates[i].CreatedTick < candidates[j].CreatedTick
	})
	return candidates[0]
}

// NetDelta computes production minus consumption for every resource over
// the elapsed ticks, in units. Negative values are not clamped here; the
// ledger floors at zero on application.
func NetDelta(cfg *config.Config, cat *catalog.Catalog, s *settlement.Settlement, elapsedTicks uint64, worldMult float64) [resources.NumTypes]float64 {
	var out [resources.NumTypes]float64
	if elapsedTicks == 0 {
		return out
	}

	living := 0
	for _, st := range s.Structures {
		if st.Alive() {
			living++
		}
	}

	for _, t := range resources.All() {
		in := ProductionInput{
			BiomeEfficiency: cat.Biomes.Efficiency(s.Biome, t),
			TileBaseMod:     cfg.TileBaseModifier,
			StaffingMult:    1.0,
		}
		if ex := bestExtractorFor(s, cat, t); ex != nil {
			in.HasExtractor = true
			in.ExtractorLevel = ex.Level
			in.Health = ex.Health
			in.StaffingMult = staffingMultiplier(cat, ex)
			if ex.TileID != nil {
				if tile := s.Tile(*ex.TileID); tile != nil {
					in.TileQuality = tile.Quality[t]
					in.TileBaseMod = tile.BaseModifier
				}
			}
		} else {
			q, mod := s.BestTileQuality(t)
			in.TileQuality = q
			in.TileBaseMod = mod
		}
		out[t] = Production(cfg, in, elapsedTicks, worldMult)
	}

	cons := Consumption(cfg, s.Population.Count, living, elapsedTicks)
	for i := range out {
		out[i] -= cons[i]
	}
	return out
}

// toAmounts converts a float delta in units to ledger milliunits,
// truncating toward zero so partial intervals never over-credit.
func toAmounts(delta [resources.NumTypes]float64) resources.Amounts {
	var out resources.Amounts
	for i, v := range delta {
		out[i] = resources.FromFloat(v)
	}
	return out
}
