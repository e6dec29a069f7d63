// Population dynamics — happiness, immigration, emigration, housing capacity.
package engine

import (
	"log/slog"

	"github.com/talgya/steadfall/internal/catalog"
	"github.com/talgya/steadfall/internal/resources"
	"github.com/talgya/steadfall/internal/settlement"
)

// HousingCapacity derives the settlement's population ceiling: a small base
// plus every living housing structure's contribution scaled by level.
func HousingCapacity(cat *catalog.Catalog, s *settlement.Settlement, base int) int {
	capacity := base
	for _, st := range s.Structures {
		if !st.Alive() {
			continue
		}
		def := cat.Get(st.DefID)
		if def == nil || def.HousingCapacity == 0 {
			continue
		}
		capacity += def.HousingCapacity * st.Level
	}
	return capacity
}

// resourceSufficiency scores food and water availability 0–100 as an
// average of each critical resource's stock against one growth interval of
// demand. A settlement with no population is fully sufficient.
func (s *Simulation) resourceSufficiency(sett *settlement.Settlement) float64 {
	pop := sett.Population.Count
	if pop == 0 {
		return 100
	}
	stock := sett.Ledger.Stock()
	interval := float64(s.cfg.GrowthIntervalTicks)

	score := func(t resources.Type, perCapita float64) float64 {
		need := perCapita * float64(pop) * interval
		if need <= 0 {
			return 100
		}
		have := float64(stock[t]) / float64(resources.Milli)
		pct := have / need * 100
		if pct > 100 {
			pct = 100
		}
		return pct
	}

	return (score(resources.Food, s.cfg.FoodPerCapita) + score(resources.Water, s.cfg.WaterPerCapita)) / 2
}

// preparedness scores disaster readiness from average living-structure
// health; a settlement of half-ruined buildings weathers the next event badly.
func preparedness(sett *settlement.Settlement) float64 {
	total, n := 0, 0
	for _, st := range sett.Structures {
		if st.Destroyed {
			continue
		}
		total += st.Health
		n++
	}
	if n == 0 {
		return 100
	}
	return float64(total) / float64(n)
}

// traumaScore decays from 0 back toward 100 after disaster casualties.
func (s *Simulation) traumaScore(sett *settlement.Settlement, tick uint64) float64 {
	sev := sett.Population.TraumaSeverity
	if sev <= 0 {
		return 100
	}
	// Linear decay over four growth intervals.
	elapsed := float64(tick - sett.Population.LastTraumaTick)
	span := float64(4 * s.cfg.GrowthIntervalTicks)
	remaining := sev * (1 - elapsed/span)
	if remaining <= 0 {
		sett.Population.TraumaSeverity = 0
		return 100
	}
	score := 100 - remaining
	if score < 0 {
		score = 0
	}
	return score
}

// happiness blends the six weighted factors into a 0–100 composite, then
// applies the starvation penalty and ceiling when a critical resource is dry.
func (s *Simulation) happiness(sett *settlement.Settlement, tick uint64, sufficiency float64) float64 {
	w := s.cfg.Happiness

	housing := 100.0
	if sett.Population.Capacity > 0 && sett.Population.Count > 0 {
		occupancy := float64(sett.Population.Count) / float64(sett.Population.Capacity)
		if occupancy > 1 {
			occupancy = 1
		}
		// Full housing is stressful; a bit of slack scores best.
		housing = 100 - 60*occupancy
		if sett.Population.Count < sett.Population.Capacity {
			housing += 60 * (1 - occupancy) * 0.5
		}
		if housing > 100 {
			housing = 100
		}
	}

	h := sufficiency*w.ResourceSufficiency/100 +
		housing*w.Housing/100 +
		preparedness(sett)*w.Preparedness/100 +
		s.traumaScore(sett, tick)*w.Trauma/100 +
		s.cfg.BaselineMorale*w.Morale/100 +
		s.cfg.BaselineRelations*w.Relations/100

	// Empty food or water depresses mood but never kills directly;
	// population loss is a consequence of sustained misery, not one dry tick.
	stock := sett.Ledger.Stock()
	if stock[resources.Food] == 0 || stock[resources.Water] == 0 {
		h -= s.cfg.StarvationPenalty
		if h > s.cfg.StarvationCeiling {
			h = s.cfg.StarvationCeiling
		}
	}

	if h < 0 {
		h = 0
	}
	if h > 100 {
		h = 100
	}
	return h
}

// applyGrowth runs one growth evaluation for a settlement. Called once per
// growth interval from the tick path, never more often.
func (s *Simulation) applyGrowth(sett *settlement.Settlement, tick uint64) {
	pop := &sett.Population
	pop.Capacity = HousingCapacity(s.cat, sett, s.cfg.BaseHousing)

	sufficiency := s.resourceSufficiency(sett)
	pop.Happiness = s.happiness(sett, tick, sufficiency)
	pop.LastGrowthTick = tick

	before := pop.Count

	switch {
	case pop.Happiness > s.cfg.ImmigrationThreshold && pop.Count < pop.Capacity:
		// Probabilistic immigration: the happier the settlement, the more
		// likely newcomers arrive this interval.
		chance := (pop.Happiness - s.cfg.ImmigrationThreshold) / (100 - s.cfg.ImmigrationThreshold)
		if s.rng.Float() < chance {
			arrivals := 1 + pop.Count/20
			if pop.Count+arrivals > pop.Capacity {
				arrivals = pop.Capacity - pop.Count
			}
			pop.Count += arrivals
		}
	case pop.Happiness < s.cfg.EmigrationThreshold && pop.Count > 0:
		// Sustained misery drives people out.
		leavers := 1 + pop.Count/25
		if leavers > pop.Count {
			leavers = pop.Count
		}
		pop.Count -= leavers
	}

	// Capacity is a hard ceiling even when housing was just destroyed.
	if pop.Count > pop.Capacity {
		pop.Count = pop.Capacity
	}

	if pop.Count != before {
		AssignStaffing(s.cat, sett)
		s.publish(Event{
			Tick: tick, Type: EvPopulationChanged, SettlementID: sett.ID,
			Payload: map[string]any{
				"count":     pop.Count,
				"delta":     pop.Count - before,
				"happiness": pop.Happiness,
				"capacity":  pop.Capacity,
			},
		})
		slog.Debug("population changed",
			"settlement", sett.ID, "before", before, "after", pop.Count,
			"happiness", pop.Happiness)
	}
}
