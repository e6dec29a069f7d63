// Worker assignment. Runs when the structure set changes, not every tick.
package engine

import (
	"sort"

	"github.com/talgya/steadfall/internal/catalog"
	"github.com/talgya/steadfall/internal/settlement"
)

// staffingMultiplier converts a structure's assignment into its production
// multiplier: below required staffing there is no bonus, at or above it the
// bonus grows linearly with workers beyond the minimum.
func staffingMultiplier(cat *catalog.Catalog, st *settlement.Structure) float64 {
	def := cat.Get(st.DefID)
	if def == nil || def.Staffing.Required == 0 {
		return 1.0
	}
	if st.Assigned < def.Staffing.Required {
		return 1.0
	}
	extra := st.Assigned - def.Staffing.Required
	return 1.0 + def.Staffing.BonusPerWorker*float64(extra)
}

// AssignStaffing distributes the settlement's headcount across structures
// that want workers: required slots first in descending priority order, then
// optional slots in descending per-worker bonus order. Deficits are recorded
// as understaffed.
func AssignStaffing(cat *catalog.Catalog, s *settlement.Settlement) {
	type slot struct {
		st  *settlement.Structure
		def *catalog.Definition
	}
	var wanting []slot
	for _, st := range s.Structures {
		if !st.Alive() {
			continue
		}
		def := cat.Get(st.DefID)
		if def == nil || (def.Staffing.Required == 0 && def.Staffing.Optional == 0) {
			continue
		}
		st.Assigned = 0
		st.Understaffed = false
		wanting = append(wanting, slot{st, def})
	}

	pool := s.Population.Count

	// Required headcount by descending priority; ties by structure id so the
	// order is explicit, not incidental.
	sort.Slice(wanting, func(i, j int) bool {
		if wanting[i].def.Staffing.Priority != wanting[j].def.Staffing.Priority {
			return wanting[i].def.Staffing.Priority > wanting[j].def.Staffing.Priority
		}
		return wanting[i].st.ID < wanting[j].st.ID
	})
	for _, w := range wanting {
		need := w.def.Staffing.Required
		if need > pool {
			need = pool
		}
		w.st.Assigned = need
		pool -= need
		if w.st.Assigned < w.def.Staffing.Required {
			w.st.Understaffed = true
		}
	}

	if pool == 0 {
		return
	}

	// Remaining headcount to optional slots by descending per-worker bonus.
	sort.Slice(wanting, func(i, j int) bool {
		if wanting[i].def.Staffing.BonusPerWorker != wanting[j].def.Staffing.BonusPerWorker {
			return wanting[i].def.Staffing.BonusPerWorker > wanting[j].def.Staffing.BonusPerWorker
		}
		return wanting[i].st.ID < wanting[j].st.ID
	})
	for _, w := range wanting {
		if pool == 0 {
			break
		}
		if w.st.Understaffed {
			continue // No bonus workers for a structure missing its minimum.
		}
		extra := w.def.Staffing.Optional
		if extra > pool {
			extra = pool
		}
		w.st.Assigned += extra
		pool -= extra
	}
}
