package engine

import "testing"

func TestStaffingPriorityOrder(t *testing.T) {
	sim, sett := newTestSim(nil)
	farm := buildStructure(sett, "farm", 1, 0, 0) // required 2, optional 4, priority 90
	well := buildStructure(sett, "well", 1, 0, 1) // required 1, optional 2, priority 95
	mine := buildStructure(sett, "mine", 1, 1, 0) // required 4, optional 4, priority 50

	sett.Population.Count = 5
	AssignStaffing(sim.Catalog(), sett)

	// Well (priority 95) then farm (90) fill required; the mine starves.
	if well.Assigned != 1 || well.Understaffed {
		t.Errorf("well assigned = %d understaffed = %v, want 1 staffed", well.Assigned, well.Understaffed)
	}
	if farm.Assigned != 2 || farm.Understaffed {
		t.Errorf("farm assigned = %d understaffed = %v, want 2 staffed", farm.Assigned, farm.Understaffed)
	}
	if mine.Assigned != 2 || !mine.Understaffed {
		t.Errorf("mine assigned = %d understaffed = %v, want 2 and understaffed", mine.Assigned, mine.Understaffed)
	}
}

func TestOptionalWorkersFollowBonus(t *testing.T) {
	sim, sett := newTestSim(nil)
	farm := buildStructure(sett, "farm", 1, 0, 0) // bonus 0.05/worker
	well := buildStructure(sett, "well", 1, 0, 1) // bonus 0.04/worker

	// Three workers beyond the required 2+1 all go to the better bonus.
	sett.Population.Count = 6
	AssignStaffing(sim.Catalog(), sett)

	if farm.Assigned != 5 {
		t.Errorf("farm assigned = %d, want required 2 + 3 bonus workers", farm.Assigned)
	}
	if well.Assigned != 1 {
		t.Errorf("well assigned = %d, want required only", well.Assigned)
	}
}

func TestStaffingMultiplier(t *testing.T) {
	sim, sett := newTestSim(nil)
	farm := buildStructure(sett, "farm", 1, 0, 0)

	farm.Assigned = 1 // Below required: no bonus, no penalty.
	if got := staffingMultiplier(sim.Catalog(), farm); got != 1.0 {
		t.Errorf("understaffed multiplier = %v, want 1.0", got)
	}
	farm.Assigned = 2
	if got := staffingMultiplier(sim.Catalog(), farm); got != 1.0 {
		t.Errorf("exact-staffing multiplier = %v, want 1.0", got)
	}
	farm.Assigned = 6
	if got := staffingMultiplier(sim.Catalog(), farm); !almostEqual(got, 1.2) {
		t.Errorf("fully-crewed multiplier = %v, want 1 + 4×0.05", got)
	}
}
