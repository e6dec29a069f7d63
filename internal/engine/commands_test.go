package engine

import (
	"testing"

	"github.com/talgya/steadfall/internal/resources"
	"github.com/talgya/steadfall/internal/settlement"
)

// addSecondSettlement registers a forest settlement under the same owner.
func addSecondSettlement(sim *Simulation, owner uint64) *settlement.Settlement {
	sett := &settlement.Settlement{
		ID:           2,
		OwnerID:      owner,
		Name:         "Fernvale",
		Biome:        "forest",
		Tier:         1,
		AreaCapacity: 8,
		Ledger:       resources.NewLedger(resources.FromUnits(100, 100, 100, 100, 100), 0),
		Tiles: []settlement.Tile{
			{ID: 0, Quality: [resources.NumTypes]int{40, 40, 90, 20, 10}, BaseModifier: 1.0, Slots: 2},
		},
	}
	sett.Population.Count = 10
	sim.AddSettlement(sett)
	return sett
}

func TestTransferMovesStock(t *testing.T) {
	sim, from := newTestSim(nil)
	to := addSecondSettlement(sim, from.OwnerID)

	if err := sim.InitiateTransfer(from.OwnerID, from.ID, to.ID, resources.Wood, 50); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := resources.Units(from.Ledger.Stock()[resources.Wood]); got != 450 {
		t.Errorf("source wood = %d, want 450", got)
	}
	if got := resources.Units(to.Ledger.Stock()[resources.Wood]); got != 150 {
		t.Errorf("destination wood = %d, want 150", got)
	}
}

func TestTransferValidation(t *testing.T) {
	sim, from := newTestSim(nil)
	to := addSecondSettlement(sim, from.OwnerID)

	if err := sim.InitiateTransfer(from.OwnerID, from.ID, to.ID, resources.Wood, 0); ErrorClass(err) != ClassValidation {
		t.Errorf("zero amount = %v, want validation error", err)
	}
	if err := sim.InitiateTransfer(from.OwnerID, from.ID, from.ID, resources.Wood, 10); ErrorClass(err) != ClassValidation {
		t.Errorf("self-transfer = %v, want validation error", err)
	}
	if err := sim.InitiateTransfer(from.OwnerID, from.ID, 99, resources.Wood, 10); ErrorCode(err) != CodeNotFound {
		t.Errorf("unknown destination = %v, want NOT_FOUND", err)
	}
	if err := sim.InitiateTransfer(12345, from.ID, to.ID, resources.Wood, 10); ErrorCode(err) != CodeNotOwner {
		t.Errorf("foreign actor = %v, want NOT_OWNER", err)
	}

	err := sim.InitiateTransfer(from.OwnerID, from.ID, to.ID, resources.Wood, 100000)
	if ErrorCode(err) != CodeInsufficientResources {
		t.Errorf("oversized transfer = %v, want INSUFFICIENT_RESOURCES", err)
	}
	if got := resources.Units(from.Ledger.Stock()[resources.Wood]); got != 500 {
		t.Errorf("failed transfer touched the source ledger: wood = %d", got)
	}
}

func TestTransferOverflowLostInTransit(t *testing.T) {
	sim, from := newTestSim(nil)
	to := addSecondSettlement(sim, from.OwnerID)
	to.Ledger.SetCapacity(120 * resources.Milli) // 100 in stock, room for 20.

	if err := sim.InitiateTransfer(from.OwnerID, from.ID, to.ID, resources.Wood, 50); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := resources.Units(from.Ledger.Stock()[resources.Wood]); got != 450 {
		t.Errorf("source wood = %d, want full 50 debited", got)
	}
	if got := resources.Units(to.Ledger.Stock()[resources.Wood]); got != 120 {
		t.Errorf("destination wood = %d, want clamped at capacity 120", got)
	}
}

func TestCollectResourcesAppliesPendingProduction(t *testing.T) {
	sim, sett := newTestSim(nil)
	sett.Population.Count = 0 // Isolate production from consumption.

	sim.SetTick(100)
	delta, err := sim.CollectResources(sett.OwnerID, sett.ID)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if delta[resources.Food] <= 0 {
		t.Errorf("food delta = %d, want positive base production over 100 ticks", delta[resources.Food])
	}
	if sett.LastProductionTick != 100 {
		t.Errorf("last production tick = %d, want 100", sett.LastProductionTick)
	}

	// Collecting again the same tick yields nothing.
	again, err := sim.CollectResources(sett.OwnerID, sett.ID)
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if !again.IsZero() {
		t.Errorf("second collect delta = %v, want zero", again)
	}
}

func TestRepairRestoresHealthForCost(t *testing.T) {
	sim, sett := newTestSim(nil)
	st := buildStructure(sett, "farm", 1, 0, 0)
	st.Health = 60

	before := sett.Ledger.Stock()
	if err := sim.RepairStructure(sett.OwnerID, sett.ID, st.ID); err != nil {
		t.Fatalf("repair: %v", err)
	}
	if st.Health != 100 {
		t.Errorf("health = %d, want 100", st.Health)
	}

	// 40 missing × 0.5 = 20 units split across wood/stone/ore.
	spent := before
	for i := range spent {
		spent[i] -= sett.Ledger.Stock()[i]
	}
	if got := spent[resources.Wood]; got != resources.FromFloat(10) {
		t.Errorf("wood cost = %d, want 10 units", got)
	}
	if got := spent[resources.Stone]; got != resources.FromFloat(7) {
		t.Errorf("stone cost = %d, want 7 units", got)
	}
	if got := spent[resources.Ore]; got != resources.FromFloat(3) {
		t.Errorf("ore cost = %d, want 3 units", got)
	}

	// Repairing a whole structure is a free no-op.
	mid := sett.Ledger.Stock()
	if err := sim.RepairStructure(sett.OwnerID, sett.ID, st.ID); err != nil {
		t.Fatalf("idempotent repair: %v", err)
	}
	if sett.Ledger.Stock() != mid {
		t.Error("repairing a full-health structure charged a cost")
	}
}

func TestRepairDiscountInsideAftermathWindow(t *testing.T) {
	sim, sett := newTestSim(nil)
	st := buildStructure(sett, "farm", 1, 0, 0)
	st.Health = 60

	d := newQuake()
	sim.ScheduleDisaster(d)
	d.Phase = PhaseAftermath
	d.RepairWindowEnd = 1000
	sim.SetTick(500)

	before := sett.Ledger.Stock()
	if err := sim.RepairStructure(sett.OwnerID, sett.ID, st.ID); err != nil {
		t.Fatalf("repair: %v", err)
	}
	// Half price: 20 units × 0.5 discount, 50% of it in wood.
	if got := before[resources.Wood] - sett.Ledger.Stock()[resources.Wood]; got != resources.FromFloat(5) {
		t.Errorf("discounted wood cost = %d, want 5 units", got)
	}
}

func TestRepairDestroyedStructureRejected(t *testing.T) {
	sim, sett := newTestSim(nil)
	st := buildStructure(sett, "farm", 1, 0, 0)
	st.Health = 0
	st.Destroyed = true

	if err := sim.RepairStructure(sett.OwnerID, sett.ID, st.ID); ErrorCode(err) != CodeNotFound {
		t.Errorf("repair of a ruin = %v, want NOT_FOUND", err)
	}
}
