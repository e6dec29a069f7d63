package engine

import (
	"testing"

	"github.com/talgya/steadfall/internal/config"
	"github.com/talgya/steadfall/internal/resources"
	"github.com/talgya/steadfall/internal/settlement"
)

func TestSubmitDebitsAndStarts(t *testing.T) {
	sim, sett := newTestSim(nil)

	item, err := submit(sim, sett, "cottage", -1, 0)
	if err != nil {
		t.Fatalf("submit cottage: %v", err)
	}
	if item.Status != settlement.StatusInProgress {
		t.Errorf("first item status = %s, want IN_PROGRESS", item.Status)
	}
	if item.Position != 0 {
		t.Errorf("position = %d, want 0", item.Position)
	}

	stock := sett.Ledger.Stock()
	if got := resources.Units(stock[resources.Wood]); got != 470 {
		t.Errorf("wood after cottage = %d, want 470", got)
	}
	if got := resources.Units(stock[resources.Stone]); got != 480 {
		t.Errorf("stone after cottage = %d, want 480", got)
	}
	if sett.AreaUsed != 1 {
		t.Errorf("area used = %d, want 1", sett.AreaUsed)
	}
}

func TestQueueFullRejectedBeforeDebit(t *testing.T) {
	sim, sett := newTestSim(func(cfg *config.Config) {
		cfg.QueueMaxItems = 3
	})
	farm := buildStructure(sett, "farm", 1, 0, 0)

	for i := 0; i < 3; i++ {
		if _, err := sim.SubmitConstruction(SubmitRequest{
			ActorID: sett.OwnerID, SettlementID: sett.ID, DefID: "farm", UpgradeOf: farm.ID,
		}); err != nil {
			t.Fatalf("upgrade %d: %v", i, err)
		}
	}

	before := sett.Ledger.Stock()
	_, err := sim.SubmitConstruction(SubmitRequest{
		ActorID: sett.OwnerID, SettlementID: sett.ID, DefID: "farm", UpgradeOf: farm.ID,
	})
	if ErrorCode(err) != CodeQueueFull {
		t.Fatalf("4th submission error = %v, want QUEUE_FULL", err)
	}
	if sett.Ledger.Stock() != before {
		t.Error("rejected submission changed the ledger")
	}
	if sett.ActiveQueueCount() != 3 {
		t.Errorf("active queue = %d, want 3", sett.ActiveQueueCount())
	}
}

func TestUpgradeTargetsStack(t *testing.T) {
	sim, sett := newTestSim(nil)
	farm := buildStructure(sett, "farm", 1, 0, 0)

	first, err := sim.SubmitConstruction(SubmitRequest{
		ActorID: sett.OwnerID, SettlementID: sett.ID, DefID: "farm", UpgradeOf: farm.ID,
	})
	if err != nil {
		t.Fatalf("first upgrade: %v", err)
	}
	second, err := sim.SubmitConstruction(SubmitRequest{
		ActorID: sett.OwnerID, SettlementID: sett.ID, DefID: "farm", UpgradeOf: farm.ID,
	})
	if err != nil {
		t.Fatalf("second upgrade: %v", err)
	}

	if first.TargetLevel != 2 || second.TargetLevel != 3 {
		t.Errorf("target levels = %d, %d, want 2, 3", first.TargetLevel, second.TargetLevel)
	}
	// Costs scale with target level: 40×2 + 40×3 wood deducted.
	if got := resources.Units(sett.Ledger.Stock()[resources.Wood]); got != 500-80-120 {
		t.Errorf("wood = %d, want 300", got)
	}
}

func TestCancelRefundsAndRenumbers(t *testing.T) {
	sim, sett := newTestSim(nil)
	opening := sett.Ledger.Stock()

	first, err := submit(sim, sett, "cottage", -1, 0)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := submit(sim, sett, "granary", -1, 0)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	third, err := submit(sim, sett, "cottage", -1, 0)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if second.Status != settlement.StatusQueued || third.Status != settlement.StatusQueued {
		t.Fatal("expected items beyond the concurrency limit to be QUEUED")
	}

	if err := sim.CancelConstruction(sett.OwnerID, sett.ID, second.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if second.Status != settlement.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", second.Status)
	}

	// Positions collapse to a dense 0-based run.
	if first.Position != 0 || third.Position != 1 {
		t.Errorf("positions = %d, %d, want 0, 1", first.Position, third.Position)
	}

	// Cancel the rest: the ledger returns exactly to its opening stock.
	if err := sim.CancelConstruction(sett.OwnerID, sett.ID, third.ID); err != nil {
		t.Fatalf("cancel third: %v", err)
	}
	if first.Status != settlement.StatusInProgress {
		t.Fatal("in-progress item should be untouched by cancellations")
	}
	want := opening
	want[resources.Wood] -= 30 * resources.Milli
	want[resources.Stone] -= 20 * resources.Milli
	if got := sett.Ledger.Stock(); got != want {
		t.Errorf("stock = %v, want %v", got, want)
	}
}

func TestInProgressNotCancellable(t *testing.T) {
	sim, sett := newTestSim(nil)
	item, err := submit(sim, sett, "cottage", -1, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	err = sim.CancelConstruction(sett.OwnerID, sett.ID, item.ID)
	if ErrorCode(err) != CodeNotCancellable {
		t.Errorf("cancel in-progress error = %v, want NOT_CANCELLABLE", err)
	}
	if item.Status != settlement.StatusInProgress {
		t.Errorf("status = %s, want still IN_PROGRESS", item.Status)
	}
}

func TestCancelByNonOwnerRejected(t *testing.T) {
	sim, sett := newTestSim(nil)
	if _, err := submit(sim, sett, "cottage", -1, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	item, err := submit(sim, sett, "granary", -1, 0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := sim.CancelConstruction(999, sett.ID, item.ID); ErrorCode(err) != CodeNotOwner {
		t.Errorf("error = %v, want NOT_OWNER", err)
	}
}

func TestSlotValidation(t *testing.T) {
	sim, sett := newTestSim(nil)
	buildStructure(sett, "farm", 1, 0, 0)

	if _, err := submit(sim, sett, "well", 0, 0); ErrorCode(err) != CodeSlotOccupied {
		t.Errorf("occupied slot error = %v, want SLOT_OCCUPIED", err)
	}
	if _, err := submit(sim, sett, "well", 0, 5); ErrorCode(err) != CodeSlotOutOfRange {
		t.Errorf("out-of-range slot error = %v, want SLOT_OUT_OF_RANGE", err)
	}
	if _, err := submit(sim, sett, "well", 9, 0); ErrorCode(err) != CodeSlotOutOfRange {
		t.Errorf("missing tile error = %v, want SLOT_OUT_OF_RANGE", err)
	}

	// A queued item reserves its slot until it resolves.
	if _, err := submit(sim, sett, "well", 0, 1); err != nil {
		t.Fatalf("reserve slot: %v", err)
	}
	if _, err := submit(sim, sett, "lumber_camp", 0, 1); ErrorCode(err) != CodeSlotReserved {
		t.Errorf("reserved slot error = %v, want SLOT_RESERVED", err)
	}
}

func TestPrerequisitesEnforced(t *testing.T) {
	sim, sett := newTestSim(nil)

	_, err := submit(sim, sett, "quarry", 0, 0)
	if ErrorCode(err) != CodePrerequisitesNotMet {
		t.Fatalf("quarry without lumber camp = %v, want PREREQUISITES_NOT_MET", err)
	}

	buildStructure(sett, "lumber_camp", 1, 0, 0)
	if _, err := submit(sim, sett, "quarry", 0, 1); err != nil {
		t.Fatalf("quarry with lumber camp: %v", err)
	}

	// Research-gated building.
	if _, err := submit(sim, sett, "watchtower", -1, 0); ErrorCode(err) != CodePrerequisitesNotMet {
		t.Errorf("watchtower without masonry = %v, want PREREQUISITES_NOT_MET", err)
	}
	sett.Research["masonry"] = true
	if _, err := submit(sim, sett, "watchtower", -1, 0); err != nil {
		t.Errorf("watchtower with masonry: %v", err)
	}
}

func TestUniqueBuildingConflicts(t *testing.T) {
	sim, sett := newTestSim(nil)

	if _, err := submit(sim, sett, "town_hall", -1, 0); err != nil {
		t.Fatalf("first town hall: %v", err)
	}
	if _, err := submit(sim, sett, "town_hall", -1, 0); ErrorCode(err) != CodeUniqueConflict {
		t.Errorf("queued duplicate = %v, want UNIQUE_CONFLICT", err)
	}
}

func TestAreaExhausted(t *testing.T) {
	sim, sett := newTestSim(nil)
	sett.AreaCapacity = 1

	if _, err := submit(sim, sett, "cottage", -1, 0); err != nil {
		t.Fatalf("first cottage: %v", err)
	}
	if _, err := submit(sim, sett, "granary", -1, 0); ErrorCode(err) != CodeAreaExhausted {
		t.Errorf("over-area error = %v, want AREA_EXHAUSTED", err)
	}
}

func TestTierGate(t *testing.T) {
	sim, sett := newTestSim(nil)
	sett.Tier = 1

	if _, err := submit(sim, sett, "town_hall", -1, 0); ErrorCode(err) != CodeTierTooLow {
		t.Errorf("tier-2 building in tier-1 settlement = %v, want TIER_TOO_LOW", err)
	}
}

func TestInsufficientResources(t *testing.T) {
	sim, sett := newTestSim(nil)
	sett.Ledger = resources.NewLedger(resources.FromUnits(1, 1, 1, 1, 1), 0)

	_, err := submit(sim, sett, "cottage", -1, 0)
	if ErrorCode(err) != CodeInsufficientResources {
		t.Fatalf("error = %v, want INSUFFICIENT_RESOURCES", err)
	}
	if detail := ErrorDetail(err); detail["shortfall"] == nil {
		t.Error("expected shortfall detail on insufficiency")
	}
	if sett.ActiveQueueCount() != 0 {
		t.Error("rejected submission left a queue item")
	}
}

func TestCompletionPromotesAndMaterializes(t *testing.T) {
	sim, sett := newTestSim(nil)

	first, err := submit(sim, sett, "cottage", -1, 0) // 20 ticks
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := submit(sim, sett, "granary", -1, 0) // queued behind it
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	sim.Tick(first.CompletesTick)

	if first.Status != settlement.StatusComplete {
		t.Fatalf("first status = %s, want COMPLETE", first.Status)
	}
	var built *settlement.Structure
	for _, st := range sett.Structures {
		if st.DefID == "cottage" {
			built = st
		}
	}
	if built == nil {
		t.Fatal("completed cottage did not materialize")
	}
	if built.Health != 100 || built.Level != 1 || built.CreatedTick != first.CompletesTick {
		t.Errorf("materialized structure = level %d health %d created %d",
			built.Level, built.Health, built.CreatedTick)
	}

	if second.Status != settlement.StatusInProgress {
		t.Errorf("second status = %s, want promoted to IN_PROGRESS", second.Status)
	}
	if second.Position != 0 {
		t.Errorf("promoted position = %d, want 0", second.Position)
	}
	if second.CompletesTick != first.CompletesTick+second.DurationTicks {
		t.Errorf("promoted completes at %d, want %d",
			second.CompletesTick, first.CompletesTick+second.DurationTicks)
	}

	// Housing capacity reflects the new cottage at the next staffing pass.
	if got := HousingCapacity(sim.Catalog(), sett, sim.Config().BaseHousing); got != 15 {
		t.Errorf("housing capacity = %d, want base 10 + cottage 5", got)
	}
}

func TestUpgradeMaterializesOnExistingStructure(t *testing.T) {
	sim, sett := newTestSim(nil)
	farm := buildStructure(sett, "farm", 1, 0, 0)

	item, err := sim.SubmitConstruction(SubmitRequest{
		ActorID: sett.OwnerID, SettlementID: sett.ID, DefID: "farm", UpgradeOf: farm.ID,
	})
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	sim.Tick(item.CompletesTick)
	if farm.Level != 2 {
		t.Errorf("farm level = %d, want 2", farm.Level)
	}
	if n := len(sett.Structures); n != 1 {
		t.Errorf("structure count = %d, upgrade must not create a new instance", n)
	}
}

func TestUpgradeLostWhenTargetDestroyed(t *testing.T) {
	sim, sett := newTestSim(nil)
	farm := buildStructure(sett, "farm", 1, 0, 0)

	item, err := sim.SubmitConstruction(SubmitRequest{
		ActorID: sett.OwnerID, SettlementID: sett.ID, DefID: "farm", UpgradeOf: farm.ID,
	})
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	farm.Destroyed = true
	farm.Health = 0
	sim.Tick(item.CompletesTick)

	if item.Status != settlement.StatusComplete {
		t.Errorf("item status = %s, want COMPLETE (work lost, not refunded)", item.Status)
	}
	if farm.Level != 1 {
		t.Errorf("destroyed farm level = %d, want unchanged", farm.Level)
	}
}
