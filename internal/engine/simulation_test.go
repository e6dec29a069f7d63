package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/talgya/steadfall/internal/config"
	"github.com/talgya/steadfall/internal/resources"
	"github.com/talgya/steadfall/internal/settlement"
)

func TestTickIdempotentAtSameTick(t *testing.T) {
	sim, sett := newTestSim(nil)

	sim.Tick(10)
	after := sett.Ledger.Stock()

	// Replaying the same tick applies a zero delta and flips no state.
	sim.Tick(10)
	if got := sett.Ledger.Stock(); got != after {
		t.Errorf("stock after replay = %v, want unchanged %v", got, after)
	}
	if sett.LastProductionTick != 10 {
		t.Errorf("last production tick = %d, want 10", sett.LastProductionTick)
	}
}

func TestElapsedTicksAccumulate(t *testing.T) {
	simA, settA := newTestSim(nil)
	simB, settB := newTestSim(nil)

	// One 10-tick application equals ten 1-tick applications, modulo the
	// per-application truncation to milliunits.
	simA.Tick(10)
	for i := uint64(1); i <= 10; i++ {
		simB.Tick(i)
	}

	a := settA.Ledger.Stock()
	b := settB.Ledger.Stock()
	for i := range a {
		diff := a[i] - b[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 10 { // Up to one milliunit of truncation per application.
			t.Errorf("resource %d drifted %d milli between batched and stepped ticks", i, diff)
		}
	}
}

func TestStructureCompletedThisTickProducesThisTick(t *testing.T) {
	sim, sett := newTestSim(nil)

	item, err := submit(sim, sett, "farm", 0, 0)
	if err != nil {
		t.Fatalf("submit farm: %v", err)
	}

	sim.Tick(item.CompletesTick - 1)
	before := sett.Ledger.Stock()[resources.Food]

	sim.Tick(item.CompletesTick)
	if item.Status != settlement.StatusComplete {
		t.Fatalf("farm not completed at tick %d", item.CompletesTick)
	}

	// The farm's tier multiplier applies to the completion tick itself:
	// 0.6 quality × 1.2 plains × 0.2 base share × (0.5 tier × 1.2 staffing)
	// − 0.04 food consumption for 20 people = 0.0464 units.
	got := sett.Ledger.Stock()[resources.Food] - before
	if got != 46 {
		t.Errorf("food delta on completion tick = %d milli, want 46", got)
	}
}

func TestAddSettlementDerivesState(t *testing.T) {
	sim, _ := newTestSim(func(cfg *config.Config) {
		cfg.StorageCapacity = 2000
	})

	sett := &settlement.Settlement{ID: 5, OwnerID: 7, Biome: "forest", Tier: 1}
	sett.Structures = append(sett.Structures, &settlement.Structure{
		ID: 3, SettlementID: 5, DefID: "cottage", Level: 2, Health: 100,
	})
	sim.AddSettlement(sett)

	if sett.Ledger == nil || sett.Ledger.Capacity() != 2000*resources.Milli {
		t.Error("ledger not initialized with configured storage capacity")
	}
	if sett.Population.Capacity != 10+10 {
		t.Errorf("capacity = %d, want base 10 + cottage level 2", sett.Population.Capacity)
	}

	// New structure IDs continue above the restored set.
	if next := sett.NextStructureID(); next != 4 {
		t.Errorf("next structure id = %d, want 4", next)
	}
}

func TestSettlementsSortedByID(t *testing.T) {
	sim, _ := newTestSim(nil)
	sim.AddSettlement(&settlement.Settlement{ID: 9, OwnerID: 7, Biome: "forest"})
	sim.AddSettlement(&settlement.Settlement{ID: 4, OwnerID: 7, Biome: "highland"})

	ids := []uint64{}
	for _, s := range sim.Settlements() {
		ids = append(ids, s.ID)
	}
	want := []uint64{1, 4, 9}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("settlement order = %v, want %v", ids, want)
		}
	}
}

// recorder captures published events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) byType(evType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == evType {
			out = append(out, ev)
		}
	}
	return out
}

func TestNotifierReceivesEvents(t *testing.T) {
	sim, sett := newTestSim(nil)
	rec := &recorder{}
	sim.SetNotifier(rec)

	if _, err := submit(sim, sett, "cottage", -1, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got := rec.byType(EvConstructionStarted)
	if len(got) != 1 {
		t.Fatalf("started events = %d, want 1", len(got))
	}
	if got[0].SettlementID != sett.ID {
		t.Errorf("event settlement = %d, want %d", got[0].SettlementID, sett.ID)
	}
	if got[0].Payload["def_id"] != "cottage" {
		t.Errorf("event payload def_id = %v, want cottage", got[0].Payload["def_id"])
	}
}

func TestRecentEventsLimit(t *testing.T) {
	sim, sett := newTestSim(nil)
	for i := 0; i < 3; i++ {
		if _, err := submit(sim, sett, "granary", -1, 0); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	all := sim.RecentEvents(0)
	if len(all) != 3 {
		t.Fatalf("event count = %d, want 3", len(all))
	}
	last := sim.RecentEvents(1)
	if len(last) != 1 {
		t.Fatalf("RecentEvents(1) returned %d events", len(last))
	}
	if last[0].Type != all[2].Type || last[0].Payload["item_id"] != all[2].Payload["item_id"] {
		t.Error("RecentEvents(1) must return the newest event")
	}
}

func TestEngineRunAdvancesAndSaves(t *testing.T) {
	sim, _ := newTestSim(func(cfg *config.Config) {
		cfg.TickInterval = time.Millisecond
		cfg.SaveEveryTicks = 2
	})
	eng := NewEngine(sim)

	var mu sync.Mutex
	var saves []uint64
	eng.OnSave = func(tick uint64) {
		mu.Lock()
		saves = append(saves, tick)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sim.CurrentTick() < 4 {
		select {
		case <-deadline:
			t.Fatal("engine did not reach tick 4 in time")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(saves) == 0 {
		t.Fatal("no saves on the save cadence")
	}
	for _, tick := range saves {
		if tick%2 != 0 {
			t.Errorf("save at tick %d, want multiples of 2", tick)
		}
	}
}
