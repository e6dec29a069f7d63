package engine

import (
	"github.com/talgya/steadfall/internal/catalog"
	"github.com/talgya/steadfall/internal/config"
	"github.com/talgya/steadfall/internal/resources"
	"github.com/talgya/steadfall/internal/settlement"
)

// newTestSim builds a world with the default catalog and a single plains
// settlement holding two tiles and a healthy opening stock.
func newTestSim(tweak func(*config.Config)) (*Simulation, *settlement.Settlement) {
	cfg := config.Defaults()
	cfg.StorageCapacity = 0 // Uncapped unless a test opts in.
	if tweak != nil {
		tweak(&cfg)
	}
	sim := NewSimulation(&cfg, catalog.Default(), 1)

	sett := &settlement.Settlement{
		ID:           1,
		OwnerID:      7,
		Name:         "Hearthstead",
		Biome:        "plains",
		Tier:         2,
		AreaCapacity: 10,
		Ledger:       resources.NewLedger(resources.FromUnits(500, 500, 500, 500, 500), 0),
		Tiles: []settlement.Tile{
			{ID: 0, Quality: [resources.NumTypes]int{60, 50, 40, 30, 20}, BaseModifier: 1.0, Slots: 2},
			{ID: 1, Quality: [resources.NumTypes]int{20, 80, 10, 70, 50}, BaseModifier: 1.0, Slots: 2},
		},
	}
	sett.Population.Count = 20
	sim.AddSettlement(sett)
	return sim, sett
}

// buildStructure places a completed structure directly, bypassing the queue.
func buildStructure(sett *settlement.Settlement, defID string, level int, tileID, slot int) *settlement.Structure {
	st := &settlement.Structure{
		ID:           sett.NextStructureID(),
		SettlementID: sett.ID,
		DefID:        defID,
		Level:        level,
		Health:       100,
	}
	if tileID >= 0 {
		t, sl := tileID, slot
		st.TileID, st.Slot = &t, &sl
	}
	sett.Structures = append(sett.Structures, st)
	return st
}

// submit is a shorthand for a new-build submission by the owner.
func submit(sim *Simulation, sett *settlement.Settlement, defID string, tileID, slot int) (*settlement.QueueItem, error) {
	return sim.SubmitConstruction(SubmitRequest{
		ActorID:      sett.OwnerID,
		SettlementID: sett.ID,
		DefID:        defID,
		TileID:       tileID,
		Slot:         slot,
	})
}
