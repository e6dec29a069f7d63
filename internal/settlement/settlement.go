// Package settlement holds the domain state the simulation mutates: the
// settlements themselves, their structures, population records, and
// construction queues.
package settlement

import (
	"sync"

	"github.com/talgya/steadfall/internal/resources"
)

// Tile is a production site inside a settlement. Quality is per-resource
// potential 0–100; quality 0 means the resource is absent on that tile.
type Tile struct {
	ID           int                     `json:"id"`
	Quality      [resources.NumTypes]int `json:"quality"`
	BaseModifier float64                 `json:"base_modifier"`
	Slots        int                     `json:"slots"` // Extractor slots on this tile.
}

// PopulationRecord tracks a settlement's headcount and mood.
type PopulationRecord struct {
	Count     int     `json:"count"`
	Capacity  int     `json:"capacity"`
	Happiness float64 `json:"happiness"` // 0–100 composite.

	LastGrowthTick uint64 `json:"last_growth_tick"`

	// TraumaSeverity decays over time; it is raised by disaster casualties
	// and feeds the recent-trauma happiness factor.
	TraumaSeverity float64 `json:"trauma_severity"`
	LastTraumaTick uint64  `json:"last_trauma_tick"`
}

// Settlement is one player holding on the map. All mutation happens under
// the settlement's own lock; the simulation never takes a global lock.
type Settlement struct {
	ID      uint64 `json:"id"`
	OwnerID uint64 `json:"owner_id"`
	Name    string `json:"name"`
	Biome   string `json:"biome"`
	Tier    int    `json:"tier"`

	AreaUsed     int `json:"area_used"`
	AreaCapacity int `json:"area_capacity"`

	Ledger     *resources.Ledger `json:"-"`
	Population PopulationRecord  `json:"population"`
	Structures []*Structure      `json:"structures"`
	Queue      []*QueueItem      `json:"queue"`
	Tiles      []Tile            `json:"tiles"`

	// Research the settlement has completed, for prerequisite checks.
	Research map[string]bool `json:"research,omitempty"`

	// LastProductionTick is the last tick production/consumption was applied
	// through. Elapsed ticks are floor-truncated from this.
	LastProductionTick uint64 `json:"last_production_tick"`

	nextStructureID uint64

	mu sync.Mutex
}

// Lock serializes all mutation of this settlement, tick work and player
// commands alike.
func (s *Settlement) Lock() { s.mu.Lock() }

// Unlock releases the settlement lock.
func (s *Settlement) Unlock() { s.mu.Unlock() }

// Tile returns the tile with the given id, or nil.
func (s *Settlement) Tile(id int) *Tile {
	for i := range s.Tiles {
		if s.Tiles[i].ID == id {
			return &s.Tiles[i]
		}
	}
	return nil
}

// Structure returns the structure with the given id, destroyed or not, or nil.
func (s *Settlement) Structure(id uint64) *Structure {
	for _, st := range s.Structures {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// NextStructureID allocates a structure id unique within this settlement's
// lifetime.
func (s *Settlement) NextStructureID() uint64 {
	s.nextStructureID++
	return s.nextStructureID
}

// SeedStructureID moves the id sequence past ids loaded from persistence.
func (s *Settlement) SeedStructureID(maxSeen uint64) {
	if maxSeen > s.nextStructureID {
		s.nextStructureID = maxSeen
	}
}

// BestTileQuality returns the highest quality any tile offers for a
// resource. Used for base production when no extractor exists.
func (s *Settlement) BestTileQuality(t resources.Type) (quality int, baseMod float64) {
	baseMod = 1.0
	for i := range s.Tiles {
		if q := s.Tiles[i].Quality[t]; q > quality {
			quality = q
			baseMod = s.Tiles[i].BaseModifier
		}
	}
	return quality, baseMod
}

// SlotTaken reports whether (tile, slot) is held by a living extractor or
// reserved by a non-terminal queue item. The bool pair distinguishes the
// two cases for error reporting.
func (s *Settlement) SlotTaken(tileID, slot int) (occupied, reserved bool) {
	for _, st := range s.Structures {
		if st.Destroyed || st.TileID == nil || st.Slot == nil {
			continue
		}
		if *st.TileID == tileID && *st.Slot == slot {
			return true, false
		}
	}
	for _, item := range s.Queue {
		if item.Terminal() || item.TileID == nil || item.Slot == nil {
			continue
		}
		if *item.TileID == tileID && *item.Slot == slot {
			return false, true
		}
	}
	return false, false
}
