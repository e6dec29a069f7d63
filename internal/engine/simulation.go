// Simulation ties the settlement systems together and advances them each tick.
package engine

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/steadfall/internal/catalog"
	"github.com/talgya/steadfall/internal/config"
	"github.com/talgya/steadfall/internal/entropy"
	"github.com/talgya/steadfall/internal/resources"
	"github.com/talgya/steadfall/internal/settlement"
)

// Simulation holds one world's settlements and drives their economy. All
// per-settlement mutation happens under that settlement's own lock —
// there is no global simulation lock, so settlements tick in parallel.
type Simulation struct {
	WorldID   uint64
	WorldMult float64

	cfg *config.Config
	cat *catalog.Catalog
	rng *entropy.Source

	// noise textures disaster damage; seeded with the world seed so a world
	// replays identically.
	noise opensimplex.Noise

	settlementMu sync.RWMutex
	settlements  map[uint64]*settlement.Settlement

	disasterMu sync.Mutex
	disasters  []*DisasterEvent

	tick atomic.Uint64

	eventMu sync.Mutex
	events  []Event

	notifier Notifier
	store    Store
}

// NewSimulation creates a world from configuration and catalog tables.
func NewSimulation(cfg *config.Config, cat *catalog.Catalog, worldID uint64) *Simulation {
	return &Simulation{
		WorldID:     worldID,
		WorldMult:   cfg.WorldMultiplier,
		cfg:         cfg,
		cat:         cat,
		rng:         entropy.NewSource(cfg.WorldSeed),
		noise:       opensimplex.New(cfg.WorldSeed),
		settlements: make(map[uint64]*settlement.Settlement),
	}
}

// SetNotifier attaches the event fan-out adapter.
func (s *Simulation) SetNotifier(n Notifier) { s.notifier = n }

// SetStore attaches the persistence adapter for command-path writes.
func (s *Simulation) SetStore(st Store) { s.store = st }

// Config exposes the active tuning (read-only by convention).
func (s *Simulation) Config() *config.Config { return s.cfg }

// Catalog exposes the static tables.
func (s *Simulation) Catalog() *catalog.Catalog { return s.cat }

// CurrentTick returns the most recently started tick.
func (s *Simulation) CurrentTick() uint64 { return s.tick.Load() }

// SetTick restores the tick counter from persistence at startup.
func (s *Simulation) SetTick(t uint64) { s.tick.Store(t) }

// AddSettlement registers a settlement with the world and derives its
// initial capacity and staffing.
func (s *Simulation) AddSettlement(sett *settlement.Settlement) {
	if sett.Ledger == nil {
		sett.Ledger = resources.NewLedger(resources.Amounts{}, s.cfg.StorageCapacity*resources.Milli)
	}
	if sett.Research == nil {
		sett.Research = make(map[string]bool)
	}
	var maxID uint64
	for _, st := range sett.Structures {
		if st.ID > maxID {
			maxID = st.ID
		}
	}
	sett.SeedStructureID(maxID)
	sett.Population.Capacity = HousingCapacity(s.cat, sett, s.cfg.BaseHousing)
	AssignStaffing(s.cat, sett)

	s.settlementMu.Lock()
	s.settlements[sett.ID] = sett
	s.settlementMu.Unlock()
}

// Settlement returns the settlement with the given id, or nil.
func (s *Simulation) Settlement(id uint64) *settlement.Settlement {
	s.settlementMu.RLock()
	defer s.settlementMu.RUnlock()
	return s.settlements[id]
}

// Settlements returns all settlements ordered by id.
func (s *Simulation) Settlements() []*settlement.Settlement {
	s.settlementMu.RLock()
	out := make([]*settlement.Settlement, 0, len(s.settlements))
	for _, sett := range s.settlements {
		out = append(out, sett)
	}
	s.settlementMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tick advances the world by one tick: every settlement advances its queue,
// applies production, and evaluates growth when due; then active disasters
// step against the updated structure set.
func (s *Simulation) Tick(tick uint64) {
	s.tick.Store(tick)

	setts := s.Settlements()
	var wg sync.WaitGroup
	for _, sett := range setts {
		wg.Add(1)
		go func(sett *settlement.Settlement) {
			defer wg.Done()
			s.tickSettlement(sett, tick)
		}(sett)
	}
	wg.Wait()

	s.stepDisasters(tick)
}

// tickSettlement runs one settlement's tick under its lock. Order matters:
// queue advancement first so a structure completed this tick contributes to
// this tick's production, growth last so it sees the freshest stock.
func (s *Simulation) tickSettlement(sett *settlement.Settlement, tick uint64) {
	sett.Lock()
	defer sett.Unlock()

	s.advanceQueue(sett, tick)
	s.applyProduction(sett, tick)

	if tick >= sett.Population.LastGrowthTick+s.cfg.GrowthIntervalTicks {
		s.applyGrowth(sett, tick)
	}
}

// applyProduction computes and applies the net resource delta for the ticks
// elapsed since the last application. Caller holds the settlement lock.
func (s *Simulation) applyProduction(sett *settlement.Settlement, tick uint64) resources.Amounts {
	if tick <= sett.LastProductionTick {
		return resources.Amounts{} // Zero elapsed ticks: zero delta, no transitions.
	}
	elapsed := tick - sett.LastProductionTick
	delta := toAmounts(NetDelta(s.cfg, s.cat, sett, elapsed, s.WorldMult))
	sett.Ledger.ApplyNet(delta)
	sett.LastProductionTick = tick
	return delta
}

// persist writes a settlement through the store port, if one is attached.
func (s *Simulation) persist(sett *settlement.Settlement) error {
	if s.store == nil {
		return nil
	}
	return s.store.SaveSettlement(sett)
}

// persistPair writes both ends of a transfer. Not atomic across the pair;
// the source is authoritative and written first.
func (s *Simulation) persistPair(a, b *settlement.Settlement) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveSettlement(a); err != nil {
		return err
	}
	return s.store.SaveSettlement(b)
}

// LogEconomyReport writes a world summary line. Called on the save cadence.
func (s *Simulation) LogEconomyReport(tick uint64) {
	var pop int
	var stock resources.Amounts
	setts := s.Settlements()
	for _, sett := range setts {
		sett.Lock()
		pop += sett.Population.Count
		stock = stock.Add(sett.Ledger.Stock())
		sett.Unlock()
	}
	slog.Info("economy report",
		"tick", tick,
		"settlements", len(setts),
		"population", humanize.Comma(int64(pop)),
		"food", humanize.Comma(resources.Units(stock[resources.Food])),
		"water", humanize.Comma(resources.Units(stock[resources.Water])),
		"wood", humanize.Comma(resources.Units(stock[resources.Wood])),
		"stone", humanize.Comma(resources.Units(stock[resources.Stone])),
		"ore", humanize.Comma(resources.Units(stock[resources.Ore])),
	)
}
