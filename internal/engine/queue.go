// Construction queue — submission, advancement, cancellation.
package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/talgya/steadfall/internal/catalog"
	"github.com/talgya/steadfall/internal/settlement"
)

// SubmitRequest is a player build or upgrade command.
type SubmitRequest struct {
	ActorID      uint64
	SettlementID uint64
	DefID        string

	// UpgradeOf targets an existing structure for a level increment; zero
	// requests a new build.
	UpgradeOf uint64

	// Extractor placement. Ignored for buildings and upgrades.
	TileID int
	Slot   int
}

// SubmitConstruction validates and enqueues a build/upgrade. The debit,
// queue append, and slot reservation succeed together or not at all; a
// rejected submission leaves resources and queue untouched.
func (s *Simulation) SubmitConstruction(req SubmitRequest) (*settlement.QueueItem, error) {
	sett := s.Settlement(req.SettlementID)
	if sett == nil {
		return nil, notFoundErr("settlement", req.SettlementID)
	}

	sett.Lock()
	defer sett.Unlock()

	if sett.OwnerID != req.ActorID {
		return nil, ownershipErr(sett.ID, req.ActorID)
	}

	def := s.cat.Get(req.DefID)
	if def == nil {
		return nil, notFoundErr("structure_definition", req.DefID)
	}

	item := &settlement.QueueItem{
		ID:           uuid.NewString(),
		SettlementID: sett.ID,
		DefID:        def.ID,
		TargetLevel:  1,
	}

	if req.UpgradeOf != 0 {
		target := sett.Structure(req.UpgradeOf)
		if target == nil || target.Destroyed {
			return nil, notFoundErr("structure", req.UpgradeOf)
		}
		if target.DefID != def.ID {
			return nil, validationErr("upgrade definition does not match structure")
		}
		// The target level accounts for upgrades already in the queue so two
		// queued upgrades of the same structure stack correctly.
		item.UpgradeOf = target.ID
		item.TargetLevel = target.Level + 1 + pendingUpgrades(sett, target.ID)
		if def.MaxLevel > 0 && item.TargetLevel > def.MaxLevel {
			return nil, newErr(ClassPrecondition, CodeMaxLevel, "structure at max level").
				with("max_level", def.MaxLevel)
		}
	}

	// 1. Prerequisites.
	if missing := missingPrerequisites(s.cat, sett, def); len(missing) > 0 {
		return nil, newErr(ClassPrecondition, CodePrerequisitesNotMet, "prerequisites not met").
			with("missing", missing)
	}

	// 2. Extractor tile/slot validation and reservation target.
	if def.Category == catalog.CategoryExtractor && item.UpgradeOf == 0 {
		tile := sett.Tile(req.TileID)
		if tile == nil {
			return nil, newErr(ClassPrecondition, CodeSlotOutOfRange, "no such tile").
				with("tile_id", req.TileID)
		}
		if req.Slot < 0 || req.Slot >= tile.Slots {
			return nil, newErr(ClassPrecondition, CodeSlotOutOfRange, "slot out of range").
				with("tile_id", req.TileID).with("slot", req.Slot).with("slots", tile.Slots)
		}
		occupied, reserved := sett.SlotTaken(req.TileID, req.Slot)
		if occupied {
			return nil, newErr(ClassPrecondition, CodeSlotOccupied, "slot occupied").
				with("tile_id", req.TileID).with("slot", req.Slot)
		}
		if reserved {
			return nil, newErr(ClassPrecondition, CodeSlotReserved, "slot reserved by queued construction").
				with("tile_id", req.TileID).with("slot", req.Slot)
		}
		tileID, slot := req.TileID, req.Slot
		item.TileID, item.Slot = &tileID, &slot
	}

	// 3. Building area / tier / uniqueness.
	if def.Category == catalog.CategoryBuilding && item.UpgradeOf == 0 {
		if err := checkBuildingConstraints(sett, def); err != nil {
			return nil, err
		}
	}

	// 4. Queue capacity, checked before the debit so a full queue never
	// touches resources.
	if sett.ActiveQueueCount() >= s.cfg.QueueMaxItems {
		return nil, newErr(ClassPrecondition, CodeQueueFull, "construction queue full").
			with("limit", s.cfg.QueueMaxItems)
	}

	// 5. Atomic debit.
	cost := def.CostAmounts(item.TargetLevel)
	if err := sett.Ledger.Debit(cost); err != nil {
		return nil, insufficientErr(err)
	}
	item.Deducted = cost
	item.DurationTicks = def.BuildDuration(item.TargetLevel)

	// Position and activation.
	item.Position = sett.ActiveQueueCount()
	tick := s.CurrentTick()
	if sett.InProgressCount() < s.cfg.QueueConcurrency {
		item.Status = settlement.StatusInProgress
		item.StartedTick = tick
		item.CompletesTick = tick + item.DurationTicks
	} else {
		item.Status = settlement.StatusQueued
	}
	sett.Queue = append(sett.Queue, item)

	if def.Category == catalog.CategoryBuilding && item.UpgradeOf == 0 {
		sett.AreaUsed += def.AreaCost
	}

	if err := s.persist(sett); err != nil {
		// Roll the whole submission back: the command fails cleanly.
		s.rollbackSubmission(sett, item, def)
		return nil, internalErr("persist submission", err)
	}

	evType := EvConstructionQueued
	if item.Status == settlement.StatusInProgress {
		evType = EvConstructionStarted
	}
	s.publish(Event{
		Tick: tick, Type: evType, SettlementID: sett.ID,
		Payload: map[string]any{
			"item_id":      item.ID,
			"def_id":       def.ID,
			"target_level": item.TargetLevel,
			"position":     item.Position,
		},
	})
	return item, nil
}

// rollbackSubmission undoes an in-memory submission after a persistence
// failure: refund, drop the item, release area. Slot reservations die with
// the item.
func (s *Simulation) rollbackSubmission(sett *settlement.Settlement, item *settlement.QueueItem, def *catalog.Definition) {
	sett.Ledger.Credit(item.Deducted)
	for i, q := range sett.Queue {
		if q.ID == item.ID {
			sett.Queue = append(sett.Queue[:i], sett.Queue[i+1:]...)
			break
		}
	}
	if def.Category == catalog.CategoryBuilding && item.UpgradeOf == 0 {
		sett.AreaUsed -= def.AreaCost
	}
	renumberQueue(sett)
}

// CancelConstruction cancels a QUEUED item, refunding its deducted cost in
// full. In-progress items cannot be cancelled, only completed.
func (s *Simulation) CancelConstruction(actorID uint64, settlementID uint64, itemID string) error {
	sett := s.Settlement(settlementID)
	if sett == nil {
		return notFoundErr("settlement", settlementID)
	}

	sett.Lock()
	defer sett.Unlock()

	if sett.OwnerID != actorID {
		return ownershipErr(sett.ID, actorID)
	}
	item := sett.QueueItemByID(itemID)
	if item == nil || item.Terminal() {
		return notFoundErr("queue_item", itemID)
	}
	if item.Status != settlement.StatusQueued {
		return newErr(ClassPrecondition, CodeNotCancellable, "in-progress construction cannot be cancelled").
			with("item_id", itemID)
	}

	item.Status = settlement.StatusCancelled
	sett.Ledger.Credit(item.Deducted)
	def := s.cat.Get(item.DefID)
	if def != nil && def.Category == catalog.CategoryBuilding && item.UpgradeOf == 0 {
		sett.AreaUsed -= def.AreaCost
	}
	renumberQueue(sett)

	if err := s.persist(sett); err != nil {
		// Undo the cancellation; the item and resources stay untouched.
		item.Status = settlement.StatusQueued
		if debitErr := sett.Ledger.Debit(item.Deducted); debitErr != nil {
			slog.Error("cancel rollback debit failed", "item", itemID, "error", debitErr)
		}
		if def != nil && def.Category == catalog.CategoryBuilding && item.UpgradeOf == 0 {
			sett.AreaUsed += def.AreaCost
		}
		renumberQueue(sett)
		return internalErr("persist cancellation", err)
	}

	s.publish(Event{
		Tick: s.CurrentTick(), Type: EvConstructionCancelled, SettlementID: sett.ID,
		Payload: map[string]any{"item_id": itemID, "refund": item.Deducted.Map()},
	})
	return nil
}

// advanceQueue completes due in-progress items, materializes them as
// structures, and promotes queued items into the freed slots. Runs first in
// a settlement's tick so a structure finished this tick produces this tick.
func (s *Simulation) advanceQueue(sett *settlement.Settlement, tick uint64) {
	changed := false
	for _, item := range sett.Queue {
		if item.Status != settlement.StatusInProgress || tick < item.CompletesTick {
			continue
		}
		item.Status = settlement.StatusComplete
		s.materialize(sett, item, tick)
		changed = true
	}
	if !changed {
		return
	}

	renumberQueue(sett)
	s.promoteQueued(sett, tick)
	AssignStaffing(s.cat, sett)
}

// promoteQueued starts queued items (lowest position first) while the
// concurrency limit has headroom, assigning fresh timestamps.
func (s *Simulation) promoteQueued(sett *settlement.Settlement, tick uint64) {
	for sett.InProgressCount() < s.cfg.QueueConcurrency {
		var next *settlement.QueueItem
		for _, item := range sett.Queue {
			if item.Status != settlement.StatusQueued {
				continue
			}
			if next == nil || item.Position < next.Position {
				next = item
			}
		}
		if next == nil {
			return
		}
		next.Status = settlement.StatusInProgress
		next.StartedTick = tick
		next.CompletesTick = tick + next.DurationTicks
		s.publish(Event{
			Tick: tick, Type: EvConstructionStarted, SettlementID: sett.ID,
			Payload: map[string]any{"item_id": next.ID, "def_id": next.DefID, "target_level": next.TargetLevel},
		})
	}
}

// materialize converts a completed item into a structure creation or a
// level increment on the existing instance.
func (s *Simulation) materialize(sett *settlement.Settlement, item *settlement.QueueItem, tick uint64) {
	if item.UpgradeOf != 0 {
		target := sett.Structure(item.UpgradeOf)
		if target == nil || target.Destroyed {
			// The structure died mid-upgrade (disaster). The work is lost.
			slog.Warn("upgrade target gone at completion", "settlement", sett.ID, "structure", item.UpgradeOf)
			return
		}
		target.Level = item.TargetLevel
		s.publish(Event{
			Tick: tick, Type: EvStructureUpgraded, SettlementID: sett.ID,
			Payload: map[string]any{"structure_id": target.ID, "def_id": target.DefID, "level": target.Level},
		})
	} else {
		st := &settlement.Structure{
			ID:           sett.NextStructureID(),
			SettlementID: sett.ID,
			DefID:        item.DefID,
			Level:        item.TargetLevel,
			Health:       100,
			TileID:       item.TileID,
			Slot:         item.Slot,
			CreatedTick:  tick,
		}
		sett.Structures = append(sett.Structures, st)
		s.publish(Event{
			Tick: tick, Type: EvStructureBuilt, SettlementID: sett.ID,
			Payload: map[string]any{"structure_id": st.ID, "def_id": st.DefID, "level": st.Level},
		})
	}
	s.publish(Event{
		Tick: tick, Type: EvConstructionCompleted, SettlementID: sett.ID,
		Payload: map[string]any{"item_id": item.ID, "def_id": item.DefID},
	})
}

// renumberQueue keeps non-terminal positions a dense 0-based permutation in
// their existing relative order.
func renumberQueue(sett *settlement.Settlement) {
	var active []*settlement.QueueItem
	for _, item := range sett.Queue {
		if !item.Terminal() {
			active = append(active, item)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		// In-progress items sort ahead of queued ones at equal position.
		if active[i].Position != active[j].Position {
			return active[i].Position < active[j].Position
		}
		return active[i].Status == settlement.StatusInProgress
	})
	for i, item := range active {
		item.Position = i
	}
}

// pendingUpgrades counts non-terminal queue upgrades targeting a structure.
func pendingUpgrades(sett *settlement.Settlement, structureID uint64) int {
	n := 0
	for _, item := range sett.Queue {
		if !item.Terminal() && item.UpgradeOf == structureID {
			n++
		}
	}
	return n
}

// missingPrerequisites lists the definition's unmet requirements against the
// settlement's living structures and completed research.
func missingPrerequisites(cat *catalog.Catalog, sett *settlement.Settlement, def *catalog.Definition) []string {
	var missing []string
	for _, p := range def.Prerequisites {
		if p.Research != "" {
			if !sett.Research[p.Research] {
				missing = append(missing, p.String())
			}
			continue
		}
		met := false
		for _, st := range sett.Structures {
			if st.Alive() && st.DefID == p.StructureID && st.Level >= p.Level {
				met = true
				break
			}
		}
		if !met {
			missing = append(missing, p.String())
		}
	}
	return missing
}

// checkBuildingConstraints validates area, tier and uniqueness for a new
// building.
func checkBuildingConstraints(sett *settlement.Settlement, def *catalog.Definition) error {
	if def.Tier > sett.Tier {
		return newErr(ClassPrecondition, CodeTierTooLow, "settlement tier too low").
			with("required_tier", def.Tier).with("settlement_tier", sett.Tier)
	}
	if sett.AreaUsed+def.AreaCost > sett.AreaCapacity {
		return newErr(ClassPrecondition, CodeAreaExhausted, "not enough free area").
			with("area_used", sett.AreaUsed).with("area_capacity", sett.AreaCapacity).with("area_cost", def.AreaCost)
	}
	if def.Unique {
		for _, st := range sett.Structures {
			if st.Alive() && st.DefID == def.ID {
				return newErr(ClassPrecondition, CodeUniqueConflict,
					fmt.Sprintf("%s already built", def.ID)).with("def_id", def.ID)
			}
		}
		for _, item := range sett.Queue {
			if !item.Terminal() && item.DefID == def.ID {
				return newErr(ClassPrecondition, CodeUniqueConflict,
					fmt.Sprintf("%s already queued", def.ID)).with("def_id", def.ID)
			}
		}
	}
	return nil
}
