// Player commands outside the construction queue: collect, transfer, repair.
package engine

import (
	"log/slog"

	"github.com/talgya/steadfall/internal/resources"
)

// repairCostPerHealth is the whole-unit material cost to restore one point
// of structure health, split across wood/stone/ore in applyRepairCost.
const repairCostPerHealth = 0.5

// CollectResources applies pending production since the last application
// immediately instead of waiting for the next tick. Zero elapsed ticks is a
// no-op by construction.
func (s *Simulation) CollectResources(actorID, settlementID uint64) (resources.Amounts, error) {
	sett := s.Settlement(settlementID)
	if sett == nil {
		return resources.Amounts{}, notFoundErr("settlement", settlementID)
	}

	sett.Lock()
	defer sett.Unlock()

	if sett.OwnerID != actorID {
		return resources.Amounts{}, ownershipErr(sett.ID, actorID)
	}

	tick := s.CurrentTick()
	delta := s.applyProduction(sett, tick)

	if err := s.persist(sett); err != nil {
		return resources.Amounts{}, internalErr("persist collection", err)
	}

	s.publish(Event{
		Tick: tick, Type: EvResourcesCollected, SettlementID: sett.ID,
		Payload: map[string]any{"delta": delta.Map()},
	})
	return delta, nil
}

// InitiateTransfer moves an amount of one resource between two settlements
// of the same owner. The debit is all-or-nothing; the credit clamps to the
// destination's storage, and anything over the clamp is lost in transit.
func (s *Simulation) InitiateTransfer(actorID, fromID, toID uint64, rt resources.Type, units int64) error {
	if units <= 0 {
		return validationErr("transfer amount must be positive")
	}
	if fromID == toID {
		return validationErr("transfer source and destination are the same settlement")
	}
	from := s.Settlement(fromID)
	if from == nil {
		return notFoundErr("settlement", fromID)
	}
	to := s.Settlement(toID)
	if to == nil {
		return notFoundErr("settlement", toID)
	}

	// Lock ordering by settlement id prevents deadlock between concurrent
	// opposite-direction transfers.
	first, second := from, to
	if second.ID < first.ID {
		first, second = second, first
	}
	first.Lock()
	defer first.Unlock()
	second.Lock()
	defer second.Unlock()

	if from.OwnerID != actorID {
		return ownershipErr(from.ID, actorID)
	}
	if to.OwnerID != actorID {
		return ownershipErr(to.ID, actorID)
	}

	var amount resources.Amounts
	amount[rt] = units * resources.Milli

	if err := from.Ledger.Debit(amount); err != nil {
		return insufficientErr(err)
	}
	overflow := to.Ledger.Credit(amount)
	if !overflow.IsZero() {
		slog.Info("transfer overflow lost in transit",
			"from", fromID, "to", toID, "resource", rt.String(),
			"lost", float64(overflow[rt])/float64(resources.Milli))
	}

	if err := s.persistPair(from, to); err != nil {
		// Roll both ledgers back: remove what actually landed, refund the source.
		landed := amount
		for i := range landed {
			landed[i] -= overflow[i]
		}
		to.Ledger.ApplyNet(landed.Scale(-1))
		from.Ledger.Credit(amount)
		return internalErr("persist transfer", err)
	}

	s.publish(Event{
		Tick: s.CurrentTick(), Type: EvTransferCompleted, SettlementID: from.ID,
		Payload: map[string]any{
			"from": fromID, "to": toID,
			"resource": rt.String(), "amount": units,
			"lost": float64(overflow[rt]) / float64(resources.Milli),
		},
	})
	return nil
}

// RepairStructure restores a structure to full health for a material cost
// proportional to the missing health, discounted inside an open aftermath
// repair window. Repair is the only path by which health increases.
func (s *Simulation) RepairStructure(actorID, settlementID, structureID uint64) error {
	sett := s.Settlement(settlementID)
	if sett == nil {
		return notFoundErr("settlement", settlementID)
	}

	// Read the discount window before taking the settlement lock; disaster
	// state is only consulted with no settlement lock held.
	discounted := s.repairDiscountOpen()

	sett.Lock()
	defer sett.Unlock()

	if sett.OwnerID != actorID {
		return ownershipErr(sett.ID, actorID)
	}
	st := sett.Structure(structureID)
	if st == nil || st.Destroyed {
		return notFoundErr("structure", structureID)
	}
	missing := 100 - st.Health
	if missing == 0 {
		return nil // Already whole; idempotent.
	}

	cost := s.repairCost(missing, discounted)
	if err := sett.Ledger.Debit(cost); err != nil {
		return insufficientErr(err)
	}
	st.Health = 100

	if err := s.persist(sett); err != nil {
		sett.Ledger.Credit(cost)
		st.Health = 100 - missing
		return internalErr("persist repair", err)
	}
	return nil
}

// repairDiscountOpen reports whether an active disaster's aftermath repair
// window is still open.
func (s *Simulation) repairDiscountOpen() bool {
	d := s.ActiveDisaster()
	return d != nil && d.Phase == PhaseAftermath && s.CurrentTick() < d.RepairWindowEnd
}

// repairCost prices restoring the given missing health, applying the
// aftermath discount when a repair window is open.
func (s *Simulation) repairCost(missingHealth int, discounted bool) resources.Amounts {
	units := float64(missingHealth) * repairCostPerHealth
	if discounted {
		units *= s.cfg.RepairDiscount
	}
	var cost resources.Amounts
	// Repairs draw on building materials: mostly wood and stone, a little ore.
	cost[resources.Wood] = resources.FromFloat(units * 0.5)
	cost[resources.Stone] = resources.FromFloat(units * 0.35)
	cost[resources.Ore] = resources.FromFloat(units * 0.15)
	return cost
}
