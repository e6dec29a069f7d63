// Disaster state machine — warning, impact, aftermath.
package engine

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/steadfall/internal/catalog"
	"github.com/talgya/steadfall/internal/settlement"
)

// DisasterPhase is the linear event lifecycle. No back-transitions, no
// skipped phases.
type DisasterPhase string

const (
	PhaseScheduled DisasterPhase = "SCHEDULED"
	PhaseWarning   DisasterPhase = "WARNING"
	PhaseImpact    DisasterPhase = "IMPACT"
	PhaseAftermath DisasterPhase = "AFTERMATH"
	PhaseResolved  DisasterPhase = "RESOLVED"
)

// DisasterEvent is one scheduled hazard driving through its phases. Events
// are created by the world scheduler (or an operator) and consumed here.
type DisasterEvent struct {
	ID       string  `json:"id"`
	WorldID  uint64  `json:"world_id"`
	Type     string  `json:"type"`     // "earthquake", "storm", "wildfire", ...
	Severity float64 `json:"severity"` // 0–100.

	// Biomes names the affected regions; settlements in these biomes take
	// damage and casualties.
	Biomes []string `json:"biomes"`

	ScheduleTick   uint64 `json:"schedule_tick"`
	WarningTicks   uint64 `json:"warning_ticks"`
	ImpactTicks    uint64 `json:"impact_ticks"`
	AftermathTicks uint64 `json:"aftermath_ticks"`

	Phase        DisasterPhase `json:"phase"`
	PhaseTick    uint64        `json:"phase_tick"` // Tick the current phase began.
	ImminentSent bool          `json:"imminent_sent"`

	lastPulseTick uint64

	// Casualties accumulate during impact and apply as one decrement on the
	// transition to aftermath.
	pendingCasualties map[uint64]int

	// Aftermath summary.
	DamageDealt         int     `json:"damage_dealt"`
	StructuresDamaged   int     `json:"structures_damaged"`
	StructuresDestroyed int     `json:"structures_destroyed"`
	Casualties          int     `json:"casualties"`
	RepairCostEstimate  float64 `json:"repair_cost_estimate"`

	// RepairWindowEnd closes the emergency-repair discount. Zero = no window.
	RepairWindowEnd uint64 `json:"repair_window_end"`
}

// SeverityTier maps numeric severity onto the coarse tier players see.
func (d *DisasterEvent) SeverityTier() string {
	switch {
	case d.Severity >= 75:
		return "critical"
	case d.Severity >= 50:
		return "high"
	case d.Severity >= 25:
		return "medium"
	default:
		return "low"
	}
}

func (d *DisasterEvent) affects(biome string) bool {
	if len(d.Biomes) == 0 {
		return true
	}
	for _, b := range d.Biomes {
		if b == biome {
			return true
		}
	}
	return false
}

// ScheduleDisaster registers an externally created event with the world.
func (s *Simulation) ScheduleDisaster(ev *DisasterEvent) *DisasterEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.WorldID = s.WorldID
	ev.Phase = PhaseScheduled
	ev.PhaseTick = s.CurrentTick()
	ev.pendingCasualties = map[uint64]int{}

	s.disasterMu.Lock()
	s.disasters = append(s.disasters, ev)
	s.disasterMu.Unlock()

	slog.Info("disaster scheduled",
		"id", ev.ID, "type", ev.Type, "severity", ev.Severity,
		"tier", ev.SeverityTier(), "at_tick", ev.ScheduleTick)
	return ev
}

// RestoreDisasters reinstates persisted events at startup, keeping their
// phase. Casualties accrued before the save are gone; the next pulse starts
// a fresh accumulation.
func (s *Simulation) RestoreDisasters(evs []*DisasterEvent) {
	s.disasterMu.Lock()
	defer s.disasterMu.Unlock()
	for _, ev := range evs {
		if ev.pendingCasualties == nil {
			ev.pendingCasualties = map[uint64]int{}
		}
		s.disasters = append(s.disasters, ev)
	}
}

// Disasters returns copies of all events, resolved included. Callers get a
// stable snapshot to marshal while the tick loop keeps stepping the
// originals under disasterMu.
func (s *Simulation) Disasters() []*DisasterEvent {
	s.disasterMu.Lock()
	defer s.disasterMu.Unlock()
	out := make([]*DisasterEvent, len(s.disasters))
	for i, d := range s.disasters {
		cp := *d
		cp.pendingCasualties = nil
		out[i] = &cp
	}
	return out
}

// ActiveDisaster returns a copy of the first unresolved event, or nil. A
// world drives one event at a time in practice; overlapping events still
// each step.
func (s *Simulation) ActiveDisaster() *DisasterEvent {
	s.disasterMu.Lock()
	defer s.disasterMu.Unlock()
	for _, d := range s.disasters {
		if d.Phase != PhaseResolved {
			cp := *d
			cp.pendingCasualties = nil
			return &cp
		}
	}
	return nil
}

// stepDisasters advances every unresolved event for the current tick. Runs
// after settlement work so damage lands on this tick's final structure set.
// disasterMu is held across the stepping; event fields are only ever
// mutated under it, so ForceAdvance and snapshot reads cannot interleave.
// Settlement locks nest inside disasterMu, never the other way around.
func (s *Simulation) stepDisasters(tick uint64) {
	s.disasterMu.Lock()
	defer s.disasterMu.Unlock()
	for _, d := range s.disasters {
		if d.Phase != PhaseResolved {
			s.stepDisaster(d, tick)
		}
	}
}

func (s *Simulation) stepDisaster(d *DisasterEvent, tick uint64) {
	switch d.Phase {
	case PhaseScheduled:
		if tick >= d.ScheduleTick {
			s.enterPhase(d, PhaseWarning, tick)
			s.publish(Event{
				Tick: tick, Type: EvDisasterWarning, WorldID: d.WorldID,
				Payload: map[string]any{
					"disaster_id": d.ID, "type": d.Type,
					"severity": d.Severity, "tier": d.SeverityTier(),
					"ticks_to_impact": d.WarningTicks,
				},
			})
		}
	case PhaseWarning:
		// The imminent notice fires once when time-to-impact crosses the
		// threshold; it is independent of the phase transition itself.
		impactAt := d.PhaseTick + d.WarningTicks
		if !d.ImminentSent && impactAt-tick <= s.cfg.ImminentWarningTicks {
			d.ImminentSent = true
			s.publish(Event{
				Tick: tick, Type: EvDisasterImminent, WorldID: d.WorldID,
				Payload: map[string]any{"disaster_id": d.ID, "ticks_to_impact": impactAt - tick},
			})
		}
		if tick >= impactAt {
			s.enterPhase(d, PhaseImpact, tick)
			s.publish(Event{
				Tick: tick, Type: EvDisasterImpact, WorldID: d.WorldID,
				Payload: map[string]any{"disaster_id": d.ID, "type": d.Type, "tier": d.SeverityTier()},
			})
			s.applyDamagePulse(d, tick)
			d.lastPulseTick = tick
		}
	case PhaseImpact:
		if tick >= d.lastPulseTick+s.cfg.DisasterPulseTicks {
			s.applyDamagePulse(d, tick)
			d.lastPulseTick = tick
		}
		if tick >= d.PhaseTick+d.ImpactTicks {
			s.enterAftermath(d, tick)
		}
	case PhaseAftermath:
		if tick >= d.PhaseTick+d.AftermathTicks {
			s.enterPhase(d, PhaseResolved, tick)
			// Transient state clears; the event record is kept for history.
			d.pendingCasualties = nil
			s.publish(Event{
				Tick: tick, Type: EvDisasterResolved, WorldID: d.WorldID,
				Payload: map[string]any{"disaster_id": d.ID},
			})
		}
	}
}

func (s *Simulation) enterPhase(d *DisasterEvent, phase DisasterPhase, tick uint64) {
	slog.Info("disaster phase", "id", d.ID, "from", d.Phase, "to", phase, "tick", tick)
	d.Phase = phase
	d.PhaseTick = tick
}

// applyDamagePulse damages a pseudo-random subset of structures in affected
// settlements, proportional to severity, with opensimplex noise giving each
// pulse spatial texture. Structures already gone are skipped silently —
// damage is best-effort against a moving structure set.
func (s *Simulation) applyDamagePulse(d *DisasterEvent, tick uint64) {
	if d.pendingCasualties == nil {
		d.pendingCasualties = map[uint64]int{}
	}
	for _, sett := range s.Settlements() {
		sett.Lock()
		if !d.affects(sett.Biome) {
			sett.Unlock()
			continue
		}

		living := 0
		for _, st := range sett.Structures {
			if st.Alive() {
				living++
			}
		}
		if living > 0 {
			// Hit roughly half the structures per pulse, scaled by severity.
			hits := 1 + int(float64(living)*d.Severity/200)
			if hits > living {
				hits = living
			}
			order := s.rng.Perm(len(sett.Structures))
			applied := 0
			for _, idx := range order {
				if applied >= hits {
					break
				}
				st := sett.Structures[idx]
				if !st.Alive() {
					continue // Destroyed or demolished concurrently: skip, never retry.
				}
				s.damageStructure(d, sett, st, tick)
				applied++
			}
		}

		// Exposed population accumulates casualties; the decrement applies
		// once at aftermath, not mid-impact.
		if sett.Population.Count > 0 {
			exposed := float64(sett.Population.Count) * d.Severity / 100
			loss := int(exposed * 0.01)
			if loss > 0 {
				d.pendingCasualties[sett.ID] += loss
			}
		}
		sett.Unlock()
	}
}

// damageStructure applies one pulse of damage. Health only decreases during
// impact; repair is the only path back up.
func (s *Simulation) damageStructure(d *DisasterEvent, sett *settlement.Settlement, st *settlement.Structure, tick uint64) {
	// Noise in [-1,1] sampled per structure and tick keeps damage uneven
	// across the settlement without breaking seed determinism.
	n := s.noise.Eval2(float64(st.ID), float64(tick)/64)
	dmg := int(d.Severity / 10 * (1 + 0.5*n))
	if dmg < 1 {
		dmg = 1
	}

	st.Health -= dmg
	d.DamageDealt += dmg
	d.StructuresDamaged++

	if st.Health <= 0 {
		st.Health = 0
		st.Destroyed = true
		d.StructuresDestroyed++
		if def := s.cat.Get(st.DefID); def != nil && def.Category == catalog.CategoryBuilding {
			sett.AreaUsed -= def.AreaCost // Ruins free their footprint.
		}
		s.publish(Event{
			Tick: tick, Type: EvStructureDestroyed, SettlementID: sett.ID,
			Payload: map[string]any{"structure_id": st.ID, "def_id": st.DefID, "disaster_id": d.ID},
		})
	} else {
		s.publish(Event{
			Tick: tick, Type: EvStructureDamaged, SettlementID: sett.ID,
			Payload: map[string]any{"structure_id": st.ID, "damage": dmg, "health": st.Health, "disaster_id": d.ID},
		})
	}
}

// enterAftermath applies accumulated casualties, computes summary totals,
// and opens the time-boxed emergency-repair discount window.
func (s *Simulation) enterAftermath(d *DisasterEvent, tick uint64) {
	s.enterPhase(d, PhaseAftermath, tick)
	d.RepairWindowEnd = tick + s.cfg.RepairWindowTicks

	for settID, loss := range d.pendingCasualties {
		sett := s.Settlement(settID)
		if sett == nil {
			continue
		}
		sett.Lock()
		if loss > sett.Population.Count {
			loss = sett.Population.Count
		}
		sett.Population.Count -= loss
		sett.Population.TraumaSeverity += float64(loss) * 2
		if sett.Population.TraumaSeverity > 100 {
			sett.Population.TraumaSeverity = 100
		}
		sett.Population.LastTraumaTick = tick
		d.Casualties += loss
		AssignStaffing(s.cat, sett)
		sett.Unlock()
	}

	// Estimated repair cost: proportional to total damage dealt.
	d.RepairCostEstimate = float64(d.DamageDealt) * repairCostPerHealth

	s.publish(Event{
		Tick: tick, Type: EvDisasterAftermath, WorldID: d.WorldID,
		Payload: map[string]any{
			"disaster_id":          d.ID,
			"damage_dealt":         d.DamageDealt,
			"structures_damaged":   d.StructuresDamaged,
			"structures_destroyed": d.StructuresDestroyed,
			"casualties":           d.Casualties,
			"repair_cost_estimate": d.RepairCostEstimate,
			"repair_window_end":    d.RepairWindowEnd,
		},
	})
}

// ForceAdvance pushes an event to its next phase immediately. Operator
// tooling only; disasters otherwise run on elapsed time alone.
func (s *Simulation) ForceAdvance(disasterID string) error {
	s.disasterMu.Lock()
	defer s.disasterMu.Unlock()

	var d *DisasterEvent
	for _, ev := range s.disasters {
		if ev.ID == disasterID {
			d = ev
			break
		}
	}
	if d == nil {
		return notFoundErr("disaster", disasterID)
	}

	tick := s.CurrentTick()
	switch d.Phase {
	case PhaseScheduled:
		d.ScheduleTick = tick
	case PhaseWarning:
		d.PhaseTick = tick - d.WarningTicks
	case PhaseImpact:
		d.PhaseTick = tick - d.ImpactTicks
	case PhaseAftermath:
		d.PhaseTick = tick - d.AftermathTicks
	case PhaseResolved:
		return validationErr("disaster already resolved")
	}
	s.stepDisaster(d, tick)
	return nil
}
