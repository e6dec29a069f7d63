package engine

import "github.com/talgya/steadfall/internal/settlement"

// Event is a notable state change the core wants published. The core only
// appends events to its buffer; transport fan-out is the notify adapter's
// problem, which keeps every transition function testable without a socket.
type Event struct {
	Tick         uint64         `json:"tick"`
	Type         string         `json:"type"`
	SettlementID uint64         `json:"settlement_id,omitempty"`
	WorldID      uint64         `json:"world_id,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// Event types emitted by the core.
const (
	EvConstructionQueued    = "construction.queued"
	EvConstructionStarted   = "construction.started"
	EvConstructionCompleted = "construction.completed"
	EvConstructionCancelled = "construction.cancelled"
	EvStructureBuilt        = "structure.built"
	EvStructureUpgraded     = "structure.upgraded"
	EvStructureDestroyed    = "structure.destroyed"
	EvResourcesCollected    = "resources.collected"
	EvTransferCompleted     = "transfer.completed"
	EvPopulationChanged     = "population.changed"
	EvDisasterWarning       = "disaster.warning"
	EvDisasterImminent      = "disaster.imminent"
	EvDisasterImpact        = "disaster.impact"
	EvStructureDamaged      = "disaster.structure-damaged"
	EvDisasterAftermath     = "disaster.aftermath"
	EvDisasterResolved      = "disaster.resolved"
)

// Notifier receives events for fan-out. Publish must not block: a slow
// subscriber must never delay the tick loop.
type Notifier interface {
	Publish(Event)
}

// Store is the persistence port the engine writes through on the command
// path. A nil Store runs the world purely in memory (tests do this).
type Store interface {
	// SaveSettlement persists a settlement's full state as one transactional
	// unit: ledger, queue, structures, population together or not at all.
	// The settlement lock is held for the duration of the call.
	SaveSettlement(*settlement.Settlement) error
}

// publish appends to the event buffer and forwards to the notifier when one
// is attached. Failures on the notification path are the notifier's to log;
// authoritative state has already changed and is never rolled back for it.
func (s *Simulation) publish(ev Event) {
	s.eventMu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > maxBufferedEvents {
		s.events = s.events[len(s.events)-maxBufferedEvents:]
	}
	s.eventMu.Unlock()

	if s.notifier != nil {
		s.notifier.Publish(ev)
	}
}

// maxBufferedEvents bounds the in-memory event history.
const maxBufferedEvents = 1000

// DrainEvents returns all buffered events and clears the buffer. The save
// path calls this so each event is persisted exactly once.
func (s *Simulation) DrainEvents() []Event {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	out := s.events
	s.events = nil
	return out
}

// RecentEvents returns up to limit most recent events, newest last.
func (s *Simulation) RecentEvents(limit int) []Event {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]Event, limit)
	copy(out, s.events[len(s.events)-limit:])
	return out
}
