package settlement

import "github.com/talgya/steadfall/internal/resources"

// QueueStatus is the construction item lifecycle state.
type QueueStatus string

const (
	StatusQueued     QueueStatus = "QUEUED"
	StatusInProgress QueueStatus = "IN_PROGRESS"
	StatusComplete   QueueStatus = "COMPLETE"
	StatusCancelled  QueueStatus = "CANCELLED"
)

// QueueItem is one build or upgrade request. Legal transitions:
// QUEUED → IN_PROGRESS → COMPLETE, and QUEUED → CANCELLED. An in-progress
// item can only complete.
type QueueItem struct {
	ID           string      `json:"id"`
	SettlementID uint64      `json:"settlement_id"`
	DefID        string      `json:"def_id"`
	Status       QueueStatus `json:"status"`

	// UpgradeOf marks an upgrade of an existing structure; zero means a new
	// build. TargetLevel is the level the item materializes at.
	UpgradeOf   uint64 `json:"upgrade_of,omitempty"`
	TargetLevel int    `json:"target_level"`

	// Deducted is the exact cost taken from the ledger at submission, in
	// milliunits. Cancellation refunds it in full.
	Deducted resources.Amounts `json:"deducted"`

	// Position is 0-based and dense across the settlement's non-terminal items.
	Position int `json:"position"`

	StartedTick   uint64 `json:"started_tick,omitempty"`
	CompletesTick uint64 `json:"completes_tick,omitempty"`
	DurationTicks uint64 `json:"duration_ticks"`

	// Extractor items reserve a (tile, slot) pair for the lifetime of the item.
	TileID *int `json:"tile_id,omitempty"`
	Slot   *int `json:"slot,omitempty"`
}

// Terminal reports whether the item has left the queue for good.
func (q *QueueItem) Terminal() bool {
	return q.Status == StatusComplete || q.Status == StatusCancelled
}

// ActiveQueueCount returns the number of non-terminal items.
func (s *Settlement) ActiveQueueCount() int {
	n := 0
	for _, item := range s.Queue {
		if !item.Terminal() {
			n++
		}
	}
	return n
}

// InProgressCount returns the number of items currently building.
func (s *Settlement) InProgressCount() int {
	n := 0
	for _, item := range s.Queue {
		if item.Status == StatusInProgress {
			n++
		}
	}
	return n
}

// QueueItemByID returns the queue item with the given id, or nil.
func (s *Settlement) QueueItemByID(id string) *QueueItem {
	for _, item := range s.Queue {
		if item.ID == id {
			return item
		}
	}
	return nil
}
