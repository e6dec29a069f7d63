package settlement

// Structure is a built instance of a catalog definition.
type Structure struct {
	ID           uint64 `json:"id"`
	SettlementID uint64 `json:"settlement_id"`
	DefID        string `json:"def_id"`
	Level        int    `json:"level"`  // ≥1, unbounded upward.
	Health       int    `json:"health"` // 0–100. Reaching 0 marks the structure destroyed.

	// Extractors occupy a (tile, slot) pair, unique among living structures
	// and queue reservations on the settlement. Nil for buildings.
	TileID *int `json:"tile_id,omitempty"`
	Slot   *int `json:"slot,omitempty"`

	Assigned     int  `json:"assigned"` // Workers currently staffed.
	Understaffed bool `json:"understaffed"`

	CreatedTick uint64 `json:"created_tick"`

	// Destroyed structures stay recorded for casualty and history accounting
	// but contribute nothing to production, housing, or maintenance.
	Destroyed bool `json:"destroyed"`
}

// Alive reports whether the structure still participates in the simulation.
func (st *Structure) Alive() bool {
	return !st.Destroyed && st.Health > 0
}
