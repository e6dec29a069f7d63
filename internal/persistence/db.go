// Package persistence provides SQLite-based world state storage.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/steadfall/internal/engine"
	"github.com/talgya/steadfall/internal/resources"
	"github.com/talgya/steadfall/internal/settlement"
)

// DB wraps a SQLite connection for world state persistence. It implements
// engine.Store so player commands write through on success.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settlements (
		id INTEGER PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		biome TEXT NOT NULL,
		tier INTEGER NOT NULL,
		area_used INTEGER NOT NULL,
		area_capacity INTEGER NOT NULL,
		storage_capacity INTEGER NOT NULL,
		stock_json TEXT NOT NULL,
		population_json TEXT NOT NULL,
		tiles_json TEXT NOT NULL,
		research_json TEXT NOT NULL,
		last_production_tick INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS structures (
		settlement_id INTEGER NOT NULL,
		id INTEGER NOT NULL,
		def_id TEXT NOT NULL,
		level INTEGER NOT NULL,
		health INTEGER NOT NULL,
		tile_id INTEGER,
		slot INTEGER,
		assigned INTEGER NOT NULL,
		understaffed INTEGER NOT NULL,
		created_tick INTEGER NOT NULL,
		destroyed INTEGER NOT NULL,
		PRIMARY KEY (settlement_id, id)
	);

	CREATE TABLE IF NOT EXISTS queue_items (
		id TEXT PRIMARY KEY,
		settlement_id INTEGER NOT NULL,
		def_id TEXT NOT NULL,
		status TEXT NOT NULL,
		upgrade_of INTEGER NOT NULL,
		target_level INTEGER NOT NULL,
		deducted_json TEXT NOT NULL,
		position INTEGER NOT NULL,
		started_tick INTEGER NOT NULL,
		completes_tick INTEGER NOT NULL,
		duration_ticks INTEGER NOT NULL,
		tile_id INTEGER,
		slot INTEGER
	);

	CREATE TABLE IF NOT EXISTS disasters (
		id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		type TEXT NOT NULL,
		settlement_id INTEGER NOT NULL,
		world_id INTEGER NOT NULL,
		payload_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_structures_settlement ON structures(settlement_id);
	CREATE INDEX IF NOT EXISTS idx_queue_settlement ON queue_items(settlement_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveSettlement writes one settlement's full state as a single
// transaction: row, structures, and queue together or not at all. The
// caller holds the settlement lock.
func (db *DB) SaveSettlement(s *settlement.Settlement) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveSettlementTx(tx, s); err != nil {
		return err
	}
	return tx.Commit()
}

func saveSettlementTx(tx *sqlx.Tx, s *settlement.Settlement) error {
	stockJSON, _ := json.Marshal(s.Ledger.Stock())
	popJSON, _ := json.Marshal(s.Population)
	tilesJSON, _ := json.Marshal(s.Tiles)
	researchJSON, _ := json.Marshal(s.Research)

	_, err := tx.Exec(`INSERT OR REPLACE INTO settlements
		(id, owner_id, name, biome, tier, area_used, area_capacity,
		 storage_capacity, stock_json, population_json, tiles_json,
		 research_json, last_production_tick)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.OwnerID, s.Name, s.Biome, s.Tier, s.AreaUsed, s.AreaCapacity,
		s.Ledger.Capacity(), string(stockJSON), string(popJSON), string(tilesJSON),
		string(researchJSON), s.LastProductionTick,
	)
	if err != nil {
		return fmt.Errorf("upsert settlement %d: %w", s.ID, err)
	}

	if _, err := tx.Exec("DELETE FROM structures WHERE settlement_id = ?", s.ID); err != nil {
		return err
	}
	for _, st := range s.Structures {
		_, err := tx.Exec(`INSERT INTO structures
			(settlement_id, id, def_id, level, health, tile_id, slot,
			 assigned, understaffed, created_tick, destroyed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, st.ID, st.DefID, st.Level, st.Health,
			nullableInt(st.TileID), nullableInt(st.Slot),
			st.Assigned, boolInt(st.Understaffed), st.CreatedTick, boolInt(st.Destroyed),
		)
		if err != nil {
			return fmt.Errorf("insert structure %d/%d: %w", s.ID, st.ID, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM queue_items WHERE settlement_id = ?", s.ID); err != nil {
		return err
	}
	for _, item := range s.Queue {
		deductedJSON, _ := json.Marshal(item.Deducted)
		_, err := tx.Exec(`INSERT INTO queue_items
			(id, settlement_id, def_id, status, upgrade_of, target_level,
			 deducted_json, position, started_tick, completes_tick,
			 duration_ticks, tile_id, slot)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, s.ID, item.DefID, item.Status, item.UpgradeOf, item.TargetLevel,
			string(deductedJSON), item.Position, item.StartedTick, item.CompletesTick,
			item.DurationTicks, nullableInt(item.TileID), nullableInt(item.Slot),
		)
		if err != nil {
			return fmt.Errorf("insert queue item %s: %w", item.ID, err)
		}
	}

	return nil
}

// SaveDisasters writes all disaster events (full replace).
func (db *DB) SaveDisasters(disasters []*engine.DisasterEvent) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM disasters"); err != nil {
		return err
	}
	for _, d := range disasters {
		data, _ := json.Marshal(d)
		_, err := tx.Exec(
			"INSERT INTO disasters (id, phase, data_json) VALUES (?, ?, ?)",
			d.ID, d.Phase, string(data),
		)
		if err != nil {
			return fmt.Errorf("insert disaster %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// SaveEvents appends events to the history table.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		payload, _ := json.Marshal(e.Payload)
		_, err := tx.Exec(
			"INSERT INTO events (tick, type, settlement_id, world_id, payload_json) VALUES (?, ?, ?, ?, ?)",
			e.Tick, e.Type, e.SettlementID, e.WorldID, string(payload),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// SaveWorldState performs a full save: every settlement, the disaster set,
// drained events, and the tick watermark.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	setts := sim.Settlements()
	slog.Info("saving world state", "settlements", len(setts), "tick", sim.CurrentTick())

	for _, s := range setts {
		s.Lock()
		err := db.SaveSettlement(s)
		s.Unlock()
		if err != nil {
			return fmt.Errorf("save settlement %d: %w", s.ID, err)
		}
	}
	if err := db.SaveDisasters(sim.Disasters()); err != nil {
		return fmt.Errorf("save disasters: %w", err)
	}
	if err := db.SaveEvents(sim.DrainEvents()); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("last_tick", strconv.FormatUint(sim.CurrentTick(), 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	return nil
}

type settlementRow struct {
	ID                 uint64 `db:"id"`
	OwnerID            uint64 `db:"owner_id"`
	Name               string `db:"name"`
	Biome              string `db:"biome"`
	Tier               int    `db:"tier"`
	AreaUsed           int    `db:"area_used"`
	AreaCapacity       int    `db:"area_capacity"`
	StorageCapacity    int64  `db:"storage_capacity"`
	StockJSON          string `db:"stock_json"`
	PopulationJSON     string `db:"population_json"`
	TilesJSON          string `db:"tiles_json"`
	ResearchJSON       string `db:"research_json"`
	LastProductionTick uint64 `db:"last_production_tick"`
}

type structureRow struct {
	SettlementID uint64        `db:"settlement_id"`
	ID           uint64        `db:"id"`
	DefID        string        `db:"def_id"`
	Level        int           `db:"level"`
	Health       int           `db:"health"`
	TileID       sql.NullInt64 `db:"tile_id"`
	Slot         sql.NullInt64 `db:"slot"`
	Assigned     int           `db:"assigned"`
	Understaffed int           `db:"understaffed"`
	CreatedTick  uint64        `db:"created_tick"`
	Destroyed    int           `db:"destroyed"`
}

type queueRow struct {
	ID            string        `db:"id"`
	SettlementID  uint64        `db:"settlement_id"`
	DefID         string        `db:"def_id"`
	Status        string        `db:"status"`
	UpgradeOf     uint64        `db:"upgrade_of"`
	TargetLevel   int           `db:"target_level"`
	DeductedJSON  string        `db:"deducted_json"`
	Position      int           `db:"position"`
	StartedTick   uint64        `db:"started_tick"`
	CompletesTick uint64        `db:"completes_tick"`
	DurationTicks uint64        `db:"duration_ticks"`
	TileID        sql.NullInt64 `db:"tile_id"`
	Slot          sql.NullInt64 `db:"slot"`
}

// LoadSettlements restores every settlement, including structures and
// queue items, ready for Simulation.AddSettlement.
func (db *DB) LoadSettlements() ([]*settlement.Settlement, error) {
	var rows []settlementRow
	if err := db.conn.Select(&rows, "SELECT * FROM settlements ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load settlements: %w", err)
	}

	out := make([]*settlement.Settlement, 0, len(rows))
	for _, r := range rows {
		s := &settlement.Settlement{
			ID:                 r.ID,
			OwnerID:            r.OwnerID,
			Name:               r.Name,
			Biome:              r.Biome,
			Tier:               r.Tier,
			AreaUsed:           r.AreaUsed,
			AreaCapacity:       r.AreaCapacity,
			LastProductionTick: r.LastProductionTick,
		}

		var stock resources.Amounts
		if err := json.Unmarshal([]byte(r.StockJSON), &stock); err != nil {
			return nil, fmt.Errorf("settlement %d stock: %w", r.ID, err)
		}
		s.Ledger = resources.NewLedger(stock, r.StorageCapacity)
		if err := json.Unmarshal([]byte(r.PopulationJSON), &s.Population); err != nil {
			return nil, fmt.Errorf("settlement %d population: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.TilesJSON), &s.Tiles); err != nil {
			return nil, fmt.Errorf("settlement %d tiles: %w", r.ID, err)
		}
		if r.ResearchJSON != "" && r.ResearchJSON != "null" {
			if err := json.Unmarshal([]byte(r.ResearchJSON), &s.Research); err != nil {
				return nil, fmt.Errorf("settlement %d research: %w", r.ID, err)
			}
		}

		if err := db.loadStructures(s); err != nil {
			return nil, err
		}
		if err := db.loadQueue(s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, nil
}

func (db *DB) loadStructures(s *settlement.Settlement) error {
	var rows []structureRow
	err := db.conn.Select(&rows,
		"SELECT * FROM structures WHERE settlement_id = ? ORDER BY id", s.ID)
	if err != nil {
		return fmt.Errorf("load structures %d: %w", s.ID, err)
	}
	for _, r := range rows {
		s.Structures = append(s.Structures, &settlement.Structure{
			ID:           r.ID,
			SettlementID: r.SettlementID,
			DefID:        r.DefID,
			Level:        r.Level,
			Health:       r.Health,
			TileID:       intPtr(r.TileID),
			Slot:         intPtr(r.Slot),
			Assigned:     r.Assigned,
			Understaffed: r.Understaffed != 0,
			CreatedTick:  r.CreatedTick,
			Destroyed:    r.Destroyed != 0,
		})
	}
	return nil
}

func (db *DB) loadQueue(s *settlement.Settlement) error {
	var rows []queueRow
	err := db.conn.Select(&rows,
		"SELECT * FROM queue_items WHERE settlement_id = ? ORDER BY position", s.ID)
	if err != nil {
		return fmt.Errorf("load queue %d: %w", s.ID, err)
	}
	for _, r := range rows {
		item := &settlement.QueueItem{
			ID:            r.ID,
			SettlementID:  r.SettlementID,
			DefID:         r.DefID,
			Status:        settlement.QueueStatus(r.Status),
			UpgradeOf:     r.UpgradeOf,
			TargetLevel:   r.TargetLevel,
			Position:      r.Position,
			StartedTick:   r.StartedTick,
			CompletesTick: r.CompletesTick,
			DurationTicks: r.DurationTicks,
			TileID:        intPtr(r.TileID),
			Slot:          intPtr(r.Slot),
		}
		if err := json.Unmarshal([]byte(r.DeductedJSON), &item.Deducted); err != nil {
			return fmt.Errorf("queue item %s deducted: %w", r.ID, err)
		}
		s.Queue = append(s.Queue, item)
	}
	return nil
}

// LoadDisasters restores the disaster set, resolved events included.
func (db *DB) LoadDisasters() ([]*engine.DisasterEvent, error) {
	var blobs []string
	if err := db.conn.Select(&blobs, "SELECT data_json FROM disasters"); err != nil {
		return nil, fmt.Errorf("load disasters: %w", err)
	}
	out := make([]*engine.DisasterEvent, 0, len(blobs))
	for _, b := range blobs {
		d := &engine.DisasterEvent{}
		if err := json.Unmarshal([]byte(b), d); err != nil {
			return nil, fmt.Errorf("unmarshal disaster: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// LastTick returns the persisted tick watermark, zero for a fresh world.
func (db *DB) LastTick() (uint64, error) {
	value, err := db.GetMeta("last_tick")
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(value, 10, 64)
}

type eventRow struct {
	Tick         uint64 `db:"tick"`
	Type         string `db:"type"`
	SettlementID uint64 `db:"settlement_id"`
	WorldID      uint64 `db:"world_id"`
	PayloadJSON  string `db:"payload_json"`
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT tick, type, settlement_id, world_id, payload_json FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}

	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		ev := engine.Event{
			Tick: r.Tick, Type: r.Type,
			SettlementID: r.SettlementID, WorldID: r.WorldID,
		}
		if r.PayloadJSON != "" && r.PayloadJSON != "null" {
			if err := json.Unmarshal([]byte(r.PayloadJSON), &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal event payload: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
