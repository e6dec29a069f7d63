// Command settlesim runs the persistent settlement world server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/talgya/steadfall/internal/api"
	"github.com/talgya/steadfall/internal/catalog"
	"github.com/talgya/steadfall/internal/config"
	"github.com/talgya/steadfall/internal/engine"
	"github.com/talgya/steadfall/internal/entropy"
	"github.com/talgya/steadfall/internal/forecast"
	"github.com/talgya/steadfall/internal/notify"
	"github.com/talgya/steadfall/internal/persistence"
	"github.com/talgya/steadfall/internal/resources"
	"github.com/talgya/steadfall/internal/settlement"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfgPath := envOrDefault("SETTLESIM_CONFIG", "config.yaml")
	dbPath := envOrDefault("SETTLESIM_DB", "data/steadfall.db")
	catalogDir := envOrDefault("SETTLESIM_CATALOG_DIR", ".")
	apiPort := envIntOrDefault("SETTLESIM_PORT", 8080)
	adminKey := os.Getenv("SETTLESIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("SETTLESIM_ADMIN_KEY not set — admin endpoints will be disabled")
	}

	// ── Configuration and catalog ─────────────────────────────────────
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load configuration", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if cfg.WorldSeed == 0 {
		// Seed 0 asks for a one-off world: draw a real seed so the run is
		// still internally consistent, just not replayable.
		cfg.WorldSeed = entropy.CryptoSeed()
		slog.Info("world seed drawn from crypto/rand", "seed", cfg.WorldSeed)
	}
	cat, err := catalog.Load(catalogDir)
	if err != nil {
		slog.Error("failed to load structure catalog", "dir", catalogDir, "error", err)
		os.Exit(1)
	}
	slog.Info("catalog loaded", "structures", len(cat.Defs), "digest", cat.Digest[:12])

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(dbPath), 0755)
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	// ── Load or seed world state ──────────────────────────────────────
	sim := engine.NewSimulation(&cfg, cat, 1)
	sim.SetStore(db)

	setts, err := db.LoadSettlements()
	if err != nil {
		slog.Error("failed to load settlements", "error", err)
		os.Exit(1)
	}

	if len(setts) > 0 {
		for _, s := range setts {
			sim.AddSettlement(s)
		}
		disasters, err := db.LoadDisasters()
		if err != nil {
			slog.Error("failed to load disasters", "error", err)
			os.Exit(1)
		}
		sim.RestoreDisasters(disasters)

		startTick, err := db.LastTick()
		if err != nil {
			slog.Error("failed to read tick watermark", "error", err)
			os.Exit(1)
		}
		sim.SetTick(startTick)
		slog.Info("world state restored",
			"settlements", len(setts), "disasters", len(disasters), "tick", startTick)
	} else {
		slog.Info("no saved state found, seeding new world")
		seedWorld(sim, &cfg)
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// ── Event fan-out ─────────────────────────────────────────────────
	hub := notify.NewHub()
	sim.SetNotifier(hub)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	// ── Hazard forecaster ─────────────────────────────────────────────
	if os.Getenv("SETTLESIM_AUTO_DISASTERS") == "1" {
		fc := forecast.New(sim, cfg.WorldSeed+1)
		go fc.Run(ctx)
	}

	// ── Tick engine ───────────────────────────────────────────────────
	eng := engine.NewEngine(sim)
	eng.OnSave = func(tick uint64) {
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("periodic save failed", "tick", tick, "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	apiServer := &api.Server{
		Sim:      sim,
		Hub:      hub,
		DB:       db,
		Port:     apiPort,
		AdminKey: adminKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	fmt.Printf("Steadfall is running: %d settlements at tick %d.\n",
		len(sim.Settlements()), sim.CurrentTick())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)

	slog.Info("final save")
	if err := db.SaveWorldState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Simulation stopped. World state saved.")
}

// seedWorld creates the starter settlements for a fresh database. Tile
// qualities are drawn from the world seed so a reseeded world is
// reproducible.
func seedWorld(sim *engine.Simulation, cfg *config.Config) {
	rng := entropy.NewSource(cfg.WorldSeed)

	starters := []struct {
		id    uint64
		owner uint64
		name  string
		biome string
	}{
		{1, 1, "Hearthstead", "plains"},
		{2, 2, "Fernvale", "forest"},
		{3, 3, "Cragholt", "highland"},
	}

	for _, st := range starters {
		tiles := make([]settlement.Tile, 3)
		for i := range tiles {
			var q [resources.NumTypes]int
			for r := range q {
				q[r] = 20 + rng.Intn(70)
			}
			tiles[i] = settlement.Tile{ID: i, Quality: q, BaseModifier: 1.0, Slots: 2}
		}

		s := &settlement.Settlement{
			ID:           st.id,
			OwnerID:      st.owner,
			Name:         st.name,
			Biome:        st.biome,
			Tier:         1,
			AreaCapacity: 12,
			Ledger: resources.NewLedger(
				resources.FromUnits(200, 200, 150, 100, 20),
				cfg.StorageCapacity*resources.Milli,
			),
			Tiles: tiles,
		}
		s.Population.Count = 10
		sim.AddSettlement(s)
		slog.Info("seeded settlement", "id", s.ID, "name", s.Name, "biome", s.Biome)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
