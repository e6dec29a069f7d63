// Package api provides the HTTP API for the settlement world.
// GET endpoints are public (read-only observation).
// Player command endpoints are POST and rate limited per IP.
// Admin endpoints require a bearer token.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/steadfall/internal/engine"
	"github.com/talgya/steadfall/internal/notify"
	"github.com/talgya/steadfall/internal/persistence"
	"github.com/talgya/steadfall/internal/resources"
	"github.com/talgya/steadfall/internal/settlement"
)

// Server serves world state and player commands over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Hub      *notify.Hub
	DB       *persistence.DB // Optional; nil runs without history endpoints.
	Port     int
	AdminKey string // Bearer token for admin endpoints. Empty = admin disabled.
}

// Handler builds the route table. Split from Start for tests.
func (s *Server) Handler() http.Handler {
	commandLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/catalog", s.handleCatalog)
	mux.HandleFunc("/api/v1/settlements", s.handleSettlements)
	mux.HandleFunc("/api/v1/settlement/", s.handleSettlementRoutes(commandLimiter))
	mux.HandleFunc("/api/v1/disasters", s.handleDisasters)
	mux.HandleFunc("/api/v1/events", s.handleEvents)

	// Player commands that span settlements.
	mux.HandleFunc("/api/v1/transfer", RateLimitMiddleware(commandLimiter, s.handleTransfer))

	// Admin endpoints (POST, bearer token).
	mux.HandleFunc("/api/v1/admin/disaster", s.adminOnly(s.handleScheduleDisaster))
	mux.HandleFunc("/api/v1/admin/disaster/", s.adminOnly(s.handleAdvanceDisaster))
	mux.HandleFunc("/api/v1/admin/snapshot", s.adminOnly(s.handleSnapshot))

	// Event stream.
	if s.Hub != nil {
		mux.Handle("/api/v1/stream", s.Hub)
	}

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins. Set
// CORS_ORIGINS to a comma-separated list; localhost dev servers are always
// allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminOnly wraps admin handlers with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			writeError(w, http.StatusForbidden, "ADMIN_DISABLED", "admin endpoints disabled", nil)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.AdminKey {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin token", nil)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string, detail map[string]any) {
	writeJSON(w, status, map[string]any{
		"error":  msg,
		"code":   code,
		"detail": detail,
	})
}

// writeEngineError maps the engine's error classes onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch engine.ErrorClass(err) {
	case engine.ClassValidation:
		status = http.StatusBadRequest
	case engine.ClassPrecondition:
		status = http.StatusConflict
	case engine.ClassNotFound:
		status = http.StatusNotFound
	case engine.ClassConflict:
		status = http.StatusForbidden
	}
	writeError(w, status, engine.ErrorCode(err), err.Error(), engine.ErrorDetail(err))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{
		"world_id":    s.Sim.WorldID,
		"tick":        s.Sim.CurrentTick(),
		"settlements": len(s.Sim.Settlements()),
	}
	if s.Hub != nil {
		resp["subscribers"] = s.Hub.ClientCount()
	}
	if d := s.Sim.ActiveDisaster(); d != nil {
		resp["active_disaster"] = map[string]any{
			"id": d.ID, "type": d.Type, "phase": d.Phase, "tier": d.SeverityTier(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cat := s.Sim.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"digest":     cat.Digest,
		"structures": cat.Defs,
		"biomes":     cat.Biomes,
	})
}

// settlementSummary is the list-view shape.
type settlementSummary struct {
	ID         uint64             `json:"id"`
	OwnerID    uint64             `json:"owner_id"`
	Name       string             `json:"name"`
	Biome      string             `json:"biome"`
	Tier       int                `json:"tier"`
	Population int                `json:"population"`
	Happiness  float64            `json:"happiness"`
	Structures int                `json:"structures"`
	QueueDepth int                `json:"queue_depth"`
	Stock      map[string]float64 `json:"stock"`
}

func summarize(sett *settlement.Settlement) settlementSummary {
	sett.Lock()
	defer sett.Unlock()

	living := 0
	for _, st := range sett.Structures {
		if st.Alive() {
			living++
		}
	}
	return settlementSummary{
		ID:         sett.ID,
		OwnerID:    sett.OwnerID,
		Name:       sett.Name,
		Biome:      sett.Biome,
		Tier:       sett.Tier,
		Population: sett.Population.Count,
		Happiness:  sett.Population.Happiness,
		Structures: living,
		QueueDepth: sett.ActiveQueueCount(),
		Stock:      sett.Ledger.Stock().Map(),
	}
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	setts := s.Sim.Settlements()
	out := make([]settlementSummary, 0, len(setts))
	for _, sett := range setts {
		out = append(out, summarize(sett))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSettlementRoutes dispatches /api/v1/settlement/{id}[/action].
func (s *Server) handleSettlementRoutes(limiter *RateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/settlement/")
		parts := strings.SplitN(rest, "/", 2)
		id, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid settlement id", nil)
			return
		}

		action := ""
		if len(parts) == 2 {
			action = parts[1]
		}

		switch action {
		case "":
			s.handleSettlementDetail(w, r, id)
		case "queue":
			s.handleQueue(w, r, id)
		default:
			// Everything below is a player command.
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !limiter.Allow(clientIP(r)) {
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many commands", nil)
				return
			}
			switch action {
			case "construct":
				s.handleConstruct(w, r, id)
			case "cancel":
				s.handleCancel(w, r, id)
			case "collect":
				s.handleCollect(w, r, id)
			case "repair":
				s.handleRepair(w, r, id)
			default:
				writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown action", nil)
			}
		}
	}
}

func (s *Server) handleSettlementDetail(w http.ResponseWriter, r *http.Request, id uint64) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sett := s.Sim.Settlement(id)
	if sett == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "settlement not found", nil)
		return
	}

	sett.Lock()
	defer sett.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            sett.ID,
		"owner_id":      sett.OwnerID,
		"name":          sett.Name,
		"biome":         sett.Biome,
		"tier":          sett.Tier,
		"area_used":     sett.AreaUsed,
		"area_capacity": sett.AreaCapacity,
		"stock":         sett.Ledger.Stock().Map(),
		"population":    sett.Population,
		"structures":    sett.Structures,
		"tiles":         sett.Tiles,
		"research":      sett.Research,
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request, id uint64) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sett := s.Sim.Settlement(id)
	if sett == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "settlement not found", nil)
		return
	}

	sett.Lock()
	defer sett.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  sett.Queue,
		"active": sett.ActiveQueueCount(),
	})
}

type constructRequest struct {
	ActorID   uint64 `json:"actor_id"`
	DefID     string `json:"def_id"`
	UpgradeOf uint64 `json:"upgrade_of,omitempty"`
	TileID    int    `json:"tile_id"`
	Slot      int    `json:"slot"`
}

func (s *Server) handleConstruct(w http.ResponseWriter, r *http.Request, id uint64) {
	var req constructRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	item, err := s.Sim.SubmitConstruction(engine.SubmitRequest{
		ActorID:      req.ActorID,
		SettlementID: id,
		DefID:        req.DefID,
		UpgradeOf:    req.UpgradeOf,
		TileID:       req.TileID,
		Slot:         req.Slot,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, id uint64) {
	var req struct {
		ActorID uint64 `json:"actor_id"`
		ItemID  string `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	if err := s.Sim.CancelConstruction(req.ActorID, id, req.ItemID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": req.ItemID})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request, id uint64) {
	var req struct {
		ActorID uint64 `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	delta, err := s.Sim.CollectResources(req.ActorID, id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collected": delta.Map()})
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request, id uint64) {
	var req struct {
		ActorID     uint64 `json:"actor_id"`
		StructureID uint64 `json:"structure_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	if err := s.Sim.RepairStructure(req.ActorID, id, req.StructureID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repaired": req.StructureID})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		ActorID  uint64 `json:"actor_id"`
		From     uint64 `json:"from"`
		To       uint64 `json:"to"`
		Resource string `json:"resource"`
		Amount   int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}

	rt, ok := parseResource(req.Resource)
	if !ok {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown resource", map[string]any{"resource": req.Resource})
		return
	}
	if err := s.Sim.InitiateTransfer(req.ActorID, req.From, req.To, rt, req.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transferred": req.Amount, "resource": req.Resource})
}

func parseResource(name string) (resources.Type, bool) {
	for _, t := range resources.All() {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

func (s *Server) handleDisasters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.Sim.Disasters())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	// The in-memory buffer covers since the last save; older history comes
	// from the database when one is attached.
	events := s.Sim.RecentEvents(limit)
	if len(events) < limit && s.DB != nil {
		persisted, err := s.DB.RecentEvents(limit - len(events))
		if err != nil {
			slog.Error("load event history", "error", err)
		} else {
			// Persisted events are older; newest last overall.
			merged := make([]engine.Event, 0, len(events)+len(persisted))
			for i := len(persisted) - 1; i >= 0; i-- {
				merged = append(merged, persisted[i])
			}
			events = append(merged, events...)
		}
	}
	writeJSON(w, http.StatusOK, events)
}

type scheduleDisasterRequest struct {
	Type           string   `json:"type"`
	Severity       float64  `json:"severity"`
	Biomes         []string `json:"biomes"`
	ScheduleTick   uint64   `json:"schedule_tick"`
	WarningTicks   uint64   `json:"warning_ticks"`
	ImpactTicks    uint64   `json:"impact_ticks"`
	AftermathTicks uint64   `json:"aftermath_ticks"`
}

func (s *Server) handleScheduleDisaster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req scheduleDisasterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Type == "" || req.Severity <= 0 || req.Severity > 100 {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "type and severity (0-100] required", nil)
		return
	}

	ev := s.Sim.ScheduleDisaster(&engine.DisasterEvent{
		Type:           req.Type,
		Severity:       req.Severity,
		Biomes:         req.Biomes,
		ScheduleTick:   req.ScheduleTick,
		WarningTicks:   req.WarningTicks,
		ImpactTicks:    req.ImpactTicks,
		AftermathTicks: req.AftermathTicks,
	})
	writeJSON(w, http.StatusCreated, ev)
}

// handleAdvanceDisaster serves POST /api/v1/admin/disaster/{id}/advance.
func (s *Server) handleAdvanceDisaster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/admin/disaster/")
	id, ok := strings.CutSuffix(rest, "/advance")
	if !ok || id == "" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown admin action", nil)
		return
	}

	if err := s.Sim.ForceAdvance(id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"advanced": id})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		writeError(w, http.StatusConflict, "NO_DATABASE", "world is running in memory", nil)
		return
	}
	if err := s.DB.SaveWorldState(s.Sim); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved_tick": s.Sim.CurrentTick()})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
