// Package forecast generates the world's hazard schedule. It sits outside
// the simulation core: the core consumes DisasterEvents as input and never
// cares who created them, operator or forecaster.
package forecast

import (
	"context"
	"log/slog"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/steadfall/internal/engine"
	"github.com/talgya/steadfall/internal/entropy"
)

// hazard is one rollable disaster archetype. Weight biases the type roll;
// biomes limit the blast area.
type hazard struct {
	Type       string
	Weight     float64
	Biomes     []string
	MinDamp    float64 // Severity floor factor applied to the noise roll.
	WarningMin uint64  // Warning duration bounds in ticks.
	WarningMax uint64
	ImpactMin  uint64
	ImpactMax  uint64
}

var hazards = []hazard{
	{Type: "storm", Weight: 0.40, Biomes: []string{"plains", "riverland", "forest"},
		MinDamp: 0.2, WarningMin: 2400, WarningMax: 4800, ImpactMin: 60, ImpactMax: 240},
	{Type: "wildfire", Weight: 0.25, Biomes: []string{"forest", "badlands"},
		MinDamp: 0.3, WarningMin: 600, WarningMax: 1800, ImpactMin: 120, ImpactMax: 600},
	{Type: "earthquake", Weight: 0.15, Biomes: []string{"highland", "badlands"},
		MinDamp: 0.4, WarningMin: 300, WarningMax: 900, ImpactMin: 30, ImpactMax: 90},
	{Type: "flood", Weight: 0.20, Biomes: []string{"riverland", "plains"},
		MinDamp: 0.2, WarningMin: 1200, WarningMax: 3600, ImpactMin: 180, ImpactMax: 720},
}

// Forecaster periodically rolls for new hazards against a seeded noise
// field. One world, one forecaster; determinism follows from the seed.
type Forecaster struct {
	sim   *engine.Simulation
	rng   *entropy.Source
	noise opensimplex.Noise

	// CheckInterval is how often the forecaster rolls. EventChance is the
	// probability a roll produces an event when none is active.
	CheckInterval time.Duration
	EventChance   float64

	// MinGapTicks keeps disasters from stacking directly onto each other.
	MinGapTicks uint64
	lastAtTick  uint64
}

// New creates a forecaster for a simulation, seeded independently of the
// simulation's own entropy so command traffic cannot perturb the schedule.
func New(sim *engine.Simulation, seed int64) *Forecaster {
	return &Forecaster{
		sim:           sim,
		rng:           entropy.NewSource(seed),
		noise:         opensimplex.New(seed),
		CheckInterval: time.Minute,
		EventChance:   0.05,
		MinGapTicks:   7200,
	}
}

// Run rolls on the check interval until the context is cancelled.
func (f *Forecaster) Run(ctx context.Context) {
	ticker := time.NewTicker(f.CheckInterval)
	defer ticker.Stop()
	slog.Info("forecaster started", "interval", f.CheckInterval, "chance", f.EventChance)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ev := f.Roll(f.sim.CurrentTick()); ev != nil {
				f.sim.ScheduleDisaster(ev)
			}
		}
	}
}

// Roll produces a new event for the given tick, or nil when the world stays
// quiet. Quiet is the common case: an active disaster, a recent one, or a
// failed chance roll all yield nil.
func (f *Forecaster) Roll(tick uint64) *engine.DisasterEvent {
	if f.sim.ActiveDisaster() != nil {
		return nil
	}
	if f.lastAtTick > 0 && tick < f.lastAtTick+f.MinGapTicks {
		return nil
	}
	if f.rng.Float() >= f.EventChance {
		return nil
	}

	h := f.pickHazard()

	// The noise field textures severity over time: long calm stretches with
	// occasional violent windows, instead of uniform random severity.
	n := f.noise.Eval2(float64(tick)/4096, 0) // [-1,1]
	severity := (h.MinDamp + (1-h.MinDamp)*(n+1)/2) * 100
	if severity > 100 {
		severity = 100
	}

	warning := h.WarningMin + uint64(f.rng.Intn(int(h.WarningMax-h.WarningMin+1)))
	impact := h.ImpactMin + uint64(f.rng.Intn(int(h.ImpactMax-h.ImpactMin+1)))

	f.lastAtTick = tick
	return &engine.DisasterEvent{
		Type:           h.Type,
		Severity:       severity,
		Biomes:         h.Biomes,
		ScheduleTick:   tick + 1,
		WarningTicks:   warning,
		ImpactTicks:    impact,
		AftermathTicks: impact * 2,
	}
}

func (f *Forecaster) pickHazard() hazard {
	total := 0.0
	for _, h := range hazards {
		total += h.Weight
	}
	roll := f.rng.Float() * total
	for _, h := range hazards {
		if roll < h.Weight {
			return h
		}
		roll -= h.Weight
	}
	return hazards[len(hazards)-1]
}
