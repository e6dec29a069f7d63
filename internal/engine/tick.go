// Package engine implements the simulation core: the tick loop, the
// production/consumption calculator, the construction queue, population
// dynamics, and the disaster state machine.
package engine

import (
	"context"
	"log/slog"
	"time"
)

// Engine drives the simulation forward on a fixed interval. It is the only
// component with a time-based entry point; everything else is invoked
// synchronously from it or from player commands.
type Engine struct {
	Sim      *Simulation
	Interval time.Duration

	// OnSave runs on the save cadence with the settlement set quiesced
	// between ticks. Persistence wiring lives in main, not here.
	SaveEveryTicks uint64
	OnSave         func(tick uint64)
}

// NewEngine creates an engine for a simulation with the configured cadence.
func NewEngine(sim *Simulation) *Engine {
	return &Engine{
		Sim:            sim,
		Interval:       sim.cfg.TickInterval,
		SaveEveryTicks: sim.cfg.SaveEveryTicks,
	}
}

// Run advances ticks until the context is cancelled. Simulation work is
// synchronous inside the loop; only the notifier and store may block, and
// both are insulated from the loop by their adapters.
func (e *Engine) Run(ctx context.Context) {
	tick := e.Sim.CurrentTick()
	slog.Info("engine started", "tick", tick, "interval", e.Interval)

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped", "tick", tick)
			return
		case <-ticker.C:
			tick++
			start := time.Now()
			e.Sim.Tick(tick)

			if e.SaveEveryTicks > 0 && tick%e.SaveEveryTicks == 0 {
				if e.OnSave != nil {
					e.OnSave(tick)
				}
				e.Sim.LogEconomyReport(tick)
			}

			if d := time.Since(start); d > e.Interval {
				slog.Warn("tick overran interval", "tick", tick, "took", d)
			}
		}
	}
}
