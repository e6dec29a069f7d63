// Package config loads the server and balance tuning tables from YAML.
// Every knob has a default so the server runs from a bare checkout; a
// tuning file overrides selectively.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// HappinessWeights blends the six happiness factors. Percentages, must sum
// to 100.
type HappinessWeights struct {
	ResourceSufficiency float64 `yaml:"resource_sufficiency"`
	Housing             float64 `yaml:"housing"`
	Preparedness        float64 `yaml:"preparedness"`
	Trauma              float64 `yaml:"trauma"`
	Morale              float64 `yaml:"morale"`
	Relations           float64 `yaml:"relations"`
}

func (w HappinessWeights) sum() float64 {
	return w.ResourceSufficiency + w.Housing + w.Preparedness + w.Trauma + w.Morale + w.Relations
}

// Config is the full server + balance configuration.
type Config struct {
	ListenPort int    `yaml:"listen_port"`
	AdminKey   string `yaml:"admin_key"` // Bearer token for command endpoints. Empty = commands disabled.
	DBPath     string `yaml:"db_path"`
	CatalogDir string `yaml:"catalog_dir"`
	WorldSeed  int64  `yaml:"world_seed"`

	TickInterval      time.Duration `yaml:"tick_interval"`
	SaveEveryTicks    uint64        `yaml:"save_every_ticks"`
	WorldMultiplier   float64       `yaml:"world_multiplier"`
	TileBaseModifier  float64       `yaml:"tile_base_modifier"`
	BaseProductionPct float64       `yaml:"base_production_pct"` // Always-on baseline share, default 0.20.

	// Tier multiplier step function: band start levels, band base
	// multipliers, and the per-level bonus inside each band. The top band
	// continues unbounded.
	TierStartLevels  [3]int     `yaml:"tier_start_levels"`
	TierBaseMults    [3]float64 `yaml:"tier_base_mults"`
	TierLevelBonuses [3]float64 `yaml:"tier_level_bonuses"`

	// Consumption rates per tick, in units.
	FoodPerCapita    float64 `yaml:"food_per_capita"`
	WaterPerCapita   float64 `yaml:"water_per_capita"`
	WoodMaintenance  float64 `yaml:"wood_maintenance"`  // Per structure.
	StoneMaintenance float64 `yaml:"stone_maintenance"` // Per structure.
	OreMaintenance   float64 `yaml:"ore_maintenance"`   // Per structure.
	StorageCapacity  int64   `yaml:"storage_capacity"`  // Whole units per resource. 0 = uncapped.

	// Construction queue.
	QueueConcurrency int `yaml:"queue_concurrency"` // Simultaneously active items.
	QueueMaxItems    int `yaml:"queue_max_items"`   // Active + queued cap.

	// Population.
	GrowthIntervalTicks  uint64           `yaml:"growth_interval_ticks"`
	BaseHousing          int              `yaml:"base_housing"`
	Happiness            HappinessWeights `yaml:"happiness_weights"`
	ImmigrationThreshold float64          `yaml:"immigration_threshold"`
	EmigrationThreshold  float64          `yaml:"emigration_threshold"`
	StarvationPenalty    float64          `yaml:"starvation_penalty"`
	StarvationCeiling    float64          `yaml:"starvation_ceiling"`
	BaselineMorale       float64          `yaml:"baseline_morale"`
	BaselineRelations    float64          `yaml:"baseline_relations"`

	// Disasters.
	DisasterPulseTicks   uint64  `yaml:"disaster_pulse_ticks"`   // Ticks between impact damage pulses.
	ImminentWarningTicks uint64  `yaml:"imminent_warning_ticks"` // Time-to-impact threshold for the imminent notice.
	RepairWindowTicks    uint64  `yaml:"repair_window_ticks"`    // Aftermath discount window length.
	RepairDiscount       float64 `yaml:"repair_discount"`        // Cost factor inside the window.
}

// Defaults returns the reference balance configuration.
func Defaults() Config {
	return Config{
		ListenPort: 8080,
		DBPath:     "data/steadfall.db",
		CatalogDir: "data",
		WorldSeed:  42,

		TickInterval:      time.Second,
		SaveEveryTicks:    300,
		WorldMultiplier:   1.0,
		TileBaseModifier:  1.0,
		BaseProductionPct: 0.20,

		TierStartLevels:  [3]int{1, 6, 11},
		TierBaseMults:    [3]float64{0.5, 0.8, 1.3},
		TierLevelBonuses: [3]float64{0.05, 0.08, 0.10},

		FoodPerCapita:    0.002,
		WaterPerCapita:   0.003,
		WoodMaintenance:  0.001,
		StoneMaintenance: 0.0005,
		OreMaintenance:   0.0002,
		StorageCapacity:  10000,

		QueueConcurrency: 1,
		QueueMaxItems:    11,

		GrowthIntervalTicks: 600,
		BaseHousing:         10,
		Happiness: HappinessWeights{
			ResourceSufficiency: 30,
			Housing:             20,
			Preparedness:        15,
			Trauma:              15,
			Morale:              15,
			Relations:           5,
		},
		ImmigrationThreshold: 75,
		EmigrationThreshold:  25,
		StarvationPenalty:    20,
		StarvationCeiling:    55,
		BaselineMorale:       70,
		BaselineRelations:    50,

		DisasterPulseTicks:   10,
		ImminentWarningTicks: 1800,
		RepairWindowTicks:    3600,
		RepairDiscount:       0.5,
	}
}

// Load reads a YAML tuning file over the defaults. A missing file returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks internal consistency of the tuning values.
func (c *Config) Validate() error {
	if sum := c.Happiness.sum(); math.Abs(sum-100) > 1e-9 {
		return fmt.Errorf("happiness weights sum to %.2f, want 100", sum)
	}
	if c.QueueConcurrency < 1 {
		return fmt.Errorf("queue_concurrency %d is below 1", c.QueueConcurrency)
	}
	if c.QueueMaxItems < c.QueueConcurrency {
		return fmt.Errorf("queue_max_items %d is below queue_concurrency %d", c.QueueMaxItems, c.QueueConcurrency)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.TierStartLevels[0] != 1 || c.TierStartLevels[1] <= c.TierStartLevels[0] || c.TierStartLevels[2] <= c.TierStartLevels[1] {
		return fmt.Errorf("tier_start_levels must be ascending and start at 1")
	}
	return nil
}
