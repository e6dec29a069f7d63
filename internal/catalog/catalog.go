// Package catalog supplies the static structure, biome, and staffing tables
// the simulation reads at runtime. Catalogs are loaded once at startup from
// JSON and are read-only afterwards; a sha256 digest over the canonical
// encoding lets operators compare the tables two servers are running.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/talgya/steadfall/internal/resources"
)

// Category splits structures into resource extractors (tile/slot bound) and
// area-bound buildings.
type Category string

const (
	CategoryExtractor Category = "EXTRACTOR"
	CategoryBuilding  Category = "BUILDING"
)

// Prerequisite is a structure-at-level or research requirement that must be
// satisfied before a definition can be queued.
type Prerequisite struct {
	StructureID string `json:"structure_id,omitempty"`
	Level       int    `json:"level,omitempty"`
	Research    string `json:"research,omitempty"`
}

func (p Prerequisite) String() string {
	if p.Research != "" {
		return "research:" + p.Research
	}
	return fmt.Sprintf("%s@%d", p.StructureID, p.Level)
}

// Staffing describes a definition's worker slots. Structures below Required
// get no production bonus; each worker beyond Required adds BonusPerWorker
// to the staffing multiplier, up to Optional extra workers.
type Staffing struct {
	Required       int     `json:"required"`
	Optional       int     `json:"optional"`
	BonusPerWorker float64 `json:"bonus_per_worker"`
	Priority       int     `json:"priority"` // Higher priority is staffed first.
}

// Definition is the static description of a buildable structure.
type Definition struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`

	// Produces is the resource an extractor converts tile potential into.
	// Empty for buildings.
	Produces string `json:"produces,omitempty"`

	// Cost is the level-1 construction cost in whole units. Upgrades cost
	// Cost × target level.
	Cost map[string]int64 `json:"cost"`

	BuildTicks int `json:"build_ticks"` // Level-1 construction time; upgrades scale by target level.
	Tier       int `json:"tier"`
	MaxLevel   int `json:"max_level"` // 0 = unbounded.

	Prerequisites []Prerequisite `json:"prerequisites,omitempty"`

	Staffing Staffing `json:"staffing"`

	// HousingCapacity is the population capacity a building contributes per
	// level. Zero for non-housing structures.
	HousingCapacity int `json:"housing_capacity,omitempty"`

	// AreaCost is the settlement area a building occupies. Extractors occupy
	// tile slots instead.
	AreaCost int  `json:"area_cost,omitempty"`
	Unique   bool `json:"unique,omitempty"` // At most one instance per settlement.
}

// ProducesType resolves the produced resource. ok is false for buildings.
func (d *Definition) ProducesType() (resources.Type, bool) {
	for _, t := range resources.All() {
		if t.String() == d.Produces {
			return t, true
		}
	}
	return 0, false
}

// CostAmounts returns the construction cost for building to the given target
// level, in milliunits.
func (d *Definition) CostAmounts(targetLevel int) resources.Amounts {
	var out resources.Amounts
	for name, units := range d.Cost {
		for _, t := range resources.All() {
			if t.String() == name {
				out[t] = units * resources.Milli * int64(targetLevel)
			}
		}
	}
	return out
}

// BuildDuration returns construction ticks for the given target level.
func (d *Definition) BuildDuration(targetLevel int) uint64 {
	return uint64(d.BuildTicks * targetLevel)
}

// BiomeEfficiency maps a biome name to per-resource production efficiency.
type BiomeEfficiency map[string]map[string]float64

// Efficiency returns the biome's multiplier for a resource, defaulting to 1.
func (b BiomeEfficiency) Efficiency(biome string, t resources.Type) float64 {
	m, ok := b[biome]
	if !ok {
		return 1.0
	}
	v, ok := m[t.String()]
	if !ok {
		return 1.0
	}
	return v
}

// Catalog holds every static table plus the digest of its canonical encoding.
type Catalog struct {
	Defs   map[string]*Definition
	Biomes BiomeEfficiency
	Digest string
}

// Get returns the definition for an id, or nil.
func (c *Catalog) Get(id string) *Definition {
	return c.Defs[id]
}

// fileFormat is the on-disk catalog document.
type fileFormat struct {
	Structures []*Definition   `json:"structures"`
	Biomes     BiomeEfficiency `json:"biomes"`
}

// Load reads catalog.json from dir. A missing file falls back to the
// compiled-in default catalog so a fresh checkout runs without a data dir.
func Load(dir string) (*Catalog, error) {
	path := filepath.Join(dir, "catalog.json")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("catalog.json: %w", err)
	}
	return build(f)
}

func build(f fileFormat) (*Catalog, error) {
	c := &Catalog{
		Defs:   make(map[string]*Definition, len(f.Structures)),
		Biomes: f.Biomes,
	}
	for _, d := range f.Structures {
		if d.ID == "" {
			return nil, fmt.Errorf("catalog: structure with empty id")
		}
		if d.Category != CategoryExtractor && d.Category != CategoryBuilding {
			return nil, fmt.Errorf("catalog: structure %s has bad category %q", d.ID, d.Category)
		}
		if d.Category == CategoryExtractor {
			if _, ok := d.ProducesType(); !ok {
				return nil, fmt.Errorf("catalog: extractor %s produces unknown resource %q", d.ID, d.Produces)
			}
		}
		if _, dup := c.Defs[d.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate structure id %s", d.ID)
		}
		c.Defs[d.ID] = d
	}
	for _, d := range c.Defs {
		for _, p := range d.Prerequisites {
			if p.StructureID != "" && c.Defs[p.StructureID] == nil {
				return nil, fmt.Errorf("catalog: %s requires unknown structure %s", d.ID, p.StructureID)
			}
		}
	}
	c.Digest = digest(f)
	return c, nil
}

// digest hashes the canonical (sorted) JSON encoding of the tables.
func digest(f fileFormat) string {
	sort.Slice(f.Structures, func(i, j int) bool { return f.Structures[i].ID < f.Structures[j].ID })
	raw, err := json.Marshal(f)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
