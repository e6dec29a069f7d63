package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/talgya/steadfall/internal/resources"
)

func TestDefaultCatalogValid(t *testing.T) {
	c := Default()
	if len(c.Defs) == 0 {
		t.Fatal("default catalog is empty")
	}
	if c.Digest == "" {
		t.Error("default catalog has no digest")
	}

	// Every resource type has at least one extractor producing it.
	covered := map[resources.Type]bool{}
	for _, d := range c.Defs {
		if d.Category != CategoryExtractor {
			continue
		}
		rt, ok := d.ProducesType()
		if !ok {
			t.Errorf("extractor %s produces unknown resource %q", d.ID, d.Produces)
			continue
		}
		covered[rt] = true
	}
	for _, rt := range resources.All() {
		if !covered[rt] {
			t.Errorf("no extractor produces %s", rt)
		}
	}
}

func TestCostAmountsScaleWithLevel(t *testing.T) {
	d := Default().Get("farm")
	if d == nil {
		t.Fatal("no farm definition")
	}
	l1 := d.CostAmounts(1)
	l3 := d.CostAmounts(3)
	for i := range l1 {
		if l3[i] != 3*l1[i] {
			t.Errorf("%s: level-3 cost %d != 3× level-1 cost %d", resources.Type(i), l3[i], l1[i])
		}
	}
}

func TestBiomeEfficiencyDefaultsToOne(t *testing.T) {
	c := Default()
	if got := c.Biomes.Efficiency("void_biome", resources.Food); got != 1.0 {
		t.Errorf("unknown biome efficiency = %v, want 1.0", got)
	}
	if got := c.Biomes.Efficiency("plains", resources.Food); got != 1.2 {
		t.Errorf("plains food efficiency = %v, want 1.2", got)
	}
}

func TestLoadRejectsUnknownPrerequisite(t *testing.T) {
	dir := t.TempDir()
	doc := fileFormat{
		Structures: []*Definition{{
			ID: "shrine", Category: CategoryBuilding,
			Prerequisites: []Prerequisite{{StructureID: "nonexistent", Level: 1}},
		}},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "catalog.json"), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir); err == nil {
		t.Error("Load accepted a prerequisite on an unknown structure")
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load on empty dir: %v", err)
	}
	if c.Get("farm") == nil {
		t.Error("fallback catalog missing farm")
	}
}
