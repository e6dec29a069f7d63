package catalog

// Default returns the compiled-in catalog: five extractors (one per
// resource), housing, storage, and the civic buildings the prerequisite and
// staffing systems need. Numbers here are the reference balance; operators
// override them with a catalog.json.
func Default() *Catalog {
	f := fileFormat{
		Structures: []*Definition{
			{
				ID: "farm", Name: "Farm", Category: CategoryExtractor, Produces: "food",
				Cost:       map[string]int64{"wood": 40, "stone": 10},
				BuildTicks: 30, Tier: 1,
				Staffing: Staffing{Required: 2, Optional: 4, BonusPerWorker: 0.05, Priority: 90},
			},
			{
				ID: "well", Name: "Well", Category: CategoryExtractor, Produces: "water",
				Cost:       map[string]int64{"wood": 20, "stone": 30},
				BuildTicks: 25, Tier: 1,
				Staffing: Staffing{Required: 1, Optional: 2, BonusPerWorker: 0.04, Priority: 95},
			},
			{
				ID: "lumber_camp", Name: "Lumber Camp", Category: CategoryExtractor, Produces: "wood",
				Cost:       map[string]int64{"wood": 25, "stone": 15},
				BuildTicks: 35, Tier: 1,
				Staffing: Staffing{Required: 2, Optional: 4, BonusPerWorker: 0.05, Priority: 70},
			},
			{
				ID: "quarry", Name: "Quarry", Category: CategoryExtractor, Produces: "stone",
				Cost:       map[string]int64{"wood": 50, "stone": 10},
				BuildTicks: 45, Tier: 1,
				Prerequisites: []Prerequisite{{StructureID: "lumber_camp", Level: 1}},
				Staffing:      Staffing{Required: 3, Optional: 3, BonusPerWorker: 0.06, Priority: 60},
			},
			{
				ID: "mine", Name: "Mine", Category: CategoryExtractor, Produces: "ore",
				Cost:       map[string]int64{"wood": 60, "stone": 40},
				BuildTicks: 60, Tier: 2,
				Prerequisites: []Prerequisite{{StructureID: "quarry", Level: 2}},
				Staffing:      Staffing{Required: 4, Optional: 4, BonusPerWorker: 0.08, Priority: 50},
			},
			{
				ID: "cottage", Name: "Cottage", Category: CategoryBuilding,
				Cost:       map[string]int64{"wood": 30, "stone": 20},
				BuildTicks: 20, Tier: 1, AreaCost: 1, HousingCapacity: 5,
			},
			{
				ID: "longhouse", Name: "Longhouse", Category: CategoryBuilding,
				Cost:       map[string]int64{"wood": 80, "stone": 60},
				BuildTicks: 50, Tier: 2, AreaCost: 2, HousingCapacity: 14,
				Prerequisites: []Prerequisite{{StructureID: "cottage", Level: 2}},
			},
			{
				ID: "granary", Name: "Granary", Category: CategoryBuilding,
				Cost:       map[string]int64{"wood": 50, "stone": 40},
				BuildTicks: 40, Tier: 1, AreaCost: 1,
			},
			{
				ID: "town_hall", Name: "Town Hall", Category: CategoryBuilding,
				Cost:       map[string]int64{"wood": 120, "stone": 100, "ore": 20},
				BuildTicks: 90, Tier: 2, AreaCost: 3, Unique: true,
				Staffing: Staffing{Required: 2, Optional: 2, BonusPerWorker: 0.03, Priority: 40},
			},
			{
				ID: "watchtower", Name: "Watchtower", Category: CategoryBuilding,
				Cost:       map[string]int64{"wood": 40, "stone": 70},
				BuildTicks: 55, Tier: 2, AreaCost: 1,
				Prerequisites: []Prerequisite{{Research: "masonry"}},
				Staffing:      Staffing{Required: 1, Optional: 1, BonusPerWorker: 0.02, Priority: 30},
			},
		},
		Biomes: BiomeEfficiency{
			"plains":    {"food": 1.2, "water": 1.0, "wood": 0.8, "stone": 0.9, "ore": 0.7},
			"forest":    {"food": 0.9, "water": 1.0, "wood": 1.4, "stone": 0.8, "ore": 0.8},
			"highland":  {"food": 0.7, "water": 0.8, "wood": 0.9, "stone": 1.3, "ore": 1.2},
			"riverland": {"food": 1.1, "water": 1.5, "wood": 1.0, "stone": 0.8, "ore": 0.6},
			"badlands":  {"food": 0.5, "water": 0.6, "wood": 0.4, "stone": 1.2, "ore": 1.5},
		},
	}

	c, err := build(f)
	if err != nil {
		// The default tables are compile-time data; a build failure here is a bug.
		panic("catalog: default tables invalid: " + err.Error())
	}
	return c
}
