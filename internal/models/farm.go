// ABOUTME: Farm schemas: terrains, quadrants, slots and plantings
// ABOUTME: Mirrors the game API's terrain hierarchy

package models

import "time"

type Terrain struct {
	ID          ID         `json:"id"`
	PlayerID    ID         `json:"player_id"`
	Name        string     `json:"name"`
	Position    string     `json:"position"`
	SoilQuality float64    `json:"soil_quality"`
	WaterLevel  float64    `json:"water_level"`
	Sunlight    float64    `json:"sunlight"`
	Quadrants   []Quadrant `json:"quadrants,omitempty"`
}

func (t *Terrain) Validate() error {
	if t.ID == "" {
		return shapeErr("terrain without id")
	}
	return nil
}

// TerrainInput creates or updates a terrain.
type TerrainInput struct {
	PlayerID ID     `json:"player_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Position string `json:"position,omitempty"`
}

type Quadrant struct {
	ID          ID      `json:"id"`
	TerrainID   ID      `json:"terrain_id"`
	Position    string  `json:"position"`
	SoilQuality float64 `json:"soil_quality"`
	WaterLevel  float64 `json:"water_level"`
	Sunlight    float64 `json:"sunlight"`
	Slots       []Slot  `json:"slots,omitempty"`
}

func (q *Quadrant) Validate() error {
	if q.ID == "" {
		return shapeErr("quadrant without id")
	}
	return nil
}

// SlotStatus is empty, occupied or blocked.
type SlotStatus string

type Slot struct {
	ID         ID         `json:"id"`
	QuadrantID ID         `json:"quadrant_id"`
	Position   int        `json:"position"`
	Status     SlotStatus `json:"status"`
	Planting   *Planting  `json:"planting,omitempty"`
}

type Planting struct {
	ID               ID         `json:"id"`
	SlotID           ID         `json:"slot_id,omitempty"`
	QuadrantID       ID         `json:"quadrant_id,omitempty"`
	PlantID          ID         `json:"plant_id,omitempty"`
	SpeciesName      string     `json:"species_name,omitempty"`
	GrowthStage      string     `json:"growth_stage"`
	Health           string     `json:"health,omitempty"`
	HealthPercentage float64    `json:"health_percentage"`
	WaterLevel       float64    `json:"water_level"`
	NeedsWater       bool       `json:"needs_water"`
	NeedsFertilizer  bool       `json:"needs_fertilizer"`
	PlantedAt        time.Time  `json:"planted_at"`
	HarvestedAt      *time.Time `json:"harvested_at,omitempty"`
	Issues           []string   `json:"issues,omitempty"`
}

func (p *Planting) Validate() error {
	if p.ID == "" {
		return shapeErr("planting without id")
	}
	if p.GrowthStage == "" {
		return shapeErr("planting %s without growth stage", p.ID)
	}
	return nil
}

// PlantingInput plants a species into a quadrant slot.
type PlantingInput struct {
	QuadrantID ID  `json:"quadrant_id"`
	SpeciesID  ID  `json:"species_id"`
	SlotIndex  int `json:"slot_index"`
}

// PlantingFilter narrows the plantings list; empty fields are omitted.
type PlantingFilter struct {
	PlayerID   ID
	QuadrantID ID
	SpeciesID  ID
	Status     string
}

// Species is the plant catalog; reference data.
type Species struct {
	ID                   ID     `json:"id"`
	Name                 string `json:"name"`
	ScientificName       string `json:"scientific_name,omitempty"`
	Description          string `json:"description,omitempty"`
	GerminationDays      int    `json:"germination_days"`
	MaturityDays         int    `json:"maturity_days"`
	PlantingInstructions string `json:"planting_instructions,omitempty"`
}

func (s *Species) Validate() error {
	if s.ID == "" || s.Name == "" {
		return shapeErr("species without id or name")
	}
	return nil
}
