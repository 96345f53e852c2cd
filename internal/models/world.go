// ABOUTME: Weather and game action schemas
// ABOUTME: Actions are the generic write path for farming operations

package models

type DailyForecast struct {
	Day        string  `json:"day"`
	Condition  string  `json:"condition"`
	MaxTemp    float64 `json:"maxTemp"`
	MinTemp    float64 `json:"minTemp"`
	RainChance float64 `json:"rainChance"`
}

type Weather struct {
	Condition     string          `json:"condition"`
	Temperature   float64         `json:"temperature"`
	Humidity      float64         `json:"humidity"`
	RainChance    float64         `json:"rainChance"`
	Description   string          `json:"description,omitempty"`
	CurrentPeriod string          `json:"currentPeriod,omitempty"`
	Forecast      []DailyForecast `json:"forecast,omitempty"`
}

func (w *Weather) Validate() error {
	if w.Condition == "" {
		return shapeErr("weather without condition")
	}
	return nil
}

// ActionRequest is posted to /actions.
type ActionRequest struct {
	PlayerID   ID     `json:"player_id"`
	ActionName string `json:"action_name"`
	TerrainID  ID     `json:"terrain_id,omitempty"`
	QuadrantID ID     `json:"quadrant_id,omitempty"`
	PlantingID ID     `json:"planting_id,omitempty"`
	ToolKey    string `json:"tool_key,omitempty"`
	SlotIndex  *int   `json:"slot_index,omitempty"`
}

type ActionResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Effects map[string]any `json:"effects,omitempty"`
}
