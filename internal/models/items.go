// ABOUTME: Item schemas: tools, inputs, their type catalogs and the inventory
// ABOUTME: Type catalogs are reference data and change rarely

package models

type ToolType struct {
	ID             ID      `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	BaseDurability int     `json:"base_durability"`
	BaseEfficiency float64 `json:"base_efficiency"`
	Cost           int     `json:"cost"`
}

func (t *ToolType) Validate() error {
	if t.ID == "" || t.Name == "" {
		return shapeErr("tool type without id or name")
	}
	return nil
}

type Tool struct {
	ID         ID        `json:"id"`
	PlayerID   ID        `json:"player_id"`
	ToolTypeID ID        `json:"tool_type_id"`
	Durability int       `json:"durability"`
	Efficiency float64   `json:"efficiency"`
	ToolType   *ToolType `json:"tool_type,omitempty"`
}

func (t *Tool) Validate() error {
	if t.ID == "" {
		return shapeErr("tool without id")
	}
	return nil
}

type InputType struct {
	ID          ID      `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Effect      string  `json:"effect"`
	EffectValue float64 `json:"effect_value"`
	Cost        int     `json:"cost"`
}

func (t *InputType) Validate() error {
	if t.ID == "" || t.Name == "" {
		return shapeErr("input type without id or name")
	}
	return nil
}

type Input struct {
	ID          ID         `json:"id"`
	PlayerID    ID         `json:"player_id"`
	InputTypeID ID         `json:"input_type_id"`
	Quantity    int        `json:"quantity"`
	InputType   *InputType `json:"input_type,omitempty"`
}

func (i *Input) Validate() error {
	if i.ID == "" {
		return shapeErr("input without id")
	}
	if i.Quantity < 0 {
		return shapeErr("input %s has negative quantity", i.ID)
	}
	return nil
}

type InventoryItem struct {
	ID       ID     `json:"id"`
	PlayerID ID     `json:"player_id"`
	ItemType string `json:"item_type"`
	ItemID   ID     `json:"item_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

func (i *InventoryItem) Validate() error {
	if i.ID == "" {
		return shapeErr("inventory item without id")
	}
	return nil
}

// Purchase buys a tool or input type for a player. Exactly one type id is set.
type Purchase struct {
	PlayerID    ID  `json:"player_id"`
	ToolTypeID  ID  `json:"tool_type_id,omitempty"`
	InputTypeID ID  `json:"input_type_id,omitempty"`
	Quantity    int `json:"quantity,omitempty"`
}

// ItemUse applies, or sells, a quantity of an input or inventory item.
// TargetID is the planting or quadrant it is applied to.
type ItemUse struct {
	TargetID ID  `json:"target_id,omitempty"`
	Quantity int `json:"quantity"`
}
