// ABOUTME: Tools, inputs, their type catalogs and the inventory
// ABOUTME: Purchases and sales also invalidate the player for the coin balance

package resources

import (
	"context"
	"net/http"
	"net/url"

	"github.com/markalston/novorio/internal/cache"
	"github.com/markalston/novorio/internal/models"
)

// Tools lists the current player's tools.
func (s *Service) Tools(ctx context.Context) ([]models.Tool, error) {
	pid, err := s.playerID()
	if err != nil {
		return nil, err
	}
	return list[models.Tool](ctx, s, cache.NewKey(KindTools, pid), "/tools", url.Values{"player_id": {string(pid)}})
}

// ToolTypes lists the tool catalog.
func (s *Service) ToolTypes(ctx context.Context) ([]models.ToolType, error) {
	return list[models.ToolType](ctx, s, cache.NewKey(KindToolTypes), "/tool-types", nil)
}

// BuyTool buys a tool of the given type.
func (s *Service) BuyTool(ctx context.Context, toolTypeID models.ID) (*models.Tool, error) {
	pid, err := s.playerID()
	if err != nil {
		return nil, err
	}
	return write[models.Tool](ctx, s, http.MethodPost, "/tools/buy",
		models.Purchase{PlayerID: pid, ToolTypeID: toolTypeID},
		cache.NewKey(KindTools, pid), PlayerKey(pid))
}

// RepairTool restores a tool's durability.
func (s *Service) RepairTool(ctx context.Context, toolID models.ID) (*models.Tool, error) {
	pid, err := s.playerID()
	if err != nil {
		return nil, err
	}
	return write[models.Tool](ctx, s, http.MethodPost, "/tools/"+string(toolID)+"/repair", nil,
		cache.NewKey(KindTools, pid), PlayerKey(pid))
}

// Inputs lists the current player's inputs (seeds, fertilizers...).
func (s *Service) Inputs(ctx context.Context) ([]models.Input, error) {
	pid, err := s.playerID()
	if err != nil {
		return nil, err
	}
	return list[models.Input](ctx, s, cache.NewKey(KindInputs, pid), "/inputs", url.Values{"player_id": {string(pid)}})
}

// InputTypes lists the input catalog.
func (s *Service) InputTypes(ctx context.Context) ([]models.InputType, error) {
	return list[models.InputType](ctx, s, cache.NewKey(KindInputTypes), "/input-types", nil)
}

// BuyInput buys quantity inputs of the given type.
func (s *Service) BuyInput(ctx context.Context, inputTypeID models.ID, quantity int) (*models.Input, error) {
	pid, err := s.playerID()
	if err != nil {
		return nil, err
	}
	return write[models.Input](ctx, s, http.MethodPost, "/inputs/buy",
		models.Purchase{PlayerID: pid, InputTypeID: inputTypeID, Quantity: quantity},
		cache.NewKey(KindInputs, pid), PlayerKey(pid))
}

// UseInput applies an input to a target planting or quadrant.
func (s *Service) UseInput(ctx context.Context, inputID models.ID, use models.ItemUse) error {
	pid, err := s.playerID()
	if err != nil {
		return err
	}
	return s.send(ctx, "/inputs/"+string(inputID)+"/use", use,
		cache.NewKey(KindInputs, pid), cache.NewKey(KindPlantings))
}

func inventoryKey(pid models.ID) cache.Key {
	return cache.NewKey(KindInventory, pid)
}

// Inventory lists the current player's items, optionally of one type.
func (s *Service) Inventory(ctx context.Context, itemType string) ([]models.InventoryItem, error) {
	pid, err := s.playerID()
	if err != nil {
		return nil, err
	}
	q := url.Values{"player_id": {string(pid)}}
	if itemType != "" {
		q.Set("item_type", itemType)
	}
	return list[models.InventoryItem](ctx, s, cache.NewKey(KindInventory, pid, itemType), "/inventory", q)
}

// UseItem consumes an inventory item. Quantity defaults to one.
func (s *Service) UseItem(ctx context.Context, itemID models.ID, use models.ItemUse) error {
	pid, err := s.playerID()
	if err != nil {
		return err
	}
	if use.Quantity <= 0 {
		use.Quantity = 1
	}
	return s.send(ctx, "/inventory/"+string(itemID)+"/use", use,
		inventoryKey(pid), cache.NewKey(KindPlantings))
}

// SellItem sells quantity units of an inventory item.
func (s *Service) SellItem(ctx context.Context, itemID models.ID, quantity int) error {
	pid, err := s.playerID()
	if err != nil {
		return err
	}
	return s.send(ctx, "/inventory/"+string(itemID)+"/sell", models.ItemUse{Quantity: quantity},
		inventoryKey(pid), PlayerKey(pid))
}
