// ABOUTME: Terrains, quadrants, plantings and the species catalog
// ABOUTME: Terrain creation enforces the per-player limit against cached data

package resources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/markalston/novorio/internal/cache"
	"github.com/markalston/novorio/internal/models"
)

// MaxTerrains is the number of terrains a player may own.
const MaxTerrains = 15

// ErrTerrainLimit is returned when the cached terrain list is already full.
var ErrTerrainLimit = fmt.Errorf("Limite máximo de %d terrenos atingido.", MaxTerrains)

func terrainsKey(playerID models.ID) cache.Key {
	return cache.NewKey(KindTerrains, playerID)
}

// Terrains lists the current player's terrains.
func (s *Service) Terrains(ctx context.Context) ([]models.Terrain, error) {
	pid, err := s.playerID()
	if err != nil {
		return nil, err
	}
	return list[models.Terrain](ctx, s, terrainsKey(pid), "/terrains", url.Values{"player_id": {string(pid)}})
}

// Terrain reads a single terrain.
func (s *Service) Terrain(ctx context.Context, id models.ID) (*models.Terrain, error) {
	return one[models.Terrain](ctx, s, cache.NewKey(KindTerrains, "id", id), "/terrains/"+string(id))
}

// CreateTerrain creates a terrain for the current player. The limit is
// checked against the cached list only; the backend has the final word.
func (s *Service) CreateTerrain(ctx context.Context, in models.TerrainInput) (*models.Terrain, error) {
	pid, err := s.playerID()
	if err != nil {
		return nil, err
	}
	if e, ok := s.cache.Peek(terrainsKey(pid)); ok {
		if terrains, ok := e.Data.([]models.Terrain); ok && len(terrains) >= MaxTerrains {
			return nil, ErrTerrainLimit
		}
	}
	if in.PlayerID == "" {
		in.PlayerID = pid
	}
	return write[models.Terrain](ctx, s, http.MethodPost, "/terrains", in, terrainsKey(pid))
}

// UpdateTerrain patches a terrain.
func (s *Service) UpdateTerrain(ctx context.Context, id models.ID, in models.TerrainInput) (*models.Terrain, error) {
	pid, err := s.playerID()
	if err != nil {
		return nil, err
	}
	return write[models.Terrain](ctx, s, http.MethodPatch, "/terrains/"+string(id), in,
		terrainsKey(pid), cache.NewKey(KindTerrains, "id", id))
}

// Quadrants lists the quadrants of a terrain.
func (s *Service) Quadrants(ctx context.Context, terrainID models.ID) ([]models.Quadrant, error) {
	if terrainID == "" {
		return nil, fmt.Errorf("resources: terrain id is required")
	}
	return list[models.Quadrant](ctx, s, cache.NewKey(KindQuadrants, terrainID), "/quadrants", url.Values{"terrain_id": {string(terrainID)}})
}

// Plantings lists plantings matching filter. An empty PlayerID means the
// current player.
func (s *Service) Plantings(ctx context.Context, filter models.PlantingFilter) ([]models.Planting, error) {
	if filter.PlayerID == "" {
		pid, err := s.playerID()
		if err != nil {
			return nil, err
		}
		filter.PlayerID = pid
	}

	q := url.Values{"player_id": {string(filter.PlayerID)}}
	if filter.QuadrantID != "" {
		q.Set("quadrant_id", string(filter.QuadrantID))
	}
	if filter.SpeciesID != "" {
		q.Set("species_id", string(filter.SpeciesID))
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	return list[models.Planting](ctx, s, PlantingsKey(filter), "/plantings", q)
}

// PlantingsKey is the cache key Plantings reads for a filter with its
// player filled in.
func PlantingsKey(filter models.PlantingFilter) cache.Key {
	return cache.NewKey(KindPlantings, filter.PlayerID, filter.QuadrantID, filter.SpeciesID, filter.Status)
}

// Plant creates a planting.
func (s *Service) Plant(ctx context.Context, in models.PlantingInput) (*models.Planting, error) {
	return write[models.Planting](ctx, s, http.MethodPost, "/plantings", in,
		cache.NewKey(KindPlantings), cache.NewKey(KindQuadrants))
}

// PlantingAction runs a named action (water, fertilize, harvest...) on a planting.
func (s *Service) PlantingAction(ctx context.Context, plantingID models.ID, action string) (*models.Planting, error) {
	body := map[string]string{"action": action}
	return write[models.Planting](ctx, s, http.MethodPost, "/plantings/"+string(plantingID)+"/actions", body,
		cache.NewKey(KindPlantings))
}

// Species lists the plant catalog.
func (s *Service) Species(ctx context.Context) ([]models.Species, error) {
	return list[models.Species](ctx, s, cache.NewKey(KindSpecies), "/species", nil)
}

// SlotIndex is a convenience for ActionRequest.SlotIndex.
func SlotIndex(i int) *int { return &i }
