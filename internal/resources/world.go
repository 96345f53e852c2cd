// ABOUTME: Weather and the generic game action endpoint
// ABOUTME: Actions touch most of the farm, so they invalidate broadly

package resources

import (
	"context"
	"net/http"

	"github.com/markalston/novorio/internal/cache"
	"github.com/markalston/novorio/internal/models"
)

func weatherKey() cache.Key { return cache.NewKey(KindWeather) }

// Weather returns the current weather and forecast.
func (s *Service) Weather(ctx context.Context) (*models.Weather, error) {
	return one[models.Weather](ctx, s, weatherKey(), "/weather")
}

// WeatherKey is the cache key Weather reads, for observers.
func WeatherKey() cache.Key { return weatherKey() }

// TerrainsKey is the cache key Terrains reads for playerID, for observers.
func TerrainsKey(playerID models.ID) cache.Key { return terrainsKey(playerID) }

// Act posts a game action for the current player unless req names one.
func (s *Service) Act(ctx context.Context, req models.ActionRequest) (*models.ActionResult, error) {
	if req.PlayerID == "" {
		pid, err := s.playerID()
		if err != nil {
			return nil, err
		}
		req.PlayerID = pid
	}
	return write[models.ActionResult](ctx, s, http.MethodPost, "/actions", req,
		cache.NewKey(KindTerrains),
		cache.NewKey(KindQuadrants),
		cache.NewKey(KindPlantings),
		PlayerKey(req.PlayerID))
}
