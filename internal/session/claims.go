// ABOUTME: Unverified JWT claim extraction for session bookkeeping
// ABOUTME: The backend verifies signatures; the client only reads expiry and identity

package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/markalston/novorio/internal/models"
)

type tokenClaims struct {
	Subject   string
	Email     string
	PlayerID  string
	ExpiresAt time.Time
}

// parseClaims returns ok=false for opaque (non-JWT) tokens.
func parseClaims(token string) (tokenClaims, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return tokenClaims{}, false
	}

	var tc tokenClaims
	if sub, err := claims.GetSubject(); err == nil {
		tc.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.Time
	}
	if email, ok := claims["email"].(string); ok {
		tc.Email = email
	}
	switch v := claims["player_id"].(type) {
	case string:
		tc.PlayerID = v
	case float64:
		tc.PlayerID = fmt.Sprint(int64(v))
	}
	return tc, true
}

// user builds a user record from claims, falling back to the login email.
func (tc tokenClaims) user(email string) *models.User {
	u := &models.User{
		ID:       models.ID(tc.Subject),
		Email:    tc.Email,
		PlayerID: models.ID(tc.PlayerID),
	}
	if u.Email == "" {
		u.Email = email
	}
	if u.ID == "" {
		u.ID = models.ID(u.Email)
	}
	return u
}
