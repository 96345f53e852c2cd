// ABOUTME: User, player and character schemas
// ABOUTME: The authentication user is distinct from the in-game player persona

package models

// User is the authentication user record.
type User struct {
	ID       ID     `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	PlayerID ID     `json:"player_id,omitempty"`
}

func (u *User) Validate() error {
	if u.ID == "" {
		return shapeErr("user without id")
	}
	return nil
}

// AvatarData describes the chosen character sprite.
type AvatarData struct {
	HeadID int    `json:"head_id"`
	BodyID int    `json:"body_id"`
	ToolID string `json:"tool_id,omitempty"`
}

// Player is the in-game persona tied to a user.
type Player struct {
	ID         ID          `json:"id"`
	UserID     ID          `json:"user_id"`
	Name       string      `json:"name"`
	Level      int         `json:"level"`
	Experience int         `json:"experience"`
	Coins      int         `json:"coins"`
	Aura       int         `json:"aura"`
	AvatarData *AvatarData `json:"avatar_data,omitempty"`
	CreatedAt  string      `json:"created_at,omitempty"`
	UpdatedAt  string      `json:"updated_at,omitempty"`
}

func (p *Player) Validate() error {
	if p.ID == "" {
		return shapeErr("player without id")
	}
	if p.Coins < 0 {
		return shapeErr("player %s has negative coins", p.ID)
	}
	return nil
}

// PlayerUpdate is a partial player write; nil fields are left unchanged.
type PlayerUpdate struct {
	Name  *string `json:"name,omitempty"`
	Coins *int    `json:"coins,omitempty"`
	Aura  *int    `json:"aura,omitempty"`
}

// Character is a player's customized avatar.
type Character struct {
	ID       ID     `json:"id"`
	PlayerID ID     `json:"player_id"`
	Name     string `json:"name"`
	HeadID   int    `json:"head_id"`
	BodyID   int    `json:"body_id"`
}

func (c *Character) Validate() error {
	if c.ID == "" {
		return shapeErr("character without id")
	}
	return nil
}

// PlayerProfile is the public profile view of a player.
type PlayerProfile struct {
	PlayerID   ID       `json:"player_id"`
	Bio        string   `json:"bio,omitempty"`
	Badges     []string `json:"badges,omitempty"`
	Harvests   int      `json:"total_harvests"`
	DaysPlayed int      `json:"days_played"`
}
