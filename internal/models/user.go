package models

import "time"

// SessionUser is the administrator behind a verified identity-provider token.
type SessionUser struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   string    `json:"picture,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}
