package model

import (
	"time"
)

// Credential is the bearer token the CLI persists after a successful device
// authorization. The on-disk file is this struct as JSON.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
}

// IsExpired compares against the wall clock with no grace period.
func (c *Credential) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}
