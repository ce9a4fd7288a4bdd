package model

import (
	"time"
)

// DeviceGrant is the server-side record of one device authorization request.
// It lives in redis for the lifetime of the grant and is never written to
// the relational store.
type DeviceGrant struct {
	DeviceCode string            `json:"deviceCode"`
	UserCode   string            `json:"userCode"`
	ClientID   string            `json:"clientId"`
	Scope      string            `json:"scope"`
	Status     DeviceGrantStatus `json:"status"`
	// UserID is set when the operator approves the grant.
	UserID    *string       `json:"userId,omitempty"`
	Interval  time.Duration `json:"interval"`
	ExpiresAt time.Time     `json:"expiresAt"`
	CreatedAt time.Time     `json:"createdAt"`
}

func (g *DeviceGrant) IsExpired() bool {
	return time.Now().After(g.ExpiresAt)
}
