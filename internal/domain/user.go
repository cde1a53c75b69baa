package domain

import (
	"errors"
	"time"
)

var (
	// ErrUnknownUser is returned when no user exists for a provider user id.
	ErrUnknownUser = errors.New("unknown user")
	// ErrAuthExpired indicates the provider rejected the user's credentials
	// and a token refresh failed. The caller must emit exactly one
	// logged-out notification and suspend further attempts for the day.
	ErrAuthExpired = errors.New("provider authentication expired")
	// ErrDelivery indicates a notification could not be delivered. Non-fatal.
	ErrDelivery = errors.New("notification delivery failed")
)

// UserIdentity is the provider-assigned user id plus the stable chat alias.
// Created once at first successful authentication; never mutated.
type UserIdentity struct {
	UserID string
	Alias  string
}

// Credentials are the opaque OAuth fields stored per user. Acquisition and
// refresh happen outside this service.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
