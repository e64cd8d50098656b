package dmart

import (
	"context"
)

// API defines the operations of a Dmart session client
type API interface {
	// Connect logs in and stores the resulting session
	Connect(ctx context.Context) error

	// GetProfile retrieves the authenticated user's profile
	GetProfile(ctx context.Context) (*Profile, error)

	// Do sends any authenticated request
	Do(ctx context.Context, req *Request) (*Envelope, error)

	// Disconnect logs out and clears the session
	Disconnect(ctx context.Context) error

	// IsConnected reports whether a session is held
	IsConnected() bool
}

var _ API = (*Client)(nil)
