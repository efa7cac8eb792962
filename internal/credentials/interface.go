package credentials

import (
	"context"
	"time"
)

// Store persists one token bundle per device name.
// Implementations assume a single writer.
type Store interface {
	// Load returns ErrNotFound when no usable record exists for device,
	// including when the stored record cannot be read or decoded.
	Load(ctx context.Context, device string) (*TokenBundle, error)
	Save(ctx context.Context, device string, bundle *TokenBundle) error
	Close() error
}

// TokenBundle holds the vendor credentials for one device.
type TokenBundle struct {
	// AuthorizationToken is only set between the pin request and the
	// token request.
	AuthorizationToken    string     `json:"authorization_token,omitempty"`
	AccessToken           string     `json:"access_token,omitempty"`
	AccessTokenExpiresAt  *time.Time `json:"access_token_expires_at,omitempty"`
	RefreshToken          string     `json:"refresh_token,omitempty"`
	RefreshTokenExpiresAt *time.Time `json:"refresh_token_expires_at,omitempty"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the bundle.
func (b *TokenBundle) Clone() *TokenBundle {
	if b == nil {
		return nil
	}

	c := *b
	if b.AccessTokenExpiresAt != nil {
		t := *b.AccessTokenExpiresAt
		c.AccessTokenExpiresAt = &t
	}
	if b.RefreshTokenExpiresAt != nil {
		t := *b.RefreshTokenExpiresAt
		c.RefreshTokenExpiresAt = &t
	}

	return &c
}
