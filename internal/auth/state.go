package auth

import (
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/credentials"
)

// State is derived from a bundle and a wall-clock instant; it is never stored.
type State int

const (
	Unauthorized State = iota
	AuthorizedPendingToken
	RefreshExpired
	AccessExpired
	Valid
)

func (s State) String() string {
	switch s {
	case Unauthorized:
		return "unauthorized"
	case AuthorizedPendingToken:
		return "authorized_pending_token"
	case RefreshExpired:
		return "refresh_expired"
	case AccessExpired:
		return "access_expired"
	case Valid:
		return "valid"
	default:
		return "unknown"
	}
}

// StateOf evaluates bundle at now. Checks run in priority order, so a
// pending authorization wins over any expiry. A bundle without a refresh
// token stays Valid while its access token lasts; once that expires it
// cannot be refreshed and is treated as RefreshExpired.
func StateOf(bundle *credentials.TokenBundle, now time.Time) State {
	accessExpired := bundle.AccessTokenExpiresAt == nil || now.After(*bundle.AccessTokenExpiresAt)

	switch {
	case bundle.AuthorizationToken == "" && bundle.AccessToken == "":
		return Unauthorized
	case bundle.AccessToken == "":
		return AuthorizedPendingToken
	case bundle.RefreshTokenExpiresAt != nil && now.After(*bundle.RefreshTokenExpiresAt):
		return RefreshExpired
	case accessExpired && bundle.RefreshToken == "":
		return RefreshExpired
	case accessExpired:
		return AccessExpired
	default:
		return Valid
	}
}
