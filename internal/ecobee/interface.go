package ecobee

import (
	"context"
	"time"
)

// Client is the subset of the Ecobee API the exporter depends on.
// Every method reports failures as *RemoteError.
type Client interface {
	// Authorize starts the ecobeePin device flow.
	Authorize(ctx context.Context) (*Authorization, error)
	// RequestTokens exchanges an approved authorization code for tokens.
	RequestTokens(ctx context.Context, authorizationToken string) (*Tokens, error)
	// Refresh mints a new access token from a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	// ListRegistered returns the identifiers of all registered thermostats,
	// in the order the API lists them.
	ListRegistered(ctx context.Context, accessToken string) ([]string, error)
	// FetchDetail returns equipment status, runtime and sensors for one thermostat.
	FetchDetail(ctx context.Context, accessToken, id string) (*Thermostat, error)
}

// Authorization is the result of a pin request.
type Authorization struct {
	Code      string
	Pin       string
	ExpiresAt time.Time
	Interval  time.Duration
}

// Tokens carries absolute expiries computed when the response arrived.
type Tokens struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
}

// Thermostat is one detail row. Pointer fields are nil when the API
// omitted them. A block that was present but had the wrong shape is left
// empty and its decode error is kept in Malformed, keyed by wire name.
type Thermostat struct {
	Identifier      string
	Name            string
	EquipmentStatus *string
	Runtime         *Runtime
	RemoteSensors   []Sensor
	Malformed       map[string]string
}

// Wire names of the blocks that can be reported in Thermostat.Malformed.
const (
	FieldEquipmentStatus = "equipmentStatus"
	FieldRuntime         = "runtime"
	FieldRemoteSensors   = "remoteSensors"
)

// Runtime ranges are [low, high] in tenths of a degree Fahrenheit.
type Runtime struct {
	DesiredHeatRange []int
	DesiredCoolRange []int
}

type Sensor struct {
	Name       string
	Capability []Capability
}

// Capability values are strings on the wire; decoding depends on Type.
type Capability struct {
	Type  string
	Value string
}
