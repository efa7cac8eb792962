package ecobee

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/logger"
	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"
)

const (
	scope = "smartRead"

	// The API does not report refresh token lifetime; refresh tokens are
	// documented to stay valid for one year.
	refreshTokenLifetime = 365 * 24 * time.Hour
)

// HTTPClient talks to the Ecobee REST API.
type HTTPClient struct {
	client *resty.Client
	apiKey string
	clock  clockwork.Clock
}

// NewHTTPClient returns a client for cfg. clock stamps token expiries.
func NewHTTPClient(cfg Config, clock clockwork.Clock) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json;charset=UTF-8").
		SetLogger(restyLogger{})

	return &HTTPClient{
		client: client,
		apiKey: cfg.APIKey,
		clock:  clock,
	}, nil
}

type authorizeResponse struct {
	Pin       string `json:"ecobeePin"`
	Code      string `json:"code"`
	Scope     string `json:"scope"`
	ExpiresIn int    `json:"expires_in"` // minutes
	Interval  int    `json:"interval"`   // seconds
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // seconds
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

type apiStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type thermostatResponse struct {
	ThermostatList []Thermostat `json:"thermostatList"`
	Status         apiStatus    `json:"status"`
}

type selection struct {
	SelectionType          string `json:"selectionType"`
	SelectionMatch         string `json:"selectionMatch"`
	IncludeEquipmentStatus bool   `json:"includeEquipmentStatus,omitempty"`
	IncludeRuntime         bool   `json:"includeRuntime,omitempty"`
	IncludeSensors         bool   `json:"includeSensors,omitempty"`
}

func (c *HTTPClient) Authorize(ctx context.Context) (*Authorization, error) {
	var result authorizeResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("response_type", "ecobeePin").
		SetQueryParam("client_id", c.apiKey).
		SetQueryParam("scope", scope).
		SetResult(&result).
		Get("/authorize")
	if err != nil {
		return nil, transportError(err)
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	if result.Code == "" || result.Pin == "" {
		return nil, &RemoteError{Status: resp.StatusCode(), Message: "authorize response missing pin or code"}
	}

	now := c.clock.Now()
	return &Authorization{
		Code:      result.Code,
		Pin:       result.Pin,
		ExpiresAt: now.Add(time.Duration(result.ExpiresIn) * time.Minute),
		Interval:  time.Duration(result.Interval) * time.Second,
	}, nil
}

func (c *HTTPClient) RequestTokens(ctx context.Context, authorizationToken string) (*Tokens, error) {
	return c.token(ctx, "ecobeePin", authorizationToken)
}

func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	return c.token(ctx, "refresh_token", refreshToken)
}

func (c *HTTPClient) token(ctx context.Context, grantType, code string) (*Tokens, error) {
	var result tokenResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", grantType).
		SetQueryParam("code", code).
		SetQueryParam("client_id", c.apiKey).
		SetResult(&result).
		Post("/token")
	if err != nil {
		return nil, transportError(err)
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		return nil, &RemoteError{Status: resp.StatusCode(), Message: "token response missing tokens"}
	}

	now := c.clock.Now()
	return &Tokens{
		AccessToken:           result.AccessToken,
		AccessTokenExpiresAt:  now.Add(time.Duration(result.ExpiresIn) * time.Second),
		RefreshToken:          result.RefreshToken,
		RefreshTokenExpiresAt: now.Add(refreshTokenLifetime),
	}, nil
}

func (c *HTTPClient) ListRegistered(ctx context.Context, accessToken string) ([]string, error) {
	body, err := c.get(ctx, accessToken, "/1/thermostatSummary", selection{
		SelectionType:          "registered",
		IncludeEquipmentStatus: true,
	})
	if err != nil {
		return nil, err
	}

	// Entries look like "<id>:<comma-joined equipment status>".
	entries := gjson.GetBytes(body, "statusList").Array()
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		id, _, _ := strings.Cut(entry.String(), ":")
		ids = append(ids, id)
	}

	logger.Debug().Strs("thermostats", ids).Msg("Thermostat summary received")

	return ids, nil
}

func (c *HTTPClient) FetchDetail(ctx context.Context, accessToken, id string) (*Thermostat, error) {
	body, err := c.get(ctx, accessToken, "/1/thermostat", selection{
		SelectionType:          "thermostats",
		SelectionMatch:         id,
		IncludeEquipmentStatus: true,
		IncludeRuntime:         true,
		IncludeSensors:         true,
	})
	if err != nil {
		return nil, err
	}

	var result thermostatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &RemoteError{Status: 200, Message: fmt.Sprintf("decode thermostat %s: %v", id, err)}
	}
	if len(result.ThermostatList) == 0 {
		return nil, &RemoteError{Status: 200, Message: fmt.Sprintf("thermostat %s not returned", id)}
	}

	return &result.ThermostatList[0], nil
}

// get issues an authenticated data request and checks both the HTTP status
// and the status block embedded in the body.
func (c *HTTPClient) get(ctx context.Context, accessToken, path string, sel selection) ([]byte, error) {
	query, err := json.Marshal(struct {
		Selection selection `json:"selection"`
	}{Selection: sel})
	if err != nil {
		return nil, &RemoteError{Message: err.Error()}
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParam("format", "json").
		SetQueryParam("json", string(query)).
		Get(path)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}

	body := resp.Body()
	if code := gjson.GetBytes(body, "status.code").Int(); code != 0 {
		return nil, responseError(resp)
	}

	return body, nil
}

var _ Client = (*HTTPClient)(nil)
