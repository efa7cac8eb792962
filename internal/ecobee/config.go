package ecobee

import (
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/errors"
)

const (
	DefaultBaseURL = "https://api.ecobee.com"
	DefaultTimeout = 30 * time.Second

	// PortalURL is where the user enters the pin to approve the exporter.
	PortalURL = "https://www.ecobee.com/consumer/portal/index.html"

	ErrMissingAPIKey = errors.ErrorCode("ecobee_missing_api_key")
	ErrInvalidURL    = errors.ErrorCode("ecobee_invalid_base_url")
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.APIKey == "" {
		return errFactory.New(ErrMissingAPIKey)
	}
	if c.BaseURL == "" {
		return errFactory.New(ErrInvalidURL)
	}
	if c.Timeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value time.Duration
		}{
			Field: "timeout",
			Value: c.Timeout,
		})
	}
	return nil
}

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrMissingAPIKey: "Ecobee API key is required",
		ErrInvalidURL:    "Ecobee API base URL is required",
	})
}
