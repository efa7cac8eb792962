package auth

import (
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/errors"
)

const (
	DefaultDevice = "thermostat"

	// DefaultApprovalWait is how long a scrape blocks after requesting a
	// pin, giving the user time to approve the exporter in the portal.
	DefaultApprovalWait = 60 * time.Second
)

type Config struct {
	Device       string
	ApprovalWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		Device:       DefaultDevice,
		ApprovalWait: DefaultApprovalWait,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Device == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "auth device name is required")
	}
	if c.ApprovalWait < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value time.Duration
		}{
			Field: "approval_wait",
			Value: c.ApprovalWait,
		})
	}
	return nil
}
