package credentials

import (
	"codeberg.org/mutker/ecobee-exporter/internal/errors"
	"codeberg.org/mutker/ecobee-exporter/internal/logger"
)

// NewStore builds the store selected by cfg.Backend.
func NewStore(cfg Config, log logger.Logger) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New().Wrap(ErrInvalidConfig, err)
	}

	log.Debug().
		Str("backend", cfg.Backend).
		Str("path", cfg.Path).
		Msg("Opening credentials store")

	if cfg.Backend == BackendFile {
		return NewFileStore(cfg.Path, log)
	}

	return NewSQLiteStore(cfg.Path, log)
}
