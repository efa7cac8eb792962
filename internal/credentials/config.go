package credentials

import "codeberg.org/mutker/ecobee-exporter/internal/errors"

const (
	// File system permissions and paths
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o600

	// DefaultPath is relative to the working directory.
	DefaultPath = "pyecobee_db"

	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

type Config struct {
	Backend string
	Path    string
}

func DefaultConfig() Config {
	return Config{
		Backend: BackendSQLite,
		Path:    DefaultPath,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Path == "" {
		return errFactory.New(ErrInvalidPath)
	}

	switch c.Backend {
	case BackendSQLite, BackendFile:
		return nil
	default:
		return errFactory.WithData(ErrInvalidBackend, c.Backend)
	}
}
