package credentials

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/errors"
	"codeberg.org/mutker/ecobee-exporter/internal/logger"
	"github.com/mattn/go-sqlite3"
)

type sqliteStore struct {
	db     *sql.DB
	path   string
	logger logger.Logger
	mu     sync.Mutex
}

// NewSQLiteStore opens (creating if needed) the sqlite credentials database at path.
func NewSQLiteStore(path string, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, errFactory.New(ErrInvalidPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  path,
			Error: err.Error(),
		})
	}

	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}

	if err := checkDatabase(db); err != nil {
		db.Close()
		if !isCorrupt(err) {
			return nil, errFactory.WithData(ErrStorageInit, struct {
				Phase string
				Error string
			}{
				Phase: "check_database",
				Error: err.Error(),
			})
		}

		moved, qerr := quarantineDatabase(path, log)
		if qerr != nil {
			return nil, qerr
		}
		log.Warn().
			Err(err).
			Str("path", path).
			Str("moved_to", moved).
			Msg("Credentials file is not a usable database, starting with an empty store")

		if db, err = openDatabase(path); err != nil {
			return nil, err
		}
	}

	if err := ValidateAndUpdateSchema(db, path, log); err != nil {
		db.Close()
		return nil, err
	}

	// Tokens are secrets.
	if err := os.Chmod(path, defaultFilePerm); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to restrict credentials file permissions")
	}

	log.Info().
		Str("path", path).
		Int("schema_version", SchemaVersion).
		Msg("Credentials store initialized")

	return &sqliteStore{
		db:     db,
		path:   path,
		logger: log,
	}, nil
}

func (s *sqliteStore) Load(ctx context.Context, device string) (*TokenBundle, error) {
	errFactory := errors.New()

	if device == "" {
		return nil, errFactory.New(ErrInvalidDevice)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		bundle         TokenBundle
		accessExpires  sql.NullInt64
		refreshExpires sql.NullInt64
		updatedAt      int64
	)

	err := s.db.QueryRowContext(ctx, selectCredentialsSQL, device).Scan(
		&bundle.AuthorizationToken,
		&bundle.AccessToken,
		&accessExpires,
		&bundle.RefreshToken,
		&refreshExpires,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errFactory.WithData(ErrRecordNotFound, device)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("device", device).Msg("Unreadable credentials record, starting fresh")
		return nil, errFactory.Wrap(ErrRecordNotFound, err)
	}

	bundle.AccessTokenExpiresAt = fromNullUnixNano(accessExpires)
	bundle.RefreshTokenExpiresAt = fromNullUnixNano(refreshExpires)
	bundle.UpdatedAt = time.Unix(0, updatedAt).UTC()

	return &bundle, nil
}

func (s *sqliteStore) Save(ctx context.Context, device string, bundle *TokenBundle) error {
	errFactory := errors.New()

	if device == "" {
		return errFactory.New(ErrInvalidDevice)
	}
	if bundle == nil {
		return errFactory.WithMessage(ErrStorageWrite, "nil token bundle")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bundle.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, upsertCredentialsSQL,
		device,
		bundle.AuthorizationToken,
		bundle.AccessToken,
		toNullUnixNano(bundle.AccessTokenExpiresAt),
		bundle.RefreshToken,
		toNullUnixNano(bundle.RefreshTokenExpiresAt),
		bundle.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return errFactory.WithData(ErrStorageWrite, struct {
			Device string
			Error  string
		}{
			Device: device,
			Error:  err.Error(),
		})
	}

	s.logger.Debug().Str("device", device).Msg("Credentials saved")

	return nil
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to checkpoint credentials WAL")
	}

	if err := s.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	s.logger.Debug().Msg("Credentials store closed")

	return nil
}

func openDatabase(path string) (*sql.DB, error) {
	dsn := path + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.New().WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}
	db.SetMaxOpenConns(1)

	return db, nil
}

// checkDatabase forces sqlite to read the file header.
func checkDatabase(db *sql.DB) error {
	var n int
	return db.QueryRow("SELECT count(*) FROM sqlite_master").Scan(&n)
}

func isCorrupt(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrNotADB || sqliteErr.Code == sqlite3.ErrCorrupt
	}

	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}

func toNullUnixNano(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullUnixNano(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
