package credentials

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/errors"
	"codeberg.org/mutker/ecobee-exporter/internal/logger"
	"github.com/peterbourgon/diskv/v3"
)

const (
	cacheSizeMaxBytes = 4096
	tempDirName       = ".tmp"
)

// fileStore keeps one JSON document per device in a flat directory.
// NB: no file locking.
type fileStore struct {
	dv     *diskv.Diskv
	logger logger.Logger
}

// NewFileStore opens a directory-backed credentials store rooted at dir.
func NewFileStore(dir string, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if dir == "" {
		return nil, errFactory.New(ErrInvalidPath)
	}

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  dir,
			Error: err.Error(),
		})
	}

	// Flat transform: every device file lives directly in dir.
	flatTransform := func(string) []string { return []string{} }

	dv := diskv.New(diskv.Options{
		BasePath:     dir,
		TempDir:      filepath.Join(dir, tempDirName),
		Transform:    flatTransform,
		CacheSizeMax: cacheSizeMaxBytes,
		FilePerm:     defaultFilePerm,
		PathPerm:     defaultDirPerm,
	})

	log.Info().Str("path", dir).Msg("Credentials file store initialized")

	return &fileStore{dv: dv, logger: log}, nil
}

func (f *fileStore) Load(_ context.Context, device string) (*TokenBundle, error) {
	errFactory := errors.New()

	if err := validateDeviceKey(device); err != nil {
		return nil, err
	}

	if !f.dv.Has(device) {
		return nil, errFactory.WithData(ErrRecordNotFound, device)
	}

	payload, err := f.dv.Read(device)
	if err != nil {
		f.logger.Warn().Err(err).Str("device", device).Msg("Unreadable credentials file, starting fresh")
		return nil, errFactory.Wrap(ErrRecordNotFound, err)
	}

	var bundle TokenBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		f.logger.Warn().Err(err).Str("device", device).Msg("Corrupt credentials file, starting fresh")
		return nil, errFactory.Wrap(ErrRecordNotFound, err)
	}

	return &bundle, nil
}

func (f *fileStore) Save(_ context.Context, device string, bundle *TokenBundle) error {
	errFactory := errors.New()

	if err := validateDeviceKey(device); err != nil {
		return err
	}
	if bundle == nil {
		return errFactory.WithMessage(ErrStorageWrite, "nil token bundle")
	}

	bundle.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(bundle)
	if err != nil {
		return errFactory.Wrap(ErrStorageWrite, err)
	}

	if err := f.dv.Write(device, payload); err != nil {
		return errFactory.WithData(ErrStorageWrite, struct {
			Device string
			Error  string
		}{
			Device: device,
			Error:  err.Error(),
		})
	}

	f.logger.Debug().Str("device", device).Msg("Credentials saved")

	return nil
}

func (*fileStore) Close() error {
	return nil
}

func validateDeviceKey(device string) error {
	if device == "" || strings.ContainsAny(device, `/\`) || strings.HasPrefix(device, ".") {
		return errors.New().WithData(ErrInvalidDevice, device)
	}
	return nil
}
