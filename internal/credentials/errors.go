package credentials

import "codeberg.org/mutker/ecobee-exporter/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig  = errors.ErrInvalidConfig
	ErrInvalidPath    = errors.ErrorCode("credentials_invalid_path")
	ErrInvalidBackend = errors.ErrorCode("credentials_invalid_backend")
	ErrInvalidDevice  = errors.ErrorCode("credentials_invalid_device")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("credentials_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("credentials_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("credentials_schema_migration_failed")

	// Storage Errors
	ErrRecordNotFound = errors.ErrorCode("credentials_not_found")
	ErrStorageInit    = errors.ErrorCode("credentials_storage_init_failed")
	ErrStorageWrite   = errors.ErrorCode("credentials_storage_write_failed")
	ErrStorageClose   = errors.ErrorCode("credentials_storage_close_failed")
)

// ErrNotFound is returned by Load when the device has no usable record.
// Match it with errors.Is.
var ErrNotFound = errors.New().New(ErrRecordNotFound)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidPath:            "Credentials store path is required",
		ErrInvalidBackend:         "Unknown credentials store backend",
		ErrInvalidDevice:          "Invalid credentials device name",
		ErrSchemaInitFailed:       "Failed to initialize credentials schema",
		ErrSchemaValidationFailed: "Failed to validate credentials schema",
		ErrSchemaMigrationFailed:  "Failed to migrate credentials schema",
		ErrRecordNotFound:         "No stored credentials",
		ErrStorageInit:            "Failed to open credentials store",
		ErrStorageWrite:           "Failed to save credentials",
		ErrStorageClose:           "Failed to close credentials store",
	})
}
