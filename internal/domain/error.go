package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReferenceMissing   = errors.New("referenced entity no longer exists")

	// Provider errors
	ErrProviderNotConfigured = errors.New("payment provider credentials are missing")
	ErrProviderUnavailable   = errors.New("payment provider unavailable")

	// Run coordination
	ErrRunInProgress   = errors.New("reconciliation already running for this trigger")
	ErrLockNotAcquired = errors.New("lock not acquired")

	// Catalog
	ErrProductRequired = errors.New("exactly one of course or bundle is required")
)
