package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrForbidden           = errors.New("operation not permitted for this user")
	ErrNoPlanForCategory   = errors.New("no plan template configured for category")
	ErrQuotaExhausted      = errors.New("listing quota exhausted")
	ErrFeatureUnavailable  = errors.New("feature not available on current plan")
	ErrListingNotActive    = errors.New("listing is not active")
	ErrConcurrencyConflict = errors.New("concurrent quota update conflict")

	// Infra-level errors surfaced by repositories
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction execution context")
)
