package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = new(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict  = new(ErrCodeVersionConflict, "version conflict")
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrDatabase         = new(ErrCodeDatabase, "database error")
	ErrSystem           = new(ErrCodeSystemError, "system error")

	// Catalog and timeline input/config errors. These are raised before any
	// catalog or timeline mutation happens.
	ErrNoCatalog        = new(ErrCodeNoCatalog, "no catalog snapshot effective at date")
	ErrUnknownPlan      = new(ErrCodeUnknownPlan, "plan not found in catalog snapshot")
	ErrDuplicatePlan    = new(ErrCodeDuplicatePlan, "plan redefined incompatibly")
	ErrPlanResolution   = new(ErrCodePlanResolution, "plan cannot be resolved at effective date")
	ErrCatalogBlocked   = new(ErrCodeCatalogBlocked, "tenant catalog is blocked")
	ErrCatalogCorrupted = new(ErrCodeCatalogCorrupted, "tenant catalog is inconsistent")

	// ErrReconciliationConflict is returned when a reconciliation for the same
	// subscription is already in flight. Callers retry once it completes.
	ErrReconciliationConflict = new(ErrCodeReconciliationConflict, "reconciliation already in progress")

	// retryable lists the sentinels a caller may retry in full
	retryable = []error{
		ErrReconciliationConflict,
		ErrVersionConflict,
		ErrDatabase,
	}
)

const (
	ErrCodeSystemError            = "system_error"
	ErrCodeNotFound               = "not_found"
	ErrCodeAlreadyExists          = "already_exists"
	ErrCodeVersionConflict        = "version_conflict"
	ErrCodeValidation             = "validation_error"
	ErrCodeInvalidOperation       = "invalid_operation"
	ErrCodeDatabase               = "database_error"
	ErrCodeNoCatalog              = "no_catalog"
	ErrCodeUnknownPlan            = "unknown_plan"
	ErrCodeDuplicatePlan          = "duplicate_plan"
	ErrCodePlanResolution         = "plan_resolution_error"
	ErrCodeCatalogBlocked         = "catalog_blocked"
	ErrCodeCatalogCorrupted       = "catalog_corrupted"
	ErrCodeReconciliationConflict = "reconciliation_conflict"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsVersionConflict checks if an error is a version conflict error
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

func IsNoCatalog(err error) bool {
	return errors.Is(err, ErrNoCatalog)
}

func IsUnknownPlan(err error) bool {
	return errors.Is(err, ErrUnknownPlan)
}

func IsDuplicatePlan(err error) bool {
	return errors.Is(err, ErrDuplicatePlan)
}

func IsPlanResolution(err error) bool {
	return errors.Is(err, ErrPlanResolution)
}

func IsCatalogBlocked(err error) bool {
	return errors.Is(err, ErrCatalogBlocked)
}

func IsCatalogCorrupted(err error) bool {
	return errors.Is(err, ErrCatalogCorrupted)
}

func IsReconciliationConflict(err error) bool {
	return errors.Is(err, ErrReconciliationConflict)
}

// IsRetryable reports whether the operation that produced err can be rerun
// from scratch. Reconciliation is a pure recomputation so a full rerun is
// always safe for these.
func IsRetryable(err error) bool {
	for _, ref := range retryable {
		if errors.Is(err, ref) {
			return true
		}
	}
	return false
}

// IsConfiguration reports input or catalog configuration errors that reject
// the triggering operation.
func IsConfiguration(err error) bool {
	return IsNoCatalog(err) ||
		IsUnknownPlan(err) ||
		IsDuplicatePlan(err) ||
		IsPlanResolution(err) ||
		IsCatalogBlocked(err) ||
		IsCatalogCorrupted(err)
}
