package router

import (
	"github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/logger"
)

func shouldRetry(logger *logger.Logger, err error) bool {
	if errors.IsRetryable(err) {
		logger.Debugw("retrying transient error", "error", err)
		return true
	}

	// Business logic errors (don't retry)
	if errors.IsValidation(err) ||
		errors.IsNotFound(err) ||
		errors.IsInvalidOperation(err) ||
		errors.IsConfiguration(err) {
		logger.Debugw("dropping message after permanent error", "error", err)
		return false
	}

	// By default, retry unknown errors
	return true
}
