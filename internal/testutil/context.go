package testutil

import (
	"context"

	"github.com/flexprice/invoicerecon/internal/types"
)

// SetupContext returns a context scoped to the default tenant
func SetupContext() context.Context {
	return types.SetTenantID(context.Background(), types.DefaultTenantID)
}
