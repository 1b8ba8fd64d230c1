package types

import (
	"context"

	"github.com/samber/lo"
)

// ContextKey is a type for the keys of values stored in the context
type ContextKey string

const (
	CtxTenantID      ContextKey = "ctx_tenant_id"
	CtxDBTransaction ContextKey = "ctx_db_transaction"

	// DefaultTenantID owns catalogs and subscriptions created without a tenant
	DefaultTenantID = "00000000-0000-0000-0000-000000000000"
)

func GetTenantID(ctx context.Context) string {
	tenantID, _ := ctx.Value(CtxTenantID).(string)
	return tenantID
}

// SetTenantID sets the tenant ID in the context
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, CtxTenantID, tenantID)
}

// ResolveTenantID picks the explicit tenant, then the one carried by ctx,
// then the default tenant
func ResolveTenantID(ctx context.Context, explicit string) string {
	return lo.CoalesceOrEmpty(explicit, GetTenantID(ctx), DefaultTenantID)
}
