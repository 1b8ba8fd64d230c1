package catalog

import (
	"context"
)

// Repository stores catalog snapshots. Snapshots are append only.
type Repository interface {
	// Append stores a new snapshot assigning it the next version for its tenant
	Append(ctx context.Context, snapshot *Snapshot) error
	// List returns all snapshots of a tenant ordered by version
	List(ctx context.Context, tenantID string) ([]*Snapshot, error)
	Get(ctx context.Context, tenantID, id string) (*Snapshot, error)
	// LatestVersion returns the highest version appended for the tenant, 0 when none
	LatestVersion(ctx context.Context, tenantID string) (int, error)
	// Block marks the tenant catalog as blocked, the first reason wins
	Block(ctx context.Context, block *Block) error
	// GetBlock returns nil when the tenant catalog is usable
	GetBlock(ctx context.Context, tenantID string) (*Block, error)
}
