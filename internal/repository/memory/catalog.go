package memory

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/types"
)

// CatalogStore implements catalog.Repository
type CatalogStore struct {
	snapshots *Store[*catalog.Snapshot]
	blocks    *Store[*catalog.Block]
	// appendMu serialises version assignment per store
	appendMu sync.Mutex
	versions map[string]int
}

func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		snapshots: NewStore[*catalog.Snapshot]("catalog snapshot"),
		blocks:    NewStore[*catalog.Block]("catalog block"),
		versions:  make(map[string]int),
	}
}

func (s *CatalogStore) Append(ctx context.Context, snapshot *catalog.Snapshot) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if snapshot.ID == "" {
		snapshot.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SNAPSHOT)
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	snapshot.Version = s.versions[snapshot.TenantID] + 1

	if err := s.snapshots.Create(ctx, snapshot.ID, snapshot); err != nil {
		return err
	}
	s.versions[snapshot.TenantID] = snapshot.Version
	return nil
}

func (s *CatalogStore) List(ctx context.Context, tenantID string) ([]*catalog.Snapshot, error) {
	return s.snapshots.List(ctx,
		func(_ context.Context, snap *catalog.Snapshot) bool { return snap.TenantID == tenantID },
		func(a, b *catalog.Snapshot) bool { return a.Version < b.Version },
	), nil
}

func (s *CatalogStore) Get(ctx context.Context, tenantID, id string) (*catalog.Snapshot, error) {
	snap, err := s.snapshots.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.TenantID != tenantID {
		return nil, ierr.NewError("catalog snapshot not found").
			WithHint("No catalog snapshot exists with this id").
			WithReportableDetails(map[string]any{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	return snap, nil
}

func (s *CatalogStore) LatestVersion(_ context.Context, tenantID string) (int, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	return s.versions[tenantID], nil
}

func (s *CatalogStore) Block(ctx context.Context, block *catalog.Block) error {
	err := s.blocks.Create(ctx, block.TenantID, block)
	if ierr.IsAlreadyExists(err) {
		// first reason wins
		return nil
	}
	return err
}

func (s *CatalogStore) GetBlock(ctx context.Context, tenantID string) (*catalog.Block, error) {
	block, err := s.blocks.Get(ctx, tenantID)
	if ierr.IsNotFound(err) {
		return nil, nil
	}
	return block, err
}

// Clear drops every snapshot and block
func (s *CatalogStore) Clear() {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	s.snapshots.Clear()
	s.blocks.Clear()
	s.versions = make(map[string]int)
}
