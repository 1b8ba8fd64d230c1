package postgres

import (
	"context"
	"time"

	"github.com/flexprice/invoicerecon/internal/domain/catalog"
	ierr "github.com/flexprice/invoicerecon/internal/errors"
	"github.com/flexprice/invoicerecon/internal/logger"
	"github.com/flexprice/invoicerecon/internal/postgres"
	"github.com/flexprice/invoicerecon/internal/types"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type catalogRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCatalogRepository(db *postgres.DB, logger *logger.Logger) catalog.Repository {
	return &catalogRepository{db: db, logger: logger}
}

// snapshotRow is the storage shape of a snapshot, plans live in a jsonb column
type snapshotRow struct {
	ID            string    `db:"id"`
	TenantID      string    `db:"tenant_id"`
	Version       int       `db:"version"`
	EffectiveDate time.Time `db:"effective_date"`
	Plans         []byte    `db:"plans"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r snapshotRow) toDomain() (*catalog.Snapshot, error) {
	var plans []*catalog.Plan
	if err := json.Unmarshal(r.Plans, &plans); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Stored catalog snapshot could not be decoded").
			WithReportableDetails(map[string]any{"snapshot_id": r.ID}).
			Mark(ierr.ErrDatabase)
	}
	return &catalog.Snapshot{
		ID:            r.ID,
		TenantID:      r.TenantID,
		Version:       r.Version,
		EffectiveDate: types.StartOfDay(r.EffectiveDate),
		Plans:         plans,
		CreatedAt:     r.CreatedAt.UTC(),
	}, nil
}

func (r *catalogRepository) Append(ctx context.Context, snapshot *catalog.Snapshot) error {
	span := postgres.StartRepositorySpan(ctx, "catalog", "append", map[string]interface{}{
		"tenant_id": snapshot.TenantID,
	})
	defer postgres.FinishSpan(span)

	plans, err := json.Marshal(snapshot.Plans)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Catalog plans could not be encoded").
			Mark(ierr.ErrValidation)
	}
	if snapshot.ID == "" {
		snapshot.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SNAPSHOT)
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}

	err = r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.GetQuerier(ctx)

		// version assignment is serialised per tenant for the rest of the transaction
		if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, snapshot.TenantID); err != nil {
			return postgres.WrapError(err, "catalog snapshot", nil)
		}

		var version int
		if err := q.GetContext(ctx, &version,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM catalog_snapshots WHERE tenant_id = $1`,
			snapshot.TenantID,
		); err != nil {
			return postgres.WrapError(err, "catalog snapshot", nil)
		}

		_, err := q.ExecContext(ctx, `
			INSERT INTO catalog_snapshots (id, tenant_id, version, effective_date, plans, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			snapshot.ID, snapshot.TenantID, version, snapshot.EffectiveDate, plans, snapshot.CreatedAt,
		)
		if err != nil {
			return postgres.WrapError(err, "catalog snapshot", map[string]any{"snapshot_id": snapshot.ID})
		}
		snapshot.Version = version
		return nil
	})
	if err != nil {
		postgres.SetSpanError(span, err)
		return err
	}

	r.logger.Debugw("appended catalog snapshot",
		"tenant_id", snapshot.TenantID,
		"snapshot_id", snapshot.ID,
		"version", snapshot.Version,
	)
	postgres.SetSpanSuccess(span)
	return nil
}

func (r *catalogRepository) List(ctx context.Context, tenantID string) ([]*catalog.Snapshot, error) {
	span := postgres.StartRepositorySpan(ctx, "catalog", "list", map[string]interface{}{
		"tenant_id": tenantID,
	})
	defer postgres.FinishSpan(span)

	var rows []snapshotRow
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, `
		SELECT id, tenant_id, version, effective_date, plans, created_at
		FROM catalog_snapshots
		WHERE tenant_id = $1
		ORDER BY version`, tenantID,
	); err != nil {
		postgres.SetSpanError(span, err)
		return nil, postgres.WrapError(err, "catalog snapshot", map[string]any{"tenant_id": tenantID})
	}

	snapshots := make([]*catalog.Snapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := row.toDomain()
		if err != nil {
			postgres.SetSpanError(span, err)
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	postgres.SetSpanSuccess(span)
	return snapshots, nil
}

func (r *catalogRepository) Get(ctx context.Context, tenantID, id string) (*catalog.Snapshot, error) {
	var row snapshotRow
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &row, `
		SELECT id, tenant_id, version, effective_date, plans, created_at
		FROM catalog_snapshots
		WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	); err != nil {
		return nil, postgres.WrapError(err, "catalog snapshot", map[string]any{"id": id})
	}
	return row.toDomain()
}

func (r *catalogRepository) LatestVersion(ctx context.Context, tenantID string) (int, error) {
	var version int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &version,
		`SELECT COALESCE(MAX(version), 0) FROM catalog_snapshots WHERE tenant_id = $1`, tenantID,
	); err != nil {
		return 0, postgres.WrapError(err, "catalog snapshot", map[string]any{"tenant_id": tenantID})
	}
	return version, nil
}

func (r *catalogRepository) Block(ctx context.Context, block *catalog.Block) error {
	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, `
		INSERT INTO catalog_blocks (tenant_id, reason, blocked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO NOTHING`,
		block.TenantID, block.Reason, block.BlockedAt,
	)
	return postgres.WrapError(err, "catalog block", map[string]any{"tenant_id": block.TenantID})
}

func (r *catalogRepository) GetBlock(ctx context.Context, tenantID string) (*catalog.Block, error) {
	var block catalog.Block
	err := r.db.GetQuerier(ctx).QueryRowxContext(ctx,
		`SELECT tenant_id, reason, blocked_at FROM catalog_blocks WHERE tenant_id = $1`, tenantID,
	).Scan(&block.TenantID, &block.Reason, &block.BlockedAt)
	if err != nil {
		err = postgres.WrapError(err, "catalog block", map[string]any{"tenant_id": tenantID})
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	block.BlockedAt = block.BlockedAt.UTC()
	return &block, nil
}
