package repo

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-secrets/internal/credential/entity"
)

// AuditRepo stores which secrets were generated in which bundle. Secret
// values never reach the database, only their fingerprints.
type AuditRepo struct {
	db *sqlx.DB
}

func NewAuditRepo(db *sqlx.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// EnsureTable creates the audit table if it does not already exist.
func (r *AuditRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS secret_bundle_audit (
		id BIGINT PRIMARY KEY,
		bundle_id varchar(27) NOT NULL,
		name varchar(64) NOT NULL,
		fingerprint varchar(32) NOT NULL,
		length INT NOT NULL,
		generated_at TIMESTAMPTZ NOT NULL
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	const idx = `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_secret_bundle_audit_bundle_name ON secret_bundle_audit (bundle_id, name);
	`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return err
	}
	return nil
}

// Save inserts all rows of one bundle in a single transaction.
func (r *AuditRepo) Save(ctx context.Context, rows []entity.AuditRow) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	const q = `INSERT INTO secret_bundle_audit (id, bundle_id, name, fingerprint, length, generated_at)
		VALUES (:id, :bundle_id, :name, :fingerprint, :length, :generated_at)`
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, q, row); err != nil {
			return fmt.Errorf("insert audit row %s: %w", row.Name, err)
		}
	}
	return tx.Commit()
}

// ListByBundle returns the audit rows of a bundle in insertion order.
func (r *AuditRepo) ListByBundle(ctx context.Context, bundleID string) ([]entity.AuditRow, error) {
	const q = `SELECT id, bundle_id, name, fingerprint, length, generated_at
		FROM secret_bundle_audit WHERE bundle_id=$1 ORDER BY id`
	var rows []entity.AuditRow
	if err := r.db.SelectContext(ctx, &rows, q, bundleID); err != nil {
		return nil, err
	}
	return rows, nil
}
