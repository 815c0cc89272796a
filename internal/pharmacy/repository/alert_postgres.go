package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lifetag/lifetag-backend/pkg/database"
	"github.com/lifetag/lifetag-backend/pkg/errors"
)

// PostgresAlertRepository persists alerts in PostgreSQL. The unresolved
// uniqueness rule is enforced by the engine's check-then-insert under its
// lock; a partial unique index on (lower(product_name), lower(batch),
// alert_type) WHERE NOT resolved backs it at the storage level.
type PostgresAlertRepository struct {
	db *database.DB
}

// NewPostgresAlertRepository creates a Postgres-backed alert repository.
func NewPostgresAlertRepository(db *database.DB) *PostgresAlertRepository {
	return &PostgresAlertRepository{db: db}
}

// List loads every alert row.
func (r *PostgresAlertRepository) List(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	query := `SELECT * FROM alerts ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &alerts, query); err != nil {
		return nil, err
	}
	return alerts, nil
}

// ListActive returns unresolved alerts only.
func (r *PostgresAlertRepository) ListActive(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	query := `SELECT * FROM alerts WHERE resolved = false ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &alerts, query); err != nil {
		return nil, err
	}
	return alerts, nil
}

// GetByID returns one alert by id.
func (r *PostgresAlertRepository) GetByID(ctx context.Context, alertID string) (*Alert, error) {
	var alert Alert
	query := `SELECT * FROM alerts WHERE alert_id = $1`
	if err := r.db.GetContext(ctx, &alert, query, alertID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("alert")
		}
		return nil, err
	}
	return &alert, nil
}

// Create inserts a new alert row, assigning an id if absent.
func (r *PostgresAlertRepository) Create(ctx context.Context, alert *Alert) error {
	if alert.AlertID == "" {
		alert.AlertID = uuid.New().String()
	}

	query := `
		INSERT INTO alerts (
			alert_id, product_name, batch, exp, days_to_expiry, alert_type,
			created_at, last_sent_at, resolved, resolved_by, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		alert.AlertID, alert.ProductName, alert.Batch, alert.Exp,
		alert.DaysToExpiry, alert.AlertType, alert.CreatedAt,
		alert.LastSentAt, alert.Resolved, alert.ResolvedBy, alert.ResolvedAt,
	)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// ExistsUnresolved reports whether an unresolved alert exists for the key.
func (r *PostgresAlertRepository) ExistsUnresolved(ctx context.Context, productName, batch, alertType string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE lower(trim(product_name)) = lower(trim($1))
			  AND lower(trim(batch)) = lower(trim($2))
			  AND alert_type = $3
			  AND resolved = false
		)
	`
	if err := r.db.GetContext(ctx, &exists, query, productName, batch, alertType); err != nil {
		return false, err
	}
	return exists, nil
}

// Resolve marks the alert resolved; the WHERE clause keeps it monotonic.
func (r *PostgresAlertRepository) Resolve(ctx context.Context, alertID, actor string, at time.Time) (bool, error) {
	query := `
		UPDATE alerts
		SET resolved = true, resolved_by = $2, resolved_at = $3
		WHERE alert_id = $1 AND resolved = false
	`
	result, err := r.db.ExecContext(ctx, query, alertID, actor, at)
	if err != nil {
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ResolveByMatch resolves every unresolved alert for the product/batch key.
func (r *PostgresAlertRepository) ResolveByMatch(ctx context.Context, productName, batch, actor string, at time.Time) (int, error) {
	query := `
		UPDATE alerts
		SET resolved = true, resolved_by = $3, resolved_at = $4
		WHERE (trim($1) = '' OR lower(trim(product_name)) = lower(trim($1)))
		  AND (trim($2) = '' OR lower(trim(batch)) = lower(trim($2)))
		  AND resolved = false
	`
	result, err := r.db.ExecContext(ctx, query, productName, batch, actor, at)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// TouchLastSent stamps the alert's last_sent_at.
func (r *PostgresAlertRepository) TouchLastSent(ctx context.Context, alertID string, at time.Time) error {
	query := `UPDATE alerts SET last_sent_at = $2 WHERE alert_id = $1`
	result, err := r.db.ExecContext(ctx, query, alertID, at)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}
	return nil
}
