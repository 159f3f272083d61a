package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/usageline/usageline/internal/domain/tenant"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/postgres"
	"github.com/usageline/usageline/internal/types"
)

type tenantRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewTenantRepository(db *postgres.DB, logger *logger.Logger) tenant.Repository {
	return &tenantRepository{db: db, logger: logger}
}

const tenantColumns = `
	id, name, api_key, status, rate_limit_per_minute,
	monthly_event_quota, billing_email, settings, created_at, updated_at`

func (r *tenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	query := `
	INSERT INTO tenants (` + tenantColumns + `
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
	)
	`

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		t.ID,
		t.Name,
		t.APIKey,
		t.Status,
		t.RateLimitPerMinute,
		t.MonthlyEventQuota,
		t.BillingEmail,
		t.Settings,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (r *tenantRepository) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`

	t, err := scanTenant(r.db.GetQuerier(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("tenant not found").
			WithHint("Tenant not found").
			WithReportableDetails(map[string]any{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

func (r *tenantRepository) GetByAPIKey(ctx context.Context, apiKey string) (*tenant.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE api_key = $1 AND status = $2`

	t, err := scanTenant(r.db.GetQuerier(ctx).QueryRowContext(ctx, query, apiKey, types.StatusActive))
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("unknown api key").
			WithHint("Invalid API key").
			Mark(ierr.ErrInvalidAPIKey)
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by api key: %w", err)
	}
	return t, nil
}

func (r *tenantRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE status = $1 ORDER BY created_at`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, types.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (r *tenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	query := `
	UPDATE tenants SET
		name = $2,
		status = $3,
		rate_limit_per_minute = $4,
		monthly_event_quota = $5,
		billing_email = $6,
		settings = $7,
		updated_at = $8
	WHERE id = $1
	`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		t.ID,
		t.Name,
		t.Status,
		t.RateLimitPerMinute,
		t.MonthlyEventQuota,
		t.BillingEmail,
		t.Settings,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ierr.NewError("tenant not found").
			WithHint("Tenant not found").
			WithReportableDetails(map[string]any{"id": t.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func scanTenant(row rowScanner) (*tenant.Tenant, error) {
	var t tenant.Tenant
	var billingEmail sql.NullString

	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.APIKey,
		&t.Status,
		&t.RateLimitPerMinute,
		&t.MonthlyEventQuota,
		&billingEmail,
		&t.Settings,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.BillingEmail = billingEmail.String
	return &t, nil
}
