package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/domain/registry"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/postgres"
	"github.com/usageline/usageline/internal/types"
)

type registryRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewRegistryRepository(db *postgres.DB, logger *logger.Logger) registry.Repository {
	return &registryRepository{db: db, logger: logger}
}

const registryColumns = `
	id, service_type, providers, required_fields, optional_fields,
	billing_config, aggregation_rules, validation_schema,
	is_active, version, created_at, updated_at`

func (r *registryRepository) GetByServiceType(ctx context.Context, serviceType types.ServiceType) (*registry.ServiceRegistry, error) {
	query := `
	SELECT ` + registryColumns + `
	FROM service_registry
	WHERE service_type = $1 AND is_active = TRUE
	`

	entry, err := scanRegistry(r.db.GetQuerier(ctx).QueryRowContext(ctx, query, serviceType))
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("service registry entry not found").
			WithHint("Unknown service type").
			WithReportableDetails(map[string]any{"service_type": serviceType}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get registry entry: %w", err)
	}
	return entry, nil
}

func (r *registryRepository) List(ctx context.Context) ([]*registry.ServiceRegistry, error) {
	query := `SELECT ` + registryColumns + ` FROM service_registry ORDER BY service_type`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query registry: %w", err)
	}
	defer rows.Close()

	var entries []*registry.ServiceRegistry
	for rows.Next() {
		entry, err := scanRegistry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registry entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *registryRepository) Upsert(ctx context.Context, entry *registry.ServiceRegistry) error {
	query := `
	INSERT INTO service_registry (` + registryColumns + `
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
	)
	ON CONFLICT (service_type) DO UPDATE SET
		providers = EXCLUDED.providers,
		required_fields = EXCLUDED.required_fields,
		optional_fields = EXCLUDED.optional_fields,
		billing_config = EXCLUDED.billing_config,
		aggregation_rules = EXCLUDED.aggregation_rules,
		validation_schema = EXCLUDED.validation_schema,
		is_active = EXCLUDED.is_active,
		version = service_registry.version + 1,
		updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.ServiceType,
		entry.Providers,
		entry.RequiredFields,
		entry.OptionalFields,
		entry.BillingConfig,
		entry.AggregationRules,
		entry.ValidationSchema,
		entry.IsActive,
		entry.Version,
		entry.CreatedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert registry entry: %w", err)
	}
	return nil
}

func scanRegistry(row rowScanner) (*registry.ServiceRegistry, error) {
	var entry registry.ServiceRegistry
	err := row.Scan(
		&entry.ID,
		&entry.ServiceType,
		&entry.Providers,
		&entry.RequiredFields,
		&entry.OptionalFields,
		&entry.BillingConfig,
		&entry.AggregationRules,
		&entry.ValidationSchema,
		&entry.IsActive,
		&entry.Version,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
