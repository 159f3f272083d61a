package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/usageline/usageline/internal/domain/alerts"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/postgres"
)

type alertRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAlertRepository(db *postgres.DB, logger *logger.Logger) alerts.Repository {
	return &alertRepository{db: db, logger: logger}
}

const alertConfigColumns = `
	id, tenant_id, name, alert_type, threshold_value, period,
	notification_channels, is_active, created_at, updated_at`

const alertInstanceColumns = `
	id, tenant_id, configuration_id, triggered_at, observed_value,
	status, acknowledged_at, acknowledged_by, created_at, updated_at`

func (r *alertRepository) CreateConfiguration(ctx context.Context, cfg *alerts.AlertConfiguration) error {
	query := `
	INSERT INTO alert_configurations (` + alertConfigColumns + `
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
	)
	`

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		cfg.ID,
		cfg.TenantID,
		cfg.Name,
		cfg.AlertType,
		cfg.ThresholdValue,
		cfg.Period,
		cfg.NotificationChannels,
		cfg.IsActive,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert configuration: %w", err)
	}
	return nil
}

func (r *alertRepository) UpdateConfiguration(ctx context.Context, cfg *alerts.AlertConfiguration) error {
	query := `
	UPDATE alert_configurations SET
		name = $3,
		alert_type = $4,
		threshold_value = $5,
		period = $6,
		notification_channels = $7,
		is_active = $8,
		updated_at = $9
	WHERE id = $1 AND tenant_id = $2
	`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		cfg.ID,
		cfg.TenantID,
		cfg.Name,
		cfg.AlertType,
		cfg.ThresholdValue,
		cfg.Period,
		cfg.NotificationChannels,
		cfg.IsActive,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update alert configuration: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return alertConfigNotFound(cfg.ID)
	}
	return nil
}

func (r *alertRepository) GetConfiguration(ctx context.Context, tenantID, id string) (*alerts.AlertConfiguration, error) {
	query := `SELECT ` + alertConfigColumns + ` FROM alert_configurations WHERE id = $1 AND tenant_id = $2`

	cfg, err := scanAlertConfig(r.db.GetQuerier(ctx).QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, alertConfigNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert configuration: %w", err)
	}
	return cfg, nil
}

func (r *alertRepository) ListConfigurations(ctx context.Context, tenantID string) ([]*alerts.AlertConfiguration, error) {
	query := `
	SELECT ` + alertConfigColumns + `
	FROM alert_configurations
	WHERE tenant_id = $1
	ORDER BY created_at DESC
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query alert configurations: %w", err)
	}
	defer rows.Close()

	var configs []*alerts.AlertConfiguration
	for rows.Next() {
		cfg, err := scanAlertConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert configuration: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (r *alertRepository) CreateInstance(ctx context.Context, inst *alerts.AlertInstance) error {
	query := `
	INSERT INTO alert_instances (` + alertInstanceColumns + `
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
	)
	`

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		inst.ID,
		inst.TenantID,
		inst.ConfigurationID,
		inst.TriggeredAt,
		inst.ObservedValue,
		inst.Status,
		inst.AcknowledgedAt,
		inst.AcknowledgedBy,
		inst.CreatedAt,
		inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert instance: %w", err)
	}
	return nil
}

func (r *alertRepository) UpdateInstance(ctx context.Context, inst *alerts.AlertInstance) error {
	query := `
	UPDATE alert_instances SET
		status = $3,
		acknowledged_at = $4,
		acknowledged_by = $5,
		updated_at = $6
	WHERE id = $1 AND tenant_id = $2
	`

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		inst.ID,
		inst.TenantID,
		inst.Status,
		inst.AcknowledgedAt,
		inst.AcknowledgedBy,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update alert instance: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return alertInstanceNotFound(inst.ID)
	}
	return nil
}

func (r *alertRepository) GetInstance(ctx context.Context, tenantID, id string) (*alerts.AlertInstance, error) {
	query := `SELECT ` + alertInstanceColumns + ` FROM alert_instances WHERE id = $1 AND tenant_id = $2`

	inst, err := scanAlertInstance(r.db.GetQuerier(ctx).QueryRowContext(ctx, query, id, tenantID))
	if err == sql.ErrNoRows {
		return nil, alertInstanceNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert instance: %w", err)
	}
	return inst, nil
}

func (r *alertRepository) ListInstances(ctx context.Context, filter *alerts.InstanceFilter) ([]*alerts.AlertInstance, error) {
	clauses := []string{"tenant_id = $1"}
	args := []interface{}{filter.TenantID}

	if filter.ConfigurationID != "" {
		args = append(args, filter.ConfigurationID)
		clauses = append(clauses, fmt.Sprintf("configuration_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := fmt.Sprintf(`
	SELECT %s
	FROM alert_instances
	WHERE %s
	ORDER BY triggered_at DESC
	`, alertInstanceColumns, strings.Join(clauses, " AND "))

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert instances: %w", err)
	}
	defer rows.Close()

	var instances []*alerts.AlertInstance
	for rows.Next() {
		inst, err := scanAlertInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func scanAlertConfig(row rowScanner) (*alerts.AlertConfiguration, error) {
	var cfg alerts.AlertConfiguration
	err := row.Scan(
		&cfg.ID,
		&cfg.TenantID,
		&cfg.Name,
		&cfg.AlertType,
		&cfg.ThresholdValue,
		&cfg.Period,
		&cfg.NotificationChannels,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func scanAlertInstance(row rowScanner) (*alerts.AlertInstance, error) {
	var inst alerts.AlertInstance
	var acknowledgedAt sql.NullTime
	var acknowledgedBy sql.NullString

	err := row.Scan(
		&inst.ID,
		&inst.TenantID,
		&inst.ConfigurationID,
		&inst.TriggeredAt,
		&inst.ObservedValue,
		&inst.Status,
		&acknowledgedAt,
		&acknowledgedBy,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		inst.AcknowledgedAt = &t
	}
	inst.AcknowledgedBy = acknowledgedBy.String
	return &inst, nil
}

func alertConfigNotFound(id string) error {
	return ierr.NewError("alert configuration not found").
		WithHint("Alert configuration not found").
		WithReportableDetails(map[string]any{"id": id}).
		Mark(ierr.ErrNotFound)
}

func alertInstanceNotFound(id string) error {
	return ierr.NewError("alert instance not found").
		WithHint("Alert instance not found").
		WithReportableDetails(map[string]any{"id": id}).
		Mark(ierr.ErrNotFound)
}
