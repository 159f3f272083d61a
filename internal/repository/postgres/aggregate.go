package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/usageline/usageline/internal/domain/aggregates"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/postgres"
)

type aggregateRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAggregateRepository(db *postgres.DB, logger *logger.Logger) aggregates.Repository {
	return &aggregateRepository{db: db, logger: logger}
}

func (r *aggregateRepository) UpsertAggregates(ctx context.Context, aggs []*aggregates.UsageAggregate) error {
	if len(aggs) == 0 {
		return nil
	}

	// Dimension columns use '' for "all" so the unique index holds;
	// NULLs would never conflict with each other in Postgres.
	query := `
	INSERT INTO usage_aggregates (
		id, tenant_id, period_start, period_end, period_type,
		service_type, service_provider, user_id,
		event_count, unique_users, total_cost, error_count, error_rate,
		avg_latency_ms, p95_latency_ms, aggregated_metrics,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18
	)
	ON CONFLICT (tenant_id, period_start, period_type, service_type, service_provider, user_id)
	DO UPDATE SET
		period_end = EXCLUDED.period_end,
		event_count = EXCLUDED.event_count,
		unique_users = EXCLUDED.unique_users,
		total_cost = EXCLUDED.total_cost,
		error_count = EXCLUDED.error_count,
		error_rate = EXCLUDED.error_rate,
		avg_latency_ms = EXCLUDED.avg_latency_ms,
		p95_latency_ms = EXCLUDED.p95_latency_ms,
		aggregated_metrics = EXCLUDED.aggregated_metrics,
		updated_at = EXCLUDED.updated_at
	`

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.GetQuerier(ctx)
		for _, a := range aggs {
			_, err := q.ExecContext(ctx, query,
				a.ID,
				a.TenantID,
				a.PeriodStart,
				a.PeriodEnd,
				a.PeriodType,
				a.ServiceType,
				a.ServiceProvider,
				a.UserID,
				a.EventCount,
				a.UniqueUsers,
				a.TotalCost,
				a.ErrorCount,
				a.ErrorRate,
				a.AvgLatencyMs,
				a.P95LatencyMs,
				a.AggregatedMetrics,
				a.CreatedAt,
				a.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert aggregate: %w", err)
			}
		}
		return nil
	})
}

func (r *aggregateRepository) QueryAggregates(ctx context.Context, params *aggregates.QueryParams) ([]*aggregates.UsageAggregate, error) {
	clauses := []string{"tenant_id = $1", "period_type = $2"}
	args := []interface{}{params.TenantID, params.PeriodType}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if !params.StartTime.IsZero() {
		add("period_start >= $%d", params.StartTime)
	}
	if !params.EndTime.IsZero() {
		add("period_start < $%d", params.EndTime)
	}
	// Empty dimension values select the "all" rows rather than acting
	// as wildcards; a narrowed query names its dimension explicitly.
	add("service_type = $%d", string(params.ServiceType))
	add("service_provider = $%d", params.ServiceProvider)
	add("user_id = $%d", params.UserID)

	query := fmt.Sprintf(`
	SELECT
		id, tenant_id, period_start, period_end, period_type,
		service_type, service_provider, user_id,
		event_count, unique_users, total_cost, error_count, error_rate,
		avg_latency_ms, p95_latency_ms, aggregated_metrics,
		created_at, updated_at
	FROM usage_aggregates
	WHERE %s
	ORDER BY period_start ASC
	`, strings.Join(clauses, " AND "))

	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query aggregates: %w", err)
	}
	defer rows.Close()

	var result []*aggregates.UsageAggregate
	for rows.Next() {
		var a aggregates.UsageAggregate
		err := rows.Scan(
			&a.ID,
			&a.TenantID,
			&a.PeriodStart,
			&a.PeriodEnd,
			&a.PeriodType,
			&a.ServiceType,
			&a.ServiceProvider,
			&a.UserID,
			&a.EventCount,
			&a.UniqueUsers,
			&a.TotalCost,
			&a.ErrorCount,
			&a.ErrorRate,
			&a.AvgLatencyMs,
			&a.P95LatencyMs,
			&a.AggregatedMetrics,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

func (r *aggregateRepository) UpsertBillingSummary(ctx context.Context, summary *aggregates.BillingSummary) error {
	query := `
	INSERT INTO billing_summaries (
		id, tenant_id, billing_year, billing_month,
		total_cost, cost_by_service, cost_by_user,
		total_events, active_users, is_finalized, finalized_at,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
	)
	ON CONFLICT (tenant_id, billing_year, billing_month)
	DO UPDATE SET
		total_cost = EXCLUDED.total_cost,
		cost_by_service = EXCLUDED.cost_by_service,
		cost_by_user = EXCLUDED.cost_by_user,
		total_events = EXCLUDED.total_events,
		active_users = EXCLUDED.active_users,
		updated_at = EXCLUDED.updated_at
	WHERE billing_summaries.is_finalized = FALSE
	`

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		summary.ID,
		summary.TenantID,
		summary.BillingYear,
		summary.BillingMonth,
		summary.TotalCost,
		summary.CostByService,
		summary.CostByUser,
		summary.TotalEvents,
		summary.ActiveUsers,
		summary.IsFinalized,
		summary.FinalizedAt,
		summary.CreatedAt,
		summary.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert billing summary: %w", err)
	}
	return nil
}

func (r *aggregateRepository) GetBillingSummary(ctx context.Context, tenantID string, year, month int) (*aggregates.BillingSummary, error) {
	query := `
	SELECT
		id, tenant_id, billing_year, billing_month,
		total_cost, cost_by_service, cost_by_user,
		total_events, active_users, is_finalized, finalized_at,
		created_at, updated_at
	FROM billing_summaries
	WHERE tenant_id = $1 AND billing_year = $2 AND billing_month = $3
	`

	var s aggregates.BillingSummary
	var finalizedAt sql.NullTime
	err := r.db.GetQuerier(ctx).QueryRowContext(ctx, query, tenantID, year, month).Scan(
		&s.ID,
		&s.TenantID,
		&s.BillingYear,
		&s.BillingMonth,
		&s.TotalCost,
		&s.CostByService,
		&s.CostByUser,
		&s.TotalEvents,
		&s.ActiveUsers,
		&s.IsFinalized,
		&finalizedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("billing summary not found").
			WithHint("Billing summary not found").
			WithReportableDetails(map[string]any{
				"tenant_id": tenantID,
				"year":      year,
				"month":     month,
			}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get billing summary: %w", err)
	}
	if finalizedAt.Valid {
		t := finalizedAt.Time
		s.FinalizedAt = &t
	}
	return &s, nil
}
