package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/usageline/usageline/internal/domain/events"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/postgres"
	"github.com/usageline/usageline/internal/types"
)

type eventRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewEventRepository(db *postgres.DB, logger *logger.Logger) events.Repository {
	return &eventRepository{db: db, logger: logger}
}

const eventColumns = `
	id, tenant_id, event_id, timestamp, user_id, service_type,
	service_provider, event_type, metrics, metadata, tags, billing_info,
	total_cost, status, error_message, retry_count, session_id,
	request_id, processed_at, dead_letter_at, created_at, updated_at`

func (r *eventRepository) Upsert(ctx context.Context, evs []*events.UsageEvent) error {
	if len(evs) == 0 {
		return nil
	}

	query := `
	INSERT INTO usage_events (` + eventColumns + `
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		$13, $14, $15, $16, $17, $18, $19, $20, $21, $22
	)
	ON CONFLICT (event_id) DO UPDATE SET
		status = EXCLUDED.status,
		billing_info = EXCLUDED.billing_info,
		total_cost = EXCLUDED.total_cost,
		error_message = EXCLUDED.error_message,
		retry_count = EXCLUDED.retry_count,
		processed_at = EXCLUDED.processed_at,
		dead_letter_at = EXCLUDED.dead_letter_at,
		updated_at = EXCLUDED.updated_at
	`

	return r.db.WithTx(ctx, func(ctx context.Context) error {
		q := r.db.GetQuerier(ctx)
		for _, e := range evs {
			_, err := q.ExecContext(ctx, query,
				e.ID,
				e.TenantID,
				e.EventID,
				e.Timestamp,
				e.UserID,
				e.ServiceType,
				e.ServiceProvider,
				e.EventType,
				e.Metrics,
				e.Metadata,
				e.Tags,
				e.BillingInfo,
				e.TotalCost,
				e.Status,
				e.ErrorMessage,
				e.RetryCount,
				e.SessionID,
				e.RequestID,
				e.ProcessedAt,
				e.DeadLetterAt,
				e.CreatedAt,
				e.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert event %s: %w", e.EventID, err)
			}
		}
		return nil
	})
}

func (r *eventRepository) GetByEventID(ctx context.Context, tenantID, eventID string) (*events.UsageEvent, error) {
	query := `
	SELECT ` + eventColumns + `
	FROM usage_events
	WHERE tenant_id = $1 AND event_id = $2
	`

	row := r.db.GetQuerier(ctx).QueryRowContext(ctx, query, tenantID, eventID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("event not found").
			WithHint("Event not found").
			WithReportableDetails(map[string]any{"event_id": eventID}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *eventRepository) Query(ctx context.Context, params *events.QueryParams) ([]*events.UsageEvent, int, error) {
	where, args := buildEventFilters(params)

	countQuery := `SELECT COUNT(*) FROM usage_events ` + where
	var total int
	if err := r.db.GetQuerier(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := fmt.Sprintf(`
	SELECT %s
	FROM usage_events
	%s
	ORDER BY timestamp DESC
	LIMIT $%d OFFSET $%d
	`, eventColumns, where, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []*events.UsageEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		result = append(result, e)
	}
	return result, total, rows.Err()
}

func buildEventFilters(params *events.QueryParams) (string, []interface{}) {
	clauses := []string{"tenant_id = $1"}
	args := []interface{}{params.TenantID}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if !params.StartTime.IsZero() {
		add("timestamp >= $%d", params.StartTime)
	}
	if !params.EndTime.IsZero() {
		add("timestamp < $%d", params.EndTime)
	}
	if params.ServiceType != "" {
		add("service_type = $%d", params.ServiceType)
	}
	if params.ServiceProvider != "" {
		add("service_provider = $%d", params.ServiceProvider)
	}
	if params.UserID != "" {
		add("user_id = $%d", params.UserID)
	}
	if params.Status != "" {
		add("status = $%d", params.Status)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (r *eventRepository) DistinctTenants(ctx context.Context, start, end time.Time) ([]string, error) {
	query := `
	SELECT DISTINCT tenant_id
	FROM usage_events
	WHERE status = $1 AND timestamp >= $2 AND timestamp < $3
	`
	return r.selectStrings(ctx, query, types.EventStatusCompleted, start, end)
}

func (r *eventRepository) DistinctServiceTypes(ctx context.Context, tenantID string, start, end time.Time) ([]types.ServiceType, error) {
	query := `
	SELECT DISTINCT service_type
	FROM usage_events
	WHERE tenant_id = $1 AND status = $2 AND timestamp >= $3 AND timestamp < $4
	`
	values, err := r.selectStrings(ctx, query, tenantID, types.EventStatusCompleted, start, end)
	if err != nil {
		return nil, err
	}
	result := make([]types.ServiceType, len(values))
	for i, v := range values {
		result[i] = types.ServiceType(v)
	}
	return result, nil
}

func (r *eventRepository) DistinctProviders(ctx context.Context, tenantID string, serviceType types.ServiceType, start, end time.Time) ([]string, error) {
	query := `
	SELECT DISTINCT service_provider
	FROM usage_events
	WHERE tenant_id = $1 AND service_type = $2 AND status = $3
		AND timestamp >= $4 AND timestamp < $5
		AND service_provider <> ''
	`
	return r.selectStrings(ctx, query, tenantID, serviceType, types.EventStatusCompleted, start, end)
}

func (r *eventRepository) TopUsersByEventCount(ctx context.Context, tenantID string, start, end time.Time, limit int) ([]string, error) {
	query := `
	SELECT user_id
	FROM usage_events
	WHERE tenant_id = $1 AND status = $2 AND timestamp >= $3 AND timestamp < $4
		AND user_id <> ''
	GROUP BY user_id
	ORDER BY COUNT(*) DESC
	LIMIT $5
	`
	return r.selectStrings(ctx, query, tenantID, types.EventStatusCompleted, start, end, limit)
}

func (r *eventRepository) selectStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (r *eventRepository) AggregateCell(ctx context.Context, params *events.CellParams) (*events.CellStats, error) {
	where, args := buildCellFilters(params)

	query := `
	SELECT
		COUNT(*) AS event_count,
		COUNT(DISTINCT user_id) AS unique_users,
		COALESCE(SUM(total_cost), 0) AS total_cost,
		COUNT(*) FILTER (
			WHERE COALESCE(error_message, '') <> ''
				OR COALESCE((metrics->>'status_code')::int, 200) >= 400
		) AS error_count,
		COALESCE(AVG((metrics->>'latency_ms')::numeric)
			FILTER (WHERE metrics ? 'latency_ms'), 0) AS avg_latency_ms,
		COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (
			ORDER BY (metrics->>'latency_ms')::numeric)
			FILTER (WHERE metrics ? 'latency_ms'), 0) AS p95_latency_ms
	FROM usage_events ` + where

	var stats events.CellStats
	err := r.db.GetQuerier(ctx).QueryRowContext(ctx, query, args...).Scan(
		&stats.EventCount,
		&stats.UniqueUsers,
		&stats.TotalCost,
		&stats.ErrorCount,
		&stats.AvgLatencyMs,
		&stats.P95LatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregate cell: %w", err)
	}

	stats.AggregatedMetrics = types.Metrics{}
	if params.ServiceType != "" && stats.EventCount > 0 {
		metrics, err := r.serviceMetrics(ctx, params, where, args)
		if err != nil {
			return nil, err
		}
		stats.AggregatedMetrics = metrics
	}

	return &stats, nil
}

// serviceMetrics computes the service-specific sums and averages for a
// cell narrowed to one service type.
func (r *eventRepository) serviceMetrics(ctx context.Context, params *events.CellParams, where string, args []interface{}) (types.Metrics, error) {
	var exprs map[string]string
	switch params.ServiceType {
	case types.ServiceTypeLLM:
		exprs = map[string]string{
			"total_input_tokens":  "COALESCE(SUM((metrics->>'input_tokens')::numeric), 0)",
			"total_output_tokens": "COALESCE(SUM((metrics->>'output_tokens')::numeric), 0)",
			"total_tokens":        "COALESCE(SUM((metrics->>'total_tokens')::numeric), 0)",
			"avg_input_tokens":    "COALESCE(AVG((metrics->>'input_tokens')::numeric), 0)",
			"avg_output_tokens":   "COALESCE(AVG((metrics->>'output_tokens')::numeric), 0)",
		}
	case types.ServiceTypeDocumentProcessor:
		exprs = map[string]string{
			"total_pages_processed":      "COALESCE(SUM((metrics->>'pages_processed')::numeric), 0)",
			"total_characters_extracted": "COALESCE(SUM((metrics->>'characters_extracted')::numeric), 0)",
			"avg_processing_time_ms":     "COALESCE(AVG((metrics->>'processing_time_ms')::numeric), 0)",
		}
	case types.ServiceTypeAPI:
		exprs = map[string]string{
			"total_requests":       "COALESCE(SUM(COALESCE((metrics->>'request_count')::numeric, 1)), 0)",
			"total_payload_bytes":  "COALESCE(SUM((metrics->>'payload_size_bytes')::numeric), 0)",
			"total_response_bytes": "COALESCE(SUM((metrics->>'response_size_bytes')::numeric), 0)",
			"avg_response_time_ms": "COALESCE(AVG((metrics->>'response_time_ms')::numeric), 0)",
		}
	default:
		return types.Metrics{}, nil
	}

	keys := make([]string, 0, len(exprs))
	selects := make([]string, 0, len(exprs))
	for key, expr := range exprs {
		keys = append(keys, key)
		selects = append(selects, expr)
	}

	query := "SELECT " + strings.Join(selects, ", ") + " FROM usage_events " + where

	dests := make([]interface{}, len(keys))
	values := make([]decimal.Decimal, len(keys))
	for i := range values {
		dests[i] = &values[i]
	}

	if err := r.db.GetQuerier(ctx).QueryRowContext(ctx, query, args...).Scan(dests...); err != nil {
		return nil, fmt.Errorf("service metrics: %w", err)
	}

	metrics := types.Metrics{}
	for i, key := range keys {
		metrics[key] = values[i].InexactFloat64()
	}
	return metrics, nil
}

func buildCellFilters(params *events.CellParams) (string, []interface{}) {
	clauses := []string{"tenant_id = $1", "status = $2", "timestamp >= $3", "timestamp < $4"}
	args := []interface{}{params.TenantID, types.EventStatusCompleted, params.PeriodStart, params.PeriodEnd}

	if params.ServiceType != "" {
		args = append(args, params.ServiceType)
		clauses = append(clauses, fmt.Sprintf("service_type = $%d", len(args)))
	}
	if params.ServiceProvider != "" {
		args = append(args, params.ServiceProvider)
		clauses = append(clauses, fmt.Sprintf("service_provider = $%d", len(args)))
	}
	if params.UserID != "" {
		args = append(args, params.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id = $%d", len(args)))
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (r *eventRepository) ServiceBreakdown(ctx context.Context, tenantID string, start, end time.Time) ([]*events.ServiceBreakdownRow, error) {
	query := `
	SELECT
		service_type,
		service_provider,
		COUNT(*) AS event_count,
		COALESCE(SUM(total_cost), 0) AS total_cost,
		COUNT(DISTINCT user_id) AS unique_users
	FROM usage_events
	WHERE tenant_id = $1 AND status = $2 AND timestamp >= $3 AND timestamp < $4
	GROUP BY service_type, service_provider
	ORDER BY event_count DESC
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, tenantID, types.EventStatusCompleted, start, end)
	if err != nil {
		return nil, fmt.Errorf("service breakdown: %w", err)
	}
	defer rows.Close()

	var result []*events.ServiceBreakdownRow
	for rows.Next() {
		var row events.ServiceBreakdownRow
		if err := rows.Scan(&row.ServiceType, &row.ServiceProvider, &row.EventCount, &row.TotalCost, &row.UniqueUsers); err != nil {
			return nil, fmt.Errorf("scan breakdown: %w", err)
		}
		result = append(result, &row)
	}
	return result, rows.Err()
}

func (r *eventRepository) CostByPeriod(ctx context.Context, tenantID string, start, end time.Time, period types.PeriodType) ([]*events.CostByPeriodRow, error) {
	// date_trunc('week', ...) starts on Monday, matching PeriodType.
	query := `
	SELECT
		DATE_TRUNC($1, timestamp AT TIME ZONE 'UTC') AS period_start,
		COALESCE(SUM(total_cost), 0) AS total_cost,
		COUNT(*) AS event_count
	FROM usage_events
	WHERE tenant_id = $2 AND status = $3 AND timestamp >= $4 AND timestamp < $5
	GROUP BY 1
	ORDER BY 1
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, period.String(), tenantID, types.EventStatusCompleted, start, end)
	if err != nil {
		return nil, fmt.Errorf("cost by period: %w", err)
	}
	defer rows.Close()

	var result []*events.CostByPeriodRow
	for rows.Next() {
		var row events.CostByPeriodRow
		if err := rows.Scan(&row.PeriodStart, &row.TotalCost, &row.EventCount); err != nil {
			return nil, fmt.Errorf("scan cost row: %w", err)
		}
		result = append(result, &row)
	}
	return result, rows.Err()
}

func (r *eventRepository) MonthlyTotals(ctx context.Context, tenantID string, monthStart, monthEnd time.Time) (*events.MonthlyTotals, error) {
	query := `
	SELECT
		COALESCE(SUM(total_cost), 0) AS total_cost,
		COUNT(*) AS total_events,
		COUNT(DISTINCT user_id) AS active_users
	FROM usage_events
	WHERE tenant_id = $1 AND status = $2 AND timestamp >= $3 AND timestamp < $4
	`

	var totals events.MonthlyTotals
	err := r.db.GetQuerier(ctx).QueryRowContext(ctx, query, tenantID, types.EventStatusCompleted, monthStart, monthEnd).Scan(
		&totals.TotalCost,
		&totals.TotalEvents,
		&totals.ActiveUsers,
	)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	return &totals, nil
}

func (r *eventRepository) CostByService(ctx context.Context, tenantID string, monthStart, monthEnd time.Time) ([]*events.ServiceCostRow, error) {
	query := `
	SELECT service_type, service_provider, COALESCE(SUM(total_cost), 0) AS total_cost
	FROM usage_events
	WHERE tenant_id = $1 AND status = $2 AND timestamp >= $3 AND timestamp < $4
	GROUP BY service_type, service_provider
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, tenantID, types.EventStatusCompleted, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("cost by service: %w", err)
	}
	defer rows.Close()

	var result []*events.ServiceCostRow
	for rows.Next() {
		var row events.ServiceCostRow
		if err := rows.Scan(&row.ServiceType, &row.ServiceProvider, &row.TotalCost); err != nil {
			return nil, fmt.Errorf("scan service cost: %w", err)
		}
		result = append(result, &row)
	}
	return result, rows.Err()
}

func (r *eventRepository) TopUsersByCost(ctx context.Context, tenantID string, monthStart, monthEnd time.Time, limit int) ([]*events.UserCostRow, error) {
	query := `
	SELECT user_id, COALESCE(SUM(total_cost), 0) AS total_cost
	FROM usage_events
	WHERE tenant_id = $1 AND status = $2 AND timestamp >= $3 AND timestamp < $4
		AND user_id <> ''
	GROUP BY user_id
	ORDER BY total_cost DESC
	LIMIT $5
	`

	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, tenantID, types.EventStatusCompleted, monthStart, monthEnd, limit)
	if err != nil {
		return nil, fmt.Errorf("top users by cost: %w", err)
	}
	defer rows.Close()

	var result []*events.UserCostRow
	for rows.Next() {
		var row events.UserCostRow
		if err := rows.Scan(&row.UserID, &row.TotalCost); err != nil {
			return nil, fmt.Errorf("scan user cost: %w", err)
		}
		result = append(result, &row)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*events.UsageEvent, error) {
	var e events.UsageEvent
	var billingInfo events.BillingInfo
	var billingInfoSet sql.NullString
	var errorMessage, sessionID, requestID sql.NullString
	var processedAt, deadLetterAt sql.NullTime

	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.EventID,
		&e.Timestamp,
		&e.UserID,
		&e.ServiceType,
		&e.ServiceProvider,
		&e.EventType,
		&e.Metrics,
		&e.Metadata,
		&e.Tags,
		&billingInfoSet,
		&e.TotalCost,
		&e.Status,
		&errorMessage,
		&e.RetryCount,
		&sessionID,
		&requestID,
		&processedAt,
		&deadLetterAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if billingInfoSet.Valid && billingInfoSet.String != "" {
		if err := billingInfo.Scan(billingInfoSet.String); err != nil {
			return nil, fmt.Errorf("unmarshal billing info: %w", err)
		}
		e.BillingInfo = &billingInfo
	}
	e.ErrorMessage = errorMessage.String
	e.SessionID = sessionID.String
	e.RequestID = requestID.String
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	if deadLetterAt.Valid {
		t := deadLetterAt.Time
		e.DeadLetterAt = &t
	}

	return &e, nil
}
