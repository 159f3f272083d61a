package workers

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/usageline/usageline/internal/config"
	"github.com/usageline/usageline/internal/domain/aggregates"
	"github.com/usageline/usageline/internal/domain/events"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/types"
)

// Aggregator periodically recomputes rollup cells and billing
// summaries from completed events. Each cycle replays a bounded
// trailing window per granularity so late-arriving events are folded
// into already closed periods.
type Aggregator struct {
	eventRepo events.Repository
	aggRepo   aggregates.Repository
	cfg       *config.Configuration
	logger    *logger.Logger
}

func NewAggregator(
	eventRepo events.Repository,
	aggRepo aggregates.Repository,
	cfg *config.Configuration,
	logger *logger.Logger,
) *Aggregator {
	return &Aggregator{
		eventRepo: eventRepo,
		aggRepo:   aggRepo,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run executes one cycle immediately, then on every tick until the
// context is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	interval := time.Duration(a.cfg.Aggregation.IntervalSeconds) * time.Second
	a.logger.Infow("aggregator started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Infow("aggregator stopping")
			return nil
		case <-ticker.C:
			a.RunCycle(ctx)
		}
	}
}

// RunCycle performs one full aggregation pass across all granularities
// and refreshes billing summaries. Per-tenant failures are logged and
// skipped so one tenant cannot stall the rest.
func (a *Aggregator) RunCycle(ctx context.Context) {
	started := time.Now()
	now := started.UTC()

	for _, periodType := range types.AllPeriodTypes() {
		if err := a.aggregatePeriodType(ctx, periodType, now); err != nil {
			a.logger.Errorw("aggregation pass failed",
				"period_type", periodType,
				"error", err,
			)
		}
	}

	a.refreshBillingSummaries(ctx, now)

	a.logger.Infow("aggregation cycle complete", "duration", time.Since(started))
}

func (a *Aggregator) aggregatePeriodType(ctx context.Context, periodType types.PeriodType, now time.Time) error {
	windowStart := periodType.Truncate(now.Add(-periodType.ReplayWindow()))

	tenants, err := a.eventRepo.DistinctTenants(ctx, windowStart, now)
	if err != nil {
		return err
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := a.aggregateTenant(ctx, tenantID, periodType, windowStart, now); err != nil {
			a.logger.Errorw("tenant aggregation failed",
				"tenant_id", tenantID,
				"period_type", periodType,
				"error", err,
			)
		}
	}
	return nil
}

func (a *Aggregator) aggregateTenant(ctx context.Context, tenantID string, periodType types.PeriodType, windowStart, now time.Time) error {
	for _, periodStart := range periodType.PeriodsBetween(windowStart, now) {
		periodEnd := periodType.Next(periodStart)

		cells, err := a.buildCells(ctx, tenantID, periodType, periodStart, periodEnd)
		if err != nil {
			return err
		}
		if len(cells) == 0 {
			continue
		}
		if err := a.aggRepo.UpsertAggregates(ctx, cells); err != nil {
			return err
		}
	}
	return nil
}

// buildCells computes every cell for one tenant period: the overall
// rollup, one per service type, one per (type, provider) pair, and one
// per top user by event count.
func (a *Aggregator) buildCells(ctx context.Context, tenantID string, periodType types.PeriodType, periodStart, periodEnd time.Time) ([]*aggregates.UsageAggregate, error) {
	var cells []*aggregates.UsageAggregate

	overall, err := a.computeCell(ctx, tenantID, periodType, periodStart, &events.CellParams{
		TenantID:    tenantID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})
	if err != nil {
		return nil, err
	}
	if overall == nil {
		// No completed events in the period, nothing to roll up.
		return nil, nil
	}
	cells = append(cells, overall)

	serviceTypes, err := a.eventRepo.DistinctServiceTypes(ctx, tenantID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	for _, serviceType := range serviceTypes {
		cell, err := a.computeCell(ctx, tenantID, periodType, periodStart, &events.CellParams{
			TenantID:    tenantID,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			ServiceType: serviceType,
		})
		if err != nil {
			return nil, err
		}
		if cell != nil {
			cells = append(cells, cell)
		}

		providers, err := a.eventRepo.DistinctProviders(ctx, tenantID, serviceType, periodStart, periodEnd)
		if err != nil {
			return nil, err
		}
		for _, provider := range providers {
			cell, err := a.computeCell(ctx, tenantID, periodType, periodStart, &events.CellParams{
				TenantID:        tenantID,
				PeriodStart:     periodStart,
				PeriodEnd:       periodEnd,
				ServiceType:     serviceType,
				ServiceProvider: provider,
			})
			if err != nil {
				return nil, err
			}
			if cell != nil {
				cells = append(cells, cell)
			}
		}
	}

	users, err := a.eventRepo.TopUsersByEventCount(ctx, tenantID, periodStart, periodEnd, a.cfg.Aggregation.TopUsersPerCell)
	if err != nil {
		return nil, err
	}
	for _, userID := range users {
		cell, err := a.computeCell(ctx, tenantID, periodType, periodStart, &events.CellParams{
			TenantID:    tenantID,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			UserID:      userID,
		})
		if err != nil {
			return nil, err
		}
		if cell != nil {
			cells = append(cells, cell)
		}
	}

	return cells, nil
}

// computeCell returns nil when the cell has no completed events.
func (a *Aggregator) computeCell(ctx context.Context, tenantID string, periodType types.PeriodType, periodStart time.Time, params *events.CellParams) (*aggregates.UsageAggregate, error) {
	stats, err := a.eventRepo.AggregateCell(ctx, params)
	if err != nil {
		return nil, err
	}
	if stats.EventCount == 0 {
		return nil, nil
	}

	agg := aggregates.NewUsageAggregate(tenantID, periodType, periodStart)
	agg.ServiceType = params.ServiceType
	agg.ServiceProvider = params.ServiceProvider
	agg.UserID = params.UserID

	agg.EventCount = stats.EventCount
	agg.UniqueUsers = stats.UniqueUsers
	agg.TotalCost = stats.TotalCost
	agg.ErrorCount = stats.ErrorCount
	agg.ErrorRate = decimal.NewFromInt(int64(stats.ErrorCount)).
		Div(decimal.NewFromInt(int64(stats.EventCount))).
		Round(4)
	agg.AvgLatencyMs = stats.AvgLatencyMs
	agg.P95LatencyMs = stats.P95LatencyMs
	agg.AggregatedMetrics = stats.AggregatedMetrics

	return agg, nil
}

// refreshBillingSummaries recomputes the current and previous billing
// months. Recomputing the previous month picks up events that arrived
// after it closed; finalized summaries are never overwritten.
func (a *Aggregator) refreshBillingSummaries(ctx context.Context, now time.Time) {
	months := []time.Time{
		types.PeriodTypeMonth.Truncate(now),
		types.PeriodTypeMonth.Truncate(now.AddDate(0, 0, -now.Day())),
	}

	for _, monthStart := range months {
		monthEnd := types.PeriodTypeMonth.Next(monthStart)

		tenants, err := a.eventRepo.DistinctTenants(ctx, monthStart, monthEnd)
		if err != nil {
			a.logger.Errorw("billing summary tenant scan failed",
				"month", monthStart.Format("2006-01"),
				"error", err,
			)
			continue
		}

		for _, tenantID := range tenants {
			if err := a.refreshTenantSummary(ctx, tenantID, monthStart, monthEnd); err != nil {
				a.logger.Errorw("billing summary refresh failed",
					"tenant_id", tenantID,
					"month", monthStart.Format("2006-01"),
					"error", err,
				)
			}
		}
	}
}

func (a *Aggregator) refreshTenantSummary(ctx context.Context, tenantID string, monthStart, monthEnd time.Time) error {
	totals, err := a.eventRepo.MonthlyTotals(ctx, tenantID, monthStart, monthEnd)
	if err != nil {
		return err
	}
	if totals.TotalEvents == 0 {
		return nil
	}

	summary := aggregates.NewBillingSummary(tenantID, monthStart.Year(), int(monthStart.Month()))
	summary.TotalCost = totals.TotalCost
	summary.TotalEvents = totals.TotalEvents
	summary.ActiveUsers = totals.ActiveUsers

	byService, err := a.eventRepo.CostByService(ctx, tenantID, monthStart, monthEnd)
	if err != nil {
		return err
	}
	for _, row := range byService {
		summary.CostByService[string(row.ServiceType)+":"+row.ServiceProvider] = row.TotalCost
	}

	topUsers, err := a.eventRepo.TopUsersByCost(ctx, tenantID, monthStart, monthEnd, a.cfg.Aggregation.TopUsersBilling)
	if err != nil {
		return err
	}
	for _, row := range topUsers {
		summary.CostByUser[row.UserID] = row.TotalCost
	}

	return a.aggRepo.UpsertBillingSummary(ctx, summary)
}
