package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/usageline/usageline/internal/domain/events"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// InMemoryEventStore implements events.Repository with Go-side
// aggregation mirroring the SQL repository's semantics.
type InMemoryEventStore struct {
	mu sync.RWMutex
	// keyed on tenant_id + "/" + event_id, matching the upsert identity
	events map[string]*events.UsageEvent
	// FailUpserts simulates a store outage.
	FailUpserts bool
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[string]*events.UsageEvent)}
}

func (s *InMemoryEventStore) key(tenantID, eventID string) string {
	return tenantID + "/" + eventID
}

func (s *InMemoryEventStore) Upsert(ctx context.Context, evs []*events.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpserts {
		return ierr.NewError("store down").
			WithHint("Database is unavailable").
			Mark(ierr.ErrDatabase)
	}
	for _, e := range evs {
		copied := *e
		s.events[s.key(e.TenantID, e.EventID)] = &copied
	}
	return nil
}

func (s *InMemoryEventStore) GetByEventID(ctx context.Context, tenantID, eventID string) (*events.UsageEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[s.key(tenantID, eventID)]
	if !ok {
		return nil, ierr.NewError("event not found").
			WithHint("Event not found").
			Mark(ierr.ErrNotFound)
	}
	copied := *e
	return &copied, nil
}

func (s *InMemoryEventStore) Query(ctx context.Context, params *events.QueryParams) ([]*events.UsageEvent, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*events.UsageEvent
	for _, e := range s.events {
		if e.TenantID != params.TenantID {
			continue
		}
		if !params.StartTime.IsZero() && e.Timestamp.Before(params.StartTime) {
			continue
		}
		// End bound is exclusive, matching the SQL repository.
		if !params.EndTime.IsZero() && !e.Timestamp.Before(params.EndTime) {
			continue
		}
		if params.ServiceType != "" && e.ServiceType != params.ServiceType {
			continue
		}
		if params.ServiceProvider != "" && e.ServiceProvider != params.ServiceProvider {
			continue
		}
		if params.UserID != "" && e.UserID != params.UserID {
			continue
		}
		if params.Status != "" && e.Status != params.Status {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	if params.Offset > 0 {
		if params.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[params.Offset:]
		}
	}
	if params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}

	out := make([]*events.UsageEvent, len(matched))
	for i, e := range matched {
		copied := *e
		out[i] = &copied
	}
	return out, total, nil
}

// completedIn yields the tenant's completed events inside [start, end).
func (s *InMemoryEventStore) completedIn(tenantID string, start, end time.Time) []*events.UsageEvent {
	var out []*events.UsageEvent
	for _, e := range s.events {
		if e.TenantID != tenantID || e.Status != types.EventStatusCompleted {
			continue
		}
		if e.Timestamp.Before(start) || !e.Timestamp.Before(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *InMemoryEventStore) DistinctTenants(ctx context.Context, start, end time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tenants []string
	for _, e := range s.events {
		if e.Status != types.EventStatusCompleted {
			continue
		}
		if e.Timestamp.Before(start) || !e.Timestamp.Before(end) {
			continue
		}
		tenants = append(tenants, e.TenantID)
	}
	tenants = lo.Uniq(tenants)
	sort.Strings(tenants)
	return tenants, nil
}

func (s *InMemoryEventStore) DistinctServiceTypes(ctx context.Context, tenantID string, start, end time.Time) ([]types.ServiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	serviceTypes := lo.Uniq(lo.Map(s.completedIn(tenantID, start, end), func(e *events.UsageEvent, _ int) types.ServiceType {
		return e.ServiceType
	}))
	sort.Slice(serviceTypes, func(i, j int) bool { return serviceTypes[i] < serviceTypes[j] })
	return serviceTypes, nil
}

func (s *InMemoryEventStore) DistinctProviders(ctx context.Context, tenantID string, serviceType types.ServiceType, start, end time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var providers []string
	for _, e := range s.completedIn(tenantID, start, end) {
		if e.ServiceType == serviceType && e.ServiceProvider != "" {
			providers = append(providers, e.ServiceProvider)
		}
	}
	providers = lo.Uniq(providers)
	sort.Strings(providers)
	return providers, nil
}

func (s *InMemoryEventStore) TopUsersByEventCount(ctx context.Context, tenantID string, start, end time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	for _, e := range s.completedIn(tenantID, start, end) {
		counts[e.UserID]++
	}

	users := lo.Keys(counts)
	sort.Slice(users, func(i, j int) bool {
		if counts[users[i]] != counts[users[j]] {
			return counts[users[i]] > counts[users[j]]
		}
		return users[i] < users[j]
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func isErrorEvent(e *events.UsageEvent) bool {
	if e.ErrorMessage != "" {
		return true
	}
	if code, ok := e.Metrics.GetInt("status_code"); ok {
		return code >= 400
	}
	return false
}

func (s *InMemoryEventStore) AggregateCell(ctx context.Context, params *events.CellParams) (*events.CellStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &events.CellStats{
		TotalCost:         decimal.Zero,
		AvgLatencyMs:      decimal.Zero,
		P95LatencyMs:      decimal.Zero,
		AggregatedMetrics: types.Metrics{},
	}

	var cell []*events.UsageEvent
	users := map[string]struct{}{}
	var latencies []float64

	for _, e := range s.completedIn(params.TenantID, params.PeriodStart, params.PeriodEnd) {
		if params.ServiceType != "" && e.ServiceType != params.ServiceType {
			continue
		}
		if params.ServiceProvider != "" && e.ServiceProvider != params.ServiceProvider {
			continue
		}
		if params.UserID != "" && e.UserID != params.UserID {
			continue
		}
		cell = append(cell, e)
		users[e.UserID] = struct{}{}
		stats.TotalCost = stats.TotalCost.Add(e.TotalCost)
		if isErrorEvent(e) {
			stats.ErrorCount++
		}
		if ms, ok := e.Metrics.GetFloat("latency_ms"); ok {
			latencies = append(latencies, ms)
		}
	}

	stats.EventCount = len(cell)
	stats.UniqueUsers = len(users)

	if len(latencies) > 0 {
		sum := 0.0
		for _, ms := range latencies {
			sum += ms
		}
		stats.AvgLatencyMs = decimal.NewFromFloat(sum / float64(len(latencies)))
		stats.P95LatencyMs = decimal.NewFromFloat(percentileCont(latencies, 0.95))
	}

	if params.ServiceType != "" && stats.EventCount > 0 {
		stats.AggregatedMetrics = serviceMetricsFor(params.ServiceType, cell)
	}

	return stats, nil
}

// percentileCont mirrors PERCENTILE_CONT: linear interpolation between
// the two nearest ranks.
func percentileCont(values []float64, p float64) float64 {
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lower := int(rank)
	frac := rank - float64(lower)
	if lower+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

func serviceMetricsFor(serviceType types.ServiceType, cell []*events.UsageEvent) types.Metrics {
	sum := func(field string) float64 {
		total := 0.0
		for _, e := range cell {
			if v, ok := e.Metrics.GetFloat(field); ok {
				total += v
			}
		}
		return total
	}
	avg := func(field string) float64 {
		total, n := 0.0, 0
		for _, e := range cell {
			if v, ok := e.Metrics.GetFloat(field); ok {
				total += v
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return total / float64(n)
	}

	switch serviceType {
	case types.ServiceTypeLLM:
		return types.Metrics{
			"total_input_tokens":  sum("input_tokens"),
			"total_output_tokens": sum("output_tokens"),
			"total_tokens":        sum("total_tokens"),
			"avg_input_tokens":    avg("input_tokens"),
			"avg_output_tokens":   avg("output_tokens"),
		}
	case types.ServiceTypeDocumentProcessor:
		return types.Metrics{
			"total_pages_processed":      sum("pages_processed"),
			"total_characters_extracted": sum("characters_extracted"),
			"avg_processing_time_ms":     avg("processing_time_ms"),
		}
	case types.ServiceTypeAPI:
		requests := 0.0
		for _, e := range cell {
			if v, ok := e.Metrics.GetFloat("request_count"); ok {
				requests += v
			} else {
				requests++
			}
		}
		return types.Metrics{
			"total_requests":       requests,
			"total_payload_bytes":  sum("payload_size_bytes"),
			"total_response_bytes": sum("response_size_bytes"),
			"avg_response_time_ms": avg("response_time_ms"),
		}
	default:
		return types.Metrics{}
	}
}

func (s *InMemoryEventStore) ServiceBreakdown(ctx context.Context, tenantID string, start, end time.Time) ([]*events.ServiceBreakdownRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type groupKey struct {
		serviceType types.ServiceType
		provider    string
	}
	groups := map[groupKey]*events.ServiceBreakdownRow{}
	users := map[groupKey]map[string]struct{}{}

	for _, e := range s.completedIn(tenantID, start, end) {
		k := groupKey{e.ServiceType, e.ServiceProvider}
		row, ok := groups[k]
		if !ok {
			row = &events.ServiceBreakdownRow{
				ServiceType:     e.ServiceType,
				ServiceProvider: e.ServiceProvider,
				TotalCost:       decimal.Zero,
			}
			groups[k] = row
			users[k] = map[string]struct{}{}
		}
		row.EventCount++
		row.TotalCost = row.TotalCost.Add(e.TotalCost)
		users[k][e.UserID] = struct{}{}
	}

	rows := lo.Values(groups)
	for k, row := range groups {
		row.UniqueUsers = len(users[k])
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].EventCount > rows[j].EventCount })
	return rows, nil
}

func (s *InMemoryEventStore) CostByPeriod(ctx context.Context, tenantID string, start, end time.Time, period types.PeriodType) ([]*events.CostByPeriodRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := map[time.Time]*events.CostByPeriodRow{}
	for _, e := range s.completedIn(tenantID, start, end) {
		bucket := period.Truncate(e.Timestamp)
		row, ok := buckets[bucket]
		if !ok {
			row = &events.CostByPeriodRow{PeriodStart: bucket, TotalCost: decimal.Zero}
			buckets[bucket] = row
		}
		row.TotalCost = row.TotalCost.Add(e.TotalCost)
		row.EventCount++
	}

	rows := lo.Values(buckets)
	sort.Slice(rows, func(i, j int) bool { return rows[i].PeriodStart.Before(rows[j].PeriodStart) })
	return rows, nil
}

func (s *InMemoryEventStore) MonthlyTotals(ctx context.Context, tenantID string, monthStart, monthEnd time.Time) (*events.MonthlyTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := &events.MonthlyTotals{TotalCost: decimal.Zero}
	users := map[string]struct{}{}
	for _, e := range s.completedIn(tenantID, monthStart, monthEnd) {
		totals.TotalEvents++
		totals.TotalCost = totals.TotalCost.Add(e.TotalCost)
		users[e.UserID] = struct{}{}
	}
	totals.ActiveUsers = len(users)
	return totals, nil
}

func (s *InMemoryEventStore) CostByService(ctx context.Context, tenantID string, monthStart, monthEnd time.Time) ([]*events.ServiceCostRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type groupKey struct {
		serviceType types.ServiceType
		provider    string
	}
	groups := map[groupKey]*events.ServiceCostRow{}
	for _, e := range s.completedIn(tenantID, monthStart, monthEnd) {
		k := groupKey{e.ServiceType, e.ServiceProvider}
		row, ok := groups[k]
		if !ok {
			row = &events.ServiceCostRow{
				ServiceType:     e.ServiceType,
				ServiceProvider: e.ServiceProvider,
				TotalCost:       decimal.Zero,
			}
			groups[k] = row
		}
		row.TotalCost = row.TotalCost.Add(e.TotalCost)
	}

	rows := lo.Values(groups)
	sort.Slice(rows, func(i, j int) bool { return rows[i].TotalCost.GreaterThan(rows[j].TotalCost) })
	return rows, nil
}

func (s *InMemoryEventStore) TopUsersByCost(ctx context.Context, tenantID string, monthStart, monthEnd time.Time, limit int) ([]*events.UserCostRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	costs := map[string]decimal.Decimal{}
	for _, e := range s.completedIn(tenantID, monthStart, monthEnd) {
		costs[e.UserID] = costs[e.UserID].Add(e.TotalCost)
	}

	rows := make([]*events.UserCostRow, 0, len(costs))
	for userID, cost := range costs {
		rows = append(rows, &events.UserCostRow{UserID: userID, TotalCost: cost})
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].TotalCost.Equal(rows[j].TotalCost) {
			return rows[i].TotalCost.GreaterThan(rows[j].TotalCost)
		}
		return rows[i].UserID < rows[j].UserID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Count reports the number of stored rows.
func (s *InMemoryEventStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
