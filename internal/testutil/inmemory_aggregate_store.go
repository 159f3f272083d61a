package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/usageline/usageline/internal/domain/aggregates"
	ierr "github.com/usageline/usageline/internal/errors"
)

// InMemoryAggregateStore implements aggregates.Repository keyed on the
// same composite identities as the SQL schema.
type InMemoryAggregateStore struct {
	mu        sync.RWMutex
	cells     map[string]*aggregates.UsageAggregate
	summaries map[string]*aggregates.BillingSummary
}

func NewInMemoryAggregateStore() *InMemoryAggregateStore {
	return &InMemoryAggregateStore{
		cells:     make(map[string]*aggregates.UsageAggregate),
		summaries: make(map[string]*aggregates.BillingSummary),
	}
}

func cellKey(a *aggregates.UsageAggregate) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s|%s",
		a.TenantID, a.PeriodType, a.PeriodStart.Unix(),
		a.ServiceType, a.ServiceProvider, a.UserID)
}

func summaryKey(tenantID string, year, month int) string {
	return fmt.Sprintf("%s|%d|%d", tenantID, year, month)
}

func (s *InMemoryAggregateStore) UpsertAggregates(ctx context.Context, aggs []*aggregates.UsageAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range aggs {
		key := cellKey(a)
		if existing, ok := s.cells[key]; ok {
			// Counters overwrite; identity and created_at survive.
			a.ID = existing.ID
			a.CreatedAt = existing.CreatedAt
		}
		copied := *a
		s.cells[key] = &copied
	}
	return nil
}

func (s *InMemoryAggregateStore) QueryAggregates(ctx context.Context, params *aggregates.QueryParams) ([]*aggregates.UsageAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*aggregates.UsageAggregate
	for _, a := range s.cells {
		if a.TenantID != params.TenantID || a.PeriodType != params.PeriodType {
			continue
		}
		// Dimensions are pinned: empty selects the "all" cell.
		if a.ServiceType != params.ServiceType ||
			a.ServiceProvider != params.ServiceProvider ||
			a.UserID != params.UserID {
			continue
		}
		if !params.StartTime.IsZero() && a.PeriodStart.Before(params.StartTime) {
			continue
		}
		if !params.EndTime.IsZero() && !a.PeriodStart.Before(params.EndTime) {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	if params.Offset > 0 && params.Offset < len(out) {
		out = out[params.Offset:]
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *InMemoryAggregateStore) UpsertBillingSummary(ctx context.Context, summary *aggregates.BillingSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := summaryKey(summary.TenantID, summary.BillingYear, summary.BillingMonth)
	if existing, ok := s.summaries[key]; ok {
		if existing.IsFinalized {
			return nil
		}
		summary.ID = existing.ID
		summary.CreatedAt = existing.CreatedAt
	}
	copied := *summary
	s.summaries[key] = &copied
	return nil
}

func (s *InMemoryAggregateStore) GetBillingSummary(ctx context.Context, tenantID string, year, month int) (*aggregates.BillingSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[summaryKey(tenantID, year, month)]
	if !ok {
		return nil, ierr.NewError("billing summary not found").
			WithHint("Billing summary not found").
			Mark(ierr.ErrNotFound)
	}
	copied := *summary
	return &copied, nil
}

// CellCount reports the number of stored aggregate cells.
func (s *InMemoryAggregateStore) CellCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cells)
}
