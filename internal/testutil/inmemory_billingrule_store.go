package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/usageline/usageline/internal/domain/billingrule"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/types"
)

// InMemoryBillingRuleStore implements billingrule.Repository.
type InMemoryBillingRuleStore struct {
	mu    sync.RWMutex
	rules map[string]*billingrule.BillingRule
}

func NewInMemoryBillingRuleStore() *InMemoryBillingRuleStore {
	return &InMemoryBillingRuleStore{rules: make(map[string]*billingrule.BillingRule)}
}

func (s *InMemoryBillingRuleStore) Create(ctx context.Context, rule *billingrule.BillingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; ok {
		return ierr.NewError("billing rule already exists").
			WithHint("Billing rule already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	copied := *rule
	s.rules[rule.ID] = &copied
	return nil
}

func (s *InMemoryBillingRuleStore) Update(ctx context.Context, rule *billingrule.BillingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return s.notFound()
	}
	copied := *rule
	s.rules[rule.ID] = &copied
	return nil
}

func (s *InMemoryBillingRuleStore) Get(ctx context.Context, id string) (*billingrule.BillingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, s.notFound()
	}
	copied := *rule
	return &copied, nil
}

func (s *InMemoryBillingRuleStore) List(ctx context.Context, serviceType types.ServiceType, provider string) ([]*billingrule.BillingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*billingrule.BillingRule
	for _, rule := range s.rules {
		if serviceType != "" && rule.ServiceType != serviceType {
			continue
		}
		if provider != "" && rule.ServiceProvider != provider {
			continue
		}
		copied := *rule
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryBillingRuleStore) FindEffective(ctx context.Context, serviceType types.ServiceType, provider string, at time.Time) ([]*billingrule.BillingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*billingrule.BillingRule
	for _, rule := range s.rules {
		if rule.ServiceType != serviceType || rule.ServiceProvider != provider {
			continue
		}
		if !rule.IsActive || !rule.EffectiveAt(at) {
			continue
		}
		copied := *rule
		out = append(out, &copied)
	}

	// Model-specific rules sort before provider defaults, then most
	// recent effective_from first.
	sort.Slice(out, func(i, j int) bool {
		iSpecific := out[i].ModelOrTier != ""
		jSpecific := out[j].ModelOrTier != ""
		if iSpecific != jSpecific {
			return iSpecific
		}
		if out[i].ModelOrTier != out[j].ModelOrTier {
			return out[i].ModelOrTier > out[j].ModelOrTier
		}
		return out[i].EffectiveFrom.After(out[j].EffectiveFrom)
	})
	return out, nil
}

func (s *InMemoryBillingRuleStore) notFound() error {
	return ierr.NewError("billing rule not found").
		WithHint("Billing rule not found").
		Mark(ierr.ErrNotFound)
}
