package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/usageline/usageline/internal/domain/billingrule"
	ierr "github.com/usageline/usageline/internal/errors"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/postgres"
	"github.com/usageline/usageline/internal/types"
)

type billingRuleRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewBillingRuleRepository(db *postgres.DB, logger *logger.Logger) billingrule.Repository {
	return &billingRuleRepository{db: db, logger: logger}
}

const billingRuleColumns = `
	id, service_type, service_provider, model_or_tier, billing_unit,
	rate_per_unit, tiered_rates, minimum_charge, calculation_method,
	effective_from, effective_until, is_active, created_at, updated_at`

func (r *billingRuleRepository) Create(ctx context.Context, rule *billingrule.BillingRule) error {
	query := `
	INSERT INTO billing_rules (` + billingRuleColumns + `
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
	)
	`

	tieredJSON, err := marshalTiers(rule.TieredRates)
	if err != nil {
		return err
	}

	_, err = r.db.GetQuerier(ctx).ExecContext(ctx, query,
		rule.ID,
		rule.ServiceType,
		rule.ServiceProvider,
		rule.ModelOrTier,
		rule.BillingUnit,
		rule.RatePerUnit,
		tieredJSON,
		rule.MinimumCharge,
		rule.CalculationMethod,
		rule.EffectiveFrom,
		rule.EffectiveUntil,
		rule.IsActive,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert billing rule: %w", err)
	}
	return nil
}

func (r *billingRuleRepository) Update(ctx context.Context, rule *billingrule.BillingRule) error {
	query := `
	UPDATE billing_rules SET
		billing_unit = $2,
		rate_per_unit = $3,
		tiered_rates = $4,
		minimum_charge = $5,
		calculation_method = $6,
		effective_from = $7,
		effective_until = $8,
		is_active = $9,
		updated_at = $10
	WHERE id = $1
	`

	tieredJSON, err := marshalTiers(rule.TieredRates)
	if err != nil {
		return err
	}

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		rule.ID,
		rule.BillingUnit,
		rule.RatePerUnit,
		tieredJSON,
		rule.MinimumCharge,
		rule.CalculationMethod,
		rule.EffectiveFrom,
		rule.EffectiveUntil,
		rule.IsActive,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update billing rule: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ierr.NewError("billing rule not found").
			WithHint("Billing rule not found").
			WithReportableDetails(map[string]any{"id": rule.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (r *billingRuleRepository) Get(ctx context.Context, id string) (*billingrule.BillingRule, error) {
	query := `SELECT ` + billingRuleColumns + ` FROM billing_rules WHERE id = $1`

	rule, err := scanBillingRule(r.db.GetQuerier(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("billing rule not found").
			WithHint("Billing rule not found").
			WithReportableDetails(map[string]any{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get billing rule: %w", err)
	}
	return rule, nil
}

func (r *billingRuleRepository) List(ctx context.Context, serviceType types.ServiceType, provider string) ([]*billingrule.BillingRule, error) {
	clauses := []string{"1 = 1"}
	var args []interface{}

	if serviceType != "" {
		args = append(args, serviceType)
		clauses = append(clauses, fmt.Sprintf("service_type = $%d", len(args)))
	}
	if provider != "" {
		args = append(args, provider)
		clauses = append(clauses, fmt.Sprintf("service_provider = $%d", len(args)))
	}

	query := fmt.Sprintf(`
	SELECT %s FROM billing_rules
	WHERE %s
	ORDER BY service_type, service_provider, effective_from DESC
	`, billingRuleColumns, strings.Join(clauses, " AND "))

	return r.queryRules(ctx, query, args...)
}

func (r *billingRuleRepository) FindEffective(ctx context.Context, serviceType types.ServiceType, provider string, at time.Time) ([]*billingrule.BillingRule, error) {
	// Model-specific rules sort before provider defaults, newest
	// effective_from first within each group. The pricing engine takes
	// the first rule whose model matches, then the first default.
	query := `
	SELECT ` + billingRuleColumns + `
	FROM billing_rules
	WHERE service_type = $1
		AND service_provider = $2
		AND is_active = TRUE
		AND effective_from <= $3
		AND (effective_until IS NULL OR effective_until > $3)
	ORDER BY model_or_tier DESC NULLS LAST, effective_from DESC
	`

	return r.queryRules(ctx, query, serviceType, provider, at)
}

func (r *billingRuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*billingrule.BillingRule, error) {
	rows, err := r.db.GetQuerier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query billing rules: %w", err)
	}
	defer rows.Close()

	var rules []*billingrule.BillingRule
	for rows.Next() {
		rule, err := scanBillingRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan billing rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanBillingRule(row rowScanner) (*billingrule.BillingRule, error) {
	var rule billingrule.BillingRule
	var modelOrTier sql.NullString
	var tieredJSON []byte
	var effectiveUntil sql.NullTime

	err := row.Scan(
		&rule.ID,
		&rule.ServiceType,
		&rule.ServiceProvider,
		&modelOrTier,
		&rule.BillingUnit,
		&rule.RatePerUnit,
		&tieredJSON,
		&rule.MinimumCharge,
		&rule.CalculationMethod,
		&rule.EffectiveFrom,
		&effectiveUntil,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.ModelOrTier = modelOrTier.String
	if effectiveUntil.Valid {
		t := effectiveUntil.Time
		rule.EffectiveUntil = &t
	}
	if len(tieredJSON) > 0 {
		var tiers types.TieredRates
		if err := json.Unmarshal(tieredJSON, &tiers); err != nil {
			return nil, fmt.Errorf("unmarshal tiered rates: %w", err)
		}
		if len(tiers.Tiers) > 0 {
			rule.TieredRates = &tiers
		}
	}

	return &rule, nil
}

func marshalTiers(tiers *types.TieredRates) ([]byte, error) {
	if tiers == nil {
		return nil, nil
	}
	data, err := json.Marshal(tiers)
	if err != nil {
		return nil, fmt.Errorf("marshal tiered rates: %w", err)
	}
	return data, nil
}
