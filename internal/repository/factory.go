package repository

import (
	"github.com/usageline/usageline/internal/domain/aggregates"
	"github.com/usageline/usageline/internal/domain/alerts"
	"github.com/usageline/usageline/internal/domain/billingrule"
	"github.com/usageline/usageline/internal/domain/events"
	"github.com/usageline/usageline/internal/domain/registry"
	"github.com/usageline/usageline/internal/domain/tenant"
	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/postgres"
	postgresRepo "github.com/usageline/usageline/internal/repository/postgres"
)

func NewEventRepository(db *postgres.DB, logger *logger.Logger) events.Repository {
	return postgresRepo.NewEventRepository(db, logger)
}

func NewAggregateRepository(db *postgres.DB, logger *logger.Logger) aggregates.Repository {
	return postgresRepo.NewAggregateRepository(db, logger)
}

func NewBillingRuleRepository(db *postgres.DB, logger *logger.Logger) billingrule.Repository {
	return postgresRepo.NewBillingRuleRepository(db, logger)
}

func NewTenantRepository(db *postgres.DB, logger *logger.Logger) tenant.Repository {
	return postgresRepo.NewTenantRepository(db, logger)
}

func NewRegistryRepository(db *postgres.DB, logger *logger.Logger) registry.Repository {
	return postgresRepo.NewRegistryRepository(db, logger)
}

func NewAlertRepository(db *postgres.DB, logger *logger.Logger) alerts.Repository {
	return postgresRepo.NewAlertRepository(db, logger)
}
