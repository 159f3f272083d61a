package types

import (
	"context"
	"time"
)

// BaseModel is a base model for all domain models that need to be persisted
// in the database. Any changes to this model should be reflected in the
// database schema by running migrations.
type BaseModel struct {
	ID        string    `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TenantModel is the base model for tenant-scoped entities.
type TenantModel struct {
	BaseModel
	TenantID string `db:"tenant_id" json:"tenant_id"`
}

func GetDefaultBaseModel(id string) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func GetDefaultTenantModel(ctx context.Context, id string) TenantModel {
	return TenantModel{
		BaseModel: GetDefaultBaseModel(id),
		TenantID:  GetTenantID(ctx),
	}
}
