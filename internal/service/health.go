package service

import (
	"context"
	"time"

	"github.com/usageline/usageline/internal/api/dto"
	"github.com/usageline/usageline/internal/queue"
)

// StorePinger is the store reachability probe. *postgres.DB satisfies
// it via sqlx.
type StorePinger interface {
	PingContext(ctx context.Context) error
}

// HealthService reports the composite health of the store and queue.
type HealthService interface {
	Check(ctx context.Context) *dto.HealthResponse
}

type healthService struct {
	store StorePinger
	queue queue.Queue
}

func NewHealthService(store StorePinger, q queue.Queue) HealthService {
	return &healthService{store: store, queue: q}
}

func (s *healthService) Check(ctx context.Context) *dto.HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp := &dto.HealthResponse{
		Status:     "healthy",
		Components: map[string]string{},
		Timestamp:  time.Now().UTC(),
	}

	if err := s.store.PingContext(ctx); err != nil {
		resp.Components["database"] = "unhealthy: " + err.Error()
		resp.Status = "unhealthy"
	} else {
		resp.Components["database"] = "healthy"
	}

	if err := s.queue.Ping(ctx); err != nil {
		resp.Components["queue"] = "unhealthy: " + err.Error()
		resp.Status = "unhealthy"
	} else {
		resp.Components["queue"] = "healthy"
	}

	return resp
}
