package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/goodnight000/kittycourt-backend/internal/domain/entity"
)

type CaseRepository interface {
	Create(ctx context.Context, record *entity.Case) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Case, error)
	FindLatestByCouple(ctx context.Context, coupleID uuid.UUID) (*entity.Case, error)
	UpdateRating(ctx context.Context, record *entity.Case) error
}
