package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"shearbook/backend/internal/domain"
	"shearbook/backend/internal/store"
)

type CatalogRepo struct {
	db bun.IDB
}

func NewCatalogRepo(db bun.IDB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) Services(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []domain.Service
	err := r.db.NewSelect().
		Model(&rows).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CatalogRepo) SalonSettings(ctx context.Context, salonID uuid.UUID) (domain.SalonSettings, error) {
	var settings domain.SalonSettings
	err := r.db.NewSelect().
		Model(&settings).
		Where("salon_id = ?", salonID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SalonSettings{}, store.ErrNotFound
		}
		return domain.SalonSettings{}, err
	}
	return settings, nil
}
