package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"shearbook/backend/internal/domain"
)

type ScheduleRepo struct {
	db bun.IDB
}

func NewScheduleRepo(db bun.IDB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func (r *ScheduleRepo) WorkingHours(ctx context.Context, staffID uuid.UUID) ([]domain.WorkingHourRule, error) {
	var rows []domain.WorkingHourRule
	err := r.db.NewSelect().
		Model(&rows).
		Where("staff_id = ?", staffID).
		Where("is_active").
		OrderExpr("day_of_week ASC, start_minute ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) ApprovedTimeOff(ctx context.Context, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.TimeOffPeriod, error) {
	var rows []domain.TimeOffPeriod
	err := r.db.NewSelect().
		Model(&rows).
		Where("staff_id = ?", staffID).
		Where("status = ?", domain.TimeOffStatusApproved).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) BlockedTimes(ctx context.Context, salonID, staffID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.BlockedTime, error) {
	var rows []domain.BlockedTime
	err := r.db.NewSelect().
		Model(&rows).
		Where("salon_id = ?", salonID).
		Where("is_active").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("staff_id IS NULL").WhereOr("staff_id = ?", staffID)
		}).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
