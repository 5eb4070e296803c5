package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"shearbook/backend/internal/domain"
	"shearbook/backend/internal/store"
)

func TestPostgresIntegration_CalendarCreateOverlapAndIdempotency(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("SHEARBOOK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("SHEARBOOK_TEST_DATABASE_URL not set")
	}

	db, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "shearbook_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Schema and migrations are committed up front; a constraint violation
	// later only aborts its own transaction.
	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + schema + ", public").Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	salonID := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	staffID := uuid.MustParse("00000000-0000-0000-0000-0000000000bb")
	customerID := uuid.MustParse("00000000-0000-0000-0000-0000000000cc")
	serviceID := uuid.MustParse("00000000-0000-0000-0000-0000000000dd")

	repo := NewAppointmentRepo(db)
	create := func(appt domain.Appointment) (domain.Appointment, error) {
		var out domain.Appointment
		err := repo.InStaffTransaction(ctx, appt.StaffID, func(ctx context.Context, tx store.CalendarTx) error {
			created, err := tx.CreateAppointment(ctx, appt)
			if err != nil {
				return err
			}
			out = created
			return nil
		})
		return out, err
	}

	start := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	base := domain.Appointment{
		SalonID:    salonID,
		StaffID:    staffID,
		CustomerID: customerID,
		ServiceIDs: []uuid.UUID{serviceID},
		StartTime:  start,
		EndTime:    end,
	}

	a1 := base
	a1.ID = uuid.MustParse("00000000-0000-0000-0000-000000000901")
	created, err := create(a1)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if created.Status != domain.AppointmentStatusPending {
		t.Fatalf("status = %s, want pending", created.Status)
	}

	rows, err := repo.ListOccupying(ctx, staffID, start.Add(-time.Minute), end.Add(time.Minute))
	if err != nil {
		t.Fatalf("ListOccupying error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != created.ID {
		t.Fatalf("occupying rows = %v, want the created appointment", rows)
	}

	// The exclusion constraint rejects an overlap for the same staff.
	overlap := base
	overlap.ID = uuid.MustParse("00000000-0000-0000-0000-000000000902")
	overlap.StartTime = start.Add(15 * time.Minute)
	overlap.EndTime = end.Add(15 * time.Minute)
	if _, err := create(overlap); err != store.ErrConflict {
		t.Fatalf("overlap err = %v, want %v", err, store.ErrConflict)
	}

	// A different staff member can hold the same interval.
	otherStaff := base
	otherStaff.ID = uuid.MustParse("00000000-0000-0000-0000-000000000903")
	otherStaff.StaffID = uuid.MustParse("00000000-0000-0000-0000-0000000000be")
	if _, err := create(otherStaff); err != nil {
		t.Fatalf("other staff err = %v", err)
	}

	// Back-to-back: tstzrange is half-open, a booking starting at the
	// previous end does not collide.
	next := base
	next.ID = uuid.MustParse("00000000-0000-0000-0000-000000000904")
	next.StartTime = end
	next.EndTime = end.Add(30 * time.Minute)
	if _, err := create(next); err != nil {
		t.Fatalf("back-to-back err = %v", err)
	}

	// Idempotent replay of the same id and interval returns the row.
	replayed, err := create(a1)
	if err != nil {
		t.Fatalf("replay err = %v", err)
	}
	if replayed.ID != created.ID {
		t.Fatalf("replay id = %s, want %s", replayed.ID, created.ID)
	}

	// Same id, different interval: key misuse.
	misuse := a1
	misuse.StartTime = start.Add(2 * time.Hour)
	misuse.EndTime = end.Add(2 * time.Hour)
	if _, err := create(misuse); err != store.ErrIdempotencyConflict {
		t.Fatalf("idempotency err = %v, want %v", err, store.ErrIdempotencyConflict)
	}

	// Cancelling frees the interval for a new booking.
	cancelledAt := time.Now().UTC()
	err = repo.InStaffTransaction(ctx, staffID, func(ctx context.Context, tx store.CalendarTx) error {
		updated, err := tx.UpdateAppointmentStatus(ctx, created.ID, store.StatusChange{
			Status:      domain.AppointmentStatusCancelled,
			Reason:      "customer called",
			CancelledAt: &cancelledAt,
		})
		if err != nil {
			return err
		}
		if updated.CancelledAt == nil || updated.CancellationReason != "customer called" {
			return fmt.Errorf("cancellation fields not persisted: %+v", updated)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("cancel error: %v", err)
	}
	rebook := base
	rebook.ID = uuid.MustParse("00000000-0000-0000-0000-000000000905")
	if _, err := create(rebook); err != nil {
		t.Fatalf("rebooking freed interval err = %v", err)
	}

	// Moving the rebooked appointment onto the back-to-back slot collides.
	err = repo.InStaffTransaction(ctx, staffID, func(ctx context.Context, tx store.CalendarTx) error {
		_, err := tx.UpdateAppointmentTimes(ctx, rebook.ID, next.StartTime, next.EndTime)
		return err
	})
	if err != store.ErrConflict {
		t.Fatalf("reschedule overlap err = %v, want %v", err, store.ErrConflict)
	}

	if _, err := repo.Get(ctx, uuid.MustParse("00000000-0000-0000-0000-000000000999")); err != store.ErrNotFound {
		t.Fatalf("missing row err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestPostgresIntegration_ScheduleAndCatalogReads(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("SHEARBOOK_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("SHEARBOOK_TEST_DATABASE_URL not set")
	}

	db, err := Open(databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "shearbook_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	salonID := uuid.New()
	staffID := uuid.New()
	day := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema + ", public").Exec(ctx); err != nil {
			return err
		}
		if err := applyMigrations(ctx, tx); err != nil {
			return err
		}

		rule := domain.WorkingHourRule{
			SalonID:     salonID,
			StaffID:     staffID,
			DayOfWeek:   time.Saturday,
			StartMinute: 9 * 60,
			EndMinute:   17 * 60,
			IsActive:    true,
		}
		if _, err := tx.NewInsert().Model(&rule).Exec(ctx); err != nil {
			return err
		}
		inactive := rule
		inactive.ID = uuid.Nil
		inactive.IsActive = false
		if _, err := tx.NewInsert().Model(&inactive).Exec(ctx); err != nil {
			return err
		}

		pendingOff := domain.TimeOffPeriod{
			SalonID:   salonID,
			StaffID:   staffID,
			StartTime: day.Add(13 * time.Hour),
			EndTime:   day.Add(14 * time.Hour),
			Status:    domain.TimeOffStatusPending,
		}
		if _, err := tx.NewInsert().Model(&pendingOff).Exec(ctx); err != nil {
			return err
		}
		approvedOff := pendingOff
		approvedOff.ID = uuid.Nil
		approvedOff.Status = domain.TimeOffStatusApproved
		if _, err := tx.NewInsert().Model(&approvedOff).Exec(ctx); err != nil {
			return err
		}

		salonBlock := domain.BlockedTime{
			SalonID:   salonID,
			StartTime: day.Add(11 * time.Hour),
			EndTime:   day.Add(12 * time.Hour),
			IsActive:  true,
		}
		if _, err := tx.NewInsert().Model(&salonBlock).Exec(ctx); err != nil {
			return err
		}

		svc := domain.Service{
			SalonID:         salonID,
			Name:            "Haircut",
			DurationMinutes: 30,
			IsActive:        true,
		}
		if _, err := tx.NewInsert().Model(&svc).Exec(ctx); err != nil {
			return err
		}

		// Read through the transaction so the throwaway schema is visible.
		schedule := NewScheduleRepo(tx)
		catalog := NewCatalogRepo(tx)

		rules, err := schedule.WorkingHours(ctx, staffID)
		if err != nil {
			return err
		}
		if len(rules) != 1 {
			return fmt.Errorf("rules = %d, want 1 active", len(rules))
		}

		off, err := schedule.ApprovedTimeOff(ctx, staffID, day, day.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		if len(off) != 1 || off[0].Status != domain.TimeOffStatusApproved {
			return fmt.Errorf("time off = %v, want one approved period", off)
		}

		blocks, err := schedule.BlockedTimes(ctx, salonID, staffID, day, day.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		if len(blocks) != 1 {
			return fmt.Errorf("blocks = %d, want 1", len(blocks))
		}

		svcs, err := catalog.Services(ctx, []uuid.UUID{svc.ID})
		if err != nil {
			return err
		}
		if len(svcs) != 1 || svcs[0].Name != "Haircut" {
			return fmt.Errorf("services = %v", svcs)
		}

		if _, err := catalog.SalonSettings(ctx, salonID); err != store.ErrNotFound {
			return fmt.Errorf("settings err = %v, want %v", err, store.ErrNotFound)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		for _, stmt := range splitSQLStatements(upSQL) {
			if normalized, ok := normalizeExtensionStatement(stmt); ok {
				stmt = normalized
			}
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return fmt.Errorf("apply %s: %w", m.name, err)
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

// CREATE EXTENSION cannot target a transaction-local schema, so pin
// btree_gist to public where the exclusion constraint can find it.
func normalizeExtensionStatement(stmt string) (string, bool) {
	s := strings.TrimSpace(stmt)
	upper := strings.ToUpper(s)
	if !strings.HasPrefix(upper, "CREATE EXTENSION") {
		return "", false
	}
	if !strings.Contains(upper, "BTREE_GIST") {
		return "", false
	}
	if strings.Contains(upper, " SCHEMA ") {
		return "", false
	}
	return s + " SCHEMA public", true
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
