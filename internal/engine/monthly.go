package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"safetydesk/internal/audit"
	"safetydesk/internal/domain"
	"safetydesk/internal/engine/access"
	"safetydesk/internal/repo"
)

// MonthlyUpsertOptions carries one month's counters for a user.
type MonthlyUpsertOptions struct {
	UserID                string
	Month                 string
	InspectionsProgrammed int
	InspectionsCompleted  int
	TrainingProgrammed    int
	TrainingCompleted     int
	Actor                 access.Actor
}

// UpsertMonthlyRecord writes the counters for (user, month), creating or
// replacing the record. Completed counters are clamped to their programmed
// pair so a record can never report more done than planned.
func (e Engine) UpsertMonthlyRecord(ctx context.Context, opts MonthlyUpsertOptions) (domain.MonthlyRecord, error) {
	if err := access.RequireAdmin(opts.Actor, "manage monthly records"); err != nil {
		return domain.MonthlyRecord{}, err
	}
	if _, err := time.Parse("2006-01", opts.Month); err != nil {
		return domain.MonthlyRecord{}, validationf("month %q must be YYYY-MM", opts.Month)
	}
	if opts.InspectionsProgrammed < 0 || opts.InspectionsCompleted < 0 ||
		opts.TrainingProgrammed < 0 || opts.TrainingCompleted < 0 {
		return domain.MonthlyRecord{}, validationf("counters must not be negative")
	}
	if _, err := e.accountUser(ctx, opts.Actor.AccountID, opts.UserID); err != nil {
		return domain.MonthlyRecord{}, err
	}
	m := domain.MonthlyRecord{
		AccountID:             opts.Actor.AccountID,
		UserID:                opts.UserID,
		Month:                 opts.Month,
		InspectionsProgrammed: opts.InspectionsProgrammed,
		InspectionsCompleted:  clamp(opts.InspectionsCompleted, opts.InspectionsProgrammed),
		TrainingProgrammed:    opts.TrainingProgrammed,
		TrainingCompleted:     clamp(opts.TrainingCompleted, opts.TrainingProgrammed),
		UpdatedAt:             e.nowRFC3339(),
	}
	existing, err := e.Repo.GetMonthlyRecordForKey(ctx, m.AccountID, m.UserID, m.Month)
	switch {
	case err == nil:
		m.ID = existing.ID
	case errors.Is(err, repo.ErrNotFound):
		m.ID = uuid.New().String()
	default:
		return domain.MonthlyRecord{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MonthlyRecord{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertMonthlyRecord(ctx, tx, m); err != nil {
		return domain.MonthlyRecord{}, err
	}
	if err := e.Audit.Append(ctx, tx, "monthly.upserted", m.AccountID, "monthly_record", m.ID, opts.Actor.ID, audit.Payload{
		"user_id": m.UserID,
		"month":   m.Month,
	}); err != nil {
		return domain.MonthlyRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.MonthlyRecord{}, err
	}
	return m, nil
}

func clamp(completed, programmed int) int {
	if completed > programmed {
		return programmed
	}
	return completed
}

func (e Engine) GetMonthlyRecord(ctx context.Context, actor access.Actor, id string) (domain.MonthlyRecord, error) {
	m, err := e.Repo.GetMonthlyRecord(ctx, id)
	if err != nil {
		return domain.MonthlyRecord{}, err
	}
	if m.AccountID != actor.AccountID {
		return domain.MonthlyRecord{}, access.ForbiddenError{Action: "access records in another account"}
	}
	if err := access.RequireSelfOrAdmin(actor, m.UserID, "view this monthly record"); err != nil {
		return domain.MonthlyRecord{}, err
	}
	return m, nil
}

// ListMonthlyRecords returns records for the account; employees see only
// their own, admins may filter by user.
func (e Engine) ListMonthlyRecords(ctx context.Context, actor access.Actor, userID string) ([]domain.MonthlyRecord, error) {
	if !actor.IsAdmin() {
		userID = actor.ID
	}
	return e.Repo.ListMonthlyRecords(ctx, actor.AccountID, userID)
}

func (e Engine) DeleteMonthlyRecord(ctx context.Context, actor access.Actor, id string) error {
	if err := access.RequireAdmin(actor, "manage monthly records"); err != nil {
		return err
	}
	m, err := e.Repo.GetMonthlyRecord(ctx, id)
	if err != nil {
		return err
	}
	if m.AccountID != actor.AccountID {
		return access.ForbiddenError{Action: "access records in another account"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteMonthlyRecord(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "monthly.deleted", m.AccountID, "monthly_record", m.ID, actor.ID, audit.Payload{
		"user_id": m.UserID,
		"month":   m.Month,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
