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

// EventCreateOptions are parameters for creating a calendar event.
type EventCreateOptions struct {
	ID         string
	Title      string
	Category   string
	Start      string
	End        string
	AssigneeID string
	Actor      access.Actor
}

func (e Engine) CreateEvent(ctx context.Context, opts EventCreateOptions) (domain.Event, error) {
	if e.Config == nil {
		return domain.Event{}, errors.New("config not loaded")
	}
	if err := access.RequireAdmin(opts.Actor, "create events"); err != nil {
		return domain.Event{}, err
	}
	if opts.Title == "" {
		return domain.Event{}, validationf("title is required")
	}
	if opts.AssigneeID == "" {
		return domain.Event{}, validationf("assignee is required")
	}
	if !e.Config.CategoryAllowed(opts.Category) {
		return domain.Event{}, validationf("category %q not recognized", opts.Category)
	}
	start, end, err := parseEventWindow(opts.Start, opts.End)
	if err != nil {
		return domain.Event{}, err
	}
	assigneeName, err := e.assigneeSnapshot(ctx, opts.Actor.AccountID, opts.AssigneeID)
	if err != nil {
		return domain.Event{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowRFC3339()
	ev := domain.Event{
		ID:           id,
		AccountID:    opts.Actor.AccountID,
		Title:        opts.Title,
		Category:     opts.Category,
		Start:        start.Format(time.RFC3339),
		End:          end.Format(time.RFC3339),
		AssigneeID:   opts.AssigneeID,
		AssigneeName: assigneeName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertEvent(ctx, tx, ev); err != nil {
		return domain.Event{}, err
	}
	if err := e.Audit.Append(ctx, tx, "event.created", ev.AccountID, "event", ev.ID, opts.Actor.ID, audit.Payload{
		"title":    ev.Title,
		"category": ev.Category,
		"start":    ev.Start,
	}); err != nil {
		return domain.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Event{}, err
	}
	return ev, nil
}

// EventUpdateOptions carries partial changes; nil fields are left untouched.
type EventUpdateOptions struct {
	ID         string
	Title      *string
	Category   *string
	Start      *string
	End        *string
	AssigneeID *string
	Actor      access.Actor
}

func (e Engine) UpdateEvent(ctx context.Context, opts EventUpdateOptions) (domain.Event, error) {
	if e.Config == nil {
		return domain.Event{}, errors.New("config not loaded")
	}
	if err := access.RequireAdmin(opts.Actor, "update events"); err != nil {
		return domain.Event{}, err
	}
	ev, err := e.getAccountEvent(ctx, opts.Actor, opts.ID)
	if err != nil {
		return domain.Event{}, err
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return ev, validationf("title is required")
		}
		ev.Title = *opts.Title
	}
	if opts.Category != nil {
		if !e.Config.CategoryAllowed(*opts.Category) {
			return ev, validationf("category %q not recognized", *opts.Category)
		}
		ev.Category = *opts.Category
	}
	if opts.Start != nil {
		ev.Start = *opts.Start
	}
	if opts.End != nil {
		ev.End = *opts.End
	}
	start, end, err := parseEventWindow(ev.Start, ev.End)
	if err != nil {
		return ev, err
	}
	ev.Start = start.Format(time.RFC3339)
	ev.End = end.Format(time.RFC3339)
	if opts.AssigneeID != nil {
		if *opts.AssigneeID == "" {
			return ev, validationf("assignee is required")
		}
		name, err := e.assigneeSnapshot(ctx, opts.Actor.AccountID, *opts.AssigneeID)
		if err != nil {
			return ev, err
		}
		ev.AssigneeID = *opts.AssigneeID
		ev.AssigneeName = name
	}
	ev.UpdatedAt = e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ev, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateEvent(ctx, tx, ev); err != nil {
		return ev, err
	}
	if err := e.Audit.Append(ctx, tx, "event.updated", ev.AccountID, "event", ev.ID, opts.Actor.ID, audit.Payload{
		"title": ev.Title,
		"start": ev.Start,
	}); err != nil {
		return ev, err
	}
	if err := tx.Commit(); err != nil {
		return ev, err
	}
	return ev, nil
}

func (e Engine) DeleteEvent(ctx context.Context, actor access.Actor, id string) error {
	if err := access.RequireAdmin(actor, "delete events"); err != nil {
		return err
	}
	ev, err := e.getAccountEvent(ctx, actor, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteEvent(ctx, tx, ev.ID); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "event.deleted", ev.AccountID, "event", ev.ID, actor.ID, audit.Payload{"title": ev.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetEvent applies visibility rules: admins see any account event, employees
// only their own assignments.
func (e Engine) GetEvent(ctx context.Context, actor access.Actor, id string) (domain.Event, error) {
	ev, err := e.getAccountEvent(ctx, actor, id)
	if err != nil {
		return domain.Event{}, err
	}
	if !actor.IsAdmin() && ev.AssigneeID != actor.ID {
		return domain.Event{}, access.ForbiddenError{Action: "view this event"}
	}
	return ev, nil
}

// ListEventsForMonth returns the actor's visible events whose start falls in
// the given calendar month, ordered by start ascending. Month is 1-based.
func (e Engine) ListEventsForMonth(ctx context.Context, actor access.Actor, year int, month time.Month) ([]domain.Event, error) {
	if e.Config == nil {
		return nil, errors.New("config not loaded")
	}
	if month < time.January || month > time.December {
		return nil, validationf("month %d out of range", month)
	}
	from, to := monthWindow(year, month)
	f := repo.EventWindowFilters{
		AccountID:  actor.AccountID,
		WindowFrom: from,
		WindowTo:   to,
		Limit:      e.Config.MonthQueryLimit(),
	}
	if !actor.IsAdmin() {
		f.AssigneeID = actor.ID
	}
	return e.Repo.ListEventsInWindow(ctx, f)
}

// monthWindow covers the first instant of the month through the last day at
// 23:59:59 UTC. Day zero of the following month normalizes to the last day.
func monthWindow(year int, month time.Month) (string, string) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, month+1, 0, 23, 59, 59, 0, time.UTC)
	return from.Format(time.RFC3339), to.Format(time.RFC3339)
}

func parseEventWindow(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, validationf("start: invalid RFC3339 timestamp %q", startStr)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, validationf("end: invalid RFC3339 timestamp %q", endStr)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, validationf("end must be after start")
	}
	return start.UTC(), end.UTC(), nil
}

// assigneeSnapshot resolves the display name stored on the event. The name is
// denormalized at write time and never re-synced.
func (e Engine) assigneeSnapshot(ctx context.Context, accountID, assigneeID string) (string, error) {
	u, err := e.Repo.GetUser(ctx, assigneeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", validationf("assignee %s not found", assigneeID)
		}
		return "", err
	}
	if u.AccountID != accountID {
		return "", validationf("assignee %s not found", assigneeID)
	}
	return u.FullName, nil
}

// getAccountEvent loads an event and reports a wrong-tenant hit as an
// authorization failure, distinct from a missing event.
func (e Engine) getAccountEvent(ctx context.Context, actor access.Actor, id string) (domain.Event, error) {
	ev, err := e.Repo.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	if ev.AccountID != actor.AccountID {
		return domain.Event{}, access.ForbiddenError{Action: "access events in another account"}
	}
	return ev, nil
}
