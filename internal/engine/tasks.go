package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"safetydesk/internal/audit"
	"safetydesk/internal/domain"
	"safetydesk/internal/engine/access"
	"safetydesk/internal/repo"
)

// TaskCreateOptions are parameters for assigning a task.
type TaskCreateOptions struct {
	ID          string
	Title       string
	Description string
	Deadline    string
	AssigneeID  string
	Actor       access.Actor
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if e.Config == nil {
		return domain.Task{}, errors.New("config not loaded")
	}
	if err := access.RequireAdmin(opts.Actor, "create tasks"); err != nil {
		return domain.Task{}, err
	}
	if opts.Title == "" {
		return domain.Task{}, validationf("title is required")
	}
	if opts.AssigneeID == "" {
		return domain.Task{}, validationf("assignee is required")
	}
	if _, err := e.accountUser(ctx, opts.Actor.AccountID, opts.AssigneeID); err != nil {
		return domain.Task{}, err
	}
	if opts.Deadline != "" {
		deadline, err := normalizeDeadline(opts.Deadline)
		if err != nil {
			return domain.Task{}, err
		}
		opts.Deadline = deadline
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowRFC3339()
	t := domain.Task{
		ID:          id,
		AccountID:   opts.Actor.AccountID,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      domain.TaskPending,
		Deadline:    optionalString(opts.Deadline),
		CreatedBy:   opts.Actor.ID,
		AssigneeID:  opts.AssigneeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Audit.Append(ctx, tx, "task.created", t.AccountID, "task", t.ID, opts.Actor.ID, audit.Payload{
		"title":       t.Title,
		"assignee_id": t.AssigneeID,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions carries partial edits to a task. Status may only move
// pending to completed; completion is terminal.
type TaskUpdateOptions struct {
	ID          string
	Title       *string
	Description *string
	Deadline    *string
	AssigneeID  *string
	Status      *string
	Actor       access.Actor
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if err := access.RequireAdmin(opts.Actor, "update tasks"); err != nil {
		return domain.Task{}, err
	}
	t, err := e.getAccountTask(ctx, opts.Actor, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return t, validationf("title is required")
		}
		t.Title = *opts.Title
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Deadline != nil {
		if *opts.Deadline == "" {
			t.Deadline = nil
		} else {
			deadline, err := normalizeDeadline(*opts.Deadline)
			if err != nil {
				return t, err
			}
			t.Deadline = &deadline
		}
	}
	if opts.AssigneeID != nil {
		if *opts.AssigneeID == "" {
			return t, validationf("assignee is required")
		}
		if _, err := e.accountUser(ctx, opts.Actor.AccountID, *opts.AssigneeID); err != nil {
			return t, err
		}
		t.AssigneeID = *opts.AssigneeID
	}
	if opts.Status != nil && *opts.Status != t.Status {
		switch *opts.Status {
		case domain.TaskCompleted:
			now := e.nowRFC3339()
			t.Status = domain.TaskCompleted
			t.CompletedAt = &now
		case domain.TaskPending:
			return t, validationf("a completed task cannot be reopened")
		default:
			return t, validationf("status %q not recognized", *opts.Status)
		}
	}
	t.UpdatedAt = e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Audit.Append(ctx, tx, "task.updated", t.AccountID, "task", t.ID, opts.Actor.ID, audit.Payload{
		"title":       t.Title,
		"assignee_id": t.AssigneeID,
		"status":      t.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, actor access.Actor, id string) error {
	if err := access.RequireAdmin(actor, "delete tasks"); err != nil {
		return err
	}
	t, err := e.getAccountTask(ctx, actor, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
		return err
	}
	if err := e.Audit.Append(ctx, tx, "task.deleted", t.AccountID, "task", t.ID, actor.ID, audit.Payload{"title": t.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// GetTask applies visibility rules: admins see any account task, employees
// only tasks assigned to them.
func (e Engine) GetTask(ctx context.Context, actor access.Actor, id string) (domain.Task, error) {
	t, err := e.getAccountTask(ctx, actor, id)
	if err != nil {
		return domain.Task{}, err
	}
	if !actor.IsAdmin() && t.AssigneeID != actor.ID {
		return domain.Task{}, access.ForbiddenError{Action: "view this task"}
	}
	return t, nil
}

// TaskListOptions narrows ListTasks. Employees are always pinned to their own
// assignments regardless of AssigneeID.
type TaskListOptions struct {
	Status     string
	AssigneeID string
	Sort       string
	Limit      int
	Actor      access.Actor
}

func (e Engine) ListTasks(ctx context.Context, opts TaskListOptions) ([]domain.Task, error) {
	if e.Config == nil {
		return nil, errors.New("config not loaded")
	}
	if opts.Status != "" && opts.Status != domain.TaskPending && opts.Status != domain.TaskCompleted {
		return nil, validationf("status %q not recognized", opts.Status)
	}
	sort := opts.Sort
	if sort == "" {
		sort = e.Config.Tasks.DefaultSort
	}
	sortBy, sortDesc, err := parseTaskSort(sort)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = e.Config.TaskListLimit()
	}
	f := repo.TaskFilters{
		AccountID:  opts.Actor.AccountID,
		Status:     opts.Status,
		AssigneeID: opts.AssigneeID,
		SortBy:     sortBy,
		SortDesc:   sortDesc,
		Limit:      limit,
	}
	if !opts.Actor.IsAdmin() {
		f.AssigneeID = opts.Actor.ID
	}
	return e.Repo.ListTasks(ctx, f)
}

// normalizeDeadline accepts an RFC3339 timestamp or a bare date, which
// anchors to midnight UTC.
func normalizeDeadline(s string) (string, error) {
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return s, nil
	}
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d.UTC().Format(time.RFC3339), nil
	}
	return "", validationf("deadline %q must be RFC3339 or YYYY-MM-DD", s)
}

func parseTaskSort(sort string) (string, bool, error) {
	if sort == "" {
		return "deadline", false, nil
	}
	col, dir, ok := strings.Cut(sort, "-")
	if !ok {
		col, dir = sort, "asc"
	}
	switch col {
	case "deadline", "created_at", "title":
	default:
		return "", false, validationf("sort %q not recognized", sort)
	}
	switch dir {
	case "asc":
		return col, false, nil
	case "desc":
		return col, true, nil
	default:
		return "", false, validationf("sort %q not recognized", sort)
	}
}

// TaskView decorates a task with resolved display names for dashboards.
type TaskView struct {
	domain.Task
	AssigneeName string `json:"assignee_name"`
	CreatorName  string `json:"creator_name"`
}

// ListPendingTasks returns open tasks with assignee and creator names
// resolved. Missing users degrade to configured placeholders instead of
// failing the listing.
func (e Engine) ListPendingTasks(ctx context.Context, actor access.Actor) ([]TaskView, error) {
	tasks, err := e.ListTasks(ctx, TaskListOptions{Status: domain.TaskPending, Actor: actor})
	if err != nil {
		return nil, err
	}
	names := map[string]string{}
	resolve := func(userID, fallback string) string {
		if userID == "" {
			return fallback
		}
		if name, ok := names[userID]; ok {
			return name
		}
		u, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			names[userID] = fallback
			return fallback
		}
		names[userID] = u.FullName
		return u.FullName
	}
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, TaskView{
			Task:         t,
			AssigneeName: resolve(t.AssigneeID, e.Config.PlaceholderAssignee()),
			CreatorName:  resolve(t.CreatedBy, e.Config.PlaceholderCreator()),
		})
	}
	return views, nil
}

// SubmitResult reports the outcome of a submission attempt.
type SubmitResult struct {
	Task             domain.Task
	Submission       domain.TaskSubmission
	AlreadyCompleted bool
}

// SubmitTask records the actor's delivery for a task and completes it. The
// operation is idempotent: a task already completed returns the existing
// submission untouched, and concurrent submits converge on one row through
// the unique (task, submitter) constraint.
func (e Engine) SubmitTask(ctx context.Context, actor access.Actor, taskID, fileID string) (SubmitResult, error) {
	t, err := e.getAccountTask(ctx, actor, taskID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !actor.IsAdmin() && t.AssigneeID != actor.ID {
		return SubmitResult{}, access.ForbiddenError{Action: "submit this task"}
	}
	if fileID == "" {
		return SubmitResult{}, validationf("file is required")
	}
	f, err := e.Repo.GetFileRef(ctx, fileID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return SubmitResult{}, validationf("file %s not found", fileID)
		}
		return SubmitResult{}, err
	}
	if f.AccountID != actor.AccountID {
		return SubmitResult{}, validationf("file %s not found", fileID)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SubmitResult{}, err
	}
	defer tx.Rollback()

	// Re-read inside the tx so a concurrent completion is observed.
	t, err = e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return SubmitResult{}, err
	}
	if t.Status == domain.TaskCompleted {
		sub, err := e.Repo.GetSubmissionForTaskUserTx(ctx, tx, taskID, actor.ID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return SubmitResult{}, err
		}
		return SubmitResult{Task: t, Submission: sub, AlreadyCompleted: true}, nil
	}

	now := e.nowRFC3339()
	sub := domain.TaskSubmission{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		Type:        "file",
		FileID:      fileID,
		SubmittedBy: actor.ID,
		AccountID:   t.AccountID,
		SubmittedAt: now,
	}
	if err := e.Repo.InsertSubmissionTx(ctx, tx, sub); err != nil {
		return SubmitResult{}, err
	}
	// The insert may have been a no-op on conflict; the stored row wins.
	sub, err = e.Repo.GetSubmissionForTaskUserTx(ctx, tx, taskID, actor.ID)
	if err != nil {
		return SubmitResult{}, err
	}
	t.Status = domain.TaskCompleted
	t.UpdatedAt = now
	t.CompletedAt = &now
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return SubmitResult{}, err
	}
	if err := e.Audit.Append(ctx, tx, "task.submitted", t.AccountID, "task", t.ID, actor.ID, audit.Payload{
		"submission_id": sub.ID,
		"file_id":       sub.FileID,
	}); err != nil {
		return SubmitResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Task: t, Submission: sub}, nil
}

// ListTaskSubmissions returns a task's submissions, newest first.
func (e Engine) ListTaskSubmissions(ctx context.Context, actor access.Actor, taskID string) ([]domain.TaskSubmission, error) {
	t, err := e.getAccountTask(ctx, actor, taskID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && t.AssigneeID != actor.ID {
		return nil, access.ForbiddenError{Action: "view submissions for this task"}
	}
	return e.Repo.ListSubmissionsByTask(ctx, taskID, 0)
}

// TaskCounters returns per-status totals for the account dashboard.
func (e Engine) TaskCounters(ctx context.Context, actor access.Actor) (map[string]int, error) {
	if err := access.RequireAdmin(actor, "view task counters"); err != nil {
		return nil, err
	}
	return e.Repo.CountTasksByStatus(ctx, actor.AccountID)
}

func (e Engine) accountUser(ctx context.Context, accountID, userID string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, validationf("user %s not found", userID)
		}
		return domain.User{}, err
	}
	if u.AccountID != accountID {
		return domain.User{}, validationf("user %s not found", userID)
	}
	return u, nil
}

func (e Engine) getAccountTask(ctx context.Context, actor access.Actor, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if t.AccountID != actor.AccountID {
		// Wrong tenant is an authorization failure, kept distinct from a
		// missing task.
		return domain.Task{}, access.ForbiddenError{Action: "access tasks in another account"}
	}
	return t, nil
}
