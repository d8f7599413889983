package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"safetydesk/internal/config"
	"safetydesk/internal/db"
	"safetydesk/internal/domain"
	"safetydesk/internal/engine"
	"safetydesk/internal/engine/access"
	"safetydesk/internal/migrate"
	"safetydesk/internal/repo"
)

type testEnv struct {
	Engine   engine.Engine
	Ctx      context.Context
	Admin    access.Actor
	Employee access.Actor
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("acct-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 11, 15, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitAccount(ctx, "acct-1", "Test Co", "setup"); err != nil {
		t.Fatalf("init account: %v", err)
	}
	admin, err := eng.CreateUser(ctx, engine.UserCreateOptions{
		ID: "user-admin", AccountID: "acct-1", FullName: "Ada Admin", Email: "ada@test.co", Role: domain.RoleAdmin, ActorID: "setup",
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	emp, err := eng.CreateUser(ctx, engine.UserCreateOptions{
		ID: "user-emp", AccountID: "acct-1", FullName: "Evan Employee", Email: "evan@test.co", Role: domain.RoleEmployee, ActorID: "setup",
	})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	return testEnv{
		Engine:   eng,
		Ctx:      ctx,
		Admin:    access.Actor{ID: admin.ID, AccountID: "acct-1", Role: admin.Role, Name: admin.FullName},
		Employee: access.Actor{ID: emp.ID, AccountID: "acct-1", Role: emp.Role, Name: emp.FullName},
	}
}

func (env testEnv) mustFile(t *testing.T, actor access.Actor, name string) domain.FileRef {
	t.Helper()
	f, err := env.Engine.RegisterFile(env.Ctx, actor, name, 1024)
	if err != nil {
		t.Fatalf("register file: %v", err)
	}
	return f
}

func TestCreateEventRejectsInvertedWindow(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateEvent(env.Ctx, engine.EventCreateOptions{
		Title:      "Line inspection",
		Category:   "Inspection",
		Start:      "2025-11-10T10:00:00Z",
		End:        "2025-11-10T09:00:00Z",
		AssigneeID: env.Employee.ID,
		Actor:      env.Admin,
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	// nothing may persist from the rejected create
	events, err := env.Engine.ListEventsForMonth(env.Ctx, env.Admin, 2025, time.November)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events persisted, got %d", len(events))
	}
}

func TestCreateEventRejectsZeroDuration(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateEvent(env.Ctx, engine.EventCreateOptions{
		Title:      "Audit kickoff",
		Category:   "Audit",
		Start:      "2025-11-10T10:00:00Z",
		End:        "2025-11-10T10:00:00Z",
		AssigneeID: env.Employee.ID,
		Actor:      env.Admin,
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for end == start, got %v", err)
	}
}

func TestCreateEventRequiresAssignee(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateEvent(env.Ctx, engine.EventCreateOptions{
		Title:    "Nobody's inspection",
		Category: "Inspection",
		Start:    "2025-11-10T10:00:00Z",
		End:      "2025-11-10T11:00:00Z",
		Actor:    env.Admin,
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for missing assignee, got %v", err)
	}
	_, err = env.Engine.CreateEvent(env.Ctx, engine.EventCreateOptions{
		Title:      "Ghost inspection",
		Category:   "Inspection",
		Start:      "2025-11-10T10:00:00Z",
		End:        "2025-11-10T11:00:00Z",
		AssigneeID: "no-such-user",
		Actor:      env.Admin,
	})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown assignee, got %v", err)
	}
}

func TestCreateEventRejectsUnknownCategory(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateEvent(env.Ctx, engine.EventCreateOptions{
		Title:      "Offsite",
		Category:   "Party",
		Start:      "2025-11-10T10:00:00Z",
		End:        "2025-11-10T11:00:00Z",
		AssigneeID: env.Employee.ID,
		Actor:      env.Admin,
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMonthWindowBoundaries(t *testing.T) {
	env := newTestEnv(t)
	mk := func(title, start, end string) {
		t.Helper()
		_, err := env.Engine.CreateEvent(env.Ctx, engine.EventCreateOptions{
			Title: title, Category: "Inspection", Start: start, End: end,
			AssigneeID: env.Employee.ID, Actor: env.Admin,
		})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mk("first instant", "2025-11-01T00:00:00Z", "2025-11-01T01:00:00Z")
	mk("last day", "2025-11-30T23:59:59Z", "2025-12-01T01:00:00Z")
	mk("october", "2025-10-31T23:59:59Z", "2025-11-01T01:00:00Z")
	mk("december", "2025-12-01T00:00:00Z", "2025-12-01T01:00:00Z")

	events, err := env.Engine.ListEventsForMonth(env.Ctx, env.Admin, 2025, time.November)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 November events, got %d", len(events))
	}
	// ordered by start ascending
	if events[0].Title != "first instant" || events[1].Title != "last day" {
		t.Fatalf("unexpected order: %q, %q", events[0].Title, events[1].Title)
	}
}

func TestEmployeeSeesOnlyOwnEvents(t *testing.T) {
	env := newTestEnv(t)
	other, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{
		AccountID: "acct-1", FullName: "Olga Other", Email: "olga@test.co", ActorID: env.Admin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	mk := func(title, assignee string) {
		t.Helper()
		_, err := env.Engine.CreateEvent(env.Ctx, engine.EventCreateOptions{
			Title: title, Category: "Training",
			Start: "2025-11-05T09:00:00Z", End: "2025-11-05T10:00:00Z",
			AssigneeID: assignee, Actor: env.Admin,
		})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mk("mine", env.Employee.ID)
	mk("theirs", other.ID)

	mine, err := env.Engine.ListEventsForMonth(env.Ctx, env.Employee, 2025, time.November)
	if err != nil {
		t.Fatalf("list as employee: %v", err)
	}
	if len(mine) != 1 || mine[0].Title != "mine" {
		t.Fatalf("expected only own event, got %v", mine)
	}
	all, err := env.Engine.ListEventsForMonth(env.Ctx, env.Admin, 2025, time.November)
	if err != nil {
		t.Fatalf("list as admin: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected admin to see 2 events, got %d", len(all))
	}
}

func TestEmployeeCannotCreateEvents(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateEvent(env.Ctx, engine.EventCreateOptions{
		Title: "Sneaky", Category: "Audit",
		Start: "2025-11-05T09:00:00Z", End: "2025-11-05T10:00:00Z",
		Actor: env.Employee,
	})
	var ferr access.ForbiddenError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSubmitTaskCompletesAndRecordsSubmission(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Check extinguishers", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	file := env.mustFile(t, env.Employee, "report.pdf")

	res, err := env.Engine.SubmitTask(env.Ctx, env.Employee, task.ID, file.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.AlreadyCompleted {
		t.Fatalf("first submit flagged as already completed")
	}
	if res.Task.Status != domain.TaskCompleted {
		t.Fatalf("task status = %q, want completed", res.Task.Status)
	}
	if res.Task.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
	if res.Submission.FileID != file.ID || res.Submission.SubmittedBy != env.Employee.ID {
		t.Fatalf("unexpected submission %+v", res.Submission)
	}
}

func TestSubmitTaskIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Monthly audit", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatal(err)
	}
	first := env.mustFile(t, env.Employee, "audit-v1.pdf")
	second := env.mustFile(t, env.Employee, "audit-v2.pdf")

	res1, err := env.Engine.SubmitTask(env.Ctx, env.Employee, task.ID, first.ID)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	// repeat with a different file: original submission must win untouched
	res2, err := env.Engine.SubmitTask(env.Ctx, env.Employee, task.ID, second.ID)
	if err != nil {
		t.Fatalf("repeat submit: %v", err)
	}
	if !res2.AlreadyCompleted {
		t.Fatalf("repeat submit not flagged already completed")
	}
	if res2.Submission.ID != res1.Submission.ID || res2.Submission.FileID != first.ID {
		t.Fatalf("repeat submit replaced the original submission: %+v", res2.Submission)
	}
	subs, err := env.Engine.ListTaskSubmissions(env.Ctx, env.Admin, task.ID)
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(subs))
	}
}

func TestAdminCompletesTaskByUpdate(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Sign off the drill", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatal(err)
	}
	completed := domain.TaskCompleted
	updated, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, Status: &completed, Actor: env.Admin,
	})
	if err != nil {
		t.Fatalf("complete by update: %v", err)
	}
	if updated.Status != domain.TaskCompleted {
		t.Fatalf("status = %q, want completed", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Fatalf("completed_at not set")
	}
	// completion is terminal
	pending := domain.TaskPending
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, Status: &pending, Actor: env.Admin,
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error reopening, got %v", err)
	}
	bogus := "cancelled"
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: task.ID, Status: &bogus, Actor: env.Admin,
	})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
	// employees cannot drive the transition
	other, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Still mine", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{
		ID: other.ID, Status: &completed, Actor: env.Employee,
	})
	var ferr access.ForbiddenError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected forbidden for employee, got %v", err)
	}
}

func TestTaskDeadlineAcceptsBareDate(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Quarterly report", Deadline: "2025-01-15", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatalf("create with bare date: %v", err)
	}
	if task.Deadline == nil || *task.Deadline != "2025-01-15T00:00:00Z" {
		t.Fatalf("deadline = %v, want midnight UTC", task.Deadline)
	}
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Bad deadline", Deadline: "soon", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentSubmitsConvergeOnOneSubmission(t *testing.T) {
	env := newTestEnv(t)
	// one pooled connection serializes the overlapping transactions instead
	// of surfacing SQLITE_BUSY
	env.Engine.DB.SetMaxOpenConns(1)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Raced", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatal(err)
	}
	fileA := env.mustFile(t, env.Employee, "evidence-a.pdf")
	fileB := env.mustFile(t, env.Employee, "evidence-b.pdf")

	var wg sync.WaitGroup
	results := make([]engine.SubmitResult, 2)
	errs := make([]error, 2)
	start := make(chan struct{})
	for i, fileID := range []string{fileA.ID, fileB.ID} {
		wg.Add(1)
		go func(i int, fileID string) {
			defer wg.Done()
			<-start
			results[i], errs[i] = env.Engine.SubmitTask(env.Ctx, env.Employee, task.ID, fileID)
		}(i, fileID)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if results[0].Submission.ID != results[1].Submission.ID {
		t.Fatalf("submits produced different submissions: %q vs %q",
			results[0].Submission.ID, results[1].Submission.ID)
	}
	already := 0
	for _, r := range results {
		if r.AlreadyCompleted {
			already++
		}
	}
	if already != 1 {
		t.Fatalf("expected exactly one loser, got %d", already)
	}
	subs, err := env.Engine.ListTaskSubmissions(env.Ctx, env.Admin, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected one stored submission, got %d", len(subs))
	}
	got, err := env.Engine.GetTask(env.Ctx, env.Admin, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TaskCompleted {
		t.Fatalf("task status = %q", got.Status)
	}
}

func TestSubmitTaskForbiddenForNonAssignee(t *testing.T) {
	env := newTestEnv(t)
	other, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{
		AccountID: "acct-1", FullName: "Olga Other", Email: "olga@test.co", ActorID: env.Admin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Not yours", AssigneeID: other.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatal(err)
	}
	file := env.mustFile(t, env.Employee, "wrong.pdf")
	_, err = env.Engine.SubmitTask(env.Ctx, env.Employee, task.ID, file.ID)
	var ferr access.ForbiddenError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	got, err := env.Engine.GetTask(env.Ctx, env.Admin, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TaskPending {
		t.Fatalf("task mutated by rejected submit: %q", got.Status)
	}
}

func TestTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.InitAccount(env.Ctx, "acct-2", "Other Co", "setup"); err != nil {
		t.Fatal(err)
	}
	outsider, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{
		AccountID: "acct-2", FullName: "Xena Foreign", Email: "xena@other.co", Role: domain.RoleAdmin, ActorID: "setup",
	})
	if err != nil {
		t.Fatal(err)
	}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Internal", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatal(err)
	}
	foreign := access.Actor{ID: outsider.ID, AccountID: "acct-2", Role: outsider.Role}
	// cross-account lookups are an authorization failure, distinct from not-found
	var forbidden access.ForbiddenError
	if _, err := env.Engine.GetTask(env.Ctx, foreign, task.ID); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden across accounts, got %v", err)
	}
	tasks, err := env.Engine.ListTasks(env.Ctx, engine.TaskListOptions{Actor: foreign})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Fatalf("foreign account sees %d tasks", len(tasks))
	}
}

func TestListPendingTasksPlaceholders(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Orphaned", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatal(err)
	}
	// remove the creator so the name lookup degrades
	if _, err := env.Engine.DB.Exec(`DELETE FROM users WHERE id=?`, env.Admin.ID); err != nil {
		t.Fatal(err)
	}
	views, err := env.Engine.ListPendingTasks(env.Ctx, access.Actor{ID: "ghost", AccountID: "acct-1", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(views) != 1 || views[0].ID != task.ID {
		t.Fatalf("unexpected views %+v", views)
	}
	if views[0].CreatorName != "Admin" {
		t.Fatalf("creator name = %q, want placeholder", views[0].CreatorName)
	}
	if views[0].AssigneeName != "Evan Employee" {
		t.Fatalf("assignee name = %q", views[0].AssigneeName)
	}
}

func TestMonthlyRecordClamping(t *testing.T) {
	env := newTestEnv(t)
	rec, err := env.Engine.UpsertMonthlyRecord(env.Ctx, engine.MonthlyUpsertOptions{
		UserID:                env.Employee.ID,
		Month:                 "2025-11",
		InspectionsProgrammed: 4,
		InspectionsCompleted:  9,
		TrainingProgrammed:    2,
		TrainingCompleted:     1,
		Actor:                 env.Admin,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.InspectionsCompleted != 4 {
		t.Fatalf("inspections completed = %d, want clamped 4", rec.InspectionsCompleted)
	}
	if rec.TrainingCompleted != 1 {
		t.Fatalf("training completed = %d", rec.TrainingCompleted)
	}
	// second write for the same key replaces, not duplicates
	rec2, err := env.Engine.UpsertMonthlyRecord(env.Ctx, engine.MonthlyUpsertOptions{
		UserID:                env.Employee.ID,
		Month:                 "2025-11",
		InspectionsProgrammed: 5,
		InspectionsCompleted:  5,
		Actor:                 env.Admin,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if rec2.ID != rec.ID {
		t.Fatalf("upsert created a new record id")
	}
	list, err := env.Engine.ListMonthlyRecords(env.Ctx, env.Admin, env.Employee.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 record, got %d", len(list))
	}
}

func TestMonthlyRecordValidation(t *testing.T) {
	env := newTestEnv(t)
	var verr engine.ValidationError
	_, err := env.Engine.UpsertMonthlyRecord(env.Ctx, engine.MonthlyUpsertOptions{
		UserID: env.Employee.ID, Month: "November 2025", Actor: env.Admin,
	})
	if !errors.As(err, &verr) {
		t.Fatalf("expected month format error, got %v", err)
	}
	_, err = env.Engine.UpsertMonthlyRecord(env.Ctx, engine.MonthlyUpsertOptions{
		UserID: env.Employee.ID, Month: "2025-11", InspectionsProgrammed: -1, Actor: env.Admin,
	})
	if !errors.As(err, &verr) {
		t.Fatalf("expected negative counter error, got %v", err)
	}
	_, err = env.Engine.UpsertMonthlyRecord(env.Ctx, engine.MonthlyUpsertOptions{
		UserID: env.Employee.ID, Month: "2025-11", Actor: env.Employee,
	})
	var ferr access.ForbiddenError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected forbidden for employee, got %v", err)
	}
}

func TestEmployeeMonthlyRecordsPinnedToSelf(t *testing.T) {
	env := newTestEnv(t)
	other, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{
		AccountID: "acct-1", FullName: "Olga Other", Email: "olga@test.co", ActorID: env.Admin.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, userID := range []string{env.Employee.ID, other.ID} {
		if _, err := env.Engine.UpsertMonthlyRecord(env.Ctx, engine.MonthlyUpsertOptions{
			UserID: userID, Month: "2025-11", InspectionsProgrammed: 1, InspectionsCompleted: 1, Actor: env.Admin,
		}); err != nil {
			t.Fatal(err)
		}
	}
	// an employee asking for someone else's records still gets their own
	list, err := env.Engine.ListMonthlyRecords(env.Ctx, env.Employee, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].UserID != env.Employee.ID {
		t.Fatalf("employee listing leaked records: %+v", list)
	}
}

func TestAuditTrailWrittenWithMutations(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Audited", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatal(err)
	}
	file := env.mustFile(t, env.Employee, "proof.pdf")
	if _, err := env.Engine.SubmitTask(env.Ctx, env.Employee, task.ID, file.ID); err != nil {
		t.Fatal(err)
	}
	entries, err := env.Engine.Repo.LatestAuditEntries(env.Ctx, repo.AuditFilters{
		AccountID: "acct-1", EntityKind: "task", EntityID: task.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected task.created and task.submitted, got %d entries", len(entries))
	}
	if entries[0].Type != "task.submitted" || entries[1].Type != "task.created" {
		t.Fatalf("unexpected entry types %q, %q", entries[0].Type, entries[1].Type)
	}
	if entries[0].ActorID != env.Employee.ID {
		t.Fatalf("submit attributed to %q", entries[0].ActorID)
	}
}

func TestTaskCountersAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "One", AssigneeID: env.Employee.ID, Actor: env.Admin,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title: "Two", AssigneeID: env.Employee.ID, Actor: env.Admin,
	}); err != nil {
		t.Fatal(err)
	}
	file := env.mustFile(t, env.Employee, "one.pdf")
	if _, err := env.Engine.SubmitTask(env.Ctx, env.Employee, task.ID, file.ID); err != nil {
		t.Fatal(err)
	}
	counts, err := env.Engine.TaskCounters(env.Ctx, env.Admin)
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.TaskPending] != 1 || counts[domain.TaskCompleted] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	_, err = env.Engine.TaskCounters(env.Ctx, env.Employee)
	var ferr access.ForbiddenError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected forbidden for employee, got %v", err)
	}
}
