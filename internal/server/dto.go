package server

import (
	"safetydesk/internal/config"
	"safetydesk/internal/domain"
	"safetydesk/internal/engine"
)

// Request payloads

type CreateUserRequest struct {
	ID       *string `json:"id,omitempty"`
	FullName string  `json:"full_name"`
	Email    string  `json:"email" format:"email"`
	Role     string  `json:"role,omitempty" enum:"admin,employee"`
	Avatar   *string `json:"avatar,omitempty"`
}

type CreateEventRequest struct {
	ID         *string `json:"id,omitempty"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Start      string  `json:"start" format:"date-time"`
	End        string  `json:"end" format:"date-time"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

type UpdateEventRequest struct {
	Title      *string `json:"title,omitempty"`
	Category   *string `json:"category,omitempty"`
	Start      *string `json:"start,omitempty" format:"date-time"`
	End        *string `json:"end,omitempty" format:"date-time"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

type CreateTaskRequest struct {
	ID          *string `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Deadline    *string `json:"deadline,omitempty" example:"2025-01-15"`
	AssigneeID  string  `json:"assignee_id"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Deadline    *string `json:"deadline,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	Status      *string `json:"status,omitempty" enum:"pending,completed"`
}

type SubmitTaskRequest struct {
	FileID string `json:"file_id"`
}

// Counters are optional and default to zero so a record can be seeded with
// only the fields that apply.
type UpsertMonthlyRequest struct {
	UserID                string `json:"user_id"`
	Month                 string `json:"month" example:"2025-11"`
	InspectionsProgrammed int    `json:"inspections_programmed,omitempty"`
	InspectionsCompleted  int    `json:"inspections_completed,omitempty"`
	TrainingProgrammed    int    `json:"training_programmed,omitempty"`
	TrainingCompleted     int    `json:"training_completed,omitempty"`
}

type RegisterFileRequest struct {
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

type DevLoginRequest struct {
	Email string `json:"email" format:"email"`
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Role      string `json:"role" enum:"admin,employee"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	Start        string `json:"start" format:"date-time"`
	End          string `json:"end" format:"date-time"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	AssigneeName string `json:"assignee_name"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type TaskResponse struct {
	ID          string  `json:"id"`
	AccountID   string  `json:"account_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Status      string  `json:"status" enum:"pending,completed"`
	Deadline    *string `json:"deadline,omitempty" format:"date-time"`
	CreatedBy   string  `json:"created_by"`
	AssigneeID  string  `json:"assignee_id"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

type TaskViewResponse struct {
	TaskResponse
	AssigneeName string `json:"assignee_name"`
	CreatorName  string `json:"creator_name"`
}

type SubmissionResponse struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Type        string `json:"type"`
	FileID      string `json:"file_id"`
	SubmittedBy string `json:"submitted_by"`
	SubmittedAt string `json:"submitted_at" format:"date-time"`
}

type SubmitResultResponse struct {
	Task             TaskResponse       `json:"task"`
	Submission       SubmissionResponse `json:"submission"`
	AlreadyCompleted bool               `json:"already_completed"`
}

type MonthlyRecordResponse struct {
	ID                    string `json:"id"`
	AccountID             string `json:"account_id"`
	UserID                string `json:"user_id"`
	Month                 string `json:"month"`
	InspectionsProgrammed int    `json:"inspections_programmed"`
	InspectionsCompleted  int    `json:"inspections_completed"`
	TrainingProgrammed    int    `json:"training_programmed"`
	TrainingCompleted     int    `json:"training_completed"`
	UpdatedAt             string `json:"updated_at" format:"date-time"`
}

type FileResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type AuditEntryResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	AccountID  string `json:"account_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type WhoAmIResponse struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	Source    string `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type AccountConfigResponse struct {
	Account struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"account"`
	Calendar struct {
		Categories map[string]struct {
			Description string `json:"description"`
		} `json:"categories"`
		MonthQueryLimit int `json:"month_query_limit"`
	} `json:"calendar"`
	Tasks struct {
		ListLimit           int    `json:"list_limit"`
		DefaultSort         string `json:"default_sort"`
		PlaceholderAssignee string `json:"placeholder_assignee"`
		PlaceholderCreator  string `json:"placeholder_creator"`
	} `json:"tasks"`
}

type paginatedAudit struct {
	Items      []AuditEntryResponse `json:"items"`
	NextCursor int64                `json:"next_cursor,omitempty"`
}

// Conversion helpers

func userResponse(u domain.User) UserResponse {
	return UserResponse(u)
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse(e)
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse(t)
}

func taskViewResponse(v engine.TaskView) TaskViewResponse {
	return TaskViewResponse{
		TaskResponse: taskResponse(v.Task),
		AssigneeName: v.AssigneeName,
		CreatorName:  v.CreatorName,
	}
}

func submissionResponse(s domain.TaskSubmission) SubmissionResponse {
	return SubmissionResponse{
		ID:          s.ID,
		TaskID:      s.TaskID,
		Type:        s.Type,
		FileID:      s.FileID,
		SubmittedBy: s.SubmittedBy,
		SubmittedAt: s.SubmittedAt,
	}
}

func monthlyResponse(m domain.MonthlyRecord) MonthlyRecordResponse {
	return MonthlyRecordResponse(m)
}

func fileResponse(f domain.FileRef) FileResponse {
	return FileResponse(f)
}

func auditEntryResponse(e domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse(e)
}

func configResponse(cfg *config.Config) AccountConfigResponse {
	var res AccountConfigResponse
	res.Account.ID = cfg.Account.ID
	res.Account.Name = cfg.Account.Name
	res.Calendar.Categories = map[string]struct {
		Description string `json:"description"`
	}{}
	for k, v := range cfg.Calendar.Categories {
		res.Calendar.Categories[k] = struct {
			Description string `json:"description"`
		}{Description: v.Description}
	}
	res.Calendar.MonthQueryLimit = cfg.MonthQueryLimit()
	res.Tasks.ListLimit = cfg.TaskListLimit()
	res.Tasks.DefaultSort = cfg.Tasks.DefaultSort
	res.Tasks.PlaceholderAssignee = cfg.PlaceholderAssignee()
	res.Tasks.PlaceholderCreator = cfg.PlaceholderCreator()
	return res
}

func mapUsers(items []domain.User) []UserResponse {
	res := make([]UserResponse, 0, len(items))
	for _, u := range items {
		res = append(res, userResponse(u))
	}
	return res
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, eventResponse(e))
	}
	return res
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func mapTaskViews(items []engine.TaskView) []TaskViewResponse {
	res := make([]TaskViewResponse, 0, len(items))
	for _, v := range items {
		res = append(res, taskViewResponse(v))
	}
	return res
}

func mapSubmissions(items []domain.TaskSubmission) []SubmissionResponse {
	res := make([]SubmissionResponse, 0, len(items))
	for _, s := range items {
		res = append(res, submissionResponse(s))
	}
	return res
}

func mapMonthly(items []domain.MonthlyRecord) []MonthlyRecordResponse {
	res := make([]MonthlyRecordResponse, 0, len(items))
	for _, m := range items {
		res = append(res, monthlyResponse(m))
	}
	return res
}

func mapAuditEntries(items []domain.AuditEntry) []AuditEntryResponse {
	res := make([]AuditEntryResponse, 0, len(items))
	for _, e := range items {
		res = append(res, auditEntryResponse(e))
	}
	return res
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
