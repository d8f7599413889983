package domain

// Roles for directory users.
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// Task statuses. Completed is terminal.
const (
	TaskPending   = "pending"
	TaskCompleted = "completed"
)

type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Role      string `json:"role" enum:"admin,employee"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Event is a calendar entry assigned to one employee. AssigneeName is a
// display snapshot taken at creation time and is never re-synced.
type Event struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	Start        string `json:"start" format:"date-time"`
	End          string `json:"end" format:"date-time"`
	AssigneeID   string `json:"assignee_id"`
	AssigneeName string `json:"assignee_name"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

type Task struct {
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

// TaskSubmission records one employee's delivery for a task. At most one row
// exists per (task, submitter); repeat submits reuse the original row.
type TaskSubmission struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Type        string `json:"type"`
	FileID      string `json:"file_id"`
	SubmittedBy string `json:"submitted_by"`
	AccountID   string `json:"account_id"`
	SubmittedAt string `json:"submitted_at" format:"date-time"`
}

// MonthlyRecord keeps per-user counters for one month ("YYYY-MM").
// Completed counters are clamped to their programmed pair on write.
type MonthlyRecord struct {
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

// FileRef is an opaque reference to an uploaded file. Content lives elsewhere.
type FileRef struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// AuditEntry is one row of the append-only mutation log.
type AuditEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	AccountID  string `json:"account_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
