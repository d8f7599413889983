package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"safetydesk/internal/audit"
	"safetydesk/internal/config"
	"safetydesk/internal/domain"
	"safetydesk/internal/engine/access"
	"safetydesk/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Audit  audit.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Audit:  audit.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ValidationError marks input that fails domain rules, as opposed to
// infrastructure failures.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func validationf(format string, args ...any) error {
	return ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InitAccount creates an account plus its default stored config.
func (e Engine) InitAccount(ctx context.Context, accountID, name, actorID string) (domain.Account, error) {
	if accountID == "" {
		return domain.Account{}, validationf("account id is required")
	}
	a := domain.Account{
		ID:        accountID,
		Name:      name,
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO accounts(id,name,created_at) VALUES (?,?,?)`,
		a.ID, a.Name, a.CreatedAt); err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	if err := e.Repo.UpsertAccountConfigTx(ctx, tx, a.ID, config.Default(a.ID)); err != nil {
		return domain.Account{}, fmt.Errorf("insert account config: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "account.init", a.ID, "account", a.ID, actorID, audit.Payload{"name": a.Name}); err != nil {
		return domain.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// UserCreateOptions are parameters for adding a directory user.
type UserCreateOptions struct {
	ID        string
	AccountID string
	FullName  string
	Email     string
	Role      string
	Avatar    string
	ActorID   string
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	if opts.FullName == "" {
		return domain.User{}, validationf("full name is required")
	}
	if opts.Email == "" {
		return domain.User{}, validationf("email is required")
	}
	if opts.Role == "" {
		opts.Role = domain.RoleEmployee
	}
	if opts.Role != domain.RoleAdmin && opts.Role != domain.RoleEmployee {
		return domain.User{}, validationf("role %q not recognized", opts.Role)
	}
	if _, err := e.Repo.GetAccount(ctx, opts.AccountID); err != nil {
		return domain.User{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	u := domain.User{
		ID:        id,
		AccountID: opts.AccountID,
		FullName:  opts.FullName,
		Email:     opts.Email,
		Role:      opts.Role,
		Avatar:    opts.Avatar,
		CreatedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO users(id,account_id,full_name,email,role,avatar,created_at) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.AccountID, u.FullName, u.Email, u.Role, nullable(u.Avatar), u.CreatedAt); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "user.created", u.AccountID, "user", u.ID, opts.ActorID, audit.Payload{
		"full_name": u.FullName,
		"role":      u.Role,
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ListUsers returns the account directory visible to the actor.
func (e Engine) ListUsers(ctx context.Context, actor access.Actor) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx, actor.AccountID, 0)
}

// RegisterFile records an uploaded file reference owned by the actor.
func (e Engine) RegisterFile(ctx context.Context, actor access.Actor, name string, size int64) (domain.FileRef, error) {
	if name == "" {
		return domain.FileRef{}, validationf("file name is required")
	}
	if size < 0 {
		return domain.FileRef{}, validationf("file size must not be negative")
	}
	f := domain.FileRef{
		ID:        uuid.New().String(),
		AccountID: actor.AccountID,
		OwnerID:   actor.ID,
		Name:      name,
		Size:      size,
		CreatedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertFileRef(ctx, f); err != nil {
		return domain.FileRef{}, err
	}
	return f, nil
}

// CreateAPIKey mints a key for a user and returns the raw secret once.
// Only the sha256 hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		return domain.APIKey{}, "", err
	}
	raw := "sd_" + uuid.New().String()
	k := domain.APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertAPIKey(ctx, k); err != nil {
		return domain.APIKey{}, "", err
	}
	return k, raw, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
