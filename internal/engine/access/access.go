package access

import "fmt"

// Actor is the authenticated principal a request runs as.
type Actor struct {
	ID        string
	AccountID string
	Role      string
	Name      string
}

func (a Actor) IsAdmin() bool {
	return a.Role == "admin"
}

// ForbiddenError indicates the actor exists and the resource exists, but the
// actor's role does not allow the action. Distinct from a not-found lookup.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// RequireAdmin rejects non-admin actors.
func RequireAdmin(a Actor, action string) error {
	if !a.IsAdmin() {
		return ForbiddenError{Action: action}
	}
	return nil
}

// RequireSelfOrAdmin allows admins, or the actor acting on their own records.
func RequireSelfOrAdmin(a Actor, userID, action string) error {
	if a.IsAdmin() || a.ID == userID {
		return nil
	}
	return ForbiddenError{Action: action}
}
