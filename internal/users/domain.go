package users

import (
	"time"

	"github.com/vdstech/sacom/internal/authz"
)

// User represents an account in the identity store. SystemLevel and
// IsSystemUser are derived from the assigned roles at every membership write;
// callers cannot set them independently.
type User struct {
	ID                int64
	Email             string
	Name              string
	CredentialHash    string
	RoleIDs           []int64
	Disabled          bool
	ForceReset        bool
	SystemLevel       authz.Level
	IsSystemUser      bool
	PasswordExpiresAt *time.Time
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
