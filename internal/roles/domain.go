package roles

import (
	"time"

	"github.com/vdstech/sacom/internal/authz"
)

// Role is a named bundle of permission codes carrying a privilege tier.
type Role struct {
	ID            int64
	Name          string
	Description   string
	PermissionIDs []int64
	IsSystemRole  bool
	SystemLevel   authz.Level
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AdminRoleName is the protected role an ADMIN-tier caller may not create,
// rename to, mutate or delete.
const AdminRoleName = "ADMIN"

// SuperAdminRoleName is the role that cannot be assigned through the admin API.
const SuperAdminRoleName = "SUPER_ADMIN"
