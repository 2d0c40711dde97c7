// Package authz holds the access decision procedure shared by every service
// that enforces permission codes. The rules here are the single source of
// truth for tier bypass and the permission self-management hard-deny set;
// collaborator services must use this package rather than re-deriving them.
package authz

import (
	"strings"

	"github.com/vdstech/sacom/internal/shared"
)

// Level is the privilege tier attached to roles and users.
type Level string

const (
	LevelNone  Level = "NONE"
	LevelAdmin Level = "ADMIN"
	LevelSuper Level = "SUPER"
)

// ParseLevel normalizes a stored tier value, defaulting to NONE.
func ParseLevel(raw string) Level {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(LevelAdmin):
		return LevelAdmin
	case string(LevelSuper):
		return LevelSuper
	default:
		return LevelNone
	}
}

// Rank orders tiers so the highest across a user's roles can be derived.
func (l Level) Rank() int {
	switch l {
	case LevelSuper:
		return 2
	case LevelAdmin:
		return 1
	default:
		return 0
	}
}

// Max returns the higher of two tiers.
func Max(a, b Level) Level {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Core permission codes enforced by the auth service itself.
const (
	PermRoleRead   = "role:read"
	PermRoleCreate = "role:create"
	PermRoleUpdate = "role:update"
	PermRoleDelete = "role:delete"

	PermPermissionRead   = "permission:read"
	PermPermissionCreate = "permission:create"
	PermPermissionUpdate = "permission:update"
	PermPermissionDelete = "permission:delete"
	PermPermissionWrite  = "permission:write"

	PermUserRead   = "user:read"
	PermUserWrite  = "user:write"
	PermUserDelete = "user:delete"
)

const permissionNamespace = "permission:"

// adminPermissionDeny lists the codes an ADMIN tier may never exercise,
// regardless of what its roles grant. This blocks an ADMIN from granting
// itself new permissions.
var adminPermissionDeny = map[string]struct{}{
	PermPermissionCreate: {},
	PermPermissionUpdate: {},
	PermPermissionDelete: {},
	PermPermissionWrite:  {},
}

// Decide applies the access rules for a resolved identity against the
// required permission codes. Snapshot is the flattened effective-permission
// set computed at login or refresh; it is only consulted for the NONE tier.
// A nil return means allow.
func Decide(level Level, snapshot []string, required []string) error {
	if len(required) == 0 {
		return nil
	}

	if level == LevelSuper {
		return nil
	}

	if level == LevelAdmin {
		for _, code := range required {
			if _, denied := adminPermissionDeny[code]; denied {
				return shared.ErrForbidden
			}
		}
		allRead := true
		for _, code := range required {
			if code != PermPermissionRead {
				allRead = false
				break
			}
		}
		if allRead {
			return nil
		}
		for _, code := range required {
			if strings.HasPrefix(code, permissionNamespace) {
				return shared.ErrForbidden
			}
		}
		// ADMIN bypasses ordinary domain checks outside the permission namespace.
		return nil
	}

	granted := make(map[string]struct{}, len(snapshot))
	for _, code := range snapshot {
		granted[code] = struct{}{}
	}
	for _, code := range required {
		if _, ok := granted[code]; !ok {
			return shared.ErrForbidden
		}
	}
	return nil
}
