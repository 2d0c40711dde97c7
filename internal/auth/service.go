package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vdstech/sacom/internal/permissions"
	"github.com/vdstech/sacom/internal/roles"
	"github.com/vdstech/sacom/internal/security"
	"github.com/vdstech/sacom/internal/sessions"
	"github.com/vdstech/sacom/internal/shared"
	"github.com/vdstech/sacom/internal/tokens"
	"github.com/vdstech/sacom/internal/users"
)

// Service wraps the login, refresh and logout flows. Effective permissions
// are resolved exactly once per login or refresh and snapshotted onto the
// session; requests never walk the permission tree.
type Service struct {
	users    *users.Service
	roles    *roles.Service
	perms    *permissions.Service
	sessions *sessions.Manager
	issuer   *tokens.Issuer
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(userService *users.Service, roleService *roles.Service, permService *permissions.Service, sessionManager *sessions.Manager, issuer *tokens.Issuer, logger *slog.Logger) *Service {
	return &Service{
		users:    userService,
		roles:    roleService,
		perms:    permService,
		sessions: sessionManager,
		issuer:   issuer,
		logger:   logger,
	}
}

// Result carries the outcome of a successful login or refresh.
type Result struct {
	AccessToken   string
	RefreshSecret string
	User          *users.User
	Roles         []roles.Role
	Permissions   []string
}

// Login verifies credentials, resolves the effective-permission snapshot and
// opens a new session. Unknown email and wrong password are indistinguishable
// to the caller.
func (s *Service) Login(ctx context.Context, email, password string, meta sessions.Metadata) (*Result, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Disabled {
		return nil, shared.ErrAccountDisabled
	}

	match, err := security.VerifyPassword(password, user.CredentialHash)
	if err != nil {
		s.logger.Error("verify credential hash", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return nil, shared.ErrInvalidCredentials
	}
	if !match {
		return nil, shared.ErrInvalidCredentials
	}
	if user.ForceReset {
		return nil, shared.ErrPasswordResetRequired
	}

	perms := s.resolvePermissions(ctx, user)
	sess, secret, err := s.sessions.Create(ctx, user.ID, perms, meta)
	if err != nil {
		return nil, err
	}

	token, err := s.issuer.Mint(user.ID, user.IsSystemUser, user.SystemLevel, sess.ID)
	if err != nil {
		return nil, err
	}

	if err := s.users.MarkLogin(ctx, user.ID); err != nil {
		s.logger.Warn("mark last login", slog.Any("error", err))
	}

	assigned, err := s.roles.GetByIDs(ctx, user.RoleIDs)
	if err != nil {
		s.logger.Warn("load roles for login response", slog.Any("error", err))
	}

	return &Result{
		AccessToken:   token,
		RefreshSecret: secret,
		User:          user,
		Roles:         assigned,
		Permissions:   perms,
	}, nil
}

// Refresh rotates the access credential for a live session. The same refresh
// secret stays valid; the permission snapshot is recomputed so role and
// permission changes take effect here.
func (s *Service) Refresh(ctx context.Context, rawSecret string) (*Result, error) {
	sess, err := s.sessions.FindLiveBySecret(ctx, rawSecret)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthorized
		}
		return nil, err
	}

	user, err := s.users.Get(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			if _, err := s.sessions.Revoke(ctx, sess.ID); err != nil {
				s.logger.Warn("revoke orphan session", slog.Any("error", err))
			}
			return nil, shared.ErrUnauthorized
		}
		return nil, err
	}
	if user.Disabled {
		// Disabling a user invalidates every session immediately.
		if _, err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
			s.logger.Warn("revoke sessions for disabled user", slog.Any("error", err))
		}
		return nil, shared.ErrAccountDisabled
	}

	perms := s.resolvePermissions(ctx, user)
	if err := s.sessions.UpdateSnapshot(ctx, sess.ID, perms); err != nil {
		return nil, err
	}

	token, err := s.issuer.Mint(user.ID, user.IsSystemUser, user.SystemLevel, sess.ID)
	if err != nil {
		return nil, err
	}

	assigned, err := s.roles.GetByIDs(ctx, user.RoleIDs)
	if err != nil {
		s.logger.Warn("load roles for refresh response", slog.Any("error", err))
	}

	return &Result{
		AccessToken: token,
		User:        user,
		Roles:       assigned,
		Permissions: perms,
	}, nil
}

// Logout deletes the session bound to the refresh secret. Absent or expired
// sessions are treated as already logged out.
func (s *Service) Logout(ctx context.Context, rawSecret string) (int64, error) {
	sess, err := s.sessions.FindLiveBySecret(ctx, rawSecret)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return s.sessions.Revoke(ctx, sess.ID)
}

// resolvePermissions expands the user's role-linked permission ids into the
// flat effective set. Failures degrade to zero permissions, failing closed.
func (s *Service) resolvePermissions(ctx context.Context, user *users.User) []string {
	direct, err := s.roles.DirectPermissionIDs(ctx, user.RoleIDs)
	if err != nil {
		s.logger.Error("load direct permission ids", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return nil
	}
	return s.perms.EffectiveCodes(ctx, direct)
}
