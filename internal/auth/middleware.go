package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vdstech/sacom/internal/authz"
	"github.com/vdstech/sacom/internal/platform/httpx"
	"github.com/vdstech/sacom/internal/sessions"
	"github.com/vdstech/sacom/internal/shared"
	"github.com/vdstech/sacom/internal/tokens"
)

// Middleware authenticates bearer tokens and enforces permission codes.
// A token that verifies cryptographically is still rejected once its session
// has been revoked: the session store is consulted on every request.
type Middleware struct {
	Issuer   *tokens.Issuer
	Sessions *sessions.Manager
	Logger   *slog.Logger
}

// RequireAuth verifies the access credential, confirms the referenced session
// is live and attaches the identity to the request context.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		claims, err := m.Issuer.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}

		sess, err := m.Sessions.GetLive(r.Context(), claims.SessionID)
		if err != nil {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		if sess.UserID != userID {
			if m.Logger != nil {
				m.Logger.Warn("session user mismatch", slog.Int64("token_user", userID), slog.Int64("session_user", sess.UserID))
			}
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}

		// Best-effort recency stamp; the Manager throttles writes.
		go m.Sessions.Touch(context.Background(), sess.ID)

		identity := &authz.Identity{
			UserID:      userID,
			SystemUser:  claims.SystemUser,
			Level:       authz.ParseLevel(claims.SystemLevel),
			SessionID:   sess.ID,
			Permissions: sess.EffectivePermissions,
		}
		next.ServeHTTP(w, r.WithContext(authz.ContextWithIdentity(r.Context(), identity)))
	})
}

// Require gates a route on the given permission codes via the shared access
// decision procedure. It must run after RequireAuth.
func (m Middleware) Require(codes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := authz.IdentityFromContext(r.Context())
			if identity == nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if err := authz.Decide(identity.Level, identity.Permissions, codes); err != nil {
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
