package sessions

import "time"

// TTL is the durable session lifetime. Sessions past ExpiresAt are treated
// as absent and eligible for removal at any time.
const TTL = 30 * 24 * time.Hour

// Session binds a hashed long-lived refresh secret to a user and the
// effective-permission snapshot computed at login or refresh. The raw secret
// is never persisted.
type Session struct {
	ID                   string
	UserID               int64
	RefreshSecretHash    string
	EffectivePermissions []string
	ExpiresAt            time.Time
	LastSeenAt           time.Time
	UserAgent            string
	IP                   string
	CreatedAt            time.Time
}

// Metadata captures request attributes recorded on the session at login.
type Metadata struct {
	UserAgent string
	IP        string
}
