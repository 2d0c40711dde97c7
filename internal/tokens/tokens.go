// Package tokens mints and verifies the short-lived signed access credential.
// A verifying token is only a capability to look up its session: callers must
// still confirm session liveness before trusting the claims.
package tokens

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vdstech/sacom/internal/authz"
)

var (
	// ErrTokenExpired indicates a cryptographically valid but expired token.
	ErrTokenExpired = errors.New("tokens: token expired")
	// ErrTokenInvalid indicates a bad signature or unexpected signing method.
	ErrTokenInvalid = errors.New("tokens: invalid token")
	// ErrTokenMalformed indicates a token that is not a well-formed JWT.
	ErrTokenMalformed = errors.New("tokens: malformed token")
)

// Claims is the access credential payload.
type Claims struct {
	SystemUser  bool   `json:"systemUser"`
	SystemLevel string `json:"systemLevel"`
	SessionID   string `json:"sessionId"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrTokenMalformed
	}
	return id, nil
}

// Issuer signs and verifies access credentials with a shared HMAC secret.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  func() time.Time
}

// NewIssuer constructs an Issuer. TTL is the default access credential lifetime.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		issuer: "sacom-auth",
		ttl:    ttl,
		clock:  time.Now,
	}
}

// Mint issues a signed access credential for the given identity and session.
// Every mint carries a fresh jti, so two credentials for the same session are
// never byte-identical even when issued within the same second.
func (i *Issuer) Mint(userID int64, systemUser bool, level authz.Level, sessionID string) (string, error) {
	now := i.clock()
	claims := Claims{
		SystemUser:  systemUser,
		SystemLevel: string(level),
		SessionID:   sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify decodes and validates a signed access credential.
func (i *Issuer) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.clock() }))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenInvalid
		}
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// TTL exposes the configured access credential lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}
