package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrBadToken = errors.New("invalid token")

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
)

func (r Role) Valid() bool {
	return r == RoleClient || r == RoleProvider
}

// Actor is the verified identity behind a request. ProviderID is uuid.Nil unless
// the actor has a provider profile.
type Actor struct {
	UserID     uuid.UUID
	Role       Role
	ProviderID uuid.UUID
}

// Room is the live-connection room the actor's sockets join.
func (a Actor) Room() string {
	return RoomFor(a.Role, a.UserID)
}

func RoomFor(role Role, userID uuid.UUID) string {
	return fmt.Sprintf("%s_%s", role, userID)
}

type Claims struct {
	UserID     string `json:"uid"`
	Role       Role   `json:"role"`
	ProviderID string `json:"pid,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 access tokens. Issuing lives with the
// external auth service; Issue exists for tooling and tests.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

func (m *TokenManager) Issue(a Actor) (string, error) {
	now := time.Now()
	c := Claims{
		UserID: a.UserID.String(),
		Role:   a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if a.ProviderID != uuid.Nil {
		c.ProviderID = a.ProviderID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

func (m *TokenManager) Verify(raw string) (Actor, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		// block alg confusion
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return m.secret, nil
	})
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %w", ErrBadToken, err)
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return Actor{}, ErrBadToken
	}

	uid, err := uuid.Parse(c.UserID)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: bad uid", ErrBadToken)
	}
	if !c.Role.Valid() {
		return Actor{}, fmt.Errorf("%w: bad role %q", ErrBadToken, c.Role)
	}

	actor := Actor{UserID: uid, Role: c.Role}
	if c.ProviderID != "" {
		pid, err := uuid.Parse(c.ProviderID)
		if err != nil {
			return Actor{}, fmt.Errorf("%w: bad pid", ErrBadToken)
		}
		actor.ProviderID = pid
	}
	return actor, nil
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
