// Package auth validates bearer tokens issued by the school's auth service and
// resolves them to user records.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"school-chat/internal/models"
	"school-chat/internal/repositories"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the token payload. Only user_id is trusted; role comes from the user record.
type Claims struct {
	UserID int    `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Validator parses HS256 tokens signed with a shared secret.
type Validator struct {
	secret []byte
}

// NewValidator constructs a Validator.
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// ParseUserID validates the token and returns its user_id claim.
func (v *Validator) ParseUserID(raw string) (int, error) {
	if raw == "" {
		return 0, ErrMissingToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID <= 0 {
		return 0, fmt.Errorf("%w: user_id missing", ErrInvalidToken)
	}
	return claims.UserID, nil
}

// Issuer mints tokens compatible with Validator.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer constructs an Issuer.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for the user valid for ttl. A negative ttl yields an expired token.
func (i *Issuer) Issue(user models.User, ttl time.Duration) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(i.secret)
}

// Authenticator turns a token into the caller's user record.
type Authenticator struct {
	validator *Validator
	users     repositories.UserRepository
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(validator *Validator, users repositories.UserRepository) *Authenticator {
	return &Authenticator{validator: validator, users: users}
}

// Authenticate validates the token and loads its user. Tokens for deleted users are invalid.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (models.User, error) {
	userID, err := a.validator.ParseUserID(token)
	if err != nil {
		return models.User{}, err
	}
	user, err := a.users.GetUser(ctx, userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, fmt.Errorf("%w: unknown user %d", ErrInvalidToken, userID)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
