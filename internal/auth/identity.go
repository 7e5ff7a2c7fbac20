package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what the external identity provider asserts about a user.
type Identity struct {
	UserID      string
	DisplayName string
	AvatarURL   string
	Email       string
}

// IdentityProvider verifies a sign-in assertion from the federated
// provider. The provider itself is an external collaborator; this interface
// is the only way the service reaches it.
type IdentityProvider interface {
	Verify(ctx context.Context, assertion string) (Identity, error)
}

type identityClaims struct {
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Email   string `json:"email"`
	jwt.RegisteredClaims
}

// JWTIdentityProvider validates provider-signed JWT assertions with a
// shared key.
type JWTIdentityProvider struct {
	secretKey []byte
}

// NewJWTIdentityProvider creates a JWTIdentityProvider.
func NewJWTIdentityProvider(secretKey string) *JWTIdentityProvider {
	return &JWTIdentityProvider{secretKey: []byte(secretKey)}
}

// Verify parses the assertion and extracts the asserted identity.
func (p *JWTIdentityProvider) Verify(_ context.Context, assertion string) (Identity, error) {
	token, err := jwt.ParseWithClaims(assertion, &identityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secretKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, err
	}

	claims, ok := token.Claims.(*identityClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		AvatarURL:   claims.Picture,
		Email:       claims.Email,
	}, nil
}

// SignAssertion builds a provider-style assertion; used by tests and local
// development in place of a real provider.
func SignAssertion(secretKey string, identity Identity, validity time.Duration) (string, error) {
	now := time.Now()
	claims := identityClaims{
		Name:    identity.DisplayName,
		Picture: identity.AvatarURL,
		Email:   identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}
