package auth

import (
	"errors"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin  = "admin"
	ScopeAdmin = "guests:review rooms:transfer maintenance:run"

	audience = "baywheel-admin"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Claims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"`
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func NewAccessToken(sub, role, scope, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Sub:   sub,
		Role:  role,
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  []string{audience},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func Parse(tokenString, secret string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(audience))
	if err != nil {
		return nil, err
	}
	if claims, ok := tok.Claims.(*Claims); ok && tok.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// AdminLogin checks the operator's password against the configured argon2id
// hash and issues an admin session.
func AdminLogin(user, password, wantUser, passwordHash, secret string, ttl time.Duration) (string, error) {
	if user == "" || user != wantUser || passwordHash == "" {
		return "", ErrInvalidCredentials
	}
	ok, err := argon2id.ComparePasswordAndHash(password, passwordHash)
	if err != nil || !ok {
		return "", ErrInvalidCredentials
	}
	return NewAccessToken(user, RoleAdmin, ScopeAdmin, secret, ttl)
}
