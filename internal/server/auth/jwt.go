// Package auth issues and verifies the HS256 access tokens shared by the
// HTTP API and the admin gRPC service.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is stamped into every token and required on parse.
const Issuer = "openblind"

// leeway absorbs clock skew between the API and admin hosts.
const leeway = 5 * time.Second

type Claims struct {
	jwt.RegisteredClaims
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
}

func (c *Claims) IsAdmin() bool {
	return c.Role == common.RoleAdmin
}

var parser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithIssuer(Issuer),
	jwt.WithIssuedAt(),
	jwt.WithExpirationRequired(),
	jwt.WithLeeway(leeway),
)

// GenerateToken signs an access token for userID valid for ttl.
func GenerateToken(userID int64, role string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Role:   role,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// ParseToken verifies raw and returns its claims. Expiry maps to
// common.ErrTokenExpired; every other failure wraps common.ErrInvalidToken.
func ParseToken(raw string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return secret, nil })
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, common.ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	case claims.UserID <= 0 || claims.Subject != strconv.FormatInt(claims.UserID, 10):
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
