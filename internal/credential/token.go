package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the fixed iss claim expected by the API gateway.
const Issuer = "supabase"

const (
	RoleAnonymous = "anonymous"
	RoleService   = "service"
)

// tokenLifetimeYears is applied with calendar arithmetic, not a fixed duration.
const tokenLifetimeYears = 5

var ErrInvalidToken = errors.New("invalid service token")

// ServiceClaims are the claims carried by ANON_KEY and SERVICE_ROLE_KEY.
type ServiceClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// StartOfDay truncates t to 00:00:00 in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NewServiceClaims builds claims issued at the start of now's day and
// expiring five calendar years later.
func NewServiceClaims(role string, now time.Time) ServiceClaims {
	iat := StartOfDay(now)
	return ServiceClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.AddDate(tokenLifetimeYears, 0, 0)),
		},
	}
}

// SignServiceToken signs claims with HS256 using key.
func SignServiceToken(claims ServiceClaims, key string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(key))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Role, err)
	}
	return signed, nil
}

// VerifyServiceToken checks the signature against key and returns the claims.
// Expiry is validated relative to now.
func VerifyServiceToken(token, key string, now time.Time) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}
