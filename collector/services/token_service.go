package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService mints and validates the bearer tokens agents present. A
// token is minted once, at enrollment, and stays valid for the configured
// lifetime; the agent treats it as opaque.
type TokenService struct {
	secret     []byte
	expiration time.Duration
}

// NewTokenService creates a new token service.
func NewTokenService(secret string, expiration time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		expiration: expiration,
	}
}

// Claims represents agent token claims.
type Claims struct {
	PCID string `json:"pc_id"`
	jwt.RegisteredClaims
}

// GenerateToken mints a token bound to one machine identifier.
func (t *TokenService) GenerateToken(pcID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		PCID: pcID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   pcID,
			Issuer:    "fleetwatch-collector",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken validates a token and returns the machine identifier it is
// bound to.
func (t *TokenService) ValidateToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	return claims.PCID, nil
}
