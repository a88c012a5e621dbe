package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ClaimsKey contextKey = "claims"

// WorkerClaims identifies a client allowed to connect to the worker.
type WorkerClaims struct {
	ClientID string `json:"sub"`
	Expiry   int64  `json:"exp"`
	IssuedAt int64  `json:"iat"`
}

func (c WorkerClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Expiry, 0)), nil
}

func (c WorkerClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c WorkerClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c WorkerClaims) GetIssuer() (string, error) {
	return "", nil
}

func (c WorkerClaims) GetSubject() (string, error) {
	return c.ClientID, nil
}

func (c WorkerClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}

// MintToken signs a token for clientID that is valid for ttl.
func MintToken(key []byte, clientID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := WorkerClaims{
		ClientID: clientID,
		Expiry:   now.Add(ttl).Unix(),
		IssuedAt: now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return tokenString, nil
}

// ParseToken verifies tokenString against key and returns its claims.
func ParseToken(key []byte, tokenString string) (*WorkerClaims, error) {
	var claims WorkerClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return &claims, nil
}
