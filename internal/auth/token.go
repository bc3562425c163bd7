// ABOUTME: JWT token generation and verification for API requests
// ABOUTME: HS256 with configurable secret and epoch-based bulk invalidation

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrRevokedToken = errors.New("token issued before revocation epoch")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (userID string, err error)
}

// EpochFunc returns the revocation epoch: tokens issued before it are
// rejected. Bumping the epoch invalidates every outstanding token at once
// without tracking them individually. A nil EpochFunc disables the check.
type EpochFunc func() time.Time

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
	epoch  EpochFunc
}

// NewJWTVerifier creates a new JWT verifier with the given secret and
// revocation epoch source.
func NewJWTVerifier(secret []byte, epoch EpochFunc) *JWTVerifier {
	return &JWTVerifier{secret: secret, epoch: epoch}
}

// Verify validates the token and extracts the user ID from the "sub" claim.
// Tokens issued before the revocation epoch fail with ErrRevokedToken.
func (v *JWTVerifier) Verify(tokenString string) (userID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	if v.epoch != nil {
		epoch := v.epoch()
		if !epoch.IsZero() {
			iat, ok := claims["iat"].(float64)
			if !ok {
				return "", fmt.Errorf("%w: iat", ErrMissingClaim)
			}
			if time.Unix(int64(iat), 0).Before(epoch.Truncate(time.Second)) {
				return "", ErrRevokedToken
			}
		}
	}

	return sub, nil
}

// Generate creates a new JWT token for the given user ID with expiration
func (v *JWTVerifier) Generate(userID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
