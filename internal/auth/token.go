// Package auth issues and verifies the HS256 tokens that identify a target
// owner to the API and the websocket stream.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 2 * time.Hour

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// IssueToken signs a token whose user_id claim is ownerID.
func IssueToken(ownerID, secret string, ttl time.Duration) (string, error) {
	if ownerID == "" {
		return "", errors.New("owner id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": ownerID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// ParseToken verifies tokenString and returns its owner id. Only HS256 is
// accepted and an expiry claim is required.
func ParseToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	ownerID, ok := claims["user_id"].(string)
	if !ok || ownerID == "" {
		return "", fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	return ownerID, nil
}

// FromRequest extracts a bearer token from the Authorization header, falling
// back to the token query parameter used by browser websocket clients.
func FromRequest(r *http.Request, allowQuery bool) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		tok := strings.TrimPrefix(h, "Bearer ")
		if tok == h || tok == "" {
			return "", fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
		}
		return tok, nil
	}
	if allowQuery {
		if tok := r.URL.Query().Get("token"); tok != "" {
			return tok, nil
		}
	}
	return "", ErrMissingToken
}
