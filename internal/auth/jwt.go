package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errMalformedToken = errors.New("malformed token")

var claimsParser = jwt.NewParser()

// decodeExpiry reads the exp claim of a JWT without verifying its signature.
// Only the payload segment is decoded, so the header's alg does not matter.
// Returns (nil, nil) for a well-formed token that carries no exp.
func decodeExpiry(token string) (*time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errMalformedToken
	}

	payload, err := claimsParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedToken, err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedToken, err)
	}
	if exp == nil {
		return nil, nil
	}

	t := exp.Time
	return &t, nil
}

// issuedExpiry derives an expiry for a freshly issued token: the exp claim
// when present, else now+expiresIn, else nil.
func issuedExpiry(token string, expiresIn int64, now time.Time) *time.Time {
	if exp, err := decodeExpiry(token); err == nil && exp != nil {
		return exp
	}
	if expiresIn > 0 {
		t := now.Add(time.Duration(expiresIn) * time.Second)
		return &t
	}
	return nil
}
