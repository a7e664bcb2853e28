package layan

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenValid reports whether tok parses as a JWT whose exp lies after now.
// The signature is not checked; the API does that.
func tokenValid(tok string, now time.Time) bool {
	if tok == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.After(now)
}
