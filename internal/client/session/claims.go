package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the client can read out of a JWT bearer token without the
// signing key. It is informational only and never used for access decisions.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// PeekClaims decodes token as an unverified JWT. ok is false for opaque
// (non-JWT) tokens.
func PeekClaims(token string) (c Claims, ok bool) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, false
	}

	if sub, present := mc["sub"]; present && sub != nil {
		c.Subject = fmt.Sprint(sub)
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, true
}
