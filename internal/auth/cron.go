package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// CronAuthenticator checks the bearer secret sent by the scheduler.
type CronAuthenticator struct {
	secret string
	hash   []byte
}

// NewCronAuthenticator accepts either a plain secret or a bcrypt hash of it.
func NewCronAuthenticator(secret, hash string) *CronAuthenticator {
	c := &CronAuthenticator{secret: secret}
	if hash != "" {
		c.hash = []byte(hash)
	}
	return c
}

// HashCronSecret returns a bcrypt hash suitable for auth.cron_secret_hash.
func HashCronSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Enabled reports whether a secret or hash is configured. When it is not,
// cron routes are open.
func (c *CronAuthenticator) Enabled() bool {
	return c.secret != "" || len(c.hash) > 0
}

// Verify checks a raw bearer value.
func (c *CronAuthenticator) Verify(token string) bool {
	if !c.Enabled() {
		return true
	}
	if token == "" {
		return false
	}
	if c.secret != "" && subtle.ConstantTimeCompare([]byte(c.secret), []byte(token)) == 1 {
		return true
	}
	if len(c.hash) > 0 && bcrypt.CompareHashAndPassword(c.hash, []byte(token)) == nil {
		return true
	}
	return false
}

// VerifyRequest checks the Authorization header of r.
func (c *CronAuthenticator) VerifyRequest(r *http.Request) bool {
	return c.Verify(BearerToken(r))
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
