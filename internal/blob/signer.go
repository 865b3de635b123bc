package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature is returned for an invalid or expired signed URL.
var ErrBadSignature = errors.New("blob: invalid or expired signature")

// Signer issues and verifies time-limited download URLs for local drivers.
type Signer struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

// NewSigner signs URLs under baseURL (e.g. "https://api.example.com/api/files").
func NewSigner(secret, baseURL string) *Signer {
	return &Signer{secret: []byte(secret), baseURL: strings.TrimRight(baseURL, "/"), now: time.Now}
}

// URL returns a signed download URL for key valid for ttl.
func (s *Signer) URL(key string, ttl time.Duration) string {
	exp := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("key", key)
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("sig", s.sign(key, exp))
	return s.baseURL + "?" + q.Encode()
}

// Verify checks the key, expiry and signature query parameters and returns the key.
func (s *Signer) Verify(q url.Values) (string, error) {
	key := q.Get("key")
	exp, err := strconv.ParseInt(q.Get("expires"), 10, 64)
	if key == "" || err != nil {
		return "", ErrBadSignature
	}
	if s.now().Unix() > exp {
		return "", ErrBadSignature
	}
	if !hmac.Equal([]byte(q.Get("sig")), []byte(s.sign(key, exp))) {
		return "", ErrBadSignature
	}
	return key, nil
}

func (s *Signer) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
