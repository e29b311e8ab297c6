package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"
)

// DefaultFreshnessWindow is how far a credential timestamp may drift from now,
// in either direction.
const DefaultFreshnessWindow = 5 * time.Minute

// Credential is the admission pair a client presents on connect.
type Credential struct {
	Token     string
	Timestamp string
}

// Authenticator validates HMAC-SHA256 credentials over a millisecond
// timestamp, keyed with the process-wide shared secret.
type Authenticator struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

type Option func(*Authenticator)

// WithClock replaces the wall clock used for the freshness check.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

func NewAuthenticator(secret []byte, window time.Duration, opts ...Option) *Authenticator {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	a := &Authenticator{
		secret: key,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Validate reports whether token is the expected signature for timestamp and
// timestamp lies within the freshness window. It never panics on bad input.
func (a *Authenticator) Validate(token, timestamp string) bool {
	if token == "" || timestamp == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	now := a.now().UnixMilli()
	window := a.window.Milliseconds()
	if ts < now-window || ts > now+window {
		return false
	}

	expected := Sign(a.secret, timestamp)
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

// Sign returns the lowercase hex HMAC-SHA256 of timestamp keyed with secret.
func Sign(secret []byte, timestamp string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewCredential signs t for a client connecting with secret.
func NewCredential(secret []byte, t time.Time) Credential {
	ts := strconv.FormatInt(t.UnixMilli(), 10)
	return Credential{
		Token:     Sign(secret, ts),
		Timestamp: ts,
	}
}

// GenerateSecret creates a new shared secret with 32 bytes of entropy
func GenerateSecret() (string, error) {
	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(keyBytes), nil
}
