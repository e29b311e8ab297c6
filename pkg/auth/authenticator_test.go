package auth

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSecret = []byte("test-shared-secret")
	fixedNow   = time.UnixMilli(1_700_000_000_000)
)

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(testSecret, DefaultFreshnessWindow, WithClock(func() time.Time { return fixedNow }))
}

func TestValidateAcceptsOwnSignature(t *testing.T) {
	a := newTestAuthenticator()

	for _, offset := range []time.Duration{0, -time.Minute, time.Minute, -5 * time.Minute, 5 * time.Minute} {
		ts := strconv.FormatInt(fixedNow.Add(offset).UnixMilli(), 10)
		assert.True(t, a.Validate(Sign(testSecret, ts), ts), "offset %s", offset)
	}
}

func TestValidateRejectsStaleAndFutureTimestamps(t *testing.T) {
	a := newTestAuthenticator()

	for _, offset := range []time.Duration{
		-5*time.Minute - time.Millisecond,
		5*time.Minute + time.Millisecond,
		-time.Hour,
		24 * time.Hour,
	} {
		ts := strconv.FormatInt(fixedNow.Add(offset).UnixMilli(), 10)
		assert.False(t, a.Validate(Sign(testSecret, ts), ts), "offset %s", offset)
	}
}

func TestValidateRejectsMissingOrMalformedInput(t *testing.T) {
	a := newTestAuthenticator()
	ts := strconv.FormatInt(fixedNow.UnixMilli(), 10)
	token := Sign(testSecret, ts)

	cases := map[string]struct {
		token     string
		timestamp string
	}{
		"missing token":     {"", ts},
		"missing timestamp": {token, ""},
		"non numeric":       {Sign(testSecret, "soon"), "soon"},
		"trailing garbage":  {Sign(testSecret, ts+"x"), ts + "x"},
		"float":             {Sign(testSecret, ts+".5"), ts + ".5"},
		"overflow":          {Sign(testSecret, "99999999999999999999999"), "99999999999999999999999"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, a.Validate(tc.token, tc.timestamp))
		})
	}
}

func TestValidateRejectsWrongTokens(t *testing.T) {
	a := newTestAuthenticator()
	ts := strconv.FormatInt(fixedNow.UnixMilli(), 10)
	expected := Sign(testSecret, ts)

	wrong := []string{
		Sign([]byte("another-secret"), ts),
		strings.ToUpper(expected),
		expected[:len(expected)-1],
		expected + "0",
		flip(expected[0]) + expected[1:],
		expected[:len(expected)-1] + flip(expected[len(expected)-1]),
	}
	for _, token := range wrong {
		assert.False(t, a.Validate(token, ts), token)
	}
}

func TestSignIsLowercaseHexSHA256(t *testing.T) {
	sig := Sign(testSecret, "1700000000000")
	assert.Len(t, sig, 64)
	assert.Equal(t, strings.ToLower(sig), sig)
}

func TestAuthenticatorCopiesSecret(t *testing.T) {
	secret := []byte("mutable")
	a := NewAuthenticator(secret, time.Minute, WithClock(func() time.Time { return fixedNow }))
	cred := NewCredential([]byte("mutable"), fixedNow)

	secret[0] = 'X'
	assert.True(t, a.Validate(cred.Token, cred.Timestamp))
}

func TestNewCredentialRoundTrip(t *testing.T) {
	a := newTestAuthenticator()
	cred := NewCredential(testSecret, fixedNow.Add(-30*time.Second))
	assert.True(t, a.Validate(cred.Token, cred.Timestamp))
}

func TestGenerateSecret(t *testing.T) {
	s1, err := GenerateSecret()
	require.NoError(t, err)
	s2, err := GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, s1, 64)
	assert.NotEqual(t, s1, s2)
}

func flip(c byte) string {
	if c == '0' {
		return "1"
	}
	return "0"
}
