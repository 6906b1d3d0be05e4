package gmo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner("test-key", "test-secret", 5*time.Second)
	require.NoError(t, err)
	return s
}

func TestNewSignerRejectsMissingCredentials(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		secret string
	}{
		{name: "no key", key: "", secret: "s"},
		{name: "no secret", key: "k", secret: ""},
		{name: "neither", key: "", secret: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner(tt.key, tt.secret, 0)
			require.Error(t, err)
			assert.Equal(t, KindConfig, KindOf(err))
		})
	}
}

func TestSignProducesVerifiableHeaders(t *testing.T) {
	s := newTestSigner(t)
	fixed := time.UnixMilli(1724550000000)
	s.now = func() time.Time { return fixed }

	body := []byte(`{"symbol":"USD_JPY","side":"BUY","size":"10000"}`)
	headers, err := s.Sign("POST", "/v1/speedOrder", body)
	require.NoError(t, err)

	assert.Equal(t, "test-key", headers["API-KEY"])
	assert.Equal(t, "1724550000000", headers["API-TIMESTAMP"])
	assert.Regexp(t, "^[0-9a-f]{64}$", headers["API-SIGN"])

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte("1724550000000POST/v1/speedOrder" + string(body)))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), headers["API-SIGN"])
}

func TestSignBodyChangesSignature(t *testing.T) {
	s := newTestSigner(t)
	fixed := time.UnixMilli(1724550000000)
	s.now = func() time.Time { return fixed }

	withBody, err := s.Sign("PUT", "/v1/ws-auth", []byte(`{"token":"abc"}`))
	require.NoError(t, err)
	withoutBody, err := s.Sign("PUT", "/v1/ws-auth", nil)
	require.NoError(t, err)

	assert.NotEqual(t, withoutBody["API-SIGN"], withBody["API-SIGN"])
}

func TestSignStripsPrivateMount(t *testing.T) {
	s := newTestSigner(t)
	fixed := time.UnixMilli(1724550000000)
	s.now = func() time.Time { return fixed }

	direct, err := s.Sign("GET", "/v1/account/assets", nil)
	require.NoError(t, err)
	mounted, err := s.Sign("GET", "/private/v1/account/assets", nil)
	require.NoError(t, err)

	assert.Equal(t, direct["API-SIGN"], mounted["API-SIGN"])
}

func TestSignaturePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/v1/status", want: "/v1/status"},
		{in: "/private/v1/order", want: "/v1/order"},
		{in: "/private/v1/ws-auth", want: "/v1/ws-auth"},
		{in: "/privateer/v1/order", want: "/privateer/v1/order"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, signaturePath(tt.in), tt.in)
	}
}

func TestSignRefusedWhenClockSkewExceeded(t *testing.T) {
	s := newTestSigner(t)
	local := time.UnixMilli(1724550000000)
	s.now = func() time.Time { return local }

	s.ObserveServerTime(local.Add(6 * time.Second))

	_, err := s.Sign("POST", "/v1/order", []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, KindClockSkew, KindOf(err))
	assert.NotContains(t, err.Error(), "test-secret")
}

func TestSignRefusedWhenServerBehind(t *testing.T) {
	s := newTestSigner(t)
	local := time.UnixMilli(1724550000000)
	s.now = func() time.Time { return local }

	s.ObserveServerTime(local.Add(-6 * time.Second))

	_, err := s.Sign("GET", "/v1/account/assets", nil)
	require.Error(t, err)
	assert.Equal(t, KindClockSkew, KindOf(err))
}

func TestSignRecoversAfterFreshObservation(t *testing.T) {
	s := newTestSigner(t)
	local := time.UnixMilli(1724550000000)
	s.now = func() time.Time { return local }

	s.ObserveServerTime(local.Add(10 * time.Second))
	_, err := s.Sign("GET", "/v1/account/assets", nil)
	require.Error(t, err)

	// Public traffic keeps the estimate alive; once it converges the
	// signer lets requests through again.
	s.ObserveServerTime(local.Add(time.Second))
	_, err = s.Sign("GET", "/v1/account/assets", nil)
	assert.NoError(t, err)
}

func TestSkewToleratesSmallDrift(t *testing.T) {
	s := newTestSigner(t)
	local := time.UnixMilli(1724550000000)
	s.now = func() time.Time { return local }

	s.ObserveServerTime(local.Add(4 * time.Second))
	_, err := s.Sign("POST", "/v1/speedOrder", []byte(`{}`))
	assert.NoError(t, err)
	assert.Equal(t, 4*time.Second, s.Skew())
}

func TestSkewZeroBeforeFirstObservation(t *testing.T) {
	s := newTestSigner(t)
	assert.Equal(t, time.Duration(0), s.Skew())

	s.ObserveServerTime(time.Time{})
	assert.Equal(t, time.Duration(0), s.Skew())
}
