package gmo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Request headers required by the private API.
const (
	headerAPIKey       = "API-KEY"
	headerAPITimestamp = "API-TIMESTAMP"
	headerAPISign      = "API-SIGN"
)

// Signer produces the authentication headers for private requests.
// It is the only component that holds the API secret; the secret never
// appears in logs, errors, or any outbound payload.
type Signer struct {
	key    string
	secret []byte

	maxSkew time.Duration

	// Server clock estimate, fed from envelope response times.
	// offsetMS is server minus local in milliseconds.
	offsetMS   atomic.Int64
	haveOffset atomic.Bool

	now func() time.Time
}

// NewSigner creates a signer for the given credentials. maxSkew bounds
// the tolerated difference between the local clock and the broker's;
// requests are refused once the estimate exceeds it, because they would
// only burn the write budget before being rejected server-side.
func NewSigner(key, secret string, maxSkew time.Duration) (*Signer, error) {
	if key == "" || secret == "" {
		return nil, &Error{Kind: KindConfig, Op: "signer", Msg: "API credentials are not configured"}
	}
	if maxSkew <= 0 {
		maxSkew = 5 * time.Second
	}
	return &Signer{
		key:     key,
		secret:  []byte(secret),
		maxSkew: maxSkew,
		now:     time.Now,
	}, nil
}

// Sign returns the three authentication headers for one request.
// body must be the exact bytes that will be sent, or empty for GET
// and bodyless DELETE requests.
func (s *Signer) Sign(method, path string, body []byte) (map[string]string, error) {
	if skew, exceeded := s.skew(); exceeded {
		return nil, &Error{
			Kind: KindClockSkew,
			Op:   fmt.Sprintf("%s %s", method, path),
			Msg:  fmt.Sprintf("local clock differs from server by %s (max %s); sync the system clock", skew, s.maxSkew),
		}
	}

	timestamp := strconv.FormatInt(s.now().UnixMilli(), 10)
	message := timestamp + method + signaturePath(path) + string(body)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(message))
	sign := hex.EncodeToString(mac.Sum(nil))

	return map[string]string{
		headerAPIKey:       s.key,
		headerAPITimestamp: timestamp,
		headerAPISign:      sign,
	}, nil
}

// ObserveServerTime feeds one server timestamp into the skew estimate.
// The client calls this with every envelope response time, so the
// estimate tracks drift without a dedicated time endpoint.
func (s *Signer) ObserveServerTime(server time.Time) {
	if server.IsZero() {
		return
	}
	s.offsetMS.Store(server.UnixMilli() - s.now().UnixMilli())
	s.haveOffset.Store(true)
}

// Skew returns the current server-minus-local estimate. Zero until the
// first server timestamp has been observed.
func (s *Signer) Skew() time.Duration {
	if !s.haveOffset.Load() {
		return 0
	}
	return time.Duration(s.offsetMS.Load()) * time.Millisecond
}

func (s *Signer) skew() (time.Duration, bool) {
	skew := s.Skew()
	if skew < 0 {
		return skew, -skew > s.maxSkew
	}
	return skew, skew > s.maxSkew
}

// signaturePath normalizes the path that enters the signature: the
// broker signs against the versioned path, never the /private mount.
func signaturePath(path string) string {
	if strings.HasPrefix(path, "/private/") {
		return strings.TrimPrefix(path, "/private")
	}
	return path
}
