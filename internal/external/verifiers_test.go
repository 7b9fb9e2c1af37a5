package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func testSigningSecret() string {
	return "whsec_" + base64.StdEncoding.EncodeToString(testSigningKey)
}

// signSvixPayload produces a valid "v1,<base64sig>" entry over
// "{msgID}.{timestamp}.{payload}".
func signSvixPayload(msgID, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, testSigningKey)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(payload)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// fixedClockVerifier returns a verifier whose clock is pinned to now.
func fixedClockVerifier(now time.Time) *SvixVerifier {
	v := NewSvixVerifier()
	v.now = func() time.Time { return now }
	return v
}

// ---------------------------------------------------------------------------
// SvixVerifier Tests
// ---------------------------------------------------------------------------

func TestSvixVerifier_ValidSignature(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := fixedClockVerifier(now)

	payload := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	signature := signSvixPayload("msg_1", timestamp, payload)

	err := v.Verify(payload, "msg_1", timestamp, signature, testSigningSecret())
	require.NoError(t, err)
}

func TestSvixVerifier_MultipleSignaturesOneValid(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := fixedClockVerifier(now)

	payload := []byte(`{"type":"user.updated"}`)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	valid := signSvixPayload("msg_2", timestamp, payload)
	// Key rotation: an old signature precedes the valid one.
	header := "v1," + base64.StdEncoding.EncodeToString([]byte("stale-signature")) + " " + valid

	err := v.Verify(payload, "msg_2", timestamp, header, testSigningSecret())
	require.NoError(t, err)
}

func TestSvixVerifier_TamperedPayload(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := fixedClockVerifier(now)

	timestamp := strconv.FormatInt(now.Unix(), 10)
	signature := signSvixPayload("msg_3", timestamp, []byte(`{"a":1}`))

	err := v.Verify([]byte(`{"a":2}`), "msg_3", timestamp, signature, testSigningSecret())
	assert.Error(t, err)
}

func TestSvixVerifier_WrongMessageID(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := fixedClockVerifier(now)

	payload := []byte(`{}`)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	signature := signSvixPayload("msg_original", timestamp, payload)

	err := v.Verify(payload, "msg_replayed", timestamp, signature, testSigningSecret())
	assert.Error(t, err)
}

func TestSvixVerifier_TimestampTooOld(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := fixedClockVerifier(now)

	payload := []byte(`{}`)
	stale := strconv.FormatInt(now.Add(-6*time.Minute).Unix(), 10)
	signature := signSvixPayload("msg_4", stale, payload)

	err := v.Verify(payload, "msg_4", stale, signature, testSigningSecret())
	assert.Error(t, err)
}

func TestSvixVerifier_TimestampInFuture(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := fixedClockVerifier(now)

	payload := []byte(`{}`)
	future := strconv.FormatInt(now.Add(6*time.Minute).Unix(), 10)
	signature := signSvixPayload("msg_5", future, payload)

	err := v.Verify(payload, "msg_5", future, signature, testSigningSecret())
	assert.Error(t, err)
}

func TestSvixVerifier_TimestampWithinTolerance(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := fixedClockVerifier(now)

	payload := []byte(`{}`)
	recent := strconv.FormatInt(now.Add(-4*time.Minute).Unix(), 10)
	signature := signSvixPayload("msg_6", recent, payload)

	err := v.Verify(payload, "msg_6", recent, signature, testSigningSecret())
	require.NoError(t, err)
}

func TestSvixVerifier_MissingHeaders(t *testing.T) {
	v := NewSvixVerifier()

	err := v.Verify([]byte(`{}`), "", "123", "v1,abc", testSigningSecret())
	assert.Error(t, err)

	err = v.Verify([]byte(`{}`), "msg_1", "", "v1,abc", testSigningSecret())
	assert.Error(t, err)

	err = v.Verify([]byte(`{}`), "msg_1", "123", "", testSigningSecret())
	assert.Error(t, err)
}

func TestSvixVerifier_MalformedTimestamp(t *testing.T) {
	v := NewSvixVerifier()

	err := v.Verify([]byte(`{}`), "msg_1", "not-a-number", "v1,abc", testSigningSecret())
	assert.Error(t, err)
}

func TestSvixVerifier_MalformedSecret(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := fixedClockVerifier(now)

	timestamp := strconv.FormatInt(now.Unix(), 10)
	err := v.Verify([]byte(`{}`), "msg_1", timestamp, "v1,abc", "whsec_!!!not-base64!!!")
	assert.Error(t, err)
}

func TestSvixVerifier_IgnoresUnknownVersions(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	v := fixedClockVerifier(now)

	payload := []byte(`{}`)
	timestamp := strconv.FormatInt(now.Unix(), 10)
	valid := signSvixPayload("msg_7", timestamp, payload)
	// A v2 entry must not satisfy verification, but must not break it either.
	header := "v2," + base64.StdEncoding.EncodeToString([]byte("future-scheme")) + " " + valid

	err := v.Verify(payload, "msg_7", timestamp, header, testSigningSecret())
	require.NoError(t, err)
}
