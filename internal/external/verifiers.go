package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
)

// ---------------------------------------------------------------------------
// Stripe Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier implements WebhookVerifier using stripe-go's webhook
// signature verification: HMAC-SHA256 with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the Stripe-Signature
// header and signing secret. Uses stripe-go's ValidatePayload, which checks
// both the HMAC signature and the timestamp tolerance.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}

// ---------------------------------------------------------------------------
// Identity Webhook Verification (svix-style signed delivery)
// ---------------------------------------------------------------------------

// svixTimestampTolerance bounds the accepted clock skew between the
// delivery timestamp and the receiving host.
const svixTimestampTolerance = 5 * time.Minute

// SvixVerifier implements IdentityWebhookVerifier for svix-style webhook
// deliveries, the signing scheme used by the identity provider.
//
// The signed content is "{msg_id}.{timestamp}.{payload}", keyed with the
// base64-decoded portion of the "whsec_..." signing secret. The signature
// header holds one or more space-separated "v1,<base64sig>" entries; the
// payload verifies if any of them matches.
type SvixVerifier struct {
	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// NewSvixVerifier creates a verifier using the wall clock.
func NewSvixVerifier() *SvixVerifier {
	return &SvixVerifier{now: time.Now}
}

// Verify checks the HMAC-SHA256 signature and the timestamp tolerance.
// All failure modes return an error; the caller maps them all to the same
// generic 400 so the response leaks nothing about which check failed.
func (v *SvixVerifier) Verify(payload []byte, msgID, timestamp, signature string, secret string) error {
	if msgID == "" || timestamp == "" || signature == "" {
		return errors.New("missing webhook signature headers")
	}

	key, err := decodeSigningSecret(secret)
	if err != nil {
		return err
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed webhook timestamp: %w", err)
	}

	now := time.Now
	if v.now != nil {
		now = v.now
	}
	skew := now().Sub(time.Unix(ts, 0))
	if skew > svixTimestampTolerance || skew < -svixTimestampTolerance {
		return errors.New("webhook timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", msgID, timestamp)
	mac.Write(payload)
	expected := mac.Sum(nil)

	// The header may carry several versioned signatures (key rotation).
	for _, entry := range strings.Fields(signature) {
		version, sig, found := strings.Cut(entry, ",")
		if !found || version != "v1" {
			continue
		}
		candidate, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return nil
		}
	}

	return errors.New("no matching webhook signature")
}

// decodeSigningSecret strips the "whsec_" prefix and base64-decodes the key
// material.
func decodeSigningSecret(secret string) ([]byte, error) {
	raw := strings.TrimPrefix(secret, "whsec_")
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed webhook signing secret: %w", err)
	}
	return key, nil
}

// Compile-time assertions.
var (
	_ WebhookVerifier         = (*StripeVerifier)(nil)
	_ IdentityWebhookVerifier = (*SvixVerifier)(nil)
)
