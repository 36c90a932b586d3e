// Package signature verifies payment-gateway callbacks.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/archon-research/ledger-engine/internal/ports/outbound"
)

var _ outbound.SignatureVerifier = (*HMACVerifier)(nil)

// HMACVerifier checks hex-encoded HMAC-SHA256 signatures over "orderId|paymentId",
// the scheme used by Razorpay-style gateways.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for the given webhook secret.
func NewHMACVerifier(secret []byte) *HMACVerifier {
	return &HMACVerifier{secret: append([]byte(nil), secret...)}
}

// Sign returns the expected signature. Used by tests and local tooling.
func (v *HMACVerifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches. An empty secret rejects everything.
func (v *HMACVerifier) Verify(orderID, paymentID, signature string) bool {
	if len(v.secret) == 0 {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hmac.Equal(got, mac.Sum(nil))
}
