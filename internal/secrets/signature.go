package secrets

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signaturePrefix is the header scheme tag used by the platform,
// e.g. X-Hub-Signature-256: sha256=<hex>.
const signaturePrefix = "sha256="

// VerifySignature checks an HMAC-SHA256 webhook signature over the raw request
// body. The header value must be "sha256=<hex>". Comparison is constant time
// so a forged signature cannot be refined byte by byte from response timing.
func VerifySignature(body []byte, header, secret string) bool {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return ConstantTimeEquals(strings.TrimPrefix(header, signaturePrefix), expected)
}

// ConstantTimeEquals compares two strings in time independent of where they
// differ. A length mismatch returns false immediately; length is not secret.
func ConstantTimeEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
