package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

// ---------- Encrypt / Open roundtrip ----------

func TestEncryptOpen_Roundtrip(t *testing.T) {
	v := NewVault("unit-test-key")

	blob, err := v.Encrypt("access-token-123")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plain, method, err := v.Open(blob, "test")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "access-token-123" {
		t.Fatalf("roundtrip mismatch: got %q", plain)
	}
	if method != MethodGCM {
		t.Fatalf("expected primary method, got %q", method)
	}
}

func TestEncryptOpen_LongKeyTruncated(t *testing.T) {
	long := strings.Repeat("k", 64)
	v := NewVault(long)

	blob, err := v.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, _, err := v.Open(blob, "test"); err != nil {
		t.Fatalf("Open with long key: %v", err)
	}
}

// ---------- Legacy PBKDF2 fallback ----------

// legacyEncrypt produces a blob the way the pre-migration scheme did: same
// wire format, key derived via PBKDF2.
func legacyEncrypt(t *testing.T, v *Vault, plain string) string {
	t.Helper()
	block, err := aes.NewCipher(v.legacyKey())
	if err != nil {
		t.Fatalf("aes: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("gcm: %v", err)
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("rand: %v", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...))
}

func TestOpen_LegacyPBKDF2Fallback(t *testing.T) {
	v := NewVault("unit-test-key")
	blob := legacyEncrypt(t, v, "legacy-credential")

	plain, method, err := v.Open(blob, "legacy")
	if err != nil {
		t.Fatalf("Open legacy blob: %v", err)
	}
	if plain != "legacy-credential" {
		t.Fatalf("legacy roundtrip mismatch: got %q", plain)
	}
	if method != MethodPBKDF2 {
		t.Fatalf("expected legacy method tag, got %q", method)
	}
}

// ---------- Failure reasons ----------

func TestOpen_FailureReasons(t *testing.T) {
	v := NewVault("unit-test-key")
	good, err := v.Encrypt("x")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	cases := []struct {
		name   string
		vault  *Vault
		blob   string
		reason string
	}{
		{"no key", NewVault(""), good, ReasonNoKey},
		{"not base64", v, "%%%not-base64%%%", ReasonMalformedEncoding},
		{"too short", v, base64.StdEncoding.EncodeToString([]byte("tiny")), ReasonMalformedEncoding},
		{"wrong key", NewVault("a-different-key"), good, ReasonBothCiphersFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.vault.Open(tc.blob, "test")
			var decErr *DecryptError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected DecryptError, got %v", err)
			}
			if decErr.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, decErr.Reason)
			}
		})
	}
}

// ---------- Plaintext passthrough heuristic ----------

func TestIsLikelyEncrypted(t *testing.T) {
	v := NewVault("unit-test-key")
	blob, err := v.Encrypt("some moderately long credential value")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	cases := []struct {
		value string
		want  bool
	}{
		{blob, true},
		{"", false},
		{"short", false},
		{"IGQ" + strings.Repeat("A", 80), false},   // known platform token prefix
		{"sk-" + strings.Repeat("a", 60), false},   // provider API key prefix
		{"not base64 at all!! " + strings.Repeat("x", 40), false},
	}
	for _, tc := range cases {
		if got := IsLikelyEncrypted(tc.value); got != tc.want {
			t.Errorf("IsLikelyEncrypted(%.20q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestResolve_PlaintextPassthrough(t *testing.T) {
	v := NewVault("unit-test-key")
	legacyToken := "IGQ" + strings.Repeat("A", 80)

	plain, method, err := v.Resolve(legacyToken, "test")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plain != legacyToken || method != MethodPlaintext {
		t.Fatalf("expected plaintext passthrough, got %q via %q", plain, method)
	}
}

// ---------- HMAC signature verification ----------

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"instagram","entry":[]}`)
	secret := "webhook-secret"
	header := signBody(body, secret)

	if !VerifySignature(body, header, secret) {
		t.Fatal("valid signature rejected")
	}

	// A single altered byte in the body must fail.
	altered := append([]byte{}, body...)
	altered[10] ^= 0x01
	if VerifySignature(altered, header, secret) {
		t.Fatal("altered body accepted")
	}

	if VerifySignature(body, header, "wrong-secret") {
		t.Fatal("wrong secret accepted")
	}
	if VerifySignature(body, "sha256=deadbeef", secret) {
		t.Fatal("truncated signature accepted")
	}
	if VerifySignature(body, strings.TrimPrefix(header, "sha256="), secret) {
		t.Fatal("signature without scheme prefix accepted")
	}
}

func TestConstantTimeEquals(t *testing.T) {
	if !ConstantTimeEquals("abc", "abc") {
		t.Fatal("equal strings reported unequal")
	}
	if ConstantTimeEquals("abc", "abd") {
		t.Fatal("unequal strings reported equal")
	}
	if ConstantTimeEquals("abc", "abcd") {
		t.Fatal("different lengths reported equal")
	}
}
