// Package secrets provides the shared encryption layer for personapulse.
// Persona credentials and webhook secrets are stored as AES-256-GCM blobs;
// inbound webhook signatures are verified here as well so that every
// crypto decision lives in one place.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Method identifies which decryption path produced a value. Observable so a
// later migration pass can find blobs still on the legacy path.
type Method string

const (
	// MethodGCM is the primary path: AES-256-GCM with the raw configured key
	// normalized to 32 bytes. All new writes use this path.
	MethodGCM Method = "gcm"
	// MethodPBKDF2 is the legacy path: AES-256-GCM with a PBKDF2-derived key.
	// Blobs written before the key-handling migration still decrypt here.
	MethodPBKDF2 Method = "pbkdf2"
	// MethodPlaintext means the value predates encryption and was passed through.
	MethodPlaintext Method = "plaintext"
)

// Failure reasons for DecryptError.
const (
	ReasonNoKey             = "encryption_key_missing"
	ReasonMalformedEncoding = "malformed_encoding"
	ReasonBothCiphersFailed = "both_cipher_methods_failed"
)

// DecryptError is returned when a blob cannot be decrypted. Callers must
// branch on Reason; decryption failure is never silently treated as "no secret".
type DecryptError struct {
	Reason  string
	Context string
}

func (e *DecryptError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("decrypt %s: %s", e.Context, e.Reason)
	}
	return "decrypt: " + e.Reason
}

const (
	gcmNonceSize = 12
	// legacySalt and legacyIterations match the parameters the pre-migration
	// encryption scheme used to derive its AES key. They cannot change without
	// orphaning old ciphertexts.
	legacySalt       = "personapulse-credential-salt"
	legacyIterations = 100_000
)

// Vault encrypts and decrypts secret values with a single configured key.
type Vault struct {
	key string
}

// NewVault creates a Vault from raw key material. An empty key produces a
// vault whose operations fail with ReasonNoKey.
func NewVault(key string) *Vault {
	return &Vault{key: strings.TrimSpace(key)}
}

// normalizedKey returns the configured key left-padded with zero bytes or
// truncated to exactly 32 bytes, for the primary GCM path.
func (v *Vault) normalizedKey() []byte {
	key := make([]byte, 32)
	raw := []byte(v.key)
	if len(raw) > 32 {
		raw = raw[:32]
	}
	copy(key[32-len(raw):], raw)
	return key
}

// legacyKey derives the 32-byte AES key the pre-migration scheme used.
func (v *Vault) legacyKey() []byte {
	return pbkdf2.Key([]byte(v.key), []byte(legacySalt), legacyIterations, 32, sha256.New)
}

// Encrypt seals a plaintext value into a base64(nonce||ciphertext) blob using
// the primary GCM path.
func (v *Vault) Encrypt(plain string) (string, error) {
	if v.key == "" {
		return "", &DecryptError{Reason: ReasonNoKey}
	}
	gcm, err := newGCM(v.normalizedKey())
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

// Open decrypts a blob, trying the primary GCM path first and then the legacy
// PBKDF2 path. The returned Method reports which path succeeded. The context
// string names what is being decrypted and appears in errors and logs only.
func (v *Vault) Open(blob, context string) (string, Method, error) {
	if v.key == "" {
		return "", "", &DecryptError{Reason: ReasonNoKey, Context: context}
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil || len(raw) <= gcmNonceSize {
		return "", "", &DecryptError{Reason: ReasonMalformedEncoding, Context: context}
	}
	nonce, ciphertext := raw[:gcmNonceSize], raw[gcmNonceSize:]

	if gcm, err := newGCM(v.normalizedKey()); err == nil {
		if plain, err := gcm.Open(nil, nonce, ciphertext, nil); err == nil {
			return string(plain), MethodGCM, nil
		}
	}
	if gcm, err := newGCM(v.legacyKey()); err == nil {
		if plain, err := gcm.Open(nil, nonce, ciphertext, nil); err == nil {
			return string(plain), MethodPBKDF2, nil
		}
	}
	return "", "", &DecryptError{Reason: ReasonBothCiphersFailed, Context: context}
}

// Decrypt is Open without the method tag.
func (v *Vault) Decrypt(blob, context string) (string, error) {
	plain, _, err := v.Open(blob, context)
	return plain, err
}

// Resolve returns the usable plaintext for a stored value: legacy plaintext
// values (predating encryption) pass through untouched, everything else is
// decrypted.
func (v *Vault) Resolve(value, context string) (string, Method, error) {
	if !IsLikelyEncrypted(value) {
		return value, MethodPlaintext, nil
	}
	return v.Open(value, context)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// knownPlaintextPrefixes are token formats the platform and LLM providers
// hand out; a stored value starting with one of these was never encrypted.
var knownPlaintextPrefixes = []string{"IGQ", "EAA", "sk-", "ghp_", "xoxb-"}

// IsLikelyEncrypted reports whether a stored value looks like one of our
// encrypted blobs rather than a legacy plaintext credential. The minimum
// length is nonce+tag in base64; anything shorter cannot be a valid blob.
func IsLikelyEncrypted(value string) bool {
	value = strings.TrimSpace(value)
	if len(value) < 40 {
		return false
	}
	for _, p := range knownPlaintextPrefixes {
		if strings.HasPrefix(value, p) {
			return false
		}
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return false
	}
	return len(raw) > gcmNonceSize
}
