package core

// Whole-payload authenticated encryption.
//
// Two entry points: Encrypt/Decrypt use a caller-supplied 32-byte key
// directly; DeriveKey derives that key from a password via PBKDF2 first. Both paths converge on the same AEAD construction so a
// blocknote reader never needs to know which path produced the key.

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	aesKeySize    = 32
	gcmNonceSize  = 12
	gcmTagSize    = 16
	pbkdf2Salt    = 16
	pbkdf2Rounds  = 100_000
)

// AEADResult bundles the ciphertext and nonce a metadata record needs to
// later decrypt it.
type AEADResult struct {
	Ciphertext []byte
	Nonce      [gcmNonceSize]byte
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != aesKeySize {
		return nil, fmt.Errorf("aead: key must be %d bytes, got %d", aesKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}
	return cipher.NewGCMWithNonceSize(block, gcmNonceSize)
}

// Encrypt AEAD-encrypts plaintext under key with a fresh random nonce.
func Encrypt(key, plaintext []byte) (*AEADResult, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	var nonce [gcmNonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("aead: nonce: %w", err)
	}
	ct := gcm.Seal(nil, nonce[:], plaintext, nil)
	return &AEADResult{Ciphertext: ct, Nonce: nonce}, nil
}

// Decrypt reverses Encrypt. The tag is the trailing gcmTagSize bytes of
// ciphertext, per Go's cipher.AEAD.Seal/Open convention.
func Decrypt(key []byte, nonce [gcmNonceSize]byte, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return pt, nil
}

// NewSalt returns fresh PBKDF2 salt bytes for a password-derived key.
func NewSalt() ([]byte, error) {
	salt := make([]byte, pbkdf2Salt)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("salt: %w", err)
	}
	return salt, nil
}

// DeriveKey runs PBKDF2-HMAC-SHA256 over password with salt for
// pbkdf2Rounds iterations.
func DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, aesKeySize, sha256.New)
}

// splitTag separates Go's combined GCM output into the ciphertext and
// trailing tag, matching the metadata schema's separate iv/tag/data
// fields.
func splitTag(combined []byte) (ciphertext, tag []byte) {
	n := len(combined) - gcmTagSize
	if n < 0 {
		n = 0
	}
	return combined[:n], combined[n:]
}

// joinTag reverses splitTag, rebuilding the combined form Decrypt expects.
func joinTag(ciphertext, tag []byte) []byte {
	out := make([]byte, 0, len(ciphertext)+len(tag))
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return out
}
