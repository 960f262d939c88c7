package core

// Per-chunk deterministic stream cipher. AES-256-CTR with subkeys/IVs
// derived from a shared key K and a per-session seed, so no per-chunk IV
// or authentication tag needs to be stored anywhere on chain — the
// counter already carried in every data record doubles as the derivation
// index.

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

const streamIVSize = 16

func hmacSum(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// deriveSubkeys returns (K_enc, K_iv) for shared key K.
func deriveSubkeys(key []byte) (encKey, ivKey []byte) {
	return hmacSum(key, []byte("encryption")), hmacSum(key, []byte("iv-derivation"))
}

// deriveChunkIV computes the first 16 bytes of HMAC-SHA256(K_iv, seed ||
// uint32_be(index)) — the deterministic per-chunk IV.
func deriveChunkIV(ivKey, seed []byte, index uint32) [streamIVSize]byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, index)
	mac := hmacSum(ivKey, append(append([]byte(nil), seed...), buf...))
	var iv [streamIVSize]byte
	copy(iv[:], mac[:streamIVSize])
	return iv
}

func newCTRStream(encKey []byte, iv [streamIVSize]byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("stream cipher: %w", err)
	}
	return cipher.NewCTR(block, iv[:]), nil
}

// EncryptWithDerivation XORs data with the keystream for chunk index,
// keyed from the shared key and session seed.
func EncryptWithDerivation(key, seed, data []byte, index uint32) ([]byte, error) {
	encKey, ivKey := deriveSubkeys(key)
	iv := deriveChunkIV(ivKey, seed, index)
	stream, err := newCTRStream(encKey, iv)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// DecryptWithDerivation is identical to EncryptWithDerivation — CTR mode is
// its own inverse — kept as a distinct name for call-site clarity.
func DecryptWithDerivation(key, seed, data []byte, index uint32) ([]byte, error) {
	return EncryptWithDerivation(key, seed, data, index)
}
