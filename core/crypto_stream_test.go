package core

import (
	"bytes"
	"testing"
)

func TestStreamCipherRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	seed := []byte("session-seed-16b")
	plain := []byte("chunk of streamed data")

	ct, err := EncryptWithDerivation(key, seed, plain, 7)
	if err != nil {
		t.Fatalf("EncryptWithDerivation: %v", err)
	}
	pt, err := DecryptWithDerivation(key, seed, ct, 7)
	if err != nil {
		t.Fatalf("DecryptWithDerivation: %v", err)
	}
	if !bytes.Equal(pt, plain) {
		t.Fatalf("round trip mismatch: got %q want %q", pt, plain)
	}
}

func TestStreamCipherIsPositionDependent(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	seed := []byte("session-seed-16b")
	plain := []byte("identical chunk bytes")

	ct0, err := EncryptWithDerivation(key, seed, plain, 0)
	if err != nil {
		t.Fatalf("EncryptWithDerivation: %v", err)
	}
	ct1, err := EncryptWithDerivation(key, seed, plain, 1)
	if err != nil {
		t.Fatalf("EncryptWithDerivation: %v", err)
	}
	if bytes.Equal(ct0, ct1) {
		t.Fatal("ciphertext for the same plaintext at different chunk indices must differ")
	}
}

func TestStreamCipherWrongIndexFailsToRecover(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	seed := []byte("session-seed-16b")
	plain := []byte("a distinctive sentence of plaintext")

	ct, err := EncryptWithDerivation(key, seed, plain, 3)
	if err != nil {
		t.Fatalf("EncryptWithDerivation: %v", err)
	}
	pt, err := DecryptWithDerivation(key, seed, ct, 4)
	if err != nil {
		t.Fatalf("DecryptWithDerivation: %v", err)
	}
	if bytes.Equal(pt, plain) {
		t.Fatal("decrypting with the wrong chunk index should not recover the plaintext")
	}
}
