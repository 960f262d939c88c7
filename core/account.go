package core

// Account derivation for ledgernote.
//
// The receiver of a blocknote session is not a random account: it is
// deterministically re-derivable from the sender's secret plus two
// hardened HD indices (accid, addid) recorded in the payload metadata.
// That is exactly the account'/index' hardened derivation the teacher's
// wallet.go already implements for ed25519, so the derivation math below is
// carried over unchanged; only the address encoding changed (ed25519
// public key + SHA-256 checksum, base32, in the style of the ledger this
// system targets, rather than the teacher's ripemd160(sha256(pub)) 20-byte
// scheme).
//
// Import hygiene: this file depends only on crypto + bip39 + logging, never
// on the writer/reader/manager types, so it can be reused standalone.

import (
	"crypto/ed25519"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"
)

const (
	hardenedOffset uint32 = 0x80000000
	masterHMACKey         = "ledgernote account seed"
)

func SetAccountLogger(l *log.Logger) { globalLogger = l }

var globalLogger = log.New()

// Address is 32 bytes: the first 28 bytes of an ed25519 public key followed
// by a 4-byte SHA-256 checksum of the full key, rendered as base32 text for
// on-chain/display use (Hex/String below).
type Address [32]byte

// Hash is a generic 32-byte SHA-256 digest used for payload/revision ids.
type Hash [32]byte

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// HDWallet keeps master key material in-memory only. Callers must Wipe the
// seed/mnemonic after deriving the accounts they need.
type HDWallet struct {
	seed        []byte
	masterKey   []byte
	masterChain []byte
	logger      *log.Logger
}

// Seed returns a copy of the wallet's master seed.
func (w *HDWallet) Seed() []byte {
	out := make([]byte, len(w.seed))
	copy(out, w.seed)
	return out
}

// NewRandomWallet generates entropyBits (128/256) of RNG entropy and
// returns a fresh wallet plus its recovery mnemonic.
func NewRandomWallet(entropyBits int) (*HDWallet, string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return nil, "", fmt.Errorf("unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, "", fmt.Errorf("entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	w, err := NewHDWalletFromSeed(seed, globalLogger)
	if err != nil {
		return nil, "", err
	}
	return w, mnemonic, nil
}

// WalletFromMnemonic imports an existing BIP-39 phrase as the sender
// account's wallet.
func WalletFromMnemonic(mnemonic, passphrase string) (*HDWallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewHDWalletFromSeed(seed, globalLogger)
}

func NewHDWalletFromSeed(seed []byte, lg *log.Logger) (*HDWallet, error) {
	if len(seed) < 16 {
		return nil, errors.New("seed too short")
	}
	I := hmacSHA512([]byte(masterHMACKey), seed)
	w := &HDWallet{
		seed:        seed,
		masterKey:   I[:32],
		masterChain: I[32:],
		logger:      lg,
	}
	lg.Debugf("account: master key initialised (%d bytes seed)", len(seed))
	return w, nil
}

func derivePrivate(parentKey, parentChain []byte, index uint32) (key, ccode []byte, err error) {
	if index < hardenedOffset {
		return nil, nil, errors.New("non-hardened derivation not supported for ed25519")
	}
	data := make([]byte, 1+32+4)
	copy(data[1:], parentKey)
	binary.BigEndian.PutUint32(data[33:], index)
	I := hmacSHA512(parentChain, data)
	return I[:32], I[32:], nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// RootKeypair returns the ed25519 keypair at the wallet's master node,
// i.e. the sender account itself, as opposed to a derived receiver
// account.
func (w *HDWallet) RootKeypair() (ed25519.PrivateKey, ed25519.PublicKey) {
	priv := ed25519.NewKeyFromSeed(w.masterKey)
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub
}

// PrivateKey returns the ed25519 keypair for hardened path m / accid' / addid'.
func (w *HDWallet) PrivateKey(accid, addid uint32) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	accid |= hardenedOffset
	addid |= hardenedOffset

	k1, c1, err := derivePrivate(w.masterKey, w.masterChain, accid)
	if err != nil {
		return nil, nil, err
	}
	k2, _, err := derivePrivate(k1, c1, addid)
	if err != nil {
		return nil, nil, err
	}
	priv := ed25519.NewKeyFromSeed(k2)
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, nil
}

// pubKeyToAddress writes the raw public key and then overwrites its last 4
// bytes with the first 4 bytes of its SHA-256 checksum, matching how the receiver address is recovered purely from (accid, addid)
// plus the sender secret, with no extra bits stored anywhere on chain.
func pubKeyToAddress(pub ed25519.PublicKey) Address {
	var out Address
	copy(out[:32], pub)
	sum := sha256.Sum256(pub)
	copy(out[28:], sum[:4])
	return out
}

// NewAddress derives (accid, addid) and returns the resulting address.
func (w *HDWallet) NewAddress(accid, addid uint32) (Address, error) {
	_, pub, err := w.PrivateKey(accid, addid)
	if err != nil {
		return Address{}, err
	}
	return pubKeyToAddress(pub[:32]), nil
}

// RandomIndices returns a fresh (accid, addid) pair in [0, 2^31) for a
// brand-new blocknote receiver.
func RandomIndices() (accid, addid uint32, err error) {
	a, err := randUint31()
	if err != nil {
		return 0, 0, err
	}
	b, err := randUint31()
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func randUint31() (uint32, error) {
	var b [4]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]) & uint32(math.MaxInt32), nil
}

// Wipe zeroes a byte slice in place (best effort).
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// String renders the address as unpadded base32 text.
func (a Address) String() string { return b32.EncodeToString(a[:]) }

// Hex returns the 0x-prefixed hex form, used in log lines.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

// AddressFromString parses the base32 text form back into an Address.
func AddressFromString(s string) (Address, error) {
	raw, err := b32.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != 32 {
		return Address{}, fmt.Errorf("decode address: want 32 bytes, got %d", len(raw))
	}
	var out Address
	copy(out[:], raw)
	return out, nil
}

// MarshalJSON renders an Address the same way String does, so API
// responses and CLI output carry base32 text instead of a byte array.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON reverses MarshalJSON.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := AddressFromString(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
