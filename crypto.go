package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const addressPrefix = "J"

// sha256Hex returns the lowercase hex-encoded SHA-256 digest of data.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sha256Bytes(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// keygen produces a fresh secp256k1 keypair and the address derived from
// its compressed public key.
func keygen() (privHex, pubHex, address string, err error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return "", "", "", err
	}
	privHex = hex.EncodeToString(priv.Serialize())
	pubHex = hex.EncodeToString(priv.PubKey().SerializeCompressed())
	address = addressOf(pubHex)
	return privHex, pubHex, address, nil
}

// derivePub returns the compressed public key hex for a private key hex.
func derivePub(privHex string) (string, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil {
		return "", err
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return hex.EncodeToString(priv.PubKey().SerializeCompressed()), nil
}

// addressOf derives the "J"+64-hex address from a compressed public key
// hex string: SHA-256 of the raw compressed point bytes, hex-encoded, with
// "J" prepended. Malformed input yields a deterministic non-matching
// string rather than a panic, since callers treat address mismatch as a
// verification failure, not a crash.
func addressOf(pubHex string) string {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return ""
	}
	return addressPrefix + sha256Hex(raw)
}

// isValidAddressShape checks the structural invariant from spec.md §3:
// exactly 65 characters, literal "J" followed by 64 lowercase hex digits.
func isValidAddressShape(address string) bool {
	if len(address) != 65 {
		return false
	}
	if address[0] != 'J' {
		return false
	}
	for _, c := range address[1:] {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// signMessage signs message with the secp256k1 private key (hex-encoded),
// returning a DER-encoded signature as hex.
func signMessage(privHex string, message []byte) (string, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil {
		return "", fmt.Errorf("decode private key: %w", err)
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	digest := sha256Bytes(message)
	sig := ecdsa.Sign(priv, digest[:])
	return hex.EncodeToString(sig.Serialize()), nil
}

// verifyMessage reports whether sigHex is a valid DER ECDSA signature by
// pubHex over message. It never panics or returns an error: any parsing or
// cryptographic failure is reported as false, per spec.md §4.1.
func verifyMessage(pubHex, sigHex string, message []byte) bool {
	pubRaw, err := hex.DecodeString(pubHex)
	if err != nil {
		return false
	}
	pub, err := secp256k1.ParsePubKey(pubRaw)
	if err != nil {
		return false
	}
	sigRaw, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(sigRaw)
	if err != nil {
		return false
	}
	digest := sha256Bytes(message)
	return sig.Verify(digest[:], pub)
}

// randomID returns a 64-hex identifier: SHA-256 of 32 CSPRNG bytes. Per
// spec.md's design notes, ids are random, never derived from content.
func randomID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return sha256Hex(buf), nil
}
