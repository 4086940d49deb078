package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
)

// Well-known program and account addresses.
var (
	SystemProgramID          = MustPublicKey("11111111111111111111111111111111")
	TokenProgramID           = MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ProgramID       = MustPublicKey("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenProgramID = MustPublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	ComputeBudgetProgramID   = MustPublicKey("ComputeBudget111111111111111111111111111111")
	RentSysvarID             = MustPublicKey("SysvarRent111111111111111111111111111111111")
	WrappedSOLMint           = MustPublicKey("So11111111111111111111111111111111111111112")
)

// ErrNoSigner is returned when signing is attempted without a usable key.
var ErrNoSigner = errors.New("no signing key")

// PublicKey is a 32-byte ed25519 public key or program address.
type PublicKey [32]byte

// PublicKeyFromBase58 decodes a base58 address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return pk, fmt.Errorf("decode public key %q: %w", s, err)
	}
	if len(b) != len(pk) {
		return pk, fmt.Errorf("decode public key %q: got %d bytes", s, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MustPublicKey decodes a base58 address and panics on error.
func MustPublicKey(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 encoding.
func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether p is the zero key.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// Keypair is an ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypairFromSeed derives a keypair from a 32-byte seed.
func NewKeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromSecret builds a keypair from a 64-byte secret (seed || public key).
func KeypairFromSecret(secret []byte) (*Keypair, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(secret))
	}
	priv := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
	if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(secret[ed25519.SeedSize:])) {
		return nil, fmt.Errorf("secret key public half does not match seed")
	}
	return &Keypair{priv: priv}, nil
}

// LoadKeypair parses a secret key given as base58, a JSON byte array
// (solana-keygen format) or a path to a file holding either.
func LoadKeypair(value string) (*Keypair, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrNoSigner
	}

	if kp, err := parseKeypair(value); err == nil {
		return kp, nil
	} else if strings.HasPrefix(value, "[") {
		return nil, err
	}

	data, err := os.ReadFile(value)
	if err != nil {
		return nil, fmt.Errorf("keypair is neither base58, json nor a readable file: %w", err)
	}
	return parseKeypair(strings.TrimSpace(string(data)))
}

func parseKeypair(value string) (*Keypair, error) {
	if strings.HasPrefix(value, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(value), &ints); err != nil {
			return nil, fmt.Errorf("parse keypair json: %w", err)
		}
		raw := make([]byte, 0, len(ints))
		for _, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("parse keypair json: byte out of range: %d", v)
			}
			raw = append(raw, byte(v))
		}
		return KeypairFromSecret(raw)
	}

	b, err := base58.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("parse keypair base58: %w", err)
	}
	return KeypairFromSecret(b)
}

// PublicKey returns the public half.
func (k *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	if k == nil || len(k.priv) != ed25519.PrivateKeySize {
		return pk
	}
	copy(pk[:], k.priv[ed25519.SeedSize:])
	return pk
}

// Sign signs msg. Returns ErrNoSigner if the keypair is unusable.
func (k *Keypair) Sign(msg []byte) ([]byte, error) {
	if k == nil || len(k.priv) != ed25519.PrivateKeySize {
		return nil, ErrNoSigner
	}
	return ed25519.Sign(k.priv, msg), nil
}
