package solana

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 8032 test vector 1.
const (
	testSeedHex   = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	testPublicHex = "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
)

func testKeypair(t *testing.T) *Keypair {
	t.Helper()
	seed, err := hex.DecodeString(testSeedHex)
	require.NoError(t, err)
	kp, err := NewKeypairFromSeed(seed)
	require.NoError(t, err)
	return kp
}

func testSecret(t *testing.T) []byte {
	t.Helper()
	seed, _ := hex.DecodeString(testSeedHex)
	pub, _ := hex.DecodeString(testPublicHex)
	return append(seed, pub...)
}

func TestPublicKeyFromBase58(t *testing.T) {
	pk, err := PublicKeyFromBase58("11111111111111111111111111111111")
	require.NoError(t, err)
	assert.True(t, pk.IsZero())
	assert.Equal(t, SystemProgramID, pk)

	_, err = PublicKeyFromBase58("abc")
	assert.Error(t, err, "short key must fail")

	_, err = PublicKeyFromBase58("0OIl")
	assert.Error(t, err, "invalid alphabet must fail")

	assert.Equal(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", TokenProgramID.String())
}

func TestKeypair_FromSeed(t *testing.T) {
	kp := testKeypair(t)
	pk := kp.PublicKey()
	assert.Equal(t, testPublicHex, hex.EncodeToString(pk[:]))

	_, err := NewKeypairFromSeed([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestKeypairFromSecret_MismatchedHalf(t *testing.T) {
	secret := testSecret(t)
	secret[40] ^= 0xff

	_, err := KeypairFromSecret(secret)
	assert.Error(t, err)
}

func TestLoadKeypair(t *testing.T) {
	secret := testSecret(t)
	want := testKeypair(t).PublicKey()

	ints := make([]int, len(secret))
	for i, b := range secret {
		ints[i] = int(b)
	}
	jsonForm, err := json.Marshal(ints)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "id.json")
	require.NoError(t, os.WriteFile(path, jsonForm, 0o600))

	tests := []struct {
		name  string
		value string
	}{
		{"base58", base58.Encode(secret)},
		{"json array", string(jsonForm)},
		{"file", path},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kp, err := LoadKeypair(tt.value)
			require.NoError(t, err)
			assert.Equal(t, want, kp.PublicKey())
		})
	}

	_, err = LoadKeypair("")
	assert.True(t, errors.Is(err, ErrNoSigner))

	_, err = LoadKeypair("[1,2,300]")
	assert.Error(t, err)

	_, err = LoadKeypair(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestKeypair_NilSign(t *testing.T) {
	var kp *Keypair
	_, err := kp.Sign([]byte("msg"))
	assert.True(t, errors.Is(err, ErrNoSigner))
	assert.True(t, kp.PublicKey().IsZero())
}
