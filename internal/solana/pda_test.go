package solana

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProgramAddress(t *testing.T) {
	program := MustPublicKey("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	mint := MustPublicKey("So11111111111111111111111111111111111111112")
	seeds := [][]byte{[]byte("bonding-curve"), mint[:]}

	pda, bump, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)
	assert.False(t, pda.IsZero())
	assert.False(t, isOnCurve(pda[:]), "program address must be off curve")

	// Deterministic
	again, againBump, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)
	assert.Equal(t, pda, again)
	assert.Equal(t, bump, againBump)

	// The found bump reproduces the address
	direct, err := CreateProgramAddress(append(seeds, []byte{bump}), program)
	require.NoError(t, err)
	assert.Equal(t, pda, direct)

	// Every higher bump must have been on curve
	for b := int(bump) + 1; b <= 255; b++ {
		_, err := CreateProgramAddress(append(seeds, []byte{byte(b)}), program)
		assert.Error(t, err, "bump %d should be on curve", b)
	}
}

func TestFindProgramAddress_SeedTooLong(t *testing.T) {
	_, _, err := FindProgramAddress([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)}, SystemProgramID)
	assert.Error(t, err)
}

func TestFindAssociatedTokenAddress(t *testing.T) {
	owner := testKeypair(t).PublicKey()
	mint := MustPublicKey("So11111111111111111111111111111111111111112")

	ata, err := FindAssociatedTokenAddress(owner, mint, TokenProgramID)
	require.NoError(t, err)
	assert.False(t, isOnCurve(ata[:]))

	ata2022, err := FindAssociatedTokenAddress(owner, mint, Token2022ProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, ata, ata2022, "token program is part of the derivation")
}

func TestIsOnCurve(t *testing.T) {
	pub := testKeypair(t).PublicKey()
	assert.True(t, isOnCurve(pub[:]), "ed25519 public keys are on curve")
	assert.False(t, isOnCurve([]byte{1, 2, 3}))
}
