package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealVerify(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)

	env, err := SealMessage(keys, NewOrderMessage(strPtr("o1"), nil, nil, ActionFiatSent, nil), 8)
	require.NoError(t, err)
	assert.Equal(t, keys.PublicKey(), env.Pubkey)
	assert.GreaterOrEqual(t, env.Difficulty(), 8)
	require.NoError(t, env.Verify())

	m, err := ParseMessage(env.Content)
	require.NoError(t, err)
	assert.Equal(t, ActionFiatSent, m.Action())

	tampered := *env
	tampered.Content = `{"order":{"version":1,"id":"o1","action":"release"}}`
	assert.ErrorIs(t, tampered.Verify(), ErrInvalidID)

	other, err := GenerateKeys()
	require.NoError(t, err)
	forged := *env
	forged.Sig, err = other.Sign(forged.hash())
	require.NoError(t, err)
	assert.ErrorIs(t, forged.Verify(), ErrInvalidSignature)
}

func TestKeysFromMnemonic(t *testing.T) {
	mnemonic, err := NewMnemonic()
	require.NoError(t, err)
	k1, err := KeysFromMnemonic(mnemonic, "")
	require.NoError(t, err)
	k2, err := KeysFromMnemonic(mnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, k1.PublicKey(), k2.PublicKey())

	k3, err := KeysFromHex(k1.SecretHex())
	require.NoError(t, err)
	assert.Equal(t, k1.PublicKey(), k3.PublicKey())
	assert.True(t, ValidPubkey(k1.PublicKey()))
	assert.False(t, ValidPubkey("zz"))

	_, err = KeysFromMnemonic("not a valid phrase", "")
	assert.Error(t, err)
}

func TestLeadingZeroBits(t *testing.T) {
	assert.Equal(t, 0, leadingZeroBits([]byte{0x80}))
	assert.Equal(t, 7, leadingZeroBits([]byte{0x01}))
	assert.Equal(t, 12, leadingZeroBits([]byte{0x00, 0x0f}))
}

func TestAuthSignature(t *testing.T) {
	keys, err := GenerateKeys()
	require.NoError(t, err)
	h := AuthHash(keys.PublicKey(), 100)
	sig, err := keys.Sign(h)
	require.NoError(t, err)
	assert.True(t, VerifySignature(keys.PublicKey(), h, sig))
	assert.False(t, VerifySignature(keys.PublicKey(), AuthHash(keys.PublicKey(), 101), sig))
}
