package auth

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec(t *testing.T) *SecretCodec {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	codec, err := NewSecretCodec(key)
	require.NoError(t, err)
	return codec
}

func TestNewSecretCodec_KeyLength(t *testing.T) {
	_, err := NewSecretCodec([]byte("too-short"))
	assert.Error(t, err)

	_, err = NewSecretCodec(make([]byte, 32))
	assert.NoError(t, err)
}

func TestSecretCodec_RoundTrip(t *testing.T) {
	codec := testCodec(t)

	secret := []byte("JBSWY3DPEHPK3PXP")
	ciphertext, nonce, err := codec.Encode(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, ciphertext)

	decoded, err := codec.Decode(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, secret, decoded)
}

func TestSecretCodec_WrongNonceFails(t *testing.T) {
	codec := testCodec(t)

	ciphertext, _, err := codec.Encode([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	_, err = codec.Decode(ciphertext, make([]byte, 12))
	assert.Error(t, err)
}

func TestTOTPManager_GenerateAndValidate(t *testing.T) {
	tm := NewTOTPManager(testCodec(t), "Inkwell")

	secret, encrypted, nonce, qrDataURL, err := tm.GenerateSecret("a@b.com")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.NotEmpty(t, encrypted)
	assert.Len(t, nonce, 12)
	assert.Contains(t, qrDataURL, "data:image/png;base64,")

	// Stored form must round-trip back to the issued secret.
	decoded, err := tm.Codec().Decode(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, secret, string(decoded))

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	valid, err := tm.ValidateCode(secret, code)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = tm.ValidateCode(secret, "000000")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestTOTPManager_ClockSkewTolerance(t *testing.T) {
	tm := NewTOTPManager(testCodec(t), "Inkwell")

	secret, _, _, _, err := tm.GenerateSecret("a@b.com")
	require.NoError(t, err)

	// Codes up to two steps behind are still accepted.
	staleCode, err := totp.GenerateCodeCustom(secret, time.Now().Add(-60*time.Second), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	valid, err := tm.ValidateCode(secret, staleCode)
	require.NoError(t, err)
	assert.True(t, valid)

	// Three steps out is beyond the tolerance window.
	tooStale, err := totp.GenerateCodeCustom(secret, time.Now().Add(-120*time.Second), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	valid, err = tm.ValidateCode(secret, tooStale)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Len(t, code, 8)
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "1")
		assert.NotContains(t, code, "I")
		assert.NotContains(t, code, "L")
		seen[code] = true
	}
	assert.Len(t, seen, 10, "codes should be distinct")
}
