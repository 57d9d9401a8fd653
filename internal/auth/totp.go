package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod = 30
	// totpSkew tolerates ±2 steps (±60 seconds) of clock drift between
	// the server and the authenticator device.
	totpSkew = 2
)

// SecretCodec is the explicit persistence-boundary codec for MFA shared
// secrets. Secrets cross this boundary encrypted (AES-256-GCM) and are
// only decrypted transiently for verification.
type SecretCodec struct {
	key []byte // 32-byte AES-256 key
}

// NewSecretCodec creates a codec. key must be exactly 32 bytes.
func NewSecretCodec(key []byte) (*SecretCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(key))
	}
	return &SecretCodec{key: key}, nil
}

// Encode encrypts a plaintext secret for storage.
// Returns: (ciphertext, nonce, error)
func (c *SecretCodec) Encode(secret []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, secret, nil)
	return ciphertext, nonce, nil
}

// Decode decrypts a stored secret.
func (c *SecretCodec) Decode(ciphertext, nonce []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return plaintext, nil
}

// TOTPManager issues and verifies time-based one-time codes.
type TOTPManager struct {
	codec  *SecretCodec
	issuer string
}

// NewTOTPManager creates a TOTP manager using the given secret codec.
func NewTOTPManager(codec *SecretCodec, issuer string) *TOTPManager {
	return &TOTPManager{codec: codec, issuer: issuer}
}

// Codec exposes the persistence-boundary codec for the MFA service.
func (tm *TOTPManager) Codec() *SecretCodec {
	return tm.codec
}

// GenerateSecret issues a fresh shared secret for the given account.
// Returns the plaintext base32 secret (for manual entry), the encrypted
// form plus nonce (for storage), and a scannable QR data URL.
func (tm *TOTPManager) GenerateSecret(accountEmail string) (secret string, encrypted, nonce []byte, qrDataURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountEmail,
		SecretSize:  32,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", nil, nil, "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	secret = key.Secret()
	encrypted, nonce, err = tm.codec.Encode([]byte(secret))
	if err != nil {
		return "", nil, nil, "", fmt.Errorf("failed to encrypt secret: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Medium)
	if err != nil {
		return "", nil, nil, "", fmt.Errorf("failed to create QR code: %w", err)
	}
	qrImage, err := qr.PNG(200)
	if err != nil {
		return "", nil, nil, "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	qrDataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage)

	return secret, encrypted, nonce, qrDataURL, nil
}

// ValidateCode validates a time-based code against a plaintext secret.
func (tm *TOTPManager) ValidateCode(secret, code string) (bool, error) {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP: %w", err)
	}
	return valid, nil
}

// GenerateBackupCodes generates N random single-use recovery codes.
// Format: 8 characters from a charset excluding ambiguous glyphs
// (0/O, 1/I/L).
func GenerateBackupCodes(count int) ([]string, error) {
	const charset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

	codes := make([]string, count)
	buf := make([]byte, 8)
	for i := 0; i < count; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		code := make([]byte, 8)
		for j := range buf {
			code[j] = charset[buf[j]%byte(len(charset))]
		}
		codes[i] = string(code)
	}

	return codes, nil
}
