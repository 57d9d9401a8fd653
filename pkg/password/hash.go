package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost = 12

	// MaxPasswordLen matches bcrypt's 72-byte input limit. The policy
	// engine enforces it so no policy-valid password can fail to hash.
	MaxPasswordLen = 72
)

func Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func Compare(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
