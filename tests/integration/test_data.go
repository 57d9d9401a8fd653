package integration

import (
	"fmt"
	"strings"
	"time"
)

// TestCredentials generates unique test account credentials using timestamp
func TestCredentials(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "Tq8#vZr2LempW!du"
	return
}

// ExtractTokenFromEmail extracts the verification token from an email body
// Email format: "Verification token: {token}"
func ExtractTokenFromEmail(emailBody string) string {
	const prefix = "Verification token: "
	if !strings.HasPrefix(emailBody, prefix) {
		return ""
	}
	return emailBody[len(prefix):]
}
