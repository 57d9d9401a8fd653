package password

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBreachEndpoint is the public breach-database range API.
const DefaultBreachEndpoint = "https://api.pwnedpasswords.com/range/"

// BreachChecker queries a breach-database range API using k-anonymity:
// only the first five hex characters of the SHA-1 digest leave the
// process, and the suffix match happens locally.
type BreachChecker struct {
	endpoint string
	client   *http.Client
}

// NewBreachChecker creates a checker against the given range endpoint.
// The timeout bounds how long a single registration request can stall
// on the breach lookup.
func NewBreachChecker(endpoint string, timeout time.Duration) *BreachChecker {
	if endpoint == "" {
		endpoint = DefaultBreachEndpoint
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BreachChecker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// IsCompromised reports whether the password appears in the breach
// corpus. A non-nil error means the verifier could not be reached; the
// caller decides how to degrade.
func (c *BreachChecker) IsCompromised(ctx context.Context, password string) (bool, error) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix := digest[:5]
	suffix := digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+prefix, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("breach range query returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, err
	}

	for _, line := range strings.Split(string(body), "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), ":", 2)
		if len(parts) >= 1 && strings.EqualFold(parts[0], suffix) {
			// Padding entries report a zero count.
			if len(parts) == 2 && strings.TrimSpace(parts[1]) == "0" {
				continue
			}
			return true, nil
		}
	}

	return false, nil
}
