package password

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Validate_TooShort(t *testing.T) {
	engine := NewEngine(nil, slog.Default())

	shortPasswords := []string{
		"",
		"a",
		"Short1!",
		"elevenchars", // 11 chars, one under the floor
	}

	for _, p := range shortPasswords {
		res := engine.Validate(context.Background(), p, nil)
		assert.False(t, res.Valid, "password %q should fail", p)
		assert.NotEmpty(t, res.ComplexityErrors)
	}
}

func TestEngine_Validate_StrongPassword(t *testing.T) {
	engine := NewEngine(nil, slog.Default())

	res := engine.Validate(context.Background(), "Str0ng!Passw0rd#2024", nil)

	assert.True(t, res.Valid)
	assert.Empty(t, res.ComplexityErrors)
	assert.GreaterOrEqual(t, res.StrengthScore, MinStrengthScore)
	assert.False(t, res.Compromised)
}

func TestEngine_Validate_ClassMixBonus(t *testing.T) {
	engine := NewEngine(nil, slog.Default())

	// Spans all four classes: the estimator's raw score gets the bump.
	mixed := engine.Validate(context.Background(), "Str0ng!Passw0rd#2024", nil)
	raw := zxcvbn.PasswordStrength("Str0ng!Passw0rd#2024", nil).Score
	assert.Equal(t, raw+1, mixed.StrengthScore)
	assert.True(t, mixed.Valid)

	// Two classes only: the score is the estimator's, untouched.
	flat := engine.Validate(context.Background(), "str0ngpassw0rd2024", nil)
	assert.Equal(t, zxcvbn.PasswordStrength("str0ngpassw0rd2024", nil).Score, flat.StrengthScore)
}

func TestEngine_Validate_LengthCapMatchesHash(t *testing.T) {
	engine := NewEngine(nil, slog.Default())

	// One byte over the cap: refused by policy, so it never reaches
	// the hasher's own limit.
	over := strings.Repeat("Aa1!", 18) + "x"
	require.Len(t, over, MaxPasswordLen+1)

	res := engine.Validate(context.Background(), over, nil)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.ComplexityErrors)

	// At the cap: policy accepts and the hasher must too.
	atCap := strings.Repeat("Aa1!", 18)
	res = engine.Validate(context.Background(), atCap, nil)
	assert.True(t, res.Valid)

	_, err := Hash(atCap)
	require.NoError(t, err)
}

func TestEngine_Validate_IdentityDerivedPenalty(t *testing.T) {
	engine := NewEngine(nil, slog.Default())

	// Long enough to pass complexity, but derived from the user's
	// own identity, so the seeded estimator scores it down.
	res := engine.Validate(context.Background(), "jane.doe@example.com",
		[]string{"Jane Doe", "jane.doe@example.com"})

	assert.False(t, res.Valid)
	assert.Less(t, res.StrengthScore, MinStrengthScore)
}

func TestEngine_Validate_CompromisedPassword(t *testing.T) {
	const leaked = "password123456"

	server := breachRangeServer(t, leaked)
	defer server.Close()

	checker := NewBreachChecker(server.URL+"/range/", 2*time.Second)
	engine := NewEngine(checker, slog.Default())

	res := engine.Validate(context.Background(), leaked, nil)

	assert.True(t, res.Compromised)
	assert.False(t, res.Valid)
	assert.False(t, res.BreachCheckDegraded)
}

func TestEngine_Validate_BreachCheckFailsOpen(t *testing.T) {
	// Point at a closed listener so the lookup fails fast.
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	checker := NewBreachChecker(server.URL+"/range/", 500*time.Millisecond)
	engine := NewEngine(checker, slog.Default())

	res := engine.Validate(context.Background(), "Str0ng!Passw0rd#2024", nil)

	assert.True(t, res.Valid, "verifier outage must not block the caller")
	assert.False(t, res.Compromised)
	assert.True(t, res.BreachCheckDegraded)
}

func TestBreachChecker_UnknownPassword(t *testing.T) {
	server := breachRangeServer(t, "password123456")
	defer server.Close()

	checker := NewBreachChecker(server.URL+"/range/", 2*time.Second)

	compromised, err := checker.IsCompromised(context.Background(), "fKq9#vL2mXw8$pT4zRb6")
	require.NoError(t, err)
	assert.False(t, compromised)
}

// breachRangeServer serves a k-anonymity range response containing the
// given leaked password plus filler suffixes.
func breachRangeServer(t *testing.T, leaked string) *httptest.Server {
	t.Helper()

	sum := sha1.Sum([]byte(leaked))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix := digest[:5]
	suffix := digest[5:]

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested := strings.TrimPrefix(r.URL.Path, "/range/")

		lines := []string{
			"0018A45C4D1DEF81644B54AB7F969B88D65:3",
			"00D4F6E8FA6EECAD2A3AA415EEC418D38EC:2",
		}
		if requested == prefix {
			lines = append(lines, fmt.Sprintf("%s:52579", suffix))
		}
		fmt.Fprint(w, strings.Join(lines, "\r\n"))
	}))
}
