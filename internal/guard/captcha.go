package guard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// CaptchaThreshold is the per-account failure count after which
	// login attempts must carry a verified challenge token.
	CaptchaThreshold = 3

	// captchaMinScore is the minimum confidence score accepted from
	// the challenge-verification service.
	captchaMinScore = 0.5
)

// CaptchaVerifier checks a human-interaction token against an external
// challenge-verification service.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// HTTPCaptchaVerifier talks to a reCAPTCHA-style siteverify endpoint.
// Transport failures fail open: the guard must not lock out legitimate
// users because the verification service is down.
type HTTPCaptchaVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPCaptchaVerifier creates a verifier.
func NewHTTPCaptchaVerifier(endpoint, secret string, timeout time.Duration, logger *slog.Logger) *HTTPCaptchaVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPCaptchaVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type captchaResponse struct {
	Success bool     `json:"success"`
	Score   float64  `json:"score"`
	Errors  []string `json:"error-codes"`
}

// Verify submits the token. An empty token always fails; a service
// outage logs a warning and reports success.
func (v *HTTPCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		// Fail open on transport errors.
		v.logger.Warn("captcha verification service unreachable", slog.Any("error", err))
		return true, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Warn("captcha verification service error",
			slog.Int("status", resp.StatusCode))
		return true, nil
	}

	var body captchaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		v.logger.Warn("captcha verification response malformed", slog.Any("error", err))
		return true, nil
	}

	return body.Success && body.Score >= captchaMinScore, nil
}
