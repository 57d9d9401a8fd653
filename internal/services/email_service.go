package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/inkwell-labs/gatekeeper/pkg/logger"
)

// EmailService defines the interface for sending account emails
type EmailService interface {
	SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error
	SendVerificationLink(ctx context.Context, email, token string, expiresAt time.Time) error
	SendPasswordResetLink(ctx context.Context, email, token string, expiresAt time.Time) error
	SendNewLocationAlert(ctx context.Context, email, location, ipAddress string, at time.Time) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress, baseURL string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      logger,
	}, nil
}

// SendVerificationCode sends the short numeric code used during
// registration.
func (s *AWSSESEmailService) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())

	textBody := fmt.Sprintf(`Confirm your email address

Your verification code is:

    %s

Enter this code to finish setting up your account. The code expires in %d minutes.

Didn't create this account? You can ignore this email.
`, code, minutes)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h1>Confirm your email address</h1>
        <p>Your verification code is:</p>
        <p style="font-size: 32px; letter-spacing: 6px; font-weight: bold;">%s</p>
        <p>Enter this code to finish setting up your account. The code expires in %d minutes.</p>
        <p style="color: #666; font-size: 12px;">Didn't create this account? You can ignore this email.</p>
    </div>
</body>
</html>
`, code, minutes)

	return s.send(ctx, email, "Your verification code", htmlBody, textBody)
}

// SendVerificationLink sends the long-lived verification link used by
// the resend flow.
func (s *AWSSESEmailService) SendVerificationLink(ctx context.Context, email, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)
	hours := int(time.Until(expiresAt).Round(time.Hour).Hours())

	textBody := fmt.Sprintf(`Verify your email address

Click the link below to verify your email address:

%s

The link expires in %d hours.

Didn't create this account? You can ignore this email.
`, link, hours)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h1>Verify your email address</h1>
        <p><a href="%s" style="display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Verify Email Address</a></p>
        <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
        <p>The link expires in %d hours.</p>
        <p style="color: #666; font-size: 12px;">Didn't create this account? You can ignore this email.</p>
    </div>
</body>
</html>
`, link, link, hours)

	return s.send(ctx, email, "Verify your email address", htmlBody, textBody)
}

// SendPasswordResetLink sends a password reset link.
func (s *AWSSESEmailService) SendPasswordResetLink(ctx context.Context, email, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	hours := int(time.Until(expiresAt).Round(time.Hour).Hours())

	textBody := fmt.Sprintf(`Reset your password

We received a request to reset the password for your account. Click the link below to choose a new password:

%s

The link expires in %d hours.

Didn't request this? You can ignore this email and your password will stay unchanged.
`, link, hours)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h1>Reset your password</h1>
        <p>We received a request to reset the password for your account.</p>
        <p><a href="%s" style="display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Choose a new password</a></p>
        <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
        <p>The link expires in %d hours.</p>
        <p style="color: #666; font-size: 12px;">Didn't request this? You can ignore this email and your password will stay unchanged.</p>
    </div>
</body>
</html>
`, link, link, hours)

	return s.send(ctx, email, "Reset your password", htmlBody, textBody)
}

// SendNewLocationAlert notifies the account owner about a sign-in from
// a location not seen before.
func (s *AWSSESEmailService) SendNewLocationAlert(ctx context.Context, email, location, ipAddress string, at time.Time) error {
	when := at.UTC().Format("Jan 2, 2006 15:04 MST")

	textBody := fmt.Sprintf(`New sign-in to your account

We noticed a sign-in from a new location:

    Location: %s
    IP address: %s
    Time: %s

If this was you, no action is needed.

If you don't recognize this activity, reset your password immediately and review your active sessions.
`, location, ipAddress, when)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h1>New sign-in to your account</h1>
        <p>We noticed a sign-in from a new location:</p>
        <ul>
            <li><strong>Location:</strong> %s</li>
            <li><strong>IP address:</strong> %s</li>
            <li><strong>Time:</strong> %s</li>
        </ul>
        <p>If this was you, no action is needed.</p>
        <p><strong>If you don't recognize this activity</strong>, reset your password immediately and review your active sessions.</p>
    </div>
</body>
</html>
`, location, ipAddress, when)

	return s.send(ctx, email, "New sign-in from "+location, htmlBody, textBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, email, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}
