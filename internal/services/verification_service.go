package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/inkwell-labs/gatekeeper/internal/models"
)

// Verification lifetimes. Codes are short-lived because they are short;
// links carry enough entropy to live longer.
const (
	VerificationCodeTTL = 10 * time.Minute
	VerificationLinkTTL = 24 * time.Hour
)

// VerificationRepository defines the interface for pending-verification persistence
type VerificationRepository interface {
	Replace(ctx context.Context, v *models.VerificationToken) (*models.VerificationToken, error)
	GetByAccountAndPurpose(ctx context.Context, accountID, purpose string) (*models.VerificationToken, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.VerificationToken, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// VerificationService issues and settles one-time verifications. Both
// variants share the same storage and consumption rules; only the token
// shape and lifetime differ.
type VerificationService struct {
	repo   VerificationRepository
	email  EmailService
	logger *slog.Logger
}

// NewVerificationService creates a new VerificationService
func NewVerificationService(repo VerificationRepository, email EmailService, logger *slog.Logger) *VerificationService {
	return &VerificationService{
		repo:   repo,
		email:  email,
		logger: logger,
	}
}

// IssueCode creates a 6-digit verification code for the account and
// emails it. If the email cannot be sent the pending verification is
// rolled back, so a stored code always means a delivered code.
func (s *VerificationService) IssueCode(ctx context.Context, account *models.Account, purpose string) error {
	code, err := generateNumericCode(6)
	if err != nil {
		return fmt.Errorf("failed to generate verification code: %w", err)
	}

	stored, err := s.repo.Replace(ctx, &models.VerificationToken{
		AccountID: account.ID,
		Kind:      models.VerificationKindCode,
		Purpose:   purpose,
		TokenHash: hashToken(code),
		ExpiresAt: time.Now().Add(VerificationCodeTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to store verification: %w", err)
	}

	if err := s.email.SendVerificationCode(ctx, account.Email, code, stored.ExpiresAt); err != nil {
		if delErr := s.repo.Delete(ctx, stored.ID); delErr != nil && !errors.Is(delErr, models.ErrNotFound) {
			s.logger.Error("failed to roll back verification after send failure",
				slog.String("account_id", account.ID),
				slog.Any("error", delErr))
		}
		return models.ErrInternalServer
	}

	return nil
}

// IssueLink creates an opaque link token for the account and emails it.
// Same rollback rule as IssueCode.
func (s *VerificationService) IssueLink(ctx context.Context, account *models.Account, purpose string) error {
	token, err := generateOpaqueToken()
	if err != nil {
		return fmt.Errorf("failed to generate verification token: %w", err)
	}

	stored, err := s.repo.Replace(ctx, &models.VerificationToken{
		AccountID: account.ID,
		Kind:      models.VerificationKindLink,
		Purpose:   purpose,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(VerificationLinkTTL),
	})
	if err != nil {
		return fmt.Errorf("failed to store verification: %w", err)
	}

	var sendErr error
	switch purpose {
	case models.VerificationPurposePasswordReset:
		sendErr = s.email.SendPasswordResetLink(ctx, account.Email, token, stored.ExpiresAt)
	default:
		sendErr = s.email.SendVerificationLink(ctx, account.Email, token, stored.ExpiresAt)
	}

	if sendErr != nil {
		if delErr := s.repo.Delete(ctx, stored.ID); delErr != nil && !errors.Is(delErr, models.ErrNotFound) {
			s.logger.Error("failed to roll back verification after send failure",
				slog.String("account_id", account.ID),
				slog.Any("error", delErr))
		}
		return models.ErrInternalServer
	}

	return nil
}

// SettleCode checks a code for the account and purpose, consuming it on
// success. Expired or mismatched codes return ErrVerificationFailed.
func (s *VerificationService) SettleCode(ctx context.Context, accountID, purpose, code string) error {
	pending, err := s.repo.GetByAccountAndPurpose(ctx, accountID, purpose)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrVerificationFailed
		}
		return models.ErrInternalServer
	}

	if pending.Kind != models.VerificationKindCode || pending.IsExpired() {
		return models.ErrVerificationFailed
	}

	if subtle.ConstantTimeCompare([]byte(pending.TokenHash), []byte(hashToken(code))) != 1 {
		return models.ErrVerificationFailed
	}

	if err := s.repo.Delete(ctx, pending.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return models.ErrInternalServer
	}
	return nil
}

// SettleLink checks an opaque link token, consuming it on success and
// returning the verification it settled.
func (s *VerificationService) SettleLink(ctx context.Context, purpose, token string) (*models.VerificationToken, error) {
	pending, err := s.repo.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrVerificationFailed
		}
		return nil, models.ErrInternalServer
	}

	if pending.Kind != models.VerificationKindLink || pending.Purpose != purpose || pending.IsExpired() {
		return nil, models.ErrVerificationFailed
	}

	if err := s.repo.Delete(ctx, pending.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInternalServer
	}
	return pending, nil
}

// PurgeExpired removes stale verifications, returning how many were
// deleted. Wired to the background cleanup loop.
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
