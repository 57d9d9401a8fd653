package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/inkwell-labs/gatekeeper/internal/auth"
	"github.com/inkwell-labs/gatekeeper/internal/guard"
	"github.com/inkwell-labs/gatekeeper/internal/models"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

// AuthService drives registration and the login decision chain: IP
// block, account lock, captcha, credential, MFA and email-verification
// gates, in that order.
type AuthService struct {
	repo         AccountRepository
	sessions     *SessionService
	mfa          *MFAService
	verification *VerificationService
	policy       *password.Engine
	blocks       guard.BlockStore
	captcha      guard.CaptchaVerifier
	backoff      *auth.BackoffPolicy
	audit        *AuditService
	logger       *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo AccountRepository,
	sessions *SessionService,
	mfa *MFAService,
	verification *VerificationService,
	policy *password.Engine,
	blocks guard.BlockStore,
	captcha guard.CaptchaVerifier,
	backoff *auth.BackoffPolicy,
	audit *AuditService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		repo:         repo,
		sessions:     sessions,
		mfa:          mfa,
		verification: verification,
		policy:       policy,
		blocks:       blocks,
		captcha:      captcha,
		backoff:      backoff,
		audit:        audit,
		logger:       logger,
	}
}

// AccountResponse represents an account in HTTP responses
type AccountResponse struct {
	ID                 string                  `json:"id"`
	Email              string                  `json:"email"`
	Name               string                  `json:"name"`
	Role               string                  `json:"role"`
	EmailVerified      bool                    `json:"email_verified"`
	MFAEnabled         bool                    `json:"mfa_enabled"`
	MustChangePassword bool                    `json:"must_change_password"`
	PasswordExpiry     *password.ExpiryStatus  `json:"password_expiry,omitempty"`
	CreatedAt          string                  `json:"created_at"`
	UpdatedAt          string                  `json:"updated_at"`
}

// LoginAttempt is one credential submission.
type LoginAttempt struct {
	Email        string
	Password     string
	CaptchaToken string
	MFACode      string
	Device       string
	IPAddress    string
}

// LoginResult is the outcome of a login attempt. On throttling errors
// RetryAfter tells the client how long to wait; CaptchaRequired tells
// it the next attempt must carry a challenge token.
type LoginResult struct {
	Token           string           `json:"token,omitempty"`
	Session         *models.Session  `json:"session,omitempty"`
	Account         *AccountResponse `json:"account,omitempty"`
	MFARequired     bool             `json:"mfa_required,omitempty"`
	CaptchaRequired bool             `json:"captcha_required,omitempty"`
	BanReason       string           `json:"ban_reason,omitempty"`
	RetryAfter      time.Duration    `json:"-"`
}

// Login authenticates a credential pair. Accounts with MFA enabled get
// an intermediate result with MFARequired set; the client then repeats
// the call through CompleteMFALogin with a code.
func (s *AuthService) Login(ctx context.Context, attempt LoginAttempt) (*LoginResult, error) {
	account, result, err := s.checkCredential(ctx, &attempt)
	if err != nil {
		return result, err
	}

	if account.MFAEnabled {
		// Provisional result: the account reference lets the client
		// show who is completing the challenge; no session exists yet.
		return &LoginResult{MFARequired: true, Account: accountToResponse(account)}, nil
	}

	return s.finalizeLogin(ctx, account, attempt)
}

// CompleteMFALogin settles the second factor and establishes the
// session. The credential is re-verified; the intermediate MFARequired
// result carries no server-side state.
func (s *AuthService) CompleteMFALogin(ctx context.Context, attempt LoginAttempt) (*LoginResult, error) {
	account, result, err := s.checkCredential(ctx, &attempt)
	if err != nil {
		return result, err
	}

	if !account.MFAEnabled {
		return nil, models.ErrMFANotEnabled
	}

	if err := s.mfa.VerifyChallenge(ctx, account, attempt.MFACode); err != nil {
		return nil, err
	}

	return s.finalizeLogin(ctx, account, attempt)
}

// CompleteOAuthLogin establishes a session for an identity asserted by
// an external provider. Accounts are created on first sight with the
// email already verified. The MFA gate does not apply on this path.
func (s *AuthService) CompleteOAuthLogin(ctx context.Context, email, name, provider, device, ipAddress string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, models.ErrBadRequest
	}

	account, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		account, err = s.repo.Create(ctx, &models.Account{
			Email:         email,
			Name:          strings.TrimSpace(name),
			Role:          models.RoleCustomer,
			EmailVerified: true,
		})
	}
	if err != nil {
		s.logger.Error("failed to resolve oauth account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account.Banned {
		s.recordBannedAttempt(ctx, account, ipAddress, device)
		result := &LoginResult{}
		if account.BanReason != nil {
			result.BanReason = *account.BanReason
		}
		return result, models.ErrAccountBanned
	}

	result, err := s.establish(ctx, account, device, ipAddress)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:   account.ID,
		Action:    models.AuditActionLogin,
		Outcome:   models.AuditOutcomeSuccess,
		Severity:  models.AuditSeverityLow,
		IPAddress: ipAddress,
		UserAgent: device,
		Details:   models.AuditMetadata{"method": "oauth", "provider": provider},
	})
	return result, nil
}

// checkCredential runs the pre-session gates shared by the password and
// MFA completion paths. On throttling failures the returned result
// carries RetryAfter and CaptchaRequired for the response.
func (s *AuthService) checkCredential(ctx context.Context, attempt *LoginAttempt) (*models.Account, *LoginResult, error) {
	attempt.Email = strings.ToLower(strings.TrimSpace(attempt.Email))
	if attempt.Email == "" {
		return nil, nil, models.ErrUnauthorized
	}

	blocked, remaining, err := s.blocks.IsBlocked(ctx, attempt.IPAddress)
	if err != nil {
		s.logger.Error("ip block lookup failed", slog.Any("error", err))
		// Block store outage must not take logins down with it.
	} else if blocked {
		s.audit.Record(ctx, AuditEntry{
			Action:    models.AuditActionLoginBlocked,
			Outcome:   models.AuditOutcomeFailure,
			Severity:  models.AuditSeverityHigh,
			IPAddress: attempt.IPAddress,
			Details:   models.AuditMetadata{"reason": "ip_blocked"},
		})
		return nil, &LoginResult{RetryAfter: remaining}, models.ErrIPBlocked
	}

	account, err := s.repo.GetByEmail(ctx, attempt.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Unknown emails still count against the source IP.
			s.bumpIPFailures(ctx, attempt.IPAddress)
			s.audit.Record(ctx, AuditEntry{
				Action:    models.AuditActionLoginFailed,
				Outcome:   models.AuditOutcomeFailure,
				Severity:  models.AuditSeverityMedium,
				IPAddress: attempt.IPAddress,
				Details:   models.AuditMetadata{"reason": "unknown_email"},
			})
			return nil, nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	if account.Banned {
		s.recordBannedAttempt(ctx, account, attempt.IPAddress, attempt.Device)
		result := &LoginResult{}
		if account.BanReason != nil {
			result.BanReason = *account.BanReason
		}
		return nil, result, models.ErrAccountBanned
	}

	if guard.ClearExpiredLock(account) {
		if _, err := s.repo.Update(ctx, account); err != nil {
			s.logger.Error("failed to clear expired lock", slog.String("account_id", account.ID), slog.Any("error", err))
		} else {
			s.audit.Record(ctx, AuditEntry{
				ActorID:  account.ID,
				Action:   models.AuditActionAccountUnlocked,
				Outcome:  models.AuditOutcomeSuccess,
				Severity: models.AuditSeverityLow,
				Details:  models.AuditMetadata{"reason": "lock_expired"},
			})
		}
	}

	if account.IsLocked() {
		s.audit.Record(ctx, AuditEntry{
			ActorID:   account.ID,
			Action:    models.AuditActionLoginBlocked,
			Outcome:   models.AuditOutcomeFailure,
			Severity:  models.AuditSeverityHigh,
			IPAddress: attempt.IPAddress,
			Details:   models.AuditMetadata{"reason": "account_locked"},
		})
		return nil, &LoginResult{RetryAfter: account.LockRemaining()}, models.ErrAccountLocked
	}

	if guard.RequiresCaptcha(account) {
		ok, err := s.captcha.Verify(ctx, attempt.CaptchaToken, attempt.IPAddress)
		if err != nil {
			s.logger.Error("captcha verification errored", slog.Any("error", err))
			return nil, nil, models.ErrInternalServer
		}
		if !ok {
			s.audit.Record(ctx, AuditEntry{
				ActorID:   account.ID,
				Action:    models.AuditActionCaptchaFailed,
				Outcome:   models.AuditOutcomeFailure,
				Severity:  models.AuditSeverityMedium,
				IPAddress: attempt.IPAddress,
			})
			return nil, &LoginResult{CaptchaRequired: true}, models.ErrCaptchaFailed
		}
	}

	if !account.HasPassword() {
		// OAuth-only account: a password submission can never match.
		return nil, s.registerFailure(ctx, account, attempt.IPAddress, "no_password"), models.ErrUnauthorized
	}

	if err := password.Compare(account.PasswordHash, attempt.Password); err != nil {
		return nil, s.registerFailure(ctx, account, attempt.IPAddress, "bad_password"), models.ErrUnauthorized
	}

	return account, nil, nil
}

// registerFailure applies both failure counters and returns the
// throttle hints for the response.
func (s *AuthService) registerFailure(ctx context.Context, account *models.Account, ipAddress, reason string) *LoginResult {
	lockedNow := guard.RegisterFailure(account)
	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to persist failure count", slog.String("account_id", account.ID), slog.Any("error", err))
	}

	s.bumpIPFailures(ctx, ipAddress)

	s.audit.Record(ctx, AuditEntry{
		ActorID:   account.ID,
		Action:    models.AuditActionLoginFailed,
		Outcome:   models.AuditOutcomeFailure,
		Severity:  guard.FailureSeverity(account.FailedLoginCount),
		IPAddress: ipAddress,
		Details:   models.AuditMetadata{"reason": reason, "failure_count": account.FailedLoginCount},
	})

	if lockedNow {
		s.audit.Record(ctx, AuditEntry{
			ActorID:   account.ID,
			Action:    models.AuditActionAccountLocked,
			Outcome:   models.AuditOutcomeWarning,
			Severity:  models.AuditSeverityHigh,
			IPAddress: ipAddress,
			Details:   models.AuditMetadata{"locked_for": guard.AccountLockDuration.String()},
		})
	}

	return &LoginResult{
		RetryAfter:      s.backoff.RetryAfter(account.FailedLoginCount),
		CaptchaRequired: guard.RequiresCaptcha(account),
	}
}

func (s *AuthService) bumpIPFailures(ctx context.Context, ipAddress string) {
	count, err := s.blocks.Increment(ctx, ipAddress)
	if err != nil {
		s.logger.Error("failed to increment ip failures", slog.String("ip", ipAddress), slog.Any("error", err))
		return
	}
	if count == guard.MaxIPFailures {
		s.audit.Record(ctx, AuditEntry{
			Action:    models.AuditActionIPBlocked,
			Outcome:   models.AuditOutcomeWarning,
			Severity:  models.AuditSeverityCritical,
			IPAddress: ipAddress,
			Details:   models.AuditMetadata{"blocked_for": guard.IPBlockDuration.String()},
		})
	}
}

// finalizeLogin runs the post-credential gates and opens the session.
func (s *AuthService) finalizeLogin(ctx context.Context, account *models.Account, attempt LoginAttempt) (*LoginResult, error) {
	if !account.EmailVerified {
		s.audit.Record(ctx, AuditEntry{
			ActorID:   account.ID,
			Action:    models.AuditActionLoginBlocked,
			Outcome:   models.AuditOutcomeFailure,
			Severity:  models.AuditSeverityMedium,
			IPAddress: attempt.IPAddress,
			Details:   models.AuditMetadata{"reason": "email_not_verified"},
		})

		// Re-issue the code so the client can complete verification
		// right away; any prior pending code is displaced.
		if err := s.verification.IssueCode(ctx, account, models.VerificationPurposeEmail); err != nil {
			s.logger.Error("failed to reissue verification code",
				slog.String("account_id", account.ID), slog.Any("error", err))
		} else {
			s.audit.Record(ctx, AuditEntry{
				ActorID:  account.ID,
				Action:   models.AuditActionEmailCodeSent,
				Outcome:  models.AuditOutcomeSuccess,
				Severity: models.AuditSeverityLow,
			})
		}

		return &LoginResult{Account: accountToResponse(account)}, models.ErrEmailNotVerified
	}

	guard.ResetFailures(account)
	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to reset failure count", slog.String("account_id", account.ID), slog.Any("error", err))
	}
	if err := s.blocks.Reset(ctx, attempt.IPAddress); err != nil {
		s.logger.Error("failed to reset ip failures", slog.String("ip", attempt.IPAddress), slog.Any("error", err))
	}

	result, err := s.establish(ctx, account, attempt.Device, attempt.IPAddress)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:   account.ID,
		Action:    models.AuditActionLogin,
		Outcome:   models.AuditOutcomeSuccess,
		Severity:  models.AuditSeverityLow,
		IPAddress: attempt.IPAddress,
		UserAgent: attempt.Device,
	})
	return result, nil
}

func (s *AuthService) establish(ctx context.Context, account *models.Account, device, ipAddress string) (*LoginResult, error) {
	token, session, err := s.sessions.Establish(ctx, account, device, ipAddress)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:   token,
		Session: session,
		Account: accountToResponse(account),
	}, nil
}

// Register creates an account and sends the email verification code.
// On a policy failure the evaluation is returned alongside the error so
// the handler can explain what was unacceptable.
func (s *AuthService) Register(ctx context.Context, email, pass, name, role string) (*AccountResponse, *password.Result, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if email == "" || name == "" {
		return nil, nil, models.ErrBadRequest
	}

	role = models.NormalizeRole(strings.TrimSpace(role))
	if role == "" {
		role = models.RoleCustomer
	}
	// Admin accounts are provisioned operationally, never self-registered.
	if role != models.RoleCustomer && role != models.RoleWorker {
		return nil, nil, models.ErrBadRequest
	}

	policyResult := s.policy.Validate(ctx, pass, identityInputs(email, name))
	if !policyResult.Valid {
		return nil, &policyResult, models.ErrBadRequest
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		s.logger.Info("registration failed: account already exists")
		return nil, nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check for existing account", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	hash, err := password.Hash(pass)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	now := time.Now()
	expiresAt := password.NextExpiry(now)
	account, err := s.repo.Create(ctx, &models.Account{
		Email:             email,
		Name:              name,
		Role:              role,
		PasswordHash:      hash,
		PasswordChangedAt: &now,
		PasswordExpiresAt: &expiresAt,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  account.ID,
		Action:   models.AuditActionRegister,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityLow,
		Details:  auditFromPolicy(policyResult, models.AuditMetadata{"role": role}),
	})

	if err := s.verification.IssueCode(ctx, account, models.VerificationPurposeEmail); err != nil {
		s.logger.Error("failed to send verification code", slog.String("account_id", account.ID), slog.Any("error", err))
		// The account exists; the client retries through the resend flow.
	} else {
		s.audit.Record(ctx, AuditEntry{
			ActorID:  account.ID,
			Action:   models.AuditActionEmailCodeSent,
			Outcome:  models.AuditOutcomeSuccess,
			Severity: models.AuditSeverityLow,
		})
	}

	return accountToResponse(account), &policyResult, nil
}

// VerifyEmailCode settles the registration code and marks the email
// verified.
func (s *AuthService) VerifyEmailCode(ctx context.Context, email, code string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrVerificationFailed
		}
		return models.ErrInternalServer
	}
	if account.EmailVerified {
		return nil
	}

	if err := s.verification.SettleCode(ctx, account.ID, models.VerificationPurposeEmail, code); err != nil {
		return err
	}

	return s.markEmailVerified(ctx, account)
}

// VerifyEmailLink settles an emailed verification link.
func (s *AuthService) VerifyEmailLink(ctx context.Context, token string) error {
	settled, err := s.verification.SettleLink(ctx, models.VerificationPurposeEmail, token)
	if err != nil {
		return err
	}

	account, err := s.repo.GetByID(ctx, settled.AccountID)
	if err != nil {
		return models.ErrInternalServer
	}
	if account.EmailVerified {
		return nil
	}
	return s.markEmailVerified(ctx, account)
}

// ResendVerification issues a fresh verification link. Unknown emails
// succeed silently so the endpoint cannot be used to probe accounts.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return models.ErrInternalServer
	}
	if account.EmailVerified {
		return nil
	}

	if err := s.verification.IssueLink(ctx, account, models.VerificationPurposeEmail); err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  account.ID,
		Action:   models.AuditActionEmailCodeSent,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityLow,
		Details:  models.AuditMetadata{"kind": "link"},
	})
	return nil
}

// Logout revokes the calling session.
func (s *AuthService) Logout(ctx context.Context, accountID, sessionID, ipAddress string) error {
	if err := s.sessions.Revoke(ctx, accountID, sessionID); err != nil {
		return err
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:   accountID,
		Action:    models.AuditActionLogout,
		Outcome:   models.AuditOutcomeSuccess,
		Severity:  models.AuditSeverityLow,
		IPAddress: ipAddress,
	})
	return nil
}

func (s *AuthService) markEmailVerified(ctx context.Context, account *models.Account) error {
	account.EmailVerified = true
	if _, err := s.repo.Update(ctx, account); err != nil {
		s.logger.Error("failed to mark email verified", slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Record(ctx, AuditEntry{
		ActorID:  account.ID,
		Action:   models.AuditActionEmailVerified,
		Outcome:  models.AuditOutcomeSuccess,
		Severity: models.AuditSeverityLow,
	})
	return nil
}

func (s *AuthService) recordBannedAttempt(ctx context.Context, account *models.Account, ipAddress, device string) {
	s.audit.Record(ctx, AuditEntry{
		ActorID:   account.ID,
		Action:    models.AuditActionBannedAccess,
		Outcome:   models.AuditOutcomeFailure,
		Severity:  models.AuditSeverityCritical,
		IPAddress: ipAddress,
		UserAgent: device,
	})
}

// identityInputs feeds the strength estimator the attacker-guessable
// strings tied to the account.
func identityInputs(email, name string) []string {
	inputs := []string{email, name}
	if at := strings.IndexByte(email, '@'); at > 0 {
		inputs = append(inputs, email[:at])
	}
	return inputs
}

func auditFromPolicy(res password.Result, details models.AuditMetadata) models.AuditMetadata {
	if res.BreachCheckDegraded {
		details["breach_check"] = "degraded"
	}
	return details
}

// NewAccountResponse converts an account model to its response DTO.
func NewAccountResponse(account *models.Account) *AccountResponse {
	return accountToResponse(account)
}

// accountToResponse converts an account model to its response DTO.
func accountToResponse(account *models.Account) *AccountResponse {
	expiry := password.CheckExpiry(account.PasswordExpiresAt)

	return &AccountResponse{
		ID:                 account.ID,
		Email:              account.Email,
		Name:               account.Name,
		Role:               models.NormalizeRole(account.Role),
		EmailVerified:      account.EmailVerified,
		MFAEnabled:         account.MFAEnabled,
		MustChangePassword: account.MustChangePassword || expiry.Expired,
		PasswordExpiry:     &expiry,
		CreatedAt:          account.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          account.UpdatedAt.Format(time.RFC3339),
	}
}
