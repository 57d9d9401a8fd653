package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-labs/gatekeeper/internal/models"
	pkglogger "github.com/inkwell-labs/gatekeeper/pkg/logger"
	"github.com/inkwell-labs/gatekeeper/pkg/password"
)

// MockAccountRepository implements AccountRepository for testing. When
// no Func override is set, calls operate on the Accounts map so tests
// can observe persisted state.
type MockAccountRepository struct {
	mu       sync.Mutex
	Accounts map[string]*models.Account

	GetByIDFunc             func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc          func(ctx context.Context, email string) (*models.Account, error)
	CreateFunc              func(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateFunc              func(ctx context.Context, account *models.Account) (*models.Account, error)
	ListFunc                func(ctx context.Context, limit, offset int) ([]*models.Account, error)
	AppendLoginLocationFunc func(ctx context.Context, loc *models.LoginLocation) error
	KnownCitiesFunc         func(ctx context.Context, accountID string) ([]string, error)

	Locations []*models.LoginLocation
}

func NewMockAccountRepository(accounts ...*models.Account) *MockAccountRepository {
	repo := &MockAccountRepository{Accounts: make(map[string]*models.Account)}
	for _, a := range accounts {
		repo.Accounts[a.ID] = a
	}
	return repo
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.Accounts[id]; ok {
		copied := *account
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.Accounts {
		if account.Email == email {
			copied := *account
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Accounts {
		if existing.Email == account.Email {
			return nil, models.ErrConflict
		}
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.Role == "" {
		account.Role = models.RoleCustomer
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	copied := *account
	m.Accounts[account.ID] = &copied
	return account, nil
}

func (m *MockAccountRepository) Update(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Accounts[account.ID]; !ok {
		return nil, models.ErrNotFound
	}
	account.UpdatedAt = time.Now()
	copied := *account
	m.Accounts[account.ID] = &copied
	return account, nil
}

func (m *MockAccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Account, 0, len(m.Accounts))
	for _, account := range m.Accounts {
		copied := *account
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MockAccountRepository) AppendLoginLocation(ctx context.Context, loc *models.LoginLocation) error {
	if m.AppendLoginLocationFunc != nil {
		return m.AppendLoginLocationFunc(ctx, loc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Locations = append(m.Locations, loc)
	return nil
}

func (m *MockAccountRepository) KnownCities(ctx context.Context, accountID string) ([]string, error) {
	if m.KnownCitiesFunc != nil {
		return m.KnownCitiesFunc(ctx, accountID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var cities []string
	for _, loc := range m.Locations {
		if loc.AccountID == accountID && loc.City != "" && !seen[loc.City] {
			seen[loc.City] = true
			cities = append(cities, loc.City)
		}
	}
	return cities, nil
}

// MockVerificationRepository implements VerificationRepository with one
// in-memory slot per account and purpose.
type MockVerificationRepository struct {
	mu      sync.Mutex
	Pending map[string]*models.VerificationToken // keyed account_id|purpose

	ReplaceFunc func(ctx context.Context, v *models.VerificationToken) (*models.VerificationToken, error)
	DeleteFunc  func(ctx context.Context, id string) error
}

func NewMockVerificationRepository() *MockVerificationRepository {
	return &MockVerificationRepository{Pending: make(map[string]*models.VerificationToken)}
}

func (m *MockVerificationRepository) key(accountID, purpose string) string {
	return accountID + "|" + purpose
}

func (m *MockVerificationRepository) Replace(ctx context.Context, v *models.VerificationToken) (*models.VerificationToken, error) {
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, v)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now()
	copied := *v
	m.Pending[m.key(v.AccountID, v.Purpose)] = &copied
	return &copied, nil
}

func (m *MockVerificationRepository) GetByAccountAndPurpose(ctx context.Context, accountID, purpose string) (*models.VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.Pending[m.key(accountID, purpose)]; ok {
		copied := *v
		return &copied, nil
	}
	return nil, models.ErrNotFound
}

func (m *MockVerificationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.Pending {
		if v.TokenHash == tokenHash {
			copied := *v
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockVerificationRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, v := range m.Pending {
		if v.ID == id {
			delete(m.Pending, key)
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *MockVerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, v := range m.Pending {
		if v.IsExpired() {
			delete(m.Pending, key)
			n++
		}
	}
	return n, nil
}

// MockAuditLogRepository records trail entries in memory.
type MockAuditLogRepository struct {
	mu          sync.Mutex
	CreatedLogs []*models.AuditLog

	CreateFunc func(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	QueryFunc  func(ctx context.Context, q models.AuditQuery) ([]*models.AuditLog, error)
	CountFunc  func(ctx context.Context, q models.AuditQuery) (int64, error)
}

func (m *MockAuditLogRepository) Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, log)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = uuid.New()
	log.CreatedAt = time.Now()
	m.CreatedLogs = append(m.CreatedLogs, log)
	return log, nil
}

func (m *MockAuditLogRepository) Query(ctx context.Context, q models.AuditQuery) ([]*models.AuditLog, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, q)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLog{}, m.CreatedLogs...), nil
}

func (m *MockAuditLogRepository) Count(ctx context.Context, q models.AuditQuery) (int64, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, q)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.CreatedLogs)), nil
}

// Actions returns the recorded action names in order.
func (m *MockAuditLogRepository) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.CreatedLogs))
	for _, log := range m.CreatedLogs {
		out = append(out, log.Action)
	}
	return out
}

// HasAction reports whether an entry with the action was recorded.
func (m *MockAuditLogRepository) HasAction(action string) bool {
	for _, a := range m.Actions() {
		if a == action {
			return true
		}
	}
	return false
}

// MockEmailService records sent emails instead of delivering them.
type MockEmailService struct {
	mu   sync.Mutex
	Sent []SentEmail

	SendVerificationCodeFunc  func(ctx context.Context, email, code string, expiresAt time.Time) error
	SendVerificationLinkFunc  func(ctx context.Context, email, token string, expiresAt time.Time) error
	SendPasswordResetLinkFunc func(ctx context.Context, email, token string, expiresAt time.Time) error
	SendNewLocationAlertFunc  func(ctx context.Context, email, location, ipAddress string, at time.Time) error
}

type SentEmail struct {
	Kind  string
	To    string
	Token string
}

func (m *MockEmailService) record(kind, to, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentEmail{Kind: kind, To: to, Token: token})
}

func (m *MockEmailService) LastSent() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	last := m.Sent[len(m.Sent)-1]
	return &last
}

func (m *MockEmailService) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	if m.SendVerificationCodeFunc != nil {
		return m.SendVerificationCodeFunc(ctx, email, code, expiresAt)
	}
	m.record("verification_code", email, code)
	return nil
}

func (m *MockEmailService) SendVerificationLink(ctx context.Context, email, token string, expiresAt time.Time) error {
	if m.SendVerificationLinkFunc != nil {
		return m.SendVerificationLinkFunc(ctx, email, token, expiresAt)
	}
	m.record("verification_link", email, token)
	return nil
}

func (m *MockEmailService) SendPasswordResetLink(ctx context.Context, email, token string, expiresAt time.Time) error {
	if m.SendPasswordResetLinkFunc != nil {
		return m.SendPasswordResetLinkFunc(ctx, email, token, expiresAt)
	}
	m.record("password_reset", email, token)
	return nil
}

func (m *MockEmailService) SendNewLocationAlert(ctx context.Context, email, location, ipAddress string, at time.Time) error {
	if m.SendNewLocationAlertFunc != nil {
		return m.SendNewLocationAlertFunc(ctx, email, location, ipAddress, at)
	}
	m.record("new_location", email, location)
	return nil
}

// MockCaptchaVerifier implements guard.CaptchaVerifier for testing
type MockCaptchaVerifier struct {
	VerifyFunc func(ctx context.Context, token, remoteIP string) (bool, error)
}

func (m *MockCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token, remoteIP)
	}
	return token != "", nil
}

// StaticGeoService resolves every IP to a fixed point.
type StaticGeoService struct {
	Point GeoPoint
}

func (s StaticGeoService) Locate(string) GeoPoint { return s.Point }
func (s StaticGeoService) Close() error           { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuditService(repo *MockAuditLogRepository) *AuditService {
	logger := discardLogger()
	return NewAuditService(repo, logger, pkglogger.NewAuditLogger(logger))
}

// NewTestAccount creates a verified active account with the given
// password already hashed.
func NewTestAccount(email, name, plainPassword string) *models.Account {
	hash, err := password.Hash(plainPassword)
	if err != nil {
		panic(err)
	}
	now := time.Now()
	expiresAt := password.NextExpiry(now)
	return &models.Account{
		ID:                uuid.New().String(),
		Email:             email,
		Name:              name,
		Role:              models.RoleCustomer,
		PasswordHash:      hash,
		PasswordChangedAt: &now,
		PasswordExpiresAt: &expiresAt,
		EmailVerified:     true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}
