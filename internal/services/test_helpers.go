package services

import (
	"context"
	"time"

	"github.com/bastionhq/bastion/internal/models"
)

// MockAttemptRepository implements AttemptRepository for testing
type MockAttemptRepository struct {
	RecordAttemptFunc       func(ctx context.Context, attempt *models.LoginAttempt) error
	CountRecentFailuresFunc func(ctx context.Context, identifier string, identifierType models.IdentifierType, since time.Time) (int, error)
	ClearFailuresFunc       func(ctx context.Context, identifier string, identifierType models.IdentifierType) (int64, error)
}

func (m *MockAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	return nil
}

func (m *MockAttemptRepository) CountRecentFailures(ctx context.Context, identifier string, identifierType models.IdentifierType, since time.Time) (int, error) {
	if m.CountRecentFailuresFunc != nil {
		return m.CountRecentFailuresFunc(ctx, identifier, identifierType, since)
	}
	return 0, nil
}

func (m *MockAttemptRepository) ClearFailures(ctx context.Context, identifier string, identifierType models.IdentifierType) (int64, error) {
	if m.ClearFailuresFunc != nil {
		return m.ClearFailuresFunc(ctx, identifier, identifierType)
	}
	return 0, nil
}

// MockLockRepository implements LockRepository for testing
type MockLockRepository struct {
	GetActiveLockFunc func(ctx context.Context, identifier string, identifierType models.IdentifierType) (*models.AccountLock, error)
	CreateLockFunc    func(ctx context.Context, lock *models.AccountLock) (*models.AccountLock, error)
	DeactivateFunc    func(ctx context.Context, identifier string, identifierType models.IdentifierType, unlockedAt time.Time) error
	ListActiveFunc    func(ctx context.Context, limit, offset int) ([]*models.AccountLock, error)
}

func (m *MockLockRepository) GetActiveLock(ctx context.Context, identifier string, identifierType models.IdentifierType) (*models.AccountLock, error) {
	if m.GetActiveLockFunc != nil {
		return m.GetActiveLockFunc(ctx, identifier, identifierType)
	}
	return nil, models.ErrNotFound
}

func (m *MockLockRepository) CreateLock(ctx context.Context, lock *models.AccountLock) (*models.AccountLock, error) {
	if m.CreateLockFunc != nil {
		return m.CreateLockFunc(ctx, lock)
	}
	created := *lock
	created.ID = "lock_test"
	return &created, nil
}

func (m *MockLockRepository) Deactivate(ctx context.Context, identifier string, identifierType models.IdentifierType, unlockedAt time.Time) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, identifier, identifierType, unlockedAt)
	}
	return nil
}

func (m *MockLockRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.AccountLock, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, limit, offset)
	}
	return []*models.AccountLock{}, nil
}

// MockBlockRepository implements BlockRepository for testing
type MockBlockRepository struct {
	CreateBlockFunc             func(ctx context.Context, block *models.SecurityBlock) (*models.SecurityBlock, error)
	GetStrongestActiveBlockFunc func(ctx context.Context, identifier string, identifierType models.IdentifierType, now time.Time) (*models.SecurityBlock, error)
	DeactivateFunc              func(ctx context.Context, identifier string, identifierType models.IdentifierType) (int64, error)
	ListActiveFunc              func(ctx context.Context, limit, offset int) ([]*models.SecurityBlock, error)
}

func (m *MockBlockRepository) CreateBlock(ctx context.Context, block *models.SecurityBlock) (*models.SecurityBlock, error) {
	if m.CreateBlockFunc != nil {
		return m.CreateBlockFunc(ctx, block)
	}
	created := *block
	created.ID = "block_test"
	return &created, nil
}

func (m *MockBlockRepository) GetStrongestActiveBlock(ctx context.Context, identifier string, identifierType models.IdentifierType, now time.Time) (*models.SecurityBlock, error) {
	if m.GetStrongestActiveBlockFunc != nil {
		return m.GetStrongestActiveBlockFunc(ctx, identifier, identifierType, now)
	}
	return nil, models.ErrNotFound
}

func (m *MockBlockRepository) Deactivate(ctx context.Context, identifier string, identifierType models.IdentifierType) (int64, error) {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, identifier, identifierType)
	}
	return 1, nil
}

func (m *MockBlockRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.SecurityBlock, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, limit, offset)
	}
	return []*models.SecurityBlock{}, nil
}

// MockAttemptStatsRepository implements AttemptStatsRepository for testing
type MockAttemptStatsRepository struct {
	GetWindowStatsFunc func(ctx context.Context, identifier string, identifierType models.IdentifierType, since time.Time) (*models.AttemptWindowStats, error)
	GetOriginStatsFunc func(ctx context.Context, ipAddress string, since time.Time) (*models.OriginWindowStats, error)
}

func (m *MockAttemptStatsRepository) GetWindowStats(ctx context.Context, identifier string, identifierType models.IdentifierType, since time.Time) (*models.AttemptWindowStats, error) {
	if m.GetWindowStatsFunc != nil {
		return m.GetWindowStatsFunc(ctx, identifier, identifierType, since)
	}
	return &models.AttemptWindowStats{}, nil
}

func (m *MockAttemptStatsRepository) GetOriginStats(ctx context.Context, ipAddress string, since time.Time) (*models.OriginWindowStats, error) {
	if m.GetOriginStatsFunc != nil {
		return m.GetOriginStatsFunc(ctx, ipAddress, since)
	}
	return &models.OriginWindowStats{}, nil
}

// MockOriginBlocker implements OriginBlocker for testing
type MockOriginBlocker struct {
	BlockIdentifierFunc func(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, severity models.Severity, duration time.Duration, blockedBy string, metadata map[string]string) (*models.SecurityBlock, error)

	Blocked []*models.SecurityBlock
}

func (m *MockOriginBlocker) BlockIdentifier(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, severity models.Severity, duration time.Duration, blockedBy string, metadata map[string]string) (*models.SecurityBlock, error) {
	if m.BlockIdentifierFunc != nil {
		return m.BlockIdentifierFunc(ctx, identifier, identifierType, reason, severity, duration, blockedBy, metadata)
	}
	block := &models.SecurityBlock{
		ID:             "block_test",
		Identifier:     identifier,
		IdentifierType: identifierType,
		Reason:         reason,
		Severity:       severity,
		IsActive:       true,
		Metadata:       metadata,
	}
	m.Blocked = append(m.Blocked, block)
	return block, nil
}

// MockAlertRepository implements AlertRepository for testing
type MockAlertRepository struct {
	CreateFunc           func(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error)
	ExistsRecentFunc     func(ctx context.Context, identifier string, identifierType models.IdentifierType, alertType string, since time.Time) (bool, error)
	ListUnreviewedFunc   func(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error)
	ListBySeveritiesFunc func(ctx context.Context, severities []string, limit, offset int) ([]*models.SecurityAlert, error)
	MarkReviewedFunc     func(ctx context.Context, id, reviewedBy, actionTaken string, reviewedAt time.Time) error

	CreatedAlerts []*models.SecurityAlert
}

func (m *MockAlertRepository) Create(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, alert)
	}
	m.CreatedAlerts = append(m.CreatedAlerts, alert)
	return alert, nil
}

func (m *MockAlertRepository) ExistsRecent(ctx context.Context, identifier string, identifierType models.IdentifierType, alertType string, since time.Time) (bool, error) {
	if m.ExistsRecentFunc != nil {
		return m.ExistsRecentFunc(ctx, identifier, identifierType, alertType, since)
	}
	return false, nil
}

func (m *MockAlertRepository) ListUnreviewed(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error) {
	if m.ListUnreviewedFunc != nil {
		return m.ListUnreviewedFunc(ctx, limit, offset)
	}
	return []*models.SecurityAlert{}, nil
}

func (m *MockAlertRepository) ListBySeverities(ctx context.Context, severities []string, limit, offset int) ([]*models.SecurityAlert, error) {
	if m.ListBySeveritiesFunc != nil {
		return m.ListBySeveritiesFunc(ctx, severities, limit, offset)
	}
	return []*models.SecurityAlert{}, nil
}

func (m *MockAlertRepository) MarkReviewed(ctx context.Context, id, reviewedBy, actionTaken string, reviewedAt time.Time) error {
	if m.MarkReviewedFunc != nil {
		return m.MarkReviewedFunc(ctx, id, reviewedBy, actionTaken, reviewedAt)
	}
	return nil
}

// MockCaptchaRepository implements CaptchaRepository for testing
type MockCaptchaRepository struct {
	CreateFunc            func(ctx context.Context, c *models.CaptchaChallenge) (*models.CaptchaChallenge, error)
	GetByTokenFunc        func(ctx context.Context, token string) (*models.CaptchaChallenge, error)
	IncrementAttemptsFunc func(ctx context.Context, token string) (int, error)
	MarkVerifiedFunc      func(ctx context.Context, token string, verifiedAt time.Time) (bool, error)
}

func (m *MockCaptchaRepository) Create(ctx context.Context, c *models.CaptchaChallenge) (*models.CaptchaChallenge, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, c)
	}
	created := *c
	created.ID = "challenge_test"
	return &created, nil
}

func (m *MockCaptchaRepository) GetByToken(ctx context.Context, token string) (*models.CaptchaChallenge, error) {
	if m.GetByTokenFunc != nil {
		return m.GetByTokenFunc(ctx, token)
	}
	return nil, models.ErrNotFound
}

func (m *MockCaptchaRepository) IncrementAttempts(ctx context.Context, token string) (int, error) {
	if m.IncrementAttemptsFunc != nil {
		return m.IncrementAttemptsFunc(ctx, token)
	}
	return 1, nil
}

func (m *MockCaptchaRepository) MarkVerified(ctx context.Context, token string, verifiedAt time.Time) (bool, error) {
	if m.MarkVerifiedFunc != nil {
		return m.MarkVerifiedFunc(ctx, token, verifiedAt)
	}
	return true, nil
}

// MockOverrideRepository implements OverrideRepository for testing
type MockOverrideRepository struct {
	UpsertFunc     func(ctx context.Context, o *models.RateLimitOverride) (*models.RateLimitOverride, error)
	ResolveFunc    func(ctx context.Context, identifier string, identifierType models.IdentifierType, endpoint string, now time.Time) (*models.RateLimitOverride, error)
	DeactivateFunc func(ctx context.Context, id string) error
	ListActiveFunc func(ctx context.Context, limit, offset int) ([]*models.RateLimitOverride, error)
}

func (m *MockOverrideRepository) Upsert(ctx context.Context, o *models.RateLimitOverride) (*models.RateLimitOverride, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, o)
	}
	created := *o
	created.ID = "override_test"
	return &created, nil
}

func (m *MockOverrideRepository) Resolve(ctx context.Context, identifier string, identifierType models.IdentifierType, endpoint string, now time.Time) (*models.RateLimitOverride, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, identifier, identifierType, endpoint, now)
	}
	return nil, models.ErrNotFound
}

func (m *MockOverrideRepository) Deactivate(ctx context.Context, id string) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, id)
	}
	return nil
}

func (m *MockOverrideRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.RateLimitOverride, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx, limit, offset)
	}
	return []*models.RateLimitOverride{}, nil
}

// MockRetentionRepository implements RetentionRepository for testing
type MockRetentionRepository struct {
	MarkAttemptsClearedFunc       func(ctx context.Context, cutoff time.Time) (int64, error)
	FindFailureClustersFunc       func(ctx context.Context, cutoff time.Time, minCount int) ([]models.FailureCluster, error)
	SummarizeAndDeleteClusterFunc func(ctx context.Context, cluster models.FailureCluster, cutoff time.Time, alert *models.SecurityAlert) error
	DeleteAttemptsOlderThanFunc   func(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteChallengesOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockRetentionRepository) MarkAttemptsCleared(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.MarkAttemptsClearedFunc != nil {
		return m.MarkAttemptsClearedFunc(ctx, cutoff)
	}
	return 0, nil
}

func (m *MockRetentionRepository) FindFailureClusters(ctx context.Context, cutoff time.Time, minCount int) ([]models.FailureCluster, error) {
	if m.FindFailureClustersFunc != nil {
		return m.FindFailureClustersFunc(ctx, cutoff, minCount)
	}
	return []models.FailureCluster{}, nil
}

func (m *MockRetentionRepository) SummarizeAndDeleteCluster(ctx context.Context, cluster models.FailureCluster, cutoff time.Time, alert *models.SecurityAlert) error {
	if m.SummarizeAndDeleteClusterFunc != nil {
		return m.SummarizeAndDeleteClusterFunc(ctx, cluster, cutoff, alert)
	}
	return nil
}

func (m *MockRetentionRepository) DeleteAttemptsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteAttemptsOlderThanFunc != nil {
		return m.DeleteAttemptsOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

func (m *MockRetentionRepository) DeleteChallengesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteChallengesOlderThanFunc != nil {
		return m.DeleteChallengesOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockExpirableStore implements ExpirableStore for testing
type MockExpirableStore struct {
	DeactivateExpiredFunc func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockExpirableStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeactivateExpiredFunc != nil {
		return m.DeactivateExpiredFunc(ctx, now)
	}
	return 0, nil
}

// MockAlertNotifier implements notify.AlertNotifier for testing
type MockAlertNotifier struct {
	NotifyAlertFunc func(ctx context.Context, alert *models.SecurityAlert) error

	NotifiedAlerts []*models.SecurityAlert
}

func (m *MockAlertNotifier) NotifyAlert(ctx context.Context, alert *models.SecurityAlert) error {
	if m.NotifyAlertFunc != nil {
		return m.NotifyAlertFunc(ctx, alert)
	}
	m.NotifiedAlerts = append(m.NotifiedAlerts, alert)
	return nil
}

// MockTokenIssuer implements TokenIssuer for testing
type MockTokenIssuer struct {
	GenerateChallengeTokenFunc func(identifier string, identifierType models.IdentifierType, expiresAt time.Time) (string, string, error)
	ValidateChallengeTokenFunc func(tokenString string) (*models.ChallengeClaims, error)
}

func (m *MockTokenIssuer) GenerateChallengeToken(identifier string, identifierType models.IdentifierType, expiresAt time.Time) (string, string, error) {
	if m.GenerateChallengeTokenFunc != nil {
		return m.GenerateChallengeTokenFunc(identifier, identifierType, expiresAt)
	}
	return "signed_token", "jti_test", nil
}

func (m *MockTokenIssuer) ValidateChallengeToken(tokenString string) (*models.ChallengeClaims, error) {
	if m.ValidateChallengeTokenFunc != nil {
		return m.ValidateChallengeTokenFunc(tokenString)
	}
	return nil, models.ErrUnauthorized
}

// NewTestLock creates an active lock expiring in the given duration
func NewTestLock(identifier string, identifierType models.IdentifierType, expiresIn time.Duration) *models.AccountLock {
	now := time.Now()
	return &models.AccountLock{
		ID:             "lock_test",
		Identifier:     identifier,
		IdentifierType: identifierType,
		Reason:         models.DefaultLockReason,
		LockedAt:       now,
		ExpiresAt:      now.Add(expiresIn),
		IsActive:       true,
	}
}

// NewTestBlock creates an active block; expiresIn zero means no auto-expiry
func NewTestBlock(identifier string, identifierType models.IdentifierType, severity models.Severity, expiresIn time.Duration) *models.SecurityBlock {
	now := time.Now()
	block := &models.SecurityBlock{
		ID:             "block_test",
		Identifier:     identifier,
		IdentifierType: identifierType,
		Reason:         "test block",
		Severity:       severity,
		BlockedAt:      now,
		IsActive:       true,
	}
	if expiresIn > 0 {
		expires := now.Add(expiresIn)
		block.ExpiresAt = &expires
	}
	return block
}

// NewTestChallenge creates an unverified challenge expiring in the given
// duration
func NewTestChallenge(jti, answerHash string, expiresIn time.Duration) *models.CaptchaChallenge {
	now := time.Now()
	return &models.CaptchaChallenge{
		ID:             "challenge_test",
		Identifier:     "203.0.113.7",
		IdentifierType: models.IdentifierIP,
		ChallengeToken: jti,
		ChallengeType:  models.ChallengeTypeMath,
		AnswerHash:     answerHash,
		IssuedAt:       now,
		ExpiresAt:      now.Add(expiresIn),
	}
}
