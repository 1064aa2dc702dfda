package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminContext adds admin claims to the request context, as the admin
// middleware would after validating a bearer token
func WithAdminContext(req *http.Request, subject string) *http.Request {
	claims := &models.AdminClaims{
		Type:    "admin",
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ID: "test-admin-token-id",
		},
	}
	ctx := context.WithValue(req.Context(), auth.AdminContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockLockoutService implements LockoutServiceInterface and
// AdminLockoutServiceInterface for testing
type MockLockoutService struct {
	CheckAndEnforceLockFunc func(ctx context.Context, identifier string, identifierType models.IdentifierType) (*models.LockStatus, error)
	LockAccountFunc         func(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, duration time.Duration, lockedBy string) (*models.AccountLock, error)
	UnlockAccountFunc       func(ctx context.Context, identifier string, identifierType models.IdentifierType, unlockedBy string) error
	ListActiveLocksFunc     func(ctx context.Context, limit, offset int) ([]*models.AccountLock, error)
}

func (m *MockLockoutService) CheckAndEnforceLock(ctx context.Context, identifier string, identifierType models.IdentifierType) (*models.LockStatus, error) {
	if m.CheckAndEnforceLockFunc == nil {
		return &models.LockStatus{}, nil
	}
	return m.CheckAndEnforceLockFunc(ctx, identifier, identifierType)
}

func (m *MockLockoutService) LockAccount(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, duration time.Duration, lockedBy string) (*models.AccountLock, error) {
	if m.LockAccountFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.LockAccountFunc(ctx, identifier, identifierType, reason, duration, lockedBy)
}

func (m *MockLockoutService) UnlockAccount(ctx context.Context, identifier string, identifierType models.IdentifierType, unlockedBy string) error {
	if m.UnlockAccountFunc == nil {
		return nil
	}
	return m.UnlockAccountFunc(ctx, identifier, identifierType, unlockedBy)
}

func (m *MockLockoutService) ListActiveLocks(ctx context.Context, limit, offset int) ([]*models.AccountLock, error) {
	if m.ListActiveLocksFunc == nil {
		return nil, nil
	}
	return m.ListActiveLocksFunc(ctx, limit, offset)
}

// MockBlockService implements BlockServiceInterface and
// AdminBlockServiceInterface for testing
type MockBlockService struct {
	IsBlockedFunc        func(ctx context.Context, identifier string, identifierType models.IdentifierType) *models.BlockStatus
	BlockIdentifierFunc  func(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, severity models.Severity, duration time.Duration, blockedBy string, metadata map[string]string) (*models.SecurityBlock, error)
	UnblockFunc          func(ctx context.Context, identifier string, identifierType models.IdentifierType, unblockedBy string) error
	ListActiveBlocksFunc func(ctx context.Context, limit, offset int) ([]*models.SecurityBlock, error)
}

func (m *MockBlockService) IsBlocked(ctx context.Context, identifier string, identifierType models.IdentifierType) *models.BlockStatus {
	if m.IsBlockedFunc == nil {
		return &models.BlockStatus{}
	}
	return m.IsBlockedFunc(ctx, identifier, identifierType)
}

func (m *MockBlockService) BlockIdentifier(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, severity models.Severity, duration time.Duration, blockedBy string, metadata map[string]string) (*models.SecurityBlock, error) {
	if m.BlockIdentifierFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.BlockIdentifierFunc(ctx, identifier, identifierType, reason, severity, duration, blockedBy, metadata)
}

func (m *MockBlockService) Unblock(ctx context.Context, identifier string, identifierType models.IdentifierType, unblockedBy string) error {
	if m.UnblockFunc == nil {
		return nil
	}
	return m.UnblockFunc(ctx, identifier, identifierType, unblockedBy)
}

func (m *MockBlockService) ListActiveBlocks(ctx context.Context, limit, offset int) ([]*models.SecurityBlock, error) {
	if m.ListActiveBlocksFunc == nil {
		return nil, nil
	}
	return m.ListActiveBlocksFunc(ctx, limit, offset)
}

// MockDelayCalculator implements DelayCalculatorInterface for testing
type MockDelayCalculator struct {
	CalculateFunc func(ctx context.Context, identifier string, identifierType models.IdentifierType) time.Duration
}

func (m *MockDelayCalculator) Calculate(ctx context.Context, identifier string, identifierType models.IdentifierType) time.Duration {
	if m.CalculateFunc == nil {
		return 0
	}
	return m.CalculateFunc(ctx, identifier, identifierType)
}

// MockAttemptTracker implements AttemptTrackerInterface for testing
type MockAttemptTracker struct {
	RecordAttemptFunc func(ctx context.Context, identifier string, identifierType models.IdentifierType, success bool, ipAddress, userAgent string) error
}

func (m *MockAttemptTracker) RecordAttempt(ctx context.Context, identifier string, identifierType models.IdentifierType, success bool, ipAddress, userAgent string) error {
	if m.RecordAttemptFunc == nil {
		return nil
	}
	return m.RecordAttemptFunc(ctx, identifier, identifierType, success, ipAddress, userAgent)
}

// MockDetector implements DetectorInterface and AlertReviewServiceInterface
// for testing
type MockDetector struct {
	EvaluateFunc               func(ctx context.Context, identifier string, identifierType models.IdentifierType) bool
	EvaluateOriginFunc         func(ctx context.Context, ipAddress string)
	ListUnreviewedAlertsFunc   func(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error)
	ListAlertsBySeveritiesFunc func(ctx context.Context, severities []string, limit, offset int) ([]*models.SecurityAlert, error)
	ReviewAlertFunc            func(ctx context.Context, id, reviewedBy, actionTaken string) error
}

func (m *MockDetector) Evaluate(ctx context.Context, identifier string, identifierType models.IdentifierType) bool {
	if m.EvaluateFunc == nil {
		return false
	}
	return m.EvaluateFunc(ctx, identifier, identifierType)
}

func (m *MockDetector) EvaluateOrigin(ctx context.Context, ipAddress string) {
	if m.EvaluateOriginFunc != nil {
		m.EvaluateOriginFunc(ctx, ipAddress)
	}
}

func (m *MockDetector) ListUnreviewedAlerts(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error) {
	if m.ListUnreviewedAlertsFunc == nil {
		return nil, nil
	}
	return m.ListUnreviewedAlertsFunc(ctx, limit, offset)
}

func (m *MockDetector) ListAlertsBySeverities(ctx context.Context, severities []string, limit, offset int) ([]*models.SecurityAlert, error) {
	if m.ListAlertsBySeveritiesFunc == nil {
		return nil, nil
	}
	return m.ListAlertsBySeveritiesFunc(ctx, severities, limit, offset)
}

func (m *MockDetector) ReviewAlert(ctx context.Context, id, reviewedBy, actionTaken string) error {
	if m.ReviewAlertFunc == nil {
		return nil
	}
	return m.ReviewAlertFunc(ctx, id, reviewedBy, actionTaken)
}

// MockCaptchaService implements CaptchaServiceInterface for testing
type MockCaptchaService struct {
	IssueChallengeFunc  func(ctx context.Context, identifier string, identifierType models.IdentifierType) (*services.IssuedChallenge, error)
	VerifyChallengeFunc func(ctx context.Context, token, answer string) (*services.VerificationResult, error)
}

func (m *MockCaptchaService) IssueChallenge(ctx context.Context, identifier string, identifierType models.IdentifierType) (*services.IssuedChallenge, error) {
	if m.IssueChallengeFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.IssueChallengeFunc(ctx, identifier, identifierType)
}

func (m *MockCaptchaService) VerifyChallenge(ctx context.Context, token, answer string) (*services.VerificationResult, error) {
	if m.VerifyChallengeFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.VerifyChallengeFunc(ctx, token, answer)
}

// MockOverrideService implements OverrideServiceInterface for testing
type MockOverrideService struct {
	SetOverrideFunc    func(ctx context.Context, identifier string, identifierType models.IdentifierType, endpointPattern string, maxRequests, windowMinutes int, expiresAt *time.Time, reason, setBy string) (*models.RateLimitOverride, error)
	RemoveOverrideFunc func(ctx context.Context, id, removedBy string) error
	ListOverridesFunc  func(ctx context.Context, limit, offset int) ([]*models.RateLimitOverride, error)
	ResolveLimitFunc   func(ctx context.Context, identifier string, identifierType models.IdentifierType, endpoint string, defaultMax, defaultWindowMinutes int) *services.ResolvedLimit
}

func (m *MockOverrideService) SetOverride(ctx context.Context, identifier string, identifierType models.IdentifierType, endpointPattern string, maxRequests, windowMinutes int, expiresAt *time.Time, reason, setBy string) (*models.RateLimitOverride, error) {
	if m.SetOverrideFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.SetOverrideFunc(ctx, identifier, identifierType, endpointPattern, maxRequests, windowMinutes, expiresAt, reason, setBy)
}

func (m *MockOverrideService) RemoveOverride(ctx context.Context, id, removedBy string) error {
	if m.RemoveOverrideFunc == nil {
		return nil
	}
	return m.RemoveOverrideFunc(ctx, id, removedBy)
}

func (m *MockOverrideService) ListOverrides(ctx context.Context, limit, offset int) ([]*models.RateLimitOverride, error) {
	if m.ListOverridesFunc == nil {
		return nil, nil
	}
	return m.ListOverridesFunc(ctx, limit, offset)
}

func (m *MockOverrideService) ResolveLimit(ctx context.Context, identifier string, identifierType models.IdentifierType, endpoint string, defaultMax, defaultWindowMinutes int) *services.ResolvedLimit {
	if m.ResolveLimitFunc == nil {
		return &services.ResolvedLimit{MaxRequests: defaultMax, WindowMinutes: defaultWindowMinutes}
	}
	return m.ResolveLimitFunc(ctx, identifier, identifierType, endpoint, defaultMax, defaultWindowMinutes)
}

// MockSweeper implements SweeperInterface for testing
type MockSweeper struct {
	SweepFunc func(ctx context.Context) *services.SweepResult
}

func (m *MockSweeper) Sweep(ctx context.Context) *services.SweepResult {
	if m.SweepFunc == nil {
		return &services.SweepResult{}
	}
	return m.SweepFunc(ctx)
}
