package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/notify"
	"github.com/bastionhq/bastion/internal/services"
	"github.com/bastionhq/bastion/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetector(stats services.AttemptStatsRepository, alerts services.AlertRepository, notifier *services.MockAlertNotifier) *services.ActivityDetector {
	log := testLogger()
	var n notify.AlertNotifier
	if notifier != nil {
		n = notifier
	}
	return services.NewActivityDetector(stats, alerts, nil, n, newTestSecurityConfig(), logger.NewAuditLogger(log), log)
}

func newOriginDetector(stats services.AttemptStatsRepository, alerts services.AlertRepository, blocker services.OriginBlocker) *services.ActivityDetector {
	log := testLogger()
	return services.NewActivityDetector(stats, alerts, blocker, nil, newTestSecurityConfig(), logger.NewAuditLogger(log), log)
}

func originStatsRepo(failures, accounts int) *services.MockAttemptStatsRepository {
	return &services.MockAttemptStatsRepository{
		GetOriginStatsFunc: func(ctx context.Context, ipAddress string, since time.Time) (*models.OriginWindowStats, error) {
			return &models.OriginWindowStats{FailedAttempts: failures, DistinctIdentifiers: accounts}, nil
		},
	}
}

func statsRepo(stats *models.AttemptWindowStats) *services.MockAttemptStatsRepository {
	return &services.MockAttemptStatsRepository{
		GetWindowStatsFunc: func(ctx context.Context, identifier string, identifierType models.IdentifierType, since time.Time) (*models.AttemptWindowStats, error) {
			return stats, nil
		},
	}
}

// spreadStats builds window stats whose mean attempt interval is wide enough
// not to trip the automation rule
func spreadStats(total, distinctIPs int) *models.AttemptWindowStats {
	now := time.Now()
	return &models.AttemptWindowStats{
		TotalAttempts:  total,
		DistinctIPs:    distinctIPs,
		FirstAttemptAt: now.Add(-4 * time.Minute),
		LastAttemptAt:  now,
	}
}

func TestDetectorEvaluate_QuietWindowIsNotSuspicious(t *testing.T) {
	alerts := &services.MockAlertRepository{}
	detector := newDetector(statsRepo(spreadStats(3, 1)), alerts, nil)

	suspicious := detector.Evaluate(context.Background(), "test@example.com", models.IdentifierEmail)

	assert.False(t, suspicious)
	assert.Empty(t, alerts.CreatedAlerts)
}

func TestDetectorEvaluate_FanOutRaisesHighAlert(t *testing.T) {
	alerts := &services.MockAlertRepository{}
	detector := newDetector(statsRepo(spreadStats(11, 4)), alerts, nil)

	suspicious := detector.Evaluate(context.Background(), "test@example.com", models.IdentifierEmail)

	assert.True(t, suspicious)
	require.Len(t, alerts.CreatedAlerts, 1)
	assert.Equal(t, models.AlertTypeMultipleIPs, alerts.CreatedAlerts[0].AlertType)
	assert.Equal(t, models.SeverityHigh, alerts.CreatedAlerts[0].Severity)
}

func TestDetectorEvaluate_FanOutNeedsBothThresholds(t *testing.T) {
	// Many IPs but few attempts: not enough signal.
	alerts := &services.MockAlertRepository{}
	detector := newDetector(statsRepo(spreadStats(8, 5)), alerts, nil)

	suspicious := detector.Evaluate(context.Background(), "test@example.com", models.IdentifierEmail)

	assert.False(t, suspicious)
	assert.Empty(t, alerts.CreatedAlerts)
}

func TestDetectorEvaluate_AutomationRaisesCriticalAlert(t *testing.T) {
	now := time.Now()
	stats := &models.AttemptWindowStats{
		TotalAttempts:  10,
		DistinctIPs:    1,
		FirstAttemptAt: now.Add(-2 * time.Second),
		LastAttemptAt:  now,
	}

	alerts := &services.MockAlertRepository{}
	detector := newDetector(statsRepo(stats), alerts, nil)

	suspicious := detector.Evaluate(context.Background(), "test@example.com", models.IdentifierEmail)

	assert.True(t, suspicious)
	require.Len(t, alerts.CreatedAlerts, 1)
	assert.Equal(t, models.AlertTypeAutomation, alerts.CreatedAlerts[0].AlertType)
	assert.Equal(t, models.SeverityCritical, alerts.CreatedAlerts[0].Severity)
}

func TestDetectorEvaluate_SingleAttemptNeverTripsAutomation(t *testing.T) {
	now := time.Now()
	stats := &models.AttemptWindowStats{
		TotalAttempts:  1,
		DistinctIPs:    1,
		FirstAttemptAt: now,
		LastAttemptAt:  now,
	}

	alerts := &services.MockAlertRepository{}
	detector := newDetector(statsRepo(stats), alerts, nil)

	suspicious := detector.Evaluate(context.Background(), "test@example.com", models.IdentifierEmail)

	assert.False(t, suspicious)
}

func TestDetectorEvaluate_DedupedAlertStillFlags(t *testing.T) {
	alerts := &services.MockAlertRepository{
		ExistsRecentFunc: func(ctx context.Context, identifier string, identifierType models.IdentifierType, alertType string, since time.Time) (bool, error) {
			return true, nil
		},
	}
	detector := newDetector(statsRepo(spreadStats(11, 4)), alerts, nil)

	suspicious := detector.Evaluate(context.Background(), "test@example.com", models.IdentifierEmail)

	assert.True(t, suspicious, "dedup suppresses the alert row, not the flag")
	assert.Empty(t, alerts.CreatedAlerts)
}

func TestDetectorEvaluate_NotifiesOnHighSeverity(t *testing.T) {
	alerts := &services.MockAlertRepository{}
	notifier := &services.MockAlertNotifier{}
	detector := newDetector(statsRepo(spreadStats(11, 4)), alerts, notifier)

	detector.Evaluate(context.Background(), "test@example.com", models.IdentifierEmail)

	require.Len(t, notifier.NotifiedAlerts, 1)
	assert.Equal(t, models.AlertTypeMultipleIPs, notifier.NotifiedAlerts[0].AlertType)
}

func TestDetectorEvaluate_NotifierFailureIsSwallowed(t *testing.T) {
	alerts := &services.MockAlertRepository{}
	notifier := &services.MockAlertNotifier{
		NotifyAlertFunc: func(ctx context.Context, alert *models.SecurityAlert) error {
			return errors.New("ses unavailable")
		},
	}
	detector := newDetector(statsRepo(spreadStats(11, 4)), alerts, notifier)

	suspicious := detector.Evaluate(context.Background(), "test@example.com", models.IdentifierEmail)

	assert.True(t, suspicious)
	require.Len(t, alerts.CreatedAlerts, 1)
}

func TestDetectorEvaluate_NotSuspiciousOnStoreError(t *testing.T) {
	stats := &services.MockAttemptStatsRepository{
		GetWindowStatsFunc: func(ctx context.Context, identifier string, identifierType models.IdentifierType, since time.Time) (*models.AttemptWindowStats, error) {
			return nil, errors.New("connection refused")
		},
	}

	detector := newDetector(stats, &services.MockAlertRepository{}, nil)
	suspicious := detector.Evaluate(context.Background(), "test@example.com", models.IdentifierEmail)

	assert.False(t, suspicious)
}

func TestEvaluateOrigin_CrossAccountSprayBlocksIP(t *testing.T) {
	// 21 failures spread over 5 accounts within the origin window: the
	// source IP gets blocked even though no single account is locked.
	alerts := &services.MockAlertRepository{}
	blocker := &services.MockOriginBlocker{}
	detector := newOriginDetector(originStatsRepo(21, 5), alerts, blocker)

	detector.EvaluateOrigin(context.Background(), "198.51.100.9")

	require.Len(t, blocker.Blocked, 1)
	assert.Equal(t, "198.51.100.9", blocker.Blocked[0].Identifier)
	assert.Equal(t, models.IdentifierIP, blocker.Blocked[0].IdentifierType)
	assert.Equal(t, models.SeverityHigh, blocker.Blocked[0].Severity)

	require.Len(t, alerts.CreatedAlerts, 1)
	assert.Equal(t, models.AlertTypeCredentialStuffing, alerts.CreatedAlerts[0].AlertType)
	assert.Equal(t, "198.51.100.9", alerts.CreatedAlerts[0].Identifier)
}

func TestEvaluateOrigin_NarrowSpreadDoesNotBlock(t *testing.T) {
	// Plenty of failures but too few distinct accounts: that is the
	// per-identifier lockout's problem, not an origin-level one.
	blocker := &services.MockOriginBlocker{}
	detector := newOriginDetector(originStatsRepo(21, 4), &services.MockAlertRepository{}, blocker)

	detector.EvaluateOrigin(context.Background(), "198.51.100.9")

	assert.Empty(t, blocker.Blocked)
}

func TestEvaluateOrigin_FailureCountAtThresholdDoesNotBlock(t *testing.T) {
	blocker := &services.MockOriginBlocker{}
	detector := newOriginDetector(originStatsRepo(20, 5), &services.MockAlertRepository{}, blocker)

	detector.EvaluateOrigin(context.Background(), "198.51.100.9")

	assert.Empty(t, blocker.Blocked)
}

func TestEvaluateOrigin_AlreadyEscalatedOriginIsNotReblocked(t *testing.T) {
	alerts := &services.MockAlertRepository{
		ExistsRecentFunc: func(ctx context.Context, identifier string, identifierType models.IdentifierType, alertType string, since time.Time) (bool, error) {
			return true, nil
		},
	}
	blocker := &services.MockOriginBlocker{}
	detector := newOriginDetector(originStatsRepo(30, 8), alerts, blocker)

	detector.EvaluateOrigin(context.Background(), "198.51.100.9")

	assert.Empty(t, blocker.Blocked, "the block from the first escalation is still in force")
	assert.Empty(t, alerts.CreatedAlerts)
}

func TestEvaluateOrigin_StoreErrorDoesNothing(t *testing.T) {
	stats := &services.MockAttemptStatsRepository{
		GetOriginStatsFunc: func(ctx context.Context, ipAddress string, since time.Time) (*models.OriginWindowStats, error) {
			return nil, errors.New("connection refused")
		},
	}
	blocker := &services.MockOriginBlocker{}
	detector := newOriginDetector(stats, &services.MockAlertRepository{}, blocker)

	detector.EvaluateOrigin(context.Background(), "198.51.100.9")

	assert.Empty(t, blocker.Blocked)
}

func TestEvaluateOrigin_BlockFailureStillRaisesAlert(t *testing.T) {
	alerts := &services.MockAlertRepository{}
	blocker := &services.MockOriginBlocker{
		BlockIdentifierFunc: func(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, severity models.Severity, duration time.Duration, blockedBy string, metadata map[string]string) (*models.SecurityBlock, error) {
			return nil, errors.New("connection refused")
		},
	}
	detector := newOriginDetector(originStatsRepo(21, 5), alerts, blocker)

	detector.EvaluateOrigin(context.Background(), "198.51.100.9")

	require.Len(t, alerts.CreatedAlerts, 1)
	assert.Equal(t, models.AlertTypeCredentialStuffing, alerts.CreatedAlerts[0].AlertType)
}

func TestListAlertsBySeverities_RejectsUnknownSeverity(t *testing.T) {
	detector := newDetector(&services.MockAttemptStatsRepository{}, &services.MockAlertRepository{}, nil)

	_, err := detector.ListAlertsBySeverities(context.Background(), []string{"high", "extreme"}, 50, 0)

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestReviewAlert_MarksReviewed(t *testing.T) {
	var gotID, gotBy, gotAction string
	alerts := &services.MockAlertRepository{
		MarkReviewedFunc: func(ctx context.Context, id, reviewedBy, actionTaken string, reviewedAt time.Time) error {
			gotID, gotBy, gotAction = id, reviewedBy, actionTaken
			return nil
		},
	}

	detector := newDetector(&services.MockAttemptStatsRepository{}, alerts, nil)
	err := detector.ReviewAlert(context.Background(), "alert-1", "admin@example.com", "blocked the source IP")

	assert.NoError(t, err)
	assert.Equal(t, "alert-1", gotID)
	assert.Equal(t, "admin@example.com", gotBy)
	assert.Equal(t, "blocked the source IP", gotAction)
}
