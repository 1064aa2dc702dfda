package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSweeper(retention services.RetentionRepository, locks, blocks services.ExpirableStore) *services.Sweeper {
	return services.NewSweeper(retention, locks, blocks, newTestSecurityConfig(), testLogger())
}

func TestSweep_FullPass(t *testing.T) {
	retention := &services.MockRetentionRepository{
		MarkAttemptsClearedFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			assert.WithinDuration(t, time.Now().Add(-30*24*time.Hour), cutoff, 2*time.Second)
			return 12, nil
		},
		DeleteAttemptsOlderThanFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			assert.WithinDuration(t, time.Now().Add(-90*24*time.Hour), cutoff, 2*time.Second)
			return 7, nil
		},
		DeleteChallengesOlderThanFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return 3, nil
		},
	}
	locks := &services.MockExpirableStore{
		DeactivateExpiredFunc: func(ctx context.Context, now time.Time) (int64, error) { return 2, nil },
	}
	blocks := &services.MockExpirableStore{
		DeactivateExpiredFunc: func(ctx context.Context, now time.Time) (int64, error) { return 1, nil },
	}

	result := newSweeper(retention, locks, blocks).Sweep(context.Background())

	assert.Equal(t, int64(12), result.AttemptsArchived)
	assert.Equal(t, int64(7), result.AttemptsDeleted)
	assert.Equal(t, int64(3), result.ChallengesDeleted)
	assert.Equal(t, int64(2), result.LocksDeactivated)
	assert.Equal(t, int64(1), result.BlocksDeactivated)
	assert.Equal(t, 0, result.ClustersSummarized)
}

func TestSweep_SummarizesClustersBeforeDeletion(t *testing.T) {
	cluster := models.FailureCluster{
		Identifier:     "test@example.com",
		IdentifierType: models.IdentifierEmail,
		AttemptCount:   75,
		OldestAttempt:  time.Now().Add(-120 * 24 * time.Hour),
		NewestAttempt:  time.Now().Add(-95 * 24 * time.Hour),
	}

	var summarized *models.SecurityAlert
	summarizedBeforeDelete := false
	deleted := false
	retention := &services.MockRetentionRepository{
		FindFailureClustersFunc: func(ctx context.Context, cutoff time.Time, minCount int) ([]models.FailureCluster, error) {
			assert.Equal(t, 50, minCount)
			return []models.FailureCluster{cluster}, nil
		},
		SummarizeAndDeleteClusterFunc: func(ctx context.Context, c models.FailureCluster, cutoff time.Time, alert *models.SecurityAlert) error {
			summarized = alert
			summarizedBeforeDelete = !deleted
			return nil
		},
		DeleteAttemptsOlderThanFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			deleted = true
			return 75, nil
		},
	}

	result := newSweeper(retention, &services.MockExpirableStore{}, &services.MockExpirableStore{}).Sweep(context.Background())

	assert.Equal(t, 1, result.ClustersSummarized)
	assert.True(t, summarizedBeforeDelete, "clusters must be summarized before the hard delete")
	require.NotNil(t, summarized)
	assert.Equal(t, models.AlertTypeArchivedPattern, summarized.AlertType)
	assert.Equal(t, models.SeverityMedium, summarized.Severity)
	assert.Equal(t, "75", summarized.Metadata["attempt_count"])
}

func TestSweep_FailingStepDoesNotAbortPass(t *testing.T) {
	retention := &services.MockRetentionRepository{
		MarkAttemptsClearedFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return 0, errors.New("connection refused")
		},
		DeleteAttemptsOlderThanFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return 4, nil
		},
	}
	locksCalled := false
	locks := &services.MockExpirableStore{
		DeactivateExpiredFunc: func(ctx context.Context, now time.Time) (int64, error) {
			locksCalled = true
			return 0, nil
		},
	}

	result := newSweeper(retention, locks, &services.MockExpirableStore{}).Sweep(context.Background())

	assert.Equal(t, int64(0), result.AttemptsArchived)
	assert.Equal(t, int64(4), result.AttemptsDeleted)
	assert.True(t, locksCalled)
}

func TestSweep_ClusterFailureSkipsOnlyThatCluster(t *testing.T) {
	clusters := []models.FailureCluster{
		{Identifier: "a@example.com", IdentifierType: models.IdentifierEmail, AttemptCount: 60},
		{Identifier: "b@example.com", IdentifierType: models.IdentifierEmail, AttemptCount: 80},
	}

	retention := &services.MockRetentionRepository{
		FindFailureClustersFunc: func(ctx context.Context, cutoff time.Time, minCount int) ([]models.FailureCluster, error) {
			return clusters, nil
		},
		SummarizeAndDeleteClusterFunc: func(ctx context.Context, c models.FailureCluster, cutoff time.Time, alert *models.SecurityAlert) error {
			if c.Identifier == "a@example.com" {
				return errors.New("serialization failure")
			}
			return nil
		},
	}

	result := newSweeper(retention, &services.MockExpirableStore{}, &services.MockExpirableStore{}).Sweep(context.Background())

	assert.Equal(t, 1, result.ClustersSummarized)
}
