package services

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/bastionhq/bastion/internal/config"
	"github.com/bastionhq/bastion/internal/models"
)

// RetentionRepository defines the cross-table retention operations the
// sweeper drives
type RetentionRepository interface {
	MarkAttemptsCleared(ctx context.Context, cutoff time.Time) (int64, error)
	FindFailureClusters(ctx context.Context, cutoff time.Time, minCount int) ([]models.FailureCluster, error)
	SummarizeAndDeleteCluster(ctx context.Context, cluster models.FailureCluster, cutoff time.Time, alert *models.SecurityAlert) error
	DeleteAttemptsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteChallengesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExpirableStore deactivates rows whose expiry has passed
type ExpirableStore interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// SweepResult summarizes one retention pass
type SweepResult struct {
	AttemptsArchived   int64 `json:"attempts_archived"`
	AttemptsDeleted    int64 `json:"attempts_deleted"`
	ClustersSummarized int   `json:"clusters_summarized"`
	ChallengesDeleted  int64 `json:"challenges_deleted"`
	LocksDeactivated   int64 `json:"locks_deactivated"`
	BlocksDeactivated  int64 `json:"blocks_deactivated"`
}

// Sweeper performs the periodic retention pass: archiving aged attempts,
// summarizing dense failure clusters into alerts before hard deletion,
// and deactivating expired locks and blocks. Every step is idempotent, so
// an interrupted pass is simply finished by the next one.
type Sweeper struct {
	retention RetentionRepository
	locks     ExpirableStore
	blocks    ExpirableStore
	cfg       *config.SecurityConfig
	logger    *slog.Logger
}

// NewSweeper creates a new Sweeper
func NewSweeper(retention RetentionRepository, locks, blocks ExpirableStore, cfg *config.SecurityConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		retention: retention,
		locks:     locks,
		blocks:    blocks,
		cfg:       cfg,
		logger:    logger,
	}
}

// Sweep runs one full retention pass. A failing step is logged and the
// pass moves on; partial progress is kept.
func (s *Sweeper) Sweep(ctx context.Context) *SweepResult {
	now := time.Now()
	result := &SweepResult{}

	archived, err := s.retention.MarkAttemptsCleared(ctx, now.Add(-s.cfg.ArchiveAfter))
	if err != nil {
		s.logger.Error("sweep: failed to archive old attempts", slog.Any("error", err))
	}
	result.AttemptsArchived = archived

	deleteCutoff := now.Add(-s.cfg.DeleteAfter)

	// Summarize dense failure clusters into alerts before their raw rows
	// are deleted, so the pattern survives the retention horizon.
	clusters, err := s.retention.FindFailureClusters(ctx, deleteCutoff, s.cfg.ClusterAlertMinCount)
	if err != nil {
		s.logger.Error("sweep: failed to find failure clusters", slog.Any("error", err))
	}
	for _, cluster := range clusters {
		alert := clusterAlert(cluster, now)
		if err := s.retention.SummarizeAndDeleteCluster(ctx, cluster, deleteCutoff, alert); err != nil {
			s.logger.Error("sweep: failed to summarize failure cluster",
				slog.String("identifier_type", string(cluster.IdentifierType)),
				slog.Any("error", err))
			continue
		}
		result.ClustersSummarized++
	}

	deleted, err := s.retention.DeleteAttemptsOlderThan(ctx, deleteCutoff)
	if err != nil {
		s.logger.Error("sweep: failed to delete old attempts", slog.Any("error", err))
	}
	result.AttemptsDeleted = deleted

	challenges, err := s.retention.DeleteChallengesOlderThan(ctx, deleteCutoff)
	if err != nil {
		s.logger.Error("sweep: failed to delete old challenges", slog.Any("error", err))
	}
	result.ChallengesDeleted = challenges

	locks, err := s.locks.DeactivateExpired(ctx, now)
	if err != nil {
		s.logger.Error("sweep: failed to deactivate expired locks", slog.Any("error", err))
	}
	result.LocksDeactivated = locks

	blocks, err := s.blocks.DeactivateExpired(ctx, now)
	if err != nil {
		s.logger.Error("sweep: failed to deactivate expired blocks", slog.Any("error", err))
	}
	result.BlocksDeactivated = blocks

	s.logger.Info("retention sweep completed",
		slog.Int64("attempts_archived", result.AttemptsArchived),
		slog.Int64("attempts_deleted", result.AttemptsDeleted),
		slog.Int("clusters_summarized", result.ClustersSummarized),
		slog.Int64("challenges_deleted", result.ChallengesDeleted),
		slog.Int64("locks_deactivated", result.LocksDeactivated),
		slog.Int64("blocks_deactivated", result.BlocksDeactivated),
	)

	return result
}

func clusterAlert(cluster models.FailureCluster, now time.Time) *models.SecurityAlert {
	return &models.SecurityAlert{
		Identifier:     cluster.Identifier,
		IdentifierType: cluster.IdentifierType,
		AlertType:      models.AlertTypeArchivedPattern,
		Reason:         "persistent failed-attempt pattern summarized before retention deletion",
		Severity:       models.SeverityMedium,
		Metadata: map[string]string{
			"attempt_count":  strconv.Itoa(cluster.AttemptCount),
			"oldest_attempt": cluster.OldestAttempt.UTC().Format(time.RFC3339),
			"newest_attempt": cluster.NewestAttempt.UTC().Format(time.RFC3339),
		},
		CreatedAt: now,
	}
}
