package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bastionhq/bastion/internal/config"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/notify"
	"github.com/bastionhq/bastion/pkg/logger"
)

// AttemptStatsRepository defines the aggregate reads the detector needs
type AttemptStatsRepository interface {
	GetWindowStats(ctx context.Context, identifier string, identifierType models.IdentifierType, since time.Time) (*models.AttemptWindowStats, error)
	GetOriginStats(ctx context.Context, ipAddress string, since time.Time) (*models.OriginWindowStats, error)
}

// OriginBlocker creates blocks on abusive source IPs
type OriginBlocker interface {
	BlockIdentifier(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, severity models.Severity, duration time.Duration, blockedBy string, metadata map[string]string) (*models.SecurityBlock, error)
}

// AlertRepository defines the interface for security alert persistence
type AlertRepository interface {
	Create(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error)
	ExistsRecent(ctx context.Context, identifier string, identifierType models.IdentifierType, alertType string, since time.Time) (bool, error)
	ListUnreviewed(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error)
	ListBySeverities(ctx context.Context, severities []string, limit, offset int) ([]*models.SecurityAlert, error)
	MarkReviewed(ctx context.Context, id, reviewedBy, actionTaken string, reviewedAt time.Time) error
}

// ActivityDetector evaluates recent attempt history against anomaly rules
// after every failed attempt. Per-identifier detection is advisory: it
// raises alerts and flags the response but never locks the identifier. The
// one escalation it performs itself is blocking a source IP that sprays
// failures across many accounts, since no per-account lock can stop that.
type ActivityDetector struct {
	stats    AttemptStatsRepository
	alerts   AlertRepository
	blocker  OriginBlocker
	notifier notify.AlertNotifier
	cfg      *config.SecurityConfig
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

// NewActivityDetector creates a new ActivityDetector. The notifier may be
// nil when alert notification is disabled; the blocker may be nil to run
// origin detection alert-only.
func NewActivityDetector(stats AttemptStatsRepository, alerts AlertRepository, blocker OriginBlocker, notifier notify.AlertNotifier, cfg *config.SecurityConfig, audit *logger.AuditLogger, log *slog.Logger) *ActivityDetector {
	return &ActivityDetector{
		stats:    stats,
		alerts:   alerts,
		blocker:  blocker,
		notifier: notifier,
		cfg:      cfg,
		audit:    audit,
		logger:   log,
	}
}

// Evaluate runs the detection rules against the identifier's recent window
// and reports whether the activity looks suspicious. An identifier stays
// flagged while a rule matches even if the alert was already raised and
// deduplicated away. Store failures report not-suspicious.
func (d *ActivityDetector) Evaluate(ctx context.Context, identifier string, identifierType models.IdentifierType) bool {
	since := time.Now().Add(-d.cfg.DetectionWindow)

	stats, err := d.stats.GetWindowStats(ctx, identifier, identifierType, since)
	if err != nil {
		d.logger.Error("window stats lookup failed, skipping detection",
			slog.String("identifier_type", string(identifierType)),
			slog.Any("error", err))
		return false
	}

	suspicious := false

	if stats.DistinctIPs > d.cfg.FanOutIPThreshold && stats.TotalAttempts > d.cfg.FanOutCountThreshold {
		suspicious = true
		d.raiseAlert(ctx, identifier, identifierType, models.AlertTypeMultipleIPs, models.SeverityHigh,
			fmt.Sprintf("attempts from %d distinct IPs within the detection window", stats.DistinctIPs),
			map[string]string{
				"distinct_ips":   strconv.Itoa(stats.DistinctIPs),
				"total_attempts": strconv.Itoa(stats.TotalAttempts),
			})
	}

	if stats.TotalAttempts >= 2 && stats.MeanInterval() < d.cfg.AutomationInterval {
		suspicious = true
		d.raiseAlert(ctx, identifier, identifierType, models.AlertTypeAutomation, models.SeverityCritical,
			fmt.Sprintf("mean gap between attempts was %s, below the automation threshold", stats.MeanInterval()),
			map[string]string{
				"mean_interval_ms": strconv.FormatInt(stats.MeanInterval().Milliseconds(), 10),
				"total_attempts":   strconv.Itoa(stats.TotalAttempts),
			})
	}

	return suspicious
}

// EvaluateOrigin checks the source IP's failed attempts across all
// identifiers and blocks the IP when both origin thresholds are crossed.
// The IP stays blockable independent of any single account's lock state.
// Store failures do nothing; the per-identifier gates still apply.
func (d *ActivityDetector) EvaluateOrigin(ctx context.Context, ipAddress string) {
	if ipAddress == "" {
		return
	}

	now := time.Now()
	since := now.Add(-d.cfg.OriginWindow)

	stats, err := d.stats.GetOriginStats(ctx, ipAddress, since)
	if err != nil {
		d.logger.Error("origin stats lookup failed, skipping origin detection",
			slog.Any("error", err))
		return
	}

	if stats.FailedAttempts <= d.cfg.OriginFailureThreshold || stats.DistinctIdentifiers < d.cfg.OriginAccountThreshold {
		return
	}

	// One escalation per origin per window; the block from the first one
	// is still in force.
	exists, err := d.alerts.ExistsRecent(ctx, ipAddress, models.IdentifierIP, models.AlertTypeCredentialStuffing, since)
	if err != nil {
		d.logger.Error("origin dedup lookup failed, skipping escalation",
			slog.Any("error", err))
		return
	}
	if exists {
		return
	}

	reason := fmt.Sprintf("%d failed attempts across %d accounts within the origin window", stats.FailedAttempts, stats.DistinctIdentifiers)
	metadata := map[string]string{
		"failed_attempts":      strconv.Itoa(stats.FailedAttempts),
		"distinct_identifiers": strconv.Itoa(stats.DistinctIdentifiers),
	}

	if d.blocker != nil {
		if _, err := d.blocker.BlockIdentifier(ctx, ipAddress, models.IdentifierIP, reason, models.SeverityHigh, d.cfg.OriginBlockDuration, "detector", metadata); err != nil {
			d.logger.Error("origin block failed",
				slog.Any("error", err))
		}
	}

	d.raiseAlert(ctx, ipAddress, models.IdentifierIP, models.AlertTypeCredentialStuffing, models.SeverityHigh, reason, metadata)
}

// ListUnreviewedAlerts returns alerts awaiting review
func (d *ActivityDetector) ListUnreviewedAlerts(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error) {
	return d.alerts.ListUnreviewed(ctx, limit, offset)
}

// ListAlertsBySeverities returns alerts filtered by severity
func (d *ActivityDetector) ListAlertsBySeverities(ctx context.Context, severities []string, limit, offset int) ([]*models.SecurityAlert, error) {
	for _, s := range severities {
		if !models.Severity(s).Valid() {
			return nil, models.ErrBadRequest
		}
	}
	return d.alerts.ListBySeverities(ctx, severities, limit, offset)
}

// ReviewAlert records a reviewer's decision on an alert
func (d *ActivityDetector) ReviewAlert(ctx context.Context, id, reviewedBy, actionTaken string) error {
	if err := d.alerts.MarkReviewed(ctx, id, reviewedBy, actionTaken, time.Now()); err != nil {
		return err
	}

	d.audit.LogAdminAction("alert_reviewed", reviewedBy, map[string]string{
		"alert_id":     id,
		"action_taken": actionTaken,
	})
	return nil
}

// raiseAlert persists one alert per (identifier, rule) per detection
// window. Persistence and notification failures are logged and swallowed;
// the caller's flag already carries the signal.
func (d *ActivityDetector) raiseAlert(ctx context.Context, identifier string, identifierType models.IdentifierType, alertType string, severity models.Severity, reason string, metadata map[string]string) {
	since := time.Now().Add(-d.cfg.DetectionWindow)

	exists, err := d.alerts.ExistsRecent(ctx, identifier, identifierType, alertType, since)
	if err != nil {
		d.logger.Error("alert dedup lookup failed, skipping alert",
			slog.String("alert_type", alertType),
			slog.Any("error", err))
		return
	}
	if exists {
		return
	}

	alert := &models.SecurityAlert{
		Identifier:     identifier,
		IdentifierType: identifierType,
		AlertType:      alertType,
		Reason:         reason,
		Severity:       severity,
		Metadata:       metadata,
		CreatedAt:      time.Now(),
	}

	created, err := d.alerts.Create(ctx, alert)
	if err != nil {
		d.logger.Error("failed to persist security alert",
			slog.String("alert_type", alertType),
			slog.Any("error", err))
		return
	}

	d.audit.LogAlert("alert_raised", identifier, string(identifierType), alertType, string(severity))

	if d.notifier != nil && (severity == models.SeverityHigh || severity == models.SeverityCritical) {
		if err := d.notifier.NotifyAlert(ctx, created); err != nil {
			d.logger.Error("alert notification failed",
				slog.String("alert_type", alertType),
				slog.Any("error", err))
		}
	}
}
