package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditLogger emits structured security audit events for the threat-detection
// subsystem. Every state change that affects whether someone can log in
// (locks, blocks, alerts, challenges, manual admin actions) goes through
// here.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

func (al *AuditLogger) log(level slog.Level, auditType, eventType string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	attrs = append(attrs, extra...)

	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogLockEvent logs lock creation, expiry, and manual unlock
func (al *AuditLogger) LogLockEvent(eventType, identifier, identifierType, reason string, lockedBy string) {
	attrs := []slog.Attr{
		slog.String("identifier", MaskIdentifier(identifier, identifierType)),
		slog.String("identifier_type", identifierType),
		slog.String("reason", reason),
	}
	if lockedBy != "" {
		attrs = append(attrs, slog.String("actor", lockedBy))
	}

	al.log(slog.LevelWarn, "lockout", eventType, attrs...)
}

// LogBlockEvent logs block creation and removal
func (al *AuditLogger) LogBlockEvent(eventType, identifier, identifierType, reason, severity string, blockedBy string) {
	attrs := []slog.Attr{
		slog.String("identifier", MaskIdentifier(identifier, identifierType)),
		slog.String("identifier_type", identifierType),
		slog.String("reason", reason),
		slog.String("severity", severity),
	}
	if blockedBy != "" {
		attrs = append(attrs, slog.String("actor", blockedBy))
	}

	al.log(slog.LevelWarn, "block", eventType, attrs...)
}

// LogAlert logs a raised or reviewed security alert
func (al *AuditLogger) LogAlert(eventType, identifier, identifierType, alertType, severity string) {
	al.log(slog.LevelWarn, "alert", eventType,
		slog.String("identifier", MaskIdentifier(identifier, identifierType)),
		slog.String("identifier_type", identifierType),
		slog.String("alert_type", alertType),
		slog.String("severity", severity),
	)
}

// LogChallengeEvent logs challenge issuance and verification outcomes
func (al *AuditLogger) LogChallengeEvent(eventType, identifier, identifierType string, success bool) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}

	al.log(level, "challenge", eventType,
		slog.String("identifier", MaskIdentifier(identifier, identifierType)),
		slog.String("identifier_type", identifierType),
		slog.Bool("success", success),
	)
}

// LogAdminAction logs manual operations performed through the ops surface
func (al *AuditLogger) LogAdminAction(eventType, actor string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("actor", actor),
	}
	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.log(slog.LevelInfo, "admin", eventType, attrs...)
}
