package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/pkg/logger"
)

// BlockRepository defines the interface for security block persistence
type BlockRepository interface {
	CreateBlock(ctx context.Context, block *models.SecurityBlock) (*models.SecurityBlock, error)
	GetStrongestActiveBlock(ctx context.Context, identifier string, identifierType models.IdentifierType, now time.Time) (*models.SecurityBlock, error)
	Deactivate(ctx context.Context, identifier string, identifierType models.IdentifierType) (int64, error)
	ListActive(ctx context.Context, limit, offset int) ([]*models.SecurityBlock, error)
}

// BlockService manages severity-based security blocks on IPs and other
// identifiers. Blocks are independent of locks: a block silences an
// identifier regardless of its failure history.
type BlockService struct {
	blocks BlockRepository
	audit  *logger.AuditLogger
	logger *slog.Logger
}

// NewBlockService creates a new BlockService
func NewBlockService(blocks BlockRepository, audit *logger.AuditLogger, log *slog.Logger) *BlockService {
	return &BlockService{
		blocks: blocks,
		audit:  audit,
		logger: log,
	}
}

// BlockIdentifier creates a block. When duration is zero the severity's
// default applies; critical blocks never expire on their own.
func (s *BlockService) BlockIdentifier(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, severity models.Severity, duration time.Duration, blockedBy string, metadata map[string]string) (*models.SecurityBlock, error) {
	if !identifierType.ValidForBlock() {
		return nil, models.ErrInvalidIdentifierType
	}
	if !severity.Valid() {
		return nil, models.ErrBadRequest
	}

	now := time.Now()
	if duration == 0 {
		duration = severity.DefaultBlockDuration()
	}

	block := &models.SecurityBlock{
		Identifier:     identifier,
		IdentifierType: identifierType,
		Reason:         reason,
		Severity:       severity,
		BlockedAt:      now,
		IsActive:       true,
		Metadata:       metadata,
	}
	if blockedBy != "" {
		block.BlockedBy = &blockedBy
	}
	if duration > 0 {
		expires := now.Add(duration)
		block.ExpiresAt = &expires
	}

	created, err := s.blocks.CreateBlock(ctx, block)
	if err != nil {
		return nil, err
	}

	s.audit.LogBlockEvent("identifier_blocked", identifier, string(identifierType), reason, string(severity), blockedBy)
	return created, nil
}

// IsBlocked reports whether an identifier is currently blocked. With
// overlapping blocks the one reaching furthest into the future governs,
// and a never-expiring block beats every dated one. Store failures fail
// open.
func (s *BlockService) IsBlocked(ctx context.Context, identifier string, identifierType models.IdentifierType) *models.BlockStatus {
	now := time.Now()

	block, err := s.blocks.GetStrongestActiveBlock(ctx, identifier, identifierType, now)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("block lookup failed, failing open",
				slog.String("identifier_type", string(identifierType)),
				slog.Any("error", err))
		}
		return &models.BlockStatus{Blocked: false}
	}

	status := &models.BlockStatus{
		Blocked:  true,
		Reason:   block.Reason,
		Severity: block.Severity,
	}
	if block.ExpiresAt != nil {
		status.ExpiresAt = block.ExpiresAt
		status.RemainingTime = block.ExpiresAt.Sub(now)
	}
	return status
}

// Unblock deactivates all active blocks for an identifier. Returns
// ErrNotFound when the identifier had no active block.
func (s *BlockService) Unblock(ctx context.Context, identifier string, identifierType models.IdentifierType, unblockedBy string) error {
	affected, err := s.blocks.Deactivate(ctx, identifier, identifierType)
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrNotFound
	}

	s.audit.LogBlockEvent("identifier_unblocked", identifier, string(identifierType), "", "", unblockedBy)
	return nil
}

// ListActiveBlocks returns currently active blocks for admin review
func (s *BlockService) ListActiveBlocks(ctx context.Context, limit, offset int) ([]*models.SecurityBlock, error) {
	return s.blocks.ListActive(ctx, limit, offset)
}
