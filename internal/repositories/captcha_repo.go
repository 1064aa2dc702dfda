package repositories

import (
	"context"
	"time"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// CaptchaRepository handles database operations for CAPTCHA challenges
type CaptchaRepository struct {
	db *database.DB
}

// NewCaptchaRepository creates a new CaptchaRepository
func NewCaptchaRepository(db *database.DB) *CaptchaRepository {
	return &CaptchaRepository{db: db}
}

const challengeColumns = `id, identifier, identifier_type, challenge_token, challenge_type, answer_hash, issued_at, expires_at, verified, verified_at, attempts`

func scanChallengeRow(row pgx.Row) (*models.CaptchaChallenge, error) {
	var c models.CaptchaChallenge

	err := row.Scan(
		&c.ID, &c.Identifier, &c.IdentifierType, &c.ChallengeToken,
		&c.ChallengeType, &c.AnswerHash, &c.IssuedAt, &c.ExpiresAt,
		&c.Verified, &c.VerifiedAt, &c.Attempts,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &c, nil
}

// Create inserts a new challenge row
func (r *CaptchaRepository) Create(ctx context.Context, c *models.CaptchaChallenge) (*models.CaptchaChallenge, error) {
	query := `
		INSERT INTO captcha_challenges (identifier, identifier_type, challenge_token, challenge_type, answer_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + challengeColumns + `
	`

	return scanChallengeRow(r.db.Pool.QueryRow(ctx, query,
		c.Identifier, c.IdentifierType, c.ChallengeToken, c.ChallengeType,
		c.AnswerHash, c.IssuedAt, c.ExpiresAt,
	))
}

// GetByToken looks up a challenge by its unique token
func (r *CaptchaRepository) GetByToken(ctx context.Context, token string) (*models.CaptchaChallenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM captcha_challenges
		WHERE challenge_token = $1
	`

	return scanChallengeRow(r.db.Pool.QueryRow(ctx, query, token))
}

// IncrementAttempts bumps the verification attempt counter and returns the
// new value. Every verification try counts, including ones rejected later.
func (r *CaptchaRepository) IncrementAttempts(ctx context.Context, token string) (int, error) {
	query := `
		UPDATE captcha_challenges
		SET attempts = attempts + 1
		WHERE challenge_token = $1
		RETURNING attempts
	`

	var attempts int
	err := r.db.Pool.QueryRow(ctx, query, token).Scan(&attempts)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

// MarkVerified consumes a challenge. The verified=false guard makes the
// consumption single-use under concurrent verification calls: exactly one
// caller sees consumed=true.
func (r *CaptchaRepository) MarkVerified(ctx context.Context, token string, verifiedAt time.Time) (bool, error) {
	query := `
		UPDATE captcha_challenges
		SET verified = true, verified_at = $2
		WHERE challenge_token = $1 AND verified = false
	`

	result, err := r.db.Pool.Exec(ctx, query, token, verifiedAt)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}
