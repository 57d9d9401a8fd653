package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkwell-labs/gatekeeper/internal/database"
	"github.com/inkwell-labs/gatekeeper/internal/models"
)

// VerificationRepository handles pending verification data access.
// At most one verification exists per account and purpose: issuing a
// new one replaces whatever was pending.
type VerificationRepository struct {
	db *database.DB
}

// NewVerificationRepository creates a new VerificationRepository
func NewVerificationRepository(db *database.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

const verificationColumns = `id, account_id, kind, purpose, token_hash, expires_at, created_at`

func scanVerificationRow(row rowScanner) (*models.VerificationToken, error) {
	var v models.VerificationToken

	err := row.Scan(
		&v.ID, &v.AccountID, &v.Kind, &v.Purpose,
		&v.TokenHash, &v.ExpiresAt, &v.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &v, nil
}

// Replace issues a verification, displacing any pending one for the
// same account and purpose.
func (r *VerificationRepository) Replace(ctx context.Context, v *models.VerificationToken) (*models.VerificationToken, error) {
	query := fmt.Sprintf(`
		INSERT INTO verifications (id, account_id, kind, purpose, token_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, purpose) DO UPDATE SET
			id = EXCLUDED.id,
			kind = EXCLUDED.kind,
			token_hash = EXCLUDED.token_hash,
			expires_at = EXCLUDED.expires_at,
			created_at = now()
		RETURNING %s
	`, verificationColumns)

	id := v.ID
	if id == "" {
		id = uuid.New().String()
	}

	result, err := scanVerificationRow(r.db.Pool.QueryRow(ctx, query,
		id, v.AccountID, v.Kind, v.Purpose, v.TokenHash, v.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to store verification: %w", err)
	}
	return result, nil
}

// GetByAccountAndPurpose retrieves the pending verification, if any.
func (r *VerificationRepository) GetByAccountAndPurpose(ctx context.Context, accountID, purpose string) (*models.VerificationToken, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM verifications
		WHERE account_id = $1 AND purpose = $2
	`, verificationColumns)

	return scanVerificationRow(r.db.Pool.QueryRow(ctx, query, accountID, purpose))
}

// GetByTokenHash retrieves a pending verification by its hashed token.
// Link-style tokens are looked up this way since the URL carries no
// account reference.
func (r *VerificationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.VerificationToken, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM verifications
		WHERE token_hash = $1
	`, verificationColumns)

	return scanVerificationRow(r.db.Pool.QueryRow(ctx, query, tokenHash))
}

// Delete consumes a verification after successful use.
func (r *VerificationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM verifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete verification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteExpired purges stale verifications. Called from the background
// cleanup loop.
func (r *VerificationRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM verifications WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired verifications: %w", err)
	}
	return result.RowsAffected(), nil
}
