package postgres

import (
	"context"
	"errors"
	"fmt"

	"webhook-delivery-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CredentialRepo implements ports.CredentialRepository.
type CredentialRepo struct {
	pool Pool
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(pool Pool) *CredentialRepo {
	return &CredentialRepo{pool: pool}
}

const credentialColumns = `id, account_id, api_key, secret_enc, name, active, created_at`

// Create inserts a new credential. Only used for seeding and tests; the main
// product owns credential provisioning.
func (r *CredentialRepo) Create(ctx context.Context, c *domain.Credential) error {
	query := `INSERT INTO credentials (id, account_id, api_key, secret_enc, name, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.AccountID, c.APIKey, c.SecretEnc, c.Name, c.Active, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// GetByID fetches a credential by its UUID.
func (r *CredentialRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	return r.scanCredential(r.pool.QueryRow(ctx, query, id), "id")
}

// GetByKey fetches a credential by its public API key.
func (r *CredentialRepo) GetByKey(ctx context.Context, apiKey string) (*domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE api_key = $1`
	return r.scanCredential(r.pool.QueryRow(ctx, query, apiKey), "api_key")
}

func (r *CredentialRepo) scanCredential(row pgx.Row, by string) (*domain.Credential, error) {
	c := &domain.Credential{}
	err := row.Scan(
		&c.ID, &c.AccountID, &c.APIKey, &c.SecretEnc, &c.Name, &c.Active, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get credential by %s: %w", by, err)
	}
	return c, nil
}
