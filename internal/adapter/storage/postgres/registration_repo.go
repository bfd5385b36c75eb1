package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webhook-delivery-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RegistrationRepo implements ports.RegistrationRepository.
type RegistrationRepo struct {
	pool Pool
}

// NewRegistrationRepo creates a new RegistrationRepo.
func NewRegistrationRepo(pool Pool) *RegistrationRepo {
	return &RegistrationRepo{pool: pool}
}

const registrationColumns = `id, account_id, credential_id, url, secret_enc, active, max_attempts, retry_delay_seconds, last_triggered_at, created_at, updated_at`

// Create inserts a new registration within a database transaction, alongside
// the deactivation of any prior active row for the credential.
func (r *RegistrationRepo) Create(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error {
	query := `INSERT INTO webhook_registrations (` + registrationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		reg.ID, reg.AccountID, reg.CredentialID, reg.URL, reg.SecretEnc,
		reg.Active, reg.MaxAttempts, reg.RetryDelaySeconds,
		reg.LastTriggeredAt, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

// GetByID fetches a registration by UUID.
func (r *RegistrationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM webhook_registrations WHERE id = $1`
	return scanRegistration(r.pool.QueryRow(ctx, query, id))
}

// GetActiveByCredential fetches the single active registration for a
// credential, or nil when none exists.
func (r *RegistrationRepo) GetActiveByCredential(ctx context.Context, credentialID uuid.UUID) (*domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM webhook_registrations
		WHERE credential_id = $1 AND active = true`
	return scanRegistration(r.pool.QueryRow(ctx, query, credentialID))
}

// ListByAccount returns all registrations for an account, newest first.
func (r *RegistrationRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM webhook_registrations
		WHERE account_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []domain.Registration
	for rows.Next() {
		var reg domain.Registration
		if err := rows.Scan(
			&reg.ID, &reg.AccountID, &reg.CredentialID, &reg.URL, &reg.SecretEnc,
			&reg.Active, &reg.MaxAttempts, &reg.RetryDelaySeconds,
			&reg.LastTriggeredAt, &reg.CreatedAt, &reg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// Update persists the mutable registration fields.
func (r *RegistrationRepo) Update(ctx context.Context, reg *domain.Registration) error {
	query := `UPDATE webhook_registrations
		SET url=$1, active=$2, max_attempts=$3, retry_delay_seconds=$4, updated_at=$5
		WHERE id=$6`

	tag, err := r.pool.Exec(ctx, query,
		reg.URL, reg.Active, reg.MaxAttempts, reg.RetryDelaySeconds, reg.UpdatedAt, reg.ID,
	)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registration not found: %s", reg.ID)
	}
	return nil
}

// DeactivateActiveForCredential flips off any active registration for the
// credential. Runs inside the registration transaction so the single-active
// invariant holds even under concurrent registrations.
func (r *RegistrationRepo) DeactivateActiveForCredential(ctx context.Context, tx pgx.Tx, credentialID uuid.UUID) error {
	query := `UPDATE webhook_registrations SET active=false, updated_at=NOW()
		WHERE credential_id=$1 AND active=true`

	if _, err := tx.Exec(ctx, query, credentialID); err != nil {
		return fmt.Errorf("deactivate registrations: %w", err)
	}
	return nil
}

// SetLastTriggered records the time of the last successful delivery.
func (r *RegistrationRepo) SetLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE webhook_registrations SET last_triggered_at=$1 WHERE id=$2`

	if _, err := r.pool.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("set last_triggered_at: %w", err)
	}
	return nil
}

func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	reg := &domain.Registration{}
	err := row.Scan(
		&reg.ID, &reg.AccountID, &reg.CredentialID, &reg.URL, &reg.SecretEnc,
		&reg.Active, &reg.MaxAttempts, &reg.RetryDelaySeconds,
		&reg.LastTriggeredAt, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}
