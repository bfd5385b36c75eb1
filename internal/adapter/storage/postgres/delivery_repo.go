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

// DeliveryRepo implements ports.DeliveryRepository.
type DeliveryRepo struct {
	pool Pool
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(pool Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

const deliveryColumns = `id, registration_id, correlation_id, status, attempt_count, payload, response_code, response_body, error_message, next_retry_at, created_at, delivered_at, updated_at`

// Create inserts a new ledger row. The payload is written here once and never
// touched again.
func (r *DeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	query := `INSERT INTO deliveries (` + deliveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.RegistrationID, d.CorrelationID, string(d.Status), d.AttemptCount,
		d.Payload, d.ResponseCode, d.ResponseBody, d.ErrorMessage,
		d.NextRetryAt, d.CreatedAt, d.DeliveredAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// GetByID fetches a delivery by UUID.
func (r *DeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`

	d, err := scanDelivery(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Update persists the attempt outcome fields. The payload column is excluded
// on purpose.
func (r *DeliveryRepo) Update(ctx context.Context, d *domain.Delivery) error {
	d.UpdatedAt = time.Now().UTC()
	query := `UPDATE deliveries
		SET status=$1, attempt_count=$2, response_code=$3, response_body=$4,
		    error_message=$5, next_retry_at=$6, delivered_at=$7, updated_at=$8
		WHERE id=$9`

	tag, err := r.pool.Exec(ctx, query,
		string(d.Status), d.AttemptCount, d.ResponseCode, d.ResponseBody,
		d.ErrorMessage, d.NextRetryAt, d.DeliveredAt, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery not found: %s", d.ID)
	}
	return nil
}

// Claim transitions a delivery from the given status to IN_PROGRESS with a
// single compare-and-swap. A false return means the row was not in that
// status anymore, so another worker owns the attempt.
func (r *DeliveryRepo) Claim(ctx context.Context, id uuid.UUID, from domain.DeliveryStatus) (bool, error) {
	query := `UPDATE deliveries SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`

	tag, err := r.pool.Exec(ctx, query, string(domain.DeliveryStatusInProgress), id, string(from))
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListDue returns RETRYING deliveries whose next_retry_at has passed, oldest
// first, capped at limit.
func (r *DeliveryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries
		WHERE status=$1 AND next_retry_at <= $2
		ORDER BY next_retry_at ASC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, string(domain.DeliveryStatusRetrying), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due deliveries: %w", err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// ListByRegistration returns the most recent deliveries for a registration.
func (r *DeliveryRepo) ListByRegistration(ctx context.Context, registrationID uuid.UUID, limit int) ([]domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries
		WHERE registration_id=$1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, registrationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func collectDeliveries(rows pgx.Rows) ([]domain.Delivery, error) {
	var out []domain.Delivery
	for rows.Next() {
		var d domain.Delivery
		var status string
		if err := rows.Scan(
			&d.ID, &d.RegistrationID, &d.CorrelationID, &status, &d.AttemptCount,
			&d.Payload, &d.ResponseCode, &d.ResponseBody, &d.ErrorMessage,
			&d.NextRetryAt, &d.CreatedAt, &d.DeliveredAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Status = domain.DeliveryStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDelivery(row pgx.Row) (*domain.Delivery, error) {
	d := &domain.Delivery{}
	var status string
	err := row.Scan(
		&d.ID, &d.RegistrationID, &d.CorrelationID, &status, &d.AttemptCount,
		&d.Payload, &d.ResponseCode, &d.ResponseBody, &d.ErrorMessage,
		&d.NextRetryAt, &d.CreatedAt, &d.DeliveredAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	d.Status = domain.DeliveryStatus(status)
	return d, nil
}
