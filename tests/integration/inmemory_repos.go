package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"webhook-delivery-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Credential Repo ---

type inMemoryCredentialRepo struct {
	mu          sync.RWMutex
	credentials map[uuid.UUID]*domain.Credential
}

func newInMemoryCredentialRepo() *inMemoryCredentialRepo {
	return &inMemoryCredentialRepo{credentials: make(map[uuid.UUID]*domain.Credential)}
}

func (r *inMemoryCredentialRepo) Create(ctx context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *cred
	r.credentials[cred.ID] = &c
	return nil
}

func (r *inMemoryCredentialRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.credentials[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (r *inMemoryCredentialRepo) GetByKey(ctx context.Context, apiKey string) (*domain.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.credentials {
		if c.APIKey == apiKey {
			out := *c
			return &out, nil
		}
	}
	return nil, nil
}

// --- In-Memory Registration Repo ---

type inMemoryRegistrationRepo struct {
	mu            sync.RWMutex
	registrations map[uuid.UUID]*domain.Registration
}

func newInMemoryRegistrationRepo() *inMemoryRegistrationRepo {
	return &inMemoryRegistrationRepo{registrations: make(map[uuid.UUID]*domain.Registration)}
}

func (r *inMemoryRegistrationRepo) Create(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *reg
	r.registrations[reg.ID] = &cp
	return nil
}

func (r *inMemoryRegistrationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.registrations[id]
	if !ok {
		return nil, nil
	}
	out := *reg
	return &out, nil
}

func (r *inMemoryRegistrationRepo) GetActiveByCredential(ctx context.Context, credentialID uuid.UUID) (*domain.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, reg := range r.registrations {
		if reg.CredentialID == credentialID && reg.Active {
			out := *reg
			return &out, nil
		}
	}
	return nil, nil
}

func (r *inMemoryRegistrationRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Registration
	for _, reg := range r.registrations {
		if reg.AccountID == accountID {
			result = append(result, *reg)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *inMemoryRegistrationRepo) Update(ctx context.Context, reg *domain.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.registrations[reg.ID]; !ok {
		return fmt.Errorf("registration not found")
	}
	cp := *reg
	r.registrations[reg.ID] = &cp
	return nil
}

func (r *inMemoryRegistrationRepo) DeactivateActiveForCredential(ctx context.Context, tx pgx.Tx, credentialID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.registrations {
		if reg.CredentialID == credentialID && reg.Active {
			reg.Active = false
			reg.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (r *inMemoryRegistrationRepo) SetLastTriggered(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registrations[id]
	if !ok {
		return fmt.Errorf("registration not found")
	}
	reg.LastTriggeredAt = &at
	return nil
}

// --- In-Memory Delivery Repo ---

type inMemoryDeliveryRepo struct {
	mu         sync.RWMutex
	deliveries map[uuid.UUID]*domain.Delivery
}

func newInMemoryDeliveryRepo() *inMemoryDeliveryRepo {
	return &inMemoryDeliveryRepo{deliveries: make(map[uuid.UUID]*domain.Delivery)}
}

func (r *inMemoryDeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deliveries[d.ID] = &cp
	return nil
}

func (r *inMemoryDeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, nil
	}
	out := *d
	return &out, nil
}

func (r *inMemoryDeliveryRepo) Update(ctx context.Context, d *domain.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.deliveries[d.ID]
	if !ok {
		return fmt.Errorf("delivery not found")
	}
	cp := *d
	cp.Payload = existing.Payload // payload is write-once
	r.deliveries[d.ID] = &cp
	return nil
}

// Claim performs the same compare-and-set the SQL implementation does: the
// transition succeeds for exactly one caller, everyone else sees false.
func (r *inMemoryDeliveryRepo) Claim(ctx context.Context, id uuid.UUID, from domain.DeliveryStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return false, nil
	}
	if d.Status != from {
		return false, nil
	}
	d.Status = domain.DeliveryStatusInProgress
	d.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *inMemoryDeliveryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Delivery
	for _, d := range r.deliveries {
		if d.Status == domain.DeliveryStatusRetrying && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			result = append(result, *d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].NextRetryAt.Before(*result[j].NextRetryAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *inMemoryDeliveryRepo) ListByRegistration(ctx context.Context, registrationID uuid.UUID, limit int) ([]domain.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Delivery
	for _, d := range r.deliveries {
		if d.RegistrationID == registrationID {
			result = append(result, *d)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.RWMutex
	entries []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *log)
	return nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
