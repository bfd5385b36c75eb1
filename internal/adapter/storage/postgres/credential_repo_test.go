package postgres

import (
	"context"
	"testing"
	"time"

	"webhook-delivery-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCredential() *domain.Credential {
	return &domain.Credential{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		APIKey:    "ak_" + uuid.New().String()[:16],
		SecretEnc: "encrypted_shared_secret",
		Name:      "ops-integration",
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func credentialColumnNames() []string {
	return []string{"id", "account_id", "api_key", "secret_enc", "name", "active", "created_at"}
}

func credentialRow(c *domain.Credential) *pgxmock.Rows {
	return pgxmock.NewRows(credentialColumnNames()).AddRow(
		c.ID, c.AccountID, c.APIKey, c.SecretEnc, c.Name, c.Active, c.CreatedAt,
	)
}

func TestCredentialRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCredentialRepo(mock)
	c := newTestCredential()

	mock.ExpectExec("INSERT INTO credentials").
		WithArgs(c.ID, c.AccountID, c.APIKey, c.SecretEnc, c.Name, c.Active, c.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), c)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_GetByKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCredentialRepo(mock)
	c := newTestCredential()

	mock.ExpectQuery("SELECT .+ FROM credentials WHERE api_key").
		WithArgs(c.APIKey).
		WillReturnRows(credentialRow(c))

	result, err := repo.GetByKey(context.Background(), c.APIKey)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, c.ID, result.ID)
	assert.Equal(t, c.APIKey, result.APIKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewCredentialRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM credentials WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(credentialColumnNames()))

	result, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
