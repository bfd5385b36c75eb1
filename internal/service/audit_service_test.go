package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"webhook-delivery-gateway/internal/core/domain"
	"webhook-delivery-gateway/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditService_Log_PersistsEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(repo, newTestLogger())

	done := make(chan *domain.AuditLog, 1)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, entry *domain.AuditLog) error {
			done <- entry
			return nil
		})

	accountID := uuid.New()
	entry := &domain.AuditLog{
		AccountID:    &accountID,
		Action:       domain.AuditActionRegisterWebhook,
		ResourceType: "webhook",
		ResourceID:   uuid.New().String(),
		IPAddress:    "10.0.0.1",
	}
	svc.Log(context.Background(), entry)

	select {
	case got := <-done:
		assert.Equal(t, entry.Action, got.Action)
		assert.Equal(t, entry.ResourceID, got.ResourceID)
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry was not persisted")
	}
}

func TestAuditService_Log_RepoFailureDoesNotPanic(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(repo, newTestLogger())

	done := make(chan struct{})
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *domain.AuditLog) error {
			defer close(done)
			return errors.New("db down")
		})

	svc.Log(context.Background(), &domain.AuditLog{Action: domain.AuditActionTriggerEvent})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry was not attempted")
	}
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())
	// Log-only mode must not panic.
	svc.Log(context.Background(), &domain.AuditLog{Action: domain.AuditActionDeactivateWebhook})
}
