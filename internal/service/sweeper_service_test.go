package service

import (
	"context"
	"errors"
	"testing"

	"webhook-delivery-gateway/internal/core/domain"
	"webhook-delivery-gateway/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type sweeperTestDeps struct {
	svc          *SweeperServiceImpl
	deliveryRepo *mocks.MockDeliveryRepository
	regRepo      *mocks.MockRegistrationRepository
	engine       *mocks.MockDeliveryService
}

func setupSweeperService(t *testing.T) *sweeperTestDeps {
	ctrl := gomock.NewController(t)
	d := &sweeperTestDeps{
		deliveryRepo: mocks.NewMockDeliveryRepository(ctrl),
		regRepo:      mocks.NewMockRegistrationRepository(ctrl),
		engine:       mocks.NewMockDeliveryService(ctrl),
	}
	d.svc = NewSweeperService(d.deliveryRepo, d.regRepo, d.engine, newTestLogger())
	return d
}

func dueDelivery(regID uuid.UUID) domain.Delivery {
	return domain.Delivery{
		ID:             uuid.New(),
		RegistrationID: regID,
		Status:         domain.DeliveryStatusRetrying,
		AttemptCount:   1,
		Payload:        []byte(`{}`),
	}
}

func TestSweeperService_Sweep_ResubmitsDueDeliveries(t *testing.T) {
	d := setupSweeperService(t)
	regID := uuid.New()
	reg := &domain.Registration{ID: regID, Active: true, MaxAttempts: 3}
	due := []domain.Delivery{dueDelivery(regID), dueDelivery(regID)}

	d.deliveryRepo.EXPECT().ListDue(gomock.Any(), gomock.Any(), DefaultSweepBatchLimit).Return(due, nil)
	d.regRepo.EXPECT().GetByID(gomock.Any(), regID).Return(reg, nil).Times(2)
	d.engine.EXPECT().Resubmit(gomock.Any(), reg, gomock.Any()).Return(true, nil).Times(2)

	n, err := d.svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSweeperService_Sweep_RespectsBatchLimit(t *testing.T) {
	d := setupSweeperService(t)
	regID := uuid.New()
	reg := &domain.Registration{ID: regID, Active: true, MaxAttempts: 3}

	d.deliveryRepo.EXPECT().ListDue(gomock.Any(), gomock.Any(), 1).Return([]domain.Delivery{dueDelivery(regID)}, nil)
	d.regRepo.EXPECT().GetByID(gomock.Any(), regID).Return(reg, nil)
	d.engine.EXPECT().Resubmit(gomock.Any(), reg, gomock.Any()).Return(true, nil)

	n, err := d.svc.Sweep(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweeperService_Sweep_SkipsLostClaims(t *testing.T) {
	// A row picked up by the direct loop between ListDue and Claim is not
	// counted as retried.
	d := setupSweeperService(t)
	regID := uuid.New()
	reg := &domain.Registration{ID: regID, Active: true, MaxAttempts: 3}
	due := []domain.Delivery{dueDelivery(regID), dueDelivery(regID)}

	d.deliveryRepo.EXPECT().ListDue(gomock.Any(), gomock.Any(), DefaultSweepBatchLimit).Return(due, nil)
	d.regRepo.EXPECT().GetByID(gomock.Any(), regID).Return(reg, nil).Times(2)
	gomock.InOrder(
		d.engine.EXPECT().Resubmit(gomock.Any(), reg, gomock.Any()).Return(false, nil),
		d.engine.EXPECT().Resubmit(gomock.Any(), reg, gomock.Any()).Return(true, nil),
	)

	n, err := d.svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweeperService_Sweep_SkipsMissingRegistration(t *testing.T) {
	d := setupSweeperService(t)
	regID := uuid.New()

	d.deliveryRepo.EXPECT().ListDue(gomock.Any(), gomock.Any(), DefaultSweepBatchLimit).Return([]domain.Delivery{dueDelivery(regID)}, nil)
	d.regRepo.EXPECT().GetByID(gomock.Any(), regID).Return(nil, nil)

	n, err := d.svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweeperService_Sweep_ContinuesPastResubmitError(t *testing.T) {
	d := setupSweeperService(t)
	regID := uuid.New()
	reg := &domain.Registration{ID: regID, Active: true, MaxAttempts: 3}
	due := []domain.Delivery{dueDelivery(regID), dueDelivery(regID)}

	d.deliveryRepo.EXPECT().ListDue(gomock.Any(), gomock.Any(), DefaultSweepBatchLimit).Return(due, nil)
	d.regRepo.EXPECT().GetByID(gomock.Any(), regID).Return(reg, nil).Times(2)
	gomock.InOrder(
		d.engine.EXPECT().Resubmit(gomock.Any(), reg, gomock.Any()).Return(true, errors.New("update failed")),
		d.engine.EXPECT().Resubmit(gomock.Any(), reg, gomock.Any()).Return(true, nil),
	)

	n, err := d.svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "errored resubmit is not counted")
}

func TestSweeperService_Sweep_ListDueError(t *testing.T) {
	d := setupSweeperService(t)

	d.deliveryRepo.EXPECT().ListDue(gomock.Any(), gomock.Any(), DefaultSweepBatchLimit).Return(nil, errors.New("db down"))

	_, err := d.svc.Sweep(context.Background(), 0)
	assert.Error(t, err)
}

func TestSweeperService_Sweep_NothingDue(t *testing.T) {
	d := setupSweeperService(t)

	d.deliveryRepo.EXPECT().ListDue(gomock.Any(), gomock.Any(), DefaultSweepBatchLimit).Return(nil, nil)

	n, err := d.svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
