package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"webhook-delivery-gateway/internal/adapter/http/dto"
	"webhook-delivery-gateway/internal/adapter/http/middleware"
	"webhook-delivery-gateway/internal/core/domain"
	"webhook-delivery-gateway/internal/core/ports"
	"webhook-delivery-gateway/internal/core/ports/mocks"
	"webhook-delivery-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRegistration(accountID, credentialID uuid.UUID) *domain.Registration {
	now := time.Now().UTC()
	return &domain.Registration{
		ID:                uuid.New(),
		AccountID:         accountID,
		CredentialID:      credentialID,
		URL:               "https://receiver.example.com/hooks",
		SecretEnc:         "encrypted",
		Active:            true,
		MaxAttempts:       domain.DefaultMaxAttempts,
		RetryDelaySeconds: domain.DefaultRetryDelaySeconds,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func authedContext(t *testing.T, accountID uuid.UUID, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.CtxAccountID, accountID)
	return c, w
}

// --- Webhook Handler Tests ---

func TestRegisterWebhook_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockRegistrationService(ctrl)
	h := NewWebhookHandler(mockReg)

	accountID := uuid.New()
	credentialID := uuid.New()
	reg := testRegistration(accountID, credentialID)

	mockReg.EXPECT().Register(gomock.Any(), ports.RegisterWebhookInput{
		AccountID:    accountID,
		CredentialID: credentialID,
		URL:          "https://receiver.example.com/hooks",
	}).Return(&ports.RegisteredWebhook{
		Registration: *reg,
		Secret:       "plaintext-secret",
	}, nil)

	body, _ := json.Marshal(dto.RegisterWebhookRequest{
		CredentialID: credentialID.String(),
		URL:          "https://receiver.example.com/hooks",
	})
	c, w := authedContext(t, accountID, http.MethodPost, "/api/v1/webhooks", body)

	h.Register(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	webhook := data["webhook"].(map[string]interface{})
	assert.Equal(t, "plaintext-secret", webhook["webhook_secret"])
	assert.Equal(t, reg.ID.String(), webhook["id"])
	assert.Equal(t, credentialID.String(), webhook["credential_id"])
	assert.Equal(t, "https://receiver.example.com/hooks", webhook["webhook_url"])
	assert.Equal(t, true, webhook["active"])
}

func TestRegisterWebhook_NoAccountInContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWebhookHandler(mocks.NewMockRegistrationService(ctrl))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks", bytes.NewReader([]byte("{}")))

	h.Register(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "AUTH_001", resp["error_code"])
}

func TestRegisterWebhook_RejectsNonHTTPURL(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWebhookHandler(mocks.NewMockRegistrationService(ctrl))

	body, _ := json.Marshal(dto.RegisterWebhookRequest{
		CredentialID: uuid.New().String(),
		URL:          "ftp://receiver.example.com/hooks",
	})
	c, w := authedContext(t, uuid.New(), http.MethodPost, "/api/v1/webhooks", body)

	h.Register(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterWebhook_ServiceError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockRegistrationService(ctrl)
	h := NewWebhookHandler(mockReg)

	mockReg.EXPECT().Register(gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrNotFound("credential"))

	body, _ := json.Marshal(dto.RegisterWebhookRequest{
		CredentialID: uuid.New().String(),
		URL:          "https://receiver.example.com/hooks",
	})
	c, w := authedContext(t, uuid.New(), http.MethodPost, "/api/v1/webhooks", body)

	h.Register(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "WH_002", resp["error_code"])
}

func TestListWebhooks_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockRegistrationService(ctrl)
	h := NewWebhookHandler(mockReg)

	accountID := uuid.New()
	regA := testRegistration(accountID, uuid.New())
	regB := testRegistration(accountID, uuid.New())
	regB.Active = false

	mockReg.EXPECT().List(gomock.Any(), accountID).
		Return([]domain.Registration{*regA, *regB}, nil)

	c, w := authedContext(t, accountID, http.MethodGet, "/api/v1/webhooks", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, regA.ID.String(), items[0].(map[string]interface{})["id"])
	assert.Equal(t, false, items[1].(map[string]interface{})["active"])
}

func TestListWebhooks_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockRegistrationService(ctrl)
	h := NewWebhookHandler(mockReg)

	accountID := uuid.New()
	mockReg.EXPECT().List(gomock.Any(), accountID).Return(nil, nil)

	c, w := authedContext(t, accountID, http.MethodGet, "/api/v1/webhooks", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	assert.Empty(t, items)
}

func TestUpdateWebhook_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockRegistrationService(ctrl)
	h := NewWebhookHandler(mockReg)

	accountID := uuid.New()
	reg := testRegistration(accountID, uuid.New())
	reg.URL = "https://receiver.example.com/v2/hooks"

	newURL := "https://receiver.example.com/v2/hooks"
	mockReg.EXPECT().Update(gomock.Any(), reg.ID, accountID, ports.UpdateWebhookInput{
		URL: &newURL,
	}).Return(reg, nil)

	body, _ := json.Marshal(dto.UpdateWebhookRequest{URL: &newURL})
	c, w := authedContext(t, accountID, http.MethodPut, "/api/v1/webhooks/"+reg.ID.String(), body)
	c.Params = gin.Params{{Key: "id", Value: reg.ID.String()}}

	h.Update(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, newURL, data["webhook_url"])
}

func TestUpdateWebhook_NotOwned(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockRegistrationService(ctrl)
	h := NewWebhookHandler(mockReg)

	mockReg.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, apperror.ErrNotFound("webhook"))

	id := uuid.New()
	c, w := authedContext(t, uuid.New(), http.MethodPut, "/api/v1/webhooks/"+id.String(), []byte("{}"))
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Update(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeactivateWebhook_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockRegistrationService(ctrl)
	h := NewWebhookHandler(mockReg)

	accountID := uuid.New()
	id := uuid.New()
	mockReg.EXPECT().Deactivate(gomock.Any(), id, accountID).Return(true, nil)

	c, w := authedContext(t, accountID, http.MethodDelete, "/api/v1/webhooks/"+id.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Deactivate(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "webhook deactivated", data["message"])
}

func TestDeactivateWebhook_InvalidID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	h := NewWebhookHandler(mocks.NewMockRegistrationService(ctrl))

	c, w := authedContext(t, uuid.New(), http.MethodDelete, "/api/v1/webhooks/not-a-uuid", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	h.Deactivate(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "WH_003", resp["error_code"])
}

func TestHistory_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockRegistrationService(ctrl)
	h := NewWebhookHandler(mockReg)

	accountID := uuid.New()
	id := uuid.New()
	code := 200
	now := time.Now().UTC()
	deliveredAt := now.Add(time.Second)
	mockReg.EXPECT().History(gomock.Any(), id, accountID, defaultHistoryLimit).
		Return([]domain.Delivery{{
			ID:             uuid.New(),
			RegistrationID: id,
			Status:         domain.DeliveryStatusSent,
			AttemptCount:   2,
			ResponseCode:   &code,
			CreatedAt:      now,
			DeliveredAt:    &deliveredAt,
			UpdatedAt:      deliveredAt,
		}}, nil)

	c, w := authedContext(t, accountID, http.MethodGet, "/api/v1/webhooks/"+id.String()+"/deliveries", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.History(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	items := resp["data"].(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 1)
	entry := items[0].(map[string]interface{})
	assert.Equal(t, "SENT", entry["status"])
	assert.Equal(t, float64(2), entry["attempt_count"])
	assert.Equal(t, float64(200), entry["response_code"])
}

func TestHistory_CustomLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockRegistrationService(ctrl)
	h := NewWebhookHandler(mockReg)

	accountID := uuid.New()
	id := uuid.New()
	mockReg.EXPECT().History(gomock.Any(), id, accountID, 10).Return(nil, nil)

	c, w := authedContext(t, accountID, http.MethodGet, "/api/v1/webhooks/"+id.String()+"/deliveries?limit=10", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.History(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHistory_LimitOutOfRangeFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockReg := mocks.NewMockRegistrationService(ctrl)
	h := NewWebhookHandler(mockReg)

	accountID := uuid.New()
	id := uuid.New()
	mockReg.EXPECT().History(gomock.Any(), id, accountID, defaultHistoryLimit).Return(nil, nil)

	c, w := authedContext(t, accountID, http.MethodGet, "/api/v1/webhooks/"+id.String()+"/deliveries?limit=5000", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.History(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Event Handler Tests ---

type eventMocks struct {
	regRepo     *mocks.MockRegistrationRepository
	deliverySvc *mocks.MockDeliveryService
	cache       *mocks.MockTriggerCache
}

func setupEventHandler(t *testing.T, withCache bool) (*EventHandler, eventMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := eventMocks{
		regRepo:     mocks.NewMockRegistrationRepository(ctrl),
		deliverySvc: mocks.NewMockDeliveryService(ctrl),
	}
	var cache ports.TriggerCache
	if withCache {
		m.cache = mocks.NewMockTriggerCache(ctrl)
		cache = m.cache
	}
	h := NewEventHandler(m.regRepo, m.deliverySvc, cache, zerolog.New(io.Discard))
	return h, m
}

func triggerContext(t *testing.T, cred *domain.Credential, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/events/audit", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if cred != nil {
		c.Set(middleware.CtxCredential, cred)
	}
	return c, w
}

func testCredential() *domain.Credential {
	return &domain.Credential{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		APIKey:    "ak_test",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestTrigger_Success(t *testing.T) {
	h, m := setupEventHandler(t, false)

	cred := testCredential()
	reg := testRegistration(cred.AccountID, cred.ID)
	payload := []byte(`{"session_id":"abc","score":85}`)
	deliveryID := uuid.New()

	m.regRepo.EXPECT().GetActiveByCredential(gomock.Any(), cred.ID).Return(reg, nil)

	var gotPayload []byte
	var gotCorrelation string
	m.deliverySvc.EXPECT().Deliver(gomock.Any(), reg, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *domain.Registration, p []byte, cid string) (uuid.UUID, error) {
			gotPayload = p
			gotCorrelation = cid
			return deliveryID, nil
		})

	c, w := triggerContext(t, cred, payload)
	c.Request.Header.Set(HeaderCorrelationID, "audit-550")

	h.Trigger("audit")(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp dto.TriggerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, deliveryID.String(), resp.DeliveryID)
	assert.Equal(t, "audit.completed", resp.EventType)
	assert.Equal(t, "PENDING", resp.Status)

	// The request body is handed to the engine byte for byte.
	assert.Equal(t, payload, gotPayload)
	assert.Equal(t, "audit-550", gotCorrelation)
}

func TestTrigger_NoCredentialInContext(t *testing.T) {
	h, _ := setupEventHandler(t, false)

	c, w := triggerContext(t, nil, []byte(`{}`))

	h.Trigger("audit")(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SEC_001", resp["error_code"])
}

func TestTrigger_InvalidJSONBody(t *testing.T) {
	h, _ := setupEventHandler(t, false)

	c, w := triggerContext(t, testCredential(), []byte("not json"))

	h.Trigger("inventory")(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrigger_EmptyBody(t *testing.T) {
	h, _ := setupEventHandler(t, false)

	c, w := triggerContext(t, testCredential(), nil)

	h.Trigger("inventory")(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrigger_NoActiveRegistration(t *testing.T) {
	h, m := setupEventHandler(t, false)

	cred := testCredential()
	m.regRepo.EXPECT().GetActiveByCredential(gomock.Any(), cred.ID).Return(nil, nil)

	c, w := triggerContext(t, cred, []byte(`{"sku":"A-1","qty":3}`))

	h.Trigger("inventory")(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "WH_002", resp["error_code"])
}

func TestTrigger_RepositoryError(t *testing.T) {
	h, m := setupEventHandler(t, false)

	cred := testCredential()
	m.regRepo.EXPECT().GetActiveByCredential(gomock.Any(), cred.ID).
		Return(nil, errors.New("connection refused"))

	c, w := triggerContext(t, cred, []byte(`{}`))

	h.Trigger("audit")(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTrigger_IdempotentReplay(t *testing.T) {
	h, m := setupEventHandler(t, true)

	cred := testCredential()
	cached, _ := json.Marshal(dto.TriggerResponse{
		DeliveryID: uuid.New().String(),
		EventType:  "audit.completed",
		Status:     "PENDING",
	})
	m.cache.EXPECT().Get(gomock.Any(), cred.ID.String()+":key-1").Return(cached, nil)
	// No Deliver expectation: a replayed trigger must not create a second delivery.

	c, w := triggerContext(t, cred, []byte(`{"session_id":"abc"}`))
	c.Request.Header.Set(HeaderIdempotencyKey, "key-1")

	h.Trigger("audit")(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, cached, w.Body.Bytes())
}

func TestTrigger_CachesAcceptedResponse(t *testing.T) {
	h, m := setupEventHandler(t, true)

	cred := testCredential()
	reg := testRegistration(cred.AccountID, cred.ID)
	deliveryID := uuid.New()

	m.cache.EXPECT().Get(gomock.Any(), cred.ID.String()+":key-2").Return(nil, nil)
	m.regRepo.EXPECT().GetActiveByCredential(gomock.Any(), cred.ID).Return(reg, nil)
	m.deliverySvc.EXPECT().Deliver(gomock.Any(), reg, gomock.Any(), "").Return(deliveryID, nil)

	var stored []byte
	m.cache.EXPECT().Set(gomock.Any(), cred.ID.String()+":key-2", gomock.Any(), triggerCacheTTL).
		DoAndReturn(func(_ context.Context, _ string, value []byte, _ time.Duration) error {
			stored = value
			return nil
		})

	c, w := triggerContext(t, cred, []byte(`{"session_id":"abc"}`))
	c.Request.Header.Set(HeaderIdempotencyKey, "key-2")

	h.Trigger("audit")(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp dto.TriggerResponse
	require.NoError(t, json.Unmarshal(stored, &resp))
	assert.Equal(t, deliveryID.String(), resp.DeliveryID)
}

func TestTrigger_CacheFailureDoesNotBlock(t *testing.T) {
	h, m := setupEventHandler(t, true)

	cred := testCredential()
	reg := testRegistration(cred.AccountID, cred.ID)
	deliveryID := uuid.New()

	m.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))
	m.regRepo.EXPECT().GetActiveByCredential(gomock.Any(), cred.ID).Return(reg, nil)
	m.deliverySvc.EXPECT().Deliver(gomock.Any(), reg, gomock.Any(), "").Return(deliveryID, nil)
	m.cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("redis down"))

	c, w := triggerContext(t, cred, []byte(`{"photo_url":"https://cdn.example.com/1.jpg"}`))
	c.Request.Header.Set(HeaderIdempotencyKey, "key-3")

	h.Trigger("delivery-photos")(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	var resp dto.TriggerResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "delivery_photo.uploaded", resp.EventType)
}

// --- Health Check Tests ---

type stubChecker struct {
	name string
	err  error
}

func (s stubChecker) Ping(context.Context) error { return s.err }
func (s stubChecker) Name() string               { return s.name }

func TestHealthCheck_AllHealthy(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(stubChecker{name: "postgresql"}, stubChecker{name: "redis"})(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	deps := resp["dependencies"].(map[string]interface{})
	require.Len(t, deps, 2)
}

func TestHealthCheck_Degraded(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(
		stubChecker{name: "postgresql"},
		stubChecker{name: "redis", err: errors.New("connection refused")},
	)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
	deps := resp["dependencies"].(map[string]interface{})
	redis := deps["redis"].(map[string]interface{})
	assert.Equal(t, "unhealthy", redis["status"])
	assert.Equal(t, "connection refused", redis["error"])
}
