package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallparish/offertory/internal/webhook/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubService struct {
	outcome webhookdomain.Outcome
	err     error

	gotPayload []byte
	gotHeader  string
}

func (s *stubService) Ingest(ctx context.Context, payload []byte, signatureHeader string) (webhookdomain.Outcome, error) {
	s.gotPayload = payload
	s.gotHeader = signatureHeader
	return s.outcome, s.err
}

func (s *stubService) RedriveUnprocessed(ctx context.Context, before time.Time, limit int) (int, error) {
	return 0, nil
}

func postWebhook(t *testing.T, svc webhookdomain.Service, body []byte, header string) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	engine := NewEngine(zap.NewNop(), svc)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/giving", bytes.NewReader(body))
	if header != "" {
		req.Header.Set(SignatureHeader, header)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHandleGivingWebhook_OK(t *testing.T) {
	svc := &stubService{outcome: webhookdomain.OutcomeProcessed}
	body := []byte(`{"id":"evt_1"}`)

	rec := postWebhook(t, svc, body, "t=1,v1=abc")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
	require.Equal(t, body, svc.gotPayload)
	require.Equal(t, "t=1,v1=abc", svc.gotHeader)
}

func TestHandleGivingWebhook_DuplicateStillOK(t *testing.T) {
	svc := &stubService{outcome: webhookdomain.OutcomeDuplicate}

	rec := postWebhook(t, svc, []byte(`{"id":"evt_1"}`), "t=1,v1=abc")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"outcome":"duplicate"`)
}

func TestHandleGivingWebhook_InvalidSignature(t *testing.T) {
	svc := &stubService{outcome: webhookdomain.OutcomeFailed, err: webhookdomain.ErrInvalidSignature}

	rec := postWebhook(t, svc, []byte(`{}`), "t=1,v1=bad")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGivingWebhook_InvalidPayload(t *testing.T) {
	svc := &stubService{outcome: webhookdomain.OutcomeFailed, err: webhookdomain.ErrInvalidPayload}

	rec := postWebhook(t, svc, []byte(`not json`), "t=1,v1=abc")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGivingWebhook_GatewayUnavailable(t *testing.T) {
	svc := &stubService{outcome: webhookdomain.OutcomeFailed, err: webhookdomain.ErrGatewayUnavailable}

	rec := postWebhook(t, svc, []byte(`{"id":"evt_1"}`), "t=1,v1=abc")

	// 5xx asks the gateway to redeliver.
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleGivingWebhook_InternalError(t *testing.T) {
	svc := &stubService{outcome: webhookdomain.OutcomeFailed, err: context.DeadlineExceeded}

	rec := postWebhook(t, svc, []byte(`{"id":"evt_1"}`), "t=1,v1=abc")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := NewEngine(zap.NewNop(), &stubService{outcome: webhookdomain.OutcomeProcessed})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
