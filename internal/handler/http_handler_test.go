package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/client"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/logger"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/policy"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/repository/memory"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/service"
)

func newHandlerWith(dir *client.MemoryDirectory) *HTTPHandler {
	store := memory.New()
	table := policy.Default(48 * time.Hour)
	log := logger.Nop()
	publisher := client.NewNotificationPublisher(nil, log.Logger)
	approvals := service.NewApprovalService(store, policy.NewBuilder(table, dir), table, dir, publisher, log)
	gating := service.NewGatingService(store, log)
	return NewHTTPHandler(approvals, gating, log)
}

func newTestHandler() *HTTPHandler {
	dir := client.NewMemoryDirectory()
	dir.AddUser("emp-1")
	dir.AddUser("mgr-1", "manager")
	dir.AddUser("alice-admin", "admin")
	dir.AddUser("hema-hr", "hr")
	dir.AddUser("farah-finance", "finance")
	dir.AddUser("devi-director", "director")
	dir.SetManager("emp-1", "mgr-1")
	return newHandlerWith(dir)
}

func doRequest(t *testing.T, fn http.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	rec := httptest.NewRecorder()
	fn(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func decodeRequest(t *testing.T, rec *httptest.ResponseRecorder) *repository.ApprovalRequest {
	t.Helper()
	var req repository.ApprovalRequest
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&req))
	return &req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Error.Code
}

func submitAgreement(t *testing.T, h *HTTPHandler, referenceID string) *repository.ApprovalRequest {
	t.Helper()
	rec := doRequest(t, h.SubmitRequest, http.MethodPost, "/api/v1/approvals", service.SubmitInput{
		ApprovalType:   repository.TypeAgreement,
		ReferenceID:    referenceID,
		ReferenceTitle: "Acme master agreement",
		RequesterID:    "emp-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeRequest(t, rec)
}

// ── Submission ────────────────────────────────────────────────────────────────

func TestSubmitEndpoint(t *testing.T) {
	h := newTestHandler()

	req := submitAgreement(t, h, "agr-100")

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, repository.StatusPending, req.OverallStatus)
	assert.Equal(t, 1, req.CurrentLevel)
	require.Len(t, req.Levels, 2)
	assert.Equal(t, "mgr-1", req.Levels[0].ApproverID)
}

func TestSubmitInvalidBody(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	h.SubmitRequest(rec, httptest.NewRequest(http.MethodPost, "/api/v1/approvals", bytes.NewReader([]byte("{"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitMethodNotAllowed(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h.SubmitRequest, http.MethodGet, "/api/v1/approvals", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubmitConflict(t *testing.T) {
	h := newTestHandler()
	submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.SubmitRequest, http.MethodPost, "/api/v1/approvals", service.SubmitInput{
		ApprovalType: repository.TypeAgreement,
		ReferenceID:  "agr-100",
		RequesterID:  "emp-1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.ErrCodeConflict, errorCode(t, rec))
}

func TestSubmitUnresolvedApproverStatus(t *testing.T) {
	dir := client.NewMemoryDirectory()
	dir.AddUser("emp-1")
	dir.SetManager("emp-1", "mgr-1")
	h := newHandlerWith(dir)

	rec := doRequest(t, h.SubmitRequest, http.MethodPost, "/api/v1/approvals", service.SubmitInput{
		ApprovalType: repository.TypeExpense,
		ReferenceID:  "exp-1",
		RequesterID:  "emp-1",
		AmountCents:  50_000,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.ErrCodeUnresolvedApprover, errorCode(t, rec))
}

// ── Get / lists ───────────────────────────────────────────────────────────────

func TestGetEndpoint(t *testing.T) {
	h := newTestHandler()
	req := submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.GetRequest, http.MethodGet, "/api/v1/approvals/get?id="+req.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, req.ID, decodeRequest(t, rec).ID)
}

func TestGetMissingParam(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h.GetRequest, http.MethodGet, "/api/v1/approvals/get", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNotFound(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h.GetRequest, http.MethodGet, "/api/v1/approvals/get?id=missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.ErrCodeNotFound, errorCode(t, rec))
}

func TestPendingEndpoint(t *testing.T) {
	h := newTestHandler()
	req := submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.ListPending, http.MethodGet, "/api/v1/approvals/pending?approver_id=mgr-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Requests []*repository.ApprovalRequest `json:"requests"`
		Total    int                           `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Requests, 1)
	assert.Equal(t, req.ID, body.Requests[0].ID)

	rec = doRequest(t, h.ListPending, http.MethodGet, "/api/v1/approvals/pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMineEndpoint(t *testing.T) {
	h := newTestHandler()
	submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.ListMine, http.MethodGet, "/api/v1/approvals/mine?requester_id=emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1, body.Total)
}

func TestListAllRequiresAdmin(t *testing.T) {
	h := newTestHandler()
	submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.ListRequests, http.MethodGet, "/api/v1/approvals?actor_id=emp-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h.ListRequests, http.MethodGet, "/api/v1/approvals?actor_id=alice-admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ── Actions ───────────────────────────────────────────────────────────────────

func TestActEndpointApprove(t *testing.T) {
	h := newTestHandler()
	req := submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.ActOnRequest, http.MethodPost, "/api/v1/approvals/act", service.ActInput{
		RequestID: req.ID, Level: 1, ActorID: "mgr-1", Decision: service.DecisionApprove,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeRequest(t, rec)
	assert.Equal(t, 2, got.CurrentLevel)
	assert.Equal(t, repository.LevelApproved, got.Levels[0].Status)
}

func TestActMissingReason(t *testing.T) {
	h := newTestHandler()
	req := submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.ActOnRequest, http.MethodPost, "/api/v1/approvals/act", service.ActInput{
		RequestID: req.ID, Level: 1, ActorID: "mgr-1", Decision: service.DecisionReject,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.ErrCodeMissingReason, errorCode(t, rec))
}

func TestActUnauthorized(t *testing.T) {
	h := newTestHandler()
	req := submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.ActOnRequest, http.MethodPost, "/api/v1/approvals/act", service.ActInput{
		RequestID: req.ID, Level: 1, ActorID: "emp-1", Decision: service.DecisionApprove,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, errors.ErrCodeUnauthorized, errorCode(t, rec))
}

func TestActRepeatConflict(t *testing.T) {
	h := newTestHandler()
	req := submitAgreement(t, h, "agr-100")

	act := service.ActInput{RequestID: req.ID, Level: 1, ActorID: "mgr-1", Decision: service.DecisionApprove}
	rec := doRequest(t, h.ActOnRequest, http.MethodPost, "/api/v1/approvals/act", act)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h.ActOnRequest, http.MethodPost, "/api/v1/approvals/act", act)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.ErrCodeAlreadyActed, errorCode(t, rec))
}

// ── Withdraw ──────────────────────────────────────────────────────────────────

func TestWithdrawEndpoint(t *testing.T) {
	h := newTestHandler()
	req := submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.WithdrawRequest, http.MethodPost, "/api/v1/approvals/withdraw", map[string]string{
		"request_id": req.ID,
		"actor_id":   "emp-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repository.StatusWithdrawn, decodeRequest(t, rec).OverallStatus)
}

func TestWithdrawByNonRequester(t *testing.T) {
	h := newTestHandler()
	req := submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.WithdrawRequest, http.MethodPost, "/api/v1/approvals/withdraw", map[string]string{
		"request_id": req.ID,
		"actor_id":   "mgr-1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// ── Audit trail ───────────────────────────────────────────────────────────────

func TestAuditEndpoint(t *testing.T) {
	h := newTestHandler()
	req := submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.ActOnRequest, http.MethodPost, "/api/v1/approvals/act", service.ActInput{
		RequestID: req.ID, Level: 1, ActorID: "mgr-1", Decision: service.DecisionApprove,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h.GetAuditTrail, http.MethodGet, "/api/v1/approvals/audit?id="+req.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []*repository.AuditEntry `json:"entries"`
		Total   int                      `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 2, body.Total)
	assert.Equal(t, "submitted", body.Entries[0].Action)
	assert.Equal(t, "approved", body.Entries[1].Action)
}

// ── Gating ────────────────────────────────────────────────────────────────────

func TestGateEndpoint(t *testing.T) {
	h := newTestHandler()
	submitAgreement(t, h, "agr-100")

	rec := doRequest(t, h.CheckGate, http.MethodGet, "/api/v1/gates/check?reference_id=agr-100&step=send_to_client", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var gate service.Gate
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&gate))
	assert.True(t, gate.Blocked)
	assert.Contains(t, gate.Reason, "pending approval")
}

func TestGateEndpointNoRequest(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h.CheckGate, http.MethodGet, "/api/v1/gates/check?reference_id=unknown&step=send_to_client", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var gate service.Gate
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&gate))
	assert.False(t, gate.Blocked)
}

func TestGateEndpointMissingParams(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h.CheckGate, http.MethodGet, "/api/v1/gates/check?reference_id=agr-100", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
