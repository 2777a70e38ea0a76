package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/errors"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/logger"
	"github.com/dharmeshparikh-cloud/DVBC-ERP-sub003/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	approvals *service.ApprovalService
	gating    *service.GatingService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(approvals *service.ApprovalService, gating *service.GatingService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		approvals: approvals,
		gating:    gating,
		log:       log,
	}
}

// SubmitRequest handles submit approval request HTTP requests
func (h *HTTPHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in service.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.approvals.Submit(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, req)
}

// GetRequest handles get approval request HTTP requests
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Request ID is required", http.StatusBadRequest)
		return
	}

	req, err := h.approvals.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, req)
}

// ActOnRequest handles approve/reject HTTP requests
func (h *HTTPHandler) ActOnRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in service.ActInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.approvals.Act(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, req)
}

// WithdrawRequest handles withdraw HTTP requests
func (h *HTTPHandler) WithdrawRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		RequestID string `json:"request_id"`
		ActorID   string `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.approvals.Withdraw(r.Context(), body.RequestID, body.ActorID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, req)
}

// ListRequests handles list all approval requests HTTP requests
func (h *HTTPHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		http.Error(w, "Actor ID is required", http.StatusBadRequest)
		return
	}

	requests, err := h.approvals.GetAll(r.Context(), actorID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"total":    len(requests),
	})
}

// ListPending handles pending approvals inbox HTTP requests
func (h *HTTPHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	approverID := r.URL.Query().Get("approver_id")
	if approverID == "" {
		http.Error(w, "Approver ID is required", http.StatusBadRequest)
		return
	}

	requests, err := h.approvals.GetPendingFor(r.Context(), approverID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"total":    len(requests),
	})
}

// ListMine handles list own submissions HTTP requests
func (h *HTTPHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requesterID := r.URL.Query().Get("requester_id")
	if requesterID == "" {
		http.Error(w, "Requester ID is required", http.StatusBadRequest)
		return
	}

	requests, err := h.approvals.GetByRequester(r.Context(), requesterID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"total":    len(requests),
	})
}

// GetAuditTrail handles audit trail HTTP requests
func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Request ID is required", http.StatusBadRequest)
		return
	}

	entries, err := h.approvals.AuditTrail(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// CheckGate handles gating check HTTP requests
func (h *HTTPHandler) CheckGate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	referenceID := r.URL.Query().Get("reference_id")
	step := r.URL.Query().Get("step")
	if referenceID == "" || step == "" {
		http.Error(w, "Reference ID and step are required", http.StatusBadRequest)
		return
	}

	gate, err := h.gating.IsBlocked(r.Context(), referenceID, step)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, gate)
}

// ── Response helpers ──────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps service error codes to HTTP statuses and renders a JSON
// error envelope.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		h.log.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    errors.Code(err),
			"message": err.Error(),
		},
	})
}
