package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/geocheck/attendance-server-go/internal/audit"
	apperrors "github.com/geocheck/attendance-server-go/internal/errors"
	"github.com/geocheck/attendance-server-go/internal/middleware"
	"github.com/geocheck/attendance-server-go/internal/model"
	"github.com/geocheck/attendance-server-go/internal/service"
)

type CheckinHandler struct {
	checkinService  *service.CheckinService
	approvalService *service.ApprovalService
	submitLimit     func(http.Handler) http.Handler
}

// NewCheckinHandler wires the check-in routes. submitLimit wraps only the
// submission route; nil disables it.
func NewCheckinHandler(
	checkinService *service.CheckinService,
	approvalService *service.ApprovalService,
	submitLimit func(http.Handler) http.Handler,
) *CheckinHandler {
	return &CheckinHandler{
		checkinService:  checkinService,
		approvalService: approvalService,
		submitLimit:     submitLimit,
	}
}

func (h *CheckinHandler) Routes() chi.Router {
	r := chi.NewRouter()

	var submit http.Handler = http.HandlerFunc(h.Submit)
	if h.submitLimit != nil {
		submit = h.submitLimit(submit)
	}
	r.Method(http.MethodPost, "/", submit)
	r.Get("/mine", h.ListMine)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(model.RolePresenter, model.RoleAdmin))
		r.Get("/pending", h.ListPending)
		r.Post("/pending/{id}/approve", h.Approve)
		r.Post("/pending/{id}/reject", h.Reject)
	})

	return r
}

type submitCheckinRequest struct {
	SessionID string        `json:"sessionId" validate:"required_without=Code"`
	Code      string        `json:"code" validate:"required_without=SessionID"`
	Coords    *model.Coords `json:"coords"`
	Accuracy  *float64      `json:"accuracy"`
}

type submitCheckinResponse struct {
	*model.SubmitCheckinResult
	Warning *apperrors.AppError `json:"warning,omitempty"`
}

// POST /v1/checkins
// The participant is always the authenticated caller.
func (h *CheckinHandler) Submit(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var req submitCheckinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, "failed to decode check-in request")
		return
	}

	result, err := h.checkinService.Submit(r.Context(), model.SubmitCheckinParams{
		SessionID:   req.SessionID,
		Code:        req.Code,
		Participant: model.Participant{ID: identity.ID, Name: identity.Name},
		Coords:      req.Coords,
		Accuracy:    req.Accuracy,
	})
	if err != nil {
		writeError(w, r, err, "failed to submit check-in")
		return
	}

	resp := submitCheckinResponse{SubmitCheckinResult: result}
	if result.LocationUnavailable {
		resp.Warning = apperrors.GeolocationUnavailable()
	}

	status := http.StatusOK
	if result.Outcome == model.SubmitCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// GET /v1/checkins/mine?sessionId=
// The caller's own pending check-ins, so a client can tell a resubmission
// will refresh an existing entry.
func (h *CheckinHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	pending, err := h.checkinService.ListPendingFor(r.Context(), identity.ID, r.URL.Query().Get("sessionId"))
	if err != nil {
		writeError(w, r, err, "failed to list own check-ins")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
	})
}

// GET /v1/checkins/pending?ownerId=
// Presenters only see their own sessions; admins may pick any owner or none.
func (h *CheckinHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	ownerID, err := scopedOwner(identity, r.URL.Query().Get("ownerId"))
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	pending, err := h.checkinService.ListPending(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err, "failed to list pending check-ins")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
	})
}

// POST /v1/checkins/pending/{id}/approve
func (h *CheckinHandler) Approve(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	pendingID := chi.URLParam(r, "id")

	if err := h.authorizeDecision(r, identity, pendingID); err != nil {
		writeError(w, r, err, "failed to look up pending check-in")
		return
	}

	record, err := h.approvalService.Approve(r.Context(), pendingID)
	if err != nil {
		writeError(w, r, err, "failed to approve check-in")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventCheckinApprove,
		ActorID:   identity.ID,
		SessionID: record.SessionID,
		Details: map[string]interface{}{
			"pendingId":     pendingID,
			"participantId": record.ParticipantID,
			"status":        string(record.Status),
		},
	})

	writeJSON(w, http.StatusOK, record)
}

// POST /v1/checkins/pending/{id}/reject
func (h *CheckinHandler) Reject(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	pendingID := chi.URLParam(r, "id")

	if err := h.authorizeDecision(r, identity, pendingID); err != nil {
		writeError(w, r, err, "failed to look up pending check-in")
		return
	}

	if err := h.approvalService.Reject(r.Context(), pendingID); err != nil {
		writeError(w, r, err, "failed to reject check-in")
		return
	}

	sessionID, _ := model.SessionIDFromPendingID(pendingID)
	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventCheckinReject,
		ActorID:   identity.ID,
		SessionID: sessionID,
		Details:   map[string]interface{}{"pendingId": pendingID},
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       pendingID,
		"rejected": true,
	})
}

// authorizeDecision checks the pending check-in exists and belongs to a
// session the caller owns.
func (h *CheckinHandler) authorizeDecision(r *http.Request, identity *model.Identity, pendingID string) error {
	pending, err := h.checkinService.FindPending(r.Context(), pendingID)
	if err != nil {
		return err
	}
	if pending == nil {
		return apperrors.NotFound("Pending check-in")
	}
	if !canManage(identity, pending.OwnerID) {
		return apperrors.Forbidden("Only the session owner can decide on this check-in")
	}
	return nil
}

// scopedOwner resolves the owner filter for identity. Presenters are pinned
// to themselves.
func scopedOwner(identity *model.Identity, requested string) (string, error) {
	if identity.Role == model.RoleAdmin {
		return requested, nil
	}
	if requested != "" && requested != identity.ID {
		return "", apperrors.Forbidden("Presenters can only view their own sessions")
	}
	return identity.ID, nil
}
