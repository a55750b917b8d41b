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

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(middleware.RequireRole(model.RolePresenter, model.RoleAdmin)).Post("/", h.CreateSession)
	r.Get("/", h.ListSessions)
	r.Get("/{id}", h.GetSession)
	r.With(middleware.RequireRole(model.RolePresenter, model.RoleAdmin)).Post("/{id}/end", h.EndSession)

	return r
}

type createSessionRequest struct {
	Subject          string          `json:"subject" validate:"required"`
	Geofence         *model.Geofence `json:"geofence" validate:"required"`
	StartLocal       string          `json:"startLocal" validate:"required"`
	EndLocal         string          `json:"endLocal" validate:"required"`
	Timezone         string          `json:"timezone" validate:"omitempty,timezone"`
	LateAfterMinutes *int            `json:"lateAfterMinutes" validate:"omitempty,min=0,max=10080"`
	MaxApprovals     *int            `json:"maxApprovals"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, "failed to decode session request")
		return
	}

	session, err := h.sessionService.Create(r.Context(), model.CreateSessionParams{
		Subject:          req.Subject,
		Geofence:         *req.Geofence,
		StartLocal:       req.StartLocal,
		EndLocal:         req.EndLocal,
		Timezone:         req.Timezone,
		LateAfterMinutes: req.LateAfterMinutes,
		MaxApprovals:     req.MaxApprovals,
		Owner:            *identity,
	})
	if err != nil {
		writeError(w, r, err, "failed to create session")
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventSessionCreate,
		ActorID:   identity.ID,
		SessionID: session.ID,
		Details:   map[string]interface{}{"code": session.Code},
	})

	writeJSON(w, http.StatusCreated, session)
}

// GET /v1/sessions?ownerId=&code=&active=1
// Participants may only look up by code or list active sessions.
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	q := r.URL.Query()
	ownerID := q.Get("ownerId")
	active := q.Get("active") == "1" || q.Get("active") == "true"

	if !identity.Role.CanPresent() && q.Get("code") == "" && !active {
		writeError(w, r, apperrors.Forbidden("Participants can only look up sessions by code or list active ones"), "")
		return
	}

	var (
		sessions []model.Session
		err      error
	)
	switch {
	case q.Get("code") != "":
		var s *model.Session
		s, err = h.sessionService.GetByCode(ctx, q.Get("code"))
		if s != nil {
			sessions = []model.Session{*s}
		}
	case active:
		sessions, err = h.sessionService.ListActive(ctx, ownerID)
	case ownerID != "":
		sessions, err = h.sessionService.ListByOwner(ctx, ownerID)
	default:
		sessions, err = h.sessionService.List(ctx)
	}
	if err != nil {
		writeError(w, r, err, "failed to list sessions")
		return
	}

	summaries, err := h.sessionService.Summarize(ctx, sessions)
	if err != nil {
		writeError(w, r, err, "failed to count approvals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": summaries,
	})
}

// GET /v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	session, err := h.sessionService.Get(ctx, id)
	if err != nil {
		writeError(w, r, err, "failed to get session")
		return
	}
	if session == nil {
		writeError(w, r, apperrors.NotFound("Session"), "")
		return
	}

	summaries, err := h.sessionService.Summarize(ctx, []model.Session{*session})
	if err != nil {
		writeError(w, r, err, "failed to count approvals")
		return
	}

	writeJSON(w, http.StatusOK, summaries[0])
}

// POST /v1/sessions/{id}/end
// Ending an unknown or already ended session succeeds without change.
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)
	id := chi.URLParam(r, "id")

	existing, err := h.sessionService.Get(ctx, id)
	if err != nil {
		writeError(w, r, err, "failed to get session")
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusOK, map[string]any{"session": nil, "ended": false})
		return
	}
	if !canManage(identity, existing.OwnerID) {
		writeError(w, r, apperrors.Forbidden("Only the session owner can end it"), "")
		return
	}

	session, err := h.sessionService.End(ctx, id)
	if err != nil {
		writeError(w, r, err, "failed to end session")
		return
	}

	if existing.Active {
		audit.LogFromRequest(r, audit.Event{
			Type:      audit.EventSessionEnd,
			ActorID:   identity.ID,
			SessionID: id,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"session": session, "ended": existing.Active})
}

// canManage reports whether identity may act on resources owned by ownerID.
func canManage(identity *model.Identity, ownerID string) bool {
	return identity != nil && (identity.Role == model.RoleAdmin || identity.ID == ownerID)
}
