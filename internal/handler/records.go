package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/geocheck/attendance-server-go/internal/errors"
	"github.com/geocheck/attendance-server-go/internal/middleware"
	"github.com/geocheck/attendance-server-go/internal/model"
	"github.com/geocheck/attendance-server-go/internal/service"
)

type RecordsHandler struct {
	approvalService *service.ApprovalService
}

func NewRecordsHandler(approvalService *service.ApprovalService) *RecordsHandler {
	return &RecordsHandler{approvalService: approvalService}
}

func (h *RecordsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListRecords)

	return r
}

// GET /v1/records?sessionId=&ownerId=&participantId=&date=YYYY-MM-DD&status=&limit=&offset=
// Export feed for presenters and admins. Participants get their own
// approved history.
func (h *RecordsHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	q := r.URL.Query()

	filter := model.RecordFilter{
		SessionID:     q.Get("sessionId"),
		OwnerID:       q.Get("ownerId"),
		ParticipantID: q.Get("participantId"),
	}

	var err error
	if identity.Role.CanPresent() {
		filter.OwnerID, err = scopedOwner(identity, filter.OwnerID)
	} else {
		filter.ParticipantID, err = scopedParticipant(identity, filter.ParticipantID)
	}
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	if status := q.Get("status"); status != "" {
		st, ok := model.ParseAttendanceStatus(status)
		if !ok {
			writeError(w, r, apperrors.InvalidInput("status", "must be Present, Late or Absent"), "")
			return
		}
		filter.Status = st
	}

	date := q.Get("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			writeError(w, r, apperrors.InvalidInput("date", "must be YYYY-MM-DD"), "")
			return
		}
		filter.Date = date
	}

	records, err := h.approvalService.ListRecords(r.Context(), filter)
	if err != nil {
		writeError(w, r, err, "failed to list records")
		return
	}

	page := ParsePagination(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"records": paginate(records, page),
		"total":   len(records),
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

// scopedParticipant pins participants to their own records.
func scopedParticipant(identity *model.Identity, requested string) (string, error) {
	if requested != "" && requested != identity.ID {
		return "", apperrors.Forbidden("Participants can only view their own records")
	}
	return identity.ID, nil
}
