package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/oficios-registry/internal/application"
	"github.com/example/oficios-registry/internal/logging"
	"github.com/example/oficios-registry/internal/slot"
)

type slotService interface {
	ListSlots(ctx context.Context, params application.ListSlotsParams) ([]slot.Slot, error)
	UpdateSlot(ctx context.Context, params application.UpdateSlotParams) (slot.Slot, error)
	Export(ctx context.Context, params application.ExportParams) (application.Export, error)
}

type SlotHandler struct {
	service   slotService
	responder responder
	logger    *slog.Logger
}

func NewSlotHandler(service slotService, logger *slog.Logger) *SlotHandler {
	base := logging.Or(logger)
	return &SlotHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SlotHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return logging.Scoped(ctx, h.logger, "handler", "SlotHandler", operation, attrs...)
}

// List handles GET /rest/{kind}/years/{id}/slots?from=&to=. Both bounds are
// zero based and inclusive; the service caps the page length.
func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	kind, ok := kindFromRequest(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusNotFound, errUnknownKind)
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		h.log(r.Context(), "List", "error_kind", "bad_request").WarnContext(r.Context(), "invalid range", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRange)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	yearID := r.PathValue("id")

	slots, err := h.service.ListSlots(r.Context(), application.ListSlotsParams{
		Principal: principal,
		Kind:      kind,
		YearID:    yearID,
		From:      from,
		To:        to,
	})
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID, "kind", kind.Name, "year_id", yearID).
			ErrorContext(r.Context(), "slot listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if slots == nil {
		slots = []slot.Slot{}
	}

	if len(slots) > 0 {
		w.Header().Set("Content-Range", fmt.Sprintf("%d-%d/*", from, from+len(slots)-1))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotsResponse{Slots: slots})
}

// Update handles PATCH /rest/{kind}/slots/{id}.
func (h *SlotHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	kind, ok := kindFromRequest(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusNotFound, errUnknownKind)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	slotID := r.PathValue("id")

	var req slotPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Update", "principal_id", principal.UserID, "slot_id", slotID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode slot patch", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	status, err := slot.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: codeValidation,
			Message:   "Dados inválidos.",
			Errors:    map[string]string{"status": "Status inválido"},
		})
		return
	}

	logger := h.log(r.Context(), "Update", "principal_id", principal.UserID, "kind", kind.Name, "slot_id", slotID, "status", string(status))

	updated, err := h.service.UpdateSlot(r.Context(), application.UpdateSlotParams{
		Principal: principal,
		Kind:      kind,
		SlotID:    slotID,
		Patch: slot.Patch{
			Status:    status,
			Descricao: req.Descricao,
			MarkedAt:  req.MarkedAt,
			Usuario:   req.Usuario,
		},
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "slot update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("numero", updated.Numero).InfoContext(r.Context(), "slot updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, slotResponse{Slot: updated})
}

// Export handles GET /rest/{kind}/years/{id}/export.
func (h *SlotHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	kind, ok := kindFromRequest(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusNotFound, errUnknownKind)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	yearID := r.PathValue("id")
	logger := h.log(r.Context(), "Export", "principal_id", principal.UserID, "kind", kind.Name, "year_id", yearID)

	export, err := h.service.Export(r.Context(), application.ExportParams{Principal: principal, Kind: kind, YearID: yearID})
	if err != nil {
		logger.ErrorContext(r.Context(), "export failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(export.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(export.Data); err != nil {
		logger.ErrorContext(r.Context(), "failed to write export", "error", err)
	}
}

type slotPatchRequest struct {
	Status    string     `json:"status"`
	Descricao *string    `json:"descricao"`
	MarkedAt  *time.Time `json:"marcado_em"`
	Usuario   *string    `json:"usuario"`
}

type slotResponse struct {
	Slot slot.Slot `json:"slot"`
}

type slotsResponse struct {
	Slots []slot.Slot `json:"slots"`
}

func parseRange(r *http.Request) (int, int, error) {
	query := r.URL.Query()
	from := 0
	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("from: %w", err)
		}
		from = v
	}
	to := from + slot.PageSize - 1
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("to: %w", err)
		}
		to = v
	}
	if from < 0 || to < from {
		return 0, 0, fmt.Errorf("range %d-%d", from, to)
	}
	return from, to, nil
}
