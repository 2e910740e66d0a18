package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/oficios-registry/internal/application"
	"github.com/example/oficios-registry/internal/logging"
	"github.com/example/oficios-registry/internal/slot"
)

type yearService interface {
	ListYears(ctx context.Context, principal application.Principal, kind slot.Kind) ([]slot.Year, error)
	ProvisionYear(ctx context.Context, params application.ProvisionYearParams) (slot.Year, error)
}

type YearHandler struct {
	service   yearService
	responder responder
	logger    *slog.Logger
}

func NewYearHandler(service yearService, logger *slog.Logger) *YearHandler {
	base := logging.Or(logger)
	return &YearHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *YearHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return logging.Scoped(ctx, h.logger, "handler", "YearHandler", operation, attrs...)
}

// List handles GET /rest/{kind}/years.
func (h *YearHandler) List(w http.ResponseWriter, r *http.Request) {
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
	years, err := h.service.ListYears(r.Context(), principal, kind)
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID, "kind", kind.Name).
			ErrorContext(r.Context(), "year listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if years == nil {
		years = []slot.Year{}
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, yearsResponse{Years: years})
}

// Create handles POST /rest/{kind}/years.
func (h *YearHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req yearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode year request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	quantidade := slot.DefaultQuantity
	if req.Quantidade != nil {
		quantidade = *req.Quantidade
	}

	logger := h.log(r.Context(), "Create", "principal_id", principal.UserID, "kind", kind.Name, "ano", req.Ano)

	year, err := h.service.ProvisionYear(r.Context(), application.ProvisionYearParams{
		Principal:  principal,
		Kind:       kind,
		Ano:        req.Ano,
		Quantidade: quantidade,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "year creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("year_id", year.ID).InfoContext(r.Context(), "year created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, yearResponse{Year: year})
}

type yearRequest struct {
	Ano        int  `json:"ano"`
	Quantidade *int `json:"quantidade,omitempty"`
}

type yearResponse struct {
	Year slot.Year `json:"year"`
}

type yearsResponse struct {
	Years []slot.Year `json:"years"`
}

func kindFromRequest(r *http.Request) (slot.Kind, bool) {
	return slot.KindByName(r.PathValue("kind"))
}
