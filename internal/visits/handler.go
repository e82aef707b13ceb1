package visits

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/medirep/medirep/internal/ledger"
	"github.com/medirep/medirep/internal/platform/httpx"
	"github.com/medirep/medirep/internal/shared"
	"github.com/medirep/medirep/internal/stock"
)

// Handler manages visit endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers visit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{visitID}", h.get)
	r.Put("/{visitID}", h.update)
	r.Delete("/{visitID}", h.delete)
}

type lineRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type visitRequest struct {
	ContactID int64         `json:"contact_id" validate:"required,gt=0"`
	VisitDate string        `json:"visit_date"`
	Notes     string        `json:"notes"`
	Lines     []lineRequest `json:"lines" validate:"dive"`
}

type visitUpdateRequest struct {
	VisitDate string        `json:"visit_date"`
	Notes     string        `json:"notes"`
	Lines     []lineRequest `json:"lines" validate:"dive"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	contactID, _ := strconv.ParseInt(q.Get("contact_id"), 10, 64)
	from, err := parseDate(q.Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
		return
	}
	items, pagination, err := h.service.List(r.Context(), ListFilter{
		ContactID: contactID,
		From:      from,
		To:        to,
		Page:      page,
		PerPage:   perPage,
	})
	if err != nil {
		h.respondError(w, "list visits", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"visits": items, "pagination": pagination})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req visitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	visitDate, err := parseDate(req.VisitDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "visit_date must be YYYY-MM-DD")
		return
	}
	visit, err := h.service.Create(r.Context(), CreateInput{
		ContactID: req.ContactID,
		VisitDate: visitDate,
		Notes:     req.Notes,
		Lines:     lineInputs(req.Lines),
		OpKey:     r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, "create visit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, visit)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.visitID(w, r)
	if !ok {
		return
	}
	visit, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get visit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, visit)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.visitID(w, r)
	if !ok {
		return
	}
	var req visitUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	visitDate, err := parseDate(req.VisitDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "visit_date must be YYYY-MM-DD")
		return
	}
	visit, err := h.service.Update(r.Context(), id, UpdateInput{
		VisitDate: visitDate,
		Notes:     req.Notes,
		Lines:     lineInputs(req.Lines),
		OpKey:     r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, "update visit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, visit)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.visitID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, r.Header.Get("Idempotency-Key"), 0); err != nil {
		h.respondError(w, "delete visit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) visitID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "visitID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid visit id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	switch {
	case errors.Is(err, ErrVisitNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrContactRequired), errors.Is(err, ErrInvalidLine),
		errors.Is(err, stock.ErrInvalidQuantity), errors.Is(err, stock.ErrProductRequired),
		errors.Is(err, ledger.ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.RespondError(w, httpx.ErrDuplicate)
	case errors.Is(err, shared.ErrFetchFailed):
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		httpx.RespondError(w, err)
	}
}

func lineInputs(reqs []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(reqs))
	for _, l := range reqs {
		out = append(out, LineInput{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return out
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}
