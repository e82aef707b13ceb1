package contacts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/medirep/medirep/internal/platform/httpx"
	"github.com/medirep/medirep/internal/shared"
)

// Handler manages contact endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers contact routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{contactID}", h.get)
	r.Put("/{contactID}", h.update)
	r.Delete("/{contactID}", h.delete)
}

type contactRequest struct {
	Name    string `json:"name" validate:"required"`
	Type    string `json:"contact_type" validate:"required,oneof=doctor chemist"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	filter := ListFilter{
		Type:    ContactType(q.Get("type")),
		Search:  q.Get("search"),
		Page:    page,
		PerPage: perPage,
	}
	items, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, "list contacts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"contacts": items, "pagination": pagination})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	contact, err := h.service.Create(r.Context(), CreateInput{
		Name:    req.Name,
		Type:    ContactType(req.Type),
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		h.respondError(w, "create contact", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, contact)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contactID(w, r)
	if !ok {
		return
	}
	contact, err := h.service.GetWithBalance(r.Context(), id)
	if err != nil {
		h.respondError(w, "get contact", err)
		return
	}
	httpx.JSON(w, http.StatusOK, contact)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contactID(w, r)
	if !ok {
		return
	}
	var req contactRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	contact, err := h.service.Update(r.Context(), id, UpdateInput{
		Name:    req.Name,
		Type:    ContactType(req.Type),
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		h.respondError(w, "update contact", err)
		return
	}
	httpx.JSON(w, http.StatusOK, contact)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.contactID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, 0); err != nil {
		h.respondError(w, "delete contact", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) contactID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "contactID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid contact id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	switch {
	case errors.Is(err, ErrContactNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrUnknownType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrFetchFailed):
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		httpx.RespondError(w, err)
	}
}
