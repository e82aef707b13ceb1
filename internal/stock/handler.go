package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/medirep/medirep/internal/platform/httpx"
	"github.com/medirep/medirep/internal/shared"
)

// Handler manages stock endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{productID}/summary", h.getSummary)
	r.Get("/products/{productID}/transactions", h.listTransactions)
	r.Post("/products/{productID}/purchase", h.addPurchase)
	r.Put("/products/{productID}/level", h.setLevel)
	r.Post("/products/{productID}/recalculate", h.recalculate)
}

type addPurchaseRequest struct {
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
	Note     string `json:"note"`
}

type setLevelRequest struct {
	Quantity int64  `json:"quantity" validate:"gte=0"`
	Note     string `json:"note"`
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	asOf, err := asOfDate(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}
	summary, err := h.service.SummaryAsOf(r.Context(), productID, asOf)
	if err != nil {
		h.respondError(w, r, "stock summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	asOf, err := asOfDate(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
		return
	}
	txs, err := h.service.Transactions(r.Context(), productID, asOf)
	if err != nil {
		h.respondError(w, r, "stock transactions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) addPurchase(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req addPurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tx, err := h.service.AddPurchase(r.Context(), AddPurchaseInput{
		ProductID: productID,
		Quantity:  req.Quantity,
		Note:      req.Note,
	})
	if err != nil {
		h.respondError(w, r, "add purchase", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) setLevel(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req setLevelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetLevel(r.Context(), SetLevelInput{
		ProductID: productID,
		Quantity:  req.Quantity,
		Note:      req.Note,
	}); err != nil {
		h.respondError(w, r, "set stock level", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	productID, ok := h.productID(w, r)
	if !ok {
		return
	}
	closing, err := h.service.RecalculateProduct(r.Context(), productID)
	if err != nil {
		h.respondError(w, r, "recalculate product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"closing_stock": closing})
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op, slog.Any("error", err))
	switch {
	case errors.Is(err, ErrProductNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrProductRequired), errors.Is(err, ErrUnknownType):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrFetchFailed):
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		httpx.RespondError(w, err)
	}
}

func asOfDate(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", raw)
}
