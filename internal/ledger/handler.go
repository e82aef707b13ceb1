package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/medirep/medirep/internal/platform/httpx"
	"github.com/medirep/medirep/internal/shared"
)

// Handler manages ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/contacts/{contactID}/statement", h.getStatement)
	r.Get("/contacts/{contactID}/balance", h.getBalance)
	r.Post("/payments", h.createPayment)
	r.Post("/adjustments", h.createAdjustment)
}

type paymentRequest struct {
	ContactID   int64           `json:"contact_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	EntryDate   string          `json:"entry_date"`
	Method      string          `json:"method"`
	Description string          `json:"description"`
}

type adjustmentRequest struct {
	ContactID int64           `json:"contact_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	EntryDate string          `json:"entry_date"`
	Reason    string          `json:"reason" validate:"required"`
	IsDebit   bool            `json:"is_debit"`
}

func (h *Handler) getStatement(w http.ResponseWriter, r *http.Request) {
	contactID, ok := h.contactID(w, r)
	if !ok {
		return
	}
	statement, err := h.service.Statement(r.Context(), contactID)
	if err != nil {
		h.respondError(w, "ledger statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": statement})
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	contactID, ok := h.contactID(w, r)
	if !ok {
		return
	}
	balance, err := h.service.ContactBalance(r.Context(), contactID)
	if err != nil {
		h.respondError(w, "contact balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"contact_id": contactID, "balance": balance})
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entryDate, err := parseEntryDate(req.EntryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entry_date must be YYYY-MM-DD")
		return
	}
	entry, err := h.service.RecordPayment(r.Context(), PaymentInput{
		ContactID:   req.ContactID,
		Amount:      req.Amount,
		EntryDate:   entryDate,
		Method:      req.Method,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, "record payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entryDate, err := parseEntryDate(req.EntryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entry_date must be YYYY-MM-DD")
		return
	}
	entry, err := h.service.RecordAdjustment(r.Context(), AdjustmentInput{
		ContactID: req.ContactID,
		Amount:    req.Amount,
		EntryDate: entryDate,
		Reason:    req.Reason,
		IsDebit:   req.IsDebit,
	})
	if err != nil {
		h.respondError(w, "record adjustment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
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
	case errors.Is(err, ErrContactRequired), errors.Is(err, ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateInvoice):
		httpx.RespondError(w, httpx.ErrDuplicate)
	case errors.Is(err, shared.ErrFetchFailed):
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		httpx.RespondError(w, err)
	}
}

func parseEntryDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}
