package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/munchies-pricing/internal/common"
	"github.com/noah-isme/munchies-pricing/internal/lock"
	"github.com/noah-isme/munchies-pricing/internal/order"
	"github.com/noah-isme/munchies-pricing/internal/pricing"
	"github.com/noah-isme/munchies-pricing/internal/promo"
)

type Handler struct {
	Svc       *Service
	Validator *validator.Validate
	Logger    zerolog.Logger
}

type orderView struct {
	ID           string                `json:"id"`
	OrderNumber  string                `json:"order_number"`
	Status       string                `json:"status"`
	TotalAmount  string                `json:"total_amount"`
	CreatedAt    time.Time             `json:"created_at"`
	DeliveryArea string                `json:"delivery_area"`
	PromoCode    string                `json:"promo_code,omitempty"`
	Fingerprint  string                `json:"fingerprint"`
	Breakdown    pricing.BreakdownView `json:"breakdown"`
}

// CalculateCharges handles POST /api/v1/orders/charges/calculate.
func (h *Handler) CalculateCharges(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload ChargeRequestPayload
	if !h.decode(w, r, &payload) {
		return
	}
	req, err := payload.ToRequest()
	if err != nil {
		h.writeError(w, err)
		return
	}
	b, err := h.Svc.Calculate(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, b.View())
}

// PlaceOrder handles POST /api/v1/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload PlaceOrderPayload
	if !h.decode(w, r, &payload) {
		return
	}
	req, err := payload.ToRequest()
	if err != nil {
		h.writeError(w, err)
		return
	}
	out, err := h.Svc.PlaceOrder(r.Context(), Input{
		UserID:        userID,
		PaymentMethod: payload.PaymentMethod,
		Charge:        req,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	data := map[string]any{
		"order": orderView{
			ID:           out.Order.ID,
			OrderNumber:  out.Order.Number,
			Status:       out.Order.Status,
			TotalAmount:  pricing.FormatMoney(out.Order.TotalAmount),
			CreatedAt:    out.Order.CreatedAt,
			DeliveryArea: out.Snapshot.DeliveryArea,
			PromoCode:    out.Snapshot.PromoCode,
			Fingerprint:  out.Snapshot.Fingerprint,
			Breakdown:    out.Snapshot.Breakdown.View(),
		},
	}
	if out.PaymentURL != "" {
		data["payment_url"] = out.PaymentURL
	}
	common.Data(w, http.StatusCreated, data)
}

// UpdateStatus handles POST /api/v1/orders/{orderId}/status. Payment and
// delivery systems call it behind the gateway to report paid and delivered orders.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var payload StatusPayload
	if !h.decode(w, r, &payload) {
		return
	}
	t, err := h.Svc.UpdateStatus(r.Context(), chi.URLParam(r, "orderId"), payload.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"id":           t.ID,
		"order_number": t.Number,
		"status":       t.Status,
		"total_amount": pricing.FormatMoney(t.TotalAmount),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	v := h.Validator
	if v == nil {
		v = NewValidator()
	}
	if err := v.Struct(dst); err != nil {
		h.writeError(w, badRequest(validationDetails(err)))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		common.JSONError(w, appErr.Status(), code, appErr.Message, appErr.Details)
		return
	}

	var verr *pricing.ValidationError
	var aerr *pricing.UnknownAreaError
	var lerr *pricing.LookupFailedError
	switch {
	case errors.As(err, &verr):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", verr.Error(), map[string]string{verr.Field: verr.Reason})
	case errors.As(err, &aerr):
		common.JSONError(w, http.StatusUnprocessableEntity, "UNKNOWN_DELIVERY_AREA", aerr.Error(), map[string]string{"delivery_area": aerr.Area})
	case errors.As(err, &lerr):
		h.Logger.Error().Err(err).Str("collaborator", lerr.Collaborator).Msg("pricing_lookup_failed")
		common.JSONError(w, http.StatusServiceUnavailable, "PRICING_UNAVAILABLE", "pricing data is temporarily unavailable, please retry", nil)
	case errors.Is(err, promo.ErrUsageLimitReached):
		common.JSONError(w, http.StatusConflict, "PROMO_EXHAUSTED", promo.Message(promo.ErrUsageLimitReached)+", please recalculate", nil)
	case errors.Is(err, promo.ErrPerUserLimitReached):
		common.JSONError(w, http.StatusConflict, "PROMO_PER_USER_LIMIT", promo.Message(promo.ErrPerUserLimitReached)+", please recalculate", nil)
	case errors.Is(err, order.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.Is(err, order.ErrInvalidTransition):
		common.JSONError(w, http.StatusConflict, "ORDER_STATUS_CONFLICT", "order cannot move to the requested status", nil)
	case errors.Is(err, lock.ErrNotAcquired):
		common.JSONError(w, http.StatusServiceUnavailable, "BUSY", "checkout is busy, please retry", nil)
	default:
		h.Logger.Error().Err(err).Msg("checkout_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to process checkout", nil)
	}
}
