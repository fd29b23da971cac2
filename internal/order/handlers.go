package order

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/munchies-pricing/internal/common"
	"github.com/noah-isme/munchies-pricing/internal/pricing"
)

// SnapshotReader loads a persisted order together with its frozen calculation.
type SnapshotReader interface {
	Snapshot(ctx context.Context, orderID, userID string) (Record, pricing.OrderSnapshot, error)
}

type Handler struct {
	Orders SnapshotReader
	Logger zerolog.Logger
}

// Get handles GET /api/v1/orders/{orderId}. The amounts come from the stored
// snapshot and are never recomputed.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	rec, snap, err := h.Orders.Snapshot(r.Context(), chi.URLParam(r, "orderId"), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		h.Logger.Error().Err(err).Msg("order_load_failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"id":            rec.ID,
		"order_number":  rec.Number,
		"status":        rec.Status,
		"total_amount":  pricing.FormatMoney(rec.TotalAmount),
		"created_at":    rec.CreatedAt,
		"delivery_area": snap.DeliveryArea,
		"promo_code":    snap.PromoCode,
		"fingerprint":   snap.Fingerprint,
		"verified":      snap.Verify(),
		"breakdown":     snap.Breakdown.View(),
	})
}
