package pricing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// OrderSnapshot freezes one calculation together with the lines it priced.
// Payment and persistence read the amounts from here and never recompute them.
type OrderSnapshot struct {
	Items        []LineItem      `json:"items"`
	DeliveryArea string          `json:"delivery_area"`
	PromoCode    string          `json:"promo_code,omitempty"`
	Breakdown    ChargeBreakdown `json:"breakdown"`
	Fingerprint  string          `json:"fingerprint"`
}

type fingerprintBody struct {
	Items        []LineItem      `json:"items"`
	DeliveryArea string          `json:"delivery_area"`
	PromoCode    string          `json:"promo_code"`
	Breakdown    ChargeBreakdown `json:"breakdown"`
}

// CreateOrderSnapshot pairs req with the breakdown computed for it. The
// breakdown must describe the same lines in the same order.
func CreateOrderSnapshot(req ChargeRequest, b ChargeBreakdown) (OrderSnapshot, error) {
	if len(req.Items) == 0 {
		return OrderSnapshot{}, invalid("items", "must contain at least one item")
	}
	if len(req.Items) != len(b.Items) {
		return OrderSnapshot{}, invalid("breakdown", fmt.Sprintf("has %d lines, request has %d", len(b.Items), len(req.Items)))
	}
	for i, it := range req.Items {
		line := b.Items[i]
		if line.ProductID != it.ProductID || line.Quantity != it.Quantity {
			return OrderSnapshot{}, invalid(fmt.Sprintf("breakdown.items[%d]", i), "does not match the request line")
		}
	}
	if b.TotalAmount.IsNegative() {
		return OrderSnapshot{}, invalid("breakdown.total_amount", "must not be negative")
	}

	snap := OrderSnapshot{
		Items:        append([]LineItem(nil), req.Items...),
		DeliveryArea: NormalizeArea(req.DeliveryArea),
		Breakdown:    b.WithPromoResult(b.PromoResult),
	}
	if b.PromoResult.Valid {
		snap.PromoCode = b.PromoResult.Code
	}
	fp, err := Fingerprint(snap)
	if err != nil {
		return OrderSnapshot{}, err
	}
	snap.Fingerprint = fp
	return snap, nil
}

// Fingerprint hashes the canonical JSON of the snapshot content, excluding the
// stored fingerprint itself.
func Fingerprint(s OrderSnapshot) (string, error) {
	payload, err := json.Marshal(fingerprintBody{
		Items:        s.Items,
		DeliveryArea: s.DeliveryArea,
		PromoCode:    s.PromoCode,
		Breakdown:    s.Breakdown,
	})
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether the stored fingerprint still matches the content.
func (s OrderSnapshot) Verify() bool {
	fp, err := Fingerprint(s)
	return err == nil && fp == s.Fingerprint
}
