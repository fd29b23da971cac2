package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/munchies-pricing/internal/promo"
)

// PromoLookup resolves a normalised promo code. Implementations return
// promo.ErrNotFound for unknown codes and any other error for I/O failures.
type PromoLookup interface {
	LookupPromo(ctx context.Context, code string) (promo.Record, error)
}

// PromoLookupFunc adapts a function to PromoLookup.
type PromoLookupFunc func(ctx context.Context, code string) (promo.Record, error)

// LookupPromo calls f.
func (f PromoLookupFunc) LookupPromo(ctx context.Context, code string) (promo.Record, error) {
	return f(ctx, code)
}

// AreaFee is the fee schedule entry of a delivery area.
type AreaFee struct {
	Charge decimal.Decimal
	// FreeDeliveryThreshold waives the charge when the subtotal reaches it.
	FreeDeliveryThreshold *decimal.Decimal
}

// AreaFeeLookup resolves a delivery area slug. Implementations return
// ErrAreaNotFound for unknown slugs and any other error for I/O failures.
type AreaFeeLookup interface {
	LookupAreaFee(ctx context.Context, slug string) (AreaFee, error)
}

// AreaFeeLookupFunc adapts a function to AreaFeeLookup.
type AreaFeeLookupFunc func(ctx context.Context, slug string) (AreaFee, error)

// LookupAreaFee calls f.
func (f AreaFeeLookupFunc) LookupAreaFee(ctx context.Context, slug string) (AreaFee, error) {
	return f(ctx, slug)
}

// ServiceFeePolicy returns the platform fee for a subtotal.
type ServiceFeePolicy func(subtotal decimal.Decimal) decimal.Decimal

// FlatAndPercentFee builds a policy charging flat + subtotal×bps/10000, limited to max when set.
func FlatAndPercentFee(flat decimal.Decimal, bps int64, max *decimal.Decimal) ServiceFeePolicy {
	return func(subtotal decimal.Decimal) decimal.Decimal {
		fee := flat
		if bps > 0 {
			fee = fee.Add(subtotal.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000)))
		}
		if max != nil && fee.GreaterThan(*max) {
			fee = *max
		}
		return fee
	}
}

// Engine computes charge breakdowns. It keeps no state between calls.
type Engine struct {
	Promos     PromoLookup
	Areas      AreaFeeLookup
	ServiceFee ServiceFeePolicy
	Now        func() time.Time
}

// Calculate prices the request. ValidationError, UnknownAreaError and
// LookupFailedError abort the calculation; an unusable promo code does not and
// is reported through PromoResult instead.
func (e *Engine) Calculate(ctx context.Context, req ChargeRequest) (ChargeBreakdown, error) {
	if err := validateRequest(req); err != nil {
		return ChargeBreakdown{}, err
	}

	subtotal := decimal.Zero
	itemDiscountTotal := decimal.Zero
	vatTotal := decimal.Zero
	items := make([]ItemBreakdown, 0, len(req.Items))
	for _, it := range req.Items {
		q := it.qty()
		lineSubtotal := it.Subtotal()
		lineDiscount := it.ItemDiscount.Mul(q)
		lineVat := it.ItemVat.Mul(q)
		items = append(items, ItemBreakdown{
			ProductID:     it.ProductID,
			RestaurantID:  it.RestaurantID,
			Quantity:      it.Quantity,
			UnitPrice:     Round(it.UnitPrice),
			ModifierPrice: Round(it.ModifierPrice),
			ItemSubtotal:  Round(lineSubtotal),
			ItemDiscount:  Round(lineDiscount),
			ItemVat:       Round(lineVat),
			ItemTotal:     Round(lineSubtotal.Sub(lineDiscount).Add(lineVat)),
		})
		subtotal = subtotal.Add(lineSubtotal)
		itemDiscountTotal = itemDiscountTotal.Add(lineDiscount)
		vatTotal = vatTotal.Add(lineVat)
	}
	subtotal = Round(subtotal)
	itemDiscountTotal = Round(itemDiscountTotal)
	vatTotal = Round(vatTotal)

	deliveryCharge, err := e.deliveryCharge(ctx, req.DeliveryArea, subtotal)
	if err != nil {
		return ChargeBreakdown{}, err
	}

	result, err := e.evaluatePromo(ctx, req, subtotal, deliveryCharge)
	if err != nil {
		return ChargeBreakdown{}, err
	}
	promoDiscount := result.DiscountAmount
	cashback := decimal.Zero
	if result.Valid && result.Type == promo.TypeCashback {
		cashback = promoDiscount
	}

	serviceFee := decimal.Zero
	if e.ServiceFee != nil {
		serviceFee = Round(e.ServiceFee(subtotal))
		if serviceFee.IsNegative() {
			serviceFee = decimal.Zero
		}
	}

	total := subtotal.
		Sub(itemDiscountTotal).
		Sub(promoDiscount).
		Add(vatTotal).
		Add(deliveryCharge).
		Add(serviceFee)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return ChargeBreakdown{
		Subtotal:           subtotal,
		ItemDiscountTotal:  itemDiscountTotal,
		PromoDiscountTotal: promoDiscount,
		VatTotal:           vatTotal,
		DeliveryCharge:     deliveryCharge,
		ServiceFee:         serviceFee,
		TotalAmount:        Round(total),
		CashbackAmount:     cashback,
		PromoResult:        result,
		Items:              items,
	}, nil
}

func (e *Engine) deliveryCharge(ctx context.Context, area string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	slug := NormalizeArea(area)
	if e.Areas == nil {
		return decimal.Zero, &LookupFailedError{Collaborator: "area", Key: slug, Err: errors.New("area lookup not configured")}
	}
	fee, err := e.Areas.LookupAreaFee(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrAreaNotFound) {
			return decimal.Zero, &UnknownAreaError{Area: slug}
		}
		return decimal.Zero, &LookupFailedError{Collaborator: "area", Key: slug, Err: err}
	}
	if fee.Charge.IsNegative() {
		return decimal.Zero, &LookupFailedError{Collaborator: "area", Key: slug, Err: fmt.Errorf("negative delivery charge %s", fee.Charge)}
	}
	if fee.FreeDeliveryThreshold != nil && !subtotal.LessThan(*fee.FreeDeliveryThreshold) {
		return decimal.Zero, nil
	}
	return Round(fee.Charge), nil
}

func (e *Engine) evaluatePromo(ctx context.Context, req ChargeRequest, subtotal, deliveryCharge decimal.Decimal) (PromoResult, error) {
	code := promo.Normalize(req.PromoCode)
	if code == "" {
		return PromoResult{Valid: false, DiscountAmount: decimal.Zero}, nil
	}
	if e.Promos == nil {
		return PromoResult{}, &LookupFailedError{Collaborator: "promo", Key: code, Err: errors.New("promo lookup not configured")}
	}
	record, err := e.Promos.LookupPromo(ctx, code)
	if err != nil {
		if errors.Is(err, promo.ErrNotFound) {
			return rejected(err), nil
		}
		return PromoResult{}, &LookupFailedError{Collaborator: "promo", Key: code, Err: err}
	}
	if err := record.Validate(e.now(), subtotal); err != nil {
		return rejected(err), nil
	}
	if err := record.Supported(); err != nil {
		return rejected(err), nil
	}
	if err := record.CheckCart(promoItems(req)); err != nil {
		return rejected(err), nil
	}

	var base decimal.Decimal
	switch record.ApplyOn {
	case promo.ApplyOnOrder, "":
		base = subtotal
	case promo.ApplyOnDelivery:
		base = deliveryCharge
	case promo.ApplyOnProduct:
		base = productBase(req, record, subtotal)
	default:
		return rejected(promo.ErrUnsupported), nil
	}

	applyOn := record.ApplyOn
	if applyOn == "" {
		applyOn = promo.ApplyOnOrder
	}
	return PromoResult{
		Valid:          true,
		DiscountAmount: Round(promo.Compute(base, record)),
		Code:           code,
		Type:           record.Type,
		ApplyOn:        applyOn,
	}, nil
}

func productBase(req ChargeRequest, record promo.Record, subtotal decimal.Decimal) decimal.Decimal {
	var base decimal.Decimal
	if req.PromoTargetBase != nil {
		base = *req.PromoTargetBase
	} else {
		base = promo.EligibleSubtotal(promoItems(req), record)
	}
	if base.GreaterThan(subtotal) {
		base = subtotal
	}
	if base.IsNegative() {
		base = decimal.Zero
	}
	return base
}

func promoItems(req ChargeRequest) []promo.Item {
	lines := make([]promo.Item, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, promo.Item{
			ProductID:    it.ProductID,
			CategoryID:   it.CategoryID,
			RestaurantID: it.RestaurantID,
			Subtotal:     it.Subtotal(),
		})
	}
	return lines
}

func rejected(err error) PromoResult {
	return PromoResult{Valid: false, DiscountAmount: decimal.Zero, ErrorMessage: promo.Message(err)}
}

func (e *Engine) now() time.Time {
	if e != nil && e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// NormalizeArea trims and lower-cases a delivery area slug.
func NormalizeArea(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

func validateRequest(req ChargeRequest) error {
	if len(req.Items) == 0 {
		return invalid("items", "must contain at least one item")
	}
	if NormalizeArea(req.DeliveryArea) == "" {
		return invalid("delivery_area", "is required")
	}
	if req.PromoTargetBase != nil && req.PromoTargetBase.IsNegative() {
		return invalid("promo_target_base", "must not be negative")
	}
	for i, it := range req.Items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
		if it.Quantity < 1 {
			return invalid(field("quantity"), "must be at least 1")
		}
		if it.UnitPrice.IsNegative() {
			return invalid(field("unit_price"), "must not be negative")
		}
		if it.ModifierPrice.IsNegative() {
			return invalid(field("modifier_price"), "must not be negative")
		}
		if it.ItemDiscount.IsNegative() {
			return invalid(field("item_discount"), "must not be negative")
		}
		if it.ItemVat.IsNegative() {
			return invalid(field("item_vat"), "must not be negative")
		}
		if it.ItemDiscount.GreaterThan(it.UnitPrice.Add(it.ModifierPrice)) {
			return invalid(field("item_discount"), "must not exceed unit_price + modifier_price")
		}
	}
	return nil
}
