package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/munchies-pricing/internal/promo"
)

// MoneyPlaces is the number of decimal places published amounts are rounded to.
const MoneyPlaces = 2

// Round publishes an amount at currency precision, rounding half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// LineItem describes one cart entry being priced. Discount and VAT are per unit.
type LineItem struct {
	ProductID     string          `json:"product_id"`
	RestaurantID  string          `json:"restaurant_id"`
	CategoryID    string          `json:"category_id,omitempty"`
	ProductName   string          `json:"product_name,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	ModifierPrice decimal.Decimal `json:"modifier_price"`
	ItemDiscount  decimal.Decimal `json:"item_discount"`
	ItemVat       decimal.Decimal `json:"item_vat"`
}

func (it LineItem) qty() decimal.Decimal {
	return decimal.NewFromInt(int64(it.Quantity))
}

// Subtotal returns (unitPrice + modifierPrice) × quantity at full precision.
func (it LineItem) Subtotal() decimal.Decimal {
	return it.UnitPrice.Add(it.ModifierPrice).Mul(it.qty())
}

// ChargeRequest is the input to a charge calculation.
type ChargeRequest struct {
	Items        []LineItem
	DeliveryArea string
	PromoCode    string
	// PromoTargetBase is the pre-resolved base for promos applied on products.
	// When nil the engine derives it from the promo's product, category and
	// restaurant targets.
	PromoTargetBase *decimal.Decimal
}

// ItemBreakdown shows the price composition of a single line.
type ItemBreakdown struct {
	ProductID     string          `json:"product_id"`
	RestaurantID  string          `json:"restaurant_id"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	ModifierPrice decimal.Decimal `json:"modifier_price"`
	ItemSubtotal  decimal.Decimal `json:"item_subtotal"`
	ItemDiscount  decimal.Decimal `json:"item_discount"`
	ItemVat       decimal.Decimal `json:"item_vat"`
	ItemTotal     decimal.Decimal `json:"item_total"`
}

// PromoResult reports how the requested promo code was evaluated.
type PromoResult struct {
	Valid          bool            `json:"valid"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Code           string          `json:"code,omitempty"`
	Type           promo.Type      `json:"type,omitempty"`
	ApplyOn        promo.ApplyOn   `json:"apply_on,omitempty"`
}

// ChargeBreakdown is the published result of a calculation. Values are
// produced fresh on every call and never mutated afterwards.
type ChargeBreakdown struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	ItemDiscountTotal  decimal.Decimal `json:"item_discount_total"`
	PromoDiscountTotal decimal.Decimal `json:"promo_discount_total"`
	VatTotal           decimal.Decimal `json:"vat_total"`
	DeliveryCharge     decimal.Decimal `json:"delivery_charge"`
	ServiceFee         decimal.Decimal `json:"service_fee"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	// CashbackAmount is advisory: the caller posts it to the customer's wallet.
	CashbackAmount decimal.Decimal `json:"cashback_amount"`
	PromoResult    PromoResult     `json:"promo_result"`
	Items          []ItemBreakdown `json:"items"`
}

// WithPromoResult returns a copy of b carrying a rejected promo outcome. It is
// used by callers that enforce promo preconditions the engine cannot see, and
// only on breakdowns computed without a discount.
func (b ChargeBreakdown) WithPromoResult(result PromoResult) ChargeBreakdown {
	out := b
	out.Items = append([]ItemBreakdown(nil), b.Items...)
	out.PromoResult = result
	return out
}
