package pricing

import "github.com/shopspring/decimal"

// BreakdownView is the wire rendering of a ChargeBreakdown: every amount is a
// string with exactly MoneyPlaces decimals.
type BreakdownView struct {
	Subtotal           string          `json:"subtotal"`
	ItemDiscountTotal  string          `json:"item_discount_total"`
	PromoDiscountTotal string          `json:"promo_discount_total"`
	VatTotal           string          `json:"vat_total"`
	DeliveryCharge     string          `json:"delivery_charge"`
	ServiceFee         string          `json:"service_fee"`
	TotalAmount        string          `json:"total_amount"`
	CashbackAmount     string          `json:"cashback_amount"`
	PromoResult        PromoResultView `json:"promo_result"`
	Items              []ItemView      `json:"items"`
}

type PromoResultView struct {
	Valid          bool   `json:"valid"`
	Code           string `json:"code,omitempty"`
	DiscountAmount string `json:"discount_amount"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

type ItemView struct {
	ProductID     string `json:"product_id"`
	RestaurantID  string `json:"restaurant_id"`
	Quantity      int    `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	ModifierPrice string `json:"modifier_price"`
	ItemSubtotal  string `json:"item_subtotal"`
	ItemDiscount  string `json:"item_discount"`
	ItemVat       string `json:"item_vat"`
	ItemTotal     string `json:"item_total"`
}

// FormatMoney renders d with exactly MoneyPlaces decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}

// View renders b for API responses.
func (b ChargeBreakdown) View() BreakdownView {
	items := make([]ItemView, 0, len(b.Items))
	for _, it := range b.Items {
		items = append(items, ItemView{
			ProductID:     it.ProductID,
			RestaurantID:  it.RestaurantID,
			Quantity:      it.Quantity,
			UnitPrice:     FormatMoney(it.UnitPrice),
			ModifierPrice: FormatMoney(it.ModifierPrice),
			ItemSubtotal:  FormatMoney(it.ItemSubtotal),
			ItemDiscount:  FormatMoney(it.ItemDiscount),
			ItemVat:       FormatMoney(it.ItemVat),
			ItemTotal:     FormatMoney(it.ItemTotal),
		})
	}
	return BreakdownView{
		Subtotal:           FormatMoney(b.Subtotal),
		ItemDiscountTotal:  FormatMoney(b.ItemDiscountTotal),
		PromoDiscountTotal: FormatMoney(b.PromoDiscountTotal),
		VatTotal:           FormatMoney(b.VatTotal),
		DeliveryCharge:     FormatMoney(b.DeliveryCharge),
		ServiceFee:         FormatMoney(b.ServiceFee),
		TotalAmount:        FormatMoney(b.TotalAmount),
		CashbackAmount:     FormatMoney(b.CashbackAmount),
		PromoResult: PromoResultView{
			Valid:          b.PromoResult.Valid,
			Code:           b.PromoResult.Code,
			DiscountAmount: FormatMoney(b.PromoResult.DiscountAmount),
			ErrorMessage:   b.PromoResult.ErrorMessage,
		},
		Items: items,
	}
}
