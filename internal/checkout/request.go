package checkout

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/munchies-pricing/internal/common"
	"github.com/noah-isme/munchies-pricing/internal/pricing"
)

var decimalPattern = regexp.MustCompile(`^\d+(\.\d{1,4})?$`)

// NewValidator returns a validator with the money rules used by checkout payloads.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return s == "" || decimalPattern.MatchString(s)
	})
	return v
}

// ItemPayload is one cart line on the wire. Amounts are decimal strings.
type ItemPayload struct {
	ProductID     string `json:"product_id" validate:"required,max=64"`
	RestaurantID  string `json:"restaurant_id" validate:"required,max=64"`
	CategoryID    string `json:"category_id" validate:"omitempty,max=64"`
	ProductName   string `json:"product_name" validate:"omitempty,max=200"`
	Quantity      int    `json:"quantity" validate:"required,min=1,max=999"`
	UnitPrice     string `json:"unit_price" validate:"required,money"`
	ModifierPrice string `json:"modifier_price" validate:"money"`
	ItemDiscount  string `json:"item_discount" validate:"money"`
	ItemVat       string `json:"item_vat" validate:"money"`
}

// ChargeRequestPayload is the body of POST /orders/charges/calculate.
type ChargeRequestPayload struct {
	Items           []ItemPayload `json:"items" validate:"required,min=1,max=100,dive"`
	DeliveryArea    string        `json:"delivery_area" validate:"required,max=64"`
	PromoCode       string        `json:"promo_code" validate:"omitempty,max=64"`
	PromoTargetBase string        `json:"promo_target_base" validate:"money"`
}

// PlaceOrderPayload is the body of POST /orders.
type PlaceOrderPayload struct {
	ChargeRequestPayload
	PaymentMethod string `json:"payment_method" validate:"required,oneof=cod bkash aamarpay card"`
}

// StatusPayload is the body of POST /orders/{orderId}/status.
type StatusPayload struct {
	Status string `json:"status" validate:"required,oneof=paid delivered"`
}

// ToRequest converts the wire payload into an engine request.
func (p ChargeRequestPayload) ToRequest() (pricing.ChargeRequest, error) {
	items := make([]pricing.LineItem, 0, len(p.Items))
	for i, it := range p.Items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
		unit, err := parseMoney(field("unit_price"), it.UnitPrice)
		if err != nil {
			return pricing.ChargeRequest{}, err
		}
		modifier, err := parseMoney(field("modifier_price"), it.ModifierPrice)
		if err != nil {
			return pricing.ChargeRequest{}, err
		}
		discount, err := parseMoney(field("item_discount"), it.ItemDiscount)
		if err != nil {
			return pricing.ChargeRequest{}, err
		}
		vat, err := parseMoney(field("item_vat"), it.ItemVat)
		if err != nil {
			return pricing.ChargeRequest{}, err
		}
		items = append(items, pricing.LineItem{
			ProductID:     strings.TrimSpace(it.ProductID),
			RestaurantID:  strings.TrimSpace(it.RestaurantID),
			CategoryID:    strings.TrimSpace(it.CategoryID),
			ProductName:   strings.TrimSpace(it.ProductName),
			Quantity:      it.Quantity,
			UnitPrice:     unit,
			ModifierPrice: modifier,
			ItemDiscount:  discount,
			ItemVat:       vat,
		})
	}
	req := pricing.ChargeRequest{
		Items:        items,
		DeliveryArea: p.DeliveryArea,
		PromoCode:    p.PromoCode,
	}
	if strings.TrimSpace(p.PromoTargetBase) != "" {
		base, err := parseMoney("promo_target_base", p.PromoTargetBase)
		if err != nil {
			return pricing.ChargeRequest{}, err
		}
		req.PromoTargetBase = &base
	}
	return req, nil
}

func parseMoney(field, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &pricing.ValidationError{Field: field, Reason: "must be a decimal amount"}
	}
	return d, nil
}

// validationDetails renders validator failures as {field: message}.
func validationDetails(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out
	}
	for _, fe := range verrs {
		out[fieldPath(fe.Namespace())] = fieldMessage(fe)
	}
	return out
}

// fieldPath drops the root and embedded struct names from a validator namespace.
func fieldPath(ns string) string {
	_, rest, found := strings.Cut(ns, ".")
	if !found {
		return ns
	}
	return strings.TrimPrefix(rest, "ChargeRequestPayload.")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "money":
		return "must be a non-negative decimal amount"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed validation: " + fe.Tag()
	}
}

func badRequest(details map[string]string) *common.AppError {
	return common.NewAppError("VALIDATION_FAILED", "request validation failed", http.StatusBadRequest, nil).WithDetails(details)
}
