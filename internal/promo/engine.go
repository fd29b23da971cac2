package promo

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no promo exists for the normalised code.
	ErrNotFound = errors.New("promo not found")
	// ErrNotYetActive is returned when the promo window has not started.
	ErrNotYetActive = errors.New("promo not yet active")
	// ErrExpired is returned when the promo window has already closed.
	ErrExpired = errors.New("promo expired")
	// ErrUsageLimitReached indicates the promo has exhausted the global usage quota.
	ErrUsageLimitReached = errors.New("promo usage limit reached")
	// ErrMinimumOrderUnmet indicates the order subtotal did not meet the promo requirement.
	ErrMinimumOrderUnmet = errors.New("promo minimum order amount not met")
	// ErrPerUserLimitReached indicates the caller has exceeded the per-user allowance.
	ErrPerUserLimitReached = errors.New("promo per-user usage limit reached")
	// ErrRestaurantRestricted indicates a cart line comes from a restaurant the promo excludes.
	ErrRestaurantRestricted = errors.New("promo not valid for every restaurant in cart")
	// ErrCategoryRestricted indicates a cart line belongs to a category the promo excludes.
	ErrCategoryRestricted = errors.New("promo not valid for every category in cart")
	// ErrUserNotEligible indicates the promo is limited to a list that does not include the caller.
	ErrUserNotEligible = errors.New("promo not available to user")
	// ErrUnsupported indicates a promo kind or target this service cannot price.
	ErrUnsupported = errors.New("promo kind not supported")
)

// Type selects how the discount amount is derived.
type Type string

const (
	TypePercentage Type = "percentage"
	TypeFlat       Type = "flat"
	TypeCashback   Type = "cashback"
)

// ApplyOn selects which amount the promo discounts.
type ApplyOn string

const (
	ApplyOnOrder    ApplyOn = "order"
	ApplyOnDelivery ApplyOn = "delivery"
	ApplyOnProduct  ApplyOn = "product"
)

// Record captures the runtime constraints of a promo code as read from the store.
type Record struct {
	ID             string
	Code           string
	Type           Type
	Amount         decimal.Decimal
	Cap            *decimal.Decimal
	MinOrderAmount *decimal.Decimal
	StartsAt       time.Time
	EndsAt         time.Time
	MaxUsage       *int
	UsageCount     int
	PerUserLimit   *int
	ApplyOn        ApplyOn
	ProductIDs     []string
	CategoryIDs    []string
	RestaurantIDs  []string

	// EligibleUserIDs restricts the promo to these users when non-empty.
	EligibleUserIDs []string
}

// Item represents a cart line considered for product-scoped promos.
type Item struct {
	ProductID    string
	CategoryID   string
	RestaurantID string
	Subtotal     decimal.Decimal
}

// Normalize trims and upper-cases a promo code so lookups are case-insensitive.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the promo at the provided instant against the order subtotal.
// Date checks run before usage checks, usage before amount checks.
func (r Record) Validate(now time.Time, subtotal decimal.Decimal) error {
	if !r.StartsAt.IsZero() && now.Before(r.StartsAt) {
		return ErrNotYetActive
	}
	if !r.EndsAt.IsZero() && !now.Before(r.EndsAt) {
		return ErrExpired
	}
	if r.MaxUsage != nil && r.UsageCount >= *r.MaxUsage {
		return ErrUsageLimitReached
	}
	if r.MinOrderAmount != nil && subtotal.LessThan(*r.MinOrderAmount) {
		return ErrMinimumOrderUnmet
	}
	return nil
}

// Supported returns ErrUnsupported for a discount type or target that has no pricing rule.
func (r Record) Supported() error {
	switch r.Type {
	case TypePercentage, TypeFlat, TypeCashback:
	default:
		return ErrUnsupported
	}
	switch r.ApplyOn {
	case ApplyOnOrder, ApplyOnDelivery, ApplyOnProduct, "":
	default:
		return ErrUnsupported
	}
	return nil
}

// CheckCart enforces restaurant and category restrictions of order and
// delivery promos: every line must be covered. Product promos use the lists to
// pick their base instead, see EligibleSubtotal.
func (r Record) CheckCart(items []Item) error {
	if r.ApplyOn == ApplyOnProduct {
		return nil
	}
	for _, it := range items {
		if len(r.RestaurantIDs) > 0 && !contains(r.RestaurantIDs, it.RestaurantID) {
			return ErrRestaurantRestricted
		}
	}
	for _, it := range items {
		if len(r.CategoryIDs) > 0 && !contains(r.CategoryIDs, it.CategoryID) {
			return ErrCategoryRestricted
		}
	}
	return nil
}

// EligibleFor reports whether userID may redeem the promo.
func (r Record) EligibleFor(userID string) bool {
	if len(r.EligibleUserIDs) == 0 {
		return true
	}
	return contains(r.EligibleUserIDs, strings.TrimSpace(userID))
}

// Scoped reports whether the promo targets specific products, categories or restaurants.
func (r Record) Scoped() bool {
	return len(r.ProductIDs) > 0 || len(r.CategoryIDs) > 0 || len(r.RestaurantIDs) > 0
}

// EligibleSubtotal sums the lines the promo targets. An unscoped promo targets every line.
func EligibleSubtotal(items []Item, r Record) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		if !it.Subtotal.IsPositive() {
			continue
		}
		if !r.Scoped() || matches(r, it) {
			total = total.Add(it.Subtotal)
		}
	}
	return total
}

func matches(r Record, it Item) bool {
	if len(r.ProductIDs) > 0 && !contains(r.ProductIDs, it.ProductID) {
		return false
	}
	if len(r.CategoryIDs) > 0 && !contains(r.CategoryIDs, it.CategoryID) {
		return false
	}
	if len(r.RestaurantIDs) > 0 && !contains(r.RestaurantIDs, it.RestaurantID) {
		return false
	}
	return true
}

func contains(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, candidate := range ids {
		if strings.EqualFold(candidate, id) {
			return true
		}
	}
	return false
}

// Compute determines the discount for the given base. The result never exceeds
// the base or the cap and is never negative.
func Compute(base decimal.Decimal, r Record) decimal.Decimal {
	if !base.IsPositive() || !r.Amount.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	switch r.Type {
	case TypePercentage:
		discount = base.Mul(r.Amount).Div(decimal.NewFromInt(100))
	case TypeFlat, TypeCashback:
		discount = r.Amount
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(base) {
		discount = base
	}
	if r.Cap != nil && discount.GreaterThan(*r.Cap) {
		discount = *r.Cap
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// Message converts a validation outcome into the text shown next to the promo field.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "Invalid promo code"
	case errors.Is(err, ErrNotYetActive):
		return "Promo not yet active"
	case errors.Is(err, ErrExpired):
		return "Promo expired"
	case errors.Is(err, ErrUsageLimitReached):
		return "Promo usage limit reached"
	case errors.Is(err, ErrMinimumOrderUnmet):
		return "Minimum order amount not met"
	case errors.Is(err, ErrPerUserLimitReached):
		return "Promo per-user limit reached"
	case errors.Is(err, ErrRestaurantRestricted):
		return "Promo is not valid for all restaurants in your cart"
	case errors.Is(err, ErrCategoryRestricted):
		return "Promo is not valid for all categories in your cart"
	case errors.Is(err, ErrUserNotEligible):
		return "You are not eligible for this promo"
	default:
		return "Promo cannot be applied"
	}
}
