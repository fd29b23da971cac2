package promo

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestComputePercentCapped(t *testing.T) {
	limit := decimal.RequireFromString("100")
	rule := Record{Type: TypePercentage, Amount: decimal.NewFromInt(50), Cap: &limit}
	discount := Compute(decimal.RequireFromString("1000"), rule)
	if !discount.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("expected 100 discount, got %s", discount)
	}
}

func TestComputeFlatClampedToBase(t *testing.T) {
	rule := Record{Type: TypeFlat, Amount: decimal.NewFromInt(50)}
	discount := Compute(decimal.RequireFromString("3.00"), rule)
	if !discount.Equal(decimal.RequireFromString("3")) {
		t.Fatalf("expected 3 discount, got %s", discount)
	}
}

func TestComputeUnknownTypeYieldsZero(t *testing.T) {
	rule := Record{Type: Type("bogo"), Amount: decimal.NewFromInt(5)}
	if discount := Compute(decimal.NewFromInt(10), rule); !discount.IsZero() {
		t.Fatalf("expected zero discount, got %s", discount)
	}
}

func TestValidateOrdering(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	maxUsage := 5
	minOrder := decimal.NewFromInt(100)
	rule := Record{
		StartsAt:       now.Add(-48 * time.Hour),
		EndsAt:         now.Add(-time.Hour),
		MaxUsage:       &maxUsage,
		UsageCount:     5,
		MinOrderAmount: &minOrder,
	}
	if err := rule.Validate(now, decimal.NewFromInt(1)); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	rule.EndsAt = now.Add(time.Hour)
	if err := rule.Validate(now, decimal.NewFromInt(1)); err != ErrUsageLimitReached {
		t.Fatalf("expected ErrUsageLimitReached, got %v", err)
	}

	rule.UsageCount = 1
	if err := rule.Validate(now, decimal.NewFromInt(1)); err != ErrMinimumOrderUnmet {
		t.Fatalf("expected ErrMinimumOrderUnmet, got %v", err)
	}

	if err := rule.Validate(now, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("expected valid promo, got %v", err)
	}
}

func TestValidateWindowIsHalfOpen(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	rule := Record{StartsAt: start, EndsAt: end}

	if err := rule.Validate(start.Add(-time.Nanosecond), decimal.Zero); err != ErrNotYetActive {
		t.Fatalf("expected ErrNotYetActive, got %v", err)
	}
	if err := rule.Validate(start, decimal.Zero); err != nil {
		t.Fatalf("expected start instant to be active, got %v", err)
	}
	if err := rule.Validate(end, decimal.Zero); err != ErrExpired {
		t.Fatalf("expected end instant to be expired, got %v", err)
	}
}

func TestEligibleSubtotalScoped(t *testing.T) {
	rule := Record{CategoryIDs: []string{"cat-burgers"}}
	items := []Item{
		{ProductID: "p1", CategoryID: "cat-burgers", Subtotal: decimal.RequireFromString("12.50")},
		{ProductID: "p2", CategoryID: "cat-drinks", Subtotal: decimal.RequireFromString("3.00")},
		{ProductID: "p3", Subtotal: decimal.RequireFromString("4.00")},
	}
	eligible := EligibleSubtotal(items, rule)
	if !eligible.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("expected eligible subtotal 12.50, got %s", eligible)
	}

	if all := EligibleSubtotal(items, Record{}); !all.Equal(decimal.RequireFromString("19.50")) {
		t.Fatalf("expected unscoped subtotal 19.50, got %s", all)
	}
}

func TestNormalizeAndMessage(t *testing.T) {
	if got := Normalize("  welcome20 "); got != "WELCOME20" {
		t.Fatalf("unexpected normalised code %q", got)
	}
	if got := Message(ErrExpired); got != "Promo expired" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Message(ErrNotFound); got != "Invalid promo code" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestSupportedRejectsUnknownKinds(t *testing.T) {
	if err := (Record{Type: TypeFlat, ApplyOn: ApplyOnDelivery}).Supported(); err != nil {
		t.Fatalf("expected flat delivery promo to be supported, got %v", err)
	}
	if err := (Record{Type: Type("bogus"), ApplyOn: ApplyOnOrder}).Supported(); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported for unknown type, got %v", err)
	}
	if err := (Record{Type: TypeFlat, ApplyOn: ApplyOn("tip")}).Supported(); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported for unknown target, got %v", err)
	}
	if got := Message(ErrUnsupported); got != "Promo cannot be applied" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestCheckCartRestrictions(t *testing.T) {
	items := []Item{
		{ProductID: "p1", RestaurantID: "r-1", CategoryID: "cat-burgers"},
		{ProductID: "p2", RestaurantID: "r-2", CategoryID: "cat-drinks"},
	}

	rule := Record{ApplyOn: ApplyOnOrder, RestaurantIDs: []string{"r-1"}}
	if err := rule.CheckCart(items); err != ErrRestaurantRestricted {
		t.Fatalf("expected ErrRestaurantRestricted, got %v", err)
	}
	rule.RestaurantIDs = []string{"r-1", "R-2"}
	if err := rule.CheckCart(items); err != nil {
		t.Fatalf("expected every restaurant to be covered, got %v", err)
	}

	rule = Record{ApplyOn: ApplyOnDelivery, CategoryIDs: []string{"cat-burgers"}}
	if err := rule.CheckCart(items); err != ErrCategoryRestricted {
		t.Fatalf("expected ErrCategoryRestricted, got %v", err)
	}

	rule.ApplyOn = ApplyOnProduct
	if err := rule.CheckCart(items); err != nil {
		t.Fatalf("product promos narrow their base instead of rejecting, got %v", err)
	}
}

func TestEligibleFor(t *testing.T) {
	if !(Record{}).EligibleFor("anyone") {
		t.Fatalf("unrestricted promo should be open to everyone")
	}
	rule := Record{EligibleUserIDs: []string{"user-1"}}
	if !rule.EligibleFor(" user-1 ") {
		t.Fatalf("listed user should be eligible")
	}
	if rule.EligibleFor("user-2") || rule.EligibleFor("") {
		t.Fatalf("unlisted users should not be eligible")
	}
}
