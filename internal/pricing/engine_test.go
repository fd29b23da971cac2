package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/munchies-pricing/internal/promo"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type stubPromos map[string]promo.Record

func (s stubPromos) LookupPromo(_ context.Context, code string) (promo.Record, error) {
	rec, ok := s[code]
	if !ok {
		return promo.Record{}, promo.ErrNotFound
	}
	return rec, nil
}

func areaTable(fees map[string]AreaFee) AreaFeeLookup {
	return AreaFeeLookupFunc(func(_ context.Context, slug string) (AreaFee, error) {
		fee, ok := fees[slug]
		if !ok {
			return AreaFee{}, ErrAreaNotFound
		}
		return fee, nil
	})
}

func newEngine(promos stubPromos) *Engine {
	return &Engine{
		Promos: promos,
		Areas:  areaTable(map[string]AreaFee{"gulshan": {Charge: dec("3.00")}}),
		Now:    func() time.Time { return fixedNow },
	}
}

func burgerCart(code string) ChargeRequest {
	return ChargeRequest{
		Items: []LineItem{{
			ProductID:     "p-burger",
			RestaurantID:  "r-1",
			CategoryID:    "c-burgers",
			Quantity:      3,
			UnitPrice:     dec("10.00"),
			ModifierPrice: dec("2.50"),
		}},
		DeliveryArea: "gulshan",
		PromoCode:    code,
	}
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "expected %s, got %s", want, got)
}

func TestCalculateWithoutPromo(t *testing.T) {
	b, err := newEngine(nil).Calculate(context.Background(), burgerCart(""))
	require.NoError(t, err)

	requireAmount(t, "37.50", b.Subtotal)
	requireAmount(t, "0", b.PromoDiscountTotal)
	requireAmount(t, "3.00", b.DeliveryCharge)
	requireAmount(t, "40.50", b.TotalAmount)
	require.False(t, b.PromoResult.Valid)
	require.Empty(t, b.PromoResult.ErrorMessage)
	require.Len(t, b.Items, 1)
	requireAmount(t, "37.50", b.Items[0].ItemSubtotal)
}

func TestCalculatePercentPromoIsCapped(t *testing.T) {
	engine := newEngine(stubPromos{"WELCOME20": {
		Code:    "WELCOME20",
		Type:    promo.TypePercentage,
		Amount:  dec("20"),
		Cap:     decPtr("5.00"),
		ApplyOn: promo.ApplyOnOrder,
	}})

	b, err := engine.Calculate(context.Background(), burgerCart(" welcome20 "))
	require.NoError(t, err)

	require.True(t, b.PromoResult.Valid)
	require.Equal(t, "WELCOME20", b.PromoResult.Code)
	requireAmount(t, "5.00", b.PromoDiscountTotal)
	requireAmount(t, "35.50", b.TotalAmount)
}

func TestCalculateExpiredPromoLeavesTotalUnchanged(t *testing.T) {
	engine := newEngine(stubPromos{"OLD": {
		Code:    "OLD",
		Type:    promo.TypeFlat,
		Amount:  dec("5"),
		EndsAt:  fixedNow.Add(-time.Hour),
		ApplyOn: promo.ApplyOnOrder,
	}})

	b, err := engine.Calculate(context.Background(), burgerCart("OLD"))
	require.NoError(t, err)

	require.False(t, b.PromoResult.Valid)
	require.Equal(t, "Promo expired", b.PromoResult.ErrorMessage)
	requireAmount(t, "0", b.PromoDiscountTotal)
	requireAmount(t, "40.50", b.TotalAmount)
}

func TestCalculateUnknownPromoCode(t *testing.T) {
	b, err := newEngine(stubPromos{}).Calculate(context.Background(), burgerCart("NOPE"))
	require.NoError(t, err)
	require.False(t, b.PromoResult.Valid)
	require.Equal(t, "Invalid promo code", b.PromoResult.ErrorMessage)
	requireAmount(t, "40.50", b.TotalAmount)
}

func TestCalculateUnknownAreaFails(t *testing.T) {
	req := burgerCart("")
	req.DeliveryArea = "atlantis"

	b, err := newEngine(nil).Calculate(context.Background(), req)
	var unknown *UnknownAreaError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "atlantis", unknown.Area)
	require.Empty(t, b.Items)
	require.True(t, b.TotalAmount.IsZero())
}

func TestCalculateDeliveryPromoClampedToCharge(t *testing.T) {
	engine := newEngine(stubPromos{"SHIPFREE": {
		Code:    "SHIPFREE",
		Type:    promo.TypeFlat,
		Amount:  dec("50"),
		ApplyOn: promo.ApplyOnDelivery,
	}})

	b, err := engine.Calculate(context.Background(), burgerCart("SHIPFREE"))
	require.NoError(t, err)
	require.True(t, b.PromoResult.Valid)
	requireAmount(t, "3.00", b.PromoDiscountTotal)
	requireAmount(t, "37.50", b.TotalAmount)
}

func TestCalculateCapAppliesAfterBaseClamp(t *testing.T) {
	engine := newEngine(stubPromos{"BIG": {
		Code:    "BIG",
		Type:    promo.TypeFlat,
		Amount:  dec("50"),
		Cap:     decPtr("2.00"),
		ApplyOn: promo.ApplyOnDelivery,
	}})

	b, err := engine.Calculate(context.Background(), burgerCart("BIG"))
	require.NoError(t, err)
	requireAmount(t, "2.00", b.PromoDiscountTotal)
}

func TestCalculateFreeDeliveryThreshold(t *testing.T) {
	engine := newEngine(nil)
	engine.Areas = areaTable(map[string]AreaFee{
		"gulshan": {Charge: dec("3.00"), FreeDeliveryThreshold: decPtr("37.50")},
	})

	b, err := engine.Calculate(context.Background(), burgerCart(""))
	require.NoError(t, err)
	requireAmount(t, "0", b.DeliveryCharge)
	requireAmount(t, "37.50", b.TotalAmount)
}

func TestCalculateCashbackIsAdvisory(t *testing.T) {
	engine := newEngine(stubPromos{"BACK10": {
		Code:    "BACK10",
		Type:    promo.TypeCashback,
		Amount:  dec("10"),
		ApplyOn: promo.ApplyOnOrder,
	}})

	b, err := engine.Calculate(context.Background(), burgerCart("BACK10"))
	require.NoError(t, err)
	requireAmount(t, "10", b.CashbackAmount)
	requireAmount(t, "10", b.PromoDiscountTotal)
	requireAmount(t, "30.50", b.TotalAmount)
}

func TestCalculateProductPromoUsesTargetedLines(t *testing.T) {
	engine := newEngine(stubPromos{"DRINKS": {
		Code:        "DRINKS",
		Type:        promo.TypePercentage,
		Amount:      dec("50"),
		ApplyOn:     promo.ApplyOnProduct,
		CategoryIDs: []string{"c-drinks"},
	}})
	req := burgerCart("DRINKS")
	req.Items = append(req.Items, LineItem{
		ProductID:  "p-cola",
		CategoryID: "c-drinks",
		Quantity:   2,
		UnitPrice:  dec("1.25"),
	})

	b, err := engine.Calculate(context.Background(), req)
	require.NoError(t, err)
	requireAmount(t, "1.25", b.PromoDiscountTotal)

	req.PromoTargetBase = decPtr("10.00")
	b, err = engine.Calculate(context.Background(), req)
	require.NoError(t, err)
	requireAmount(t, "5.00", b.PromoDiscountTotal)
}

func TestCalculateItemAdjustmentsScaleWithQuantity(t *testing.T) {
	req := burgerCart("")
	req.Items[0].ItemDiscount = dec("1.00")
	req.Items[0].ItemVat = dec("0.505")

	b, err := newEngine(nil).Calculate(context.Background(), req)
	require.NoError(t, err)
	requireAmount(t, "3.00", b.ItemDiscountTotal)
	requireAmount(t, "1.52", b.VatTotal)
	requireAmount(t, "36.02", b.Items[0].ItemTotal)
	requireAmount(t, "39.02", b.TotalAmount)
}

func TestCalculateServiceFeePolicy(t *testing.T) {
	engine := newEngine(nil)
	engine.ServiceFee = FlatAndPercentFee(dec("0.50"), 200, decPtr("1.00"))

	b, err := engine.Calculate(context.Background(), burgerCart(""))
	require.NoError(t, err)
	requireAmount(t, "1.00", b.ServiceFee)
	requireAmount(t, "41.50", b.TotalAmount)
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	cases := map[string]func(*ChargeRequest){
		"no items":          func(r *ChargeRequest) { r.Items = nil },
		"zero quantity":     func(r *ChargeRequest) { r.Items[0].Quantity = 0 },
		"negative price":    func(r *ChargeRequest) { r.Items[0].UnitPrice = dec("-1") },
		"negative modifier": func(r *ChargeRequest) { r.Items[0].ModifierPrice = dec("-0.01") },
		"discount too big":  func(r *ChargeRequest) { r.Items[0].ItemDiscount = dec("12.51") },
		"missing area":      func(r *ChargeRequest) { r.DeliveryArea = "  " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := burgerCart("")
			mutate(&req)
			_, err := newEngine(nil).Calculate(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestCalculateLookupFailuresAreTransient(t *testing.T) {
	boom := errors.New("connection refused")
	engine := newEngine(nil)
	engine.Promos = PromoLookupFunc(func(context.Context, string) (promo.Record, error) {
		return promo.Record{}, boom
	})

	_, err := engine.Calculate(context.Background(), burgerCart("ANY"))
	var lerr *LookupFailedError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, "promo", lerr.Collaborator)
	require.ErrorIs(t, err, boom)

	engine.Areas = AreaFeeLookupFunc(func(context.Context, string) (AreaFee, error) {
		return AreaFee{}, boom
	})
	_, err = engine.Calculate(context.Background(), burgerCart(""))
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, "area", lerr.Collaborator)
}

func TestCalculateSkipsLookupsOnInvalidInput(t *testing.T) {
	calls := 0
	engine := &Engine{
		Areas: AreaFeeLookupFunc(func(context.Context, string) (AreaFee, error) {
			calls++
			return AreaFee{}, nil
		}),
		Promos: PromoLookupFunc(func(context.Context, string) (promo.Record, error) {
			calls++
			return promo.Record{}, nil
		}),
	}
	req := burgerCart("X")
	req.Items[0].Quantity = -1

	_, err := engine.Calculate(context.Background(), req)
	require.Error(t, err)
	require.Zero(t, calls)
}

func TestCalculateIsIdempotent(t *testing.T) {
	engine := newEngine(stubPromos{"WELCOME20": {
		Code: "WELCOME20", Type: promo.TypePercentage, Amount: dec("20"), Cap: decPtr("5"), ApplyOn: promo.ApplyOnOrder,
	}})

	first, err := engine.Calculate(context.Background(), burgerCart("WELCOME20"))
	require.NoError(t, err)
	second, err := engine.Calculate(context.Background(), burgerCart("WELCOME20"))
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestCalculateSubtotalIsMonotonic(t *testing.T) {
	engine := newEngine(stubPromos{"FLAT5": {
		Code: "FLAT5", Type: promo.TypeFlat, Amount: dec("5"), ApplyOn: promo.ApplyOnOrder,
	}})

	var prev decimal.Decimal
	for qty := 1; qty <= 6; qty++ {
		req := burgerCart("FLAT5")
		req.Items[0].Quantity = qty
		b, err := engine.Calculate(context.Background(), req)
		require.NoError(t, err)
		require.False(t, b.Subtotal.LessThan(prev))
		require.False(t, b.TotalAmount.IsNegative())
		require.False(t, b.PromoDiscountTotal.GreaterThan(b.Subtotal))
		prev = b.Subtotal
	}
}

func TestCalculateTotalNeverNegative(t *testing.T) {
	engine := newEngine(stubPromos{"ALL": {
		Code: "ALL", Type: promo.TypePercentage, Amount: dec("100"), ApplyOn: promo.ApplyOnOrder,
	}})
	req := burgerCart("ALL")
	req.Items[0].ItemDiscount = dec("12.50")

	b, err := engine.Calculate(context.Background(), req)
	require.NoError(t, err)
	require.False(t, b.TotalAmount.IsNegative())
}

func TestRoundHalfUp(t *testing.T) {
	requireAmount(t, "0.13", Round(dec("0.125")))
	requireAmount(t, "2.68", Round(dec("2.675")))
	requireAmount(t, "0.12", Round(dec("0.1249")))
}

func TestCalculateRestrictedOrderPromoRequiresEveryLine(t *testing.T) {
	engine := newEngine(stubPromos{
		"R2ONLY": {
			Code:          "R2ONLY",
			Type:          promo.TypeFlat,
			Amount:        dec("5"),
			ApplyOn:       promo.ApplyOnOrder,
			RestaurantIDs: []string{"r-2"},
		},
		"BURGERS": {
			Code:        "BURGERS",
			Type:        promo.TypeFlat,
			Amount:      dec("5"),
			ApplyOn:     promo.ApplyOnDelivery,
			CategoryIDs: []string{"c-burgers"},
		},
	})

	b, err := engine.Calculate(context.Background(), burgerCart("R2ONLY"))
	require.NoError(t, err)
	require.False(t, b.PromoResult.Valid)
	require.Equal(t, "Promo is not valid for all restaurants in your cart", b.PromoResult.ErrorMessage)
	requireAmount(t, "40.50", b.TotalAmount)

	b, err = engine.Calculate(context.Background(), burgerCart("BURGERS"))
	require.NoError(t, err)
	require.True(t, b.PromoResult.Valid)
	requireAmount(t, "3.00", b.PromoDiscountTotal)

	req := burgerCart("BURGERS")
	req.Items = append(req.Items, LineItem{ProductID: "p-cola", RestaurantID: "r-1", CategoryID: "c-drinks", Quantity: 1, UnitPrice: dec("1.50")})
	b, err = engine.Calculate(context.Background(), req)
	require.NoError(t, err)
	require.False(t, b.PromoResult.Valid)
	require.Equal(t, "Promo is not valid for all categories in your cart", b.PromoResult.ErrorMessage)
	requireAmount(t, "0", b.PromoDiscountTotal)
}

func TestCalculateRejectsUnsupportedPromoKinds(t *testing.T) {
	engine := newEngine(stubPromos{
		"BOGUS":   {Code: "BOGUS", Type: promo.Type("bogus"), Amount: dec("5"), ApplyOn: promo.ApplyOnOrder},
		"NOWHERE": {Code: "NOWHERE", Type: promo.TypeFlat, Amount: dec("5"), ApplyOn: promo.ApplyOn("tip")},
	})
	for _, code := range []string{"BOGUS", "NOWHERE"} {
		b, err := engine.Calculate(context.Background(), burgerCart(code))
		require.NoError(t, err)
		require.False(t, b.PromoResult.Valid, code)
		require.Equal(t, "Promo cannot be applied", b.PromoResult.ErrorMessage)
		requireAmount(t, "40.50", b.TotalAmount)
	}
}
