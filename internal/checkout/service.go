package checkout

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/munchies-pricing/internal/lock"
	"github.com/noah-isme/munchies-pricing/internal/obs"
	"github.com/noah-isme/munchies-pricing/internal/order"
	"github.com/noah-isme/munchies-pricing/internal/pricing"
	"github.com/noah-isme/munchies-pricing/internal/promo"
	"github.com/noah-isme/munchies-pricing/internal/tenant"
	"github.com/noah-isme/munchies-pricing/internal/wallet"
)

// Calculator is satisfied by *pricing.Engine.
type Calculator interface {
	Calculate(ctx context.Context, req pricing.ChargeRequest) (pricing.ChargeBreakdown, error)
}

// PromoGate enforces the per-user allowance of a promo code.
type PromoGate interface {
	CheckUserAllowance(ctx context.Context, code, userID string) (promo.Record, error)
}

// OrderStore persists confirmed orders and records their settlement.
type OrderStore interface {
	Create(ctx context.Context, in order.NewOrder) (order.Record, error)
	Transition(ctx context.Context, orderID, status string) (order.Transition, error)
}

// Locker runs fn while holding key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// CashbackEnqueuer schedules the wallet credit of a cashback promo.
type CashbackEnqueuer interface {
	EnqueueCashback(ctx context.Context, p wallet.CashbackPayload) error
}

// onlinePaymentMethods need the customer to be redirected to a payment page.
var onlinePaymentMethods = map[string]bool{
	"bkash":    true,
	"aamarpay": true,
	"card":     true,
}

type Service struct {
	Pricing  Calculator
	Promos   PromoGate
	Orders   OrderStore
	Locks    Locker
	LockTTL  time.Duration
	// Cashback credits wallets once an order is delivered. Nil disables wallet credit.
	Cashback CashbackEnqueuer
	// PaymentBaseURL is the redirect target for online payment methods.
	PaymentBaseURL string
	Logger         zerolog.Logger
}

// Input is a validated order placement.
type Input struct {
	UserID        string
	PaymentMethod string
	Charge        pricing.ChargeRequest
}

// Output is returned to the client after an order is placed.
type Output struct {
	Order      order.Record
	Snapshot   pricing.OrderSnapshot
	PaymentURL string
}

// Calculate prices a cart without side effects.
func (s *Service) Calculate(ctx context.Context, req pricing.ChargeRequest) (pricing.ChargeBreakdown, error) {
	if s == nil || s.Pricing == nil {
		return pricing.ChargeBreakdown{}, errors.New("pricing engine not configured")
	}
	b, err := s.Pricing.Calculate(ctx, req)
	obs.RecordChargeCalculation(calculationResult(err))
	if err != nil {
		return pricing.ChargeBreakdown{}, err
	}
	if strings.TrimSpace(req.PromoCode) != "" {
		obs.RecordPromoEvaluation(promoOutcome(b.PromoResult))
	}
	return b, nil
}

// PlaceOrder computes the charges once, freezes them into a snapshot and
// persists the order. The persisted amounts are the ones the payment uses.
// With an accepted promo the per-user allowance check and the insert run
// under the promo lock, so two orders of one user cannot both pass the check.
func (s *Service) PlaceOrder(ctx context.Context, in Input) (Output, error) {
	if s == nil || s.Orders == nil {
		return Output{}, errors.New("order store not configured")
	}
	b, err := s.Calculate(ctx, in.Charge)
	if err != nil {
		obs.RecordOrderCreated("rejected")
		return Output{}, err
	}

	var out Output
	place := func(ctx context.Context) error {
		var err error
		out, err = s.place(ctx, in, b)
		return err
	}
	if b.PromoResult.Valid && s.Locks != nil {
		err = s.Locks.WithLock(ctx, lock.PromoKey(ctx, b.PromoResult.Code), s.LockTTL, place)
	} else {
		err = place(ctx)
	}
	if err != nil {
		switch {
		case errors.Is(err, promo.ErrUsageLimitReached):
			obs.RecordOrderCreated("promo_exhausted")
		case errors.Is(err, promo.ErrPerUserLimitReached):
			obs.RecordOrderCreated("per_user_limit")
		default:
			obs.RecordOrderCreated("error")
		}
		return Output{}, err
	}
	obs.RecordOrderCreated("created")
	return out, nil
}

func (s *Service) place(ctx context.Context, in Input, b pricing.ChargeBreakdown) (Output, error) {
	req := in.Charge
	var (
		promoID string
		limit   int
		err     error
	)
	if b.PromoResult.Valid {
		promoID, limit, req, b, err = s.applyUserAllowance(ctx, in.UserID, req, b)
		if err != nil {
			return Output{}, err
		}
	}

	snap, err := pricing.CreateOrderSnapshot(req, b)
	if err != nil {
		return Output{}, err
	}

	status := order.StatusPending
	if onlinePaymentMethods[in.PaymentMethod] {
		status = order.StatusAwaitingPayment
	}
	rec, err := s.Orders.Create(ctx, order.NewOrder{
		UserID:        in.UserID,
		PaymentMethod: in.PaymentMethod,
		Status:        status,
		PromoID:       promoID,
		PerUserLimit:  limit,
		Snapshot:      snap,
	})
	if err != nil {
		return Output{}, err
	}
	return Output{
		Order:      rec,
		Snapshot:   snap,
		PaymentURL: s.paymentURL(in.PaymentMethod, rec),
	}, nil
}

// UpdateStatus records a payment or delivery of an order. Cashback of a
// delivered order is queued for the wallet; unpaid orders never earn it.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (order.Transition, error) {
	if s == nil || s.Orders == nil {
		return order.Transition{}, errors.New("order store not configured")
	}
	t, err := s.Orders.Transition(ctx, orderID, status)
	if err != nil {
		return order.Transition{}, err
	}
	if t.Status == order.StatusDelivered {
		s.enqueueCashback(ctx, t)
	}
	return t, nil
}

// applyUserAllowance checks that the caller may redeem an accepted promo and
// returns its id and effective per-user limit. When the caller is not
// eligible or has used it up the order is priced again without the code.
func (s *Service) applyUserAllowance(ctx context.Context, userID string, req pricing.ChargeRequest, b pricing.ChargeBreakdown) (string, int, pricing.ChargeRequest, pricing.ChargeBreakdown, error) {
	if s.Promos == nil {
		return "", 0, req, b, errors.New("promo service not configured")
	}
	rec, err := s.Promos.CheckUserAllowance(ctx, b.PromoResult.Code, userID)
	switch {
	case err == nil:
		limit := 0
		if rec.PerUserLimit != nil {
			limit = *rec.PerUserLimit
		}
		return rec.ID, limit, req, b, nil
	case errors.Is(err, promo.ErrPerUserLimitReached), errors.Is(err, promo.ErrUserNotEligible):
		code := b.PromoResult.Code
		withoutCode := req
		withoutCode.PromoCode = ""
		withoutCode.PromoTargetBase = nil
		plain, calcErr := s.Calculate(ctx, withoutCode)
		if calcErr != nil {
			return "", 0, req, b, calcErr
		}
		outcome := "per_user_limit"
		if errors.Is(err, promo.ErrUserNotEligible) {
			outcome = "user_not_eligible"
		}
		obs.RecordPromoEvaluation(outcome)
		s.Logger.Info().Str("code", code).Str("user_id", userID).Str("reason", outcome).Msg("promo_dropped_for_user")
		return "", 0, withoutCode, plain.WithPromoResult(pricing.PromoResult{
			Valid:          false,
			DiscountAmount: decimal.Zero,
			Code:           code,
			ErrorMessage:   promo.Message(err),
		}), nil
	default:
		return "", 0, req, b, &pricing.LookupFailedError{Collaborator: "promo", Key: b.PromoResult.Code, Err: err}
	}
}

func (s *Service) enqueueCashback(ctx context.Context, t order.Transition) {
	if !t.CashbackAmount.IsPositive() || s.Cashback == nil {
		return
	}
	err := s.Cashback.EnqueueCashback(ctx, wallet.CashbackPayload{
		TenantID:    tenant.Scope(ctx),
		UserID:      t.UserID,
		OrderID:     t.ID,
		OrderNumber: t.Number,
		PromoCode:   t.PromoCode,
		Amount:      pricing.FormatMoney(t.CashbackAmount),
	})
	if err != nil {
		obs.RecordCashbackCredit("enqueue_failed")
		s.Logger.Error().Err(err).Str("order_id", t.ID).Msg("cashback_enqueue_failed")
		return
	}
	obs.RecordCashbackCredit("enqueued")
}

func (s *Service) paymentURL(method string, rec order.Record) string {
	if !onlinePaymentMethods[method] || s.PaymentBaseURL == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimRight(s.PaymentBaseURL, "/") + "/" + url.PathEscape(method) + "/" + url.PathEscape(rec.ID))
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("order_number", rec.Number)
	q.Set("amount", pricing.FormatMoney(rec.TotalAmount))
	u.RawQuery = q.Encode()
	return u.String()
}

func calculationResult(err error) string {
	var verr *pricing.ValidationError
	var aerr *pricing.UnknownAreaError
	var lerr *pricing.LookupFailedError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid_request"
	case errors.As(err, &aerr):
		return "unknown_area"
	case errors.As(err, &lerr):
		return "lookup_failed"
	default:
		return "error"
	}
}

func promoOutcome(r pricing.PromoResult) string {
	if r.Valid {
		return "applied"
	}
	switch r.ErrorMessage {
	case promo.Message(promo.ErrNotFound):
		return "not_found"
	case promo.Message(promo.ErrExpired), promo.Message(promo.ErrNotYetActive):
		return "outside_window"
	case promo.Message(promo.ErrUsageLimitReached):
		return "exhausted"
	case promo.Message(promo.ErrMinimumOrderUnmet):
		return "min_order_unmet"
	case promo.Message(promo.ErrRestaurantRestricted), promo.Message(promo.ErrCategoryRestricted):
		return "cart_restricted"
	default:
		return "rejected"
	}
}
