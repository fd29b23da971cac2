package order

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/munchies-pricing/internal/db"
	"github.com/noah-isme/munchies-pricing/internal/pricing"
	"github.com/noah-isme/munchies-pricing/internal/promo"
	"github.com/noah-isme/munchies-pricing/internal/tenant"
)

const (
	StatusPending         = "pending"
	StatusAwaitingPayment = "awaiting_payment"
	StatusPaid            = "paid"
	StatusDelivered       = "delivered"
)

var (
	// ErrNotFound is returned when no order matches the id for the caller.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned when the order is missing or its current
	// status cannot move to the requested one.
	ErrInvalidTransition = errors.New("order status transition not allowed")
)

// transitions lists the statuses an order may leave for each target.
var transitions = map[string][]string{
	StatusPaid:      {StatusAwaitingPayment},
	StatusDelivered: {StatusPending, StatusPaid},
}

// Querier captures the statements run inside the order transaction.
type Querier interface {
	ReservePromoUsage(ctx context.Context, id pgtype.UUID) (int64, error)
	CountPromoUsageByUser(ctx context.Context, arg db.CountPromoUsageByUserParams) (int64, error)
	CreateOrder(ctx context.Context, arg db.CreateOrderParams) (db.Order, error)
	InsertPromoUsage(ctx context.Context, arg db.InsertPromoUsageParams) error
	GetOrderSnapshot(ctx context.Context, arg db.GetOrderSnapshotParams) (db.OrderSnapshotRow, error)
	TransitionOrderStatus(ctx context.Context, arg db.TransitionOrderStatusParams) (db.OrderTransitionRow, error)
}

// Pool is satisfied by *pgxpool.Pool.
type Pool interface {
	db.DBTX
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// NewOrder is a confirmed checkout ready to be persisted.
type NewOrder struct {
	UserID        string
	PaymentMethod string
	Status        string
	// PromoID is set when the snapshot carries an accepted promo.
	PromoID string
	// PerUserLimit caps how many orders UserID may place with PromoID. Zero disables it.
	PerUserLimit int
	Snapshot     pricing.OrderSnapshot
}

// Record is the persisted order header.
type Record struct {
	ID          string          `json:"id"`
	Number      string          `json:"order_number"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Store persists order snapshots. Promo usage is reserved in the same
// transaction so concurrent checkouts cannot exceed max_usage.
type Store struct {
	Pool Pool
	// Queries binds statements to a transaction or the pool. Defaults to db.New.
	Queries func(db.DBTX) Querier
	Now     func() time.Time
}

// Create writes the order and, when a promo applies, its usage row.
// It returns promo.ErrUsageLimitReached when the promo ran out in the meantime
// and promo.ErrPerUserLimitReached when the user used up their allowance.
func (s *Store) Create(ctx context.Context, in NewOrder) (Record, error) {
	if s == nil || s.Pool == nil {
		return Record{}, errors.New("order store not configured")
	}
	if !in.Snapshot.Verify() {
		return Record{}, errors.New("order snapshot fingerprint mismatch")
	}
	payload, err := json.Marshal(in.Snapshot)
	if err != nil {
		return Record{}, fmt.Errorf("encode snapshot: %w", err)
	}

	var promoID pgtype.UUID
	if in.PromoID != "" {
		if promoID, err = promo.ParseUUID(in.PromoID); err != nil {
			return Record{}, fmt.Errorf("invalid promo id: %w", err)
		}
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Record{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	qtx := s.queries(tx)

	if promoID.Valid {
		n, err := qtx.ReservePromoUsage(ctx, promoID)
		if err != nil {
			return Record{}, err
		}
		if n == 0 {
			return Record{}, promo.ErrUsageLimitReached
		}
		if in.PerUserLimit > 0 {
			used, err := qtx.CountPromoUsageByUser(ctx, db.CountPromoUsageByUserParams{PromoID: promoID, UserID: in.UserID})
			if err != nil {
				return Record{}, err
			}
			if used >= int64(in.PerUserLimit) {
				return Record{}, promo.ErrPerUserLimitReached
			}
		}
	}

	number, err := NewNumber(s.now())
	if err != nil {
		return Record{}, err
	}
	status := in.Status
	if status == "" {
		status = StatusPending
	}
	b := in.Snapshot.Breakdown
	row, err := qtx.CreateOrder(ctx, db.CreateOrderParams{
		TenantID:       tenant.Scope(ctx),
		OrderNumber:    number,
		UserID:         in.UserID,
		Status:         status,
		PaymentMethod:  in.PaymentMethod,
		DeliveryArea:   in.Snapshot.DeliveryArea,
		PromoCode:      nullableText(in.Snapshot.PromoCode),
		Subtotal:       money(b.Subtotal),
		DiscountTotal:  money(b.ItemDiscountTotal.Add(b.PromoDiscountTotal)),
		VatTotal:       money(b.VatTotal),
		DeliveryCharge: money(b.DeliveryCharge),
		ServiceFee:     money(b.ServiceFee),
		TotalAmount:    money(b.TotalAmount),
		CashbackAmount: money(b.CashbackAmount),
		Snapshot:       payload,
		Fingerprint:    in.Snapshot.Fingerprint,
	})
	if err != nil {
		return Record{}, err
	}

	if promoID.Valid {
		if err := qtx.InsertPromoUsage(ctx, db.InsertPromoUsageParams{
			PromoID:        promoID,
			UserID:         in.UserID,
			OrderID:        row.ID,
			DiscountAmount: money(b.PromoDiscountTotal),
		}); err != nil {
			return Record{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return toRecord(row)
}

// Snapshot loads the frozen calculation of an order placed by userID.
func (s *Store) Snapshot(ctx context.Context, orderID, userID string) (Record, pricing.OrderSnapshot, error) {
	if s == nil || s.Pool == nil {
		return Record{}, pricing.OrderSnapshot{}, errors.New("order store not configured")
	}
	id, err := promo.ParseUUID(orderID)
	if err != nil {
		return Record{}, pricing.OrderSnapshot{}, ErrNotFound
	}
	row, err := s.queries(s.Pool).GetOrderSnapshot(ctx, db.GetOrderSnapshotParams{
		TenantID: tenant.Scope(ctx),
		ID:       id,
		UserID:   userID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, pricing.OrderSnapshot{}, ErrNotFound
		}
		return Record{}, pricing.OrderSnapshot{}, err
	}
	var snap pricing.OrderSnapshot
	if err := json.Unmarshal(row.Snapshot, &snap); err != nil {
		return Record{}, pricing.OrderSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	rec, err := toRecord(row.Order)
	return rec, snap, err
}

// Transition is an order whose status changed, with what a settlement needs.
type Transition struct {
	Record
	UserID         string
	PromoCode      string
	CashbackAmount decimal.Decimal
}

// Transition moves an order of the tenant in context to status. Only
// awaiting_payment -> paid and pending|paid -> delivered are allowed.
func (s *Store) Transition(ctx context.Context, orderID, status string) (Transition, error) {
	if s == nil || s.Pool == nil {
		return Transition{}, errors.New("order store not configured")
	}
	from, ok := transitions[status]
	if !ok {
		return Transition{}, ErrInvalidTransition
	}
	id, err := promo.ParseUUID(orderID)
	if err != nil {
		return Transition{}, ErrNotFound
	}
	row, err := s.queries(s.Pool).TransitionOrderStatus(ctx, db.TransitionOrderStatusParams{
		TenantID: tenant.Scope(ctx),
		ID:       id,
		Status:   status,
		From:     from,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transition{}, ErrInvalidTransition
		}
		return Transition{}, err
	}
	rec, err := toRecord(row.Order)
	if err != nil {
		return Transition{}, err
	}
	cashback := decimal.Zero
	if row.CashbackAmount != "" {
		if cashback, err = decimal.NewFromString(row.CashbackAmount); err != nil {
			return Transition{}, fmt.Errorf("order %s cashback: %w", row.Order.OrderNumber, err)
		}
	}
	return Transition{
		Record:         rec,
		UserID:         row.UserID,
		PromoCode:      row.PromoCode.String,
		CashbackAmount: cashback,
	}, nil
}

func (s *Store) queries(d db.DBTX) Querier {
	if s.Queries != nil {
		return s.Queries(d)
	}
	return db.New(d)
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

const numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewNumber formats a customer-facing order number as MUN-YYYYMMDD-XXXXXX.
func NewNumber(now time.Time) (string, error) {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(numberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("order number: %w", err)
		}
		suffix[i] = numberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("MUN-%s-%s", now.UTC().Format("20060102"), suffix), nil
}

func toRecord(row db.Order) (Record, error) {
	total, err := decimal.NewFromString(row.TotalAmount)
	if err != nil {
		return Record{}, fmt.Errorf("order %s total: %w", row.OrderNumber, err)
	}
	rec := Record{
		ID:          promo.UUIDString(row.ID),
		Number:      row.OrderNumber,
		Status:      row.Status,
		TotalAmount: total,
	}
	if row.CreatedAt.Valid {
		rec.CreatedAt = row.CreatedAt.Time.UTC()
	}
	return rec, nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(pricing.MoneyPlaces)
}

func nullableText(v string) pgtype.Text {
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}
