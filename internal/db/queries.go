package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getPromoByCode = `
SELECT id, tenant_id, code, promo_type, amount::text, max_discount::text, min_order_amount::text,
       apply_on, max_usage, usage_count, per_user_limit, product_ids, category_ids, restaurant_ids,
       eligible_user_ids, starts_at, ends_at, is_active
FROM promos
WHERE tenant_id = $1 AND UPPER(code) = $2 AND is_active
LIMIT 1`

type GetPromoByCodeParams struct {
	TenantID string
	Code     string
}

func (q *Queries) GetPromoByCode(ctx context.Context, arg GetPromoByCodeParams) (Promo, error) {
	row := q.db.QueryRow(ctx, getPromoByCode, arg.TenantID, arg.Code)
	var i Promo
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.Code,
		&i.PromoType,
		&i.Amount,
		&i.MaxDiscount,
		&i.MinOrderAmount,
		&i.ApplyOn,
		&i.MaxUsage,
		&i.UsageCount,
		&i.PerUserLimit,
		&i.ProductIds,
		&i.CategoryIds,
		&i.RestaurantIds,
		&i.EligibleUserIds,
		&i.StartsAt,
		&i.EndsAt,
		&i.IsActive,
	)
	return i, err
}

// CountPromoUsageByUser also runs inside the order transaction after
// ReservePromoUsage, whose row lock orders concurrent checkouts of one promo.
const countPromoUsageByUser = `
SELECT COUNT(*) FROM promo_usages WHERE promo_id = $1 AND user_id = $2`

type CountPromoUsageByUserParams struct {
	PromoID pgtype.UUID
	UserID  string
}

func (q *Queries) CountPromoUsageByUser(ctx context.Context, arg CountPromoUsageByUserParams) (int64, error) {
	row := q.db.QueryRow(ctx, countPromoUsageByUser, arg.PromoID, arg.UserID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const reservePromoUsage = `
UPDATE promos
SET usage_count = usage_count + 1, updated_at = NOW()
WHERE id = $1 AND (max_usage IS NULL OR usage_count < max_usage)`

// ReservePromoUsage increments the usage counter while it is below the cap and
// reports how many rows changed.
func (q *Queries) ReservePromoUsage(ctx context.Context, id pgtype.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, reservePromoUsage, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertPromoUsage = `
INSERT INTO promo_usages (promo_id, user_id, order_id, discount_amount)
VALUES ($1, $2, $3, $4::numeric)`

type InsertPromoUsageParams struct {
	PromoID        pgtype.UUID
	UserID         string
	OrderID        pgtype.UUID
	DiscountAmount string
}

func (q *Queries) InsertPromoUsage(ctx context.Context, arg InsertPromoUsageParams) error {
	_, err := q.db.Exec(ctx, insertPromoUsage, arg.PromoID, arg.UserID, arg.OrderID, arg.DiscountAmount)
	return err
}

const getDeliveryAreaBySlug = `
SELECT id, tenant_id, name, slug, delivery_charge::text, free_delivery_threshold::text, is_active, sort_order
FROM delivery_areas
WHERE tenant_id = $1 AND slug = $2 AND is_active
LIMIT 1`

type GetDeliveryAreaBySlugParams struct {
	TenantID string
	Slug     string
}

func (q *Queries) GetDeliveryAreaBySlug(ctx context.Context, arg GetDeliveryAreaBySlugParams) (DeliveryArea, error) {
	row := q.db.QueryRow(ctx, getDeliveryAreaBySlug, arg.TenantID, arg.Slug)
	var i DeliveryArea
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.Name,
		&i.Slug,
		&i.DeliveryCharge,
		&i.FreeDeliveryThreshold,
		&i.IsActive,
		&i.SortOrder,
	)
	return i, err
}

const listDeliveryAreas = `
SELECT id, tenant_id, name, slug, delivery_charge::text, free_delivery_threshold::text, is_active, sort_order
FROM delivery_areas
WHERE tenant_id = $1 AND is_active
ORDER BY sort_order, name`

func (q *Queries) ListDeliveryAreas(ctx context.Context, tenantID string) ([]DeliveryArea, error) {
	rows, err := q.db.Query(ctx, listDeliveryAreas, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DeliveryArea
	for rows.Next() {
		var i DeliveryArea
		if err := rows.Scan(
			&i.ID,
			&i.TenantID,
			&i.Name,
			&i.Slug,
			&i.DeliveryCharge,
			&i.FreeDeliveryThreshold,
			&i.IsActive,
			&i.SortOrder,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createOrder = `
INSERT INTO orders (
    tenant_id, order_number, user_id, status, payment_method, delivery_area, promo_code,
    subtotal, discount_total, vat_total, delivery_charge, service_fee, total_amount, cashback_amount,
    snapshot, fingerprint
) VALUES (
    $1, $2, $3, $4, $5, $6, $7,
    $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12::numeric, $13::numeric, $14::numeric,
    $15, $16
)
RETURNING id, order_number, status, total_amount::text, created_at`

type CreateOrderParams struct {
	TenantID       string
	OrderNumber    string
	UserID         string
	Status         string
	PaymentMethod  string
	DeliveryArea   string
	PromoCode      pgtype.Text
	Subtotal       string
	DiscountTotal  string
	VatTotal       string
	DeliveryCharge string
	ServiceFee     string
	TotalAmount    string
	CashbackAmount string
	Snapshot       []byte
	Fingerprint    string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.TenantID,
		arg.OrderNumber,
		arg.UserID,
		arg.Status,
		arg.PaymentMethod,
		arg.DeliveryArea,
		arg.PromoCode,
		arg.Subtotal,
		arg.DiscountTotal,
		arg.VatTotal,
		arg.DeliveryCharge,
		arg.ServiceFee,
		arg.TotalAmount,
		arg.CashbackAmount,
		arg.Snapshot,
		arg.Fingerprint,
	)
	var i Order
	err := row.Scan(&i.ID, &i.OrderNumber, &i.Status, &i.TotalAmount, &i.CreatedAt)
	return i, err
}

const upsertDeliveryArea = `
INSERT INTO delivery_areas (tenant_id, name, slug, delivery_charge, free_delivery_threshold, sort_order)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6)
ON CONFLICT (tenant_id, slug) DO UPDATE
SET name = EXCLUDED.name,
    delivery_charge = EXCLUDED.delivery_charge,
    free_delivery_threshold = EXCLUDED.free_delivery_threshold,
    sort_order = EXCLUDED.sort_order,
    is_active = TRUE,
    updated_at = NOW()`

type UpsertDeliveryAreaParams struct {
	TenantID              string
	Name                  string
	Slug                  string
	DeliveryCharge        string
	FreeDeliveryThreshold pgtype.Text
	SortOrder             int32
}

func (q *Queries) UpsertDeliveryArea(ctx context.Context, arg UpsertDeliveryAreaParams) error {
	_, err := q.db.Exec(ctx, upsertDeliveryArea,
		arg.TenantID, arg.Name, arg.Slug, arg.DeliveryCharge, arg.FreeDeliveryThreshold, arg.SortOrder)
	return err
}

const upsertPromo = `
INSERT INTO promos (
    tenant_id, code, promo_type, amount, max_discount, min_order_amount, apply_on,
    max_usage, per_user_limit, starts_at, ends_at
) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9, $10, $11)
ON CONFLICT (tenant_id, code) DO UPDATE
SET promo_type = EXCLUDED.promo_type,
    amount = EXCLUDED.amount,
    max_discount = EXCLUDED.max_discount,
    min_order_amount = EXCLUDED.min_order_amount,
    apply_on = EXCLUDED.apply_on,
    max_usage = EXCLUDED.max_usage,
    per_user_limit = EXCLUDED.per_user_limit,
    starts_at = EXCLUDED.starts_at,
    ends_at = EXCLUDED.ends_at,
    is_active = TRUE,
    updated_at = NOW()`

type UpsertPromoParams struct {
	TenantID       string
	Code           string
	PromoType      string
	Amount         string
	MaxDiscount    pgtype.Text
	MinOrderAmount pgtype.Text
	ApplyOn        string
	MaxUsage       pgtype.Int4
	PerUserLimit   pgtype.Int4
	StartsAt       pgtype.Timestamptz
	EndsAt         pgtype.Timestamptz
}

func (q *Queries) UpsertPromo(ctx context.Context, arg UpsertPromoParams) error {
	_, err := q.db.Exec(ctx, upsertPromo,
		arg.TenantID,
		arg.Code,
		arg.PromoType,
		arg.Amount,
		arg.MaxDiscount,
		arg.MinOrderAmount,
		arg.ApplyOn,
		arg.MaxUsage,
		arg.PerUserLimit,
		arg.StartsAt,
		arg.EndsAt,
	)
	return err
}

const getOrderSnapshot = `
SELECT id, order_number, status, total_amount::text, created_at, snapshot
FROM orders
WHERE tenant_id = $1 AND id = $2 AND user_id = $3`

type GetOrderSnapshotParams struct {
	TenantID string
	ID       pgtype.UUID
	UserID   string
}

type OrderSnapshotRow struct {
	Order    Order
	Snapshot []byte
}

func (q *Queries) GetOrderSnapshot(ctx context.Context, arg GetOrderSnapshotParams) (OrderSnapshotRow, error) {
	row := q.db.QueryRow(ctx, getOrderSnapshot, arg.TenantID, arg.ID, arg.UserID)
	var i OrderSnapshotRow
	err := row.Scan(
		&i.Order.ID,
		&i.Order.OrderNumber,
		&i.Order.Status,
		&i.Order.TotalAmount,
		&i.Order.CreatedAt,
		&i.Snapshot,
	)
	return i, err
}

const transitionOrderStatus = `
UPDATE orders
SET status = $3
WHERE tenant_id = $1 AND id = $2 AND status = ANY($4::text[])
RETURNING id, order_number, status, total_amount::text, created_at, user_id, promo_code, cashback_amount::text`

type TransitionOrderStatusParams struct {
	TenantID string
	ID       pgtype.UUID
	Status   string
	From     []string
}

type OrderTransitionRow struct {
	Order          Order
	UserID         string
	PromoCode      pgtype.Text
	CashbackAmount string
}

// TransitionOrderStatus moves an order to Status when it is currently in one of From.
func (q *Queries) TransitionOrderStatus(ctx context.Context, arg TransitionOrderStatusParams) (OrderTransitionRow, error) {
	row := q.db.QueryRow(ctx, transitionOrderStatus, arg.TenantID, arg.ID, arg.Status, arg.From)
	var i OrderTransitionRow
	err := row.Scan(
		&i.Order.ID,
		&i.Order.OrderNumber,
		&i.Order.Status,
		&i.Order.TotalAmount,
		&i.Order.CreatedAt,
		&i.UserID,
		&i.PromoCode,
		&i.CashbackAmount,
	)
	return i, err
}
