package promo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/munchies-pricing/internal/db"
	"github.com/noah-isme/munchies-pricing/internal/tenant"
)

// Querier captures the database methods required by the promo store.
type Querier interface {
	GetPromoByCode(ctx context.Context, arg db.GetPromoByCodeParams) (db.Promo, error)
	CountPromoUsageByUser(ctx context.Context, arg db.CountPromoUsageByUserParams) (int64, error)
}

// Store reads promos scoped to the tenant in context.
type Store struct {
	Q Querier
}

// GetByCode loads an active promo by its normalised code.
func (s *Store) GetByCode(ctx context.Context, code string) (Record, error) {
	if s == nil || s.Q == nil {
		return Record{}, errors.New("promo store not configured")
	}
	row, err := s.Q.GetPromoByCode(ctx, db.GetPromoByCodeParams{
		TenantID: tenant.Scope(ctx),
		Code:     Normalize(code),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return RecordFromModel(row)
}

// CountUserUsage returns how many orders the user has placed with the promo.
func (s *Store) CountUserUsage(ctx context.Context, promoID, userID string) (int64, error) {
	if s == nil || s.Q == nil {
		return 0, errors.New("promo store not configured")
	}
	pid, err := ParseUUID(promoID)
	if err != nil {
		return 0, fmt.Errorf("invalid promo id: %w", err)
	}
	return s.Q.CountPromoUsageByUser(ctx, db.CountPromoUsageByUserParams{PromoID: pid, UserID: userID})
}

// RecordFromModel converts a stored row into a Record used for evaluation.
func RecordFromModel(p db.Promo) (Record, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return Record{}, fmt.Errorf("promo %s amount: %w", p.Code, err)
	}
	rec := Record{
		ID:              UUIDString(p.ID),
		Code:            Normalize(p.Code),
		Type:            Type(p.PromoType),
		Amount:          amount,
		UsageCount:      int(p.UsageCount),
		ApplyOn:         ApplyOn(p.ApplyOn),
		ProductIDs:      p.ProductIds,
		CategoryIDs:     p.CategoryIds,
		RestaurantIDs:   p.RestaurantIds,
		EligibleUserIDs: p.EligibleUserIds,
	}
	if rec.Cap, err = nullableDecimal(p.MaxDiscount); err != nil {
		return Record{}, fmt.Errorf("promo %s max_discount: %w", p.Code, err)
	}
	if rec.MinOrderAmount, err = nullableDecimal(p.MinOrderAmount); err != nil {
		return Record{}, fmt.Errorf("promo %s min_order_amount: %w", p.Code, err)
	}
	if p.StartsAt.Valid {
		rec.StartsAt = p.StartsAt.Time.UTC()
	}
	if p.EndsAt.Valid {
		rec.EndsAt = p.EndsAt.Time.UTC()
	}
	rec.MaxUsage = nullableInt(p.MaxUsage)
	rec.PerUserLimit = nullableInt(p.PerUserLimit)
	return rec, nil
}

func nullableDecimal(v pgtype.Text) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullableInt(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	val := int(v.Int32)
	return &val
}

// ParseUUID converts a textual id into its pgtype form.
func ParseUUID(value string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(value)
	if err != nil {
		return pgtype.UUID{}, err
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

// UUIDString renders a pgtype UUID, or "" when it is NULL.
func UUIDString(id pgtype.UUID) string {
	if !id.Valid {
		return ""
	}
	return uuid.UUID(id.Bytes).String()
}
