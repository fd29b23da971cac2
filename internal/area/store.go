package area

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/munchies-pricing/internal/db"
	"github.com/noah-isme/munchies-pricing/internal/pricing"
	"github.com/noah-isme/munchies-pricing/internal/tenant"
)

// Area is one entry of the delivery fee schedule.
type Area struct {
	ID                    string           `json:"id"`
	Name                  string           `json:"name"`
	Slug                  string           `json:"slug"`
	DeliveryCharge        decimal.Decimal  `json:"delivery_charge"`
	FreeDeliveryThreshold *decimal.Decimal `json:"free_delivery_threshold,omitempty"`
}

// Source lists active areas and resolves one by slug. Get returns
// pricing.ErrAreaNotFound for unknown or inactive slugs.
type Source interface {
	List(ctx context.Context) ([]Area, error)
	Get(ctx context.Context, slug string) (Area, error)
}

// Querier captures the database methods required by Store.
type Querier interface {
	GetDeliveryAreaBySlug(ctx context.Context, arg db.GetDeliveryAreaBySlugParams) (db.DeliveryArea, error)
	ListDeliveryAreas(ctx context.Context, tenantID string) ([]db.DeliveryArea, error)
}

// Store reads the fee schedule from Postgres.
type Store struct {
	Q Querier
}

func (s *Store) List(ctx context.Context) ([]Area, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("area store not configured")
	}
	rows, err := s.Q.ListDeliveryAreas(ctx, tenant.Scope(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]Area, 0, len(rows))
	for _, row := range rows {
		a, err := fromModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, slug string) (Area, error) {
	if s == nil || s.Q == nil {
		return Area{}, errors.New("area store not configured")
	}
	row, err := s.Q.GetDeliveryAreaBySlug(ctx, db.GetDeliveryAreaBySlugParams{
		TenantID: tenant.Scope(ctx),
		Slug:     pricing.NormalizeArea(slug),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Area{}, pricing.ErrAreaNotFound
		}
		return Area{}, err
	}
	return fromModel(row)
}

func fromModel(row db.DeliveryArea) (Area, error) {
	charge, err := decimal.NewFromString(row.DeliveryCharge)
	if err != nil {
		return Area{}, fmt.Errorf("area %s delivery_charge: %w", row.Slug, err)
	}
	a := Area{
		ID:             uuidString(row.ID.Bytes, row.ID.Valid),
		Name:           row.Name,
		Slug:           row.Slug,
		DeliveryCharge: charge,
	}
	if row.FreeDeliveryThreshold.Valid {
		threshold, err := decimal.NewFromString(row.FreeDeliveryThreshold.String)
		if err != nil {
			return Area{}, fmt.Errorf("area %s free_delivery_threshold: %w", row.Slug, err)
		}
		a.FreeDeliveryThreshold = &threshold
	}
	return a, nil
}

// FeeLookup adapts a Source to the pricing engine.
type FeeLookup struct {
	Source Source
}

// LookupAreaFee implements pricing.AreaFeeLookup.
func (l FeeLookup) LookupAreaFee(ctx context.Context, slug string) (pricing.AreaFee, error) {
	if l.Source == nil {
		return pricing.AreaFee{}, errors.New("area source not configured")
	}
	a, err := l.Source.Get(ctx, slug)
	if err != nil {
		return pricing.AreaFee{}, err
	}
	return pricing.AreaFee{Charge: a.DeliveryCharge, FreeDeliveryThreshold: a.FreeDeliveryThreshold}, nil
}

func findBySlug(areas []Area, slug string) (Area, error) {
	slug = pricing.NormalizeArea(slug)
	for _, a := range areas {
		if pricing.NormalizeArea(a.Slug) == slug {
			return a, nil
		}
	}
	return Area{}, pricing.ErrAreaNotFound
}

func uuidString(b [16]byte, valid bool) string {
	if !valid {
		return ""
	}
	return uuid.UUID(b).String()
}
