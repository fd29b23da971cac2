package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/munchies-pricing/internal/config"
	"github.com/noah-isme/munchies-pricing/internal/db"
	"github.com/noah-isme/munchies-pricing/internal/promo"
	"github.com/noah-isme/munchies-pricing/internal/tenant"
)

type areaSeed struct {
	Name          string
	Slug          string
	Charge        string
	FreeThreshold string
}

type promoSeed struct {
	Code         string
	Type         promo.Type
	Amount       string
	MaxDiscount  string
	MinOrder     string
	ApplyOn      promo.ApplyOn
	MaxUsage     int32
	PerUserLimit int32
	ValidFor     time.Duration
}

var areas = []areaSeed{
	{Name: "Gulshan", Slug: "gulshan", Charge: "60.00", FreeThreshold: "1500.00"},
	{Name: "Banani", Slug: "banani", Charge: "60.00", FreeThreshold: "1500.00"},
	{Name: "Dhanmondi", Slug: "dhanmondi", Charge: "50.00"},
	{Name: "Mirpur", Slug: "mirpur", Charge: "70.00"},
	{Name: "Uttara", Slug: "uttara", Charge: "80.00", FreeThreshold: "2000.00"},
}

var promos = []promoSeed{
	{Code: "WELCOME20", Type: promo.TypePercentage, Amount: "20", MaxDiscount: "150.00", MinOrder: "300.00", ApplyOn: promo.ApplyOnOrder, PerUserLimit: 1, ValidFor: 90 * 24 * time.Hour},
	{Code: "FLAT50", Type: promo.TypeFlat, Amount: "50.00", MinOrder: "250.00", ApplyOn: promo.ApplyOnOrder, MaxUsage: 500, ValidFor: 30 * 24 * time.Hour},
	{Code: "FREEDEL", Type: promo.TypePercentage, Amount: "100", ApplyOn: promo.ApplyOnDelivery, MaxUsage: 1000, ValidFor: 14 * 24 * time.Hour},
	{Code: "CASHBACK10", Type: promo.TypeCashback, Amount: "10", MaxDiscount: "100.00", MinOrder: "500.00", ApplyOn: promo.ApplyOnOrder, PerUserLimit: 3, ValidFor: 60 * 24 * time.Hour},
}

func main() {
	var (
		tenantSlug = flag.String("tenant", "", "tenant slug to seed; empty seeds the untenanted scope")
		skipPromos = flag.Bool("skip-promos", false, "seed delivery areas only")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	ctx = tenant.With(ctx, *tenantSlug)
	scope := tenant.Scope(ctx)
	q := db.New(pool)

	for i, a := range areas {
		err := q.UpsertDeliveryArea(ctx, db.UpsertDeliveryAreaParams{
			TenantID:              scope,
			Name:                  a.Name,
			Slug:                  a.Slug,
			DeliveryCharge:        a.Charge,
			FreeDeliveryThreshold: optionalText(a.FreeThreshold),
			SortOrder:             int32(i + 1),
		})
		if err != nil {
			log.Fatalf("seed area %s: %v", a.Slug, err)
		}
	}
	log.Printf("seeded %d delivery areas for tenant %q", len(areas), scope)

	if *skipPromos {
		return
	}
	now := time.Now().UTC()
	for _, p := range promos {
		err := q.UpsertPromo(ctx, db.UpsertPromoParams{
			TenantID:       scope,
			Code:           strings.ToUpper(p.Code),
			PromoType:      string(p.Type),
			Amount:         p.Amount,
			MaxDiscount:    optionalText(p.MaxDiscount),
			MinOrderAmount: optionalText(p.MinOrder),
			ApplyOn:        string(p.ApplyOn),
			MaxUsage:       optionalInt(p.MaxUsage),
			PerUserLimit:   optionalInt(p.PerUserLimit),
			StartsAt:       pgtype.Timestamptz{Time: now.Add(-time.Hour), Valid: true},
			EndsAt:         pgtype.Timestamptz{Time: now.Add(p.ValidFor), Valid: true},
		})
		if err != nil {
			log.Fatalf("seed promo %s: %v", p.Code, err)
		}
	}
	log.Printf("seeded %d promos for tenant %q", len(promos), scope)
}

func optionalText(v string) pgtype.Text {
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

func optionalInt(v int32) pgtype.Int4 {
	if v <= 0 {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: v, Valid: true}
}
