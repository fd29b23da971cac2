package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// New wraps db with the typed query set.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries holds the hand-written statements used by the stores. Numeric
// columns travel as text so callers can parse them into decimals without loss.
type Queries struct {
	db DBTX
}

// WithTx returns a copy bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

type DeliveryArea struct {
	ID                    pgtype.UUID
	TenantID              string
	Name                  string
	Slug                  string
	DeliveryCharge        string
	FreeDeliveryThreshold pgtype.Text
	IsActive              bool
	SortOrder             int32
}

type Promo struct {
	ID              pgtype.UUID
	TenantID        string
	Code            string
	PromoType       string
	Amount          string
	MaxDiscount     pgtype.Text
	MinOrderAmount  pgtype.Text
	ApplyOn         string
	MaxUsage        pgtype.Int4
	UsageCount      int32
	PerUserLimit    pgtype.Int4
	ProductIds      []string
	CategoryIds     []string
	RestaurantIds   []string
	EligibleUserIds []string
	StartsAt        pgtype.Timestamptz
	EndsAt          pgtype.Timestamptz
	IsActive        bool
}

type Order struct {
	ID          pgtype.UUID
	OrderNumber string
	Status      string
	TotalAmount string
	CreatedAt   pgtype.Timestamptz
}
