package area_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/munchies-pricing/internal/area"
	"github.com/noah-isme/munchies-pricing/internal/db"
	"github.com/noah-isme/munchies-pricing/internal/pricing"
	"github.com/noah-isme/munchies-pricing/internal/resilience"
	"github.com/noah-isme/munchies-pricing/internal/tenant"
)

type fakeQueries struct {
	rows       []db.DeliveryArea
	lastTenant string
}

func (f *fakeQueries) GetDeliveryAreaBySlug(ctx context.Context, arg db.GetDeliveryAreaBySlugParams) (db.DeliveryArea, error) {
	f.lastTenant = arg.TenantID
	for _, row := range f.rows {
		if row.Slug == arg.Slug {
			return row, nil
		}
	}
	return db.DeliveryArea{}, pgx.ErrNoRows
}

func (f *fakeQueries) ListDeliveryAreas(ctx context.Context, tenantID string) ([]db.DeliveryArea, error) {
	f.lastTenant = tenantID
	return f.rows, nil
}

func sampleRows() []db.DeliveryArea {
	return []db.DeliveryArea{
		{
			ID:             pgtype.UUID{Bytes: uuid.New(), Valid: true},
			Name:           "Gulshan",
			Slug:           "gulshan",
			DeliveryCharge: "3.00",
			IsActive:       true,
		},
		{
			ID:                    pgtype.UUID{Bytes: uuid.New(), Valid: true},
			Name:                  "Banani",
			Slug:                  "banani",
			DeliveryCharge:        "4.50",
			FreeDeliveryThreshold: pgtype.Text{String: "50.00", Valid: true},
			IsActive:              true,
		},
	}
}

type countingSource struct {
	areas []area.Area
	calls int
	err   error
}

func (c *countingSource) List(ctx context.Context) ([]area.Area, error) {
	c.calls++
	return c.areas, c.err
}

func (c *countingSource) Get(ctx context.Context, slug string) (area.Area, error) {
	return area.Area{}, errors.New("not used")
}

func TestStoreLookupAreaFee(t *testing.T) {
	q := &fakeQueries{rows: sampleRows()}
	lookup := area.FeeLookup{Source: &area.Store{Q: q}}
	ctx := tenant.With(context.Background(), "dhaka")

	fee, err := lookup.LookupAreaFee(ctx, " Banani ")
	require.NoError(t, err)
	require.Equal(t, "dhaka", q.lastTenant)
	require.True(t, fee.Charge.Equal(decimal.RequireFromString("4.50")))
	require.NotNil(t, fee.FreeDeliveryThreshold)
	require.True(t, fee.FreeDeliveryThreshold.Equal(decimal.NewFromInt(50)))

	_, err = lookup.LookupAreaFee(ctx, "atlantis")
	require.ErrorIs(t, err, pricing.ErrAreaNotFound)
}

func TestCachedServesFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	src := &countingSource{areas: []area.Area{{ID: "a1", Name: "Gulshan", Slug: "gulshan", DeliveryCharge: decimal.RequireFromString("3.00")}}}
	cached := &area.Cached{Source: src, Redis: rdb, TTL: time.Minute}
	ctx := tenant.With(context.Background(), "dhaka")

	first, err := cached.Get(ctx, "gulshan")
	require.NoError(t, err)
	second, err := cached.Get(ctx, "GULSHAN")
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)
	require.True(t, first.DeliveryCharge.Equal(second.DeliveryCharge))
	require.True(t, mr.Exists("dhaka:areas:v1"))

	_, err = cached.Get(ctx, "atlantis")
	require.ErrorIs(t, err, pricing.ErrAreaNotFound)

	require.NoError(t, cached.Invalidate(ctx))
	_, err = cached.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestCachedFallsThroughWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	src := &countingSource{areas: []area.Area{{Slug: "gulshan"}}}
	cached := &area.Cached{Source: src, Redis: rdb, TTL: time.Minute}
	areas, err := cached.List(context.Background())
	require.NoError(t, err)
	require.Len(t, areas, 1)
}

func TestClientListsRemoteAreas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/areas" || r.Header.Get("X-Tenant-ID") != "dhaka" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a1","name":"Gulshan","slug":"gulshan","delivery_charge":"3.00"},
			{"id":"a2","name":"Banani","slug":"banani","delivery_charge":4.5,"free_delivery_threshold":"50"}]`))
	}))
	defer srv.Close()

	client := &area.Client{
		HTTP:         resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1},
		BaseURL:      srv.URL + "/",
		TenantHeader: "X-Tenant-ID",
	}
	ctx := tenant.With(context.Background(), "dhaka")

	got, err := client.Get(ctx, "banani")
	require.NoError(t, err)
	require.True(t, got.DeliveryCharge.Equal(decimal.RequireFromString("4.5")))
	require.NotNil(t, got.FreeDeliveryThreshold)

	_, err = client.Get(ctx, "uttara")
	require.ErrorIs(t, err, pricing.ErrAreaNotFound)
}

func TestHandlerListReturnsOptions(t *testing.T) {
	h := &area.Handler{Source: &area.Store{Q: &fakeQueries{rows: sampleRows()}}}
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/areas", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, "gulshan", body.Data[0]["slug"])
	require.NotContains(t, body.Data[0], "delivery_charge")
}

func TestHandlerListUnavailable(t *testing.T) {
	h := &area.Handler{Source: &countingSource{err: errors.New("boom")}}
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/areas", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
