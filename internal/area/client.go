package area

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/munchies-pricing/internal/resilience"
	"github.com/noah-isme/munchies-pricing/internal/tenant"
)

// Client reads the fee schedule from the backend's GET /areas endpoint.
type Client struct {
	HTTP         resilience.HTTPClient
	BaseURL      string
	TenantHeader string
}

func (c *Client) List(ctx context.Context) ([]Area, error) {
	if c == nil || c.BaseURL == "" {
		return nil, errors.New("area client not configured")
	}
	headers := http.Header{}
	if id := tenant.Scope(ctx); id != "" && c.TenantHeader != "" {
		headers.Set(c.TenantHeader, id)
	}
	var areas []Area
	url := strings.TrimRight(c.BaseURL, "/") + "/areas"
	if err := c.HTTP.DoJSON(ctx, http.MethodGet, url, headers, nil, &areas); err != nil {
		return nil, err
	}
	return areas, nil
}

func (c *Client) Get(ctx context.Context, slug string) (Area, error) {
	areas, err := c.List(ctx)
	if err != nil {
		return Area{}, err
	}
	return findBySlug(areas, slug)
}
