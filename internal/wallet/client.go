package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/noah-isme/munchies-pricing/internal/resilience"
)

// Crediter posts a cashback credit to the customer's wallet.
type Crediter interface {
	Credit(ctx context.Context, p CashbackPayload) error
}

// Client credits wallets through POST {base}/wallets/{user}/credits.
type Client struct {
	HTTP         resilience.HTTPClient
	BaseURL      string
	TenantHeader string
}

type creditRequest struct {
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
	Reference   string `json:"reference"`
	OrderNumber string `json:"order_number,omitempty"`
	PromoCode   string `json:"promo_code,omitempty"`
}

func (c *Client) Credit(ctx context.Context, p CashbackPayload) error {
	if c == nil || c.BaseURL == "" {
		return errors.New("wallet client not configured")
	}
	headers := http.Header{}
	headers.Set("Idempotency-Key", "cashback:"+p.OrderID)
	if p.TenantID != "" && c.TenantHeader != "" {
		headers.Set(c.TenantHeader, p.TenantID)
	}
	endpoint := fmt.Sprintf("%s/wallets/%s/credits", strings.TrimRight(c.BaseURL, "/"), url.PathEscape(p.UserID))
	return c.HTTP.DoJSON(ctx, http.MethodPost, endpoint, headers, creditRequest{
		Amount:      p.Amount,
		Reason:      "promo_cashback",
		Reference:   p.OrderID,
		OrderNumber: p.OrderNumber,
		PromoCode:   p.PromoCode,
	}, nil)
}
