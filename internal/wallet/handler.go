package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/munchies-pricing/internal/obs"
	"github.com/noah-isme/munchies-pricing/internal/resilience"
)

// Handler processes cashback credit tasks on the worker.
type Handler struct {
	Wallet Crediter
	Logger zerolog.Logger
}

// ProcessTask implements asynq.Handler. Malformed payloads and client errors
// from the wallet service are not retried.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p CashbackPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		obs.RecordCashbackCredit("invalid")
		return fmt.Errorf("decode cashback payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := p.validate(); err != nil {
		obs.RecordCashbackCredit("invalid")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if h.Wallet == nil {
		return errors.New("wallet crediter not configured")
	}

	log := h.Logger.With().Str("order_id", p.OrderID).Str("user_id", p.UserID).Str("amount", p.Amount).Logger()
	if err := h.Wallet.Credit(ctx, p); err != nil {
		var status *resilience.StatusError
		if errors.As(err, &status) && status.StatusCode >= 400 && status.StatusCode < 500 && status.StatusCode != http.StatusConflict {
			obs.RecordCashbackCredit("rejected")
			log.Error().Err(err).Msg("cashback_credit_rejected")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if errors.As(err, &status) && status.StatusCode == http.StatusConflict {
			// the wallet already holds a credit with this idempotency key
			obs.RecordCashbackCredit("duplicate")
			return nil
		}
		obs.RecordCashbackCredit("retry")
		log.Warn().Err(err).Msg("cashback_credit_failed")
		return err
	}
	obs.RecordCashbackCredit("credited")
	log.Info().Msg("cashback_credited")
	return nil
}

// NewServeMux routes wallet task types to h.
func NewServeMux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeCashbackCredit, h)
	return mux
}
