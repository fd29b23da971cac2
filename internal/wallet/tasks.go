package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// TypeCashbackCredit is the asynq task type crediting promo cashback to a wallet.
const TypeCashbackCredit = "wallet:cashback_credit"

// CashbackPayload is the task body. Amount is a decimal string.
type CashbackPayload struct {
	TenantID    string `json:"tenant_id,omitempty"`
	UserID      string `json:"user_id"`
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	PromoCode   string `json:"promo_code,omitempty"`
	Amount      string `json:"amount"`
}

func (p CashbackPayload) validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return errors.New("cashback: user_id is required")
	}
	if strings.TrimSpace(p.OrderID) == "" {
		return errors.New("cashback: order_id is required")
	}
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return fmt.Errorf("cashback: amount: %w", err)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("cashback: amount %s must be positive", p.Amount)
	}
	return nil
}

// NewCashbackTask builds the task. Its id is derived from the order so an
// order is credited at most once even if enqueued twice.
func NewCashbackTask(p CashbackPayload, opts ...asynq.Option) (*asynq.Task, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	base := []asynq.Option{
		asynq.TaskID("cashback:" + p.OrderID),
		asynq.MaxRetry(12),
		asynq.Timeout(30 * time.Second),
		asynq.Retention(72 * time.Hour),
	}
	return asynq.NewTask(TypeCashbackCredit, data, append(base, opts...)...), nil
}

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules cashback credits on the worker queue.
type Enqueuer struct {
	Client TaskEnqueuer
	Queue  string
}

// EnqueueCashback schedules the credit. A task already queued for the same
// order is treated as success.
func (e *Enqueuer) EnqueueCashback(ctx context.Context, p CashbackPayload) error {
	if e == nil || e.Client == nil {
		return errors.New("cashback enqueuer not configured")
	}
	var opts []asynq.Option
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	task, err := NewCashbackTask(p, opts...)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue cashback for order %s: %w", p.OrderID, err)
	}
	return nil
}
