package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ChargeCalculationsTotal counts charge calculations by result.
	ChargeCalculationsTotal *prometheus.CounterVec
	// PromoEvaluationsTotal counts promo code evaluations by outcome.
	PromoEvaluationsTotal *prometheus.CounterVec
	// OrdersCreatedTotal counts order placements by result.
	OrdersCreatedTotal *prometheus.CounterVec
	// CashbackCreditsTotal counts wallet cashback credit attempts by result.
	CashbackCreditsTotal *prometheus.CounterVec
	// RateLimitedTotal counts requests rejected by a named rate limit.
	RateLimitedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ChargeCalculationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charge_calculations_total",
			Help:      "Count of charge calculations by result.",
		}, []string{"result"}))
		PromoEvaluationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_evaluations_total",
			Help:      "Count of promo code evaluations by outcome.",
		}, []string{"outcome"}))
		OrdersCreatedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Count of order placements by result.",
		}, []string{"result"}))
		CashbackCreditsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cashback_credits_total",
			Help:      "Count of wallet cashback credits by result.",
		}, []string{"result"}))
		RateLimitedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by rate limiting.",
		}, []string{"limit"}))
	})
}

// RecordChargeCalculation is a no-op until MustRegisterDomainMetrics ran.
func RecordChargeCalculation(result string) {
	if ChargeCalculationsTotal != nil {
		ChargeCalculationsTotal.WithLabelValues(result).Inc()
	}
}

func RecordPromoEvaluation(outcome string) {
	if PromoEvaluationsTotal != nil {
		PromoEvaluationsTotal.WithLabelValues(outcome).Inc()
	}
}

func RecordOrderCreated(result string) {
	if OrdersCreatedTotal != nil {
		OrdersCreatedTotal.WithLabelValues(result).Inc()
	}
}

func RecordCashbackCredit(result string) {
	if CashbackCreditsTotal != nil {
		CashbackCreditsTotal.WithLabelValues(result).Inc()
	}
}

func RecordRateLimited(limit string) {
	if RateLimitedTotal == nil {
		return
	}
	if limit == "" {
		limit = "default"
	}
	RateLimitedTotal.WithLabelValues(limit).Inc()
}
