package promo

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// Reader is the subset of Store the service depends on.
type Reader interface {
	GetByCode(ctx context.Context, code string) (Record, error)
	CountUserUsage(ctx context.Context, promoID, userID string) (int64, error)
}

// Service exposes promo records to the pricing engine and enforces the
// per-user allowance for callers that know who is ordering.
type Service struct {
	Store  Reader
	Logger zerolog.Logger
	// DefaultPerUserLimit applies when a promo has no explicit per-user limit. Zero disables it.
	DefaultPerUserLimit int
}

// LookupPromo resolves a code for the pricing engine.
func (s *Service) LookupPromo(ctx context.Context, code string) (Record, error) {
	if s == nil || s.Store == nil {
		return Record{}, errors.New("promo service not configured")
	}
	rec, err := s.Store.GetByCode(ctx, code)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.Logger.Warn().Err(err).Str("code", Normalize(code)).Msg("promo_lookup_failed")
	}
	return rec, err
}

// CheckUserAllowance loads the promo and checks that userID may redeem it:
// ErrUserNotEligible when the promo is limited to other users,
// ErrPerUserLimitReached when the caller has used it as often as allowed.
// The returned record carries the effective per-user limit so the order
// transaction can enforce it again. Anonymous callers are not limited.
func (s *Service) CheckUserAllowance(ctx context.Context, code, userID string) (Record, error) {
	rec, err := s.LookupPromo(ctx, code)
	if err != nil {
		return Record{}, err
	}
	if !rec.EligibleFor(userID) {
		return rec, ErrUserNotEligible
	}
	limit := s.effectiveLimit(rec)
	if limit <= 0 || strings.TrimSpace(userID) == "" {
		return rec, nil
	}
	rec.PerUserLimit = &limit
	used, err := s.Store.CountUserUsage(ctx, rec.ID, userID)
	if err != nil {
		return Record{}, err
	}
	if used >= int64(limit) {
		return rec, ErrPerUserLimitReached
	}
	return rec, nil
}

func (s *Service) effectiveLimit(rec Record) int {
	if rec.PerUserLimit != nil && *rec.PerUserLimit > 0 {
		return *rec.PerUserLimit
	}
	return s.DefaultPerUserLimit
}
