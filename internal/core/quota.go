package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aicaas.com/chatbot-backend/internal/apperr"
	"aicaas.com/chatbot-backend/internal/store"
)

const dateLayout = "2006-01-02"

// planLimits is requests per UTC day. Unknown plans get the free limit.
var planLimits = map[string]int{
	store.PlanFree: 10,
	store.PlanPro:  1000,
}

// EffectivePlan treats a lapsed pro subscription as free.
func EffectivePlan(user *store.User, now time.Time) string {
	if user.PlanType == store.PlanPro && user.ProExpiresAt != nil && !now.Before(*user.ProExpiresAt) {
		return store.PlanFree
	}
	return user.PlanType
}

func DailyLimit(plan string) int {
	if limit, ok := planLimits[plan]; ok {
		return limit
	}
	return planLimits[store.PlanFree]
}

// UsedToday is the counter as it reads after the lazy midnight reset.
func UsedToday(user *store.User, now time.Time) int {
	if user.LastRequestDate < now.UTC().Format(dateLayout) {
		return 0
	}
	return user.DailyRequestsCount
}

type QuotaEnforcer struct {
	db  *store.SQLiteStore
	now func() time.Time
}

func NewQuotaEnforcer(db *store.SQLiteStore, now func() time.Time) *QuotaEnforcer {
	if now == nil {
		now = time.Now
	}
	return &QuotaEnforcer{db: db, now: now}
}

// CheckAndConsume counts one request against today's quota in a single
// conditional update, so concurrent requests can never overrun the limit.
// It returns the refreshed user and the requests left today.
func (q *QuotaEnforcer) CheckAndConsume(ctx context.Context, userID string) (*store.User, int, error) {
	now := q.now().UTC()
	today := now.Format(dateLayout)

	// A second attempt covers a plan change between the read and the update.
	for attempt := 0; attempt < 2; attempt++ {
		user, err := q.loadUser(ctx, userID)
		if err != nil {
			return nil, 0, err
		}
		limit := DailyLimit(EffectivePlan(user, now))
		ok, err := q.db.ConsumeDailyRequest(ctx, userID, user.PlanType, today, limit)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			user, err = q.loadUser(ctx, userID)
			if err != nil {
				return nil, 0, err
			}
			return user, max(limit-user.DailyRequestsCount, 0), nil
		}

		current, err := q.loadUser(ctx, userID)
		if err != nil {
			return nil, 0, err
		}
		if current.PlanType == user.PlanType {
			return nil, 0, apperr.QuotaExceeded(limit)
		}
	}
	return nil, 0, apperr.QuotaExceeded(DailyLimit(store.PlanFree))
}

func (q *QuotaEnforcer) loadUser(ctx context.Context, userID string) (*store.User, error) {
	user, err := q.db.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user for quota: %w", err)
	}
	return user, nil
}
