package repository

import (
	"autorag-api/internal/models"
	apperrors "autorag-api/internal/pkg/errors"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	subscriptionKeyPrefix = "subscription:"
	defaultMaxRetries     = 10
)

type SubscriptionRepository interface {
	Get(ctx context.Context, userID string) (*models.Subscription, error)
	Save(ctx context.Context, subscription *models.Subscription) error
	IncrementUsage(ctx context.Context, userID string, now time.Time) (*models.Subscription, error)
	RenewIfDue(ctx context.Context, userID string, now time.Time) (*models.Subscription, bool, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.Subscription, error)
}

var (
	ErrSubscriptionNotFound = fmt.Errorf("subscription %w", apperrors.ErrNotFound)
	ErrConcurrentUpdate     = errors.New("subscription changed concurrently")
)

type subscriptionRepository struct {
	client     *redis.Client
	maxRetries int
}

type SubscriptionRepositoryOption func(*subscriptionRepository)

func WithMaxRetries(n int) SubscriptionRepositoryOption {
	return func(r *subscriptionRepository) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

func NewSubscriptionRepository(client *redis.Client, opts ...SubscriptionRepositoryOption) SubscriptionRepository {
	r := &subscriptionRepository{
		client:     client,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func subscriptionKey(userID string) string {
	return subscriptionKeyPrefix + userID
}

// Get returns nil, nil when the user has no stored subscription.
func (r *subscriptionRepository) Get(ctx context.Context, userID string) (*models.Subscription, error) {
	raw, err := r.client.Get(ctx, subscriptionKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", userID, err)
	}
	return decodeSubscription(raw)
}

func (r *subscriptionRepository) Save(ctx context.Context, subscription *models.Subscription) error {
	payload, err := json.Marshal(subscription)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	if err := r.client.Set(ctx, subscriptionKey(subscription.UserID), payload, 0).Err(); err != nil {
		return fmt.Errorf("save subscription %s: %w", subscription.UserID, err)
	}
	subscription.Persisted = true
	return nil
}

// IncrementUsage adds one query to the stored record with an optimistic
// WATCH/MULTI loop, creating the default basic record on first use.
func (r *subscriptionRepository) IncrementUsage(ctx context.Context, userID string, now time.Time) (*models.Subscription, error) {
	sub, _, err := r.update(ctx, userID, func(sub *models.Subscription) (*models.Subscription, bool, error) {
		if sub == nil {
			sub = models.NewDefaultSubscription(userID, now)
		}
		sub.UsedQueries++
		return sub, true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("increment usage %s: %w", userID, err)
	}
	return sub, nil
}

// RenewIfDue resets usage on the stored record when its billing window has
// ended. The due check runs against the current record inside the
// transaction, so a record renewed or changed since it was listed is not
// overwritten. The bool reports whether a renewal was written.
func (r *subscriptionRepository) RenewIfDue(ctx context.Context, userID string, now time.Time) (*models.Subscription, bool, error) {
	return r.update(ctx, userID, func(sub *models.Subscription) (*models.Subscription, bool, error) {
		if sub == nil {
			return nil, false, ErrSubscriptionNotFound
		}
		if !sub.BillingDue(now) {
			return sub, false, nil
		}
		sub.Renew(now)
		return sub, true, nil
	})
}

// update applies fn to the current record under WATCH and writes the result
// when fn asks for it. fn receives nil when the key is absent.
func (r *subscriptionRepository) update(
	ctx context.Context,
	userID string,
	fn func(*models.Subscription) (*models.Subscription, bool, error),
) (*models.Subscription, bool, error) {
	key := subscriptionKey(userID)
	var result *models.Subscription
	var written bool

	txf := func(tx *redis.Tx) error {
		var current *models.Subscription
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decodeSubscription(raw); err != nil {
				return err
			}
		}

		sub, write, err := fn(current)
		if err != nil {
			return err
		}
		if !write {
			result, written = sub, false
			return nil
		}

		payload, err := json.Marshal(sub)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			sub.Persisted = true
			result, written = sub, true
		}
		return err
	}

	for i := 0; i < r.maxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, written, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, false, err
	}
	return nil, false, ErrConcurrentUpdate
}

// ListDue returns the subscriptions whose billing window has ended.
func (r *subscriptionRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var due []*models.Subscription

	iter := r.client.Scan(ctx, 0, subscriptionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sub, err := decodeSubscription(raw)
		if err != nil {
			return nil, err
		}
		if sub.BillingDue(now) {
			due = append(due, sub)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return due, nil
}

func decodeSubscription(raw []byte) (*models.Subscription, error) {
	var sub models.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	sub.Persisted = true
	return &sub, nil
}
