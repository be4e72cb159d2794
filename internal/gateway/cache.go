package gateway

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallparish/offertory/internal/gateway/domain"
	"go.uber.org/zap"
)

const subscriptionTTL = 45 * time.Second

// CachedReader fronts the gateway read API with a short-lived redis cache so
// bursts of invoice events for the same subscription hit the gateway once.
// With no redis client it degrades to a pass-through.
type CachedReader struct {
	inner  domain.Reader
	client *redis.Client
	log    *zap.Logger
}

func NewCachedReader(inner domain.Reader, client *redis.Client, log *zap.Logger) *CachedReader {
	return &CachedReader{
		inner:  inner,
		client: client,
		log:    log.Named("gateway.cache"),
	}
}

func (r *CachedReader) RetrieveSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	if r.client == nil {
		return r.inner.RetrieveSubscription(ctx, id)
	}

	key := "offertory:subscription:" + id
	if cached, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var sub domain.Subscription
		if err := json.Unmarshal(cached, &sub); err == nil {
			return &sub, nil
		}
	}

	sub, err := r.inner.RetrieveSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(sub); err == nil {
		if err := r.client.Set(ctx, key, encoded, subscriptionTTL).Err(); err != nil {
			r.log.Warn("subscription cache write failed", zap.String("subscription_id", id), zap.Error(err))
		}
	}
	return sub, nil
}
