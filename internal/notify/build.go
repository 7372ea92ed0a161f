package notify

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sells-group/regintel/internal/config"
	"github.com/sells-group/regintel/internal/resilience"
)

// FromConfig assembles the notifier chain: the log channel always, plus the
// webhook and Redis channels when configured. Webhook delivery runs off the
// caller's path. The returned close function flushes pending webhook events
// and releases the Redis connection.
func FromConfig(cfg *config.Config) (Notifier, func() error) {
	chain := Multi{Log{}}
	var closers []func() error

	if cfg.Webhook.URL != "" {
		async := NewAsync(NewWebhook(
			cfg.Webhook.URL,
			time.Duration(cfg.Webhook.TimeoutSecs)*time.Second,
			resilience.PolicyFromConfig(cfg.Resilience, "webhook", "notify"),
		), cfg.Webhook.QueueSize, time.Duration(cfg.Webhook.DeliveryTimeoutSecs)*time.Second)
		chain = append(chain, async)
		closers = append(closers, async.Close)
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		chain = append(chain, NewRedis(client, cfg.Redis.ChannelPrefix))
		closers = append(closers, client.Close)
	}
	return chain, func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
}
