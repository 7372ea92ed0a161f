package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/sells-group/regintel/internal/model"
)

// Redis publishes each event on the channel "<prefix>:<report id>" so
// clients can subscribe to a single report.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis creates a Redis pub/sub notifier.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "regintel:reports"
	}
	return &Redis{client: client, prefix: prefix}
}

// Channel returns the channel events for reportID are published on.
func (r *Redis) Channel(reportID string) string {
	return r.prefix + ":" + reportID
}

func (r *Redis) Progress(ctx context.Context, ev model.ProgressEvent) error {
	return r.publish(ctx, progressEnvelope(ev))
}

func (r *Redis) Complete(ctx context.Context, s model.CompletionSummary) error {
	return r.publish(ctx, completeEnvelope(s))
}

func (r *Redis) Error(ctx context.Context, reportID, message string) error {
	return r.publish(ctx, errorEnvelope(reportID, message))
}

func (r *Redis) publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return eris.Wrap(err, "notify: marshal redis payload")
	}
	if err := r.client.Publish(ctx, r.Channel(env.ReportID), payload).Err(); err != nil {
		return eris.Wrapf(err, "notify: publish %s", env.Kind)
	}
	return nil
}
