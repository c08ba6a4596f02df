package notifier

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier implements Notifier using a Redis stream
type RedisNotifier struct {
	client          *redis.Client
	ctx             context.Context
	stream          string
	streamMaxLength int
}

// NewRedisNotifier creates a new Redis notifier
func NewRedisNotifier(ctx context.Context, addr string, db int, stream string, streamMaxLength int) *RedisNotifier {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisNotifier{
		client:          client,
		ctx:             ctx,
		stream:          stream,
		streamMaxLength: streamMaxLength,
	}
}

// Notify publishes a run summary to the Redis stream
// The summary is JSON encoded and then base64 encoded before publishing
func (n *RedisNotifier) Notify(summary Summary) error {
	message, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	encodedMessage := base64.StdEncoding.EncodeToString(message)

	return n.client.XAdd(n.ctx, &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]interface{}{
			"b64_summary": encodedMessage,
		},
	}).Err()
}

// TrimStream trims the stream to the configured maximum length
func (n *RedisNotifier) TrimStream() error {
	return n.client.XTrimMaxLen(n.ctx, n.stream, int64(n.streamMaxLength)).Err()
}

// Close closes the Redis connection
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
