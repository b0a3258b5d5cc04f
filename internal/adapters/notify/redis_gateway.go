package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/example/escalator/internal/ports/secondary"
)

// DefaultStream is the Redis stream delivery workers consume from.
const DefaultStream = "escalator:notifications"

// RedisGateway publishes notification requests onto a Redis stream.
// The stream entry ID is the attempt ID.
type RedisGateway struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisClient connects to Redis at addr.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

// NewRedisGateway creates a gateway writing to stream. maxLen caps the stream
// approximately; zero leaves it unbounded.
func NewRedisGateway(client redis.Cmdable, stream string, maxLen int64) *RedisGateway {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisGateway{client: client, stream: stream, maxLen: maxLen}
}

// Send appends the request to the stream.
func (g *RedisGateway) Send(ctx context.Context, req secondary.NotificationRequest) (string, error) {
	args := &redis.XAddArgs{
		Stream: g.stream,
		Values: streamValues(req),
	}
	if g.maxLen > 0 {
		args.MaxLen = g.maxLen
		args.Approx = true
	}

	id, err := g.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish notification %s: %w", req.NotificationID, err)
	}
	return id, nil
}

func streamValues(req secondary.NotificationRequest) map[string]any {
	return map[string]any{
		"notification_id": req.NotificationID,
		"tenant_id":       req.TenantID,
		"case_id":         req.CaseID,
		"level":           strconv.Itoa(req.Level),
		"recipient_id":    req.RecipientID,
		"method":          req.Method,
	}
}

var _ secondary.NotificationGateway = (*RedisGateway)(nil)
