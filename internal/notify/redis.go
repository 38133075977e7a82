package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisSender publishes each notification as JSON on the "user:{id}" channel.
type RedisSender struct {
	rdb *redis.Client
}

// NewRedisSender publishes through rdb.
func NewRedisSender(rdb *redis.Client) *RedisSender {
	return &RedisSender{rdb: rdb}
}

// Channel returns the Pub/Sub channel for a user.
func Channel(userID string) string {
	return "user:" + userID
}

// Send publishes n to its user's channel.
func (s *RedisSender) Send(ctx context.Context, n Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, Channel(n.UserID), b).Err()
}
