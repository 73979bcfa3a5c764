package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard отбрасывает повторно присланные конверты.
type ReplayGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReplayGuard(client *redis.Client, ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{client: client, ttl: ttl}
}

// Seen отмечает id и сообщает, встречался ли он раньше.
func (g *ReplayGuard) Seen(ctx context.Context, id string) (bool, error) {
	ok, err := g.client.SetNX(ctx, "envelope:"+id, 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
