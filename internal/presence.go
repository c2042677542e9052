package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"
)

const presenceTTL = 90 * time.Second

// Tracker mirrors connection bookkeeping somewhere outside the process.
type Tracker interface {
	Join(ctx context.Context, id string) error
	Count(ctx context.Context, id, field string) error
	Touch(ctx context.Context, id string) error
	Leave(ctx context.Context, id string) error
}

type nopTracker struct{}

func (nopTracker) Join(context.Context, string) error          { return nil }
func (nopTracker) Count(context.Context, string, string) error { return nil }
func (nopTracker) Touch(context.Context, string) error         { return nil }
func (nopTracker) Leave(context.Context, string) error         { return nil }

// Presence keeps a short lived hash per connection in redis and publishes
// relay events on the instance channel. Nothing here outlives the TTL.
type Presence struct {
	rdb        *redis.Client
	logger     *slog.Logger
	instanceID string
	ttl        time.Duration
}

func NewPresence(logger *slog.Logger, rdb *redis.Client, instanceID string) *Presence {
	return &Presence{
		rdb:        rdb,
		logger:     logger,
		instanceID: instanceID,
		ttl:        presenceTTL,
	}
}

func PresenceKey(id string) string {
	return fmt.Sprintf("relay:conn:%v", id)
}

func (p *Presence) Channel() string {
	return fmt.Sprintf("relay:%v", p.instanceID)
}

func (p *Presence) Join(ctx context.Context, id string) error {
	rid := PresenceKey(id)
	data := map[string]string{
		"inst": p.instanceID,
		"role": RoleUnassigned.String(),
		"join": strconv.Itoa(int(time.Now().Unix())),
		"recv": "0",
		"sent": "0",
	}

	if err := p.rdb.HSet(ctx, rid, data).Err(); err != nil {
		return err
	}

	return p.rdb.Expire(ctx, rid, p.ttl).Err()
}

func (p *Presence) Count(ctx context.Context, id, field string) error {
	return p.rdb.HIncrBy(ctx, PresenceKey(id), field, 1).Err()
}

func (p *Presence) Touch(ctx context.Context, id string) error {
	return p.rdb.Expire(ctx, PresenceKey(id), p.ttl).Err()
}

func (p *Presence) Leave(ctx context.Context, id string) error {
	return p.rdb.Del(ctx, PresenceKey(id)).Err()
}

func (p *Presence) Observe(ctx context.Context, event Event) {
	log := p.logger.With(slog.String("id", event.ID), slog.String("event", string(event.Type)))

	if event.Type == EventTypeRole {
		if err := p.rdb.HSet(ctx, PresenceKey(event.ID), "role", event.Role).Err(); err != nil {
			log.Error("failed to record role", err)
		}
	}

	b, err := json.Marshal(event)
	if err != nil {
		log.Error("failed to marshal event", err)
		return
	}

	if err := p.rdb.Publish(ctx, p.Channel(), string(b)).Err(); err != nil {
		log.Error("failed to publish event", err)
	}
}
