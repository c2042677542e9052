package internal

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %v: %v", redisAddr, err)
	}

	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestPresence(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	instanceID := ksuid.New().String()
	presence := NewPresence(testLogger(), rdb, instanceID)

	sub := rdb.Subscribe(ctx, presence.Channel())
	//goland:noinspection GoUnhandledErrorResult
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	relay := NewRelay(testLogger(), instanceID, presence)
	d := newFakeConn(ksuid.New().String())

	if err := presence.Join(ctx, d.ID()); err != nil {
		t.Fatal(err)
	}

	relay.Handle(ctx, d, "vibrator_device")

	role, err := rdb.HGet(ctx, PresenceKey(d.ID()), "role").Result()
	if err != nil {
		t.Fatal(err)
	}

	if role != "device" {
		t.Errorf("unexpected role %v", role)
	}

	ttl, err := rdb.TTL(ctx, PresenceKey(d.ID())).Result()
	if err != nil {
		t.Fatal(err)
	}

	if ttl <= 0 {
		t.Error("presence must expire")
	}

	if err := presence.Count(ctx, d.ID(), "recv"); err != nil {
		t.Fatal(err)
	}

	recv, err := rdb.HGet(ctx, PresenceKey(d.ID()), "recv").Result()
	if err != nil {
		t.Fatal(err)
	}

	if recv != "1" {
		t.Errorf("unexpected recv count %v", recv)
	}

	ch := sub.Channel()
	var types []EventType
	for len(types) < 2 {
		select {
		case msg := <-ch:
			event := Event{}
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				t.Fatal(err)
			}

			if event.Instance != instanceID || event.ID != d.ID() {
				t.Errorf("unexpected event %+v", event)
			}

			types = append(types, event.Type)
		case <-time.After(time.Second):
			t.Fatal("no event published")
		}
	}

	if types[0] != EventTypeRole || types[1] != EventTypeDeviceConnected {
		t.Errorf("unexpected events %v", types)
	}

	if err := presence.Leave(ctx, d.ID()); err != nil {
		t.Fatal(err)
	}

	if redis.Nil != rdb.HGet(ctx, PresenceKey(d.ID()), "role").Err() {
		t.Error("did not clean up connection")
	}
}
