package main

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

func TestTLSStorage(t *testing.T) {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable at %v: %v", redisAddr, err)
	}

	s := newStorage(rdb)

	root := "test-" + ksuid.New().String()
	domain := root + "/certificates/example.com"
	key := []byte("key value")

	if err := s.Lock(ctx, domain); err != nil {
		t.Fatalf("failed to lock %v", err)
	}

	if err := s.Unlock(ctx, domain); err != nil {
		t.Fatalf("failed to unlock %v", err)
	}

	if err := s.Unlock(ctx, domain); err == nil {
		t.Fatal("unlocking twice should fail")
	}

	if s.Exists(ctx, domain) {
		t.Fatal("key should not exist yet")
	}

	if _, err := s.Load(ctx, domain); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}

	if _, err := s.Stat(ctx, domain); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}

	if err := s.Store(ctx, domain, key); err != nil {
		t.Fatalf("failed to store %v", err)
	}

	if !s.Exists(ctx, domain) {
		t.Fatal("stored key does not exist")
	}

	b, err := s.Load(ctx, domain)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(b, key) {
		t.Fatalf("keys not equal")
	}

	info, err := s.Stat(ctx, domain)
	if err != nil {
		t.Fatal(err)
	}

	if info.Size != int64(len(key)) || !info.IsTerminal || info.Key != domain {
		t.Errorf("unexpected key info %+v", info)
	}

	keys, err := s.List(ctx, root, false)
	if err != nil {
		t.Fatal(err)
	}

	if len(keys) != 1 || keys[0] != root+"/certificates" {
		t.Errorf("unexpected listing %v", keys)
	}

	keys, err = s.List(ctx, root, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(keys) != 1 || keys[0] != domain {
		t.Errorf("unexpected recursive listing %v", keys)
	}

	if err := s.Delete(ctx, root); err != nil {
		t.Fatal(err)
	}

	if s.Exists(ctx, domain) {
		t.Error("delete did not remove children")
	}
}
