package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRedisLocker(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	locker := NewRedisLocker(client, time.Minute)
	key := "saved_search:" + uuid.NewString()

	release, ok, err := locker.Acquire(ctx, key)
	if err != nil || !ok {
		t.Fatalf("first acquire should succeed, ok=%v err=%v", ok, err)
	}

	if _, ok, err := locker.Acquire(ctx, key); err != nil || ok {
		t.Fatalf("second acquire should be refused, ok=%v err=%v", ok, err)
	}

	release()

	release2, ok, err := locker.Acquire(ctx, key)
	if err != nil || !ok {
		t.Fatalf("acquire after release should succeed, ok=%v err=%v", ok, err)
	}
	release2()
}
