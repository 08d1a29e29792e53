// ABOUTME: Test helper that starts a throwaway Redis testcontainer.
// ABOUTME: Use NewTestRedis(t) in integration tests that need a real queue backend.
package testutil

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// NewTestRedis starts a Redis testcontainer and returns a client bound to
// it. The container and client are cleaned up via t.Cleanup. Tests using it
// should be skipped in -short mode by the caller.
func NewTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := ctr.Terminate(ctx); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})

	uri, err := ctr.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse redis url %q: %v", uri, err)
	}

	client := goredis.NewClient(opts)
	t.Cleanup(func() {
		_ = client.Close() //nolint:errcheck
	})
	return client
}
