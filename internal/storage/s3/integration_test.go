//go:build integration

package s3

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/sqlchat/sqlchat/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := os.Getenv("SQLCHAT_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("SQLCHAT_TEST_S3_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, Config{
		Endpoint:         endpoint,
		Region:           "us-east-1",
		Bucket:           "sqlchat-it",
		AccessKeyID:      "minio",
		SecretAccessKey:  "miniostorage",
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "cache/" + time.Now().UTC().Format("20060102T150405.000000000") + ".json"
	if err := store.Put(ctx, key, []byte(`{"entries":{}}`), "application/json"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	body, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != `{"entries":{}}` {
		t.Fatalf("body = %q", body)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() after delete error = %v", err)
	}
}
