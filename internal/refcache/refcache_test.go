package refcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgallion1/reflinker/internal/matcher"
	"github.com/redis/go-redis/v9"
)

func setupTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(client, ttl)
	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})
	return c, mr
}

func TestCache_PutGet(t *testing.T) {
	c, _ := setupTestCache(t, time.Hour)
	ctx := context.Background()

	err := c.PutMany(ctx, map[string]matcher.RefData{
		"Genesis 1:1": {Ref: "Genesis 1:1", URL: "/Genesis.1.1", En: matcher.Segments{"In the beginning"}},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := c.GetMany(ctx, []string{"Genesis 1:1", "Exodus 2:3"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one hit, got %d", len(got))
	}
	rd := got["Genesis 1:1"]
	if rd.URL != "/Genesis.1.1" || len(rd.En) != 1 || rd.En[0] != "In the beginning" {
		t.Errorf("unexpected entry %+v", rd)
	}
}

func TestCache_Expires(t *testing.T) {
	c, mr := setupTestCache(t, time.Minute)
	ctx := context.Background()

	if err := c.PutMany(ctx, map[string]matcher.RefData{"Genesis 1:1": {Ref: "Genesis 1:1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ttl := mr.TTL(keyPrefix + "Genesis 1:1"); ttl != time.Minute {
		t.Errorf("expected ttl of a minute, got %v", ttl)
	}
	mr.FastForward(2 * time.Minute)

	got, err := c.GetMany(ctx, []string{"Genesis 1:1"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected entry to expire, got %v", got)
	}
}

func TestCache_SkipsCorruptEntries(t *testing.T) {
	c, mr := setupTestCache(t, 0)
	mr.Set(keyPrefix+"Genesis 1:1", "{not json")

	got, err := c.GetMany(context.Background(), []string{"Genesis 1:1"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected corrupt entry skipped, got %v", got)
	}
}

func TestCache_Ping(t *testing.T) {
	c, _ := setupTestCache(t, 0)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
