package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisStateStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStateStore(client, time.Hour)
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "conv-1"); err != nil || ok {
		t.Fatalf("expected empty load, ok=%v err=%v", ok, err)
	}

	rec := StateRecord{State: StateConfirmed, SummaryMessageID: "m3", ConfirmationMessageID: "m4"}
	if err := store.Save(ctx, "conv-1", rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(ctx, "conv-1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.State != StateConfirmed || got.ConfirmationMessageID != "m4" || got.UpdatedAt.IsZero() {
		t.Fatalf("unexpected record %+v", got)
	}

	if ttl := mr.TTL(stateKey("conv-1")); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if _, ok, _ := store.Load(ctx, "conv-1"); ok {
		t.Fatal("expected state to expire")
	}
}

func TestRedisStateStoreRejectsCorruptPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := mr.Set(stateKey("conv-2"), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := NewRedisStateStore(client, 0).Load(context.Background(), "conv-2"); err == nil {
		t.Fatal("expected decode error")
	}
}
