package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	defer c.Close()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss")
	}
	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, ok := c.Get(ctx, "k")
	if !ok || string(b) != "v" {
		t.Fatalf("get: %q %v", b, ok)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	defer c.Close()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected expiry")
	}
}

func TestNew_FallsBackToMemory(t *testing.T) {
	c := New(Config{Kind: "whatever"})
	defer c.Close()
	if _, ok := c.(*memory); !ok {
		t.Fatalf("expected memory backend, got %T", c)
	}
}
