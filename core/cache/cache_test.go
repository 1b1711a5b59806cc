package cache

import "testing"

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[string, int](Config{MaxSize: 2})
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts "a"

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be evicted")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("expected b=2, got %v %v", v, ok)
	}
	if stats := c.Stats(); stats.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestLRUCacheGetPromotesRecency(t *testing.T) {
	c := NewLRUCache[string, int](Config{MaxSize: 2})
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // a is now most-recently-used
	c.Put("c", 3) // should evict b, not a

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to survive")
	}
}

func TestTranscodeCacheRoundTrip(t *testing.T) {
	tc, err := OpenTranscodeCache("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tc.Close()

	key := TranscodeKey{SourceHash: "abc123", MaxWidth: 800, MaxHeight: 600, Quality: 80, TargetMIME: "image/jpeg"}
	if _, ok, err := tc.Get(key); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	want := TranscodeResult{Data: []byte{1, 2, 3}, MediaType: "image/jpeg", Width: 800, Height: 600}
	if err := tc.Put(key, want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := tc.Get(key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Width != want.Width || got.MediaType != want.MediaType || len(got.Data) != len(want.Data) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
