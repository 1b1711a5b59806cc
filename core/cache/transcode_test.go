package cache

import (
	"os"
	"testing"

	"bookforge/core/cas"
)

func TestTranscodeCache_PutThenGet(t *testing.T) {
	c, err := OpenTranscodeCache("")
	if err != nil {
		t.Fatalf("unexpected error opening cache: %v", err)
	}
	defer c.Close()

	key := TranscodeKey{SourceHash: "abc123", MaxWidth: 100, MaxHeight: 100, Quality: 80, TargetMIME: "image/jpeg"}
	res := TranscodeResult{Data: []byte{1, 2, 3}, MediaType: "image/jpeg", Width: 100, Height: 100}

	if err := c.Put(key, res); err != nil {
		t.Fatalf("unexpected error putting: %v", err)
	}

	got, ok, err := c.Get(key)
	if err != nil {
		t.Fatalf("unexpected error getting: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.MediaType != "image/jpeg" || got.Width != 100 || string(got.Data) != "\x01\x02\x03" {
		t.Errorf("unexpected cached result: %+v", got)
	}
}

func TestTranscodeCache_GetMiss(t *testing.T) {
	c, err := OpenTranscodeCache("")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	key := TranscodeKey{SourceHash: "missing"}
	_, ok, err := c.Get(key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected a cache miss for an unknown key")
	}
}

func TestTranscodeCache_PutOverwritesExistingKey(t *testing.T) {
	c, err := OpenTranscodeCache("")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	key := TranscodeKey{SourceHash: "abc123"}
	_ = c.Put(key, TranscodeResult{Data: []byte("first"), MediaType: "image/png"})
	_ = c.Put(key, TranscodeResult{Data: []byte("second"), MediaType: "image/jpeg"})

	got, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("expected a hit, got %v, %v", ok, err)
	}
	if string(got.Data) != "second" || got.MediaType != "image/jpeg" {
		t.Errorf("expected the second Put to win, got %+v", got)
	}
}

func TestTranscodeCache_GetServesFromMemoryAfterBlobIsGone(t *testing.T) {
	c, err := OpenTranscodeCache("")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	key := TranscodeKey{SourceHash: "abc123"}
	data := []byte("in-memory hit")
	if err := c.Put(key, TranscodeResult{Data: data, MediaType: "image/jpeg"}); err != nil {
		t.Fatalf("unexpected error putting: %v", err)
	}

	// Put already populated the in-memory LRU; a fresh Get must not
	// need the blob store at all, so deleting the backing blobs
	// directory should not affect it.
	if err := os.RemoveAll(c.blobs.Root()); err != nil {
		t.Fatalf("failed to remove blob dir: %v", err)
	}

	got, ok, err := c.Get(key)
	if err != nil {
		t.Fatalf("unexpected error getting from memory: %v", err)
	}
	if !ok || string(got.Data) != string(data) {
		t.Errorf("expected an in-memory hit with %q, got ok=%v data=%q", data, ok, got.Data)
	}
}

func TestTranscodeCache_RecordsBlake3AlongsideSHA256(t *testing.T) {
	c, err := OpenTranscodeCache("")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	data := []byte("cover art bytes")
	key := TranscodeKey{SourceHash: "abc123"}
	if err := c.Put(key, TranscodeResult{Data: data, MediaType: "image/jpeg"}); err != nil {
		t.Fatalf("unexpected error putting: %v", err)
	}

	var blake3Hash string
	row := c.db.QueryRow(`SELECT blake3 FROM transcode WHERE key = ?`, key.String())
	if err := row.Scan(&blake3Hash); err != nil {
		t.Fatalf("unexpected error reading blake3 column: %v", err)
	}

	if want := cas.Blake3Hash(data); blake3Hash != want {
		t.Errorf("recorded blake3 = %q, want %q", blake3Hash, want)
	}
}

func TestTranscodeKey_String(t *testing.T) {
	key := TranscodeKey{SourceHash: "hash", MaxWidth: 10, MaxHeight: 20, Quality: 80, TargetMIME: "image/jpeg"}
	got := key.String()
	want := "hash:10x20:q80:image/jpeg"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
