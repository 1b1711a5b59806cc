package cache

import (
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"bookforge/core/cas"
)

// TranscodeKey identifies one ImageRescale request: the source content
// hash plus the parameters that affect its output.
type TranscodeKey struct {
	SourceHash string
	MaxWidth   int
	MaxHeight  int
	Quality    int
	TargetMIME string
}

// TranscodeResult is the cached output of an ImageRescale re-encode.
type TranscodeResult struct {
	Data      []byte
	MediaType string
	Width     int
	Height    int
}

// TranscodeCache persists ImageRescale results across CLI invocations so
// repeated conversions of the same book (e.g. iterating on other
// options) don't re-decode and re-encode unchanged images. The sqlite
// table holds only the lookup key and the blob's hashes; the transcoded
// bytes themselves live in a content-addressed cas.Store so two images
// that transcode to identical output (a common case for stock cover
// art reused across a batch) are kept on disk once.
type TranscodeCache struct {
	db    *sql.DB
	blobs *cas.Store
	mem   Cache[string, TranscodeResult]
}

// OpenTranscodeCache opens (creating if necessary) a SQLite-backed cache
// at path, plus a sibling "<path>.blobs" content-addressed blob store.
// An empty path opens an in-memory cache backed by a temp directory,
// useful for tests.
func OpenTranscodeCache(path string) (*TranscodeCache, error) {
	dsn := path
	blobRoot := path + ".blobs"
	if dsn == "" {
		dsn = ":memory:"
		dir, err := os.MkdirTemp("", "bookforge-transcode-blobs-*")
		if err != nil {
			return nil, fmt.Errorf("transcode cache: blob dir: %w", err)
		}
		blobRoot = dir
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("transcode cache: open: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS transcode (
	key TEXT PRIMARY KEY,
	media_type TEXT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	sha256 TEXT NOT NULL,
	blake3 TEXT NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcode cache: schema: %w", err)
	}
	blobs, err := cas.NewStore(blobRoot)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("transcode cache: blob store: %w", err)
	}
	mem := NewLRUCache[string, TranscodeResult](DefaultConfig())
	return &TranscodeCache{db: db, blobs: blobs, mem: mem}, nil
}

// Close releases the underlying database handle. The blob store needs
// no handle of its own; it reads and writes files directly.
func (c *TranscodeCache) Close() error { return c.db.Close() }

func (k TranscodeKey) String() string {
	return fmt.Sprintf("%s:%dx%d:q%d:%s", k.SourceHash, k.MaxWidth, k.MaxHeight, k.Quality, k.TargetMIME)
}

// Get returns a previously cached transcode result for key, if present.
// An in-memory LRU fronts the sqlite+cas lookup so repeated requests for
// the same rescaled image within one conversion run (the common case:
// a cover image referenced from both the spine and a thumbnail) skip
// the database round-trip and blob file read entirely.
func (c *TranscodeCache) Get(key TranscodeKey) (TranscodeResult, bool, error) {
	k := key.String()
	if res, ok := c.mem.Get(k); ok {
		return res, true, nil
	}

	row := c.db.QueryRow(`SELECT media_type, width, height, sha256 FROM transcode WHERE key = ?`, k)
	var res TranscodeResult
	var sha256Hash string
	if err := row.Scan(&res.MediaType, &res.Width, &res.Height, &sha256Hash); err != nil {
		if err == sql.ErrNoRows {
			return TranscodeResult{}, false, nil
		}
		return TranscodeResult{}, false, fmt.Errorf("transcode cache: get: %w", err)
	}
	data, err := c.blobs.Retrieve(sha256Hash)
	if err != nil {
		return TranscodeResult{}, false, fmt.Errorf("transcode cache: retrieve blob: %w", err)
	}
	res.Data = data
	c.mem.Put(k, res)
	return res, true, nil
}

// Put stores a transcode result for key, overwriting any prior entry.
// The result's bytes are stored in the blob store under their SHA-256,
// the primary content key; the row records both the SHA-256 and the
// BLAKE3 digest.
func (c *TranscodeCache) Put(key TranscodeKey, res TranscodeResult) error {
	hashes, err := c.blobs.StoreWithBlake3(res.Data)
	if err != nil {
		return fmt.Errorf("transcode cache: store blob: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT INTO transcode (key, media_type, width, height, sha256, blake3) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET media_type=excluded.media_type, width=excluded.width, height=excluded.height, sha256=excluded.sha256, blake3=excluded.blake3`,
		key.String(), res.MediaType, res.Width, res.Height, hashes.SHA256, hashes.BLAKE3,
	)
	if err != nil {
		return fmt.Errorf("transcode cache: put: %w", err)
	}
	c.mem.Put(key.String(), res)
	return nil
}
