package cas

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// HashResult carries both digests BookForge records for a stored blob.
// TranscodeCache keeps the SHA-256 as its lookup key (cas.Store is
// already keyed on it) and the BLAKE3 purely as a second, faster digest
// recorded alongside it in the sqlite row for integrity spot-checks
// and for comparing transcode output across runs without re-reading
// the blob. Nothing looks a blob up by its BLAKE3 hash alone, so the
// store itself keeps no BLAKE3-to-SHA256 index.
type HashResult struct {
	SHA256 string `json:"sha256"`
	BLAKE3 string `json:"blake3"`
}

// StoreWithBlake3 stores data under its SHA-256 hash, the same as
// Store, and additionally computes its BLAKE3 digest for the caller to
// record. It does not persist any BLAKE3-keyed index of its own.
func (s *Store) StoreWithBlake3(data []byte) (*HashResult, error) {
	sha256Hash, err := s.Store(data)
	if err != nil {
		return nil, err
	}
	b3 := blake3.Sum256(data)
	return &HashResult{
		SHA256: sha256Hash,
		BLAKE3: hex.EncodeToString(b3[:]),
	}, nil
}

// Blake3Hash computes the BLAKE3 hash of the given data without storing it.
func Blake3Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
