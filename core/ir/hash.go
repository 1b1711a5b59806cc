package ir

import (
	"bookforge/core/cas"
)

// ContentHash8 returns the first 8 hex digits of data's content hash, the
// form used by DataURL's generated hrefs (resources/data-<hash8>.<ext>).
func ContentHash8(data []byte) string {
	full := cas.Hash(data)
	return full[:8]
}
