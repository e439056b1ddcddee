package cargo

import (
	"strings"
	"time"
)

// IndexKey identifies a registry index entry and the cache-validation state
// we hold for it: the opaque ETag and/or Last-Modified instant learned from
// upstream, and the monotonic instant we last spoke to upstream about it.
//
// IndexKey is a plain value; copying it (e.g. out of MetadataCache) yields an
// independent snapshot.
type IndexKey struct {
	name string

	etag    string
	hasETag bool

	mtime    time.Time
	hasMtime bool

	atime    time.Time
	hasAtime bool
}

// NewIndexKey creates a bare index key carrying only a name, as produced by
// URL parsing.
func NewIndexKey(name string) IndexKey {
	return IndexKey{name: name}
}

// Name returns the crate name this entry identifies.
func (k IndexKey) Name() string { return k.name }

// ETag returns the entry's entity tag and whether one is set.
func (k IndexKey) ETag() (string, bool) { return k.etag, k.hasETag }

// SetETag records an entity tag, quoted form preserved verbatim.
func (k *IndexKey) SetETag(etag string) {
	k.etag = etag
	k.hasETag = true
}

// LastModified returns the entry's Last-Modified instant and whether one is
// set.
func (k IndexKey) LastModified() (time.Time, bool) { return k.mtime, k.hasMtime }

// SetLastModified records a Last-Modified instant.
func (k *IndexKey) SetLastModified(t time.Time) {
	k.mtime = t
	k.hasMtime = true
}

// LastRefreshed returns the monotonic instant we last contacted upstream
// about this entry, and whether one is set. Never persisted to disk.
func (k IndexKey) LastRefreshed() (time.Time, bool) { return k.atime, k.hasAtime }

// Touch stamps the last-refreshed instant.
func (k *IndexKey) Touch(now time.Time) {
	k.atime = now
	k.hasAtime = true
}

// Expired reports whether this entry's last-refreshed instant is older than
// ttl, i.e. whether a revalidation against upstream is due. An entry with no
// recorded refresh instant is always considered expired.
func (k IndexKey) Expired(now time.Time, ttl time.Duration) bool {
	if !k.hasAtime {
		return true
	}
	return now.Sub(k.atime) > ttl
}

// Equivalent implements the HTTP-validator equivalence (I4): true iff both
// sides have an ETag and it matches, or both sides have a Last-Modified and
// it matches. A validator missing on either side never matches, and ETag
// and Last-Modified are never compared against each other.
func (k IndexKey) Equivalent(other IndexKey) bool {
	if k.hasETag && other.hasETag && k.etag == other.etag {
		return true
	}
	if k.hasMtime && other.hasMtime && k.mtime.Equal(other.mtime) {
		return true
	}
	return false
}

// ToIndexURL builds the sharded sparse-index path for this entry's name. It
// is a pure function of the name alone.
//
//	len 0 -> ""
//	len 1 -> "1/{name}"
//	len 2 -> "2/{name}"
//	len 3 -> "3/{name[0:1]}/{name}"
//	len >= 4 -> "{name[0:2]}/{name[2:4]}/{name}"
func (k IndexKey) ToIndexURL() string {
	return indexURLFor(k.name)
}

func indexURLFor(name string) string {
	switch len(name) {
	case 0:
		return ""
	case 1:
		return "1/" + name
	case 2:
		return "2/" + name
	case 3:
		return "3/" + name[:1] + "/" + name
	default:
		return name[0:2] + "/" + name[2:4] + "/" + name
	}
}

// IndexKeyFromIndexURL parses the remainder of an /index/ request path into
// a bare IndexKey (name only). It rejects any input containing '.' (this
// both prevents path traversal and distinguishes the path from the
// config.json sentinel), and accepts either:
//
//   - exactly two segments, the first literally "1" or "2" ("1/{name}",
//     "2/{name}"), or
//   - exactly three segments, taking the last as the name and ignoring the
//     first two without validating that they match the expected shard
//     prefix for that name.
func IndexKeyFromIndexURL(s string) (IndexKey, bool) {
	if strings.Contains(s, ".") {
		return IndexKey{}, false
	}

	parts := strings.Split(s, "/")

	switch len(parts) {
	case 2:
		if parts[0] != "1" && parts[0] != "2" {
			return IndexKey{}, false
		}
		if parts[1] == "" {
			return IndexKey{}, false
		}
		return NewIndexKey(parts[1]), true
	case 3:
		if parts[2] == "" {
			return IndexKey{}, false
		}
		return NewIndexKey(parts[2]), true
	default:
		return IndexKey{}, false
	}
}
