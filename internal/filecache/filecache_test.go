package filecache

import (
	"testing"
	"time"

	"github.com/ravenexp/crates-io-proxy/internal/cargo"
)

func TestStoreAndFetchCrate(t *testing.T) {
	fc := New(t.TempDir(), nil)
	id := cargo.NewCrateID("serde", "1.0.0")

	if _, ok := fc.FetchCrate(id); ok {
		t.Fatal("expected miss before store")
	}

	fc.StoreCrate(id, []byte("crate bytes"))

	data, ok := fc.FetchCrate(id)
	if !ok {
		t.Fatal("expected hit after store")
	}
	if string(data) != "crate bytes" {
		t.Errorf("got %q", data)
	}
}

func TestStoreAndFetchIndexEntry(t *testing.T) {
	fc := New(t.TempDir(), nil)
	key := cargo.NewIndexKey("serde")

	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	key.SetLastModified(mtime)

	fc.StoreIndexEntry(key, []byte(`{"name":"serde"}`))

	data, ok := fc.FetchIndexEntry(key)
	if !ok {
		t.Fatal("expected hit after store")
	}
	if string(data) != `{"name":"serde"}` {
		t.Errorf("got %q", data)
	}
}

func TestRecoverIndexEntryUsesFileMtime(t *testing.T) {
	fc := New(t.TempDir(), nil)
	key := cargo.NewIndexKey("serde")

	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	key.SetLastModified(mtime)
	fc.StoreIndexEntry(key, []byte("body"))

	recovered, ok := fc.RecoverIndexEntry("serde")
	if !ok {
		t.Fatal("expected recovery to find the cached file")
	}

	got, hasMtime := recovered.LastModified()
	if !hasMtime {
		t.Fatal("expected a recovered Last-Modified instant")
	}
	if !got.Equal(mtime) {
		t.Errorf("recovered mtime = %v, want %v", got, mtime)
	}

	if _, hasETag := recovered.ETag(); hasETag {
		t.Error("recovery must not synthesize an ETag")
	}
	if _, hasAtime := recovered.LastRefreshed(); hasAtime {
		t.Error("recovery must not synthesize a refresh instant")
	}
}

func TestRecoverIndexEntryMiss(t *testing.T) {
	fc := New(t.TempDir(), nil)
	if _, ok := fc.RecoverIndexEntry("nonexistent"); ok {
		t.Error("expected no recovery for an uncached name")
	}
}
