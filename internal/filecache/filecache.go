// Package filecache provides the persistent, on-disk half of the proxy's
// cache: index entry bodies and crate archive files stored beneath two
// sharded directory roots.
package filecache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ravenexp/crates-io-proxy/internal/cargo"
)

// FileCache stores crate archives and index entry bodies on the local
// filesystem, rooted at two sibling directories: "index/" and "crates/".
//
// All operations are best-effort: write failures are logged and swallowed
// (the in-flight response still succeeds with the freshly-fetched bytes),
// and read failures of any kind, including "not found", are reported as a
// cache miss. Nothing here ever panics.
type FileCache struct {
	indexRoot  string
	cratesRoot string
	logger     *slog.Logger
}

// New creates a FileCache rooted at cacheDir, with "index" and "crates"
// subdirectories created on demand.
func New(cacheDir string, logger *slog.Logger) *FileCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileCache{
		indexRoot:  filepath.Join(cacheDir, "index"),
		cratesRoot: filepath.Join(cacheDir, "crates"),
		logger:     logger,
	}
}

// StoreCrate writes a crate archive's bytes to its cache path, creating
// parent directories as needed. Errors are logged and swallowed.
func (fc *FileCache) StoreCrate(id cargo.CrateID, data []byte) {
	path := filepath.Join(fc.cratesRoot, filepath.FromSlash(id.CachePath()))

	if err := writeFileAtomic(path, data); err != nil {
		fc.logger.Error("cache: failed to write crate file", "crate", id.Name(), "error", err)
	}
}

// FetchCrate reads a cached crate archive's bytes. Any error, including
// "not found", is reported as a miss (nil, false).
func (fc *FileCache) FetchCrate(id cargo.CrateID) ([]byte, bool) {
	path := filepath.Join(fc.cratesRoot, filepath.FromSlash(id.CachePath()))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// StoreIndexEntry writes an index entry body to its sharded cache path. If
// key carries a Last-Modified instant, the file's modification time is set
// to that instant — this is the recovery anchor RecoverIndexEntry relies on
// after a process restart loses the in-memory metadata cache.
func (fc *FileCache) StoreIndexEntry(key cargo.IndexKey, data []byte) {
	path := fc.indexPath(key)

	if err := writeFileAtomic(path, data); err != nil {
		fc.logger.Error("cache: failed to write index entry file", "crate", key.Name(), "error", err)
		return
	}

	if mtime, ok := key.LastModified(); ok {
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			fc.logger.Warn("cache: failed to set index entry mtime", "crate", key.Name(), "error", err)
		}
	}
}

// FetchIndexEntry reads a cached index entry body by its derived sharded
// path. Any error, including "not found", is reported as a miss.
func (fc *FileCache) FetchIndexEntry(key cargo.IndexKey) ([]byte, bool) {
	data, err := os.ReadFile(fc.indexPath(key))
	if err != nil {
		return nil, false
	}
	return data, true
}

// RecoverIndexEntry reconstructs an IndexKey carrying only a Last-Modified
// instant (taken from the cached file's mtime), enabling conditional
// revalidation after a process restart that lost the volatile metadata
// cache. Returns false if no cached file exists for name.
func (fc *FileCache) RecoverIndexEntry(name string) (cargo.IndexKey, bool) {
	bare := cargo.NewIndexKey(name)
	path := fc.indexPath(bare)

	info, err := os.Stat(path)
	if err != nil {
		return cargo.IndexKey{}, false
	}

	recovered := cargo.NewIndexKey(name)
	recovered.SetLastModified(info.ModTime())
	return recovered, true
}

func (fc *FileCache) indexPath(key cargo.IndexKey) string {
	return filepath.Join(fc.indexRoot, filepath.FromSlash(key.ToIndexURL()))
}

// writeFileAtomic creates parent directories as needed, then writes data to
// path via a temp-file-plus-rename so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}
