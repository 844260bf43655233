package local

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const cacheSuffix = ".pcm.zst"

// pcmCache keeps synthesized PCM on disk, zstd-compressed, keyed by the
// voice model and text. Piper is deterministic for a given model, so a
// hit skips synthesis entirely on repeated reads of the same item.
type pcmCache struct {
	dir      string
	capacity int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu      sync.Mutex
	size    int64
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	size       int64
	lastAccess time.Time
}

func newPCMCache(dir string, capacity int64) (*pcmCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create cache directory: %w", err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	c := &pcmCache{
		dir:      dir,
		capacity: capacity,
		encoder:  encoder,
		decoder:  decoder,
		entries:  make(map[string]*cacheEntry),
	}

	// Rebuild the index from whatever survived the last run. Modification
	// time stands in for last access across restarts.
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, cacheSuffix) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		key := strings.TrimSuffix(name, cacheSuffix)
		c.entries[key] = &cacheEntry{size: info.Size(), lastAccess: info.ModTime()}
		c.size += info.Size()
	}
	c.evictLocked()
	return c, nil
}

func cacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func (c *pcmCache) path(key string) string {
	return filepath.Join(c.dir, key+cacheSuffix)
}

// get returns the cached PCM for key, if present and readable.
func (c *pcmCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	compressed, err := os.ReadFile(c.path(key))
	if err != nil {
		c.dropLocked(key, entry)
		return nil, false
	}
	pcm, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		// Corrupt entry; drop it and resynthesize.
		c.dropLocked(key, entry)
		_ = os.Remove(c.path(key))
		return nil, false
	}

	entry.lastAccess = time.Now()
	return pcm, true
}

// put stores pcm under key and evicts least-recently-used entries until
// the cache fits its capacity again.
func (c *pcmCache) put(key string, pcm []byte) error {
	compressed := c.encoder.EncodeAll(pcm, make([]byte, 0, len(pcm)/4))

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.WriteFile(c.path(key), compressed, 0o644); err != nil {
		return err
	}
	if old, ok := c.entries[key]; ok {
		c.size -= old.size
	}
	c.entries[key] = &cacheEntry{size: int64(len(compressed)), lastAccess: time.Now()}
	c.size += int64(len(compressed))
	c.evictLocked()
	return nil
}

func (c *pcmCache) dropLocked(key string, entry *cacheEntry) {
	delete(c.entries, key)
	c.size -= entry.size
}

func (c *pcmCache) evictLocked() {
	for c.size > c.capacity && len(c.entries) > 0 {
		var oldestKey string
		var oldest *cacheEntry
		for key, entry := range c.entries {
			if oldest == nil || entry.lastAccess.Before(oldest.lastAccess) {
				oldestKey, oldest = key, entry
			}
		}
		c.dropLocked(oldestKey, oldest)
		_ = os.Remove(c.path(oldestKey))
	}
}
