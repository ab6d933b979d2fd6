package speech

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// AudioCache is a thread-safe two-tier cache (memory, then disk) of
// synthesized audio. Keys are sha256(voice + ":" + text), so changing the
// voice misses until it is switched back. An empty dir disables the disk
// tier.
type AudioCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
	voice   string
	dir     string
	logger  *zap.Logger
	hits    int64
	misses  int64
}

// NewAudioCache creates a cache for the given voice.
func NewAudioCache(voice, dir string, logger *zap.Logger) *AudioCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &AudioCache{
		entries: make(map[string][]byte),
		voice:   voice,
		dir:     dir,
		logger:  logger.Named("cache"),
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.logger.Warn("Failed to create audio cache dir, using memory only",
				zap.String("dir", dir), zap.Error(err))
			c.dir = ""
		}
	}
	return c
}

// Get returns cached audio for text.
func (c *AudioCache) Get(text string) ([]byte, bool) {
	key := c.key(text)

	c.mu.RLock()
	data, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.count(true)
		return data, true
	}

	if c.dir != "" {
		if data, err := os.ReadFile(c.path(key)); err == nil {
			c.mu.Lock()
			c.entries[key] = data
			c.hits++
			c.mu.Unlock()
			c.logger.Debug("Audio cache hit (disk)", zap.String("key", key[:12]))
			return data, true
		}
	}

	c.count(false)
	return nil, false
}

// Put stores audio for text in memory and, when enabled, on disk.
func (c *AudioCache) Put(text string, audio []byte) {
	key := c.key(text)

	c.mu.Lock()
	c.entries[key] = audio
	c.mu.Unlock()

	if c.dir != "" {
		if err := os.WriteFile(c.path(key), audio, 0o644); err != nil {
			c.logger.Warn("Audio cache disk write failed", zap.String("key", key[:12]), zap.Error(err))
		}
	}
}

// Len returns the number of in-memory entries.
func (c *AudioCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns hit and miss counts.
func (c *AudioCache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *AudioCache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *AudioCache) key(text string) string {
	h := sha256.Sum256([]byte(c.voice + ":" + text))
	return hex.EncodeToString(h[:])
}

func (c *AudioCache) path(key string) string {
	return filepath.Join(c.dir, key+".wav")
}
