package detectors

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-east/models/model"
)

// ErrCacheClosed is returned by Get after Close.
var ErrCacheClosed = errors.New("detector cache is closed")

// Cache keeps one detector per network input configuration.
//
// Opening an engine is expensive, and the input size is the only knob that forces a
// new one, so detectors are keyed by model.Config.Fingerprint. Threshold changes reuse
// the cached engine.
type Cache struct {
	mu      sync.Mutex
	factory EngineFactory
	entries map[string]*cacheEntry
	closed  bool
	logger  *zap.Logger
}

type cacheEntry struct {
	once     sync.Once
	detector *Detector
	err      error
}

// NewCache creates an empty cache.
//
// Arguments:
//   - factory: Opens a detector for a configuration that is not cached yet.
//   - logger: Logs engine creation. Nil disables logging.
//
// Returns:
//   - *Cache: The cache.
func NewCache(factory EngineFactory, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		factory: factory,
		entries: make(map[string]*cacheEntry),
		logger:  logger,
	}
}

// Get returns the detector for cfg, opening it on first use. Concurrent calls for the
// same key share a single factory call. A failed open is not cached. A Get that is
// still opening when Close runs returns ErrCacheClosed, and Close releases the engine.
func (c *Cache) Get(cfg model.Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key := cfg.Fingerprint()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrCacheClosed
	}
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		c.logger.Info("opening detector", zap.String("key", key))
		entry.detector, entry.err = c.factory(cfg)
	})

	if entry.err != nil {
		c.mu.Lock()
		if c.entries[key] == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, entry.err
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || entry.detector == nil {
		return nil, ErrCacheClosed
	}
	return entry.detector, nil
}

// Len returns the number of cached detectors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close closes every cached detector, waiting for opens in progress, and empties the
// cache. Later calls to Get fail with ErrCacheClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	entries := c.entries
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()

	var err error
	for _, entry := range entries {
		// Blocks until an in-flight factory call returns.
		entry.once.Do(func() {})
		if entry.detector != nil {
			err = multierr.Append(err, entry.detector.Close())
		}
	}
	return err
}
