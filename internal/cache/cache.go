package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sqlchat/sqlchat/internal/observability"
)

const DefaultTTL = 24 * time.Hour

// Persister stores the whole cache document. Load returns (nil, nil) when no
// document exists yet.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, document []byte) error
}

type Options struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

// Cache is a durable key/value store with per-entry expiry. Every mutation
// rewrites the persisted document in full.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]Entry
	ttl       time.Duration
	now       func() time.Time
	persister Persister
	logger    *slog.Logger
}

// New loads the persisted document once. A missing or unreadable document
// yields an empty cache.
func New(ctx context.Context, persister Persister, opts Options) *Cache {
	c := &Cache{
		entries:   map[string]Entry{},
		ttl:       opts.TTL,
		now:       opts.Now,
		persister: persister,
		logger:    opts.Logger,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = observability.NopLogger()
	}
	if persister == nil {
		return c
	}

	document, err := persister.Load(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "cache load failed, starting empty", slog.Any("error", err))
		return c
	}
	entries, err := decodeDocument(document)
	if err != nil {
		c.logger.WarnContext(ctx, "cache document is corrupt, starting empty", slog.Any("error", err))
		return c
	}
	c.entries = entries
	c.logger.DebugContext(ctx, "cache loaded", slog.Int("entries", len(entries)))
	return c
}

// Get decodes the entry stored under key into dst. Numbers decode as
// json.Number. It reports false when the key is absent or the entry has
// expired; expired entries are deleted.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	namespace := namespaceOf(key)
	entry, ok := c.entries[key]
	if !ok {
		observability.ObserveCacheLookup(namespace, false)
		return false
	}
	if c.expired(entry) {
		delete(c.entries, key)
		observability.ObserveCacheExpired(1)
		observability.ObserveCacheLookup(namespace, false)
		if err := c.persistLocked(ctx); err != nil {
			c.logger.WarnContext(ctx, "cache persist after expiry failed", slog.Any("error", err))
		}
		return false
	}
	if err := decodeValue(entry.Result, dst); err != nil {
		c.logger.WarnContext(ctx, "cache entry does not decode, dropping", slog.String("key", key), slog.Any("error", err))
		delete(c.entries, key)
		observability.ObserveCacheLookup(namespace, false)
		return false
	}
	observability.ObserveCacheLookup(namespace, true)
	return true
}

// Set overwrites key unconditionally and persists before returning.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Result: payload, Timestamp: c.now()}
	return c.persistLocked(ctx)
}

// Remover is implemented by persisters that can drop the document outright.
// A removed document loads as an empty cache.
type Remover interface {
	Remove(ctx context.Context) error
}

// Clear removes every entry. Persisters implementing Remover drop the
// document; others get the empty document rewritten.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]Entry{}
	if remover, ok := c.persister.(Remover); ok {
		if err := remover.Remove(ctx); err != nil {
			return fmt.Errorf("persist cache: %w", err)
		}
		return nil
	}
	return c.persistLocked(ctx)
}

// PurgeExpired deletes every expired entry and returns how many were removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if c.expired(entry) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	observability.ObserveCacheExpired(removed)
	return removed, c.persistLocked(ctx)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) expired(entry Entry) bool {
	return c.now().Sub(entry.Timestamp) >= c.ttl
}

func (c *Cache) persistLocked(ctx context.Context) error {
	if c.persister == nil {
		return nil
	}
	document, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("encode cache document: %w", err)
	}
	if err := c.persister.Save(ctx, document); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}
	return nil
}

// decodeValue keeps numbers as json.Number so integers above 2^53 survive a
// round trip.
func decodeValue(payload json.RawMessage, dst any) error {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	return decoder.Decode(dst)
}

func decodeDocument(document []byte) (map[string]Entry, error) {
	entries := map[string]Entry{}
	if len(document) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(document, &entries); err != nil {
		return nil, fmt.Errorf("decode cache document: %w", err)
	}
	if entries == nil {
		entries = map[string]Entry{}
	}
	return entries, nil
}
