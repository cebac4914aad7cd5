package history

import (
	"context"
	"errors"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"nutriscan/internal/model"
	"nutriscan/internal/store"
)

// DefaultProductsKey is the storage key of the product cache blob
const DefaultProductsKey = "products"

// ProductCache stores full product payloads by code for the detail view.
// A refetched code is replaced in place; a new code goes to the front.
type ProductCache struct {
	mu     sync.RWMutex
	kv     store.KV
	key    string
	limit  int
	logger *zap.Logger
	order  []string
	byCode map[string]*model.ProductPayload
	dirty  bool
}

// NewProductCache creates a cache over kv. limit <= 0 means unbounded.
func NewProductCache(kv store.KV, key string, limit int, logger *zap.Logger) *ProductCache {
	if key == "" {
		key = DefaultProductsKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductCache{
		kv:     kv,
		key:    key,
		limit:  limit,
		logger: logger,
		byCode: make(map[string]*model.ProductPayload),
	}
}

// Load reads the persisted cache; corrupt or missing data yields an empty cache
func (c *ProductCache) Load(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = nil
	c.byCode = make(map[string]*model.ProductPayload)
	c.dirty = false

	data, err := c.kv.Get(ctx, c.key)
	if errors.Is(err, store.ErrNotFound) {
		return 0
	}
	if err != nil {
		c.logger.Warn("product cache unavailable, starting empty", zap.Error(&model.StorageError{Op: "get", Key: c.key, Err: err}))
		return 0
	}

	var entries []jsoniter.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("product cache corrupt, starting empty", zap.Error(&model.MalformedDataError{Source: c.key, Err: err}))
		return 0
	}
	for i, raw := range entries {
		var p *model.ProductPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Warn("skipping unreadable cached product", zap.Int("index", i), zap.Error(err))
			continue
		}
		if p == nil || p.Code == "" {
			continue
		}
		if _, ok := c.byCode[p.Code]; ok {
			continue
		}
		c.byCode[p.Code] = p
		c.order = append(c.order, p.Code)
		if c.limit > 0 && len(c.order) == c.limit {
			break
		}
	}
	return len(c.order)
}

// Get returns the cached payload for code
func (c *ProductCache) Get(code string) (*model.ProductPayload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.byCode[code]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// Len returns the number of cached payloads
func (c *ProductCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Save stores p and persists the cache
func (c *ProductCache) Save(ctx context.Context, p *model.ProductPayload) error {
	if p == nil || p.Code == "" {
		return model.ErrInvalidProduct
	}
	cp := *p

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byCode[cp.Code]; !ok {
		c.order = append([]string{cp.Code}, c.order...)
		if c.limit > 0 && len(c.order) > c.limit {
			for _, evicted := range c.order[c.limit:] {
				delete(c.byCode, evicted)
			}
			c.order = c.order[:c.limit]
		}
	}
	c.byCode[cp.Code] = &cp

	return c.persistLocked(ctx)
}

// Clear drops every cached payload and removes the blob
func (c *ProductCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order = nil
	c.byCode = make(map[string]*model.ProductPayload)
	return c.persistLocked(ctx)
}

// Flush retries a failed persist
func (c *ProductCache) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}
	return c.persistLocked(ctx)
}

func (c *ProductCache) persistLocked(ctx context.Context) error {
	c.dirty = true

	if len(c.order) == 0 {
		if err := c.kv.Delete(ctx, c.key); err != nil {
			return &model.StorageError{Op: "delete", Key: c.key, Err: err}
		}
		c.dirty = false
		return nil
	}

	payloads := make([]*model.ProductPayload, 0, len(c.order))
	for _, code := range c.order {
		payloads = append(payloads, c.byCode[code])
	}
	data, err := json.Marshal(payloads)
	if err != nil {
		return &model.StorageError{Op: "encode", Key: c.key, Err: err}
	}
	if err := c.kv.Set(ctx, c.key, data); err != nil {
		return &model.StorageError{Op: "set", Key: c.key, Err: err}
	}
	c.dirty = false
	return nil
}
