// Package history keeps the bounded, deduplicated list of scanned products
// and the cache of full product payloads, both persisted as JSON blobs.
package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"nutriscan/internal/events"
	"nutriscan/internal/model"
	"nutriscan/internal/store"
)

const (
	// DefaultKey is the storage key of the history blob
	DefaultKey = "history"
	// DefaultLimit is the maximum number of history entries
	DefaultLimit = 50
)

// View is the read model handed to UI collaborators. Loading is true until
// the persisted history has been read.
type View struct {
	Loading bool            `json:"loading"`
	Version uint64          `json:"version"`
	Items   []model.Product `json:"items"`
}

// Options configures a Store. Zero values pick the defaults.
type Options struct {
	Key    string
	Limit  int
	Bus    events.Bus
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

// Store is the product history. Mutations are serialized by a mutex; the
// in-memory sequence is authoritative for the running process even when the
// persisted copy could not be updated.
type Store struct {
	mu      sync.Mutex
	kv      store.KV
	key     string
	limit   int
	bus     events.Bus
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string
	items   []model.Product
	loaded  bool
	dirty   bool
	version uint64
}

// New creates a Store over kv. Call Load before any other operation.
func New(kv store.KV, opts Options) *Store {
	s := &Store{
		kv:     kv,
		key:    opts.Key,
		limit:  opts.Limit,
		bus:    opts.Bus,
		logger: opts.Logger,
		now:    opts.Now,
		newID:  opts.NewID,
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.limit <= 0 {
		s.limit = DefaultLimit
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Load reads the persisted history. Missing or corrupt data yields an empty
// history; the error is logged, never returned.
func (s *Store) Load(ctx context.Context) []model.Product {
	s.mu.Lock()
	items, err := s.read(ctx)
	if err != nil {
		s.logger.Warn("history unavailable, starting empty", zap.String("key", s.key), zap.Error(err))
		items = nil
	}
	s.items = normalize(items, s.limit)
	s.loaded = true
	s.dirty = false
	s.version++
	view := s.viewLocked()
	s.mu.Unlock()

	s.publish(view)
	return view.Items
}

func (s *Store) read(ctx context.Context) ([]model.Product, error) {
	data, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.StorageError{Op: "get", Key: s.key, Err: err}
	}

	var entries []jsoniter.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &model.MalformedDataError{Source: s.key, Err: err}
	}

	items := make([]model.Product, 0, len(entries))
	for i, raw := range entries {
		var p model.Product
		if err := json.Unmarshal(raw, &p); err != nil {
			s.logger.Warn("skipping unreadable history entry", zap.String("key", s.key), zap.Int("index", i), zap.Error(err))
			continue
		}
		items = append(items, p)
	}
	return items, nil
}

// View returns a snapshot of the current history
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Upsert moves (or inserts) p to the front with a fresh scannedAt, drops
// entries beyond the limit and persists the result. On a StorageError the
// returned sequence is still the committed in-memory history.
func (s *Store) Upsert(ctx context.Context, p model.Product) ([]model.Product, error) {
	if p.Barcode == "" {
		return nil, model.ErrInvalidProduct
	}

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return nil, model.ErrNotLoaded
	}

	next := make([]model.Product, 0, len(s.items)+1)
	next = append(next, p)
	var prev *model.Product
	for i := range s.items {
		if s.items[i].Barcode == p.Barcode {
			prev = &s.items[i]
			continue
		}
		next = append(next, s.items[i])
	}

	entry := &next[0]
	now := s.now().UTC()
	if prev != nil {
		if entry.ID == "" {
			entry.ID = prev.ID
		}
		// keep scannedAt strictly increasing per record
		if !now.After(prev.ScannedAt) {
			now = prev.ScannedAt.Add(time.Nanosecond)
		}
	}
	if entry.ID == "" {
		entry.ID = s.newID()
	}
	entry.ScannedAt = now

	if len(next) > s.limit {
		next = next[:s.limit]
	}
	s.items = next

	err := s.persistLocked(ctx)
	view := s.viewLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to persist history", zap.String("barcode", p.Barcode), zap.Error(err))
	}
	s.publish(view)
	return view.Items, err
}

// Clear empties the history and removes the persisted blob
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return model.ErrNotLoaded
	}
	s.items = nil
	err := s.persistLocked(ctx)
	view := s.viewLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("failed to clear persisted history", zap.Error(err))
	}
	s.publish(view)
	return err
}

// Flush retries a persist that previously failed. It is a no-op when the
// stored blob is current.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persistLocked(ctx)
}

// Dirty reports whether the persisted blob lags the in-memory history
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// persistLocked writes the whole sequence, or deletes the key when empty
func (s *Store) persistLocked(ctx context.Context) error {
	s.version++
	s.dirty = true

	if len(s.items) == 0 {
		if err := s.kv.Delete(ctx, s.key); err != nil {
			return &model.StorageError{Op: "delete", Key: s.key, Err: err}
		}
		s.dirty = false
		return nil
	}

	data, err := json.Marshal(s.items)
	if err != nil {
		return &model.StorageError{Op: "encode", Key: s.key, Err: err}
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return &model.StorageError{Op: "set", Key: s.key, Err: err}
	}
	s.dirty = false
	return nil
}

func (s *Store) viewLocked() View {
	items := make([]model.Product, len(s.items))
	copy(items, s.items)
	return View{
		Loading: !s.loaded,
		Version: s.version,
		Items:   items,
	}
}

func (s *Store) publish(view View) {
	if s.bus != nil {
		s.bus.Publish(events.TopicHistory, view)
	}
}

// normalize applies the write-time rules to data read from storage: one entry per
// barcode (the first wins), no empty barcodes, at most limit entries.
func normalize(items []model.Product, limit int) []model.Product {
	seen := make(map[string]bool, len(items))
	out := make([]model.Product, 0, len(items))
	for _, it := range items {
		if it.Barcode == "" || seen[it.Barcode] {
			continue
		}
		seen[it.Barcode] = true
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out
}
