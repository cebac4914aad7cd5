// Package scan turns the stream of decoded barcodes from the camera into at
// most one product lookup per settle period.
package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"nutriscan/internal/events"
	"nutriscan/internal/model"
	"nutriscan/internal/nutrition"
)

// DefaultSettle is the quiet period after the last scan before a lookup
const DefaultSettle = time.Second

var (
	// ErrEmptyBarcode is returned for a scan event without data
	ErrEmptyBarcode = errors.New("scan event has no barcode")
	// ErrUnsupportedSymbology is returned for barcode types other than EAN
	ErrUnsupportedSymbology = errors.New("unsupported barcode type")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("scan controller closed")
)

// Fetcher looks a barcode up in the remote product database
type Fetcher interface {
	FetchByBarcode(ctx context.Context, barcode string) (*model.ProductPayload, error)
}

// History records a successful scan
type History interface {
	Upsert(ctx context.Context, p model.Product) ([]model.Product, error)
}

// ProductSaver keeps the full payload for the detail view
type ProductSaver interface {
	Save(ctx context.Context, p *model.ProductPayload) error
}

// State of the settle timer
type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

// Status is a snapshot of the controller
type Status struct {
	State    string     `json:"state"`
	Pending  string     `json:"pending,omitempty"`
	Deadline *time.Time `json:"deadline,omitempty"`
	Fetching bool       `json:"fetching"`
}

// Options configures a Controller
type Options struct {
	Settle   time.Duration
	Clock    clockwork.Clock
	Fetcher  Fetcher
	History  History
	Products ProductSaver
	Bus      events.Bus
	Logger   *zap.Logger
}

// Controller debounces scan events. The settle timer is either Idle or
// Armed with the latest payload; a separate fetching flag keeps at most one
// lookup in flight. A timer that fires during a lookup is dropped.
type Controller struct {
	settle   time.Duration
	clock    clockwork.Clock
	fetcher  Fetcher
	history  History
	products ProductSaver
	bus      events.Bus
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	pending  model.ScanEvent
	deadline time.Time
	timer    clockwork.Timer
	gen      uint64
	fetching bool
	closed   bool
}

// NewController creates a controller. Fetcher and History are required.
func NewController(opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		settle:   opts.Settle,
		clock:    opts.Clock,
		fetcher:  opts.Fetcher,
		history:  opts.History,
		products: opts.Products,
		bus:      opts.Bus,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	if c.settle <= 0 {
		c.settle = DefaultSettle
	}
	if c.clock == nil {
		c.clock = clockwork.NewRealClock()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// OnScanEvent accepts a decoded barcode and (re)arms the settle timer with it
func (c *Controller) OnScanEvent(ev model.ScanEvent) error {
	if ev.Barcode() == "" {
		return ErrEmptyBarcode
	}
	if !ev.SupportedSymbology() {
		return ErrUnsupportedSymbology
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.state = Armed
	c.pending = ev
	c.deadline = c.clock.Now().Add(c.settle)
	c.timer = c.clock.AfterFunc(c.settle, func() { c.fire(gen) })
	return nil
}

// fire runs when the settle timer for generation gen expires
func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen || c.state != Armed {
		c.mu.Unlock()
		return
	}
	ev := c.pending
	c.state = Idle
	c.pending = model.ScanEvent{}
	c.deadline = time.Time{}
	c.timer = nil

	if c.fetching {
		c.mu.Unlock()
		c.logger.Debug("lookup in flight, dropping settled scan", zap.String("barcode", ev.Barcode()))
		return
	}
	c.fetching = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.fetching = false
			c.mu.Unlock()
		}()
		c.lookup(ev.Barcode())
	}()
}

func (c *Controller) lookup(barcode string) {
	log := c.logger.With(zap.String("barcode", barcode))
	start := c.clock.Now()

	payload, err := c.fetcher.FetchByBarcode(c.ctx, barcode)
	if err != nil {
		kind := model.LookupFailureKind(err)
		log.Warn("product lookup failed", zap.String("kind", kind), zap.Error(err))
		c.publish(events.TopicLookupFailed, events.LookupFailed{
			Barcode: barcode,
			Kind:    kind,
			Error:   err.Error(),
		})
		return
	}

	payload.Score = nutrition.Score(payload.Nutriments)

	if c.products != nil {
		if err := c.products.Save(c.ctx, payload); err != nil {
			log.Error("failed to cache product", zap.Error(err))
		}
	}

	if _, err := c.history.Upsert(c.ctx, payload.Summary()); err != nil {
		var storageErr *model.StorageError
		if !errors.As(err, &storageErr) {
			log.Error("failed to record scan", zap.Error(err))
			return
		}
		// the in-memory history holds the record; persistence is retried on flush
		log.Warn("scan recorded but not persisted", zap.Error(err))
	}

	log.Info("product scanned",
		zap.String("name", payload.DisplayName()),
		zap.Int("score", payload.Score),
		zap.Duration("elapsed", c.clock.Now().Sub(start)),
	)
	c.publish(events.TopicNavigate, events.Navigate{Code: payload.Code})
}

func (c *Controller) publish(topic string, arg interface{}) {
	if c.bus != nil {
		c.bus.Publish(topic, arg)
	}
}

// Status returns a snapshot of the timer state and the fetching flag
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:    c.state.String(),
		Pending:  c.pending.Barcode(),
		Fetching: c.fetching,
	}
	if c.state == Armed {
		deadline := c.deadline
		st.Deadline = &deadline
	}
	return st
}

// Wait blocks until in-flight lookups finish
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close disarms the timer, cancels an in-flight lookup and waits for it
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.state = Idle
	c.pending = model.ScanEvent{}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.logger.Info("scan controller stopped")
}
