package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"nutriscan/internal/history"
	"nutriscan/internal/model"
	"nutriscan/internal/nutrition"
	"nutriscan/internal/scan"
)

// HistoryStore defines the history operations needed by handlers
type HistoryStore interface {
	View() history.View
	Clear(ctx context.Context) error
}

// ProductCache defines the cached product lookup needed by handlers
type ProductCache interface {
	Get(code string) (*model.ProductPayload, bool)
	Clear(ctx context.Context) error
}

// Scanner receives decoded barcodes
type Scanner interface {
	OnScanEvent(ev model.ScanEvent) error
	Status() scan.Status
}

// Flusher persists unsaved state
type Flusher interface {
	Flush(ctx context.Context) error
}

// Handlers contains all API handlers
type Handlers struct {
	history  HistoryStore
	products ProductCache
	scanner  Scanner
	flusher  Flusher
	broker   *Broker
	logger   *zap.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(hist HistoryStore, products ProductCache, scanner Scanner, flusher Flusher, broker *Broker, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		history:  hist,
		products: products,
		scanner:  scanner,
		flusher:  flusher,
		broker:   broker,
		logger:   logger,
	}
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	view := h.history.View()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"loading":   view.Loading,
	})
}

// GetHistory returns the history, most recent scan first
func (h *Handlers) GetHistory(c *gin.Context) {
	view := h.history.View()

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.JSON(http.StatusOK, gin.H{
		"loading": view.Loading,
		"version": view.Version,
		"count":   len(view.Items),
		"items":   view.Items,
	})
}

// ClearHistory empties the history and the product cache
func (h *Handlers) ClearHistory(c *gin.Context) {
	ctx := c.Request.Context()

	err := h.history.Clear(ctx)
	if errors.Is(err, model.ErrNotLoaded) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is still loading"})
		return
	}

	// both are emptied in memory even when persisting fails
	if cacheErr := h.products.Clear(ctx); cacheErr != nil {
		h.logger.Warn("failed to clear product cache", zap.Error(cacheErr))
	}

	if err != nil {
		h.logger.Error("failed to clear history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "history cleared but could not be saved",
			"cleared": true,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "history cleared"})
}

// Scan feeds a decoded barcode to the scan controller
func (h *Handlers) Scan(c *gin.Context) {
	var ev model.ScanEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	err := h.scanner.OnScanEvent(ev)
	switch {
	case errors.Is(err, scan.ErrEmptyBarcode), errors.Is(err, scan.ErrUnsupportedSymbology):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, scan.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("scan rejected", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan rejected"})
		return
	}

	c.JSON(http.StatusAccepted, h.scanner.Status())
}

// GetScanStatus returns the debounce and lookup state
func (h *Handlers) GetScanStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scanner.Status())
}

type productDetail struct {
	*model.ProductPayload
	Name      string           `json:"name"`
	Grade     string           `json:"grade"`
	Verdict   string           `json:"verdict"`
	Breakdown []nutrition.Item `json:"breakdown"`
}

// GetProduct returns the cached payload of a scanned product with its
// nutrient breakdown
func (h *Handlers) GetProduct(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product code is required"})
		return
	}

	p, ok := h.products.Get(code)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	breakdown := nutrition.Breakdown(p)
	if breakdown == nil {
		breakdown = []nutrition.Item{}
	}
	c.JSON(http.StatusOK, productDetail{
		ProductPayload: p,
		Name:           p.DisplayName(),
		Grade:          nutrition.Grade(p.Score),
		Verdict:        nutrition.Verdict(p.Score),
		Breakdown:      breakdown,
	})
}

// Events streams history views, navigation and lookup failures
func (h *Handlers) Events(c *gin.Context) {
	ch, unsubscribe := h.broker.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, ev.Data)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// Flush retries persisting state that failed to save
func (h *Handlers) Flush(c *gin.Context) {
	if err := h.flusher.Flush(c.Request.Context()); err != nil {
		h.logger.Error("manual flush failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "flush failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "flushed"})
}
