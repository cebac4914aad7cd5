package model

import (
	"math"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cast"
)

// Product is a history entry for a scanned product
type Product struct {
	ID        string    `json:"id"`
	Barcode   string    `json:"barcode"`
	Name      string    `json:"name"`
	Grade     *int      `json:"grade,omitempty"` // 0-100 nutrition score
	Image     string    `json:"image,omitempty"`
	ScannedAt time.Time `json:"scannedAt"`
}

// productJSON mirrors Product with loosely typed fields, so older blobs that
// carry a letter grade or a non RFC 3339 timestamp still load.
type productJSON struct {
	ID        string      `json:"id"`
	Barcode   string      `json:"barcode"`
	Name      string      `json:"name"`
	Grade     interface{} `json:"grade,omitempty"`
	Image     string      `json:"image,omitempty"`
	ScannedAt string      `json:"scannedAt"`
}

// UnmarshalJSON decodes a persisted history entry
func (p *Product) UnmarshalJSON(data []byte) error {
	var raw productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = Product{
		ID:      raw.ID,
		Barcode: raw.Barcode,
		Name:    raw.Name,
		Image:   raw.Image,
		Grade:   coerceGrade(raw.Grade),
	}

	if raw.ScannedAt != "" {
		t, err := dateparse.ParseAny(raw.ScannedAt)
		if err != nil {
			return &MalformedDataError{Source: "scannedAt", Err: err}
		}
		p.ScannedAt = t.UTC()
	}
	return nil
}

// MarshalJSON encodes the entry with an ISO-8601 timestamp
func (p Product) MarshalJSON() ([]byte, error) {
	raw := productJSON{
		ID:      p.ID,
		Barcode: p.Barcode,
		Name:    p.Name,
		Image:   p.Image,
	}
	if p.Grade != nil {
		raw.Grade = *p.Grade
	}
	if !p.ScannedAt.IsZero() {
		raw.ScannedAt = p.ScannedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(raw)
}

func coerceGrade(v interface{}) *int {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) {
		return nil
	}
	f = math.Max(0, math.Min(100, math.Round(f)))
	g := int(f)
	return &g
}

// IntPtr is a convenience for optional grades
func IntPtr(v int) *int {
	return &v
}

// Summary builds the history entry for a fetched payload
func (p *ProductPayload) Summary() Product {
	return Product{
		Barcode: p.Code,
		Name:    p.DisplayName(),
		Grade:   IntPtr(p.Score),
		Image:   p.ImageURL,
	}
}
