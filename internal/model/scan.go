package model

import "strings"

// Supported barcode symbologies
const (
	SymbologyEAN13 = "ean13"
	SymbologyEAN8  = "ean8"
)

// ScanEvent is a decoded barcode delivered by the camera
type ScanEvent struct {
	Data string `json:"data"`
	Type string `json:"type,omitempty"`
}

// Barcode returns the trimmed barcode payload
func (e ScanEvent) Barcode() string {
	return strings.TrimSpace(e.Data)
}

// SupportedSymbology reports whether the event type can be looked up.
// An empty type is accepted for callers that do not report one.
func (e ScanEvent) SupportedSymbology() bool {
	switch strings.ToLower(strings.TrimSpace(e.Type)) {
	case "", SymbologyEAN13, SymbologyEAN8:
		return true
	}
	return false
}
