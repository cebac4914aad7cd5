// Package events names the topics published on the application bus.
package events

import (
	EventBus "github.com/asaskevich/EventBus"
)

// Topics
const (
	// TopicHistory carries a history.View after every committed change
	TopicHistory = "history:changed"
	// TopicNavigate carries a Navigate after a successful lookup
	TopicNavigate = "scan:navigate"
	// TopicLookupFailed carries a LookupFailed
	TopicLookupFailed = "scan:lookup_failed"
)

// Bus is the publish/subscribe bus shared by the application
type Bus = EventBus.Bus

// New creates a bus
func New() Bus {
	return EventBus.New()
}

// Navigate asks the UI to open the detail view for Code
type Navigate struct {
	Code string `json:"code"`
}

// LookupFailed reports a scan that did not produce a product
type LookupFailed struct {
	Barcode string `json:"barcode"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}
