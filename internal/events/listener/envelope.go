package listener

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	TypeCatalogVersionUpdated   = "catalog.version.updated"
	TypeOrderCreated            = "order.created"
	TypeOrderUpdated            = "order.updated"
	TypeOrderFulfillmentUpdated = "order.fulfillment.updated"
	TypeInventoryCountUpdated   = "inventory.count.updated"

	invoicePrefix = "invoice."
)

// Envelope is the webhook notification as published on the topic.
type Envelope struct {
	EventID    string       `json:"event_id"`
	Type       string       `json:"type"`
	MerchantID string       `json:"merchant_id"`
	CreatedAt  time.Time    `json:"created_at"`
	Data       EnvelopeData `json:"data"`
}

type EnvelopeData struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Object json.RawMessage `json:"object,omitempty"`
}

func DecodeEnvelope(value []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}
	return &env, nil
}

func isOrderEvent(eventType string) bool {
	switch eventType {
	case TypeOrderCreated, TypeOrderUpdated, TypeOrderFulfillmentUpdated:
		return true
	}
	return false
}

func isInvoiceEvent(eventType string) bool {
	return strings.HasPrefix(eventType, invoicePrefix)
}
