package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventStockUpdated          = "pharmacy.stock.updated"
	EventStockRemoved          = "pharmacy.stock.removed"
	EventAlertCreated          = "pharmacy.alert.created"
	EventAlertResolved         = "pharmacy.alert.resolved"
	EventPrescriptionDispensed = "pharmacy.prescription.dispensed"
)

// Exchange names
const (
	ExchangePharmacyEvents = "pharmacy.events"
)

// Event is the base event structure
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// StockUpdatedEvent is published when a stock lot is merged or appended.
type StockUpdatedEvent struct {
	ProductName string `json:"product_name"`
	Batch       string `json:"batch"`
	Quantity    int    `json:"quantity"`
	Merged      bool   `json:"merged"`
}

// StockRemovedEvent is published when stock rows are deleted.
type StockRemovedEvent struct {
	ProductName    string `json:"product_name,omitempty"`
	Batch          string `json:"batch,omitempty"`
	RowsRemoved    int    `json:"rows_removed"`
	AlertsResolved int    `json:"alerts_resolved"`
}

// AlertCreatedEvent is published when a new alert row is created.
type AlertCreatedEvent struct {
	AlertID      string `json:"alert_id"`
	ProductName  string `json:"product_name"`
	Batch        string `json:"batch"`
	AlertType    string `json:"alert_type"`
	DaysToExpiry *int   `json:"days_to_expiry,omitempty"`
}

// AlertResolvedEvent is published when an alert is resolved.
type AlertResolvedEvent struct {
	AlertID    string `json:"alert_id"`
	ResolvedBy string `json:"resolved_by"`
}

// PrescriptionDispensedEvent is published when a prescription is dispensed.
type PrescriptionDispensedEvent struct {
	PrescriptionID string `json:"prescription_id"`
	PatientID      string `json:"patient_id"`
	ItemsApplied   int    `json:"items_applied"`
	ItemsSkipped   int    `json:"items_skipped"`
}
