// Package events carries domain events from the service layer to a broker.
package events

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Routing keys on the library topic exchange.
const (
	LoanCreated  = "loan.created"
	LoanReturned = "loan.returned"
	LoanExtended = "loan.extended"
)

// Event is the envelope published for every domain event.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// Encode serialises the event body.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to their destination.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}
