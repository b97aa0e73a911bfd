// Package eventstore keeps a short-lived, queryable history of order and
// product events. Records expire after a TTL; the store is an audit trail,
// not permanent history.
package eventstore

import (
	"context"
	"errors"
	"fmt"
)

var ErrStoreUnavailable = errors.New("event store unavailable")

// Info is the event-specific detail carried by a record.
type Info struct {
	OrderID      string   `json:"orderId,omitempty"`
	ProductCodes []string `json:"productCodes,omitempty"`
	MessageID    string   `json:"messageId,omitempty"`
	ProductID    string   `json:"productId,omitempty"`
	ProductPrice float64  `json:"productPrice,omitempty"`
}

// Record is one row of event history. PK groups all history for one
// entity, SK orders it chronologically within an event-type family.
// TTL is an absolute unix-seconds expiry; CreatedAt is unix millis.
type Record struct {
	PK        string `json:"pk"`
	SK        string `json:"sk"`
	TTL       int64  `json:"ttl"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"createdAt"`
	RequestID string `json:"requestId"`
	EventType string `json:"eventType"`
	Info      Info   `json:"info"`
}

// PartitionKey builds the entity partition key, e.g. "#order_o1".
func PartitionKey(kind, subjectID string) string {
	return fmt.Sprintf("#%s_%s", kind, subjectID)
}

// SortKey builds the chronological sort key, e.g. "ORDER_CREATED#1700000000000".
func SortKey(eventType string, createdAt int64) string {
	return fmt.Sprintf("%s#%d", eventType, createdAt)
}

// Store is the event history contract. Append is last-write-wins on the
// (pk, sk) key, so retrying an identical write is harmless. Queries never
// return expired records and yield empty results rather than errors when
// nothing matches.
type Store interface {
	// Append writes one record, overwriting any record with the same key,
	// and returns the written record.
	Append(ctx context.Context, rec Record) (Record, error)
	// QueryByEntity returns all live records for one entity partition,
	// ordered by sort key ascending.
	QueryByEntity(ctx context.Context, kind, subjectID string) ([]Record, error)
	// QueryByCustomer returns all live records for a customer, restricted
	// to event types sharing eventTypePrefix when it is non-empty. Results
	// are ordered by event type, then occurrence time.
	QueryByCustomer(ctx context.Context, email, eventTypePrefix string) ([]Record, error)
}
