// Package event defines the immutable envelope published for every order
// and product state change.
package event

import (
	"encoding/json"
	"fmt"
)

type Type string

const (
	OrderCreated   Type = "ORDER_CREATED"
	OrderDeleted   Type = "ORDER_DELETED"
	ProductCreated Type = "PRODUCT_CREATED"
	ProductUpdated Type = "PRODUCT_UPDATED"
	ProductDeleted Type = "PRODUCT_DELETED"
)

const (
	KindOrder   = "order"
	KindProduct = "product"
)

type Shipping struct {
	Type    string `json:"type"`
	Carrier string `json:"carrier"`
}

type Billing struct {
	Payment string  `json:"payment"`
	Total   float64 `json:"total"`
}

// Data is the type-specific payload. Order events fill the order fields,
// product events the product fields; RequestID is carried end to end.
type Data struct {
	Email        string   `json:"email"`
	OrderID      string   `json:"orderId,omitempty"`
	Shipping     Shipping `json:"shipping,omitzero"`
	Billing      Billing  `json:"billing,omitzero"`
	ProductCodes []string `json:"productCodes,omitempty"`
	ProductID    string   `json:"productId,omitempty"`
	ProductCode  string   `json:"productCode,omitempty"`
	ProductPrice float64  `json:"productPrice,omitempty"`
	RequestID    string   `json:"requestId"`
}

// Envelope is published once per state change and never mutated after
// publish; consumers only derive new records from it.
type Envelope struct {
	Type Type `json:"eventType"`
	Data Data `json:"data"`
}

type MalformedEventError struct {
	Type  Type
	Field string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event: missing %s", e.Type, e.Field)
}

func missing(t Type, field string) error {
	return &MalformedEventError{Type: t, Field: field}
}

// Validate checks that the event type is recognized and that the payload
// fields the type requires are present.
func (e Envelope) Validate() error {
	if e.Data.RequestID == "" {
		return missing(e.Type, "requestId")
	}
	switch e.Type {
	case OrderCreated, OrderDeleted:
		if e.Data.OrderID == "" {
			return missing(e.Type, "orderId")
		}
		if e.Data.Email == "" {
			return missing(e.Type, "email")
		}
		if e.Data.Shipping == (Shipping{}) {
			return missing(e.Type, "shipping")
		}
		if e.Data.Billing == (Billing{}) {
			return missing(e.Type, "billing")
		}
		return nil
	case ProductCreated, ProductUpdated, ProductDeleted:
		if e.Data.ProductID == "" {
			return missing(e.Type, "productId")
		}
		if e.Data.ProductCode == "" {
			return missing(e.Type, "productCode")
		}
		return nil
	default:
		return missing(e.Type, "eventType")
	}
}

// SubjectID is the identifier of the entity the event describes: the
// order id for ORDER_* events, the product code for PRODUCT_* events.
func (e Envelope) SubjectID() string {
	switch e.Type {
	case OrderCreated, OrderDeleted:
		return e.Data.OrderID
	case ProductCreated, ProductUpdated, ProductDeleted:
		return e.Data.ProductCode
	default:
		return ""
	}
}

// EntityKind partitions event history between orders and products.
func (e Envelope) EntityKind() string {
	switch e.Type {
	case OrderCreated, OrderDeleted:
		return KindOrder
	default:
		return KindProduct
	}
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode event: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
