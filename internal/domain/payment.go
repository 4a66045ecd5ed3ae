package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/natureofthedivine/storefront/internal/apperr"
)

// Kind names a product line that goes through the payment lifecycle.
type Kind string

const (
	KindOrder    Kind = "order"
	KindDonation Kind = "donation"
)

func (k Kind) Valid() bool {
	return k == KindOrder || k == KindDonation
}

type PaymentStatus string

const (
	StatusPending PaymentStatus = "PENDING"
	StatusSuccess PaymentStatus = "SUCCESS"
	StatusFailure PaymentStatus = "FAILURE"
)

// Terminal reports whether no transition is defined out of s.
func (s PaymentStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

type FulfillmentStatus string

const (
	FulfillmentNew        FulfillmentStatus = "new"
	FulfillmentDispatched FulfillmentStatus = "dispatched"
	FulfillmentDelivered  FulfillmentStatus = "delivered"
	FulfillmentCancelled  FulfillmentStatus = "cancelled"
)

var fulfillmentMoves = map[FulfillmentStatus][]FulfillmentStatus{
	FulfillmentNew:        {FulfillmentDispatched, FulfillmentCancelled},
	FulfillmentDispatched: {FulfillmentDelivered, FulfillmentCancelled},
}

// CanMoveTo reports whether the fulfilment lifecycle allows f -> next.
func (f FulfillmentStatus) CanMoveTo(next FulfillmentStatus) bool {
	for _, s := range fulfillmentMoves[f] {
		if s == next {
			return true
		}
	}
	return false
}

// Payment carries the lifecycle fields shared by orders and donations.
// Amount is in minor currency units and never changes after creation.
type Payment struct {
	ID                    string          `json:"id" dynamodbav:"id"`
	MerchantTransactionID string          `json:"merchantTransactionId" dynamodbav:"merchant_transaction_id"`
	UserID                string          `json:"userId" dynamodbav:"user_id"`
	Amount                int64           `json:"amount" dynamodbav:"amount"`
	Currency              string          `json:"currency" dynamodbav:"currency"`
	Status                PaymentStatus   `json:"status" dynamodbav:"status"`
	PaymentDetails        json.RawMessage `json:"paymentDetails,omitempty" dynamodbav:"payment_details,omitempty"`
	CreatedAt             time.Time       `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt             time.Time       `json:"updatedAt" dynamodbav:"updated_at"`
}

type Address struct {
	Line1    string `json:"line1" dynamodbav:"line1"`
	Line2    string `json:"line2,omitempty" dynamodbav:"line2,omitempty"`
	City     string `json:"city" dynamodbav:"city"`
	State    string `json:"state" dynamodbav:"state"`
	Postcode string `json:"postcode" dynamodbav:"postcode"`
	Country  string `json:"country" dynamodbav:"country"`
}

type Order struct {
	Payment
	Variant           string            `json:"variant" dynamodbav:"variant"`
	Quantity          int               `json:"quantity" dynamodbav:"quantity"`
	Name              string            `json:"name" dynamodbav:"name"`
	Email             string            `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Phone             string            `json:"phone" dynamodbav:"phone"`
	Address           Address           `json:"address" dynamodbav:"address"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillmentStatus" dynamodbav:"fulfillment_status"`
}

// CheckFulfillment reports whether o may move to the given fulfilment status.
// Only paid orders ship.
func (o *Order) CheckFulfillment(to FulfillmentStatus) error {
	if o.Status != StatusSuccess {
		return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, apperr.ErrInvalidTransition)
	}
	if !o.FulfillmentStatus.CanMoveTo(to) {
		return fmt.Errorf("order %s %s -> %s: %w", o.ID, o.FulfillmentStatus, to, apperr.ErrInvalidTransition)
	}
	return nil
}

type Donation struct {
	Payment
	Name    string `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Phone   string `json:"phone" dynamodbav:"phone"`
	Message string `json:"message,omitempty" dynamodbav:"message,omitempty"`
}

// Transition is a requested move out of PENDING. Details replaces the stored
// payment details; it is never merged.
type Transition struct {
	To      PaymentStatus
	Details json.RawMessage
	At      time.Time
}

// ListFilter narrows admin listings. Zero values mean "any" and the default
// page size.
type ListFilter struct {
	Status PaymentStatus
	Page   int
	Limit  int
}

// Normalize applies the default page and limit.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return f
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}
