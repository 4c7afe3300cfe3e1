package billing

import (
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/CourseFox/app/models"
)

// EventKind is the provider-neutral classification of a payment event.
type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventRefunded  EventKind = "refunded"
	EventIgnored   EventKind = "ignored"
)

// Event is a verified provider event normalized for settlement.
type Event struct {
	ID             string
	Type           string
	Kind           EventKind
	IntentID       string
	AmountReceived decimal.Decimal
	Currency       string
	ReceiptURL     string
	CustomerID     string
	FailureReason  string
}

// Outcome describes what settlement did with an event.
type Outcome string

const (
	OutcomeSettled  Outcome = "settled"
	OutcomeReplayed Outcome = "replayed"
	OutcomeFailed   Outcome = "failed"
	OutcomeRefunded Outcome = "refunded"
	OutcomeRejected Outcome = "rejected"
	OutcomeIgnored  Outcome = "ignored"
	OutcomeError    Outcome = "error"
)

// SettlementResult is returned by Settle. Enrollment is nil for events that
// do not grant access.
type SettlementResult struct {
	Payment    *models.Payment
	Enrollment *models.Enrollment
	Outcome    Outcome
}

// CourseSummary is the slice of a course echoed back to the checkout client.
type CourseSummary struct {
	ID        uint   `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
}

// IntentResult is returned by OpenPayment. Free courses settle immediately and
// carry the enrollment instead of a client secret.
type IntentResult struct {
	ClientSecret string             `json:"clientSecret,omitempty"`
	PaymentID    uint               `json:"paymentId,omitempty"`
	Amount       decimal.Decimal    `json:"amount"`
	Currency     string             `json:"currency"`
	Course       CourseSummary      `json:"course"`
	Enrollment   *models.Enrollment `json:"enrollment,omitempty"`
	Free         bool               `json:"free"`
}

// IntentRequest is what the provider needs to create a charge handle.
type IntentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the provider handle for a pending charge.
type Intent struct {
	ID           string
	ClientSecret string
	CustomerID   string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}
