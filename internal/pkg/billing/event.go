package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	StripeEventIntentSucceeded = "payment_intent.succeeded"
	StripeEventIntentFailed    = "payment_intent.payment_failed"
	StripeEventChargeRefunded  = "charge.refunded"
)

type stripeEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripePaymentIntent struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	AmountReceived int64  `json:"amount_received"`
	Currency       string `json:"currency"`
	Customer       string `json:"customer"`
	Charges        struct {
		Data []struct {
			ReceiptURL string `json:"receipt_url"`
		} `json:"data"`
	} `json:"charges"`
	LastPaymentError *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"last_payment_error"`
}

type stripeCharge struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	Customer       string `json:"customer"`
	ReceiptURL     string `json:"receipt_url"`
}

// ParseStripeEvent normalizes a verified webhook body. Unknown event types
// parse successfully with Kind EventIgnored.
func ParseStripeEvent(payload []byte) (*Event, error) {
	var env stripeEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return nil, errors.New("event type missing")
	}

	ev := &Event{ID: strings.TrimSpace(env.ID), Type: env.Type, Kind: EventIgnored}
	switch env.Type {
	case StripeEventIntentSucceeded, StripeEventIntentFailed:
		var pi stripePaymentIntent
		if err := json.Unmarshal(env.Data.Object, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		if pi.ID == "" {
			return nil, errors.New("payment intent id missing")
		}
		kind := EventFailed
		if env.Type == StripeEventIntentSucceeded {
			kind = EventSucceeded
		}
		intentEv := paymentIntentEvent(pi, kind)
		intentEv.ID, intentEv.Type = ev.ID, ev.Type
		ev = intentEv
	case StripeEventChargeRefunded:
		var ch stripeCharge
		if err := json.Unmarshal(env.Data.Object, &ch); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent == "" {
			return nil, errors.New("charge is not linked to a payment intent")
		}
		ev.Kind = EventRefunded
		ev.IntentID = ch.PaymentIntent
		ev.AmountReceived = fromMinorUnits(ch.AmountRefunded)
		ev.Currency = normalizeCurrency(ch.Currency)
		ev.CustomerID = ch.Customer
		ev.ReceiptURL = ch.ReceiptURL
	}
	return ev, nil
}

// paymentIntentEvent maps a payment intent object onto an Event of the given kind.
func paymentIntentEvent(pi stripePaymentIntent, kind EventKind) *Event {
	ev := &Event{
		Kind:       kind,
		IntentID:   pi.ID,
		Currency:   normalizeCurrency(pi.Currency),
		CustomerID: pi.Customer,
	}
	switch kind {
	case EventSucceeded:
		ev.AmountReceived = fromMinorUnits(pi.AmountReceived)
		if len(pi.Charges.Data) > 0 {
			ev.ReceiptURL = pi.Charges.Data[0].ReceiptURL
		}
	case EventFailed:
		ev.FailureReason = "payment failed"
		if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
			ev.FailureReason = pi.LastPaymentError.Message
		}
	}
	return ev
}
