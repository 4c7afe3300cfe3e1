package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ManuelReschke/CourseFox/internal/pkg/env"
)

const defaultStripeAPIBaseURL = "https://api.stripe.com"

// IntentProvider creates charge handles at the external payment provider and
// reports their current state.
type IntentProvider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Event, error)
}

// StripeIntentStatusSucceeded is the payment intent status of a captured charge.
const StripeIntentStatusSucceeded = "succeeded"

type StripeClient struct {
	SecretKey  string
	APIBaseURL string
	Timeout    time.Duration

	http *resty.Client
}

type stripeIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Customer     string `json:"customer"`
}

type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewStripeClientFromEnv() *StripeClient {
	return NewStripeClient(
		strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		strings.TrimSpace(env.GetEnv("STRIPE_API_BASE_URL", defaultStripeAPIBaseURL)),
		env.GetEnvDuration("STRIPE_TIMEOUT", 15*time.Second),
	)
}

func NewStripeClient(secretKey, baseURL string, timeout time.Duration) *StripeClient {
	if baseURL == "" {
		baseURL = defaultStripeAPIBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeClient{
		SecretKey:  secretKey,
		APIBaseURL: strings.TrimRight(baseURL, "/"),
		Timeout:    timeout,
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetBasicAuth(secretKey, "").
			SetHeader("Accept", "application/json"),
	}
}

// CreateIntent opens a payment intent for the amount in minor units.
func (c *StripeClient) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if c.SecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}
	cents := toMinorUnits(req.Amount)
	if cents <= 0 {
		return nil, fmt.Errorf("intent amount must be positive, got %s", req.Amount)
	}

	form := map[string]string{
		"amount":                             strconv.FormatInt(cents, 10),
		"currency":                           normalizeCurrency(req.Currency),
		"automatic_payment_methods[enabled]": "true",
	}
	for k, v := range req.Metadata {
		form["metadata["+k+"]"] = v
	}

	var out stripeIntentResponse
	var apiErr stripeErrorResponse
	r := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		SetError(&apiErr)
	if req.IdempotencyKey != "" {
		r.SetHeader("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := r.Post("/v1/payment_intents")
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, fmt.Errorf("create payment intent: status %d: %s", resp.StatusCode(), msg)
	}
	if out.ID == "" || out.ClientSecret == "" {
		return nil, errors.New("create payment intent: incomplete provider response")
	}
	return &Intent{ID: out.ID, ClientSecret: out.ClientSecret, CustomerID: out.Customer}, nil
}

// RetrieveIntent loads a payment intent and maps it onto an Event. Only a
// succeeded intent yields EventSucceeded; any other status is EventIgnored.
func (c *StripeClient) RetrieveIntent(ctx context.Context, intentID string) (*Event, error) {
	if c.SecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, errors.New("payment intent id is required")
	}

	var out stripePaymentIntent
	var apiErr stripeErrorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", intentID).
		SetResult(&out).
		SetError(&apiErr).
		Get("/v1/payment_intents/{id}")
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}
	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, fmt.Errorf("retrieve payment intent: status %d: %s", resp.StatusCode(), msg)
	}
	if out.ID == "" {
		return nil, errors.New("retrieve payment intent: incomplete provider response")
	}

	kind := EventIgnored
	if out.Status == StripeIntentStatusSucceeded {
		kind = EventSucceeded
	}
	ev := paymentIntentEvent(out, kind)
	ev.ID = "retrieve:" + out.ID
	ev.Type = "payment_intent." + out.Status
	return ev, nil
}
