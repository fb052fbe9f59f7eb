// Package payment connects wallet deposits to Stripe. Deposits are recorded
// PENDING under the PaymentIntent ID and settled when the webhook reports the
// intent's outcome.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/semanticallynull/rental-backend/customer"
	"github.com/semanticallynull/rental-backend/internal/fault"
)

var ErrGatewayFailed = errors.New("payment gateway failed")

// SetupSession lets a rider's app manage saved payment methods.
type SetupSession struct {
	CustomerID   string `json:"customerId"`
	ClientSecret string `json:"clientSecret"`
	SetupIntent  string `json:"setupIntent"`
}

type Outcome int

const (
	Ignored Outcome = iota
	Succeeded
	Failed
)

// ParseWebhook verifies a Stripe webhook and reports the PaymentIntent ID it
// concerns and whether the payment went through.
func ParseWebhook(payload []byte, signature, secret string) (string, Outcome, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", Ignored, fault.Invalid("Stripe-Signature", err.Error())
	}

	var outcome Outcome
	switch event.Type {
	case "payment_intent.succeeded":
		outcome = Succeeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		outcome = Failed
	default:
		return "", Ignored, nil
	}

	var intent struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return "", Ignored, fault.Invalid("data", err.Error())
	}
	return intent.ID, outcome, nil
}

// FakeGateway accepts every deposit and hands out sequential references.
type FakeGateway struct {
	mu       sync.Mutex
	n        int
	Err      error
	Deposits map[string]int64
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{Deposits: make(map[string]int64)}
}

func (g *FakeGateway) InitiateDeposit(ctx context.Context, userID uuid.UUID, amount int64, method string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	g.n++
	ref := "pi_fake_" + strconv.Itoa(g.n)
	g.Deposits[ref] = amount
	return ref, nil
}

func (g *FakeGateway) SetupSession(ctx context.Context, c *customer.Customer) (SetupSession, error) {
	return SetupSession{
		CustomerID:   fmt.Sprintf("cus_fake_%s", c.ID),
		ClientSecret: "cs_fake",
		SetupIntent:  "seti_fake",
	}, nil
}
