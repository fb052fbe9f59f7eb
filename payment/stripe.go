package payment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	stripecustomer "github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/customersession"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/setupintent"

	"github.com/semanticallynull/rental-backend/customer"
)

type StripeGateway struct {
	customers customer.Store
	currency  string
	logger    *slog.Logger
}

func NewStripeGateway(customers customer.Store, currency string, logger *slog.Logger) *StripeGateway {
	return &StripeGateway{customers: customers, currency: currency, logger: logger}
}

// InitiateDeposit confirms an off-session PaymentIntent against a saved
// payment method. The returned reference is the intent ID.
func (g *StripeGateway) InitiateDeposit(ctx context.Context, userID uuid.UUID, amount int64, method string) (string, error) {
	cust, err := g.customers.GetCustomer(ctx, userID)
	if err != nil {
		return "", err
	}
	stripeID, err := g.ensureCustomer(ctx, cust)
	if err != nil {
		return "", err
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(g.currency),
		Customer:      stripe.String(stripeID),
		PaymentMethod: stripe.String(method),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.AddMetadata("user_id", userID.String())
	pi, err := paymentintent.New(params)
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to create payment intent", "userId", userID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}
	return pi.ID, nil
}

func (g *StripeGateway) ensureCustomer(ctx context.Context, cust *customer.Customer) (string, error) {
	if cust.StripeID.Valid {
		return cust.StripeID.String, nil
	}

	sc, err := stripecustomer.New(&stripe.CustomerParams{
		Metadata: map[string]string{
			"auth0_id": cust.Auth0ID,
			"id":       cust.ID.String(),
		},
	})
	if err != nil {
		g.logger.ErrorContext(ctx, "Failed to create stripe customer", "error", err)
		return "", fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}
	if err := g.customers.AddStripeIDToCustomer(ctx, cust.Auth0ID, sc.ID); err != nil {
		return "", err
	}
	cust.StripeID.String, cust.StripeID.Valid = sc.ID, true
	return sc.ID, nil
}

// SetupSession opens a customer sheet session and a setup intent so the app
// can save a card for later deposits.
func (g *StripeGateway) SetupSession(ctx context.Context, cust *customer.Customer) (SetupSession, error) {
	stripeID, err := g.ensureCustomer(ctx, cust)
	if err != nil {
		return SetupSession{}, err
	}

	csParams := &stripe.CustomerSessionParams{
		Customer: stripe.String(stripeID),
	}
	csParams.AddExtra("components[customer_sheet][enabled]", "true")
	csParams.AddExtra("components[customer_sheet][features][payment_method_remove]", "enabled")
	cs, err := customersession.New(csParams)
	if err != nil {
		return SetupSession{}, fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}

	si, err := setupintent.New(&stripe.SetupIntentParams{
		Customer: stripe.String(stripeID),
		AutomaticPaymentMethods: &stripe.SetupIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	})
	if err != nil {
		return SetupSession{}, fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}

	return SetupSession{
		CustomerID:   stripeID,
		ClientSecret: cs.ClientSecret,
		SetupIntent:  si.ClientSecret,
	}, nil
}
