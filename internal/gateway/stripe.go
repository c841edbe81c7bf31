package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/pkg/logger"
)

// StripeGateway implements models.PaymentGateway against the Stripe API. One
// instance is constructed at startup and shared; the stripe client is safe
// for concurrent use.
type StripeGateway struct {
	logger *logger.Logger

	api           *client.API
	repo          models.Repository
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string, repo models.Repository, logger *logger.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeGateway{
		logger:        logger,
		api:           api,
		repo:          repo,
		webhookSecret: webhookSecret,
	}
}

// EnsureCustomer returns the gateway customer for a user, creating one on
// first use. A stored reference the gateway no longer accepts (deleted or
// unknown customer) is replaced with a fresh one.
func (g *StripeGateway) EnsureCustomer(ctx context.Context, userID string) (string, error) {
	ref, err := g.repo.GetGatewayCustomerRef(userID)
	if err != nil {
		return "", err
	}

	if ref != "" {
		customer, err := g.api.Customers.Get(ref, &stripe.CustomerParams{Params: stripe.Params{Context: ctx}})
		if err == nil && !customer.Deleted {
			return ref, nil
		}
		g.logger.Warn("Stored gateway customer no longer valid, recreating ", "user ", userID, " customer ", ref)
	}

	params := &stripe.CustomerParams{Params: stripe.Params{Context: ctx}}
	params.AddMetadata("user_id", userID)
	customer, err := g.api.Customers.New(params)
	if err != nil {
		return "", g.fail("customer_create", userID, 0, "", err)
	}

	if err := g.repo.SaveGatewayCustomerRef(userID, customer.ID); err != nil {
		return "", err
	}
	return customer.ID, nil
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context, customerRef string) (*models.SetupIntent, error) {
	params := &stripe.SetupIntentParams{
		Params:             stripe.Params{Context: ctx},
		Customer:           stripe.String(customerRef),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	intent, err := g.api.SetupIntents.New(params)
	if err != nil {
		return nil, g.fail("setup_intent_create", "", 0, "", err)
	}

	return &models.SetupIntent{Ref: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, in *models.PaymentIntentInput) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params:           stripe.Params{Context: ctx},
		Amount:           stripe.Int64(in.Amount),
		Currency:         stripe.String(in.Currency),
		Customer:         stripe.String(in.CustomerRef),
		SetupFutureUsage: stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession)),
	}
	if in.InstrumentRef != "" {
		params.PaymentMethod = stripe.String(in.InstrumentRef)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, g.fail("payment_intent_create", "", in.Amount, in.Currency, err)
	}

	return toPaymentIntent(intent), nil
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, ref string) (*models.PaymentIntent, error) {
	intent, err := g.api.PaymentIntents.Get(ref, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return nil, g.fail("payment_intent_get", "", 0, "", err)
	}

	return toPaymentIntent(intent), nil
}

func (g *StripeGateway) GetPaymentMethod(ctx context.Context, ref string) (*models.InstrumentDetails, error) {
	method, err := g.api.PaymentMethods.Get(ref, &stripe.PaymentMethodParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return nil, g.fail("payment_method_get", "", 0, "", err)
	}

	details := &models.InstrumentDetails{Ref: method.ID}
	if method.Card != nil {
		details.Brand = string(method.Card.Brand)
		details.Last4 = method.Card.Last4
		details.ExpMonth = method.Card.ExpMonth
		details.ExpYear = method.Card.ExpYear
	}
	return details, nil
}

func (g *StripeGateway) DetachPaymentMethod(ctx context.Context, ref string) error {
	_, err := g.api.PaymentMethods.Detach(ref, &stripe.PaymentMethodDetachParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return g.fail("payment_method_detach", "", 0, "", err)
	}
	return nil
}

// CreateSubscription creates a dedicated price object for this donor's
// series and subscribes the customer to it. Prices are never shared across
// donors, so canceling one subscription cannot affect another.
func (g *StripeGateway) CreateSubscription(ctx context.Context, in *models.SubscriptionInput) (*models.Subscription, error) {
	price, err := g.api.Prices.New(&stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Currency:   stripe.String(in.Currency),
		UnitAmount: stripe.Int64(in.Amount),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(string(in.Interval)),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(in.Description),
		},
	})
	if err != nil {
		return nil, g.fail("price_create", "", in.Amount, in.Currency, err)
	}

	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(in.CustomerRef),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(price.ID)},
		},
	}
	if in.InstrumentRef != "" {
		params.DefaultPaymentMethod = stripe.String(in.InstrumentRef)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return nil, g.fail("subscription_create", "", in.Amount, in.Currency, err)
	}

	out := &models.Subscription{
		Ref:              sub.ID,
		PriceRef:         price.ID,
		Status:           string(sub.Status),
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	}
	if sub.LatestInvoice != nil && sub.LatestInvoice.PaymentIntent != nil {
		out.FirstIntentRef = sub.LatestInvoice.PaymentIntent.ID
	}
	return out, nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, ref string) error {
	_, err := g.api.Subscriptions.Cancel(ref, &stripe.SubscriptionCancelParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return g.fail("subscription_cancel", "", 0, "", err)
	}
	return nil
}

// VerifyWebhook authenticates a delivery and translates it into a neutral
// event. Signature failure is the only rejection; a verified payload that
// fails to parse comes back as an error the transport still acknowledges.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*models.GatewayEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrWebhookSignature, err)
	}

	return translateEvent(&event)
}

func translateEvent(event *stripe.Event) (*models.GatewayEvent, error) {
	out := &models.GatewayEvent{ID: event.ID, RawType: string(event.Type)}

	switch string(event.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("failed to parse %s event: %s", event.Type, err)
		}
		out.IntentRef = intent.ID
		if intent.LatestCharge != nil {
			out.ChargeRef = intent.LatestCharge.ID
		}
		if string(event.Type) == "payment_intent.succeeded" {
			out.Kind = models.GatewayEventPaymentSucceeded
		} else {
			out.Kind = models.GatewayEventPaymentFailed
			if intent.LastPaymentError != nil {
				out.FailureMessage = intent.LastPaymentError.Msg
			}
		}
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return nil, fmt.Errorf("failed to parse %s event: %s", event.Type, err)
		}
		out.Kind = models.GatewayEventChargeRefunded
		out.ChargeRef = charge.ID
		if charge.PaymentIntent != nil {
			out.IntentRef = charge.PaymentIntent.ID
		}
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to parse %s event: %s", event.Type, err)
		}
		out.SubscriptionRef = sub.ID
		out.SubscriptionStatus = string(sub.Status)
		out.CurrentPeriodEnd = sub.CurrentPeriodEnd
		switch string(event.Type) {
		case "customer.subscription.created":
			out.Kind = models.GatewayEventSubscriptionCreated
		case "customer.subscription.updated":
			out.Kind = models.GatewayEventSubscriptionUpdated
		default:
			out.Kind = models.GatewayEventSubscriptionDeleted
		}
	default:
		out.Kind = models.GatewayEventUnknown
	}

	return out, nil
}

func toPaymentIntent(intent *stripe.PaymentIntent) *models.PaymentIntent {
	out := &models.PaymentIntent{
		Ref:          intent.ID,
		ClientSecret: intent.ClientSecret,
		Succeeded:    intent.Status == stripe.PaymentIntentStatusSucceeded,
		Amount:       intent.Amount,
		Currency:     string(intent.Currency),
		Metadata:     intent.Metadata,
	}
	if intent.LatestCharge != nil {
		out.ChargeRef = intent.LatestCharge.ID
	}
	if intent.PaymentMethod != nil {
		out.InstrumentRef = intent.PaymentMethod.ID
	}
	return out
}

// fail logs the failed operation with the attempted values, records an audit
// entry and wraps the error. The audit write is best-effort.
func (g *StripeGateway) fail(op, userID string, amount int64, currency string, err error) error {
	g.logger.Error("Gateway operation failed ", "op ", op, " amount ", amount, " currency ", currency, " error ", err)

	auditErr := g.repo.AddAuditEntry(&models.PaymentAuditLogEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Action:       models.AuditActionGatewayError,
		Provider:     models.ProviderStripe,
		Amount:       amount,
		Currency:     currency,
		Metadata:     fmt.Sprintf(`{"op":%q}`, op),
		ErrorMessage: err.Error(),
		CreatedAt:    time.Now().Unix(),
	})
	if auditErr != nil {
		g.logger.Error("Failed to write audit entry for gateway error ", "error ", auditErr)
	}

	return &models.GatewayError{Op: op, Err: err}
}
