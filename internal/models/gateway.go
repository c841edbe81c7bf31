package models

import "context"

// SetupIntent is an in-progress instrument tokenization at the gateway.
// ClientSecret goes back to the client SDK; no card data passes through here.
type SetupIntent struct {
	Ref          string `json:"ref"`
	ClientSecret string `json:"client_secret"`
}

// PaymentIntent is the provider-neutral view of an in-progress charge.
type PaymentIntent struct {
	Ref          string
	ClientSecret string
	// Succeeded reports whether the provider considers the charge final.
	Succeeded bool
	Amount    int64
	Currency  string
	// Metadata round-trips the donor/target context stamped at creation, so
	// confirmation never has to trust client-supplied values.
	Metadata map[string]string
	// ChargeRef is the underlying charge id once one exists.
	ChargeRef string
	// InstrumentRef is the instrument that (will) fund the charge.
	InstrumentRef string
}

// PaymentIntentInput parameterizes intent creation.
type PaymentIntentInput struct {
	CustomerRef   string
	Amount        int64
	Currency      string
	InstrumentRef string // optional pre-selected instrument
	Metadata      map[string]string
}

// InstrumentDetails are the display fields of a tokenized card.
type InstrumentDetails struct {
	Ref      string
	Brand    string
	Last4    string
	ExpMonth int64
	ExpYear  int64
}

// SubscriptionInput parameterizes recurring billing. The gateway creates a
// price object per subscription from Amount/Currency/Interval.
type SubscriptionInput struct {
	CustomerRef   string
	Amount        int64
	Currency      string
	Interval      RecurringInterval
	InstrumentRef string // optional
	Description   string
	Metadata      map[string]string
}

// Subscription is the provider-neutral view of a billing subscription.
type Subscription struct {
	Ref              string
	PriceRef         string
	Status           string
	CurrentPeriodEnd int64
	// FirstIntentRef is the payment intent of the first billing cycle, used
	// as the external ref of the series' first donation.
	FirstIntentRef string
}

// GatewayEventKind is the closed set of webhook event kinds the reconciler
// understands. Anything else maps to GatewayEventUnknown and is acknowledged
// without effect.
type GatewayEventKind string

const (
	GatewayEventPaymentSucceeded    GatewayEventKind = "payment_succeeded"
	GatewayEventPaymentFailed       GatewayEventKind = "payment_failed"
	GatewayEventChargeRefunded      GatewayEventKind = "charge_refunded"
	GatewayEventSubscriptionCreated GatewayEventKind = "subscription_created"
	GatewayEventSubscriptionUpdated GatewayEventKind = "subscription_updated"
	GatewayEventSubscriptionDeleted GatewayEventKind = "subscription_deleted"
	GatewayEventUnknown             GatewayEventKind = "unknown"
)

// GatewayEvent is a verified, provider-neutral webhook notification.
type GatewayEvent struct {
	// ID is the provider event id, for logging.
	ID string
	// Kind selects the reconciler transition.
	Kind GatewayEventKind
	// RawType is the provider's own type string, kept for unknown kinds.
	RawType string
	// IntentRef is set for payment and refund events.
	IntentRef string
	// ChargeRef is set for refund events.
	ChargeRef string
	// FailureMessage carries the provider error on payment_failed.
	FailureMessage string
	// SubscriptionRef, SubscriptionStatus and CurrentPeriodEnd are set for
	// subscription events.
	SubscriptionRef    string
	SubscriptionStatus string
	CurrentPeriodEnd   int64
}

// PaymentGateway is the contract this service holds with the card gateway.
// A single configured implementation is constructed at startup and injected;
// tests substitute a fake.
type PaymentGateway interface {
	// EnsureCustomer looks up or creates the gateway customer for a user.
	// Idempotent per user, and self-healing: a stored reference the gateway
	// no longer accepts is replaced with a fresh customer.
	EnsureCustomer(ctx context.Context, userID string) (string, error)

	// CreateSetupIntent opens an instrument tokenization session.
	CreateSetupIntent(ctx context.Context, customerRef string) (*SetupIntent, error)

	// CreatePaymentIntent opens a charge; GetPaymentIntent re-reads provider
	// state, which is the only source of truth at confirmation time.
	CreatePaymentIntent(ctx context.Context, in *PaymentIntentInput) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, ref string) (*PaymentIntent, error)

	// GetPaymentMethod fetches card display fields for a tokenized
	// instrument. DetachPaymentMethod releases it; callers treat failure as
	// best-effort.
	GetPaymentMethod(ctx context.Context, ref string) (*InstrumentDetails, error)
	DetachPaymentMethod(ctx context.Context, ref string) error

	// CreateSubscription creates a per-donation price and subscription.
	// CancelSubscription is best-effort from the caller's point of view.
	CreateSubscription(ctx context.Context, in *SubscriptionInput) (*Subscription, error)
	CancelSubscription(ctx context.Context, ref string) error

	// VerifyWebhook authenticates a raw webhook delivery and translates it
	// into a neutral event. A signature failure is the only rejection.
	VerifyWebhook(payload []byte, signature string) (*GatewayEvent, error)
}
