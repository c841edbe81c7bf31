package reconciler

import (
	"errors"
	"time"

	"github.com/givehub/payments/internal/audit"
	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/pkg/logger"
)

// Reconciler applies provider-pushed state to local records. Providers
// redeliver events, so every transition here is idempotent: the storage
// layer gates each status change on the prior status, and a change that does
// not apply carries no side effects either. An error from Apply is logged by
// the transport and still acknowledged; only signature verification, which
// happens before Apply, can reject a delivery.
type Reconciler struct {
	logger *logger.Logger

	repo  models.Repository
	audit *audit.Recorder
}

func NewReconciler(repo models.Repository, audit *audit.Recorder, logger *logger.Logger) *Reconciler {
	return &Reconciler{logger: logger, repo: repo, audit: audit}
}

// Apply dispatches one verified event to its transition. A failed transition
// leaves an audit entry before the error surfaces to the transport, which
// acknowledges the delivery either way.
func (r *Reconciler) Apply(event *models.GatewayEvent) error {
	if err := r.apply(event); err != nil {
		r.record(event, models.AuditActionWebhookError, err.Error())
		return err
	}
	return nil
}

func (r *Reconciler) apply(event *models.GatewayEvent) error {
	switch event.Kind {
	case models.GatewayEventPaymentSucceeded:
		return r.paymentSucceeded(event)
	case models.GatewayEventPaymentFailed:
		return r.paymentFailed(event)
	case models.GatewayEventChargeRefunded:
		return r.chargeRefunded(event)
	case models.GatewayEventSubscriptionCreated, models.GatewayEventSubscriptionUpdated:
		return r.subscriptionChanged(event)
	case models.GatewayEventSubscriptionDeleted:
		return r.subscriptionDeleted(event)
	default:
		r.logger.Info("Ignoring unrecognized webhook event ", "type ", event.RawType, " id ", event.ID)
		r.record(event, models.AuditActionWebhookReceived, "")
		return nil
	}
}

// paymentSucceeded completes a pending donation. No matching donation is the
// accepted confirm-path race: the client-driven confirmation creates the row
// itself, and an intent nobody confirms leaves no row to complete.
func (r *Reconciler) paymentSucceeded(event *models.GatewayEvent) error {
	donation, applied, err := r.repo.CompleteDonationByExternalRef(event.IntentRef)
	if err != nil {
		if isNotFound(err) {
			r.logger.Debug("payment_succeeded for unknown intent, skipping ", "intent ", event.IntentRef)
			r.record(event, models.AuditActionWebhookReceived, "")
			return nil
		}
		return err
	}

	if applied {
		r.logger.Info("Donation completed via webhook ", "donation ", donation.ID, " intent ", event.IntentRef)
		r.record(event, models.AuditActionDonationComplete, "")
	}
	return nil
}

func (r *Reconciler) paymentFailed(event *models.GatewayEvent) error {
	donation, applied, err := r.repo.FailDonationByExternalRef(event.IntentRef, event.FailureMessage)
	if err != nil {
		if isNotFound(err) {
			r.logger.Debug("payment_failed for unknown intent, skipping ", "intent ", event.IntentRef)
			r.record(event, models.AuditActionWebhookReceived, event.FailureMessage)
			return nil
		}
		return err
	}

	if applied {
		r.logger.Info("Donation failed via webhook ", "donation ", donation.ID, " error ", event.FailureMessage)
		r.record(event, models.AuditActionDonationFailed, event.FailureMessage)
	}
	return nil
}

// chargeRefunded moves a completed donation to refunded and takes its amount
// back out of the campaign total. The conditional transition makes the
// decrement happen exactly once however often the event is delivered.
func (r *Reconciler) chargeRefunded(event *models.GatewayEvent) error {
	ref := event.IntentRef
	if ref == "" {
		ref = event.ChargeRef
	}

	donation, applied, err := r.repo.RefundDonationByRef(ref)
	if err != nil {
		if isNotFound(err) {
			r.logger.Warn("charge_refunded for unknown donation, skipping ", "ref ", ref)
			r.record(event, models.AuditActionWebhookReceived, "")
			return nil
		}
		return err
	}

	if applied {
		r.logger.Info("Donation refunded via webhook ", "donation ", donation.ID, " amount ", donation.Amount)
		r.record(event, models.AuditActionDonationRefunded, "")
	}
	return nil
}

func (r *Reconciler) subscriptionChanged(event *models.GatewayEvent) error {
	status := models.RecurringStatusActive
	if event.SubscriptionStatus == "canceled" {
		status = models.RecurringStatusCanceled
	}

	if status == models.RecurringStatusCanceled {
		// Route through the cancel transition so canceled_at gets set once.
		return r.subscriptionDeleted(event)
	}

	rd, err := r.repo.UpdateRecurringBySubscriptionRef(event.SubscriptionRef, status, event.CurrentPeriodEnd)
	if err != nil {
		if isNotFound(err) {
			r.logger.Debug("subscription event for unknown series, skipping ", "subscription ", event.SubscriptionRef)
			r.record(event, models.AuditActionWebhookReceived, "")
			return nil
		}
		return err
	}

	r.logger.Debug("Recurring donation synced from provider ", "series ", rd.ID, " period_end ", rd.CurrentPeriodEnd)
	return nil
}

func (r *Reconciler) subscriptionDeleted(event *models.GatewayEvent) error {
	applied, err := r.repo.CancelRecurringBySubscriptionRef(event.SubscriptionRef, time.Now().Unix())
	if err != nil {
		return err
	}

	if applied {
		r.logger.Info("Recurring donation canceled via webhook ", "subscription ", event.SubscriptionRef)
		r.record(event, models.AuditActionRecurringCancel, "")
	}
	return nil
}

func (r *Reconciler) record(event *models.GatewayEvent, action, errorMessage string) {
	ref := event.IntentRef
	if ref == "" {
		ref = event.SubscriptionRef
	}
	if ref == "" {
		ref = event.ChargeRef
	}
	r.audit.Record(&models.PaymentAuditLogEntry{
		Action:       action,
		Provider:     models.ProviderStripe,
		ExternalRef:  ref,
		Metadata:     audit.Metadata(map[string]interface{}{"event_id": event.ID, "event_type": event.RawType}),
		ErrorMessage: errorMessage,
	})
}

func isNotFound(err error) bool {
	var notFound *models.NotFoundError
	return errors.As(err, &notFound)
}
