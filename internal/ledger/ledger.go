package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/givehub/payments/internal/audit"
	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/pkg/logger"
)

// Metadata keys stamped onto gateway intents at creation. Confirmation
// trusts only these, never client-supplied values.
const (
	metaDonorID     = "donor_id"
	metaCampaignID  = "campaign_id"
	metaPostID      = "post_id"
	metaRecipientID = "recipient_user_id"
	metaAnonymous   = "is_anonymous"
	metaMessage     = "message"
)

// Target is the destination of a donation. Exactly one field must be set.
type Target struct {
	CampaignID      string
	PostID          string
	RecipientUserID string
}

func (t Target) count() int {
	count := 0
	if t.CampaignID != "" {
		count++
	}
	if t.PostID != "" {
		count++
	}
	if t.RecipientUserID != "" {
		count++
	}
	return count
}

// CreateIntentInput parameterizes a new charge intent.
type CreateIntentInput struct {
	Target          Target
	Amount          int64
	Currency        string
	PaymentMethodID string // optional saved instrument
	IsAnonymous     bool
	Message         string
}

// IntentHandle is what the client needs to finish the charge.
type IntentHandle struct {
	ClientSecret string `json:"client_secret"`
	IntentRef    string `json:"intent_ref"`
}

// Ledger creates and reads donations and keeps campaign raised totals
// consistent with provider ground truth.
type Ledger struct {
	logger *logger.Logger

	repo     models.Repository
	gateway  models.PaymentGateway
	audit    *audit.Recorder
	notifier models.RecipientNotifier
}

func NewLedger(repo models.Repository, gateway models.PaymentGateway, audit *audit.Recorder, notifier models.RecipientNotifier, logger *logger.Logger) *Ledger {
	return &Ledger{
		logger:   logger,
		repo:     repo,
		gateway:  gateway,
		audit:    audit,
		notifier: notifier,
	}
}

// CreateIntent validates the donation, opens a charge intent at the gateway
// and returns the client handle. Deliberately no Donation row yet: abandoned
// intents would otherwise pile up as permanent pending rows. Everything
// confirmation needs is stamped into the intent's metadata.
func (l *Ledger) CreateIntent(ctx context.Context, donorID string, in *CreateIntentInput) (*IntentHandle, error) {
	if err := l.validate(in.Target, in.Amount); err != nil {
		return nil, err
	}

	label, _, err := l.resolveTarget(in.Target)
	if err != nil {
		return nil, err
	}

	customerRef, err := l.gateway.EnsureCustomer(ctx, donorID)
	if err != nil {
		return nil, err
	}

	instrumentRef := ""
	if in.PaymentMethodID != "" {
		method, err := l.repo.GetPaymentMethod(donorID, in.PaymentMethodID)
		if err != nil {
			return nil, err
		}
		if method.Provider != models.ProviderStripe {
			return nil, models.NewValidationError("payment method %s cannot fund a card donation", in.PaymentMethodID)
		}
		instrumentRef = method.GatewayRef
	}

	metadata := map[string]string{
		metaDonorID:   donorID,
		metaAnonymous: fmt.Sprintf("%t", in.IsAnonymous),
	}
	if in.Target.CampaignID != "" {
		metadata[metaCampaignID] = in.Target.CampaignID
	}
	if in.Target.PostID != "" {
		metadata[metaPostID] = in.Target.PostID
	}
	if in.Target.RecipientUserID != "" {
		metadata[metaRecipientID] = in.Target.RecipientUserID
	}
	if in.Message != "" {
		metadata[metaMessage] = in.Message
	}

	intent, err := l.gateway.CreatePaymentIntent(ctx, &models.PaymentIntentInput{
		CustomerRef:   customerRef,
		Amount:        in.Amount,
		Currency:      in.Currency,
		InstrumentRef: instrumentRef,
		Metadata:      metadata,
	})
	if err != nil {
		l.audit.Record(&models.PaymentAuditLogEntry{
			UserID:       donorID,
			Action:       models.AuditActionIntentFailed,
			Provider:     models.ProviderStripe,
			Amount:       in.Amount,
			Currency:     in.Currency,
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	l.audit.Record(&models.PaymentAuditLogEntry{
		UserID:      donorID,
		Action:      models.AuditActionIntentCreated,
		Provider:    models.ProviderStripe,
		Amount:      in.Amount,
		Currency:    in.Currency,
		ExternalRef: intent.Ref,
		Metadata:    audit.Metadata(map[string]interface{}{"target": label}),
	})
	return &IntentHandle{ClientSecret: intent.ClientSecret, IntentRef: intent.Ref}, nil
}

// ConfirmIntent finalizes a donation after the client reports success. The
// gateway is re-queried for the intent's real state and the donation is
// built purely from the intent's own amount and metadata, so a tampering
// client gains nothing. Idempotent: the unique transaction ref means a
// second confirmation (or a racing webhook) observes the existing row.
func (l *Ledger) ConfirmIntent(ctx context.Context, donorID, intentRef string) (*models.Donation, error) {
	if intentRef == "" {
		return nil, models.NewValidationError("intent reference is required")
	}

	intent, err := l.gateway.GetPaymentIntent(ctx, intentRef)
	if err != nil {
		return nil, err
	}

	if intent.Metadata[metaDonorID] != donorID {
		// Someone else's intent. Indistinguishable from absent.
		return nil, &models.NotFoundError{Resource: "payment intent", ID: intentRef}
	}
	if !intent.Succeeded {
		return nil, models.ErrNotSucceeded
	}

	donation := &models.Donation{
		ID:                     uuid.NewString(),
		DonorUserID:            donorID,
		CampaignID:             intent.Metadata[metaCampaignID],
		PostID:                 intent.Metadata[metaPostID],
		RecipientUserID:        intent.Metadata[metaRecipientID],
		Amount:                 intent.Amount,
		Currency:               intent.Currency,
		Provider:               models.ProviderStripe,
		IsAnonymous:            intent.Metadata[metaAnonymous] == "true",
		Message:                intent.Metadata[metaMessage],
		Status:                 models.DonationStatusCompleted,
		ExternalTransactionRef: intent.Ref,
		ChargeRef:              intent.ChargeRef,
		CreatedAt:              time.Now().Unix(),
	}

	stored, created, err := l.repo.CreateDonationIfAbsent(donation)
	if err != nil {
		return nil, err
	}
	if !created {
		return stored, nil
	}

	l.persistInstrument(ctx, donorID, intent.InstrumentRef)
	l.notifyRecipient(stored)
	l.audit.Record(&models.PaymentAuditLogEntry{
		UserID:      donorID,
		Action:      models.AuditActionDonationComplete,
		Provider:    models.ProviderStripe,
		Amount:      stored.Amount,
		Currency:    stored.Currency,
		ExternalRef: stored.ExternalTransactionRef,
	})
	return stored, nil
}

// WalletDonation is the synchronous wallet rail. The provider settles in the
// request, so the donation is created completed directly, through the same
// insert-plus-increment path the card rail uses.
func (l *Ledger) WalletDonation(donorID string, in *CreateIntentInput) (*models.Donation, error) {
	if err := l.validate(in.Target, in.Amount); err != nil {
		return nil, err
	}
	if _, _, err := l.resolveTarget(in.Target); err != nil {
		return nil, err
	}

	donation := &models.Donation{
		ID:                     uuid.NewString(),
		DonorUserID:            donorID,
		CampaignID:             in.Target.CampaignID,
		PostID:                 in.Target.PostID,
		RecipientUserID:        in.Target.RecipientUserID,
		Amount:                 in.Amount,
		Currency:               in.Currency,
		Provider:               models.ProviderWallet,
		IsAnonymous:            in.IsAnonymous,
		Message:                in.Message,
		Status:                 models.DonationStatusCompleted,
		ExternalTransactionRef: "wallet_" + uuid.NewString(),
		CreatedAt:              time.Now().Unix(),
	}

	stored, created, err := l.repo.CreateDonationIfAbsent(donation)
	if err != nil {
		return nil, err
	}

	if created {
		l.notifyRecipient(stored)
		l.audit.Record(&models.PaymentAuditLogEntry{
			UserID:      donorID,
			Action:      models.AuditActionWalletDonation,
			Provider:    models.ProviderWallet,
			Amount:      stored.Amount,
			Currency:    stored.Currency,
			ExternalRef: stored.ExternalTransactionRef,
		})
	}
	return stored, nil
}

func (l *Ledger) ListDonations(filter models.DonationFilter, page, limit int) ([]*models.Donation, int64, error) {
	return l.repo.ListDonations(filter, page, limit)
}

func (l *Ledger) validate(target Target, amount int64) error {
	if amount <= 0 {
		return models.NewValidationError("donation amount must be positive, got %d", amount)
	}
	if n := target.count(); n != 1 {
		return models.NewValidationError("donation needs exactly one target, got %d", n)
	}
	return nil
}

// resolveTarget verifies the target exists and returns a receipt-style label
// plus the user who should be notified.
func (l *Ledger) resolveTarget(target Target) (label, recipientUserID string, err error) {
	switch {
	case target.CampaignID != "":
		campaign, err := l.repo.GetCampaign(target.CampaignID)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("campaign %q", campaign.Title), campaign.OwnerUserID, nil
	case target.PostID != "":
		post, err := l.repo.GetPost(target.PostID)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("update %q", post.Title), post.AuthorUserID, nil
	default:
		user, err := l.repo.GetUser(target.RecipientUserID)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("profile of %s", user.DisplayName), user.ID, nil
	}
}

// persistInstrument saves the instrument that funded a confirmed donation so
// it can be reused, unless it is already on file. Best-effort: a failure
// here never fails the donation.
func (l *Ledger) persistInstrument(ctx context.Context, donorID, instrumentRef string) {
	if instrumentRef == "" {
		return
	}

	existing, err := l.repo.ListPaymentMethods(donorID)
	if err != nil {
		l.logger.Error("Failed to list payment methods for reuse check ", "error ", err)
		return
	}
	for _, method := range existing {
		if method.GatewayRef == instrumentRef {
			return
		}
	}

	details, err := l.gateway.GetPaymentMethod(ctx, instrumentRef)
	if err != nil {
		l.logger.Warn("Failed to fetch instrument for reuse ", "instrument ", instrumentRef, " error ", err)
		return
	}

	method := &models.PaymentMethod{
		ID:          uuid.NewString(),
		OwnerUserID: donorID,
		Provider:    models.ProviderStripe,
		Kind:        models.PaymentMethodKindCard,
		GatewayRef:  instrumentRef,
		Brand:       details.Brand,
		Last4:       details.Last4,
		ExpMonth:    details.ExpMonth,
		ExpYear:     details.ExpYear,
		CreatedAt:   time.Now().Unix(),
	}
	if err := l.repo.AddPaymentMethod(method, false); err != nil {
		l.logger.Warn("Failed to persist instrument for reuse ", "instrument ", instrumentRef, " error ", err)
	}
}

// notifyRecipient tells the target's owner about the donation. The donor
// name is blanked before the notice is built when the donation is anonymous.
func (l *Ledger) notifyRecipient(d *models.Donation) {
	label, recipientID, err := l.resolveTarget(Target{
		CampaignID:      d.CampaignID,
		PostID:          d.PostID,
		RecipientUserID: d.RecipientUserID,
	})
	if err != nil {
		l.logger.Error("Failed to resolve donation target for notification ", "donation ", d.ID, " error ", err)
		return
	}

	donorName := ""
	if !d.IsAnonymous {
		donor, err := l.repo.GetUser(d.DonorUserID)
		if err != nil {
			l.logger.Warn("Failed to resolve donor for notification ", "donor ", d.DonorUserID, " error ", err)
		} else {
			donorName = donor.DisplayName
		}
	}

	l.notifier.DonationReceived(&models.DonationNotice{
		RecipientUserID: recipientID,
		DonorName:       donorName,
		Amount:          d.Amount,
		Currency:        d.Currency,
		TargetLabel:     label,
		Message:         d.Message,
		Recurring:       d.IsRecurring,
	})
}
