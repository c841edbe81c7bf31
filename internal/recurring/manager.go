package recurring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/givehub/payments/internal/audit"
	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/pkg/logger"
)

// CreateInput parameterizes a new recurring donation. Recurring giving is
// campaign-only; posts and profiles are a deliberate restriction, not an
// oversight.
type CreateInput struct {
	CampaignID      string
	Amount          int64
	Currency        string
	Interval        models.RecurringInterval
	PaymentMethodID string // optional saved instrument
}

// CreateResult is the new series plus its first settled donation.
type CreateResult struct {
	Recurring *models.RecurringDonation `json:"recurring_donation"`
	Donation  *models.Donation          `json:"donation"`
}

// Manager creates and cancels subscription-backed donation series.
type Manager struct {
	logger *logger.Logger

	repo     models.Repository
	gateway  models.PaymentGateway
	audit    *audit.Recorder
	notifier models.RecipientNotifier
}

func NewManager(repo models.Repository, gateway models.PaymentGateway, audit *audit.Recorder, notifier models.RecipientNotifier, logger *logger.Logger) *Manager {
	return &Manager{
		logger:   logger,
		repo:     repo,
		gateway:  gateway,
		audit:    audit,
		notifier: notifier,
	}
}

// Create subscribes the donor to the campaign: a dedicated price object, a
// gateway subscription, the active series row, and the first donation
// (already billed by the gateway) with its single campaign increment.
func (m *Manager) Create(ctx context.Context, donorID string, in *CreateInput) (*CreateResult, error) {
	if in.Amount <= 0 {
		return nil, models.NewValidationError("recurring amount must be positive, got %d", in.Amount)
	}
	if in.CampaignID == "" {
		return nil, models.NewValidationError("recurring donations require a campaign")
	}
	if !in.Interval.Valid() {
		return nil, models.NewValidationError("invalid interval %q, want week, month or year", in.Interval)
	}

	campaign, err := m.repo.GetCampaign(in.CampaignID)
	if err != nil {
		return nil, err
	}

	customerRef, err := m.gateway.EnsureCustomer(ctx, donorID)
	if err != nil {
		return nil, err
	}

	instrumentRef := ""
	if in.PaymentMethodID != "" {
		method, err := m.repo.GetPaymentMethod(donorID, in.PaymentMethodID)
		if err != nil {
			return nil, err
		}
		if method.Provider != models.ProviderStripe {
			return nil, models.NewValidationError("payment method %s cannot fund a recurring donation", in.PaymentMethodID)
		}
		instrumentRef = method.GatewayRef
	}

	sub, err := m.gateway.CreateSubscription(ctx, &models.SubscriptionInput{
		CustomerRef:   customerRef,
		Amount:        in.Amount,
		Currency:      in.Currency,
		Interval:      in.Interval,
		InstrumentRef: instrumentRef,
		Description:   fmt.Sprintf("Recurring donation to %s", campaign.Title),
		Metadata: map[string]string{
			"donor_id":    donorID,
			"campaign_id": in.CampaignID,
		},
	})
	if err != nil {
		m.audit.Record(&models.PaymentAuditLogEntry{
			UserID:       donorID,
			Action:       models.AuditActionIntentFailed,
			Provider:     models.ProviderStripe,
			Amount:       in.Amount,
			Currency:     in.Currency,
			ErrorMessage: err.Error(),
		})
		return nil, err
	}

	now := time.Now().Unix()
	rd := &models.RecurringDonation{
		ID:               uuid.NewString(),
		DonorUserID:      donorID,
		CampaignID:       in.CampaignID,
		Amount:           in.Amount,
		Currency:         in.Currency,
		Interval:         in.Interval,
		Status:           models.RecurringStatusActive,
		SubscriptionRef:  sub.Ref,
		PriceRef:         sub.PriceRef,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		CreatedAt:        now,
	}

	firstRef := sub.FirstIntentRef
	if firstRef == "" {
		firstRef = sub.Ref + "_initial"
	}
	first := &models.Donation{
		ID:                     uuid.NewString(),
		DonorUserID:            donorID,
		CampaignID:             in.CampaignID,
		Amount:                 in.Amount,
		Currency:               in.Currency,
		Provider:               models.ProviderStripe,
		IsRecurring:            true,
		Status:                 models.DonationStatusCompleted,
		ExternalTransactionRef: firstRef,
		CreatedAt:              now,
	}

	if err := m.repo.CreateRecurringDonation(rd, first); err != nil {
		return nil, err
	}

	m.notifier.DonationReceived(&models.DonationNotice{
		RecipientUserID: campaign.OwnerUserID,
		DonorName:       m.donorName(donorID),
		Amount:          first.Amount,
		Currency:        first.Currency,
		TargetLabel:     fmt.Sprintf("campaign %q", campaign.Title),
		Recurring:       true,
	})
	m.audit.Record(&models.PaymentAuditLogEntry{
		UserID:      donorID,
		Action:      models.AuditActionRecurringCreated,
		Provider:    models.ProviderStripe,
		Amount:      in.Amount,
		Currency:    in.Currency,
		ExternalRef: sub.Ref,
		Metadata:    audit.Metadata(map[string]interface{}{"interval": in.Interval, "campaign_id": in.CampaignID}),
	})
	return &CreateResult{Recurring: rd, Donation: first}, nil
}

// Cancel ends a series the donor owns. The upstream cancel is best-effort:
// the local record is canceled even when the gateway call fails, and the
// failure is audited for later cleanup.
func (m *Manager) Cancel(ctx context.Context, donorID, id string) (*models.RecurringDonation, error) {
	rd, err := m.repo.GetRecurringDonation(donorID, id)
	if err != nil {
		return nil, err
	}
	if rd.Status == models.RecurringStatusCanceled {
		return nil, models.ErrAlreadyCanceled
	}

	if err := m.gateway.CancelSubscription(ctx, rd.SubscriptionRef); err != nil {
		m.logger.Warn("Failed to cancel subscription upstream, proceeding locally ",
			"subscription ", rd.SubscriptionRef, " error ", err)
	}

	now := time.Now().Unix()
	applied, err := m.repo.MarkRecurringCanceled(rd.ID, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost a race with a webhook or a concurrent cancel.
		return nil, models.ErrAlreadyCanceled
	}

	rd.Status = models.RecurringStatusCanceled
	rd.CanceledAt = now
	m.audit.Record(&models.PaymentAuditLogEntry{
		UserID:      donorID,
		Action:      models.AuditActionRecurringCancel,
		Provider:    models.ProviderStripe,
		Amount:      rd.Amount,
		Currency:    rd.Currency,
		ExternalRef: rd.SubscriptionRef,
	})
	return rd, nil
}

func (m *Manager) List(donorID string) ([]*models.RecurringDonation, error) {
	return m.repo.ListRecurringDonations(donorID)
}

func (m *Manager) donorName(donorID string) string {
	donor, err := m.repo.GetUser(donorID)
	if err != nil {
		m.logger.Warn("Failed to resolve donor for notification ", "donor ", donorID, " error ", err)
		return ""
	}
	return donor.DisplayName
}
