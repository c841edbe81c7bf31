package models

// DonationStatus is the lifecycle state of a donation.
// Legal transitions: pending -> completed, pending -> failed,
// completed -> refunded. Nothing else.
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusCompleted DonationStatus = "completed"
	DonationStatusFailed    DonationStatus = "failed"
	DonationStatusRefunded  DonationStatus = "refunded"
)

// Donation is a single gift to exactly one target: a campaign, a post, or a
// user profile. Amounts are integer minor units (cents).
type Donation struct {
	// ID is the unique identifier for the donation.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// DonorUserID is the platform user who gave.
	DonorUserID string `json:"donor_user_id" gorm:"column:donor_user_id;index;not null"`
	// Exactly one of CampaignID, PostID, RecipientUserID is set.
	CampaignID      string `json:"campaign_id,omitempty" gorm:"column:campaign_id;index"`
	PostID          string `json:"post_id,omitempty" gorm:"column:post_id;index"`
	RecipientUserID string `json:"recipient_user_id,omitempty" gorm:"column:recipient_user_id;index"`
	// Amount is the donated amount in minor units. Always > 0.
	Amount int64 `json:"amount" gorm:"column:amount;not null"`
	// Currency is a lowercase ISO currency code (usd, eur, ...).
	Currency string `json:"currency" gorm:"column:currency;not null"`
	// Provider is the rail the donation was charged on.
	Provider Provider `json:"provider" gorm:"column:provider;not null"`
	// IsRecurring marks donations that belong to a recurring series.
	IsRecurring bool `json:"is_recurring" gorm:"column:is_recurring"`
	// IsAnonymous hides the donor's name from the recipient.
	IsAnonymous bool `json:"is_anonymous" gorm:"column:is_anonymous"`
	// Message is an optional note to the recipient.
	Message string `json:"message,omitempty" gorm:"column:message"`
	// Status is the lifecycle state.
	Status DonationStatus `json:"status" gorm:"column:status;index;not null"`
	// ExternalTransactionRef is the provider-side charge reference (the
	// payment intent id on the card gateway, a wallet_ ref on the wallet
	// rail). The unique constraint here is the idempotency mechanism that
	// lets the confirm path and the webhook path race safely.
	ExternalTransactionRef string `json:"external_transaction_ref" gorm:"column:external_transaction_ref;unique;not null"`
	// ChargeRef is the provider-side charge id when known, used to match
	// refund events.
	ChargeRef string `json:"charge_ref,omitempty" gorm:"column:charge_ref;index"`
	// FailureMessage holds the provider error for failed donations.
	FailureMessage string `json:"failure_message,omitempty" gorm:"column:failure_message"`
	// RecurringDonationID links donations billed from a recurring series.
	RecurringDonationID string `json:"recurring_donation_id,omitempty" gorm:"column:recurring_donation_id;index"`
	// CreatedAt is a Unix timestamp.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
}

// TargetCount returns how many targets are set on the donation.
func (d *Donation) TargetCount() int {
	count := 0
	if d.CampaignID != "" {
		count++
	}
	if d.PostID != "" {
		count++
	}
	if d.RecipientUserID != "" {
		count++
	}
	return count
}

// DonationFilter narrows ListDonations. Zero values mean "any".
type DonationFilter struct {
	DonorUserID string
	CampaignID  string
}
