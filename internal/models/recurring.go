package models

// RecurringInterval is the billing period of a recurring donation.
type RecurringInterval string

const (
	RecurringIntervalWeek  RecurringInterval = "week"
	RecurringIntervalMonth RecurringInterval = "month"
	RecurringIntervalYear  RecurringInterval = "year"
)

// Valid reports whether the interval is one the gateway can bill.
func (i RecurringInterval) Valid() bool {
	switch i {
	case RecurringIntervalWeek, RecurringIntervalMonth, RecurringIntervalYear:
		return true
	}
	return false
}

// RecurringDonationStatus moves active -> canceled only.
type RecurringDonationStatus string

const (
	RecurringStatusActive   RecurringDonationStatus = "active"
	RecurringStatusCanceled RecurringDonationStatus = "canceled"
)

// RecurringDonation is a subscription-backed donation series. Recurring
// giving is restricted to campaigns; posts and profiles take one-time
// donations only.
type RecurringDonation struct {
	// ID is the unique identifier for the series.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// DonorUserID is the subscribed donor.
	DonorUserID string `json:"donor_user_id" gorm:"column:donor_user_id;index;not null"`
	// CampaignID is the funded campaign.
	CampaignID string `json:"campaign_id" gorm:"column:campaign_id;index;not null"`
	// Amount billed each interval, in minor units.
	Amount int64 `json:"amount" gorm:"column:amount;not null"`
	// Currency is a lowercase ISO currency code.
	Currency string `json:"currency" gorm:"column:currency;not null"`
	// Interval is week, month or year.
	Interval RecurringInterval `json:"interval" gorm:"column:interval;not null"`
	// Status is active or canceled.
	Status RecurringDonationStatus `json:"status" gorm:"column:status;index;not null"`
	// SubscriptionRef is the gateway-side subscription id (sub_...).
	SubscriptionRef string `json:"subscription_ref" gorm:"column:subscription_ref;unique;not null"`
	// PriceRef is the per-donation price object backing the subscription.
	// Not shared across donors, so canceling one series never affects another.
	PriceRef string `json:"price_ref" gorm:"column:price_ref"`
	// CurrentPeriodEnd is the Unix timestamp the current billing period ends.
	CurrentPeriodEnd int64 `json:"current_period_end" gorm:"column:current_period_end"`
	// CanceledAt is set once when the series is canceled.
	CanceledAt int64 `json:"canceled_at,omitempty" gorm:"column:canceled_at"`
	// CreatedAt is a Unix timestamp.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
}
