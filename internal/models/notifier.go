package models

// DonationNotice is what the recipient of a donation gets told. DonorName is
// already blanked for anonymous donations before the notice is built, so no
// notifier implementation can leak it.
type DonationNotice struct {
	RecipientUserID string
	DonorName       string
	Amount          int64
	Currency        string
	TargetLabel     string
	Message         string
	Recurring       bool
}

// RecipientNotifier delivers donation notices. Delivery mechanics live
// outside this service; the shipped implementation just logs.
type RecipientNotifier interface {
	DonationReceived(notice *DonationNotice)
}
