package models

// Repository is the persistence contract for the payment subsystem. The
// postgres implementation keeps every multi-row rule (single default per
// user, insert-plus-increment, guarded status transitions) inside one
// database transaction; callers never compose those pieces themselves.
type Repository interface {
	// Payment methods. AddPaymentMethod forces the first saved method to be
	// the default and clears other defaults when makeDefault is set.
	// RemovePaymentMethod promotes the newest remaining method when the
	// default is removed, and returns the removed row for upstream detach.
	ListPaymentMethods(userID string) ([]*PaymentMethod, error)
	GetPaymentMethod(userID, id string) (*PaymentMethod, error)
	AddPaymentMethod(pm *PaymentMethod, makeDefault bool) error
	SetDefaultPaymentMethod(userID, id string) error
	RemovePaymentMethod(userID, id string) (*PaymentMethod, error)

	// Gateway customer mapping. GetGatewayCustomerRef returns "" when the
	// user has no customer yet.
	GetGatewayCustomerRef(userID string) (string, error)
	SaveGatewayCustomerRef(userID, ref string) error

	// Donations. CreateDonationIfAbsent inserts keyed on the unique
	// ExternalTransactionRef; on conflict it returns the existing row and
	// created=false, and the campaign increment is skipped. The insert and
	// the increment share one transaction.
	CreateDonationIfAbsent(d *Donation) (donation *Donation, created bool, err error)
	GetDonationByExternalRef(ref string) (*Donation, error)
	ListDonations(filter DonationFilter, page, limit int) ([]*Donation, int64, error)

	// Guarded transitions, driven by the reconciler. Each applies only from
	// the legal prior status; applied=false means the transition (and its
	// campaign-total side effect) had already happened or never could.
	// Absent donations return a NotFoundError.
	CompleteDonationByExternalRef(ref string) (donation *Donation, applied bool, err error)
	FailDonationByExternalRef(ref, failureMessage string) (donation *Donation, applied bool, err error)
	// RefundDonationByRef matches either the external transaction ref or the
	// stored charge ref, and decrements the campaign total when applied.
	RefundDonationByRef(ref string) (donation *Donation, applied bool, err error)

	// Recurring donations. Create persists the series, its first completed
	// donation and the single campaign increment in one transaction.
	CreateRecurringDonation(rd *RecurringDonation, first *Donation) error
	GetRecurringDonation(userID, id string) (*RecurringDonation, error)
	ListRecurringDonations(userID string) ([]*RecurringDonation, error)
	MarkRecurringCanceled(id string, canceledAt int64) (applied bool, err error)
	// Subscription webhook projections, keyed by the gateway ref.
	UpdateRecurringBySubscriptionRef(ref string, status RecurringDonationStatus, currentPeriodEnd int64) (*RecurringDonation, error)
	CancelRecurringBySubscriptionRef(ref string, canceledAt int64) (applied bool, err error)

	// Donation targets, read-only.
	GetCampaign(id string) (*Campaign, error)
	GetPost(id string) (*Post, error)
	GetUser(id string) (*User, error)

	// AddAuditEntry appends one audit record.
	AddAuditEntry(entry *PaymentAuditLogEntry) error

	Close() error
}
