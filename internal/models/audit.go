package models

// Audit actions recorded by the payment components.
const (
	AuditActionSetupBegin       = "payment_method.setup_begin"
	AuditActionMethodAdded      = "payment_method.added"
	AuditActionMethodDefault    = "payment_method.set_default"
	AuditActionMethodRemoved    = "payment_method.removed"
	AuditActionMethodDetachFail = "payment_method.detach_failed"
	AuditActionIntentCreated    = "donation.intent_created"
	AuditActionIntentFailed     = "donation.intent_failed"
	AuditActionDonationComplete = "donation.completed"
	AuditActionDonationFailed   = "donation.failed"
	AuditActionDonationRefunded = "donation.refunded"
	AuditActionWalletDonation   = "donation.wallet_completed"
	AuditActionRecurringCreated = "recurring.created"
	AuditActionRecurringCancel  = "recurring.canceled"
	AuditActionWebhookReceived  = "webhook.received"
	AuditActionWebhookError     = "webhook.error"
	AuditActionGatewayError     = "gateway.error"
)

// PaymentAuditLogEntry is one append-only record of a payment-affecting
// attempt, success or failure. Entries are never updated or deleted.
type PaymentAuditLogEntry struct {
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// UserID is the acting user, empty for provider-initiated events.
	UserID string `json:"user_id,omitempty" gorm:"column:user_id;index"`
	// Action is one of the AuditAction constants.
	Action string `json:"action" gorm:"column:action;index;not null"`
	// Provider is the rail involved, when applicable.
	Provider Provider `json:"provider,omitempty" gorm:"column:provider"`
	// Amount/Currency are the attempted values, recorded even on failure.
	Amount   int64  `json:"amount,omitempty" gorm:"column:amount"`
	Currency string `json:"currency,omitempty" gorm:"column:currency"`
	// ExternalRef is the provider-side object involved (intent, charge,
	// subscription), when known.
	ExternalRef string `json:"external_ref,omitempty" gorm:"column:external_ref;index"`
	// Metadata is free-form context, JSON-encoded by the recorder.
	Metadata string `json:"metadata,omitempty" gorm:"column:metadata"`
	// ErrorMessage holds failure detail kept out of HTTP responses.
	ErrorMessage string `json:"error_message,omitempty" gorm:"column:error_message"`
	// CreatedAt is a Unix timestamp.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
}

// TableName keeps the historical table name.
func (PaymentAuditLogEntry) TableName() string {
	return "payment_audit_logs"
}
