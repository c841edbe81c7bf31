package models

// Provider identifies which external rail a record belongs to.
type Provider string

const (
	// ProviderStripe is the asynchronous card gateway.
	ProviderStripe Provider = "stripe"
	// ProviderWallet is the synchronous wallet rail.
	ProviderWallet Provider = "wallet"
)

// PaymentMethodKind is the shape of the saved instrument.
type PaymentMethodKind string

const (
	PaymentMethodKindCard   PaymentMethodKind = "card"
	PaymentMethodKindWallet PaymentMethodKind = "wallet_account"
)

// PaymentMethod is a saved, reusable payment instrument. Raw card data never
// touches this service; GatewayRef is the tokenized reference held by the
// provider.
type PaymentMethod struct {
	// ID is the unique identifier for the payment method.
	ID string `json:"id" gorm:"column:id;primaryKey"`
	// OwnerUserID is the platform user who owns this instrument.
	OwnerUserID string `json:"owner_user_id" gorm:"column:owner_user_id;index;index:ux_payment_methods_owner_wallet,unique,priority:1;not null"`
	// Provider is the rail this instrument belongs to (stripe, wallet).
	Provider Provider `json:"provider" gorm:"column:provider;not null"`
	// Kind is card or wallet_account.
	Kind PaymentMethodKind `json:"kind" gorm:"column:kind;not null"`
	// IsDefault marks the instrument preselected for new donations.
	// At most one per user; enforced in the repository.
	IsDefault bool `json:"is_default" gorm:"column:is_default;index"`
	// GatewayRef is the provider-side instrument reference (pm_... for cards,
	// the wallet address for wallet accounts).
	GatewayRef string `json:"gateway_ref" gorm:"column:gateway_ref;index"`
	// Card display fields, populated for kind=card only.
	Brand    string `json:"brand,omitempty" gorm:"column:brand"`
	Last4    string `json:"last4,omitempty" gorm:"column:last4"`
	ExpMonth int64  `json:"exp_month,omitempty" gorm:"column:exp_month"`
	ExpYear  int64  `json:"exp_year,omitempty" gorm:"column:exp_year"`
	// WalletAddress is set for kind=wallet_account. Unique per owner,
	// enforced by a partial index so card rows (empty address) stay out.
	WalletAddress string `json:"wallet_address,omitempty" gorm:"column:wallet_address;index:ux_payment_methods_owner_wallet,unique,priority:2,where:wallet_address <> ''"`
	// CreatedAt is a Unix timestamp. Used to promote the newest remaining
	// method when the default is removed.
	CreatedAt int64 `json:"created_at" gorm:"column:created_at;index"`
}

// GatewayCustomer maps a platform user to their customer object at the card
// gateway, so customer creation is idempotent per user.
type GatewayCustomer struct {
	ID int64 `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	// UserID is the platform user. One customer per user.
	UserID string `json:"user_id" gorm:"column:user_id;unique;not null"`
	// CustomerRef is the gateway-side customer reference (cus_...).
	CustomerRef string `json:"customer_ref" gorm:"column:customer_ref;not null"`
}
