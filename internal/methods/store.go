package methods

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/givehub/payments/internal/audit"
	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/pkg/logger"
	"github.com/givehub/payments/pkg/validation"
)

// Store manages saved payment instruments. Raw card data never passes
// through it: cards are tokenized client-side against a setup intent and
// committed here by reference.
type Store struct {
	logger *logger.Logger

	repo    models.Repository
	gateway models.PaymentGateway
	audit   *audit.Recorder
}

func NewStore(repo models.Repository, gateway models.PaymentGateway, audit *audit.Recorder, logger *logger.Logger) *Store {
	return &Store{
		logger:  logger,
		repo:    repo,
		gateway: gateway,
		audit:   audit,
	}
}

func (s *Store) List(userID string) ([]*models.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(userID)
}

// BeginSetup opens a tokenization session at the gateway and returns the
// client handle the frontend SDK needs to collect the card.
func (s *Store) BeginSetup(ctx context.Context, userID string) (*models.SetupIntent, error) {
	customerRef, err := s.gateway.EnsureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	intent, err := s.gateway.CreateSetupIntent(ctx, customerRef)
	if err != nil {
		return nil, err
	}

	s.audit.Record(&models.PaymentAuditLogEntry{
		UserID:      userID,
		Action:      models.AuditActionSetupBegin,
		Provider:    models.ProviderStripe,
		ExternalRef: intent.Ref,
	})
	return intent, nil
}

// Commit saves a tokenized card once the client finished the setup flow.
// The first method a user saves becomes the default regardless of the
// request; display fields come from the gateway, not the client.
func (s *Store) Commit(ctx context.Context, userID, setupRef, instrumentRef string, makeDefault bool) (*models.PaymentMethod, error) {
	if instrumentRef == "" {
		return nil, models.NewValidationError("instrument reference is required")
	}

	details, err := s.gateway.GetPaymentMethod(ctx, instrumentRef)
	if err != nil {
		return nil, err
	}

	method := &models.PaymentMethod{
		ID:          uuid.NewString(),
		OwnerUserID: userID,
		Provider:    models.ProviderStripe,
		Kind:        models.PaymentMethodKindCard,
		GatewayRef:  instrumentRef,
		Brand:       details.Brand,
		Last4:       details.Last4,
		ExpMonth:    details.ExpMonth,
		ExpYear:     details.ExpYear,
		CreatedAt:   time.Now().Unix(),
	}
	if err := s.repo.AddPaymentMethod(method, makeDefault); err != nil {
		return nil, err
	}

	s.audit.Record(&models.PaymentAuditLogEntry{
		UserID:      userID,
		Action:      models.AuditActionMethodAdded,
		Provider:    models.ProviderStripe,
		ExternalRef: instrumentRef,
		Metadata:    audit.Metadata(map[string]interface{}{"setup_ref": setupRef, "last4": details.Last4}),
	})
	return method, nil
}

// AddWallet saves a wallet account address for the synchronous rail.
// Duplicate addresses for the same user are a conflict.
func (s *Store) AddWallet(userID, address string, makeDefault bool) (*models.PaymentMethod, error) {
	normalized, err := validation.ValidateAndNormalizeWalletAddress(address)
	if err != nil {
		return nil, models.NewValidationError("invalid wallet address: %v", err)
	}

	method := &models.PaymentMethod{
		ID:            uuid.NewString(),
		OwnerUserID:   userID,
		Provider:      models.ProviderWallet,
		Kind:          models.PaymentMethodKindWallet,
		GatewayRef:    normalized,
		WalletAddress: normalized,
		CreatedAt:     time.Now().Unix(),
	}
	if err := s.repo.AddPaymentMethod(method, makeDefault); err != nil {
		return nil, err
	}

	s.audit.Record(&models.PaymentAuditLogEntry{
		UserID:   userID,
		Action:   models.AuditActionMethodAdded,
		Provider: models.ProviderWallet,
		Metadata: audit.Metadata(map[string]interface{}{"wallet_address": normalized}),
	})
	return method, nil
}

func (s *Store) SetDefault(userID, id string) error {
	if err := s.repo.SetDefaultPaymentMethod(userID, id); err != nil {
		return err
	}

	s.audit.Record(&models.PaymentAuditLogEntry{
		UserID:   userID,
		Action:   models.AuditActionMethodDefault,
		Metadata: audit.Metadata(map[string]interface{}{"payment_method_id": id}),
	})
	return nil
}

// Remove deletes the instrument locally and detaches it upstream. Local
// state is authoritative for what a user can select; a failed detach is
// audited and otherwise ignored, the gateway catches up eventually.
func (s *Store) Remove(ctx context.Context, userID, id string) error {
	removed, err := s.repo.RemovePaymentMethod(userID, id)
	if err != nil {
		return err
	}

	if removed.Provider == models.ProviderStripe && removed.GatewayRef != "" {
		if err := s.gateway.DetachPaymentMethod(ctx, removed.GatewayRef); err != nil {
			s.logger.Warn("Failed to detach payment method upstream ", "method ", removed.GatewayRef, " error ", err)
			s.audit.Record(&models.PaymentAuditLogEntry{
				UserID:       userID,
				Action:       models.AuditActionMethodDetachFail,
				Provider:     models.ProviderStripe,
				ExternalRef:  removed.GatewayRef,
				ErrorMessage: err.Error(),
			})
		}
	}

	s.audit.Record(&models.PaymentAuditLogEntry{
		UserID:      userID,
		Action:      models.AuditActionMethodRemoved,
		Provider:    removed.Provider,
		ExternalRef: removed.GatewayRef,
	})
	return nil
}
