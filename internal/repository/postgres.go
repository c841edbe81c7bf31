package repository

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/pkg/logger"
)

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (models.Repository, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // Use standard logger
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Log queries slower than this
			LogLevel:                  gormLogger.Warn,        // Only log warnings or errors
			IgnoreRecordNotFoundError: true,                   // Suppress "record not found" errors
			Colorful:                  true,                   // Enable colorful logs
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	repo, err := New(db, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return repo, nil
}

// New wraps an open gorm connection. Split out of NewPostgresDB so tests can
// hand in an in-memory sqlite connection.
func New(db *gorm.DB, logger *logger.Logger) (models.Repository, error) {
	if err := db.AutoMigrate(
		&models.PaymentMethod{},
		&models.GatewayCustomer{},
		&models.Donation{},
		&models.RecurringDonation{},
		&models.PaymentAuditLogEntry{},
		&models.Campaign{},
		&models.Post{},
		&models.User{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	return &PostgresDB{Conn: db, logger: logger}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

func (db *PostgresDB) ListPaymentMethods(userID string) ([]*models.PaymentMethod, error) {
	var methods []*models.PaymentMethod
	if err := db.Conn.Where("owner_user_id = ?", userID).
		Order("is_default DESC, created_at DESC").
		Find(&methods).Error; err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %s", err)
	}

	return methods, nil
}

func (db *PostgresDB) GetPaymentMethod(userID, id string) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	if err := db.Conn.Where("owner_user_id = ? AND id = ?", userID, id).First(&method).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "payment method", ID: id}
		}
		return nil, fmt.Errorf("failed to get payment method: %s", err)
	}

	return &method, nil
}

// AddPaymentMethod stores a new instrument. The first method a user saves is
// forced default; making a later method default clears the previous one. All
// of it runs in one transaction so concurrent writers cannot leave two
// defaults behind.
func (db *PostgresDB) AddPaymentMethod(pm *models.PaymentMethod, makeDefault bool) error {
	err := db.Conn.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PaymentMethod{}).
			Where("owner_user_id = ?", pm.OwnerUserID).
			Count(&count).Error; err != nil {
			return err
		}

		if pm.WalletAddress != "" {
			var existing models.PaymentMethod
			err := tx.Where("owner_user_id = ? AND wallet_address = ?", pm.OwnerUserID, pm.WalletAddress).
				First(&existing).Error
			if err == nil {
				return &models.ConflictError{Msg: "wallet address already saved"}
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		pm.IsDefault = makeDefault || count == 0
		if pm.IsDefault && count > 0 {
			if err := tx.Model(&models.PaymentMethod{}).
				Where("owner_user_id = ? AND is_default = ?", pm.OwnerUserID, true).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}

		return tx.Create(pm).Error
	})
	if err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			return conflict
		}
		return fmt.Errorf("failed to add payment method: %s", err)
	}
	return nil
}

func (db *PostgresDB) SetDefaultPaymentMethod(userID, id string) error {
	err := db.Conn.Transaction(func(tx *gorm.DB) error {
		var method models.PaymentMethod
		if err := tx.Where("owner_user_id = ? AND id = ?", userID, id).First(&method).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &models.NotFoundError{Resource: "payment method", ID: id}
			}
			return err
		}

		if err := tx.Model(&models.PaymentMethod{}).
			Where("owner_user_id = ? AND is_default = ?", userID, true).
			Update("is_default", false).Error; err != nil {
			return err
		}

		return tx.Model(&models.PaymentMethod{}).
			Where("owner_user_id = ? AND id = ?", userID, id).
			Update("is_default", true).Error
	})
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return notFound
		}
		return fmt.Errorf("failed to set default payment method: %s", err)
	}
	return nil
}

// RemovePaymentMethod deletes the instrument and, if it was the default,
// promotes the most recently created remaining method. Removing the last
// method leaves the user with zero defaults, which is fine.
func (db *PostgresDB) RemovePaymentMethod(userID, id string) (*models.PaymentMethod, error) {
	var removed models.PaymentMethod
	err := db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner_user_id = ? AND id = ?", userID, id).First(&removed).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &models.NotFoundError{Resource: "payment method", ID: id}
			}
			return err
		}

		if err := tx.Delete(&models.PaymentMethod{}, "id = ?", removed.ID).Error; err != nil {
			return err
		}

		if removed.IsDefault {
			var newest models.PaymentMethod
			err := tx.Where("owner_user_id = ?", userID).
				Order("created_at DESC").
				First(&newest).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil // last method removed, nothing to promote
			}
			if err != nil {
				return err
			}
			return tx.Model(&models.PaymentMethod{}).
				Where("id = ?", newest.ID).
				Update("is_default", true).Error
		}
		return nil
	})
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to remove payment method: %s", err)
	}
	return &removed, nil
}

func (db *PostgresDB) GetGatewayCustomerRef(userID string) (string, error) {
	var customer models.GatewayCustomer
	if err := db.Conn.Where("user_id = ?", userID).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get gateway customer: %s", err)
	}

	return customer.CustomerRef, nil
}

func (db *PostgresDB) SaveGatewayCustomerRef(userID, ref string) error {
	customer := models.GatewayCustomer{UserID: userID, CustomerRef: ref}
	if err := db.Conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"customer_ref"}),
	}).Create(&customer).Error; err != nil {
		return fmt.Errorf("failed to save gateway customer: %s", err)
	}
	return nil
}

// CreateDonationIfAbsent is the idempotency core of the ledger. The insert is
// keyed on the unique external_transaction_ref; a concurrent writer that
// loses the race observes the winner's row and applies nothing further. The
// campaign increment shares the insert's transaction so there is no window
// where the row exists without the raised total reflecting it.
func (db *PostgresDB) CreateDonationIfAbsent(d *models.Donation) (*models.Donation, bool, error) {
	var result *models.Donation
	created := false
	err := db.Conn.Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_transaction_ref"}},
			DoNothing: true,
		}).Create(d)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			var existing models.Donation
			if err := tx.Where("external_transaction_ref = ?", d.ExternalTransactionRef).
				First(&existing).Error; err != nil {
				return err
			}
			result = &existing
			return nil
		}

		created = true
		result = d
		if d.CampaignID != "" && d.Status == models.DonationStatusCompleted {
			return tx.Model(&models.Campaign{}).
				Where("id = ?", d.CampaignID).
				UpdateColumn("raised_amount", gorm.Expr("raised_amount + ?", d.Amount)).Error
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create donation: %s", err)
	}
	return result, created, nil
}

func (db *PostgresDB) GetDonationByExternalRef(ref string) (*models.Donation, error) {
	var donation models.Donation
	if err := db.Conn.Where("external_transaction_ref = ?", ref).First(&donation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "donation", ID: ref}
		}
		return nil, fmt.Errorf("failed to get donation: %s", err)
	}

	return &donation, nil
}

func (db *PostgresDB) ListDonations(filter models.DonationFilter, page, limit int) ([]*models.Donation, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := db.Conn.Model(&models.Donation{})
	if filter.DonorUserID != "" {
		query = query.Where("donor_user_id = ?", filter.DonorUserID)
	}
	if filter.CampaignID != "" {
		query = query.Where("campaign_id = ?", filter.CampaignID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count donations: %s", err)
	}

	var donations []*models.Donation
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&donations).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list donations: %s", err)
	}

	return donations, total, nil
}

// CompleteDonationByExternalRef applies pending -> completed. The UPDATE is
// conditional on the prior status, so a redelivered webhook (or a webhook
// racing the confirm path) finds zero rows to change and the campaign
// increment runs at most once.
func (db *PostgresDB) CompleteDonationByExternalRef(ref string) (*models.Donation, bool, error) {
	return db.transitionDonation(ref,
		models.DonationStatusPending, models.DonationStatusCompleted,
		map[string]interface{}{"status": models.DonationStatusCompleted},
		+1)
}

func (db *PostgresDB) FailDonationByExternalRef(ref, failureMessage string) (*models.Donation, bool, error) {
	return db.transitionDonation(ref,
		models.DonationStatusPending, models.DonationStatusFailed,
		map[string]interface{}{"status": models.DonationStatusFailed, "failure_message": failureMessage},
		0)
}

func (db *PostgresDB) RefundDonationByRef(ref string) (*models.Donation, bool, error) {
	return db.transitionDonation(ref,
		models.DonationStatusCompleted, models.DonationStatusRefunded,
		map[string]interface{}{"status": models.DonationStatusRefunded},
		-1)
}

// transitionDonation applies one guarded status transition and the matching
// campaign-total adjustment (direction +1, -1 or 0) in a single transaction.
// The ref matches external_transaction_ref or charge_ref. An empty ref
// matches nothing: donations without a charge ref store an empty string, and
// an authenticated event that carries no ref must not touch them.
func (db *PostgresDB) transitionDonation(ref string, from, to models.DonationStatus, updates map[string]interface{}, direction int64) (*models.Donation, bool, error) {
	if ref == "" {
		return nil, false, &models.NotFoundError{Resource: "donation"}
	}

	var donation models.Donation
	applied := false
	err := db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("external_transaction_ref = ? OR (charge_ref <> '' AND charge_ref = ?)", ref, ref).
			First(&donation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &models.NotFoundError{Resource: "donation", ID: ref}
			}
			return err
		}

		res := tx.Model(&models.Donation{}).
			Where("id = ? AND status = ?", donation.ID, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // already transitioned, side effects stay unapplied
		}

		applied = true
		donation.Status = to
		if direction != 0 && donation.CampaignID != "" {
			return tx.Model(&models.Campaign{}).
				Where("id = ?", donation.CampaignID).
				UpdateColumn("raised_amount", gorm.Expr("raised_amount + ?", direction*donation.Amount)).Error
		}
		return nil
	})
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return nil, false, notFound
		}
		return nil, false, fmt.Errorf("failed to transition donation: %s", err)
	}
	return &donation, applied, nil
}

// CreateRecurringDonation persists the series, its first donation and the
// single campaign increment together.
func (db *PostgresDB) CreateRecurringDonation(rd *models.RecurringDonation, first *models.Donation) error {
	err := db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rd).Error; err != nil {
			return err
		}

		first.RecurringDonationID = rd.ID
		if err := tx.Create(first).Error; err != nil {
			return err
		}

		if first.Status == models.DonationStatusCompleted && first.CampaignID != "" {
			return tx.Model(&models.Campaign{}).
				Where("id = ?", first.CampaignID).
				UpdateColumn("raised_amount", gorm.Expr("raised_amount + ?", first.Amount)).Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create recurring donation: %s", err)
	}
	return nil
}

func (db *PostgresDB) GetRecurringDonation(userID, id string) (*models.RecurringDonation, error) {
	var rd models.RecurringDonation
	if err := db.Conn.Where("donor_user_id = ? AND id = ?", userID, id).First(&rd).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "recurring donation", ID: id}
		}
		return nil, fmt.Errorf("failed to get recurring donation: %s", err)
	}

	return &rd, nil
}

func (db *PostgresDB) ListRecurringDonations(userID string) ([]*models.RecurringDonation, error) {
	var series []*models.RecurringDonation
	if err := db.Conn.Where("donor_user_id = ?", userID).
		Order("created_at DESC").
		Find(&series).Error; err != nil {
		return nil, fmt.Errorf("failed to list recurring donations: %s", err)
	}

	return series, nil
}

func (db *PostgresDB) MarkRecurringCanceled(id string, canceledAt int64) (bool, error) {
	res := db.Conn.Model(&models.RecurringDonation{}).
		Where("id = ? AND status = ?", id, models.RecurringStatusActive).
		Updates(map[string]interface{}{
			"status":      models.RecurringStatusCanceled,
			"canceled_at": canceledAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to cancel recurring donation: %s", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpdateRecurringBySubscriptionRef syncs provider state onto a series. The
// period end always syncs, but the status write is gated on the row still
// being active: canceled is terminal, so a late "active" update from the
// provider cannot resurrect a series canceled locally.
func (db *PostgresDB) UpdateRecurringBySubscriptionRef(ref string, status models.RecurringDonationStatus, currentPeriodEnd int64) (*models.RecurringDonation, error) {
	var rd models.RecurringDonation
	err := db.Conn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("subscription_ref = ?", ref).First(&rd).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &models.NotFoundError{Resource: "recurring donation", ID: ref}
			}
			return err
		}

		if currentPeriodEnd > 0 {
			if err := tx.Model(&models.RecurringDonation{}).
				Where("id = ?", rd.ID).
				UpdateColumn("current_period_end", currentPeriodEnd).Error; err != nil {
				return err
			}
			rd.CurrentPeriodEnd = currentPeriodEnd
		}

		res := tx.Model(&models.RecurringDonation{}).
			Where("id = ? AND status = ?", rd.ID, models.RecurringStatusActive).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			rd.Status = status
		}
		return nil
	})
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to update recurring donation: %s", err)
	}
	return &rd, nil
}

func (db *PostgresDB) CancelRecurringBySubscriptionRef(ref string, canceledAt int64) (bool, error) {
	res := db.Conn.Model(&models.RecurringDonation{}).
		Where("subscription_ref = ? AND status = ?", ref, models.RecurringStatusActive).
		Updates(map[string]interface{}{
			"status":      models.RecurringStatusCanceled,
			"canceled_at": canceledAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to cancel recurring donation: %s", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (db *PostgresDB) GetCampaign(id string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := db.Conn.Where("id = ?", id).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "campaign", ID: id}
		}
		return nil, fmt.Errorf("failed to get campaign: %s", err)
	}

	return &campaign, nil
}

func (db *PostgresDB) GetPost(id string) (*models.Post, error) {
	var post models.Post
	if err := db.Conn.Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "post", ID: id}
		}
		return nil, fmt.Errorf("failed to get post: %s", err)
	}

	return &post, nil
}

func (db *PostgresDB) GetUser(id string) (*models.User, error) {
	var user models.User
	if err := db.Conn.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &models.NotFoundError{Resource: "user", ID: id}
		}
		return nil, fmt.Errorf("failed to get user: %s", err)
	}

	return &user, nil
}

func (db *PostgresDB) AddAuditEntry(entry *models.PaymentAuditLogEntry) error {
	if err := db.Conn.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to add audit entry: %s", err)
	}
	return nil
}
