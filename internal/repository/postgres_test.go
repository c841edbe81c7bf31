package repository

import (
	"errors"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/pkg/logger"
)

func newTestDB(t *testing.T) (models.Repository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	repo, err := New(db, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to init repository: %v", err)
	}
	return repo, db
}

func seedCampaign(t *testing.T, db *gorm.DB, id string, raised int64) {
	t.Helper()
	if err := db.Create(&models.Campaign{ID: id, OwnerUserID: "owner_1", Title: "Clean water", RaisedAmount: raised}).Error; err != nil {
		t.Fatalf("failed to seed campaign: %v", err)
	}
}

func campaignRaised(t *testing.T, db *gorm.DB, id string) int64 {
	t.Helper()
	var campaign models.Campaign
	if err := db.First(&campaign, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to read campaign: %v", err)
	}
	return campaign.RaisedAmount
}

func completedDonation(ref, campaignID string, amount int64) *models.Donation {
	return &models.Donation{
		ID:                     "don_" + ref,
		DonorUserID:            "user_1",
		CampaignID:             campaignID,
		Amount:                 amount,
		Currency:               "usd",
		Provider:               models.ProviderStripe,
		Status:                 models.DonationStatusCompleted,
		ExternalTransactionRef: ref,
		CreatedAt:              1700000000,
	}
}

func TestCreateDonationIfAbsentIncrementsOnce(t *testing.T) {
	repo, db := newTestDB(t)
	seedCampaign(t, db, "camp_1", 10000)

	first, created, err := repo.CreateDonationIfAbsent(completedDonation("pi_1", "camp_1", 2500))
	if err != nil {
		t.Fatalf("CreateDonationIfAbsent: %v", err)
	}
	if !created {
		t.Fatal("expected first insert to create a row")
	}

	// Same external ref again, as the losing side of a confirm/webhook race.
	second, created, err := repo.CreateDonationIfAbsent(completedDonation("pi_1", "camp_1", 2500))
	if err != nil {
		t.Fatalf("CreateDonationIfAbsent replay: %v", err)
	}
	if created {
		t.Fatal("expected replay to observe the existing row")
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned a different row: %s vs %s", second.ID, first.ID)
	}

	var count int64
	db.Model(&models.Donation{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 donation row, got %d", count)
	}
	if raised := campaignRaised(t, db, "camp_1"); raised != 12500 {
		t.Fatalf("expected raised 12500, got %d", raised)
	}
}

func TestRunningTotalAcrossDonationsAndRefund(t *testing.T) {
	repo, db := newTestDB(t)
	seedCampaign(t, db, "camp_1", 0)

	amounts := []int64{1000, 2500, 400}
	for i, amount := range amounts {
		ref := fmt.Sprintf("pi_%d", i)
		if _, _, err := repo.CreateDonationIfAbsent(completedDonation(ref, "camp_1", amount)); err != nil {
			t.Fatalf("CreateDonationIfAbsent %s: %v", ref, err)
		}
	}
	if raised := campaignRaised(t, db, "camp_1"); raised != 3900 {
		t.Fatalf("expected raised 3900, got %d", raised)
	}

	// Refund the middle donation, delivered twice.
	for i := 0; i < 2; i++ {
		donation, applied, err := repo.RefundDonationByRef("pi_1")
		if err != nil {
			t.Fatalf("RefundDonationByRef delivery %d: %v", i, err)
		}
		if i == 0 && !applied {
			t.Fatal("expected first refund delivery to apply")
		}
		if i == 1 && applied {
			t.Fatal("expected second refund delivery to be a no-op")
		}
		if donation.Status != models.DonationStatusRefunded {
			t.Fatalf("expected refunded status, got %s", donation.Status)
		}
	}
	if raised := campaignRaised(t, db, "camp_1"); raised != 1400 {
		t.Fatalf("expected raised 1400 after refund, got %d", raised)
	}
}

func TestCompleteDonationGatedOnPending(t *testing.T) {
	repo, db := newTestDB(t)
	seedCampaign(t, db, "camp_1", 0)

	pending := completedDonation("pi_pend", "camp_1", 700)
	pending.Status = models.DonationStatusPending
	if _, _, err := repo.CreateDonationIfAbsent(pending); err != nil {
		t.Fatalf("CreateDonationIfAbsent: %v", err)
	}
	// Pending insert must not touch the total.
	if raised := campaignRaised(t, db, "camp_1"); raised != 0 {
		t.Fatalf("expected raised 0 for pending donation, got %d", raised)
	}

	for i := 0; i < 2; i++ {
		_, applied, err := repo.CompleteDonationByExternalRef("pi_pend")
		if err != nil {
			t.Fatalf("CompleteDonationByExternalRef delivery %d: %v", i, err)
		}
		if applied != (i == 0) {
			t.Fatalf("delivery %d: applied=%v", i, applied)
		}
	}
	if raised := campaignRaised(t, db, "camp_1"); raised != 700 {
		t.Fatalf("expected raised 700, got %d", raised)
	}
}

func TestTransitionWithEmptyRefMatchesNothing(t *testing.T) {
	repo, db := newTestDB(t)
	seedCampaign(t, db, "camp_1", 0)

	// Wallet donations carry no charge ref. An empty lookup ref must not
	// resolve to them.
	wallet := completedDonation("wallet_abc", "camp_1", 2500)
	wallet.Provider = models.ProviderWallet
	if _, _, err := repo.CreateDonationIfAbsent(wallet); err != nil {
		t.Fatalf("CreateDonationIfAbsent: %v", err)
	}

	_, _, err := repo.RefundDonationByRef("")
	var notFound *models.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError for empty ref, got %v", err)
	}

	stored, err := repo.GetDonationByExternalRef("wallet_abc")
	if err != nil {
		t.Fatalf("GetDonationByExternalRef: %v", err)
	}
	if stored.Status != models.DonationStatusCompleted {
		t.Fatalf("empty-ref transition touched a donation: %s", stored.Status)
	}
	if raised := campaignRaised(t, db, "camp_1"); raised != 2500 {
		t.Fatalf("expected raised 2500 untouched, got %d", raised)
	}
}

func TestCompleteDonationUnknownRefIsNotFound(t *testing.T) {
	repo, _ := newTestDB(t)

	_, _, err := repo.CompleteDonationByExternalRef("pi_missing")
	var notFound *models.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRefundOnlyFromCompleted(t *testing.T) {
	repo, db := newTestDB(t)
	seedCampaign(t, db, "camp_1", 0)

	pending := completedDonation("pi_x", "camp_1", 300)
	pending.Status = models.DonationStatusPending
	if _, _, err := repo.CreateDonationIfAbsent(pending); err != nil {
		t.Fatalf("CreateDonationIfAbsent: %v", err)
	}

	_, applied, err := repo.RefundDonationByRef("pi_x")
	if err != nil {
		t.Fatalf("RefundDonationByRef: %v", err)
	}
	if applied {
		t.Fatal("refund must not apply to a pending donation")
	}
	if raised := campaignRaised(t, db, "camp_1"); raised != 0 {
		t.Fatalf("expected raised 0, got %d", raised)
	}
}

func TestFirstPaymentMethodForcedDefault(t *testing.T) {
	repo, _ := newTestDB(t)

	pm := &models.PaymentMethod{ID: "pm_1", OwnerUserID: "user_1", Provider: models.ProviderStripe, Kind: models.PaymentMethodKindCard, GatewayRef: "ref_1", CreatedAt: 100}
	// Explicitly not requested as default; forced anyway because it is the first.
	if err := repo.AddPaymentMethod(pm, false); err != nil {
		t.Fatalf("AddPaymentMethod: %v", err)
	}

	methods, err := repo.ListPaymentMethods("user_1")
	if err != nil {
		t.Fatalf("ListPaymentMethods: %v", err)
	}
	if len(methods) != 1 || !methods[0].IsDefault {
		t.Fatalf("expected single default method, got %+v", methods)
	}
}

func TestDefaultIsSingleAcrossAdds(t *testing.T) {
	repo, _ := newTestDB(t)

	if err := repo.AddPaymentMethod(&models.PaymentMethod{ID: "pm_1", OwnerUserID: "user_1", GatewayRef: "ref_1", CreatedAt: 100}, false); err != nil {
		t.Fatalf("AddPaymentMethod pm_1: %v", err)
	}
	if err := repo.AddPaymentMethod(&models.PaymentMethod{ID: "pm_2", OwnerUserID: "user_1", GatewayRef: "ref_2", CreatedAt: 200}, true); err != nil {
		t.Fatalf("AddPaymentMethod pm_2: %v", err)
	}

	methods, _ := repo.ListPaymentMethods("user_1")
	defaults := 0
	for _, m := range methods {
		if m.IsDefault {
			defaults++
			if m.ID != "pm_2" {
				t.Fatalf("expected pm_2 to be default, got %s", m.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default, got %d", defaults)
	}
}

func TestRemoveDefaultPromotesNewest(t *testing.T) {
	repo, _ := newTestDB(t)

	for i, id := range []string{"pm_1", "pm_2", "pm_3"} {
		err := repo.AddPaymentMethod(&models.PaymentMethod{ID: id, OwnerUserID: "user_1", GatewayRef: "ref_" + id, CreatedAt: int64(100 * (i + 1))}, false)
		if err != nil {
			t.Fatalf("AddPaymentMethod %s: %v", id, err)
		}
	}

	// pm_1 is the forced default; removing it should promote pm_3 (newest).
	removed, err := repo.RemovePaymentMethod("user_1", "pm_1")
	if err != nil {
		t.Fatalf("RemovePaymentMethod: %v", err)
	}
	if !removed.IsDefault {
		t.Fatal("expected removed method to have been the default")
	}

	methods, _ := repo.ListPaymentMethods("user_1")
	if len(methods) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(methods))
	}
	for _, m := range methods {
		if m.IsDefault != (m.ID == "pm_3") {
			t.Fatalf("wrong default after promotion: %+v", methods)
		}
	}
}

func TestRemoveLastMethodLeavesZeroDefaults(t *testing.T) {
	repo, _ := newTestDB(t)

	if err := repo.AddPaymentMethod(&models.PaymentMethod{ID: "pm_1", OwnerUserID: "user_1", GatewayRef: "ref_1", CreatedAt: 100}, true); err != nil {
		t.Fatalf("AddPaymentMethod: %v", err)
	}
	if _, err := repo.RemovePaymentMethod("user_1", "pm_1"); err != nil {
		t.Fatalf("RemovePaymentMethod: %v", err)
	}

	methods, err := repo.ListPaymentMethods("user_1")
	if err != nil {
		t.Fatalf("ListPaymentMethods: %v", err)
	}
	if len(methods) != 0 {
		t.Fatalf("expected no methods, got %d", len(methods))
	}
}

func TestDuplicateWalletConflicts(t *testing.T) {
	repo, _ := newTestDB(t)

	wallet := &models.PaymentMethod{ID: "pm_w1", OwnerUserID: "user_1", Provider: models.ProviderWallet, Kind: models.PaymentMethodKindWallet, GatewayRef: "abcd", WalletAddress: "abcd", CreatedAt: 100}
	if err := repo.AddPaymentMethod(wallet, false); err != nil {
		t.Fatalf("AddPaymentMethod: %v", err)
	}

	dup := &models.PaymentMethod{ID: "pm_w2", OwnerUserID: "user_1", Provider: models.ProviderWallet, Kind: models.PaymentMethodKindWallet, GatewayRef: "abcd", WalletAddress: "abcd", CreatedAt: 200}
	err := repo.AddPaymentMethod(dup, false)
	var conflict *models.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	// Same address for a different user is fine.
	other := &models.PaymentMethod{ID: "pm_w3", OwnerUserID: "user_2", Provider: models.ProviderWallet, Kind: models.PaymentMethodKindWallet, GatewayRef: "abcd", WalletAddress: "abcd", CreatedAt: 300}
	if err := repo.AddPaymentMethod(other, false); err != nil {
		t.Fatalf("AddPaymentMethod for other user: %v", err)
	}
}

func TestCreateRecurringDonationSingleIncrement(t *testing.T) {
	repo, db := newTestDB(t)
	seedCampaign(t, db, "camp_1", 0)

	rd := &models.RecurringDonation{
		ID: "rec_1", DonorUserID: "user_1", CampaignID: "camp_1",
		Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalMonth,
		Status: models.RecurringStatusActive, SubscriptionRef: "sub_1", CreatedAt: 100,
	}
	first := completedDonation("pi_first", "camp_1", 1000)
	first.IsRecurring = true
	if err := repo.CreateRecurringDonation(rd, first); err != nil {
		t.Fatalf("CreateRecurringDonation: %v", err)
	}

	if raised := campaignRaised(t, db, "camp_1"); raised != 1000 {
		t.Fatalf("expected raised 1000, got %d", raised)
	}
	stored, err := repo.GetDonationByExternalRef("pi_first")
	if err != nil {
		t.Fatalf("GetDonationByExternalRef: %v", err)
	}
	if stored.RecurringDonationID != "rec_1" {
		t.Fatalf("expected first donation linked to rec_1, got %q", stored.RecurringDonationID)
	}
}

func TestCancelRecurringBySubscriptionRefIdempotent(t *testing.T) {
	repo, db := newTestDB(t)
	seedCampaign(t, db, "camp_1", 0)

	rd := &models.RecurringDonation{
		ID: "rec_1", DonorUserID: "user_1", CampaignID: "camp_1",
		Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalMonth,
		Status: models.RecurringStatusActive, SubscriptionRef: "sub_1", CreatedAt: 100,
	}
	if err := repo.CreateRecurringDonation(rd, completedDonation("pi_first", "camp_1", 1000)); err != nil {
		t.Fatalf("CreateRecurringDonation: %v", err)
	}

	applied, err := repo.CancelRecurringBySubscriptionRef("sub_1", 12345)
	if err != nil || !applied {
		t.Fatalf("first cancel: applied=%v err=%v", applied, err)
	}
	applied, err = repo.CancelRecurringBySubscriptionRef("sub_1", 99999)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if applied {
		t.Fatal("second cancel must be a no-op")
	}

	stored, err := repo.GetRecurringDonation("user_1", "rec_1")
	if err != nil {
		t.Fatalf("GetRecurringDonation: %v", err)
	}
	if stored.CanceledAt != 12345 {
		t.Fatalf("canceled_at must not change on redelivery, got %d", stored.CanceledAt)
	}
}

func TestUpdateRecurringKeepsCanceledTerminal(t *testing.T) {
	repo, db := newTestDB(t)
	seedCampaign(t, db, "camp_1", 0)

	rd := &models.RecurringDonation{
		ID: "rec_1", DonorUserID: "user_1", CampaignID: "camp_1",
		Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalMonth,
		Status: models.RecurringStatusActive, SubscriptionRef: "sub_1", CreatedAt: 100,
	}
	if err := repo.CreateRecurringDonation(rd, completedDonation("pi_first", "camp_1", 1000)); err != nil {
		t.Fatalf("CreateRecurringDonation: %v", err)
	}
	if applied, err := repo.MarkRecurringCanceled("rec_1", 12345); err != nil || !applied {
		t.Fatalf("MarkRecurringCanceled: applied=%v err=%v", applied, err)
	}

	updated, err := repo.UpdateRecurringBySubscriptionRef("sub_1", models.RecurringStatusActive, 1800000000)
	if err != nil {
		t.Fatalf("UpdateRecurringBySubscriptionRef: %v", err)
	}
	if updated.Status != models.RecurringStatusCanceled {
		t.Fatalf("stale active update resurrected the series: %s", updated.Status)
	}

	stored, err := repo.GetRecurringDonation("user_1", "rec_1")
	if err != nil {
		t.Fatalf("GetRecurringDonation: %v", err)
	}
	if stored.Status != models.RecurringStatusCanceled || stored.CanceledAt != 12345 {
		t.Fatalf("expected canceled series untouched, got %+v", stored)
	}
	if stored.CurrentPeriodEnd != 1800000000 {
		t.Fatalf("period end should still sync, got %d", stored.CurrentPeriodEnd)
	}
}

func TestListDonationsNewestFirstPaginated(t *testing.T) {
	repo, db := newTestDB(t)
	seedCampaign(t, db, "camp_1", 0)

	for i := 0; i < 5; i++ {
		d := completedDonation(fmt.Sprintf("pi_%d", i), "camp_1", 100)
		d.CreatedAt = int64(1000 + i)
		if _, _, err := repo.CreateDonationIfAbsent(d); err != nil {
			t.Fatalf("CreateDonationIfAbsent: %v", err)
		}
	}

	page1, total, err := repo.ListDonations(models.DonationFilter{CampaignID: "camp_1"}, 1, 2)
	if err != nil {
		t.Fatalf("ListDonations: %v", err)
	}
	if total != 5 || len(page1) != 2 {
		t.Fatalf("expected total 5 and 2 rows, got %d and %d", total, len(page1))
	}
	if page1[0].ExternalTransactionRef != "pi_4" || page1[1].ExternalTransactionRef != "pi_3" {
		t.Fatalf("expected newest first, got %s, %s", page1[0].ExternalTransactionRef, page1[1].ExternalTransactionRef)
	}
}
