package recurring

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/givehub/payments/internal/audit"
	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/internal/repository"
	"github.com/givehub/payments/pkg/logger"
)

type fakeGateway struct {
	lastSubIn    *models.SubscriptionInput
	subCounter   int
	subErr       error
	cancelErr    error
	canceledRefs []string
	firstIntent  string
}

func (f *fakeGateway) EnsureCustomer(ctx context.Context, userID string) (string, error) {
	return "cus_" + userID, nil
}

func (f *fakeGateway) CreateSetupIntent(ctx context.Context, customerRef string) (*models.SetupIntent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) CreatePaymentIntent(ctx context.Context, in *models.PaymentIntentInput) (*models.PaymentIntent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) GetPaymentIntent(ctx context.Context, ref string) (*models.PaymentIntent, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) GetPaymentMethod(ctx context.Context, ref string) (*models.InstrumentDetails, error) {
	return &models.InstrumentDetails{Ref: ref, Brand: "visa", Last4: "4242"}, nil
}

func (f *fakeGateway) DetachPaymentMethod(ctx context.Context, ref string) error { return nil }

func (f *fakeGateway) CreateSubscription(ctx context.Context, in *models.SubscriptionInput) (*models.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.lastSubIn = in
	f.subCounter++
	return &models.Subscription{
		Ref:              fmt.Sprintf("sub_%d", f.subCounter),
		PriceRef:         fmt.Sprintf("price_%d", f.subCounter),
		Status:           "active",
		CurrentPeriodEnd: 1800000000,
		FirstIntentRef:   f.firstIntent,
	}, nil
}

func (f *fakeGateway) CancelSubscription(ctx context.Context, ref string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceledRefs = append(f.canceledRefs, ref)
	return nil
}

func (f *fakeGateway) VerifyWebhook(payload []byte, signature string) (*models.GatewayEvent, error) {
	return nil, errors.New("not implemented")
}

type captureNotifier struct {
	notices []*models.DonationNotice
}

func (c *captureNotifier) DonationReceived(notice *models.DonationNotice) {
	c.notices = append(c.notices, notice)
}

type fixture struct {
	manager  *Manager
	gateway  *fakeGateway
	notifier *captureNotifier
	repo     models.Repository
	db       *gorm.DB
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	repo, err := repository.New(db, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to init repository: %v", err)
	}

	if err := db.Create(&models.Campaign{ID: "camp_1", OwnerUserID: "owner_1", Title: "Clean water"}).Error; err != nil {
		t.Fatalf("failed to seed campaign: %v", err)
	}
	if err := db.Create(&models.User{ID: "donor_1", DisplayName: "Dana Donor"}).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	gw := &fakeGateway{firstIntent: "pi_first"}
	notifier := &captureNotifier{}
	log := logger.NewNop()
	return &fixture{
		manager:  NewManager(repo, gw, audit.NewRecorder(repo, log), notifier, log),
		gateway:  gw,
		notifier: notifier,
		repo:     repo,
		db:       db,
	}
}

func (f *fixture) raised(t *testing.T) int64 {
	t.Helper()
	var campaign models.Campaign
	if err := f.db.First(&campaign, "id = ?", "camp_1").Error; err != nil {
		t.Fatalf("failed to read campaign: %v", err)
	}
	return campaign.RaisedAmount
}

func TestCreateRecurringDonation(t *testing.T) {
	f := newFixture(t)

	result, err := f.manager.Create(context.Background(), "donor_1", &CreateInput{
		CampaignID: "camp_1", Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalMonth,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rd := result.Recurring
	if rd.Status != models.RecurringStatusActive || rd.SubscriptionRef != "sub_1" || rd.PriceRef != "price_1" {
		t.Fatalf("wrong series: %+v", rd)
	}
	if rd.CurrentPeriodEnd != 1800000000 {
		t.Fatalf("expected period end from gateway, got %d", rd.CurrentPeriodEnd)
	}

	first := result.Donation
	if first.Status != models.DonationStatusCompleted || !first.IsRecurring {
		t.Fatalf("wrong first donation: %+v", first)
	}
	if first.ExternalTransactionRef != "pi_first" {
		t.Fatalf("expected first intent ref, got %q", first.ExternalTransactionRef)
	}

	if got := f.raised(t); got != 1000 {
		t.Fatalf("expected raised 1000, got %d", got)
	}
	if len(f.notifier.notices) != 1 {
		t.Fatalf("expected 1 notice, got %d", len(f.notifier.notices))
	}
	notice := f.notifier.notices[0]
	if !notice.Recurring || notice.RecipientUserID != "owner_1" || notice.DonorName != "Dana Donor" {
		t.Fatalf("wrong notice: %+v", notice)
	}
}

func TestCreateFallsBackToSubscriptionRefForFirstDonation(t *testing.T) {
	f := newFixture(t)
	f.gateway.firstIntent = ""

	result, err := f.manager.Create(context.Background(), "donor_1", &CreateInput{
		CampaignID: "camp_1", Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalWeek,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if result.Donation.ExternalTransactionRef != "sub_1_initial" {
		t.Fatalf("expected fallback ref, got %q", result.Donation.ExternalTransactionRef)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"zero amount", CreateInput{CampaignID: "camp_1", Currency: "usd", Interval: models.RecurringIntervalMonth}},
		{"no campaign", CreateInput{Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalMonth}},
		{"bad interval", CreateInput{CampaignID: "camp_1", Amount: 1000, Currency: "usd", Interval: "daily"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.manager.Create(context.Background(), "donor_1", &tc.in)
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCreateUnknownCampaign(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Create(context.Background(), "donor_1", &CreateInput{
		CampaignID: "camp_missing", Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalMonth,
	})
	var notFound *models.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)

	result, err := f.manager.Create(context.Background(), "donor_1", &CreateInput{
		CampaignID: "camp_1", Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalMonth,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rd, err := f.manager.Cancel(context.Background(), "donor_1", result.Recurring.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if rd.Status != models.RecurringStatusCanceled || rd.CanceledAt == 0 {
		t.Fatalf("expected canceled series, got %+v", rd)
	}
	if len(f.gateway.canceledRefs) != 1 || f.gateway.canceledRefs[0] != "sub_1" {
		t.Fatalf("expected upstream cancel of sub_1, got %v", f.gateway.canceledRefs)
	}

	// Second cancel is a conflict.
	_, err = f.manager.Cancel(context.Background(), "donor_1", result.Recurring.ID)
	if !errors.Is(err, models.ErrAlreadyCanceled) {
		t.Fatalf("expected ErrAlreadyCanceled, got %v", err)
	}
}

func TestCancelProceedsWhenUpstreamFails(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Create(context.Background(), "donor_1", &CreateInput{
		CampaignID: "camp_1", Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalMonth,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.gateway.cancelErr = errors.New("gateway down")

	rd, err := f.manager.Cancel(context.Background(), "donor_1", result.Recurring.ID)
	if err != nil {
		t.Fatalf("Cancel with failing upstream: %v", err)
	}
	if rd.Status != models.RecurringStatusCanceled {
		t.Fatalf("expected local cancel despite upstream failure, got %+v", rd)
	}
}

func TestCancelSomeoneElsesSeries(t *testing.T) {
	f := newFixture(t)
	result, err := f.manager.Create(context.Background(), "donor_1", &CreateInput{
		CampaignID: "camp_1", Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalMonth,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, err = f.manager.Cancel(context.Background(), "other_user", result.Recurring.ID)
	var notFound *models.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCreateDescriptionNamesCampaign(t *testing.T) {
	f := newFixture(t)

	if _, err := f.manager.Create(context.Background(), "donor_1", &CreateInput{
		CampaignID: "camp_1", Amount: 1000, Currency: "usd", Interval: models.RecurringIntervalYear,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if f.gateway.lastSubIn.Description != "Recurring donation to Clean water" {
		t.Fatalf("wrong description: %q", f.gateway.lastSubIn.Description)
	}
	if f.gateway.lastSubIn.Interval != models.RecurringIntervalYear {
		t.Fatalf("wrong interval: %q", f.gateway.lastSubIn.Interval)
	}
}
