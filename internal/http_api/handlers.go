package http_api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/givehub/payments/internal/ledger"
	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/internal/recurring"
)

// CommitPaymentMethodRequest saves a card tokenized during the setup flow.
type CommitPaymentMethodRequest struct {
	SetupRef      string `json:"setup_ref"`
	InstrumentRef string `json:"instrument_ref" binding:"required"`
	IsDefault     bool   `json:"is_default"`
}

// AddWalletRequest saves a wallet account address.
type AddWalletRequest struct {
	Address   string `json:"address" binding:"required"`
	IsDefault bool   `json:"is_default"`
}

// DonationRequest is shared by the card intent and wallet simulation
// endpoints. Amounts are minor units.
type DonationRequest struct {
	Amount          int64  `json:"amount" binding:"required"`
	Currency        string `json:"currency"`
	CampaignID      string `json:"campaign_id"`
	PostID          string `json:"post_id"`
	RecipientUserID string `json:"recipient_user_id"`
	PaymentMethodID string `json:"payment_method_id"`
	IsAnonymous     bool   `json:"is_anonymous"`
	Message         string `json:"message" binding:"max=500"`
}

// ConfirmPaymentRequest finalizes a charge the client reports as succeeded.
type ConfirmPaymentRequest struct {
	IntentID string `json:"intent_id" binding:"required"`
}

// CreateRecurringRequest starts a subscription-backed donation series.
type CreateRecurringRequest struct {
	CampaignID      string `json:"campaign_id" binding:"required"`
	Amount          int64  `json:"amount" binding:"required"`
	Currency        string `json:"currency"`
	Interval        string `json:"interval" binding:"required,oneof=week month year"`
	PaymentMethodID string `json:"payment_method_id"`
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) listPaymentMethods(c *gin.Context) {
	methods, err := s.methods.List(userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment_methods": methods})
}

func (s *HTTPServer) beginSetup(c *gin.Context) {
	intent, err := s.methods.BeginSetup(c.Request.Context(), userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"setup_intent": intent})
}

func (s *HTTPServer) commitPaymentMethod(c *gin.Context) {
	var req CommitPaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	method, err := s.methods.Commit(c.Request.Context(), userID(c), req.SetupRef, req.InstrumentRef, req.IsDefault)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment_method": method})
}

func (s *HTTPServer) addWallet(c *gin.Context) {
	var req AddWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	method, err := s.methods.AddWallet(userID(c), req.Address, req.IsDefault)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"payment_method": method})
}

func (s *HTTPServer) setDefaultPaymentMethod(c *gin.Context) {
	if err := s.methods.SetDefault(userID(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) removePaymentMethod(c *gin.Context) {
	if err := s.methods.Remove(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *HTTPServer) createIntent(c *gin.Context) {
	var req DonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	handle, err := s.ledger.CreateIntent(c.Request.Context(), userID(c), &ledger.CreateIntentInput{
		Target: ledger.Target{
			CampaignID:      req.CampaignID,
			PostID:          req.PostID,
			RecipientUserID: req.RecipientUserID,
		},
		Amount:          req.Amount,
		Currency:        s.currency(req.Currency),
		PaymentMethodID: req.PaymentMethodID,
		IsAnonymous:     req.IsAnonymous,
		Message:         req.Message,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"client_secret": handle.ClientSecret,
		"intent_id":     handle.IntentRef,
	})
}

func (s *HTTPServer) confirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	donation, err := s.ledger.ConfirmIntent(c.Request.Context(), userID(c), req.IntentID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"donation":        donation,
		"transaction_ref": donation.ExternalTransactionRef,
	})
}

func (s *HTTPServer) walletSimulation(c *gin.Context) {
	var req DonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	donation, err := s.ledger.WalletDonation(userID(c), &ledger.CreateIntentInput{
		Target: ledger.Target{
			CampaignID:      req.CampaignID,
			PostID:          req.PostID,
			RecipientUserID: req.RecipientUserID,
		},
		Amount:      req.Amount,
		Currency:    s.currency(req.Currency),
		IsAnonymous: req.IsAnonymous,
		Message:     req.Message,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"donation":        donation,
		"transaction_ref": donation.ExternalTransactionRef,
	})
}

func (s *HTTPServer) listDonations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	filter := models.DonationFilter{CampaignID: c.Query("campaign_id")}
	// Without a campaign filter the listing is scoped to the caller's own
	// donations.
	if filter.CampaignID == "" {
		filter.DonorUserID = userID(c)
	}

	donations, total, err := s.ledger.ListDonations(filter, page, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"donations": donations,
		"total":     total,
		"page":      page,
		"limit":     limit,
	})
}

func (s *HTTPServer) createRecurring(c *gin.Context) {
	var req CreateRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	result, err := s.recurring.Create(c.Request.Context(), userID(c), &recurring.CreateInput{
		CampaignID:      req.CampaignID,
		Amount:          req.Amount,
		Currency:        s.currency(req.Currency),
		Interval:        models.RecurringInterval(req.Interval),
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"recurring_donation": result.Recurring,
		"donation":           result.Donation,
		"subscription_ref":   result.Recurring.SubscriptionRef,
	})
}

func (s *HTTPServer) listRecurring(c *gin.Context) {
	series, err := s.recurring.List(userID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recurring_donations": series})
}

func (s *HTTPServer) cancelRecurring(c *gin.Context) {
	rd, err := s.recurring.Cancel(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recurring_donation": rd})
}

func (s *HTTPServer) currency(currency string) string {
	if currency == "" {
		return s.defaultCurrency
	}
	return strings.ToLower(currency)
}

func (s *HTTPServer) badRequest(c *gin.Context, err error) {
	s.logger.Debug("Invalid request body", "error", err)
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "Invalid request body: " + err.Error(),
	})
}

// respondError maps the error taxonomy to HTTP statuses. Gateway failures
// come back generic: the audit log holds the detail, clients get no upstream
// internals.
func (s *HTTPServer) respondError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	var notFoundErr *models.NotFoundError
	var conflictErr *models.ConflictError
	var gatewayErr *models.GatewayError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": validationErr.Msg})
	case errors.Is(err, models.ErrNotSucceeded):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": notFoundErr.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": conflictErr.Msg})
	case errors.As(err, &gatewayErr):
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "payment provider error"})
	default:
		s.logger.Error("Unhandled error in HTTP handler", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}
