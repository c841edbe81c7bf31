package notifier

import (
	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/pkg/logger"
)

// LogNotifier is the in-process implementation of RecipientNotifier.
// Actual delivery (push, email) is owned by the platform's notification
// service; this one records the notice in the service log. The ledger blanks
// the donor name for anonymous donations before the notice reaches any
// implementation.
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(logger *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) DonationReceived(notice *models.DonationNotice) {
	donor := notice.DonorName
	if donor == "" {
		donor = "an anonymous donor"
	}
	n.logger.Info("Donation received ",
		"recipient ", notice.RecipientUserID,
		" donor ", donor,
		" amount ", notice.Amount,
		" currency ", notice.Currency,
		" target ", notice.TargetLabel,
		" recurring ", notice.Recurring)
}
