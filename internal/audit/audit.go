package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/givehub/payments/internal/models"
	"github.com/givehub/payments/pkg/logger"
)

// Recorder appends payment audit entries. A failed write is logged and
// swallowed: the audit trail must never fail the payment operation it
// describes.
type Recorder struct {
	logger *logger.Logger

	repo models.Repository
}

func NewRecorder(repo models.Repository, logger *logger.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record appends one entry, filling in id and timestamp.
func (r *Recorder) Record(entry *models.PaymentAuditLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().Unix()
	}

	if err := r.repo.AddAuditEntry(entry); err != nil {
		r.logger.Error("Failed to write audit entry ", "action ", entry.Action, " error ", err)
	}
}

// Metadata JSON-encodes free-form context for an entry. Encoding failures
// degrade to an empty string rather than dropping the entry.
func Metadata(v map[string]interface{}) string {
	if len(v) == 0 {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
