package webhook_log

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fernlabs/tally/internal/models"
	"github.com/fernlabs/tally/pkg/logctx"
	"github.com/fernlabs/tally/pkg/tool"
)

// Service persists processor webhook deliveries so failed handlings can be
// replayed and disputes reconciled against the raw payload.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Record stores the delivery before it is handled and returns the entry so the
// caller can mark the outcome.
func (s *Service) Record(ctx context.Context, eventType, traceID string, payload []byte) (*models.WebhookEventLog, error) {
	entry := &models.WebhookEventLog{
		ID:        tool.GenerateUUIDV7(),
		EventType: eventType,
		TraceID:   traceID,
		Data:      datatypes.JSON(payload),
		Status:    models.WebhookEventLogStatusReceived,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to record webhook event: %w", err)
	}
	return entry, nil
}

// MarkOutcome finishes the entry asynchronously. A failed log write never
// fails the webhook response; the processor would retry an already-applied
// event.
func (s *Service) MarkOutcome(ctx context.Context, entry *models.WebhookEventLog, accountID, invoiceID *string, handleErr error) {
	go func() {
		if entry == nil {
			return
		}
		entry.AccountID = accountID
		entry.InvoiceID = invoiceID
		if handleErr != nil {
			entry.Status = models.WebhookEventLogStatusHandleFailed
			result, _ := json.Marshal(map[string]string{"error": handleErr.Error()})
			raw := datatypes.JSON(result)
			entry.Result = &raw
		} else {
			entry.Status = models.WebhookEventLogStatusHandled
		}
		if err := s.db.Save(entry).Error; err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook event log: %v", err)
		}
	}()
}
