package models

import (
	"time"

	"gorm.io/datatypes"
)

type WebhookEventLogStatus string

const (
	WebhookEventLogStatusReceived     WebhookEventLogStatus = "received"
	WebhookEventLogStatusHandled      WebhookEventLogStatus = "handled"
	WebhookEventLogStatusHandleFailed WebhookEventLogStatus = "handle_failed"
)

// WebhookEventLog records every processor webhook delivery for troubleshooting
// and reconciliation. The raw payload is kept verbatim.
type WebhookEventLog struct {
	ID        string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	EventType string          `gorm:"column:event_type;type:varchar(64);not null" json:"event_type"`
	AccountID *string         `gorm:"column:account_id;type:uuid" json:"account_id"`
	TraceID   string          `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	InvoiceID *string         `gorm:"column:invoice_id;type:uuid" json:"invoice_id"`
	Data      datatypes.JSON  `gorm:"column:data;type:jsonb" json:"data"`
	Result    *datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`

	Status    WebhookEventLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func (WebhookEventLog) TableName() string { return "webhook_event_log" }
