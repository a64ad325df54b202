package webhook

import (
	"encoding/json"
	"time"

	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
)

type EventStatus string

const (
	EventReceived   EventStatus = "received"
	EventProcessing EventStatus = "processing"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
)

// Event is one raw webhook delivery. Rows are append-only; the same gateway
// event delivered twice is detected via the (source, event_id) unique index.
type Event struct {
	ID             string                    `gorm:"primaryKey;column:id"`
	MembershipType membership.MembershipType `gorm:"column:membership_type"`
	TransactionID  *string                   `gorm:"column:transaction_id;index"`

	EventID   string `gorm:"column:event_id;not null;uniqueIndex:idx_source_event,priority:2"`
	EventType string `gorm:"column:event_type"`
	Source    string `gorm:"column:source;not null;uniqueIndex:idx_source_event,priority:1"`

	Payload           json.RawMessage `gorm:"column:payload;type:jsonb"`
	Signature         string          `gorm:"column:signature"`
	SignatureVerified bool            `gorm:"column:signature_verified;default:false"`

	Status     EventStatus `gorm:"column:status;default:received"`
	ReceivedAt time.Time   `gorm:"column:received_at"`
	UpdatedAt  time.Time   `gorm:"column:updated_at"`
}

func (Event) TableName() string {
	return "webhook_events"
}
