package audit

import (
	"time"

	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
)

type ActionType string

const (
	ActionComplete ActionType = "complete"
	ActionFail     ActionType = "fail"
	ActionInitiate ActionType = "initiate"
)

// LogEntry narrates one state transition. Append-only.
type LogEntry struct {
	ID             string                    `gorm:"primaryKey;column:id"`
	MembershipType membership.MembershipType `gorm:"column:membership_type;not null"`
	TransactionID  string                    `gorm:"column:transaction_id;not null;index"`
	UserID         string                    `gorm:"column:user_id;not null"`

	Action     string     `gorm:"column:action;not null"`
	ActionType ActionType `gorm:"column:action_type;not null"`

	PreviousStatus membership.Status `gorm:"column:previous_status"`
	NewStatus      membership.Status `gorm:"column:new_status"`
	Details        *string           `gorm:"column:details"`

	PerformedBy string    `gorm:"column:performed_by;default:system"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (LogEntry) TableName() string {
	return "audit_logs"
}
