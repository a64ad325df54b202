package profile

import (
	"time"

	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
)

// MemberProfile holds the tier a user currently has on one track. The webhook
// receiver is the only writer of Tier in this subsystem.
type MemberProfile struct {
	ID             string                    `gorm:"primaryKey;column:id"`
	UserID         string                    `gorm:"column:user_id;not null;uniqueIndex:idx_user_track,priority:1"`
	MembershipType membership.MembershipType `gorm:"column:membership_type;not null;uniqueIndex:idx_user_track,priority:2"`
	Tier           string                    `gorm:"column:tier;not null"`
	CreatedAt      time.Time                 `gorm:"column:created_at"`
	UpdatedAt      time.Time                 `gorm:"column:updated_at"`
}

func (MemberProfile) TableName() string {
	return "member_profiles"
}
