package postgres

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/profile"
	membershippkg "github.com/hanifrahman/talenthub-payments/internal/membership"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) membershippkg.ProfileRepositoryAPI {
	return &ProfileRepository{
		db: db,
	}
}

// ApplyTier sets the user's tier on one track, creating the profile row on
// first purchase.
func (r *ProfileRepository) ApplyTier(userID string, membershipType membership.MembershipType, tier string) error {
	now := time.Now()

	var existing profile.MemberProfile
	err := r.db.Where("user_id = ? AND membership_type = ?", userID, membershipType).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.db.Create(&profile.MemberProfile{
			ID:             uuid.New().String(),
			UserID:         userID,
			MembershipType: membershipType,
			Tier:           tier,
			CreatedAt:      now,
			UpdatedAt:      now,
		}).Error
	}
	if err != nil {
		return err
	}

	return r.db.Model(&profile.MemberProfile{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"tier":       tier,
			"updated_at": now,
		}).Error
}
