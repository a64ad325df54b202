package postgres

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/webhook"
	membershippkg "github.com/hanifrahman/talenthub-payments/internal/membership"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) membershippkg.WebhookEventRepositoryAPI {
	return &WebhookEventRepository{
		db: db,
	}
}

func (r *WebhookEventRepository) Create(ev *webhook.Event) error {
	if err := r.db.Create(ev).Error; err != nil {
		if isUniqueViolation(err) {
			return membershippkg.ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (r *WebhookEventRepository) GetBySourceEventID(source, eventID string) (*webhook.Event, error) {
	var ev webhook.Event
	err := r.db.Where("source = ? AND event_id = ?", source, eventID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *WebhookEventRepository) UpdateStatus(id string, status webhook.EventStatus) error {
	return r.db.Model(&webhook.Event{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}
