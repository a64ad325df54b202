package postgres

import (
	"gorm.io/gorm"

	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/audit"
	membershippkg "github.com/hanifrahman/talenthub-payments/internal/membership"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) membershippkg.AuditRepositoryAPI {
	return &AuditRepository{
		db: db,
	}
}

func (r *AuditRepository) Create(entry *audit.LogEntry) error {
	return r.db.Create(entry).Error
}
