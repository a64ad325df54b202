package postgres

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
	membershippkg "github.com/hanifrahman/talenthub-payments/internal/membership"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) membershippkg.TransactionRepositoryAPI {
	return &TransactionRepository{
		db: db,
	}
}

func (r *TransactionRepository) Create(tx *membership.Transaction) error {
	if err := r.db.Create(tx).Error; err != nil {
		if isUniqueViolation(err) {
			return membershippkg.ErrDuplicateIdempotencyKey
		}
		return err
	}
	return nil
}

func (r *TransactionRepository) GetByID(id string) (*membership.Transaction, error) {
	var tx membership.Transaction
	err := r.db.Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) GetByIdempotencyKey(membershipType membership.MembershipType, key string) (*membership.Transaction, error) {
	var tx membership.Transaction
	err := r.db.Where("membership_type = ? AND idempotency_key = ?", membershipType, key).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) GetByGatewayReference(reference string) (*membership.Transaction, error) {
	var tx membership.Transaction
	err := r.db.Where("gateway_reference_id = ?", reference).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *TransactionRepository) ListAll(limit, offset int) ([]*membership.Transaction, error) {
	var txs []*membership.Transaction
	err := r.db.Order("initiated_at DESC").Limit(limit).Offset(offset).Find(&txs).Error
	return txs, err
}

func (r *TransactionRepository) MarkProcessing(id, referenceID string) (bool, error) {
	now := time.Now()
	res := r.db.Model(&membership.Transaction{}).
		Where("id = ? AND status = ?", id, membership.StatusPending).
		Updates(map[string]interface{}{
			"status":                membership.StatusProcessing,
			"payment_status":        membership.StatusProcessing,
			"gateway_reference_id":  referenceID,
			"processing_started_at": now,
			"updated_at":            now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *TransactionRepository) FailFromPending(id, errorMessage, errorCode string) (bool, error) {
	now := time.Now()
	res := r.db.Model(&membership.Transaction{}).
		Where("id = ? AND status = ?", id, membership.StatusPending).
		Updates(map[string]interface{}{
			"status":         membership.StatusFailed,
			"payment_status": membership.StatusFailed,
			"error_message":  errorMessage,
			"error_code":     errorCode,
			"failed_at":      now,
			"updated_at":     now,
		})
	return res.RowsAffected > 0, res.Error
}

// CompleteFromProcessing is a conditional update: zero rows affected means the
// transaction was not in processing, so the caller treats the delivery as a
// safe duplicate and must not re-apply side effects.
func (r *TransactionRepository) CompleteFromProcessing(id string, receivedAt time.Time, signature string) (bool, error) {
	now := time.Now()
	res := r.db.Model(&membership.Transaction{}).
		Where("id = ? AND status = ?", id, membership.StatusProcessing).
		Updates(map[string]interface{}{
			"status":              membership.StatusCompleted,
			"payment_status":      membership.StatusCompleted,
			"webhook_received_at": receivedAt,
			"webhook_verified":    true,
			"webhook_signature":   signature,
			"completed_at":        now,
			"updated_at":          now,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *TransactionRepository) FailFromProcessing(id, errorMessage string, receivedAt time.Time, signature string) (bool, error) {
	now := time.Now()
	res := r.db.Model(&membership.Transaction{}).
		Where("id = ? AND status = ?", id, membership.StatusProcessing).
		Updates(map[string]interface{}{
			"status":              membership.StatusFailed,
			"payment_status":      membership.StatusFailed,
			"error_message":       errorMessage,
			"webhook_received_at": receivedAt,
			"webhook_verified":    true,
			"webhook_signature":   signature,
			"failed_at":           now,
			"updated_at":          now,
		})
	return res.RowsAffected > 0, res.Error
}

// isUniqueViolation covers the postgres and sqlite drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
