package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeTierUpgradeCompleted = "tier.upgrade.completed"
	EventTypeTierUpgradeFailed    = "tier.upgrade.failed"
)

type TierUpgradeCompletedEvent struct {
	BaseEvent
	TransactionID  string  `json:"transaction_id"`
	MembershipType string  `json:"membership_type"`
	UserID         string  `json:"user_id"`
	PreviousTier   string  `json:"previous_tier"`
	NewTier        string  `json:"new_tier"`
	Amount         float64 `json:"amount"`
	Gateway        string  `json:"gateway"`
}

func NewTierUpgradeCompletedEvent(transactionID, membershipType, userID, previousTier, newTier string, amount float64, gateway string) *TierUpgradeCompletedEvent {
	return &TierUpgradeCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeTierUpgradeCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id":  transactionID,
				"membership_type": membershipType,
				"user_id":         userID,
				"previous_tier":   previousTier,
				"new_tier":        newTier,
				"amount":          amount,
				"gateway":         gateway,
			},
		},
		TransactionID:  transactionID,
		MembershipType: membershipType,
		UserID:         userID,
		PreviousTier:   previousTier,
		NewTier:        newTier,
		Amount:         amount,
		Gateway:        gateway,
	}
}

type TierUpgradeFailedEvent struct {
	BaseEvent
	TransactionID  string `json:"transaction_id"`
	MembershipType string `json:"membership_type"`
	UserID         string `json:"user_id"`
	NewTier        string `json:"new_tier"`
	FailureReason  string `json:"failure_reason"`
	Gateway        string `json:"gateway"`
}

func NewTierUpgradeFailedEvent(transactionID, membershipType, userID, newTier, failureReason, gateway string) *TierUpgradeFailedEvent {
	return &TierUpgradeFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeTierUpgradeFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id":  transactionID,
				"membership_type": membershipType,
				"user_id":         userID,
				"new_tier":        newTier,
				"failure_reason":  failureReason,
				"gateway":         gateway,
			},
		},
		TransactionID:  transactionID,
		MembershipType: membershipType,
		UserID:         userID,
		NewTier:        newTier,
		FailureReason:  failureReason,
		Gateway:        gateway,
	}
}
