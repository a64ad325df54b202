package membership

import (
	"time"
)

// MembershipType discriminates the two upgrade tracks. Both tracks share one
// transactions table; the discriminator plus the idempotency key form the
// uniqueness boundary.
type MembershipType string

const (
	TypeCreator MembershipType = "creator"
	TypeMember  MembershipType = "member"
)

func (t MembershipType) Valid() bool {
	return t == TypeCreator || t == TypeMember
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type BillingCycle string

const (
	BillingMonthly BillingCycle = "monthly"
	BillingAnnual  BillingCycle = "annual"
)

func (b BillingCycle) Valid() bool {
	return b == BillingMonthly || b == BillingAnnual
}

// Tier ladders, ordered lowest to highest. An upgrade must move strictly up
// its track's ladder.
var (
	MemberTiers  = []string{"welcome", "premium", "vip"}
	CreatorTiers = []string{"starter", "pro", "elite"}
)

func TiersFor(t MembershipType) []string {
	if t == TypeCreator {
		return CreatorTiers
	}
	return MemberTiers
}

// TierRank returns the position of tier within the track's ladder, or -1.
func TierRank(t MembershipType, tier string) int {
	for i, name := range TiersFor(t) {
		if name == tier {
			return i
		}
	}
	return -1
}

// Transaction is one payment attempt for a tier upgrade. Rows are created in
// pending state and only ever move forward; webhook bookkeeping fields are
// stamped by the webhook receiver.
type Transaction struct {
	ID             string         `gorm:"primaryKey;column:id"`
	MembershipType MembershipType `gorm:"column:membership_type;not null;uniqueIndex:idx_track_idem_key,priority:1"`
	IdempotencyKey string         `gorm:"column:idempotency_key;not null;uniqueIndex:idx_track_idem_key,priority:2"`

	UserID       string `gorm:"column:user_id;not null;index"`
	PreviousTier string `gorm:"column:previous_tier;not null"`
	NewTier      string `gorm:"column:new_tier;not null"`

	Amount       float64      `gorm:"column:amount;not null"`
	Currency     string       `gorm:"column:currency;not null"`
	BillingCycle BillingCycle `gorm:"column:billing_cycle;not null"`

	PaymentMethod string `gorm:"column:payment_method;not null"`
	Gateway       string `gorm:"column:gateway;not null"`

	Status Status `gorm:"column:status;default:pending"`
	// PaymentStatus mirrors Status for display surfaces.
	PaymentStatus Status `gorm:"column:payment_status;default:pending"`

	GatewayTransactionID *string `gorm:"column:gateway_transaction_id"`
	GatewayReferenceID   *string `gorm:"column:gateway_reference_id;index"`

	ErrorMessage *string `gorm:"column:error_message"`
	ErrorCode    *string `gorm:"column:error_code"`
	ErrorDetails *string `gorm:"column:error_details"`

	WebhookReceivedAt *time.Time `gorm:"column:webhook_received_at"`
	WebhookVerified   bool       `gorm:"column:webhook_verified;default:false"`
	WebhookSignature  *string    `gorm:"column:webhook_signature"`

	InitiatedAt         time.Time  `gorm:"column:initiated_at"`
	ProcessingStartedAt *time.Time `gorm:"column:processing_started_at"`
	CompletedAt         *time.Time `gorm:"column:completed_at"`
	FailedAt            *time.Time `gorm:"column:failed_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (Transaction) TableName() string {
	return "membership_transactions"
}
