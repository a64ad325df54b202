package membership

import (
	"context"
	"errors"
	"time"

	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/audit"
	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/webhook"
	"github.com/hanifrahman/talenthub-payments/internal/gateway"
)

// ErrDuplicateIdempotencyKey is returned by the transaction repository when
// an insert loses the race on the (membership_type, idempotency_key) unique
// index. The caller falls back to reading the winning row.
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

// ErrDuplicateEvent is returned when a webhook event insert hits the
// (source, event_id) unique index, i.e. the gateway redelivered.
var ErrDuplicateEvent = errors.New("duplicate webhook event")

// TransactionRepositoryAPI persists payment attempts. All transitions are
// conditional on the current status so writes can never move a transaction
// backward.
type TransactionRepositoryAPI interface {
	Create(tx *membership.Transaction) error
	GetByID(id string) (*membership.Transaction, error)
	GetByIdempotencyKey(membershipType membership.MembershipType, key string) (*membership.Transaction, error)
	GetByGatewayReference(reference string) (*membership.Transaction, error)
	ListAll(limit, offset int) ([]*membership.Transaction, error)

	// MarkProcessing transitions pending -> processing, storing the gateway
	// reference. Returns false when the row was not in pending.
	MarkProcessing(id, referenceID string) (bool, error)
	// FailFromPending records a gateway rejection during initiation.
	FailFromPending(id, errorMessage, errorCode string) (bool, error)
	// CompleteFromProcessing transitions processing -> completed, stamping the
	// webhook bookkeeping fields. Returns false when zero rows matched, which
	// marks a duplicate or out-of-order delivery.
	CompleteFromProcessing(id string, receivedAt time.Time, signature string) (bool, error)
	// FailFromProcessing transitions processing -> failed with the synthesized
	// error message.
	FailFromProcessing(id, errorMessage string, receivedAt time.Time, signature string) (bool, error)
}

// WebhookEventRepositoryAPI records raw deliveries, append-only.
type WebhookEventRepositoryAPI interface {
	Create(ev *webhook.Event) error
	GetBySourceEventID(source, eventID string) (*webhook.Event, error)
	UpdateStatus(id string, status webhook.EventStatus) error
}

// AuditRepositoryAPI appends state-transition narrations.
type AuditRepositoryAPI interface {
	Create(entry *audit.LogEntry) error
}

// ProfileRepositoryAPI applies the purchased tier to the member profile.
type ProfileRepositoryAPI interface {
	ApplyTier(userID string, membershipType membership.MembershipType, tier string) error
}

// GatewaySelectorAPI routes a payment method to its gateway.
type GatewaySelectorAPI interface {
	ForPaymentMethod(method string) (gateway.Gateway, error)
}

// ServiceAPI is the initiation-and-status surface the handlers consume.
type ServiceAPI interface {
	InitiatePayment(ctx context.Context, callerID string, req *UpgradeRequest) (*UpgradeResponse, error)
	GetTransaction(ctx context.Context, callerID string, isAdmin bool, transactionID string) (*TransactionView, error)
	ListTransactions(ctx context.Context, limit, offset int) ([]*TransactionView, error)
}
