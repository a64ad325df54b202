package membership

import (
	"time"

	apperrors "github.com/hanifrahman/talenthub-payments/internal"
	"github.com/hanifrahman/talenthub-payments/internal/core/common/validation"
	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
	"github.com/hanifrahman/talenthub-payments/internal/gateway"
)

const minIdempotencyKeyLength = 16

// UpgradeRequest is the payload for starting a tier upgrade payment.
type UpgradeRequest struct {
	UserID         string  `json:"user_id"`
	MembershipType string  `json:"membership_type"`
	CurrentTier    string  `json:"current_tier"`
	TargetTier     string  `json:"target_tier"`
	Amount         float64 `json:"amount"`
	BillingCycle   string  `json:"billing_cycle"`
	PaymentMethod  string  `json:"payment_method"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone,omitempty"`
	IdempotencyKey string  `json:"idempotency_key"`
}

func (r *UpgradeRequest) Validate() error {
	membershipTypes := []string{
		string(membership.TypeMember),
		string(membership.TypeCreator),
	}
	billingCycles := []string{
		string(membership.BillingMonthly),
		string(membership.BillingAnnual),
	}

	v := validation.NewValidator()
	v.Field("user_id", r.UserID).Required()
	v.Field("membership_type", r.MembershipType).
		Required().
		OneOf(membershipTypes, apperrors.ErrCodeInvalidMembershipType)
	v.Field("target_tier", r.TargetTier).Required().
		Custom(func(interface{}) *apperrors.AppError {
			return validateTierLadder(r.MembershipType, r.CurrentTier, r.TargetTier)
		})
	v.Field("amount", r.Amount).Required().MinFloat(0.01, apperrors.ErrCodeInvalidAmount)
	v.Field("billing_cycle", r.BillingCycle).
		Required().
		OneOf(billingCycles, apperrors.ErrCodeInvalidBillingCycle)
	v.Field("payment_method", r.PaymentMethod).
		Required().
		OneOf(gateway.KnownMethods(), apperrors.ErrCodeInvalidPaymentMethod)
	v.Field("email", r.Email).Required().MaxLength(255)
	v.Field("idempotency_key", r.IdempotencyKey).Required().MinLength(minIdempotencyKeyLength)

	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// validateTierLadder checks the target tier exists on the track's ladder and
// sits strictly above the current tier.
func validateTierLadder(membershipType, currentTier, targetTier string) *apperrors.AppError {
	track := membership.MembershipType(membershipType)
	if !track.Valid() || targetTier == "" {
		return nil
	}

	targetRank := membership.TierRank(track, targetTier)
	if targetRank < 0 {
		return apperrors.NewValidationFieldError("target_tier",
			"target_tier is not a valid tier for this membership type",
			apperrors.ErrCodeInvalidTier)
	}

	if currentTier != "" {
		currentRank := membership.TierRank(track, currentTier)
		if currentRank < 0 {
			return apperrors.NewValidationFieldError("current_tier",
				"current_tier is not a valid tier for this membership type",
				apperrors.ErrCodeInvalidTier)
		}
		if targetRank <= currentRank {
			return apperrors.NewValidationFieldError("target_tier",
				"target_tier must be above the current tier",
				apperrors.ErrCodeInvalidTier)
		}
	}
	return nil
}

// UpgradeResponse carries the initiation outcome back to the client.
type UpgradeResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Status        string `json:"status,omitempty"`
	CheckoutURL   string `json:"checkout_url,omitempty"`
	Error         string `json:"error,omitempty"`
}

// TransactionView is the read model returned by the status endpoints.
type TransactionView struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	MembershipType string     `json:"membership_type"`
	PreviousTier   string     `json:"previous_tier"`
	NewTier        string     `json:"new_tier"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	BillingCycle   string     `json:"billing_cycle"`
	PaymentMethod  string     `json:"payment_method"`
	Gateway        string     `json:"gateway"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	InitiatedAt    time.Time  `json:"initiated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
}

func toView(tx *membership.Transaction) *TransactionView {
	view := &TransactionView{
		ID:             tx.ID,
		UserID:         tx.UserID,
		MembershipType: string(tx.MembershipType),
		PreviousTier:   tx.PreviousTier,
		NewTier:        tx.NewTier,
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		BillingCycle:   string(tx.BillingCycle),
		PaymentMethod:  tx.PaymentMethod,
		Gateway:        tx.Gateway,
		Status:         string(tx.Status),
		InitiatedAt:    tx.InitiatedAt,
		CompletedAt:    tx.CompletedAt,
		FailedAt:       tx.FailedAt,
	}
	if tx.ErrorMessage != nil {
		view.ErrorMessage = *tx.ErrorMessage
	}
	return view
}
