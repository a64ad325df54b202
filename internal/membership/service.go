package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/hanifrahman/talenthub-payments/internal"
	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/audit"
	datamodel "github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
	"github.com/hanifrahman/talenthub-payments/internal/gateway"
	"github.com/hanifrahman/talenthub-payments/internal/metrics"
)

// Service runs the payment initiation flow: idempotency lookup, pending row,
// gateway charge, then the processing or failed transition.
type Service struct {
	repo     TransactionRepositoryAPI
	audits   AuditRepositoryAPI
	gateways GatewaySelectorAPI
	currency string
	baseURL  string
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	repo TransactionRepositoryAPI,
	audits AuditRepositoryAPI,
	gateways GatewaySelectorAPI,
	currency string,
	baseURL string,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		audits:   audits,
		gateways: gateways,
		currency: currency,
		baseURL:  baseURL,
		logger:   logger,
		now:      time.Now,
	}
}

// InitiatePayment starts (or replays) a tier upgrade payment. Retries with the
// same idempotency key return the original transaction without touching the
// gateway again; a concurrent duplicate loses the unique-index race and reads
// back the winner's row.
func (s *Service) InitiatePayment(ctx context.Context, callerID string, req *UpgradeRequest) (*UpgradeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if callerID != req.UserID {
		s.logger.Warn("payment subject mismatch",
			"caller_id", callerID,
			"subject_id", req.UserID)
		return nil, apperrors.ErrSubjectMismatch
	}

	track := datamodel.MembershipType(req.MembershipType)

	existing, err := s.repo.GetByIdempotencyKey(track, req.IdempotencyKey)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to check idempotency key", err)
	}
	if existing != nil {
		s.logger.Info("idempotent replay, returning existing transaction",
			"transaction_id", existing.ID,
			"status", existing.Status)
		return s.replayResponse(existing), nil
	}

	gw, err := s.gateways.ForPaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), apperrors.ErrCodeInvalidPaymentMethod)
	}

	now := s.now()
	tx := &datamodel.Transaction{
		ID:             uuid.New().String(),
		MembershipType: track,
		IdempotencyKey: req.IdempotencyKey,
		UserID:         req.UserID,
		PreviousTier:   req.CurrentTier,
		NewTier:        req.TargetTier,
		Amount:         req.Amount,
		Currency:       s.currency,
		BillingCycle:   datamodel.BillingCycle(req.BillingCycle),
		PaymentMethod:  req.PaymentMethod,
		Gateway:        gw.Name(),
		Status:         datamodel.StatusPending,
		PaymentStatus:  datamodel.StatusPending,
		InitiatedAt:    now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(tx); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			// Lost the insert race to a concurrent request with the same key.
			winner, readErr := s.repo.GetByIdempotencyKey(track, req.IdempotencyKey)
			if readErr != nil || winner == nil {
				return nil, apperrors.NewInternalError("failed to read winning transaction after conflict", readErr)
			}
			s.logger.Info("concurrent duplicate initiation, returning winner",
				"transaction_id", winner.ID)
			return s.replayResponse(winner), nil
		}
		return nil, apperrors.NewInternalError("failed to create transaction", err)
	}

	s.appendAudit(tx, audit.ActionInitiate, "payment initiated", datamodel.StatusPending, datamodel.StatusPending)

	charge, err := gw.CreateCharge(ctx, &gateway.ChargeRequest{
		TransactionID:  tx.ID,
		UserID:         tx.UserID,
		MembershipType: string(tx.MembershipType),
		PreviousTier:   tx.PreviousTier,
		NewTier:        tx.NewTier,
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		BillingCycle:   string(tx.BillingCycle),
		Email:          req.Email,
		Phone:          req.Phone,
		RedirectURL:    fmt.Sprintf("%s/api/v1/membership/callback?type=%s", s.baseURL, tx.MembershipType),
	})
	if err != nil {
		s.logger.Error("gateway charge creation failed",
			"transaction_id", tx.ID,
			"gateway", gw.Name(),
			"error", err)
		if _, failErr := s.repo.FailFromPending(tx.ID, err.Error(), string(apperrors.ErrCodeGatewayError)); failErr != nil {
			s.logger.Error("failed to mark transaction failed", "transaction_id", tx.ID, "error", failErr)
		}
		s.appendAudit(tx, audit.ActionFail, "gateway rejected charge creation", datamodel.StatusPending, datamodel.StatusFailed)
		metrics.PaymentsCompleted.WithLabelValues(gw.Name(), string(datamodel.StatusFailed)).Inc()
		return nil, apperrors.NewExternalError(
			fmt.Sprintf("payment initiation failed: %v", err),
			apperrors.ErrCodePaymentInitiation, err)
	}

	if _, err := s.repo.MarkProcessing(tx.ID, charge.ReferenceID); err != nil {
		return nil, apperrors.NewInternalError("failed to mark transaction processing", err)
	}

	metrics.PaymentsInitiated.WithLabelValues(gw.Name(), string(tx.MembershipType)).Inc()
	s.logger.Info("payment initiated",
		"transaction_id", tx.ID,
		"gateway", gw.Name(),
		"reference_id", charge.ReferenceID,
		"membership_type", tx.MembershipType,
		"new_tier", tx.NewTier)

	return &UpgradeResponse{
		Success:       true,
		TransactionID: tx.ID,
		Status:        string(datamodel.StatusProcessing),
		CheckoutURL:   charge.CheckoutURL,
	}, nil
}

// replayResponse rebuilds the initiation response from an already existing
// transaction. Failed originals are surfaced as failures so the client can
// retry with a fresh key.
func (s *Service) replayResponse(tx *datamodel.Transaction) *UpgradeResponse {
	resp := &UpgradeResponse{
		Success:       tx.Status != datamodel.StatusFailed,
		TransactionID: tx.ID,
		Status:        string(tx.Status),
	}
	if tx.Status == datamodel.StatusFailed && tx.ErrorMessage != nil {
		resp.Error = *tx.ErrorMessage
	}
	return resp
}

// GetTransaction returns one transaction. Non-admin callers may only read
// their own rows.
func (s *Service) GetTransaction(ctx context.Context, callerID string, isAdmin bool, transactionID string) (*TransactionView, error) {
	tx, err := s.repo.GetByID(transactionID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to load transaction", err)
	}
	if tx == nil {
		return nil, apperrors.ErrTransactionNotFound
	}
	if !isAdmin && tx.UserID != callerID {
		return nil, apperrors.ErrUnauthorizedAccess
	}
	return toView(tx), nil
}

// ListTransactions returns the newest transactions across both tracks. The
// handler restricts this to administrators.
func (s *Service) ListTransactions(ctx context.Context, limit, offset int) ([]*TransactionView, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	txs, err := s.repo.ListAll(limit, offset)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list transactions", err)
	}
	views := make([]*TransactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, toView(tx))
	}
	return views, nil
}

func (s *Service) appendAudit(tx *datamodel.Transaction, action audit.ActionType, detail string, prev, next datamodel.Status) {
	entry := &audit.LogEntry{
		ID:             uuid.New().String(),
		MembershipType: tx.MembershipType,
		TransactionID:  tx.ID,
		UserID:         tx.UserID,
		Action:         detail,
		ActionType:     action,
		PreviousStatus: prev,
		NewStatus:      next,
		PerformedBy:    "system",
		CreatedAt:      s.now(),
	}
	if err := s.audits.Create(entry); err != nil {
		// Audit is bookkeeping; never fail the payment over it.
		s.logger.Error("failed to append audit log", "transaction_id", tx.ID, "error", err)
	}
}
