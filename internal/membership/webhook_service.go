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
	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/webhook"
	"github.com/hanifrahman/talenthub-payments/internal/core/events"
	"github.com/hanifrahman/talenthub-payments/internal/metrics"
	"github.com/hanifrahman/talenthub-payments/internal/signature"
)

const defaultFailureReason = "payment failed at gateway"

// WebhookService reconciles gateway deliveries against transactions. State is
// driven solely by verified webhooks; no HTTP response from the gateway ever
// moves a transaction to a terminal status.
type WebhookService struct {
	repo      TransactionRepositoryAPI
	webhooks  WebhookEventRepositoryAPI
	audits    AuditRepositoryAPI
	profiles  ProfileRepositoryAPI
	verifiers map[string]signature.Verifier
	eventBus  *events.EventBus
	logger    *slog.Logger
	now       func() time.Time
}

func NewWebhookService(
	repo TransactionRepositoryAPI,
	webhooks WebhookEventRepositoryAPI,
	audits AuditRepositoryAPI,
	profiles ProfileRepositoryAPI,
	verifiers []signature.Verifier,
	eventBus *events.EventBus,
	logger *slog.Logger,
) *WebhookService {
	bySource := make(map[string]signature.Verifier, len(verifiers))
	for _, v := range verifiers {
		bySource[v.Source()] = v
	}
	return &WebhookService{
		repo:      repo,
		webhooks:  webhooks,
		audits:    audits,
		profiles:  profiles,
		verifiers: bySource,
		eventBus:  eventBus,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessDelivery verifies, deduplicates, and applies one webhook delivery.
// Order matters: verification happens before any read or write, the event row
// is appended before the business effect, and the status transition is a
// conditional update so replays and out-of-order deliveries cannot double-apply
// the tier change.
func (s *WebhookService) ProcessDelivery(ctx context.Context, source string, d signature.Delivery) error {
	verifier, ok := s.verifiers[source]
	if !ok {
		// The source label must stay bounded; never feed the raw query
		// parameter into it.
		metrics.WebhooksReceived.WithLabelValues("unknown", "rejected").Inc()
		return apperrors.NewUnauthorizedError(
			fmt.Sprintf("unknown webhook source %q", source),
			apperrors.ErrCodeSignatureInvalid)
	}

	now := s.now()
	result, err := verifier.Verify(d, now)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(source, "rejected").Inc()
		s.logger.Warn("webhook verification failed", "source", source, "error", err)
		return err
	}

	// Redelivery of a fully handled event is acknowledged without effect. A
	// prior row that never reached completed means an earlier attempt died
	// after recording the event, so the retry runs the side effects again
	// off that row instead of dropping them.
	prior, err := s.webhooks.GetBySourceEventID(source, result.EventID)
	if err != nil {
		return apperrors.NewInternalError("failed to check webhook event log", err)
	}
	if prior != nil {
		if prior.Status == webhook.EventCompleted {
			metrics.WebhooksReceived.WithLabelValues(source, "duplicate").Inc()
			s.logger.Info("duplicate webhook delivery ignored",
				"source", source, "event_id", result.EventID)
			return nil
		}
		metrics.WebhooksReceived.WithLabelValues(source, "retried").Inc()
		s.logger.Info("reprocessing partially handled webhook delivery",
			"source", source, "event_id", result.EventID, "prior_status", prior.Status)
		tx, err := s.resolveTransaction(result)
		if err != nil {
			return err
		}
		return s.apply(ctx, prior, tx, result, d.Signature, now, true)
	}

	tx, err := s.resolveTransaction(result)
	if err != nil {
		return err
	}

	ev := &webhook.Event{
		ID:                uuid.New().String(),
		MembershipType:    tx.MembershipType,
		TransactionID:     &tx.ID,
		EventID:           result.EventID,
		EventType:         result.EventType,
		Source:            source,
		Payload:           d.Payload,
		Signature:         d.Signature,
		SignatureVerified: true,
		Status:            webhook.EventReceived,
		ReceivedAt:        now,
	}
	if err := s.webhooks.Create(ev); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			// Concurrent redelivery of the same event.
			metrics.WebhooksReceived.WithLabelValues(source, "duplicate").Inc()
			return nil
		}
		return apperrors.NewInternalError("failed to record webhook event", err)
	}
	metrics.WebhooksReceived.WithLabelValues(source, "verified").Inc()

	return s.apply(ctx, ev, tx, result, d.Signature, now, false)
}

// apply runs the business effect of a recorded event and marks the event row
// with the outcome. With rerun set, a terminal transaction is treated as this
// event's own earlier transition and the remaining side effects are finished.
func (s *WebhookService) apply(ctx context.Context, ev *webhook.Event, tx *datamodel.Transaction, result *signature.Result, sig string, now time.Time, rerun bool) error {
	var err error
	switch result.Status {
	case signature.StatusCompleted:
		err = s.applyCompletion(ctx, tx, sig, now, rerun)
	case signature.StatusFailed:
		err = s.applyFailure(ctx, tx, result.FailureReason, sig, now, rerun)
	case signature.StatusPending:
		// Recorded but not actionable; the gateway will deliver a terminal
		// status later.
		s.logger.Info("webhook reported pending, no transition",
			"transaction_id", tx.ID, "event_id", result.EventID)
	}

	eventStatus := webhook.EventCompleted
	if err != nil {
		eventStatus = webhook.EventFailed
	}
	if updErr := s.webhooks.UpdateStatus(ev.ID, eventStatus); updErr != nil {
		s.logger.Error("failed to update webhook event status", "event_id", ev.ID, "error", updErr)
	}
	return err
}

// resolveTransaction finds the transaction a delivery refers to, preferring
// the metadata we planted at charge creation over the gateway reference.
func (s *WebhookService) resolveTransaction(result *signature.Result) (*datamodel.Transaction, error) {
	if id := result.Metadata["transaction_id"]; id != "" {
		tx, err := s.repo.GetByID(id)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to load transaction", err)
		}
		if tx != nil {
			return tx, nil
		}
	}

	if result.Reference != "" {
		tx, err := s.repo.GetByGatewayReference(result.Reference)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to load transaction by reference", err)
		}
		if tx != nil {
			return tx, nil
		}
	}

	s.logger.Warn("webhook references unknown transaction",
		"event_id", result.EventID, "reference", result.Reference)
	return nil, apperrors.ErrTransactionNotFound
}

func (s *WebhookService) applyCompletion(ctx context.Context, tx *datamodel.Transaction, sig string, now time.Time, rerun bool) error {
	applied, err := s.repo.CompleteFromProcessing(tx.ID, now, sig)
	if err != nil {
		return apperrors.NewInternalError("failed to complete transaction", err)
	}
	if !applied {
		if !rerun || tx.Status != datamodel.StatusCompleted {
			// Already terminal or never reached processing. The delivery is
			// acknowledged, the tier effect is not re-applied.
			s.logger.Info("completion skipped, transaction not in processing",
				"transaction_id", tx.ID, "status", tx.Status)
			return nil
		}
		// This event completed the transaction earlier but died before the
		// tier landed. Finish the upgrade; ApplyTier is an upsert.
	}

	if err := s.profiles.ApplyTier(tx.UserID, tx.MembershipType, tx.NewTier); err != nil {
		s.logger.Error("failed to apply tier to profile",
			"transaction_id", tx.ID, "user_id", tx.UserID, "tier", tx.NewTier, "error", err)
		return apperrors.NewInternalError("failed to apply tier upgrade", err)
	}

	s.appendAudit(tx, audit.ActionComplete, "payment completed via webhook",
		datamodel.StatusProcessing, datamodel.StatusCompleted, now)
	metrics.PaymentsCompleted.WithLabelValues(tx.Gateway, string(datamodel.StatusCompleted)).Inc()

	if err := s.eventBus.PublishSync(ctx, events.NewTierUpgradeCompletedEvent(
		tx.ID, string(tx.MembershipType), tx.UserID,
		tx.PreviousTier, tx.NewTier, tx.Amount, tx.Gateway)); err != nil {
		s.logger.Error("failed to publish upgrade completed event", "transaction_id", tx.ID, "error", err)
	}

	s.logger.Info("tier upgrade completed",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"membership_type", tx.MembershipType,
		"new_tier", tx.NewTier)
	return nil
}

func (s *WebhookService) applyFailure(ctx context.Context, tx *datamodel.Transaction, reason, sig string, now time.Time, rerun bool) error {
	if reason == "" {
		reason = defaultFailureReason
	}

	applied, err := s.repo.FailFromProcessing(tx.ID, reason, now, sig)
	if err != nil {
		return apperrors.NewInternalError("failed to mark transaction failed", err)
	}
	if !applied {
		if !rerun || tx.Status != datamodel.StatusFailed {
			s.logger.Info("failure skipped, transaction not in processing",
				"transaction_id", tx.ID, "status", tx.Status)
			return nil
		}
	}

	s.appendAudit(tx, audit.ActionFail, reason,
		datamodel.StatusProcessing, datamodel.StatusFailed, now)
	metrics.PaymentsCompleted.WithLabelValues(tx.Gateway, string(datamodel.StatusFailed)).Inc()

	if err := s.eventBus.PublishSync(ctx, events.NewTierUpgradeFailedEvent(
		tx.ID, string(tx.MembershipType), tx.UserID, tx.NewTier, reason, tx.Gateway)); err != nil {
		s.logger.Error("failed to publish upgrade failed event", "transaction_id", tx.ID, "error", err)
	}

	s.logger.Info("tier upgrade failed",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"reason", reason)
	return nil
}

func (s *WebhookService) appendAudit(tx *datamodel.Transaction, action audit.ActionType, detail string, prev, next datamodel.Status, now time.Time) {
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
		CreatedAt:      now,
	}
	if err := s.audits.Create(entry); err != nil {
		s.logger.Error("failed to append audit log", "transaction_id", tx.ID, "error", err)
	}
}
