package membership

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hanifrahman/talenthub-payments/internal/core/events"
)

// EventHandler reacts to finished upgrades. This is where the surrounding
// platform hooks in notifications; here it narrates outcomes to the log.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandleTierUpgradeCompleted(ctx context.Context, event events.Event) error {
	upgradeEvent, ok := event.(*events.TierUpgradeCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for upgrade completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected TierUpgradeCompletedEvent, got %T", event)
	}

	h.logger.Info("tier upgrade confirmed, notifying user",
		"transaction_id", upgradeEvent.TransactionID,
		"user_id", upgradeEvent.UserID,
		"membership_type", upgradeEvent.MembershipType,
		"previous_tier", upgradeEvent.PreviousTier,
		"new_tier", upgradeEvent.NewTier,
		"event_id", upgradeEvent.EventID())

	return nil
}

func (h *EventHandler) HandleTierUpgradeFailed(ctx context.Context, event events.Event) error {
	failedEvent, ok := event.(*events.TierUpgradeFailedEvent)
	if !ok {
		h.logger.Error("invalid event type for upgrade failed handler", "event_type", event.EventType())
		return fmt.Errorf("expected TierUpgradeFailedEvent, got %T", event)
	}

	h.logger.Info("tier upgrade failed, notifying user",
		"transaction_id", failedEvent.TransactionID,
		"user_id", failedEvent.UserID,
		"reason", failedEvent.FailureReason,
		"event_id", failedEvent.EventID())

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypeTierUpgradeCompleted, h.HandleTierUpgradeCompleted)
	eventBus.Subscribe(events.EventTypeTierUpgradeFailed, h.HandleTierUpgradeFailed)

	h.logger.Info("membership event handlers registered",
		"handlers", []string{events.EventTypeTierUpgradeCompleted, events.EventTypeTierUpgradeFailed})
}
