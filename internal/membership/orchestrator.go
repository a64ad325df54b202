package membership

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/hanifrahman/talenthub-payments/internal"
	datamodel "github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
)

// Step is where the upgrade flow currently stands on the client side.
type Step string

const (
	StepBillingCycle  Step = "billing_cycle"
	StepPaymentMethod Step = "payment_method"
	StepReview        Step = "review"
	StepProcessing    Step = "processing"
	StepPendingStatus Step = "pending_status"
	StepSuccess       Step = "success"
	StepError         Step = "error"
)

// StatusClient is the server surface the orchestrator drives. In production it
// wraps HTTP calls; tests plug in the service directly.
type StatusClient interface {
	InitiatePayment(ctx context.Context, req *UpgradeRequest) (*UpgradeResponse, error)
	GetTransactionStatus(ctx context.Context, transactionID string) (*TransactionView, error)
}

// Callbacks receive flow notifications. Nil callbacks are skipped.
type Callbacks struct {
	OnRedirect func(checkoutURL string)
	OnSuccess  func(transactionID string)
	OnError    func(message string)
}

// Orchestrator coordinates one upgrade attempt end to end: initiation, the
// delayed redirect to checkout, and status polling until a terminal state or
// the client-side timeout. The timeout abandons polling only; the transaction
// on the server keeps whatever state the webhook gives it.
type Orchestrator struct {
	client        StatusClient
	callbacks     Callbacks
	pollInterval  time.Duration
	pollTimeout   time.Duration
	redirectDelay time.Duration
	logger        *slog.Logger

	mu            sync.Mutex
	step          Step
	initiating    bool
	transactionID string
}

func NewOrchestrator(client StatusClient, callbacks Callbacks, pollInterval, pollTimeout, redirectDelay time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		client:        client,
		callbacks:     callbacks,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		redirectDelay: redirectDelay,
		logger:        logger,
		step:          StepBillingCycle,
	}
}

func (o *Orchestrator) Step() Step {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.step
}

func (o *Orchestrator) setStep(s Step) {
	o.mu.Lock()
	o.step = s
	o.mu.Unlock()
}

// Advance moves through the pre-payment steps in order.
func (o *Orchestrator) Advance() {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.step {
	case StepBillingCycle:
		o.step = StepPaymentMethod
	case StepPaymentMethod:
		o.step = StepReview
	}
}

// Dismiss abandons the flow. It is refused while a payment is in flight so an
// accidental close cannot orphan an initiated transaction.
func (o *Orchestrator) Dismiss() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initiating || o.step == StepProcessing || o.step == StepPendingStatus {
		return errors.New("cannot dismiss while a payment is in progress")
	}
	o.step = StepBillingCycle
	o.transactionID = ""
	return nil
}

// Run executes initiation, redirect, and polling. Double submission is
// refused while a previous run is still initiating.
func (o *Orchestrator) Run(ctx context.Context, req *UpgradeRequest) error {
	o.mu.Lock()
	if o.initiating {
		o.mu.Unlock()
		return errors.New("payment already in progress")
	}
	o.initiating = true
	o.step = StepProcessing
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.initiating = false
		o.mu.Unlock()
	}()

	resp, err := o.client.InitiatePayment(ctx, req)
	if err != nil {
		o.fail(messageFor(err))
		return err
	}
	if !resp.Success {
		o.fail(resp.Error)
		return errors.New(resp.Error)
	}

	o.mu.Lock()
	o.transactionID = resp.TransactionID
	o.mu.Unlock()

	if resp.CheckoutURL != "" {
		// Give the processing screen a beat before sending the user away.
		select {
		case <-time.After(o.redirectDelay):
		case <-ctx.Done():
			// Leave the flow dismissible after cancellation.
			o.setStep(StepError)
			return ctx.Err()
		}
		if o.callbacks.OnRedirect != nil {
			o.callbacks.OnRedirect(resp.CheckoutURL)
		}
	}

	o.setStep(StepPendingStatus)
	return o.poll(ctx, resp.TransactionID)
}

func (o *Orchestrator) poll(ctx context.Context, transactionID string) error {
	deadline := time.NewTimer(o.pollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Leave the flow dismissible after cancellation.
			o.setStep(StepError)
			return ctx.Err()
		case <-deadline.C:
			// Client-side give-up. The server transaction is untouched and a
			// late webhook can still complete it.
			o.logger.Warn("status polling timed out", "transaction_id", transactionID)
			o.fail("payment status check timed out; check your transaction history")
			return apperrors.NewInternalError("status polling timed out", nil).
				WithDetails(map[string]string{"code": string(apperrors.ErrCodePollTimeout)})
		case <-ticker.C:
			view, err := o.client.GetTransactionStatus(ctx, transactionID)
			if err != nil {
				// Transient; keep polling until the deadline.
				o.logger.Debug("status poll failed", "transaction_id", transactionID, "error", err)
				continue
			}
			switch datamodel.Status(view.Status) {
			case datamodel.StatusCompleted:
				o.setStep(StepSuccess)
				if o.callbacks.OnSuccess != nil {
					o.callbacks.OnSuccess(transactionID)
				}
				return nil
			case datamodel.StatusFailed:
				msg := view.ErrorMessage
				if msg == "" {
					msg = defaultFailureReason
				}
				o.fail(msg)
				return errors.New(msg)
			}
		}
	}
}

func (o *Orchestrator) fail(message string) {
	o.setStep(StepError)
	if o.callbacks.OnError != nil {
		o.callbacks.OnError(message)
	}
}

func messageFor(err error) string {
	if appErr, ok := apperrors.IsAppError(err); ok {
		return appErr.GetDetailedMessage()
	}
	return err.Error()
}
