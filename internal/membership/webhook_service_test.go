package membership_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	apperrors "github.com/hanifrahman/talenthub-payments/internal"
	datamodel "github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
	"github.com/hanifrahman/talenthub-payments/internal/core/events"
	membershipPkg "github.com/hanifrahman/talenthub-payments/internal/membership"
	"github.com/hanifrahman/talenthub-payments/internal/metrics"
	"github.com/hanifrahman/talenthub-payments/internal/signature"
)

const webhookTestSecret = "pl_test_webhook_secret"

func signedPaylinkDelivery(eventID, status, reference, transactionID string, ts int64) signature.Delivery {
	body, _ := json.Marshal(map[string]interface{}{
		"event_id":   eventID,
		"event_type": "payment.updated",
		"timestamp":  ts,
		"data": map[string]interface{}{
			"reference":      reference,
			"status":         status,
			"amount":         9.99,
			"currency":       "USD",
			"failure_reason": "",
			"metadata": map[string]string{
				"transaction_id": transactionID,
			},
		},
	})
	return signature.Delivery{
		Payload:   body,
		Signature: signature.Sign(webhookTestSecret, body),
	}
}

var _ = Describe("WebhookService", func() {
	var (
		repo       *mockTransactionRepository
		webhooks   *mockWebhookEventRepository
		audits     *mockAuditRepository
		profiles   *mockProfileRepository
		service    *membershipPkg.WebhookService
		ctx        context.Context
		now        time.Time
		completed  int
		failed     int
		processing *datamodel.Transaction
	)

	BeforeEach(func() {
		repo = newMockTransactionRepository()
		webhooks = newMockWebhookEventRepository()
		audits = newMockAuditRepository()
		profiles = newMockProfileRepository()
		testLog := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

		bus := events.NewEventBus(testLog)
		completed, failed = 0, 0
		bus.Subscribe(events.EventTypeTierUpgradeCompleted, func(ctx context.Context, e events.Event) error {
			completed++
			return nil
		})
		bus.Subscribe(events.EventTypeTierUpgradeFailed, func(ctx context.Context, e events.Event) error {
			failed++
			return nil
		})

		service = membershipPkg.NewWebhookService(repo, webhooks, audits, profiles,
			[]signature.Verifier{signature.NewPaylinkVerifier(webhookTestSecret, 300*time.Second)},
			bus, testLog)
		ctx = context.Background()
		now = time.Now()

		ref := "ref-abc"
		processing = &datamodel.Transaction{
			ID:                 "txn-1",
			MembershipType:     datamodel.TypeMember,
			IdempotencyKey:     "idem-key-0123456789",
			UserID:             "user-1",
			PreviousTier:       "welcome",
			NewTier:            "premium",
			Amount:             9.99,
			Currency:           "USD",
			BillingCycle:       datamodel.BillingMonthly,
			PaymentMethod:      "card",
			Gateway:            "paylink",
			Status:             datamodel.StatusProcessing,
			PaymentStatus:      datamodel.StatusProcessing,
			GatewayReferenceID: &ref,
			InitiatedAt:        now,
		}
		Expect(repo.Create(processing)).To(Succeed())
	})

	Context("with a verified completion delivery", func() {
		It("completes the transaction and applies the tier", func() {
			d := signedPaylinkDelivery("evt-1", "success", "ref-abc", "txn-1", now.Unix())

			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())

			tx, _ := repo.GetByID("txn-1")
			Expect(tx.Status).To(Equal(datamodel.StatusCompleted))
			Expect(tx.WebhookVerified).To(BeTrue())
			Expect(tx.WebhookReceivedAt).NotTo(BeNil())
			Expect(profiles.tierFor("user-1", datamodel.TypeMember)).To(Equal("premium"))
			Expect(completed).To(Equal(1))
			Expect(webhooks.count()).To(Equal(1))
		})

		It("resolves by gateway reference when metadata is absent", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"event_id":   "evt-2",
				"event_type": "payment.updated",
				"timestamp":  now.Unix(),
				"data": map[string]interface{}{
					"reference": "ref-abc",
					"status":    "success",
					"amount":    9.99,
					"currency":  "USD",
				},
			})
			d := signature.Delivery{Payload: body, Signature: signature.Sign(webhookTestSecret, body)}

			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())

			tx, _ := repo.GetByID("txn-1")
			Expect(tx.Status).To(Equal(datamodel.StatusCompleted))
		})
	})

	Context("when the gateway redelivers the same event", func() {
		It("acknowledges without re-applying the tier", func() {
			d := signedPaylinkDelivery("evt-1", "success", "ref-abc", "txn-1", now.Unix())

			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())
			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())
			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())

			Expect(profiles.applyCalls).To(Equal(1))
			Expect(completed).To(Equal(1))
			Expect(webhooks.count()).To(Equal(1))
		})

		It("finishes the tier upgrade when the first attempt died after the transition", func() {
			profiles.applyError = errors.New("profiles unavailable")

			d := signedPaylinkDelivery("evt-1", "success", "ref-abc", "txn-1", now.Unix())
			Expect(service.ProcessDelivery(ctx, "paylink", d)).NotTo(Succeed())

			// The transaction completed but the paid-for tier never landed.
			tx, _ := repo.GetByID("txn-1")
			Expect(tx.Status).To(Equal(datamodel.StatusCompleted))
			Expect(profiles.tierFor("user-1", datamodel.TypeMember)).To(BeEmpty())
			Expect(completed).To(BeZero())

			profiles.applyError = nil
			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())

			Expect(profiles.tierFor("user-1", datamodel.TypeMember)).To(Equal("premium"))
			Expect(completed).To(Equal(1))
			Expect(webhooks.count()).To(Equal(1))

			// Now fully handled; a further redelivery is a plain duplicate.
			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())
			Expect(profiles.applyCalls).To(Equal(1))
			Expect(completed).To(Equal(1))
		})

		It("retries the transition itself when it never ran", func() {
			d := signedPaylinkDelivery("evt-1", "success", "ref-abc", "txn-1", now.Unix())

			// First attempt records the event, then the conditional update
			// errors before moving the transaction.
			repo.completeError = errors.New("connection reset")
			Expect(service.ProcessDelivery(ctx, "paylink", d)).NotTo(Succeed())
			tx, _ := repo.GetByID("txn-1")
			Expect(tx.Status).To(Equal(datamodel.StatusProcessing))

			repo.completeError = nil
			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())

			tx, _ = repo.GetByID("txn-1")
			Expect(tx.Status).To(Equal(datamodel.StatusCompleted))
			Expect(profiles.tierFor("user-1", datamodel.TypeMember)).To(Equal("premium"))
			Expect(webhooks.count()).To(Equal(1))
		})

		It("does not re-apply when a fresh event id reports an already terminal transaction", func() {
			first := signedPaylinkDelivery("evt-1", "success", "ref-abc", "txn-1", now.Unix())
			Expect(service.ProcessDelivery(ctx, "paylink", first)).To(Succeed())

			second := signedPaylinkDelivery("evt-2", "success", "ref-abc", "txn-1", now.Unix())
			Expect(service.ProcessDelivery(ctx, "paylink", second)).To(Succeed())

			Expect(profiles.applyCalls).To(Equal(1))
			Expect(completed).To(Equal(1))
			tx, _ := repo.GetByID("txn-1")
			Expect(tx.Status).To(Equal(datamodel.StatusCompleted))
		})
	})

	Context("with a verified failure delivery", func() {
		It("fails the transaction without touching the profile", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"event_id":   "evt-3",
				"event_type": "payment.updated",
				"timestamp":  now.Unix(),
				"data": map[string]interface{}{
					"reference":      "ref-abc",
					"status":         "failed",
					"amount":         9.99,
					"currency":       "USD",
					"failure_reason": "insufficient funds",
					"metadata":       map[string]string{"transaction_id": "txn-1"},
				},
			})
			d := signature.Delivery{Payload: body, Signature: signature.Sign(webhookTestSecret, body)}

			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())

			tx, _ := repo.GetByID("txn-1")
			Expect(tx.Status).To(Equal(datamodel.StatusFailed))
			Expect(*tx.ErrorMessage).To(Equal("insufficient funds"))
			Expect(profiles.applyCalls).To(BeZero())
			Expect(failed).To(Equal(1))
		})

		It("synthesizes a default reason when the gateway omits one", func() {
			body, _ := json.Marshal(map[string]interface{}{
				"event_id":   "evt-4",
				"event_type": "payment.updated",
				"timestamp":  now.Unix(),
				"data": map[string]interface{}{
					"reference": "ref-abc",
					"status":    "failed",
					"metadata":  map[string]string{"transaction_id": "txn-1"},
				},
			})
			d := signature.Delivery{Payload: body, Signature: signature.Sign(webhookTestSecret, body)}

			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())

			tx, _ := repo.GetByID("txn-1")
			Expect(*tx.ErrorMessage).To(Equal("payment failed at gateway"))
		})
	})

	Context("with a pending delivery", func() {
		It("records the event but leaves the transaction untouched", func() {
			d := signedPaylinkDelivery("evt-5", "pending", "ref-abc", "txn-1", now.Unix())

			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())

			tx, _ := repo.GetByID("txn-1")
			Expect(tx.Status).To(Equal(datamodel.StatusProcessing))
			Expect(webhooks.count()).To(Equal(1))
		})
	})

	Context("with an invalid signature", func() {
		It("rejects unauthorized with zero state mutation", func() {
			d := signedPaylinkDelivery("evt-6", "success", "ref-abc", "txn-1", now.Unix())
			d.Signature = signature.Sign("some-other-secret", d.Payload)

			err := service.ProcessDelivery(ctx, "paylink", d)
			Expect(err).To(Equal(apperrors.ErrSignatureInvalid))

			tx, _ := repo.GetByID("txn-1")
			Expect(tx.Status).To(Equal(datamodel.StatusProcessing))
			Expect(webhooks.count()).To(BeZero())
			Expect(profiles.applyCalls).To(BeZero())
		})
	})

	Context("with a stale delivery", func() {
		It("rejects without mutation", func() {
			stale := now.Add(-20 * time.Minute).Unix()
			d := signedPaylinkDelivery("evt-7", "success", "ref-abc", "txn-1", stale)

			err := service.ProcessDelivery(ctx, "paylink", d)
			Expect(err).To(Equal(apperrors.ErrWebhookStale))
			Expect(webhooks.count()).To(BeZero())
		})
	})

	Context("when the delivery references no known transaction", func() {
		It("returns not-found and writes nothing", func() {
			d := signedPaylinkDelivery("evt-8", "success", "ref-unknown", "txn-unknown", now.Unix())

			err := service.ProcessDelivery(ctx, "paylink", d)
			Expect(err).To(Equal(apperrors.ErrTransactionNotFound))

			Expect(webhooks.count()).To(BeZero())
			Expect(profiles.applyCalls).To(BeZero())
			Expect(audits.entries).To(BeEmpty())
		})
	})

	Context("with an unknown source", func() {
		It("rejects unauthorized", func() {
			d := signedPaylinkDelivery("evt-9", "success", "ref-abc", "txn-1", now.Unix())

			err := service.ProcessDelivery(ctx, "shadypay", d)
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeUnauthorized))
		})

		It("counts the rejection under a fixed source label", func() {
			before := testutil.ToFloat64(metrics.WebhooksReceived.WithLabelValues("unknown", "rejected"))

			d := signedPaylinkDelivery("evt-9", "success", "ref-abc", "txn-1", now.Unix())
			Expect(service.ProcessDelivery(ctx, "shadypay-7f3a", d)).NotTo(Succeed())

			after := testutil.ToFloat64(metrics.WebhooksReceived.WithLabelValues("unknown", "rejected"))
			Expect(after - before).To(Equal(1.0))
		})
	})

	Context("end to end completion ordering", func() {
		It("handles initiation followed by webhook completion", func() {
			// Second transaction initiated through the payment service.
			testLog := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
			gw := &mockGateway{name: "paylink"}
			paymentSvc := membershipPkg.NewService(repo, audits, &mockSelector{gw: gw},
				"USD", "http://localhost:8080", testLog)

			resp, err := paymentSvc.InitiatePayment(ctx, "user-2", &membershipPkg.UpgradeRequest{
				UserID:         "user-2",
				MembershipType: "creator",
				CurrentTier:    "starter",
				TargetTier:     "pro",
				Amount:         19.99,
				BillingCycle:   "monthly",
				PaymentMethod:  "card",
				Email:          "kwame@talenthub.dev",
				IdempotencyKey: "idem-key-9876543210",
			})
			Expect(err).NotTo(HaveOccurred())

			d := signedPaylinkDelivery("evt-10", "success",
				fmt.Sprintf("ref-%s", resp.TransactionID), resp.TransactionID, now.Unix())
			Expect(service.ProcessDelivery(ctx, "paylink", d)).To(Succeed())

			tx, _ := repo.GetByID(resp.TransactionID)
			Expect(tx.Status).To(Equal(datamodel.StatusCompleted))
			Expect(profiles.tierFor("user-2", datamodel.TypeCreator)).To(Equal("pro"))
		})
	})
})
