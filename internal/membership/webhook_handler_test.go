package membership_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	datamodel "github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
	"github.com/hanifrahman/talenthub-payments/internal/core/events"
	membershipPkg "github.com/hanifrahman/talenthub-payments/internal/membership"
	"github.com/hanifrahman/talenthub-payments/internal/signature"
	"github.com/hanifrahman/talenthub-payments/internal/transport"
)

var _ = Describe("WebhookHandler", func() {
	var (
		repo     *mockTransactionRepository
		webhooks *mockWebhookEventRepository
		profiles *mockProfileRepository
		handler  *membershipPkg.WebhookHandler
		now      time.Time
	)

	BeforeEach(func() {
		repo = newMockTransactionRepository()
		webhooks = newMockWebhookEventRepository()
		profiles = newMockProfileRepository()
		testLog := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		now = time.Now()

		service := membershipPkg.NewWebhookService(repo, webhooks, newMockAuditRepository(), profiles,
			[]signature.Verifier{
				signature.NewPaylinkVerifier(webhookTestSecret, 300*time.Second),
				signature.NewXpressPayVerifier("xp_test_webhook_secret", 300*time.Second),
			},
			events.NewEventBus(testLog), testLog)
		handler = membershipPkg.NewWebhookHandler(transport.NewBaseHandler(testLog), service)

		ref := "ref-abc"
		tx := &datamodel.Transaction{
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
		Expect(repo.Create(tx)).To(Succeed())
	})

	post := func(source string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost,
			"/api/v1/webhooks/payment?source="+source, bytes.NewReader(body))
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		handler.HandleWebhook(rec, req)
		return rec
	}

	It("accepts a signed paylink delivery", func() {
		d := signedPaylinkDelivery("evt-1", "success", "ref-abc", "txn-1", now.Unix())
		rec := post("paylink", d.Payload, map[string]string{"X-Paylink-Signature": d.Signature})

		Expect(rec.Code).To(Equal(http.StatusOK))
		tx, _ := repo.GetByID("txn-1")
		Expect(tx.Status).To(Equal(datamodel.StatusCompleted))
	})

	It("accepts a signed xpresspay delivery with its timestamp header", func() {
		body := []byte(`{"id":"evt-2","event":"payment.state_changed","transaction_ref":"ref-abc","state":"COMPLETED","amount":9.99,"meta":{"transaction_id":"txn-1"}}`)
		ts := fmt.Sprintf("%d", now.Unix())
		rec := post("xpresspay", body, map[string]string{
			"X-Xpresspay-Signature": signature.SignWithTimestamp("xp_test_webhook_secret", ts, body),
			"X-Xpresspay-Timestamp": ts,
		})

		Expect(rec.Code).To(Equal(http.StatusOK))
		tx, _ := repo.GetByID("txn-1")
		Expect(tx.Status).To(Equal(datamodel.StatusCompleted))
	})

	It("returns 401 for a bad signature without mutating anything", func() {
		d := signedPaylinkDelivery("evt-3", "success", "ref-abc", "txn-1", now.Unix())
		rec := post("paylink", d.Payload, map[string]string{
			"X-Paylink-Signature": signature.Sign("wrong", d.Payload),
		})

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		tx, _ := repo.GetByID("txn-1")
		Expect(tx.Status).To(Equal(datamodel.StatusProcessing))
		Expect(webhooks.count()).To(BeZero())
	})

	It("returns 401 for a stale delivery", func() {
		d := signedPaylinkDelivery("evt-4", "success", "ref-abc", "txn-1", now.Add(-time.Hour).Unix())
		rec := post("paylink", d.Payload, map[string]string{"X-Paylink-Signature": d.Signature})

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("returns 404 when no transaction matches", func() {
		d := signedPaylinkDelivery("evt-5", "success", "ref-none", "txn-none", now.Unix())
		rec := post("paylink", d.Payload, map[string]string{"X-Paylink-Signature": d.Signature})

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("returns 400 without a source parameter", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader([]byte("{}")))
		rec := httptest.NewRecorder()
		handler.HandleWebhook(rec, req)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 200 for a redelivered event", func() {
		d := signedPaylinkDelivery("evt-6", "success", "ref-abc", "txn-1", now.Unix())
		first := post("paylink", d.Payload, map[string]string{"X-Paylink-Signature": d.Signature})
		second := post("paylink", d.Payload, map[string]string{"X-Paylink-Signature": d.Signature})

		Expect(first.Code).To(Equal(http.StatusOK))
		Expect(second.Code).To(Equal(http.StatusOK))
		Expect(profiles.applyCalls).To(Equal(1))
	})
})
