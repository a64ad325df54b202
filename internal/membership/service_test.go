package membership_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/hanifrahman/talenthub-payments/internal"
	"github.com/hanifrahman/talenthub-payments/internal/core/datamodel/audit"
	datamodel "github.com/hanifrahman/talenthub-payments/internal/core/datamodel/membership"
	membershipPkg "github.com/hanifrahman/talenthub-payments/internal/membership"
)

var _ = Describe("Service", func() {
	var (
		repo     *mockTransactionRepository
		audits   *mockAuditRepository
		gw       *mockGateway
		service  *membershipPkg.Service
		ctx      context.Context
		testLog  *slog.Logger
		validReq func() *membershipPkg.UpgradeRequest
	)

	BeforeEach(func() {
		repo = newMockTransactionRepository()
		audits = newMockAuditRepository()
		gw = &mockGateway{name: "paylink"}
		testLog = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		service = membershipPkg.NewService(repo, audits, &mockSelector{gw: gw},
			"USD", "http://localhost:8080", testLog)
		ctx = context.Background()

		validReq = func() *membershipPkg.UpgradeRequest {
			return &membershipPkg.UpgradeRequest{
				UserID:         "user-1",
				MembershipType: "member",
				CurrentTier:    "welcome",
				TargetTier:     "premium",
				Amount:         9.99,
				BillingCycle:   "monthly",
				PaymentMethod:  "card",
				Email:          "amara@talenthub.dev",
				IdempotencyKey: "idem-key-0123456789",
			}
		}
	})

	Describe("InitiatePayment", func() {
		Context("with a valid request", func() {
			It("creates a processing transaction and returns the checkout URL", func() {
				resp, err := service.InitiatePayment(ctx, "user-1", validReq())

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Success).To(BeTrue())
				Expect(resp.Status).To(Equal("processing"))
				Expect(resp.CheckoutURL).To(ContainSubstring("checkout.example.com"))

				tx, _ := repo.GetByID(resp.TransactionID)
				Expect(tx).NotTo(BeNil())
				Expect(tx.Status).To(Equal(datamodel.StatusProcessing))
				Expect(tx.Gateway).To(Equal("paylink"))
				Expect(*tx.GatewayReferenceID).To(Equal("ref-" + tx.ID))
			})

			It("plants correlation metadata in the charge request", func() {
				resp, err := service.InitiatePayment(ctx, "user-1", validReq())

				Expect(err).NotTo(HaveOccurred())
				Expect(gw.lastRequest.TransactionID).To(Equal(resp.TransactionID))
				Expect(gw.lastRequest.MembershipType).To(Equal("member"))
				Expect(gw.lastRequest.NewTier).To(Equal("premium"))
				Expect(gw.lastRequest.RedirectURL).To(ContainSubstring("/api/v1/membership/callback?type=member"))
			})

			It("appends an initiation audit entry", func() {
				_, err := service.InitiatePayment(ctx, "user-1", validReq())

				Expect(err).NotTo(HaveOccurred())
				Expect(audits.byAction(audit.ActionInitiate)).To(HaveLen(1))
			})
		})

		Context("when the same idempotency key is replayed", func() {
			It("returns the original transaction without calling the gateway again", func() {
				first, err := service.InitiatePayment(ctx, "user-1", validReq())
				Expect(err).NotTo(HaveOccurred())

				for i := 0; i < 3; i++ {
					resp, err := service.InitiatePayment(ctx, "user-1", validReq())
					Expect(err).NotTo(HaveOccurred())
					Expect(resp.TransactionID).To(Equal(first.TransactionID))
				}

				Expect(gw.calls).To(Equal(1))
				Expect(repo.transactions).To(HaveLen(1))
			})

			It("allows the same key on the other membership track", func() {
				_, err := service.InitiatePayment(ctx, "user-1", validReq())
				Expect(err).NotTo(HaveOccurred())

				creatorReq := validReq()
				creatorReq.MembershipType = "creator"
				creatorReq.CurrentTier = "starter"
				creatorReq.TargetTier = "pro"
				resp, err := service.InitiatePayment(ctx, "user-1", creatorReq)

				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Success).To(BeTrue())
				Expect(repo.transactions).To(HaveLen(2))
			})
		})

		Context("when validation fails", func() {
			It("rejects a missing idempotency key before any row is written", func() {
				req := validReq()
				req.IdempotencyKey = ""

				_, err := service.InitiatePayment(ctx, "user-1", req)

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
				Expect(repo.transactions).To(BeEmpty())
				Expect(gw.calls).To(BeZero())
			})

			It("rejects a short idempotency key", func() {
				req := validReq()
				req.IdempotencyKey = "short"

				_, err := service.InitiatePayment(ctx, "user-1", req)
				Expect(err).To(HaveOccurred())
				Expect(repo.transactions).To(BeEmpty())
			})

			It("rejects a downgrade", func() {
				req := validReq()
				req.CurrentTier = "vip"
				req.TargetTier = "premium"

				_, err := service.InitiatePayment(ctx, "user-1", req)
				Expect(err).To(HaveOccurred())
				Expect(repo.transactions).To(BeEmpty())
			})

			It("rejects a tier from the wrong track", func() {
				req := validReq()
				req.TargetTier = "elite"

				_, err := service.InitiatePayment(ctx, "user-1", req)
				Expect(err).To(HaveOccurred())
			})

			It("rejects an unknown payment method", func() {
				req := validReq()
				req.PaymentMethod = "barter"

				_, err := service.InitiatePayment(ctx, "user-1", req)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when the caller is not the payment subject", func() {
			It("refuses before any row is written", func() {
				_, err := service.InitiatePayment(ctx, "someone-else", validReq())

				Expect(err).To(Equal(apperrors.ErrSubjectMismatch))
				Expect(repo.transactions).To(BeEmpty())
				Expect(gw.calls).To(BeZero())
			})
		})

		Context("when the gateway rejects the charge", func() {
			BeforeEach(func() {
				gw.chargeError = errors.New("card declined by issuer")
			})

			It("marks the transaction failed and surfaces the gateway message", func() {
				_, err := service.InitiatePayment(ctx, "user-1", validReq())

				Expect(err).To(HaveOccurred())
				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodePaymentInitiation))
				Expect(appErr.Message).To(ContainSubstring("card declined by issuer"))

				Expect(repo.transactions).To(HaveLen(1))
				for _, tx := range repo.transactions {
					Expect(tx.Status).To(Equal(datamodel.StatusFailed))
					Expect(*tx.ErrorMessage).To(ContainSubstring("card declined"))
				}
				Expect(audits.byAction(audit.ActionFail)).To(HaveLen(1))
			})

			It("replays the failed row on a retry with the same key", func() {
				_, _ = service.InitiatePayment(ctx, "user-1", validReq())

				resp, err := service.InitiatePayment(ctx, "user-1", validReq())
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Success).To(BeFalse())
				Expect(resp.Error).To(ContainSubstring("card declined"))
				Expect(gw.calls).To(Equal(1))
			})
		})

		Context("when concurrent requests race on one idempotency key", func() {
			It("creates exactly one transaction", func() {
				var wg sync.WaitGroup
				results := make([]*membershipPkg.UpgradeResponse, 8)
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						defer GinkgoRecover()
						resp, err := service.InitiatePayment(ctx, "user-1", validReq())
						Expect(err).NotTo(HaveOccurred())
						results[i] = resp
					}(i)
				}
				wg.Wait()

				Expect(repo.transactions).To(HaveLen(1))
				first := results[0].TransactionID
				for _, r := range results {
					Expect(r.TransactionID).To(Equal(first))
				}
			})
		})
	})

	Describe("GetTransaction", func() {
		var transactionID string

		BeforeEach(func() {
			resp, err := service.InitiatePayment(ctx, "user-1", validReq())
			Expect(err).NotTo(HaveOccurred())
			transactionID = resp.TransactionID
		})

		It("returns the owner's transaction", func() {
			view, err := service.GetTransaction(ctx, "user-1", false, transactionID)

			Expect(err).NotTo(HaveOccurred())
			Expect(view.ID).To(Equal(transactionID))
			Expect(view.Status).To(Equal("processing"))
		})

		It("refuses another user's transaction", func() {
			_, err := service.GetTransaction(ctx, "user-2", false, transactionID)
			Expect(err).To(Equal(apperrors.ErrUnauthorizedAccess))
		})

		It("allows an administrator to read any transaction", func() {
			view, err := service.GetTransaction(ctx, "admin-1", true, transactionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(view.ID).To(Equal(transactionID))
		})

		It("returns not-found for an unknown id", func() {
			_, err := service.GetTransaction(ctx, "user-1", false, "nope")
			Expect(err).To(Equal(apperrors.ErrTransactionNotFound))
		})
	})
})
