package membership_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	membershipPkg "github.com/hanifrahman/talenthub-payments/internal/membership"
)

type scriptedClient struct {
	mu            sync.Mutex
	initResponse  *membershipPkg.UpgradeResponse
	initError     error
	statuses      []string
	statusIndex   int
	statusError   error
	initiateCalls int
}

func (c *scriptedClient) InitiatePayment(ctx context.Context, req *membershipPkg.UpgradeRequest) (*membershipPkg.UpgradeResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initiateCalls++
	if c.initError != nil {
		return nil, c.initError
	}
	return c.initResponse, nil
}

func (c *scriptedClient) GetTransactionStatus(ctx context.Context, transactionID string) (*membershipPkg.TransactionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusError != nil {
		return nil, c.statusError
	}
	status := c.statuses[c.statusIndex]
	if c.statusIndex < len(c.statuses)-1 {
		c.statusIndex++
	}
	view := &membershipPkg.TransactionView{ID: transactionID, Status: status}
	if status == "failed" {
		view.ErrorMessage = "card declined"
	}
	return view, nil
}

var _ = Describe("Orchestrator", func() {
	var (
		client       *scriptedClient
		redirects    []string
		successes    []string
		failures     []string
		orchestrator *membershipPkg.Orchestrator
		testLog      *slog.Logger
		req          *membershipPkg.UpgradeRequest
	)

	newOrchestrator := func(pollTimeout time.Duration) *membershipPkg.Orchestrator {
		return membershipPkg.NewOrchestrator(client, membershipPkg.Callbacks{
			OnRedirect: func(url string) { redirects = append(redirects, url) },
			OnSuccess:  func(id string) { successes = append(successes, id) },
			OnError:    func(msg string) { failures = append(failures, msg) },
		}, 5*time.Millisecond, pollTimeout, time.Millisecond, testLog)
	}

	BeforeEach(func() {
		testLog = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		client = &scriptedClient{
			initResponse: &membershipPkg.UpgradeResponse{
				Success:       true,
				TransactionID: "txn-1",
				Status:        "processing",
				CheckoutURL:   "https://checkout.example.com/txn-1",
			},
		}
		redirects, successes, failures = nil, nil, nil
		req = &membershipPkg.UpgradeRequest{
			UserID:         "user-1",
			MembershipType: "member",
			TargetTier:     "premium",
			Amount:         9.99,
			BillingCycle:   "monthly",
			PaymentMethod:  "card",
			Email:          "amara@talenthub.dev",
			IdempotencyKey: "idem-key-0123456789",
		}
		orchestrator = newOrchestrator(time.Second)
	})

	It("redirects to checkout and polls until completion", func() {
		client.statuses = []string{"processing", "processing", "completed"}

		Expect(orchestrator.Run(context.Background(), req)).To(Succeed())

		Expect(redirects).To(Equal([]string{"https://checkout.example.com/txn-1"}))
		Expect(successes).To(Equal([]string{"txn-1"}))
		Expect(failures).To(BeEmpty())
		Expect(orchestrator.Step()).To(Equal(membershipPkg.StepSuccess))
	})

	It("reports a terminal failure from polling", func() {
		client.statuses = []string{"processing", "failed"}

		err := orchestrator.Run(context.Background(), req)

		Expect(err).To(HaveOccurred())
		Expect(failures).To(ConsistOf("card declined"))
		Expect(orchestrator.Step()).To(Equal(membershipPkg.StepError))
	})

	It("gives up at the poll timeout while leaving the transaction alone", func() {
		client.statuses = []string{"processing"}
		orchestrator = newOrchestrator(30 * time.Millisecond)

		err := orchestrator.Run(context.Background(), req)

		Expect(err).To(HaveOccurred())
		Expect(failures).To(HaveLen(1))
		Expect(failures[0]).To(ContainSubstring("timed out"))
		Expect(orchestrator.Step()).To(Equal(membershipPkg.StepError))
	})

	It("keeps polling through transient status errors", func() {
		client.statuses = []string{"completed"}
		client.statusError = errors.New("connection reset")
		go func() {
			time.Sleep(20 * time.Millisecond)
			client.mu.Lock()
			client.statusError = nil
			client.mu.Unlock()
		}()

		Expect(orchestrator.Run(context.Background(), req)).To(Succeed())
		Expect(successes).To(Equal([]string{"txn-1"}))
	})

	It("surfaces initiation errors", func() {
		client.initError = errors.New("validation failed")

		err := orchestrator.Run(context.Background(), req)

		Expect(err).To(HaveOccurred())
		Expect(failures).To(ConsistOf("validation failed"))
		Expect(redirects).To(BeEmpty())
	})

	It("refuses a second submission while one is in flight", func() {
		client.statuses = []string{"processing", "processing", "processing", "completed"}

		done := make(chan error, 1)
		go func() {
			done <- orchestrator.Run(context.Background(), req)
		}()

		Eventually(func() int {
			client.mu.Lock()
			defer client.mu.Unlock()
			return client.initiateCalls
		}).Should(BeNumerically(">=", 1))
		Expect(orchestrator.Run(context.Background(), req)).To(MatchError("payment already in progress"))
		Eventually(done).Should(Receive(BeNil()))
		Expect(client.initiateCalls).To(Equal(1))
	})

	It("refuses dismissal while a payment is in flight", func() {
		client.statuses = []string{"processing", "processing", "completed"}

		done := make(chan error, 1)
		go func() {
			done <- orchestrator.Run(context.Background(), req)
		}()

		Eventually(orchestrator.Step).Should(Equal(membershipPkg.StepPendingStatus))
		Expect(orchestrator.Dismiss()).To(HaveOccurred())
		Eventually(done).Should(Receive(BeNil()))
	})

	It("allows dismissal before payment starts", func() {
		orchestrator.Advance()
		Expect(orchestrator.Step()).To(Equal(membershipPkg.StepPaymentMethod))
		Expect(orchestrator.Dismiss()).To(Succeed())
		Expect(orchestrator.Step()).To(Equal(membershipPkg.StepBillingCycle))
	})

	It("stops when the context is cancelled", func() {
		client.statuses = []string{"processing"}
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- orchestrator.Run(ctx, req)
		}()

		Eventually(orchestrator.Step).Should(Equal(membershipPkg.StepPendingStatus))
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})

	It("can be dismissed after a cancelled run", func() {
		client.statuses = []string{"processing"}
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- orchestrator.Run(ctx, req)
		}()

		Eventually(orchestrator.Step).Should(Equal(membershipPkg.StepPendingStatus))
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))

		Expect(orchestrator.Step()).To(Equal(membershipPkg.StepError))
		Expect(orchestrator.Dismiss()).To(Succeed())
		Expect(orchestrator.Step()).To(Equal(membershipPkg.StepBillingCycle))
	})
})
