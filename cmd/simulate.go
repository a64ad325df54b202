package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hanifrahman/talenthub-payments/internal/auth"
	"github.com/hanifrahman/talenthub-payments/internal/membership"
	"github.com/hanifrahman/talenthub-payments/pkg/logger"
)

var (
	simUserID         string
	simEmail          string
	simMembershipType string
	simCurrentTier    string
	simTargetTier     string
	simAmount         float64
	simPaymentMethod  string
)

// simulateCmd drives one full upgrade flow against a running server, the same
// path a client app takes: initiate, redirect, poll until terminal or timeout.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one upgrade flow against a running server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		logger.Init(os.Getenv("APP_ENV"))
		lg := logger.LoggerWrapper()

		tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration)
		token, err := tokens.GenerateAccessToken(simUserID, simEmail)
		if err != nil {
			log.Fatalf("failed to generate access token: %v", err)
		}

		client := membership.NewAPIClient(cfg.Server.BaseURL, token, 10*time.Second)
		orchestrator := membership.NewOrchestrator(client, membership.Callbacks{
			OnRedirect: func(checkoutURL string) {
				fmt.Printf("redirect to checkout: %s\n", checkoutURL)
			},
			OnSuccess: func(transactionID string) {
				fmt.Printf("upgrade completed, transaction %s\n", transactionID)
			},
			OnError: func(message string) {
				fmt.Printf("upgrade failed: %s\n", message)
			},
		}, cfg.Payments.PollInterval, cfg.Payments.PollTimeout, cfg.Payments.RedirectDelay, lg)

		req := &membership.UpgradeRequest{
			UserID:         simUserID,
			MembershipType: simMembershipType,
			CurrentTier:    simCurrentTier,
			TargetTier:     simTargetTier,
			Amount:         simAmount,
			BillingCycle:   "monthly",
			PaymentMethod:  simPaymentMethod,
			Email:          simEmail,
			IdempotencyKey: uuid.New().String(),
		}

		if err := orchestrator.Run(context.Background(), req); err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simUserID, "user", "", "user id to upgrade")
	simulateCmd.Flags().StringVar(&simEmail, "email", "", "user email")
	simulateCmd.Flags().StringVar(&simMembershipType, "type", "member", "membership track (member or creator)")
	simulateCmd.Flags().StringVar(&simCurrentTier, "from", "", "current tier")
	simulateCmd.Flags().StringVar(&simTargetTier, "to", "premium", "target tier")
	simulateCmd.Flags().Float64Var(&simAmount, "amount", 9.99, "charge amount")
	simulateCmd.Flags().StringVar(&simPaymentMethod, "method", "card", "payment method")
}
