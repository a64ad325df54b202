package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// PaylinkClient talks to the Paylink charge API (cards and mobile money).
type PaylinkClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewPaylinkClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *PaylinkClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaylinkClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *PaylinkClient) Name() string { return NamePaylink }

type paylinkChargeRequest struct {
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Description string            `json:"description"`
	RedirectURL string            `json:"redirect_url"`
	Metadata    map[string]string `json:"metadata"`
}

type paylinkChargeResponse struct {
	Data struct {
		Reference   string `json:"reference"`
		CheckoutURL string `json:"checkout_url"`
		Status      string `json:"status"`
	} `json:"data"`
	Message string `json:"message"`
}

func (c *PaylinkClient) CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	payload := paylinkChargeRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Email:       req.Email,
		Phone:       req.Phone,
		Description: fmt.Sprintf("Membership upgrade to %s (%s)", req.NewTier, req.BillingCycle),
		RedirectURL: req.RedirectURL,
		Metadata: map[string]string{
			"transaction_id":  req.TransactionID,
			"user_id":         req.UserID,
			"membership_type": req.MembershipType,
			"previous_tier":   req.PreviousTier,
			"new_tier":        req.NewTier,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal paylink charge: %w", err)
	}

	url := c.baseURL + "/api/v1/charges"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create paylink request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("paylink: creating charge",
		"transaction_id", req.TransactionID,
		"amount", req.Amount,
		"currency", req.Currency)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paylink request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read paylink response: %w", err)
	}

	var parsed paylinkChargeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("failed to decode paylink response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := parsed.Message
		if msg == "" {
			msg = string(respBody)
		}
		c.logger.Error("paylink: charge rejected",
			"status", resp.StatusCode,
			"message", msg,
			"transaction_id", req.TransactionID)
		return nil, fmt.Errorf("paylink error (status %d): %s", resp.StatusCode, msg)
	}

	c.logger.Info("paylink: charge created",
		"transaction_id", req.TransactionID,
		"reference", parsed.Data.Reference,
		"status", parsed.Data.Status)

	return &ChargeResponse{
		ReferenceID: parsed.Data.Reference,
		CheckoutURL: parsed.Data.CheckoutURL,
		Status:      parsed.Data.Status,
	}, nil
}
