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

// XpressPayClient talks to the XpressPay wallet API.
type XpressPayClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func NewXpressPayClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *XpressPayClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &XpressPayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (c *XpressPayClient) Name() string { return NameXpressPay }

type xpresspayPaymentRequest struct {
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Phone       string            `json:"phone,omitempty"`
	Email       string            `json:"email,omitempty"`
	Narration   string            `json:"narration"`
	ReturnURL   string            `json:"return_url"`
	Meta        map[string]string `json:"meta"`
}

type xpresspayPaymentResponse struct {
	TransactionRef string `json:"transaction_ref"`
	PaymentURL     string `json:"payment_url"`
	State          string `json:"state"`
	Message        string `json:"message"`
}

func (c *XpressPayClient) CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	payload := xpresspayPaymentRequest{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Phone:     req.Phone,
		Email:     req.Email,
		Narration: fmt.Sprintf("Membership upgrade to %s (%s)", req.NewTier, req.BillingCycle),
		ReturnURL: req.RedirectURL,
		Meta: map[string]string{
			"transaction_id":  req.TransactionID,
			"user_id":         req.UserID,
			"membership_type": req.MembershipType,
			"previous_tier":   req.PreviousTier,
			"new_tier":        req.NewTier,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal xpresspay payment: %w", err)
	}

	url := c.baseURL + "/v2/payments"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create xpresspay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	c.logger.Info("xpresspay: creating payment",
		"transaction_id", req.TransactionID,
		"amount", req.Amount,
		"currency", req.Currency)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("xpresspay request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read xpresspay response: %w", err)
	}

	var parsed xpresspayPaymentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("failed to decode xpresspay response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg := parsed.Message
		if msg == "" {
			msg = string(respBody)
		}
		c.logger.Error("xpresspay: payment rejected",
			"status", resp.StatusCode,
			"message", msg,
			"transaction_id", req.TransactionID)
		return nil, fmt.Errorf("xpresspay error (status %d): %s", resp.StatusCode, msg)
	}

	c.logger.Info("xpresspay: payment created",
		"transaction_id", req.TransactionID,
		"transaction_ref", parsed.TransactionRef,
		"state", parsed.State)

	return &ChargeResponse{
		ReferenceID: parsed.TransactionRef,
		CheckoutURL: parsed.PaymentURL,
		Status:      parsed.State,
	}, nil
}
