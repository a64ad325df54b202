// Package signature verifies webhook deliveries from the payment gateways.
// Each gateway signs the raw payload with HMAC-SHA256; comparison is
// constant-time, and gateways that carry a timestamp get a freshness check so
// captured payloads cannot be replayed later.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	errors "github.com/hanifrahman/talenthub-payments/internal"
)

// Status is the gateway-neutral payment outcome.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

// Result is the normalized content of a verified delivery.
type Result struct {
	Reference     string
	EventID       string
	EventType     string
	Status        Status
	Amount        float64
	FailureReason string
	Metadata      map[string]string
}

// Delivery carries the raw material of one webhook call.
type Delivery struct {
	Payload   []byte
	Signature string
	// Timestamp is the raw timestamp header, for gateways that sign it
	// separately from the body.
	Timestamp string
}

// Verifier validates and normalizes deliveries for one gateway.
type Verifier interface {
	Source() string
	Verify(d Delivery, now time.Time) (*Result, error)
}

// computeHMAC returns the lowercase hex HMAC-SHA256 of payload under secret.
func computeHMAC(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// validMAC compares the supplied signature against the expected digest in
// constant time. A plain string equality would leak a timing side-channel.
func validMAC(secret, payload []byte, signature string) bool {
	expected := computeHMAC(secret, payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// checkFreshness rejects deliveries older than the window or dated in the
// future beyond it.
func checkFreshness(eventTime, now time.Time, window time.Duration) error {
	drift := now.Sub(eventTime)
	if drift > window || drift < -window {
		return errors.ErrWebhookStale
	}
	return nil
}

// ---------------------------------------------------------------------------
// Paylink (cards and mobile money)
// ---------------------------------------------------------------------------

// PaylinkVerifier verifies Paylink deliveries: the signature header is the
// HMAC of the raw body, and the body itself carries a unix timestamp.
type PaylinkVerifier struct {
	secret          []byte
	freshnessWindow time.Duration
}

func NewPaylinkVerifier(secret string, freshnessWindow time.Duration) *PaylinkVerifier {
	if freshnessWindow <= 0 {
		freshnessWindow = 300 * time.Second
	}
	return &PaylinkVerifier{secret: []byte(secret), freshnessWindow: freshnessWindow}
}

func (v *PaylinkVerifier) Source() string { return "paylink" }

type paylinkPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Timestamp int64  `json:"timestamp"`
	Data      struct {
		Reference     string            `json:"reference"`
		Status        string            `json:"status"`
		Amount        float64           `json:"amount"`
		Currency      string            `json:"currency"`
		FailureReason string            `json:"failure_reason"`
		Metadata      map[string]string `json:"metadata"`
	} `json:"data"`
}

func (v *PaylinkVerifier) Verify(d Delivery, now time.Time) (*Result, error) {
	if d.Signature == "" {
		return nil, errors.ErrSignatureInvalid
	}
	if !validMAC(v.secret, d.Payload, d.Signature) {
		return nil, errors.ErrSignatureInvalid
	}

	var p paylinkPayload
	if err := json.Unmarshal(d.Payload, &p); err != nil {
		return nil, errors.NewValidationError("malformed paylink payload", errors.ErrCodeValidationFailed).WithCause(err)
	}
	if p.EventID == "" || p.Data.Reference == "" || p.Data.Status == "" {
		return nil, errors.NewValidationError("paylink payload missing required fields", errors.ErrCodeValidationFailed)
	}
	if p.Timestamp == 0 {
		return nil, errors.NewValidationError("paylink payload missing timestamp", errors.ErrCodeValidationFailed)
	}
	if err := checkFreshness(time.Unix(p.Timestamp, 0), now, v.freshnessWindow); err != nil {
		return nil, err
	}

	status, err := mapPaylinkStatus(p.Data.Status)
	if err != nil {
		return nil, err
	}

	return &Result{
		Reference:     p.Data.Reference,
		EventID:       p.EventID,
		EventType:     p.EventType,
		Status:        status,
		Amount:        p.Data.Amount,
		FailureReason: p.Data.FailureReason,
		Metadata:      p.Data.Metadata,
	}, nil
}

func mapPaylinkStatus(s string) (Status, error) {
	switch strings.ToLower(s) {
	case "success", "successful":
		return StatusCompleted, nil
	case "failed", "cancelled":
		return StatusFailed, nil
	case "pending":
		return StatusPending, nil
	default:
		return "", errors.NewValidationError(fmt.Sprintf("unknown paylink status %q", s), errors.ErrCodeValidationFailed)
	}
}

// ---------------------------------------------------------------------------
// XpressPay (express wallet payments)
// ---------------------------------------------------------------------------

// XpressPayVerifier verifies XpressPay deliveries: the gateway signs
// "<timestamp>.<body>" and sends the timestamp in its own header.
type XpressPayVerifier struct {
	secret          []byte
	freshnessWindow time.Duration
}

func NewXpressPayVerifier(secret string, freshnessWindow time.Duration) *XpressPayVerifier {
	if freshnessWindow <= 0 {
		freshnessWindow = 300 * time.Second
	}
	return &XpressPayVerifier{secret: []byte(secret), freshnessWindow: freshnessWindow}
}

func (v *XpressPayVerifier) Source() string { return "xpresspay" }

type xpresspayPayload struct {
	ID             string            `json:"id"`
	Event          string            `json:"event"`
	TransactionRef string            `json:"transaction_ref"`
	State          string            `json:"state"`
	Amount         float64           `json:"amount"`
	Reason         string            `json:"reason"`
	Meta           map[string]string `json:"meta"`
}

func (v *XpressPayVerifier) Verify(d Delivery, now time.Time) (*Result, error) {
	if d.Signature == "" || d.Timestamp == "" {
		return nil, errors.ErrSignatureInvalid
	}

	ts, err := strconv.ParseInt(d.Timestamp, 10, 64)
	if err != nil {
		return nil, errors.ErrSignatureInvalid
	}
	if err := checkFreshness(time.Unix(ts, 0), now, v.freshnessWindow); err != nil {
		return nil, err
	}

	signed := make([]byte, 0, len(d.Timestamp)+1+len(d.Payload))
	signed = append(signed, d.Timestamp...)
	signed = append(signed, '.')
	signed = append(signed, d.Payload...)
	if !validMAC(v.secret, signed, d.Signature) {
		return nil, errors.ErrSignatureInvalid
	}

	var p xpresspayPayload
	if err := json.Unmarshal(d.Payload, &p); err != nil {
		return nil, errors.NewValidationError("malformed xpresspay payload", errors.ErrCodeValidationFailed).WithCause(err)
	}
	if p.ID == "" || p.TransactionRef == "" || p.State == "" {
		return nil, errors.NewValidationError("xpresspay payload missing required fields", errors.ErrCodeValidationFailed)
	}

	status, err := mapXpressPayState(p.State)
	if err != nil {
		return nil, err
	}

	return &Result{
		Reference:     p.TransactionRef,
		EventID:       p.ID,
		EventType:     p.Event,
		Status:        status,
		Amount:        p.Amount,
		FailureReason: p.Reason,
		Metadata:      p.Meta,
	}, nil
}

func mapXpressPayState(s string) (Status, error) {
	switch strings.ToUpper(s) {
	case "COMPLETED", "SUCCESS":
		return StatusCompleted, nil
	case "FAILED", "REJECTED", "EXPIRED":
		return StatusFailed, nil
	case "PENDING", "ACCEPTED":
		return StatusPending, nil
	default:
		return "", errors.NewValidationError(fmt.Sprintf("unknown xpresspay state %q", s), errors.ErrCodeValidationFailed)
	}
}

// Sign produces the signature a gateway would attach; used by gateway
// simulators and tests.
func Sign(secret string, payload []byte) string {
	return computeHMAC([]byte(secret), payload)
}

// SignWithTimestamp produces the XpressPay-style signature over
// "<timestamp>.<body>".
func SignWithTimestamp(secret string, timestamp string, payload []byte) string {
	signed := append([]byte(timestamp+"."), payload...)
	return computeHMAC([]byte(secret), signed)
}
