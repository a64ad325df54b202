// Package gateway holds the HTTP clients for the two external payment
// providers and the deterministic payment-method routing between them.
package gateway

import (
	"context"
	"fmt"
)

const (
	NamePaylink   = "paylink"
	NameXpressPay = "xpresspay"
)

// Payment methods accepted by the initiation API.
const (
	MethodCard        = "card"
	MethodMobileMoney = "mobile_money"
	MethodWallet      = "wallet"
)

// ChargeRequest is the provider-neutral payment-creation request. Metadata is
// embedded so the webhook can be correlated without guessing.
type ChargeRequest struct {
	TransactionID  string
	UserID         string
	MembershipType string
	PreviousTier   string
	NewTier        string
	Amount         float64
	Currency       string
	BillingCycle   string
	Email          string
	Phone          string
	RedirectURL    string
}

// ChargeResponse is the provider-neutral result. CheckoutURL is empty when
// the provider needs no redirect.
type ChargeResponse struct {
	ReferenceID string
	CheckoutURL string
	Status      string
}

// Gateway creates payments with one external provider.
type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error)
}

// Selector maps a payment method onto the gateway responsible for it. Card
// and mobile-money charges go to Paylink; wallet payments go to XpressPay.
type Selector struct {
	paylink   Gateway
	xpresspay Gateway
}

func NewSelector(paylink, xpresspay Gateway) *Selector {
	return &Selector{paylink: paylink, xpresspay: xpresspay}
}

func (s *Selector) ForPaymentMethod(method string) (Gateway, error) {
	switch method {
	case MethodCard, MethodMobileMoney:
		return s.paylink, nil
	case MethodWallet:
		return s.xpresspay, nil
	default:
		return nil, fmt.Errorf("no gateway for payment method %q", method)
	}
}

// KnownMethods lists the accepted payment methods, for request validation.
func KnownMethods() []string {
	return []string{MethodCard, MethodMobileMoney, MethodWallet}
}
