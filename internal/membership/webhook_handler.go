package membership

import (
	"context"
	"io"
	"net/http"

	apperrors "github.com/hanifrahman/talenthub-payments/internal"
	"github.com/hanifrahman/talenthub-payments/internal/gateway"
	"github.com/hanifrahman/talenthub-payments/internal/signature"
	"github.com/hanifrahman/talenthub-payments/internal/transport"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MiB

// WebhookServiceAPI is what the webhook handler needs from the reconciler.
type WebhookServiceAPI interface {
	ProcessDelivery(ctx context.Context, source string, d signature.Delivery) error
}

// WebhookHandler receives gateway callbacks on POST /api/v1/webhooks/payment.
// The raw body is read before any parsing because both gateways sign the exact
// bytes they sent.
type WebhookHandler struct {
	*transport.BaseHandler
	service WebhookServiceAPI
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, service WebhookServiceAPI) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		service:     service,
	}
}

func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		h.HandleError(w, apperrors.NewValidationError("source query parameter is required", apperrors.ErrCodeValidationFailed))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.HandleError(w, apperrors.NewValidationError("failed to read request body", apperrors.ErrCodeValidationFailed))
		return
	}

	delivery := signature.Delivery{Payload: body}
	switch source {
	case gateway.NamePaylink:
		delivery.Signature = r.Header.Get("X-Paylink-Signature")
	case gateway.NameXpressPay:
		delivery.Signature = r.Header.Get("X-Xpresspay-Signature")
		delivery.Timestamp = r.Header.Get("X-Xpresspay-Timestamp")
	}

	if err := h.service.ProcessDelivery(r.Context(), source, delivery); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
