package membership

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	apperrors "github.com/hanifrahman/talenthub-payments/internal"
	"github.com/hanifrahman/talenthub-payments/internal/auth"
	"github.com/hanifrahman/talenthub-payments/internal/transport"
)

// Handler exposes the tier upgrade endpoints.
type Handler struct {
	*transport.BaseHandler
	service ServiceAPI
	isAdmin func(userID string) bool
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, isAdmin func(userID string) bool) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		service:     service,
		isAdmin:     isAdmin,
	}
}

// InitiateUpgrade handles POST /api/v1/membership/upgrade.
func (h *Handler) InitiateUpgrade(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, apperrors.ErrInvalidToken)
		return
	}

	var req UpgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleError(w, apperrors.NewValidationError("invalid request body", apperrors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.service.InitiatePayment(r.Context(), user.ID, &req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// GetTransaction handles GET /api/v1/membership/transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, apperrors.ErrInvalidToken)
		return
	}

	transactionID := chi.URLParam(r, "id")
	if transactionID == "" {
		h.HandleError(w, apperrors.NewValidationError("transaction id is required", apperrors.ErrCodeValidationFailed))
		return
	}

	view, err := h.service.GetTransaction(r.Context(), user.ID, h.isAdmin(user.ID), transactionID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// ListTransactions handles GET /api/v1/membership/transactions. Admin only;
// the router applies the RequireAdmin middleware.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	views, err := h.service.ListTransactions(r.Context(), limit, offset)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": views,
		"count":        len(views),
	})
}

// PaymentCallback handles GET /api/v1/membership/callback. The gateway
// redirects the browser here after checkout; the page only tells the client
// where to poll, it never changes payment state.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	membershipType := r.URL.Query().Get("type")
	transactionID := r.URL.Query().Get("transaction_id")

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "payment is being processed",
		"membership_type": membershipType,
		"transaction_id":  transactionID,
		"poll":            "/api/v1/membership/transactions/" + transactionID,
	})
}
