package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/souqline/backend/internal/payments"
)

const (
	signatureHeader    = "Payment-Signature"
	maxWebhookBodySize = 1 << 20
)

type EventDispatcher interface {
	VerifyAndDispatch(ctx context.Context, payload []byte, signatureHeader string) (payments.Result, error)
}

// WebhookHandler serves POST /webhooks/payments. The processor retries on
// any non-2xx, so only failures worth redelivering return 5xx.
type WebhookHandler struct {
	Gateway EventDispatcher
	Logger  *slog.Logger
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logOrDefault(h.Logger)
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		badRequest(w, "unreadable body")
		return
	}

	res, err := h.Gateway.VerifyAndDispatch(r.Context(), payload, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
	case errors.Is(err, payments.ErrInvalidSignature):
		log.Warn("webhook signature rejected", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
		return
	case errors.Is(err, payments.ErrMalformedEvent):
		log.Warn("webhook payload rejected", "error", err)
		writeError(w, http.StatusBadRequest, "malformed_event", payments.ErrMalformedEvent.Error())
		return
	default:
		log.Error("webhook processing failed", "event_id", res.EventID, "type", res.Type, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "event processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received":  true,
		"event_id":  res.EventID,
		"duplicate": res.Duplicate,
		"ignored":   res.Ignored,
	})
}
