package webhook

import (
	"io"
	"net/http"

	"github.com/hearthhq/hearth/internal/middleware"
)

type Handler struct {
	secret    string
	processor *Processor
}

func NewHandler(secret string, processor *Processor) *Handler {
	return &Handler{
		secret:    secret,
		processor: processor,
	}
}

func (h *Handler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.GetLogger(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read webhook body")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	header := r.Header.Get(SignatureHeader)
	if !VerifySignature(body, header, h.secret) {
		logger.Warn().Msg("Rejected webhook with invalid signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if err := h.processor.Process(ctx, body); err != nil {
		// A 500 makes the gateway redeliver; the dedup ledger keeps the
		// retry from double-applying anything that did land.
		logger.Error().Err(err).Msg("Webhook processing failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
