package handlers

import (
	"net/http"

	"visitor-webhook/internal/common/errors"
	"visitor-webhook/internal/common/logging"
	"visitor-webhook/internal/fulfillment"
	"visitor-webhook/internal/visitors"
)

// maxWebhookBody bounds the fulfillment request size
const maxWebhookBody = 1 << 20

// HandleWebhook answers a Dialogflow fulfillment request with the records
// found for the matricula parameter. Every decodable request gets a 200 so
// the platform shows the reply text; only malformed JSON is a 400.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithContext(r.Context())
	logger.Info("Webhook request received")

	req, err := fulfillment.DecodeRequest(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logger.Warn("Invalid or missing JSON body", logging.Err(err))
		h.sendFulfillment(w, http.StatusBadRequest, fulfillment.TextMalformedRequest)
		return
	}
	logger.Debug("Webhook payload", logging.Any("payload", req))

	result := h.lookup.Lookup(r.Context(), req.Identifier())
	switch result.Outcome {
	case visitors.OutcomeFound:
		logger.Info("Records found",
			logging.String("key", string(result.Key)),
			logging.Int("matches", len(result.Records)),
		)
	case visitors.OutcomeNotFound:
		logger.Warn("Identifier not found", logging.String("key", string(result.Key)))
	case visitors.OutcomeTransientError, visitors.OutcomeFailed:
		logger.Error("Lookup failed", result.Err,
			logging.String("key", string(result.Key)),
			logging.String("outcome", string(result.Outcome)),
		)
	}

	h.sendJSONResponse(w, http.StatusOK, fulfillment.Response(result))
}

// HandleInternalError writes the generic fulfillment error reply
func (h *Handlers) HandleInternalError(w http.ResponseWriter, _ *http.Request) {
	h.sendFulfillment(w, http.StatusInternalServerError, fulfillment.TextInternalError)
}

// HandleRateLimited tells the caller to retry later in the fulfillment format
func (h *Handlers) HandleRateLimited(w http.ResponseWriter, r *http.Request) {
	h.logger.WithContext(r.Context()).Warn("Webhook request rejected",
		logging.Err(errors.RateLimitError("webhook")),
		logging.String("remote_addr", r.RemoteAddr),
	)
	h.sendFulfillment(w, http.StatusTooManyRequests, fulfillment.TextTryAgainLater)
}

func (h *Handlers) sendFulfillment(w http.ResponseWriter, status int, text string) {
	h.sendJSONResponse(w, status, fulfillment.WebhookResponse{FulfillmentText: text})
}
