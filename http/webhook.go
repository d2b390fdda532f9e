package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sagarc03/filedock"
)

type webhookResponse struct {
	Success       bool   `json:"success"`
	CorrelationID string `json:"correlationId,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var event events.S3Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil || event.Records == nil {
		slog.Warn("invalid webhook payload", "error", err)
		WriteError(w, http.StatusBadRequest, "invalid_payload", "Invalid payload")
		return
	}

	result, err := h.reconciler.Apply(r.Context(), NotificationsFromS3Event(event))
	if err != nil {
		code, errCode := statusFor(err)
		if !errors.Is(err, filedock.ErrStorageUnavailable) {
			code, errCode = http.StatusInternalServerError, "internal_error"
		}
		slog.Error("webhook processing failed",
			"correlation_id", result.CorrelationID,
			"error", err,
		)
		_ = WriteJSON(w, code, webhookResponse{
			Success:       false,
			CorrelationID: result.CorrelationID,
			Error:         errCode,
			Message:       "Processing failed",
		})
		return
	}

	_ = WriteJSON(w, http.StatusOK, webhookResponse{
		Success:       true,
		CorrelationID: result.CorrelationID,
	})
}

func (h *Handler) handleWebhookHealth(w http.ResponseWriter, _ *http.Request) {
	_ = WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "minio-webhook-handler",
	})
}

// NotificationsFromS3Event converts an S3 event notification into
// filedock notifications. Keys are passed through still URL-encoded;
// filedock.ParseObjectKey decodes them.
func NotificationsFromS3Event(event events.S3Event) []filedock.Notification {
	out := make([]filedock.Notification, 0, len(event.Records))
	for _, rec := range event.Records {
		out = append(out, filedock.Notification{
			Kind:      filedock.KindFromEventName(rec.EventName),
			EventName: rec.EventName,
			Bucket:    rec.S3.Bucket.Name,
			Key:       rec.S3.Object.Key,
			Size:      rec.S3.Object.Size,
		})
	}
	return out
}
