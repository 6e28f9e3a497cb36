package httpapi

import (
	"net/http"
	"strconv"

	"twoway-sms/internal/laml"
	"twoway-sms/internal/logger"
	"twoway-sms/internal/store"
)

// RecordingHandler receives the recordingStatusCallback of the call
// document. Recordings stay on the provider account; we only log where
// they are.
func RecordingHandler(calls store.Calls) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callID := r.URL.Query().Get("callId")
		duration, _ := strconv.Atoi(r.PostForm.Get("RecordingDuration"))

		ev := logger.Info().
			Str("provider", webhookProvider(r.Context()).String()).
			Str("call_id", callID).
			Str("recording_sid", r.PostForm.Get("RecordingSid")).
			Str("recording_url", r.PostForm.Get("RecordingUrl")).
			Str("recording_status", r.PostForm.Get("RecordingStatus")).
			Int("duration", duration)
		if callID != "" {
			if c, err := calls.GetCall(r.Context(), callID); err == nil {
				ev = ev.Str("user_id", c.UserID)
			} else {
				ev = ev.AnErr("lookup_error", err)
			}
		}
		ev.Msg("call recording")
		laml.Write(w, laml.Empty())
	}
}
