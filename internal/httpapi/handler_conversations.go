package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/messaging"
	"twoway-sms/internal/realtime"
	"twoway-sms/internal/store"
)

const sseHeartbeat = 25 * time.Second

func ConversationsHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := svc.ListConversations(r.Context(), UserFrom(r.Context()).ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func MessagesHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := svc.Messages(r.Context(), UserFrom(r.Context()).ID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func MarkReadHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.MarkRead(r.Context(), UserFrom(r.Context()).ID, chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, okResponse{Success: true})
	}
}

// ConversationEventsHandler streams message events of one conversation as
// server-sent events until the client goes away.
func ConversationEventsHandler(convs store.Conversations, broker realtime.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")
		if _, err := convs.GetConversation(ctx, id, UserFrom(ctx).ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, r, apperr.NotFound("Conversation not found"))
				return
			}
			writeError(w, r, apperr.Internal(err))
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, r, apperr.Internal(errors.New("response writer cannot flush")))
			return
		}

		sub, err := broker.Subscribe(ctx, realtime.ConversationChannel(id))
		if errors.Is(err, realtime.ErrUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Realtime updates unavailable"})
			return
		}
		if err != nil {
			writeError(w, r, apperr.Internal(err))
			return
		}
		defer sub.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(sseHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case payload, ok := <-sub.C:
				if !ok {
					return
				}
				_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}
