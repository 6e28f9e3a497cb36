package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/models"
	"twoway-sms/internal/phone"
	"twoway-sms/internal/store"
)

type callsResponse struct {
	Items []models.Call `json:"items"`
}

// parseCallFilter reads from, to (RFC3339), recipient, status and limit.
func parseCallFilter(r *http.Request) (store.CallFilter, error) {
	q := r.URL.Query()
	var f store.CallFilter

	for _, tf := range []struct {
		key string
		dst *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if s := q.Get(tf.key); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return f, apperr.Validation("Invalid " + tf.key + " timestamp")
			}
			*tf.dst = t
		}
	}

	if s := q.Get("recipient"); s != "" {
		f.Recipient = phone.Normalize(s)
	}
	if s := q.Get("status"); s != "" {
		switch st := models.CallStatus(s); st {
		case models.CallStatusInitiated, models.CallStatusRinging, models.CallStatusInProgress,
			models.CallStatusCompleted, models.CallStatusFailed:
			f.Status = st
		default:
			return f, apperr.Validation("Invalid status")
		}
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return f, apperr.Validation("Invalid limit")
		}
		f.Limit = n
	}
	return f, nil
}

func listCalls(w http.ResponseWriter, r *http.Request, calls store.Calls, f store.CallFilter) {
	items, err := calls.ListCalls(r.Context(), f)
	if err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, callsResponse{Items: items})
}

// CallsHandler lists the caller's own call history.
func CallsHandler(calls store.Calls) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseCallFilter(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.UserID = UserFrom(r.Context()).ID
		listCalls(w, r, calls, f)
	}
}

// AdminCallsHandler lists calls across users; ?userId narrows to one.
func AdminCallsHandler(calls store.Calls) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseCallFilter(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.UserID = r.URL.Query().Get("userId")
		listCalls(w, r, calls, f)
	}
}
