package httpapi

import (
	"net/http"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/laml"
	"twoway-sms/internal/messaging"
	"twoway-sms/internal/models"
)

type sendSMSRequest struct {
	PhoneNumberID   string `json:"phoneNumberId" validate:"required"`
	RecipientNumber string `json:"recipientNumber" validate:"required"`
	Message         string `json:"message" validate:"required"`
	Provider        string `json:"provider"`
}

type bulkRecipient struct {
	Number string `json:"number" validate:"required"`
	Name   string `json:"name"`
}

type bulkSMSRequest struct {
	PhoneNumberID string          `json:"phoneNumberId" validate:"required"`
	Recipients    []bulkRecipient `json:"recipients" validate:"required,min=1,max=1000,dive"`
	Message       string          `json:"message" validate:"required"`
}

type callRequest struct {
	PhoneNumberID   string `json:"phoneNumberId" validate:"required"`
	RecipientNumber string `json:"recipientNumber" validate:"required"`
	Provider        string `json:"provider"`
}

// optionalProvider parses an override; empty means no override.
func optionalProvider(s string) (models.Provider, error) {
	if s == "" {
		return "", nil
	}
	p, err := models.ParseProvider(s)
	if err != nil {
		return "", apperr.Validation("Invalid provider")
	}
	return p, nil
}

func SendSMSHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendSMSRequest
		if err := decodeJSON(r, &req, "Missing required fields"); err != nil {
			writeError(w, r, err)
			return
		}
		p, err := optionalProvider(req.Provider)
		if err != nil {
			writeError(w, r, err)
			return
		}

		res, err := svc.SendSMS(r.Context(), UserFrom(r.Context()), messaging.SendRequest{
			PhoneNumberID: req.PhoneNumberID,
			Recipient:     req.RecipientNumber,
			Body:          req.Message,
			Provider:      p,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			*messaging.SendResult
		}{true, res})
	}
}

func BulkSMSHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkSMSRequest
		if err := decodeJSON(r, &req, "Missing required fields"); err != nil {
			writeError(w, r, err)
			return
		}
		recipients := make([]messaging.Recipient, len(req.Recipients))
		for i, rc := range req.Recipients {
			recipients[i] = messaging.Recipient{Number: rc.Number, Name: rc.Name}
		}

		res, err := svc.BulkSend(r.Context(), UserFrom(r.Context()), messaging.BulkRequest{
			PhoneNumberID: req.PhoneNumberID,
			Recipients:    recipients,
			Message:       req.Message,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func CallHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req callRequest
		if err := decodeJSON(r, &req, "Missing required fields"); err != nil {
			writeError(w, r, err)
			return
		}
		p, err := optionalProvider(req.Provider)
		if err != nil {
			writeError(w, r, err)
			return
		}

		res, err := svc.PlaceCall(r.Context(), UserFrom(r.Context()), messaging.CallRequest{
			PhoneNumberID: req.PhoneNumberID,
			Recipient:     req.RecipientNumber,
			Provider:      p,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			*messaging.CallResult
		}{true, res})
	}
}

// CallLaMLHandler serves the document a provider fetches for an outbound
// call. Errors are plain text, which is what providers log.
func CallLaMLHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := svc.CallLaML(r.Context(), r.URL.Query().Get("callId"))
		if err != nil {
			http.Error(w, apperr.PublicMessage(err), apperr.HTTPStatus(err))
			return
		}
		laml.Write(w, body)
	}
}
