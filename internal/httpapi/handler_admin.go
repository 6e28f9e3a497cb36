package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/auth"
	"twoway-sms/internal/credits"
	"twoway-sms/internal/logger"
	"twoway-sms/internal/messaging"
	"twoway-sms/internal/models"
	"twoway-sms/internal/phone"
	"twoway-sms/internal/provider"
	"twoway-sms/internal/store"
)

// Users

type createUserRequest struct {
	Email        string `json:"email" validate:"required_without=Username"`
	Username     string `json:"username" validate:"required_without=Email"`
	Password     string `json:"password" validate:"required"`
	Name         string `json:"name" validate:"required"`
	Role         string `json:"role" validate:"required,oneof=admin user"`
	SMSCredits   int    `json:"smsCredits" validate:"gte=0"`
	VoiceCredits int    `json:"voiceCredits" validate:"gte=0"`
}

type updateUserRequest struct {
	PreferredProvider *string `json:"preferred_provider"`
}

func ListUsersHandler(users store.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := models.Role(r.URL.Query().Get("role"))
		if role != "" && !role.Valid() {
			writeError(w, r, apperr.Validation("Invalid role"))
			return
		}
		list, err := users.ListUsers(r.Context(), role)
		if err != nil {
			writeError(w, r, apperr.Internal(err))
			return
		}
		if list == nil {
			list = []models.UserDetail{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func CreateUserHandler(a *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := decodeJSON(r, &req, "Missing required fields"); err != nil {
			writeError(w, r, err)
			return
		}
		u, err := a.CreateUser(r.Context(), auth.NewUser{
			Email:        req.Email,
			Username:     req.Username,
			Password:     req.Password,
			Name:         req.Name,
			Role:         models.Role(req.Role),
			SMSCredits:   req.SMSCredits,
			VoiceCredits: req.VoiceCredits,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": u})
	}
}

func GetUserHandler(users store.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := users.GetUserDetail(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, apperr.NotFound("User not found"))
			return
		}
		if err != nil {
			writeError(w, r, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

// UpdateUserHandler sets or, with null or "", clears the preferred provider.
func UpdateUserHandler(users store.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateUserRequest
		if err := decodeJSON(r, &req, "Invalid request"); err != nil {
			writeError(w, r, err)
			return
		}
		var pref *models.Provider
		if req.PreferredProvider != nil && *req.PreferredProvider != "" {
			p, err := models.ParseProvider(*req.PreferredProvider)
			if err != nil {
				writeError(w, r, apperr.Validation("Invalid provider"))
				return
			}
			pref = &p
		}

		u, err := users.SetPreferredProvider(r.Context(), chi.URLParam(r, "id"), pref)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, apperr.NotFound("User not found"))
			return
		}
		if err != nil {
			writeError(w, r, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// Phone numbers

type phoneNumberRequest struct {
	Provider    string `json:"provider" validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	ProviderSID string `json:"providerSid" validate:"required"`
}

type purchaseRequest struct {
	Provider    string `json:"provider" validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required"`
}

type assignRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type testNumberRequest struct {
	TestNumber string `json:"testNumber" validate:"required"`
}

func ListPhoneNumbersHandler(numbers store.PhoneNumbers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := numbers.ListPhoneNumbers(r.Context())
		if err != nil {
			writeError(w, r, apperr.Internal(err))
			return
		}
		if list == nil {
			list = []models.PhoneNumberWithOwner{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func parseProviderField(s string) (models.Provider, error) {
	p, err := models.ParseProvider(s)
	if err != nil {
		return "", apperr.Validation("Invalid provider")
	}
	return p, nil
}

func createNumber(r *http.Request, numbers store.PhoneNumbers, p models.Provider, number, sid string) (*models.PhoneNumber, error) {
	if !phone.Validate(number) {
		return nil, apperr.Validation("Invalid phone number")
	}
	n := &models.PhoneNumber{
		Number:   phone.Normalize(number),
		Provider: p,
		IsActive: true,
	}
	if sid != "" {
		n.ProviderSID = &sid
	}
	err := numbers.CreatePhoneNumber(r.Context(), n)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Validation("Phone number already exists")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	logger.Info().Str("phone_number_id", n.ID).Str("number", n.Number).Str("provider", p.String()).Msg("phone number added")
	return n, nil
}

func AddPhoneNumberHandler(numbers store.PhoneNumbers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req phoneNumberRequest
		if err := decodeJSON(r, &req, "Missing required fields"); err != nil {
			writeError(w, r, err)
			return
		}
		p, err := parseProviderField(req.Provider)
		if err != nil {
			writeError(w, r, err)
			return
		}
		n, err := createNumber(r, numbers, p, req.PhoneNumber, req.ProviderSID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "phoneNumber": n})
	}
}

// VerifyPhoneNumberHandler always answers 200; the outcome is in the body.
func VerifyPhoneNumberHandler(reg *provider.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req phoneNumberRequest
		if err := decodeJSON(r, &req, "Missing required fields"); err != nil {
			writeError(w, r, err)
			return
		}
		p, err := parseProviderField(req.Provider)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reg.VerifyNumber(r.Context(), p, req.PhoneNumber, req.ProviderSID))
	}
}

func AvailableNumbersHandler(reg *provider.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var only models.Provider
		if s := q.Get("provider"); s != "" && s != "all" {
			p, err := parseProviderField(s)
			if err != nil {
				writeError(w, r, err)
				return
			}
			only = p
		}
		areaCode := strings.TrimSpace(q.Get("areaCode"))
		writeJSON(w, http.StatusOK, reg.AvailableNumbers(r.Context(), areaCode, only))
	}
}

// PurchaseNumberHandler buys the number on the provider account and adds it
// to the pool unassigned.
func PurchaseNumberHandler(reg *provider.Registry, numbers store.PhoneNumbers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req purchaseRequest
		if err := decodeJSON(r, &req, "Missing required fields"); err != nil {
			writeError(w, r, err)
			return
		}
		p, err := parseProviderField(req.Provider)
		if err != nil {
			writeError(w, r, err)
			return
		}
		client, err := reg.Get(p)
		if err != nil {
			writeError(w, r, apperr.Validation(err.Error()))
			return
		}
		info, err := client.PurchaseNumber(r.Context(), req.PhoneNumber)
		if err != nil {
			writeError(w, r, apperr.Provider(err.Error()))
			return
		}
		number := info.PhoneNumber
		if number == "" {
			number = req.PhoneNumber
		}
		n, err := createNumber(r, numbers, p, number, info.SID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "phoneNumber": n})
	}
}

func AssignPhoneNumberHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignRequest
		if err := decodeJSON(r, &req, "User ID is required"); err != nil {
			writeError(w, r, err)
			return
		}
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		n, err := st.GetPhoneNumber(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, apperr.NotFound("Phone number not found"))
			return
		}
		if err != nil {
			writeError(w, r, apperr.Internal(err))
			return
		}
		u, err := st.GetUser(ctx, req.UserID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, apperr.NotFound("User not found"))
			return
		}
		if err != nil {
			writeError(w, r, apperr.Internal(err))
			return
		}
		if u.PreferredProvider != nil && *u.PreferredProvider != n.Provider {
			logger.Warn().Str("phone_number_id", id).Str("user_id", u.ID).
				Msgf("assigning %s number to user preferring %s", n.Provider, *u.PreferredProvider)
		}

		switch err := st.AssignPhoneNumber(ctx, id, u.ID); {
		case errors.Is(err, store.ErrConflict):
			writeError(w, r, apperr.Conflict("Phone number is already assigned"))
			return
		case errors.Is(err, store.ErrNotFound):
			writeError(w, r, apperr.NotFound("Phone number not found"))
			return
		case err != nil:
			writeError(w, r, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusOK, okResponse{Success: true, Message: "Phone number assigned successfully"})
	}
}

func UnassignPhoneNumberHandler(numbers store.PhoneNumbers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch err := numbers.UnassignPhoneNumber(r.Context(), chi.URLParam(r, "id")); {
		case errors.Is(err, store.ErrNotAssigned):
			writeError(w, r, apperr.Validation("Phone number is not assigned"))
			return
		case errors.Is(err, store.ErrNotFound):
			writeError(w, r, apperr.NotFound("Phone number not found"))
			return
		case err != nil:
			writeError(w, r, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusOK, okResponse{Success: true, Message: "Phone number unassigned successfully"})
	}
}

func SendTestSMSHandler(svc *messaging.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req testNumberRequest
		if err := decodeJSON(r, &req, "Test number is required"); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := svc.TestNumber(r.Context(), chi.URLParam(r, "id"), req.TestNumber)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// Credits and analytics

type adjustCreditsRequest struct {
	Type         string `json:"type" validate:"required,oneof=add deduct"`
	SMSCredits   int    `json:"smsCredits" validate:"gte=0"`
	VoiceCredits int    `json:"voiceCredits" validate:"gte=0"`
	Description  string `json:"description" validate:"max=500"`
}

func AdjustCreditsHandler(users store.Users, ledger *credits.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adjustCreditsRequest
		if err := decodeJSON(r, &req, "Invalid credit adjustment"); err != nil {
			writeError(w, r, err)
			return
		}
		userID := chi.URLParam(r, "userID")
		if _, err := users.GetUser(r.Context(), userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, r, apperr.NotFound("User not found"))
				return
			}
			writeError(w, r, apperr.Internal(err))
			return
		}

		c, err := ledger.Adjust(r.Context(), userID, models.CreditTransactionType(req.Type),
			req.SMSCredits, req.VoiceCredits, strings.TrimSpace(req.Description))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "credits": c})
	}
}

func AnalyticsHandler(a store.Analytics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := a.Summary(r.Context(), time.Now())
		if err != nil {
			writeError(w, r, apperr.Internal(err))
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}
