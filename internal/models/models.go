package models

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
)

// Settled reports whether the provider has reached a final answer.
func (s MessageStatus) Settled() bool {
	return s == MessageStatusDelivered || s == MessageStatusFailed
}

type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
)

// CreditKind selects which balance of UserCredits an operation touches.
type CreditKind string

const (
	CreditSMS   CreditKind = "sms"
	CreditVoice CreditKind = "voice"
)

func (k CreditKind) Valid() bool {
	return k == CreditSMS || k == CreditVoice
}

type User struct {
	ID                string    `json:"id"`
	Email             *string   `json:"email,omitempty"`
	Username          *string   `json:"username,omitempty"`
	Name              string    `json:"name"`
	Role              Role      `json:"role"`
	PreferredProvider *Provider `json:"preferred_provider,omitempty"`
	PasswordHash      string    `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type PhoneNumber struct {
	ID          string    `json:"id"`
	Number      string    `json:"number"`
	Provider    Provider  `json:"provider"`
	ProviderSID *string   `json:"provider_sid,omitempty"`
	UserID      *string   `json:"user_id,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p *PhoneNumber) Assigned() bool {
	return p.UserID != nil && *p.UserID != ""
}

// PhoneNumberWithOwner is the admin listing row.
type PhoneNumberWithOwner struct {
	PhoneNumber
	Owner *UserSummary `json:"owner,omitempty"`
}

type UserSummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
}

type UserCredits struct {
	UserID       string    `json:"user_id"`
	SMSCredits   int       `json:"sms_credits"`
	VoiceCredits int       `json:"voice_credits"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (c UserCredits) Of(kind CreditKind) int {
	if kind == CreditVoice {
		return c.VoiceCredits
	}
	return c.SMSCredits
}

// UserDetail is a user with its credit row and owned numbers.
type UserDetail struct {
	User
	Credits      *UserCredits  `json:"user_credits,omitempty"`
	PhoneNumbers []PhoneNumber `json:"phone_numbers"`
}

type Conversation struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	PhoneNumberID   string     `json:"phone_number_id"`
	RecipientNumber string     `json:"recipient_number"`
	UnreadCount     int        `json:"unread_count"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Content        string        `json:"content"`
	Direction      Direction     `json:"direction"`
	Status         MessageStatus `json:"status"`
	ProviderSID    *string       `json:"provider_sid,omitempty"`
	ErrorMessage   *string       `json:"error_message,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type UsageRecord struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Type        CreditKind      `json:"type"`
	CreditsUsed int             `json:"credits_used"`
	Details     json.RawMessage `json:"details"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Call struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	PhoneNumberID   string     `json:"phone_number_id"`
	RecipientNumber string     `json:"recipient_number"`
	Direction       Direction  `json:"direction"`
	Duration        int        `json:"duration"`
	Status          CallStatus `json:"status"`
	ProviderSID     *string    `json:"provider_sid,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type CreditTransactionType string

const (
	CreditTransactionAdd    CreditTransactionType = "add"
	CreditTransactionDeduct CreditTransactionType = "deduct"
)

type CreditTransaction struct {
	ID           string                `json:"id"`
	UserID       string                `json:"user_id"`
	Type         CreditTransactionType `json:"type"`
	SMSCredits   int                   `json:"sms_credits"`
	VoiceCredits int                   `json:"voice_credits"`
	Description  string                `json:"description"`
	CreatedAt    time.Time             `json:"created_at"`
}
