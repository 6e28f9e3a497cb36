// Package store persists users, phone numbers, credits, conversations,
// messages, usage and calls.
package store

import (
	"context"
	"errors"
	"time"

	"twoway-sms/internal/models"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrDuplicate   = errors.New("duplicate")
	ErrConflict    = errors.New("already assigned")
	ErrNotAssigned = errors.New("not assigned")
)

type Users interface {
	CreateUser(ctx context.Context, u *models.User, smsCredits, voiceCredits int) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	// GetUserByLogin matches the e-mail when login contains '@', the username otherwise.
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserDetail(ctx context.Context, id string) (*models.UserDetail, error)
	ListUsers(ctx context.Context, role models.Role) ([]models.UserDetail, error)
	SetPreferredProvider(ctx context.Context, id string, p *models.Provider) (*models.User, error)
}

type PhoneNumbers interface {
	CreatePhoneNumber(ctx context.Context, p *models.PhoneNumber) error
	GetPhoneNumber(ctx context.Context, id string) (*models.PhoneNumber, error)
	GetPhoneNumberByNumber(ctx context.Context, number string) (*models.PhoneNumber, error)
	GetOwnedPhoneNumber(ctx context.Context, id, userID string) (*models.PhoneNumber, error)
	ListPhoneNumbers(ctx context.Context) ([]models.PhoneNumberWithOwner, error)
	ListPhoneNumbersByUser(ctx context.Context, userID string) ([]models.PhoneNumber, error)
	AssignPhoneNumber(ctx context.Context, id, userID string) error
	UnassignPhoneNumber(ctx context.Context, id string) error
	SetPhoneNumberActive(ctx context.Context, id string, active bool) error
}

type Credits interface {
	GetCredits(ctx context.Context, userID string) (*models.UserCredits, error)
	// DebitCredits subtracts amount only if the balance covers it and
	// reports whether it did.
	DebitCredits(ctx context.Context, userID string, kind models.CreditKind, amount int) (bool, error)
	// AdjustCredits applies an admin add/deduct, clamping at zero, and
	// records the transaction.
	AdjustCredits(ctx context.Context, tx *models.CreditTransaction) (*models.UserCredits, error)
}

type Conversations interface {
	FindOrCreateConversation(ctx context.Context, userID, phoneNumberID, recipient string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error)
	ConversationOwner(ctx context.Context, id string) (string, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	IncrementUnread(ctx context.Context, id string, at time.Time) error
	MarkConversationRead(ctx context.Context, id, userID string) error
}

type Messages interface {
	AppendMessage(ctx context.Context, m *models.Message) error
	UpdateMessageStatus(ctx context.Context, id string, status models.MessageStatus, providerSID, errMsg *string) (*models.Message, error)
	UpdateMessageStatusBySID(ctx context.Context, sid string, status models.MessageStatus, errMsg *string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

type Usage interface {
	RecordUsage(ctx context.Context, r *models.UsageRecord) error
}

type Calls interface {
	CreateCall(ctx context.Context, c *models.Call) error
	GetCall(ctx context.Context, id string) (*models.Call, error)
	UpdateCallStatus(ctx context.Context, id string, status models.CallStatus, providerSID, errMsg *string) error
	UpdateCallStatusBySID(ctx context.Context, sid string, status models.CallStatus, duration int) (*models.Call, error)
	ListCalls(ctx context.Context, f CallFilter) ([]models.Call, error)
}

const (
	DefaultCallLimit = 100
	MaxCallLimit     = 1000
)

// CallFilter narrows the call history. Zero fields do not filter.
type CallFilter struct {
	UserID    string
	Recipient string
	Status    models.CallStatus
	From      time.Time
	To        time.Time
	Limit     int
}

// EffectiveLimit clamps Limit to (0, MaxCallLimit], defaulting to DefaultCallLimit.
func (f CallFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultCallLimit
	case f.Limit > MaxCallLimit:
		return MaxCallLimit
	}
	return f.Limit
}

type Analytics interface {
	Summary(ctx context.Context, now time.Time) (*models.AnalyticsSummary, error)
}

// Store is everything the service layer needs.
type Store interface {
	Users
	PhoneNumbers
	Credits
	Conversations
	Messages
	Usage
	Calls
	Analytics
}
