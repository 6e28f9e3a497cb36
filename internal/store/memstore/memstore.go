// Package memstore is an in-memory store.Store used by service and handler
// tests. It keeps the conditional semantics of the Postgres implementation.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"twoway-sms/internal/models"
	"twoway-sms/internal/store"
)

type Store struct {
	mu sync.Mutex

	users         map[string]*models.User
	phones        map[string]*models.PhoneNumber
	credits       map[string]*models.UserCredits
	transactions  []models.CreditTransaction
	conversations map[string]*models.Conversation
	messages      []*models.Message
	usage         []models.UsageRecord
	calls         map[string]*models.Call

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:         map[string]*models.User{},
		phones:        map[string]*models.PhoneNumber{},
		credits:       map[string]*models.UserCredits{},
		conversations: map[string]*models.Conversation{},
		calls:         map[string]*models.Call{},
		now:           time.Now,
	}
}

// UsageRecords returns a copy of every usage row written so far.
func (s *Store) UsageRecords() []models.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.UsageRecord(nil), s.usage...)
}

// CreditTransactions returns a copy of the admin adjustment log.
func (s *Store) CreditTransactions() []models.CreditTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CreditTransaction(nil), s.transactions...)
}

// MessageCount is the number of stored messages across all conversations.
func (s *Store) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func clone[T any](v *T) *T {
	c := *v
	return &c
}

func eqPtr(a, b *string) bool {
	return a != nil && b != nil && strings.EqualFold(*a, *b)
}

// Users

func (s *Store) CreateUser(_ context.Context, u *models.User, smsCredits, voiceCredits int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if eqPtr(existing.Email, u.Email) || eqPtr(existing.Username, u.Username) {
			return store.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := s.now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = clone(u)
	s.credits[u.ID] = &models.UserCredits{
		UserID: u.ID, SMSCredits: smsCredits, VoiceCredits: voiceCredits, CreatedAt: now, UpdatedAt: now,
	}
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(u), nil
}

func (s *Store) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	login = strings.TrimSpace(login)
	byEmail := strings.Contains(login, "@")
	for _, u := range s.users {
		if byEmail && eqPtr(u.Email, &login) {
			return clone(u), nil
		}
		if !byEmail && u.Username != nil && *u.Username == login {
			return clone(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserDetail(ctx context.Context, id string) (*models.UserDetail, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &models.UserDetail{User: *u}
	if c, err := s.GetCredits(ctx, id); err == nil {
		d.Credits = c
	}
	d.PhoneNumbers, err = s.ListPhoneNumbersByUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) ListUsers(_ context.Context, role models.Role) ([]models.UserDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []models.UserDetail
	for _, u := range s.users {
		if role != "" && u.Role != role {
			continue
		}
		d := models.UserDetail{User: *u}
		if c, ok := s.credits[u.ID]; ok {
			d.Credits = clone(c)
		}
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) SetPreferredProvider(_ context.Context, id string, p *models.Provider) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if p != nil {
		p = clone(p)
	}
	u.PreferredProvider = p
	u.UpdatedAt = s.now()
	return clone(u), nil
}

// Phone numbers

func (s *Store) CreatePhoneNumber(_ context.Context, n *models.PhoneNumber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.phones {
		if existing.Number == n.Number {
			return store.ErrDuplicate
		}
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := s.now()
	n.CreatedAt, n.UpdatedAt = now, now
	s.phones[n.ID] = clone(n)
	return nil
}

func (s *Store) GetPhoneNumber(_ context.Context, id string) (*models.PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.phones[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(n), nil
}

func (s *Store) GetPhoneNumberByNumber(_ context.Context, number string) (*models.PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.phones {
		if n.Number == number {
			return clone(n), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetOwnedPhoneNumber(_ context.Context, id, userID string) (*models.PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.phones[id]
	if !ok || n.UserID == nil || *n.UserID != userID {
		return nil, store.ErrNotFound
	}
	return clone(n), nil
}

func (s *Store) ListPhoneNumbers(_ context.Context) ([]models.PhoneNumberWithOwner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []models.PhoneNumberWithOwner
	for _, n := range s.phones {
		row := models.PhoneNumberWithOwner{PhoneNumber: *n}
		if n.UserID != nil {
			if u, ok := s.users[*n.UserID]; ok {
				row.Owner = &models.UserSummary{ID: u.ID, Name: u.Name, Username: u.Username, Email: u.Email}
			}
		}
		res = append(res, row)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Number < res[j].Number })
	return res, nil
}

func (s *Store) ListPhoneNumbersByUser(_ context.Context, userID string) ([]models.PhoneNumber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := []models.PhoneNumber{}
	for _, n := range s.phones {
		if n.UserID != nil && *n.UserID == userID {
			res = append(res, *n)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Number < res[j].Number })
	return res, nil
}

func (s *Store) AssignPhoneNumber(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.phones[id]
	switch {
	case !ok:
		return store.ErrNotFound
	case n.Assigned():
		return store.ErrConflict
	}
	n.UserID = &userID
	n.UpdatedAt = s.now()
	return nil
}

func (s *Store) UnassignPhoneNumber(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.phones[id]
	switch {
	case !ok:
		return store.ErrNotFound
	case !n.Assigned():
		return store.ErrNotAssigned
	}
	n.UserID = nil
	n.UpdatedAt = s.now()
	return nil
}

func (s *Store) SetPhoneNumberActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.phones[id]
	if !ok {
		return store.ErrNotFound
	}
	n.IsActive = active
	n.UpdatedAt = s.now()
	return nil
}

// Credits

func (s *Store) GetCredits(_ context.Context, userID string) (*models.UserCredits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credits[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(c), nil
}

func (s *Store) DebitCredits(_ context.Context, userID string, kind models.CreditKind, amount int) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	if !kind.Valid() {
		return false, fmt.Errorf("unknown credit kind %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credits[userID]
	if !ok {
		return false, nil
	}
	bal := &c.SMSCredits
	if kind == models.CreditVoice {
		bal = &c.VoiceCredits
	}
	if *bal < amount {
		return false, nil
	}
	*bal -= amount
	c.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) AdjustCredits(_ context.Context, t *models.CreditTransaction) (*models.UserCredits, error) {
	smsDelta, voiceDelta := t.SMSCredits, t.VoiceCredits
	if t.Type == models.CreditTransactionDeduct {
		smsDelta, voiceDelta = -smsDelta, -voiceDelta
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c, ok := s.credits[t.UserID]
	if !ok {
		c = &models.UserCredits{UserID: t.UserID, CreatedAt: now}
		s.credits[t.UserID] = c
	}
	c.SMSCredits = max(c.SMSCredits+smsDelta, 0)
	c.VoiceCredits = max(c.VoiceCredits+voiceDelta, 0)
	c.UpdatedAt = now

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = now
	s.transactions = append(s.transactions, *t)
	return clone(c), nil
}

// Conversations

func (s *Store) FindOrCreateConversation(_ context.Context, userID, phoneNumberID, recipient string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.UserID == userID && c.PhoneNumberID == phoneNumberID && c.RecipientNumber == recipient {
			return clone(c), nil
		}
	}
	now := s.now()
	c := &models.Conversation{
		ID:              uuid.NewString(),
		UserID:          userID,
		PhoneNumberID:   phoneNumberID,
		RecipientNumber: recipient,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.conversations[c.ID] = c
	return clone(c), nil
}

func (s *Store) GetConversation(_ context.Context, id, userID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	return clone(c), nil
}

func (s *Store) ConversationOwner(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return c.UserID, nil
}

func (s *Store) ListConversations(_ context.Context, userID string) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := []models.Conversation{}
	for _, c := range s.conversations {
		if c.UserID == userID {
			res = append(res, *c)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i].LastMessageAt, res[j].LastMessageAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (s *Store) TouchConversation(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		c.LastMessageAt = &at
		c.UpdatedAt = s.now()
	}
	return nil
}

func (s *Store) IncrementUnread(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		c.UnreadCount++
		c.LastMessageAt = &at
		c.UpdatedAt = s.now()
	}
	return nil
}

func (s *Store) MarkConversationRead(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.UserID != userID {
		return store.ErrNotFound
	}
	c.UnreadCount = 0
	c.UpdatedAt = s.now()
	return nil
}

// Messages

func (s *Store) AppendMessage(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Direction == models.DirectionInbound && m.ProviderSID != nil {
		for _, existing := range s.messages {
			if existing.Direction == models.DirectionInbound && eqSID(existing.ProviderSID, m.ProviderSID) {
				return store.ErrDuplicate
			}
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := s.now()
	m.CreatedAt, m.UpdatedAt = now, now
	s.messages = append(s.messages, clone(m))
	return nil
}

func eqSID(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (s *Store) UpdateMessageStatus(_ context.Context, id string, status models.MessageStatus, providerSID, errMsg *string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID != id {
			continue
		}
		m.Status = status
		if providerSID != nil {
			m.ProviderSID = providerSID
		}
		m.ErrorMessage = errMsg
		m.UpdatedAt = s.now()
		return clone(m), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateMessageStatusBySID(_ context.Context, sid string, status models.MessageStatus, errMsg *string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.Direction != models.DirectionOutbound || !eqSID(m.ProviderSID, &sid) {
			continue
		}
		if m.Status.Settled() && !status.Settled() {
			return nil, store.ErrNotFound
		}
		m.Status = status
		if errMsg != nil {
			m.ErrorMessage = errMsg
		}
		m.UpdatedAt = s.now()
		return clone(m), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := []models.Message{}
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			res = append(res, *m)
		}
	}
	return res, nil
}

// Usage

func (s *Store) RecordUsage(_ context.Context, r *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if len(r.Details) == 0 {
		r.Details = json.RawMessage(`{}`)
	}
	r.CreatedAt = s.now()
	s.usage = append(s.usage, *r)
	return nil
}

// Calls

func (s *Store) CreateCall(_ context.Context, c *models.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.calls[c.ID] = clone(c)
	return nil
}

func (s *Store) GetCall(_ context.Context, id string) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(c), nil
}

func (s *Store) UpdateCallStatus(_ context.Context, id string, status models.CallStatus, providerSID, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = status
	if providerSID != nil {
		c.ProviderSID = providerSID
	}
	c.ErrorMessage = errMsg
	c.UpdatedAt = s.now()
	return nil
}

func (s *Store) UpdateCallStatusBySID(_ context.Context, sid string, status models.CallStatus, duration int) (*models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if !eqSID(c.ProviderSID, &sid) {
			continue
		}
		if c.Status == models.CallStatusCompleted || c.Status == models.CallStatusFailed {
			return nil, store.ErrNotFound
		}
		c.Status = status
		c.Duration = max(c.Duration, duration)
		c.UpdatedAt = s.now()
		return clone(c), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListCalls(_ context.Context, f store.CallFilter) ([]models.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Call{}
	for _, c := range s.calls {
		switch {
		case f.UserID != "" && c.UserID != f.UserID,
			f.Recipient != "" && c.RecipientNumber != f.Recipient,
			f.Status != "" && c.Status != f.Status,
			!f.From.IsZero() && c.CreatedAt.Before(f.From),
			!f.To.IsZero() && c.CreatedAt.After(f.To):
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Analytics

func (s *Store) Summary(_ context.Context, now time.Time) (*models.AnalyticsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.UTC()
	since := now.Add(-30 * 24 * time.Hour)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	firstDay := dayStart.AddDate(0, 0, -6)

	sum := &models.AnalyticsSummary{PhoneNumbers: len(s.phones), TotalMessages: len(s.messages)}
	for _, u := range s.users {
		if u.Role == models.RoleUser {
			sum.Users++
		}
	}
	for _, c := range s.credits {
		sum.TotalSMSCredits += c.SMSCredits
		sum.TotalVoiceCredits += c.VoiceCredits
	}
	for _, r := range s.usage {
		if !r.CreatedAt.Before(since) {
			sum.CreditsUsed += r.CreditsUsed
		}
	}

	daily := map[string]int{}
	directions := map[models.Direction]int{}
	active := map[string]bool{}
	perUser := map[string]int{}
	for _, m := range s.messages {
		if m.CreatedAt.Before(since) {
			continue
		}
		sum.MonthlyMessages++
		directions[m.Direction]++
		if !m.CreatedAt.Before(firstDay) {
			daily[m.CreatedAt.UTC().Format("2006-01-02")]++
		}
		if c, ok := s.conversations[m.ConversationID]; ok {
			active[c.UserID] = true
			perUser[c.UserID]++
		}
	}
	sum.ActiveUsers = len(active)
	sum.Daily = store.DailyBuckets(firstDay, 7, daily)
	sum.Directions = []models.DirectionCount{
		{Name: "Outbound", Value: directions[models.DirectionOutbound]},
		{Name: "Inbound", Value: directions[models.DirectionInbound]},
	}

	sum.TopUsers = []models.TopUser{}
	for id, n := range perUser {
		login := id
		if u, ok := s.users[id]; ok {
			switch {
			case u.Email != nil:
				login = *u.Email
			case u.Username != nil:
				login = *u.Username
			}
		}
		sum.TopUsers = append(sum.TopUsers, models.TopUser{Email: login, Count: n})
	}
	sort.Slice(sum.TopUsers, func(i, j int) bool {
		if sum.TopUsers[i].Count != sum.TopUsers[j].Count {
			return sum.TopUsers[i].Count > sum.TopUsers[j].Count
		}
		return sum.TopUsers[i].Email < sum.TopUsers[j].Email
	})
	if len(sum.TopUsers) > 5 {
		sum.TopUsers = sum.TopUsers[:5]
	}
	return sum, nil
}
