package auth

import (
	"context"
	"errors"
	"strings"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/config"
	"twoway-sms/internal/logger"
	"twoway-sms/internal/models"
	"twoway-sms/internal/store"
)

const (
	adminSMSCredits   = 1000
	adminVoiceCredits = 100
	minPasswordLen    = 6
)

type Service struct {
	users               store.Users
	sessions            SessionStore
	defaultSMSCredits   int
	defaultVoiceCredits int
}

func NewService(users store.Users, sessions SessionStore, defaultSMS, defaultVoice int) *Service {
	return &Service{
		users:               users,
		sessions:            sessions,
		defaultSMSCredits:   defaultSMS,
		defaultVoiceCredits: defaultVoice,
	}
}

// NewUser is an account to create. Either Email or Username must be set.
// Zero credit fields fall back to the configured defaults.
type NewUser struct {
	Email        string
	Username     string
	Password     string
	Name         string
	Role         models.Role
	SMSCredits   int
	VoiceCredits int
}

// Session is the result of a successful login.
type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

var errInvalidCredentials = apperr.Unauthorized("Invalid credentials")

// Login accepts a username or an e-mail address together with the password.
func (s *Service) Login(ctx context.Context, login, password string) (*Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, errInvalidCredentials
	}

	u, err := s.users.GetUserByLogin(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	ok, err := VerifyPassword(password, u.PasswordHash)
	if err != nil {
		logger.Warn().Err(err).Str("user_id", u.ID).Msg("stored password hash unreadable")
		return nil, errInvalidCredentials
	}
	if !ok {
		return nil, errInvalidCredentials
	}

	token, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	logger.Info().Str("user_id", u.ID).Msg("login")
	return &Session{Token: token, User: u}, nil
}

// Signup creates a regular user with the default balances and logs it in.
func (s *Service) Signup(ctx context.Context, in NewUser) (*Session, error) {
	in.Role = models.RoleUser
	in.SMSCredits, in.VoiceCredits = 0, 0
	u, err := s.CreateUser(ctx, in)
	if err != nil {
		return nil, err
	}
	token, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Session{Token: token, User: u}, nil
}

// CreateUser creates an account with its credit row.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	name := strings.TrimSpace(in.Name)

	switch {
	case email == "" && username == "", in.Password == "", name == "":
		return nil, apperr.Validation("Missing required fields")
	case email != "" && !strings.Contains(email, "@"):
		return nil, apperr.Validation("Invalid email address")
	case strings.Contains(username, "@"):
		return nil, apperr.Validation("Username cannot contain @")
	case len(in.Password) < minPasswordLen:
		return nil, apperr.Validation("Password must be at least 6 characters")
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, apperr.Validation("Invalid role")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	u := &models.User{Name: name, Role: role, PasswordHash: hash}
	if email != "" {
		u.Email = &email
	}
	if username != "" {
		u.Username = &username
	}

	sms, voice := in.SMSCredits, in.VoiceCredits
	if sms <= 0 {
		sms = s.defaultSMSCredits
	}
	if voice <= 0 {
		voice = s.defaultVoiceCredits
	}

	err = s.users.CreateUser(ctx, u, sms, voice)
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Validation("User already exists")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	logger.Info().Str("user_id", u.ID).Str("role", string(role)).Msg("user created")
	return u, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Resolve returns the user behind a session token.
func (s *Service) Resolve(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.sessions.Get(ctx, token)
	if errors.Is(err, ErrNoSession) {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return u, nil
}

// EnsureAdmin creates the configured bootstrap admin unless its login is
// already taken. An empty bootstrap section is a no-op.
func (s *Service) EnsureAdmin(ctx context.Context, cfg config.AdminBootstrap) error {
	login := strings.TrimSpace(cfg.Email)
	if login == "" {
		login = strings.TrimSpace(cfg.Username)
	}
	if login == "" || cfg.Password == "" {
		return nil
	}

	_, err := s.users.GetUserByLogin(ctx, login)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	name := cfg.Name
	if name == "" {
		name = "Admin"
	}
	u, err := s.CreateUser(ctx, NewUser{
		Email:        cfg.Email,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Name:         name,
		Role:         models.RoleAdmin,
		SMSCredits:   adminSMSCredits,
		VoiceCredits: adminVoiceCredits,
	})
	if err != nil {
		return err
	}
	logger.Info().Str("user_id", u.ID).Str("login", login).Msg("bootstrap admin created")
	return nil
}
