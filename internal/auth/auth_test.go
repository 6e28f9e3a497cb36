package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"twoway-sms/internal/apperr"
	"twoway-sms/internal/config"
	"twoway-sms/internal/models"
	"twoway-sms/internal/store/memstore"
)

func TestPasswordRoundTrip(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	ok, err := VerifyPassword("s3cret-pass", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = VerifyPassword("x", "$2a$10$notargon")
	require.Error(t, err)
}

func TestRedisSessionStore(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisSessionStore(client, time.Hour)
	ctx := context.Background()

	token, err := s.Create(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, token, 43)
	require.True(t, mr.Exists("session:"+token))
	require.Equal(t, time.Hour, mr.TTL("session:"+token))

	uid, err := s.Get(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "user-1", uid)

	mr.FastForward(2 * time.Hour)
	_, err = s.Get(ctx, token)
	require.ErrorIs(t, err, ErrNoSession)

	token, err = s.Create(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, token))
	_, err = s.Get(ctx, token)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestMemorySessionStoreExpires(t *testing.T) {
	t.Parallel()

	s := NewMemorySessionStore(time.Minute)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	token, err := s.Create(ctx, "u")
	require.NoError(t, err)
	_, err = s.Get(ctx, token)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, token)
	require.ErrorIs(t, err, ErrNoSession)
}

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	return NewService(st, NewMemorySessionStore(time.Hour), 100, 10), st
}

func TestSignupAndLogin(t *testing.T) {
	t.Parallel()

	svc, st := newService(t)
	ctx := context.Background()

	sess, err := svc.Signup(ctx, NewUser{Email: "Bob@Example.com", Username: "bob", Password: "hunter22", Name: "Bob", Role: models.RoleAdmin})
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, sess.User.Role)
	require.Equal(t, "bob@example.com", *sess.User.Email)

	c, err := st.GetCredits(ctx, sess.User.ID)
	require.NoError(t, err)
	require.Equal(t, 100, c.SMSCredits)
	require.Equal(t, 10, c.VoiceCredits)

	for _, login := range []string{"bob", "bob@example.com"} {
		got, err := svc.Login(ctx, login, "hunter22")
		require.NoError(t, err, login)
		require.Equal(t, sess.User.ID, got.User.ID)

		u, err := svc.Resolve(ctx, got.Token)
		require.NoError(t, err)
		require.Equal(t, sess.User.ID, u.ID)
	}

	_, err = svc.Login(ctx, "bob", "wrong")
	require.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	require.Equal(t, "Invalid credentials", apperr.PublicMessage(err))

	_, err = svc.Login(ctx, "nobody", "hunter22")
	require.Equal(t, "Invalid credentials", apperr.PublicMessage(err))

	_, err = svc.Signup(ctx, NewUser{Username: "bob", Password: "hunter22", Name: "Other"})
	require.Equal(t, "User already exists", apperr.PublicMessage(err))
}

func TestLogoutEndsSession(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	sess, err := svc.Signup(ctx, NewUser{Username: "carol", Password: "hunter22", Name: "Carol"})
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, sess.Token))

	_, err = svc.Resolve(ctx, sess.Token)
	require.True(t, apperr.Is(err, apperr.CodeUnauthorized))
}

func TestCreateUserValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		in   NewUser
		want string
	}{
		{NewUser{Password: "hunter22", Name: "X"}, "Missing required fields"},
		{NewUser{Email: "not-an-email", Password: "hunter22", Name: "X"}, "Invalid email address"},
		{NewUser{Username: "a@b", Password: "hunter22", Name: "X"}, "Username cannot contain @"},
		{NewUser{Username: "x", Password: "123", Name: "X"}, "Password must be at least 6 characters"},
		{NewUser{Username: "x", Password: "hunter22", Name: "X", Role: "root"}, "Invalid role"},
	}
	for _, tc := range tests {
		_, err := svc.CreateUser(ctx, tc.in)
		require.Equal(t, tc.want, apperr.PublicMessage(err))
	}
}

func TestEnsureAdmin(t *testing.T) {
	t.Parallel()

	svc, st := newService(t)
	ctx := context.Background()
	cfg := config.AdminBootstrap{Email: "admin@example.com", Password: "change-me", Name: "Root"}

	require.NoError(t, svc.EnsureAdmin(ctx, cfg))
	require.NoError(t, svc.EnsureAdmin(ctx, cfg))

	admins, err := st.ListUsers(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, 1000, admins[0].Credits.SMSCredits)
	require.Equal(t, 100, admins[0].Credits.VoiceCredits)

	// nothing configured
	require.NoError(t, svc.EnsureAdmin(ctx, config.AdminBootstrap{}))
}
