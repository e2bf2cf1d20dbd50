package session

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"local.dev/socialfeed-client/internal/backend"
	"local.dev/socialfeed-client/internal/memstore"
	"local.dev/socialfeed-client/internal/models"
)

func newManager() (*Manager, *memstore.Store) {
	store := memstore.NewStore()
	return NewManager(memstore.NewIdentity(), store), store
}

func TestSignUpCreatesProfileAndSignsIn(t *testing.T) {
	m, store := newManager()
	ctx := context.Background()

	sess, err := m.SignUp(ctx, "alice@example.com", "secret", "alice")
	assert.Equal(t, nil, err)
	assert.NotEqual(t, "", sess.UserID)
	assert.Equal(t, "alice@example.com", sess.Email)

	prof, err := store.ProfileByID(ctx, sess.UserID)
	assert.Equal(t, nil, err)
	assert.Equal(t, "alice", prof.Username)

	current := m.Current()
	assert.NotEqual(t, nil, current)
	assert.Equal(t, sess.UserID, current.UserID)
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	_, err := m.SignUp(ctx, "alice@example.com", "secret", "alice")
	assert.Equal(t, nil, err)

	_, err = m.SignIn(ctx, "alice@example.com", "wrong")
	authErr, ok := err.(*backend.AuthError)
	assert.Equal(t, true, ok)
	assert.Equal(t, "INVALID_PASSWORD", authErr.Code)

	_, err = m.SignIn(ctx, "nobody@example.com", "secret")
	authErr, ok = err.(*backend.AuthError)
	assert.Equal(t, true, ok)
	assert.Equal(t, "EMAIL_NOT_FOUND", authErr.Code)
}

func TestSignOutClearsSessionAndNotifies(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	var transitions []*models.Session
	unsubscribe := m.OnChange(func(s *models.Session) {
		transitions = append(transitions, s)
	})
	defer unsubscribe()

	_, err := m.SignUp(ctx, "alice@example.com", "secret", "alice")
	assert.Equal(t, nil, err)
	err = m.SignOut(ctx)
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, m.Current())
	assert.Equal(t, 2, len(transitions))
	assert.NotEqual(t, nil, transitions[0])
	assert.Equal(t, nil, transitions[1])

	// Unsubscribed callbacks stop firing.
	unsubscribe()
	_, err = m.SignIn(ctx, "alice@example.com", "secret")
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, len(transitions))
}

func TestExpiredSessionTearsDown(t *testing.T) {
	m, _ := newManager()

	fired := 0
	m.OnChange(func(s *models.Session) { fired++ })

	m.Restore(&models.Session{
		UserID:    "u1",
		IDToken:   "tok",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	assert.Equal(t, 1, fired)

	// Force expiry; the first read past it tears the session down once.
	m.mu.Lock()
	m.current.ExpiresAt = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	assert.Equal(t, nil, m.Current())
	assert.Equal(t, nil, m.Current())
	assert.Equal(t, 2, fired)
}

func TestRestoreIgnoresExpired(t *testing.T) {
	m, _ := newManager()
	m.Restore(&models.Session{
		UserID:    "u1",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	assert.Equal(t, nil, m.Current())
}

func TestCurrentReturnsCopy(t *testing.T) {
	m, _ := newManager()
	ctx := context.Background()

	_, err := m.SignUp(ctx, "alice@example.com", "secret", "alice")
	assert.Equal(t, nil, err)

	cp := m.Current()
	cp.UserID = "tampered"
	assert.NotEqual(t, "tampered", m.Current().UserID)
}
