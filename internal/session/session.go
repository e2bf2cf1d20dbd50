// Package session holds the authenticated user's session: one instance per
// process, created on sign-in, destroyed on sign-out or token expiry.
// Everything else reads it through Current; only the sign-in/sign-out flow
// replaces it.
package session

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/golang/glog"

	"local.dev/socialfeed-client/internal/backend"
	"local.dev/socialfeed-client/internal/models"
)

type ChangeFunc func(*models.Session)

type Manager struct {
	identity backend.Identity
	store    backend.DataStore

	mu      sync.Mutex
	current *models.Session

	cbMu      sync.Mutex
	callbacks map[int]ChangeFunc
	nextCb    int
}

func NewManager(identity backend.Identity, store backend.DataStore) *Manager {
	return &Manager{
		identity:  identity,
		store:     store,
		callbacks: map[int]ChangeFunc{},
	}
}

// SignUp registers the account, creates the profile record for the new
// user, then signs in.
func (m *Manager) SignUp(ctx context.Context, email, password, username string) (*models.Session, error) {
	uid, err := m.identity.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := m.store.InsertProfile(ctx, models.Profile{
		ID:       uid,
		Username: username,
	}); err != nil {
		// The account exists either way; the profile row can be backfilled.
		glog.Errorf("session: profile insert for %s: %v", uid, err)
	}
	return m.SignIn(ctx, email, password)
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	sess, err := m.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	m.set(sess)
	return sess, nil
}

func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	sess := m.current
	m.mu.Unlock()
	if sess == nil {
		return nil
	}
	err := m.identity.SignOut(ctx, sess)
	m.set(nil)
	return err
}

// Current returns the live session, or nil when signed out. An expired
// token counts as signed out; the first read past expiry tears the session
// down and fires the change callbacks.
func (m *Manager) Current() *models.Session {
	m.mu.Lock()
	sess := m.current
	expired := sess != nil && sess.Expired()
	m.mu.Unlock()
	if expired {
		glog.Infof("session: token for %s expired", sess.UserID)
		m.set(nil)
		return nil
	}
	if sess == nil {
		return nil
	}
	cp := *sess
	return &cp
}

// OnChange registers a callback for session transitions. The returned func
// unsubscribes.
func (m *Manager) OnChange(fn ChangeFunc) func() {
	m.cbMu.Lock()
	id := m.nextCb
	m.nextCb++
	m.callbacks[id] = fn
	m.cbMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.cbMu.Lock()
			delete(m.callbacks, id)
			m.cbMu.Unlock()
		})
	}
}

func (m *Manager) set(sess *models.Session) {
	m.mu.Lock()
	same := m.current == nil && sess == nil
	m.current = sess
	m.mu.Unlock()
	if same {
		return
	}

	m.cbMu.Lock()
	fns := make([]ChangeFunc, 0, len(m.callbacks))
	for _, fn := range m.callbacks {
		fns = append(fns, fn)
	}
	m.cbMu.Unlock()
	for _, fn := range fns {
		fn(sess)
	}
}

// Restore installs a previously persisted session without a sign-in round
// trip. Expired sessions are ignored.
func (m *Manager) Restore(sess *models.Session) {
	if sess == nil || sess.Expired() {
		return
	}
	m.set(sess)
}

// ===== file persistence for the CLI =====

func Load(path string) *models.Session {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var sess models.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil
	}
	return &sess
}

func Save(path string, sess *models.Session) error {
	if sess == nil {
		return os.Remove(path)
	}
	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
