package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"local.dev/socialfeed-client/internal/backend"
	"local.dev/socialfeed-client/internal/models"
)

// Identity is the offline identity provider. Plaintext credentials, dev
// use only.
type Identity struct {
	mu    sync.Mutex
	creds map[string]credential // email (lowercased) -> credential
}

type credential struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

func NewIdentity() *Identity {
	return &Identity{creds: map[string]credential{}}
}

func (a *Identity) Load(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = readJSONFile(path, &a.creds)
}

func (a *Identity) Save(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_ = writeJSONFile(path, a.creds)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Identity) SignUp(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", &backend.AuthError{Code: "INVALID_ARGUMENT", Message: "email and password required"}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.creds[email]; ok {
		return "", &backend.AuthError{Code: "EMAIL_EXISTS"}
	}
	uid := uuid.NewString()
	a.creds[email] = credential{UserID: uid, Password: password}
	return uid, nil
}

func (a *Identity) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	email = normalizeEmail(email)
	a.mu.Lock()
	defer a.mu.Unlock()
	cred, ok := a.creds[email]
	if !ok {
		return nil, &backend.AuthError{Code: "EMAIL_NOT_FOUND"}
	}
	if cred.Password != password {
		return nil, &backend.AuthError{Code: "INVALID_PASSWORD"}
	}
	return &models.Session{
		UserID:    cred.UserID,
		Email:     email,
		IDToken:   "offline-" + uuid.NewString(),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (a *Identity) SignOut(ctx context.Context, session *models.Session) error {
	return nil
}
