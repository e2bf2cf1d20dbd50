// Package firebase implements the external collaborators against the real
// services: Identity Toolkit for password auth, Firestore for the
// queryable store and its change feeds, Cloud Storage for image uploads.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"firebase.google.com/go/v4/auth"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"

	"local.dev/socialfeed-client/internal/backend"
	"local.dev/socialfeed-client/internal/models"
)

const identityToolkitURL = "https://identitytoolkit.googleapis.com/v1"

// Identity signs users in through the Identity Toolkit REST API (there is
// no Go client SDK for password auth). The admin auth client, when
// configured, revokes refresh tokens on sign-out; without it sign-out is
// local only.
type Identity struct {
	apiKey string
	admin  *auth.Client
	client *http.Client
}

func NewIdentity(apiKey string, admin *auth.Client) *Identity {
	return &Identity{
		apiKey: apiKey,
		admin:  admin,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type tokenResponse struct {
	IDToken      string `json:"idToken"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"` // seconds, as a string
	LocalID      string `json:"localId"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Identity) call(ctx context.Context, endpoint string, body any, out *tokenResponse) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/accounts:%s?key=%s", identityToolkitURL, endpoint, a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return &backend.AuthError{Code: "NETWORK", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		code := apiErr.Error.Message
		if code == "" {
			code = resp.Status
		}
		return &backend.AuthError{Code: code}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *Identity) SignUp(ctx context.Context, email, password string) (string, error) {
	var out tokenResponse
	err := a.call(ctx, "signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.LocalID, nil
}

func (a *Identity) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	var out tokenResponse
	err := a.call(ctx, "signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &out)
	if err != nil {
		return nil, err
	}

	expiresAt := tokenExpiry(out.IDToken)
	if expiresAt.IsZero() {
		if secs, err := strconv.Atoi(out.ExpiresIn); err == nil {
			expiresAt = time.Now().Add(time.Duration(secs) * time.Second)
		}
	}
	return &models.Session{
		UserID:       out.LocalID,
		Email:        out.Email,
		IDToken:      out.IDToken,
		RefreshToken: out.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

func (a *Identity) SignOut(ctx context.Context, session *models.Session) error {
	if a.admin == nil || session == nil {
		return nil
	}
	if err := a.admin.RevokeRefreshTokens(ctx, session.UserID); err != nil {
		glog.Errorf("firebase: revoke tokens for %s: %v", session.UserID, err)
		return &backend.AuthError{Code: "REVOKE_FAILED", Message: err.Error()}
	}
	return nil
}

// tokenExpiry reads the exp claim from the id token without verifying the
// signature; the token is ours, straight from the provider.
func tokenExpiry(idToken string) time.Time {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(idToken, gojwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
