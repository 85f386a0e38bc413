package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/centsible/centsible/pkg/session"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Session is an issued sign-in: the token pair plus the identity it belongs
// to. Tokens are modeled as oauth2.Token so refresh plumbing can reuse the
// standard TokenSource machinery.
type Session struct {
	Token    *oauth2.Token
	Identity session.Identity
}

// Client talks to the hosted auth provider. Identity records are owned by
// the provider and read-only here.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID       string `json:"id"`
		Metadata struct {
			Username    string `json:"username"`
			DisplayName string `json:"displayname"`
		} `json:"user_metadata"`
	} `json:"user"`
}

// SignUp registers a new account. Username and display name travel as user
// metadata and are mirrored into the profiles table by the provider.
func (c *Client) SignUp(ctx context.Context, email, password, username, displayName string) (Session, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data": map[string]string{
			"username":    username,
			"displayname": displayName,
		},
	}
	return c.requestSession(ctx, "/auth/v1/signup", payload)
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	payload := map[string]string{"email": email, "password": password}
	return c.requestSession(ctx, "/auth/v1/token?grant_type=password", payload)
}

// SignOut revokes the session's refresh token.
func (c *Client) SignOut(ctx context.Context, token *oauth2.Token) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.apiKey)
	token.SetAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sign-out failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sign-out rejected with status %d", resp.StatusCode)
	}
	return nil
}

// refresh exchanges a refresh token for a new session.
func (c *Client) refresh(ctx context.Context, refreshToken string) (Session, error) {
	payload := map[string]string{"refresh_token": refreshToken}
	return c.requestSession(ctx, "/auth/v1/token?grant_type=refresh_token", payload)
}

func (c *Client) requestSession(ctx context.Context, path string, payload any) (Session, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Session{}, fmt.Errorf("could not read auth response: %w", err)
	}
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		log.Debugf("auth provider rejected request: %s", raw)
		return Session{}, ErrInvalidCredentials
	}
	if resp.StatusCode >= 300 {
		return Session{}, fmt.Errorf("auth provider returned status %d: %s", resp.StatusCode, raw)
	}

	var parsed tokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Session{}, fmt.Errorf("could not decode auth response: %w", err)
	}
	if parsed.AccessToken == "" {
		return Session{}, fmt.Errorf("auth response carried no access token")
	}

	return Session{
		Token: &oauth2.Token{
			AccessToken:  parsed.AccessToken,
			RefreshToken: parsed.RefreshToken,
			TokenType:    "Bearer",
			Expiry:       time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
		},
		Identity: session.Identity{
			ID:          parsed.User.ID,
			Username:    parsed.User.Metadata.Username,
			DisplayName: parsed.User.Metadata.DisplayName,
		},
	}, nil
}
