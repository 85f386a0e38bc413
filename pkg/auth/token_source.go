package auth

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// refreshingSource renews the session through the provider's refresh grant
// whenever the current access token expires.
type refreshingSource struct {
	ctx     context.Context
	client  *Client
	current *oauth2.Token
}

func (s *refreshingSource) Token() (*oauth2.Token, error) {
	if s.current.Valid() {
		return s.current, nil
	}
	if s.current.RefreshToken == "" {
		return nil, fmt.Errorf("session expired and no refresh token available")
	}
	renewed, err := s.client.refresh(s.ctx, s.current.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("could not refresh session: %w", err)
	}
	log.Debug("session token refreshed")
	s.current = renewed.Token
	return s.current, nil
}

// TokenSource returns a caching oauth2.TokenSource for the session, renewing
// through the refresh grant on expiry. The returned source is safe for
// concurrent use.
func (c *Client) TokenSource(ctx context.Context, sess Session) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(sess.Token, &refreshingSource{
		ctx:     ctx,
		client:  c,
		current: sess.Token,
	})
}
