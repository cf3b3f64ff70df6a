package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/client/session"
)

// PathOAuthCallback is the front-end route the backend redirects to after a
// sign-in with an external provider. The query carries either "error" or
// "token" plus a JSON "user".
const PathOAuthCallback = "/oauth/callback"

var (
	ErrFederatedLogin     = errors.New("provider refused the login")
	ErrIncompleteCallback = errors.New("callback carries no session")
)

// IsCallback reports whether rawURL points at the federated login callback.
func IsCallback(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.TrimRight(strings.ToLower(u.Path), "/"), PathOAuthCallback)
}

// AdoptCallback turns a federated login callback into a local session. An
// "error" parameter wins over everything else; otherwise both token and user
// must be present and the user must decode. Any pending challenge is dropped.
func (c *Controller) AdoptCallback(ctx context.Context, rawURL string) (*session.User, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompleteCallback, err)
	}
	q := u.Query()

	if reason := strings.TrimSpace(q.Get("error")); reason != "" {
		c.log.Info(ctx, "federated login refused", "reason", reason)
		return nil, fmt.Errorf("%w: %s", ErrFederatedLogin, reason)
	}

	token, rawUser := strings.TrimSpace(q.Get("token")), q.Get("user")
	if token == "" || strings.TrimSpace(rawUser) == "" {
		return nil, ErrIncompleteCallback
	}
	var user session.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, fmt.Errorf("%w: user: %w", ErrIncompleteCallback, err)
	}

	c.mfa.Cancel()
	if err := c.store.SaveSession(ctx, token, &user); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.log.Info(ctx, "federated login adopted", "user_id", user.ID, "provider", user.AuthType)
	return &user, nil
}
