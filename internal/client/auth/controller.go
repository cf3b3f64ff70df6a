package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/client/gateway"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Outcome is how a login attempt ended when it did not fail outright.
type Outcome int

const (
	// OutcomeAuthenticated: the session is stored and User is set.
	OutcomeAuthenticated Outcome = iota + 1
	// OutcomeMFARequired: the password was accepted and Challenge is pending
	// on the Resolver. No session exists yet.
	OutcomeMFARequired
	// OutcomeEmailUnverified: the account must confirm its email first.
	OutcomeEmailUnverified
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeMFARequired:
		return "mfa_required"
	case OutcomeEmailUnverified:
		return "email_unverified"
	default:
		return "unknown"
	}
}

type LoginResult struct {
	Outcome   Outcome
	User      *session.User
	Challenge Challenge
	// Email is the address the attempt was made with, for offering a
	// verification resend.
	Email   string
	Message string
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Controller runs login, logout and registration.
type Controller struct {
	api          API
	store        SessionStore
	mfa          *Resolver
	log          logging.Logger
	serverLogout bool
}

// NewController wires a controller to mfa. A nil mfa gets a private Resolver,
// reachable through Resolver().
func NewController(api API, store SessionStore, mfa *Resolver, opts ...Option) *Controller {
	o := buildOptions(opts)
	if mfa == nil {
		mfa = NewResolver(api, store, opts...)
	}
	return &Controller{
		api:          api,
		store:        store,
		mfa:          mfa,
		log:          o.log,
		serverLogout: o.serverLogout,
	}
}

// Login submits primary credentials. A fresh attempt discards any pending
// challenge from an earlier one.
func (c *Controller) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	c.mfa.Cancel()
	email = strings.TrimSpace(email)

	res, err := c.api.Do(ctx, http.MethodPost, PathLogin, credentials{Email: email, Password: password},
		gateway.WithoutAuth(), gateway.Silent())
	if err != nil {
		if ge, ok := gateway.AsError(err); ok && ge.Kind == gateway.KindServer && unverified(ge.Status, ge.Message, ge.Fields) {
			return &LoginResult{Outcome: OutcomeEmailUnverified, Email: email, Message: ge.Message}, nil
		}
		if errors.Is(err, gateway.ErrSessionExpired) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if res.Fields.Bool("requires_2fa") {
		ch, err := decodeChallenge(res.Fields)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		c.mfa.Begin(ch)
		c.log.Info(ctx, "second factor required", "user_id", ch.UserID)
		return &LoginResult{Outcome: OutcomeMFARequired, Challenge: ch, Email: email, Message: res.Message()}, nil
	}

	if !res.Fields.Has("token") {
		if unverified(res.Status, res.Message(), res.Fields) {
			return &LoginResult{Outcome: OutcomeEmailUnverified, Email: email, Message: res.Message()}, nil
		}
		return nil, fmt.Errorf("login: %w", ErrNoToken)
	}

	var u *session.User
	if res.Fields.Has("user") {
		u, err = decodeUser(res)
	} else {
		u, err = fetchProfile(ctx, c.api, c.store)
	}
	if err != nil {
		return nil, fmt.Errorf("login profile: %w", err)
	}
	c.log.Info(ctx, "logged in", "user_id", u.ID)
	return &LoginResult{Outcome: OutcomeAuthenticated, User: u, Email: email, Message: res.Message()}, nil
}

// unverified recognises the backend's "confirm your email first" answers.
func unverified(status int, message string, f gateway.Fields) bool {
	if f.Bool("needs_verification") {
		return true
	}
	if f.Has("email_verified") && !f.Bool("email_verified") {
		return true
	}
	return status == http.StatusForbidden && strings.Contains(strings.ToLower(message), "not verified")
}

// Logout ends the local session. It succeeds with or without a session and
// cancels any pending challenge. With server logout enabled the backend is
// told as well; that call's failure is logged and otherwise ignored.
func (c *Controller) Logout(ctx context.Context) error {
	c.mfa.Cancel()
	token, hadSession := c.store.Load(ctx)

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	c.log.Info(ctx, "logged out", "had_session", hadSession)

	if c.serverLogout && hadSession {
		_, err := c.api.Do(ctx, http.MethodPost, PathLogout, nil,
			gateway.WithoutAuth(), gateway.WithHeader("Authorization", "Bearer "+token), gateway.Silent())
		if err != nil {
			c.log.Warn(ctx, "server logout failed", "error", err)
		}
	}
	return nil
}

// Register creates an account. The new account usually has to verify its
// email before it can log in; no session is created.
func (c *Controller) Register(ctx context.Context, req RegisterRequest) (*session.User, string, error) {
	req.Email = strings.TrimSpace(req.Email)
	res, err := c.api.Do(ctx, http.MethodPost, PathRegister, req, gateway.WithoutAuth(), gateway.Silent())
	if err != nil {
		return nil, "", fmt.Errorf("register: %w", err)
	}
	if !res.Fields.Has("user") {
		return nil, res.Message(), nil
	}
	u, err := decodeUser(res)
	if err != nil {
		return nil, "", fmt.Errorf("register: %w", err)
	}
	return u, res.Message(), nil
}

// CurrentUser returns the cached profile, fetching it when a session exists
// but nothing is cached.
func (c *Controller) CurrentUser(ctx context.Context) (*session.User, error) {
	if _, ok := c.store.Load(ctx); !ok {
		return nil, ErrNotAuthenticated
	}
	if u, ok := c.store.LoadUser(ctx); ok {
		return u, nil
	}
	return fetchProfile(ctx, c.api, c.store)
}

// Authenticated reports whether a live session is stored.
func (c *Controller) Authenticated(ctx context.Context) bool {
	_, ok := c.store.Load(ctx)
	return ok
}

// Resolver exposes the second-factor resolver started by Login.
func (c *Controller) Resolver() *Resolver {
	return c.mfa
}
