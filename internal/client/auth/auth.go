// Package auth drives the interactive authentication flows of the client:
// primary login, the second-factor challenge that may follow it, logout, and
// account-level operations that need an authenticated session.
//
// All backend traffic goes through an API (normally *gateway.Gateway), which
// keeps the credential store in step with every response. The flows here only
// interpret outcomes: they never write the bearer token themselves, except
// for a federated login whose token arrives in a callback URL instead.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/client/gateway"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// Backend endpoints, relative to the API base URL.
const (
	PathRegister       = "/auth/register"
	PathLogin          = "/auth/login"
	PathLogout         = "/auth/logout"
	PathVerify2FA      = "/auth/verify-2fa"
	PathSetup2FA       = "/auth/setup-2fa"
	PathConfirm2FA     = "/auth/confirm-2fa"
	PathDisable2FA     = "/auth/disable-2fa"
	PathProfile        = "/user/profile"
	PathChangePassword = "/user/change-password"
	PathDeleteAccount  = "/user/delete-account"
	PathVerifyStatus   = "/user/verification-status"
)

var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrInvalidCode          = errors.New("invalid verification code")
	ErrCodeRejected         = errors.New("verification code rejected")
	ErrNoChallenge          = errors.New("no second-factor challenge pending")
	ErrVerificationInFlight = errors.New("verification already in progress")
	ErrNotAuthenticated     = errors.New("not logged in")
	ErrNoToken              = errors.New("response carried no session token")
	ErrNoProfile            = errors.New("response carried no user profile")
)

// API is the backend call surface. *gateway.Gateway implements it.
type API interface {
	Do(ctx context.Context, method, path string, body any, opts ...gateway.RequestOption) (*gateway.Response, error)
}

// SessionStore is the part of the credential store the flows use.
// *session.Store implements it.
type SessionStore interface {
	Load(ctx context.Context) (string, bool)
	LoadUser(ctx context.Context) (*session.User, bool)
	SaveUser(ctx context.Context, u *session.User) error
	SaveSession(ctx context.Context, token string, u *session.User) error
	Clear(ctx context.Context) error
}

type options struct {
	log          logging.Logger
	serverLogout bool
	issuer       string
}

// Option configures a Controller, Resolver or Account.
type Option func(*options)

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithServerLogout makes Logout also notify the backend. The local session is
// cleared either way.
func WithServerLogout(enabled bool) Option {
	return func(o *options) { o.serverLogout = enabled }
}

// WithIssuer names the service in provisioning URIs built for authenticator
// apps when the backend does not send one.
func WithIssuer(issuer string) Option {
	return func(o *options) { o.issuer = issuer }
}

func buildOptions(opts []Option) options {
	o := options{log: logging.Nop(), issuer: DefaultIssuer}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// fetchProfile reads the profile from the backend and caches it.
func fetchProfile(ctx context.Context, api API, store SessionStore, opts ...gateway.RequestOption) (*session.User, error) {
	res, err := api.Do(ctx, http.MethodGet, PathProfile, nil, opts...)
	if err != nil {
		return nil, err
	}
	u, err := decodeUser(res)
	if err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if err := store.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return u, nil
}

// decodeUser accepts {"user": {...}}, {"profile": {...}} or a bare user object.
func decodeUser(res *gateway.Response) (*session.User, error) {
	for _, key := range []string{"user", "profile"} {
		if res.Fields.Has(key) {
			var u session.User
			if err := res.Fields.Decode(key, &u); err != nil {
				return nil, err
			}
			return &u, nil
		}
	}
	if !res.Fields.Has("id") {
		return nil, ErrNoProfile
	}
	var u session.User
	if err := res.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}
