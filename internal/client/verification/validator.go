// Package verification handles the single-use tokens the backend mails out
// for password reset and email confirmation.
//
// A link is handled in two steps that are not atomic: CheckToken classifies
// the token without using it, ConsumeToken performs the action. The backend's
// answer to ConsumeToken is authoritative; a token that checked as valid may
// still be rejected, and nothing here caches the check result.
package verification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/client/gateway"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/strength"
)

const (
	PathTokenStatus   = "/verify-token-status/"
	PathResetPassword = "/auth/reset-password"
	PathVerifyEmail   = "/auth/verify-email/"
	PathForgot        = "/auth/forgot-password"
	PathResend        = "/auth/resend-verification"
	PathStatus        = "/user/verification-status"
)

var (
	ErrNoToken          = errors.New("no token in link")
	ErrMalformedToken   = errors.New("malformed token")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrUnknownPurpose   = errors.New("unknown token purpose")
)

// Purpose scopes a token to the action it may be used for.
type Purpose int

const (
	PurposePasswordReset Purpose = iota + 1
	PurposeEmailVerification
)

func (p Purpose) String() string {
	switch p {
	case PurposePasswordReset:
		return "password_reset"
	case PurposeEmailVerification:
		return "email_verification"
	default:
		return "unknown"
	}
}

// Status is the classification of a token pre-check. Exactly one applies.
type Status int

const (
	StatusValid Status = iota + 1
	StatusAlreadyUsed
	// StatusExpired also covers invalid and malformed tokens.
	StatusExpired
	StatusAccountNotFound
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusAlreadyUsed:
		return "already_used"
	case StatusExpired:
		return "expired"
	case StatusAccountNotFound:
		return "account_not_found"
	default:
		return "unknown"
	}
}

type Result struct {
	Status Status
	// Reason is the backend's explanation for a rejected token.
	Reason string
	// AlreadyVerified is set for a valid email token whose account is
	// verified already.
	AlreadyVerified bool
}

// Payload carries what ConsumeToken needs for the token's purpose. Password
// and Confirm are only used for a reset.
type Payload struct {
	Purpose  Purpose
	Password string
	Confirm  string
}

// API is the backend call surface. *gateway.Gateway implements it.
type API interface {
	Do(ctx context.Context, method, path string, body any, opts ...gateway.RequestOption) (*gateway.Response, error)
}

type Validator struct {
	api API
	log logging.Logger
}

type Option func(*Validator)

func WithLogger(l logging.Logger) Option {
	return func(v *Validator) { v.log = l }
}

func NewValidator(api API, opts ...Option) *Validator {
	v := &Validator{api: api, log: logging.Nop()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// ExtractToken pulls the token out of a link: the "token" query parameter if
// present, otherwise the last path segment. A bare token is returned as is.
func ExtractToken(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}
	if t := strings.TrimSpace(u.Query().Get("token")); t != "" {
		return t, nil
	}
	path := strings.TrimRight(u.Path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if strings.TrimSpace(path) == "" {
		return "", ErrNoToken
	}
	return path, nil
}

// PurposeFromURL guesses the purpose from the link's path.
func PurposeFromURL(rawURL string) (Purpose, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return 0, false
	}
	p := strings.ToLower(u.Path)
	switch {
	case strings.Contains(p, "reset"):
		return PurposePasswordReset, true
	case strings.Contains(p, "verify"), strings.Contains(p, "verification"):
		return PurposeEmailVerification, true
	default:
		return 0, false
	}
}

func malformed(token string) bool {
	return strings.TrimSpace(token) == "" || strings.Contains(token, "/")
}

// CheckToken asks the backend whether token can still be used, without using
// it. Any answer from the backend is classified; only a call that got no
// answer returns an error.
func (v *Validator) CheckToken(ctx context.Context, token string, purpose Purpose) (Result, error) {
	if malformed(token) {
		return Result{Status: StatusExpired, Reason: ErrMalformedToken.Error()}, nil
	}

	path := PathTokenStatus + url.PathEscape(token) + "?purpose=" + url.QueryEscape(purpose.String())
	res, err := v.api.Do(ctx, http.MethodGet, path, nil, gateway.WithoutAuth(), gateway.Silent())
	if err != nil {
		ge, ok := gateway.AsError(err)
		if !ok || ge.Kind == gateway.KindTransport {
			return Result{}, fmt.Errorf("check token: %w", err)
		}
		reason := reasonOf(ge.Fields)
		if reason == "" {
			reason = ge.Message
		}
		r := Result{Status: classify(reason), Reason: reason}
		v.log.Info(ctx, "token check rejected", "purpose", purpose.String(), "status", ge.Status, "result", r.Status.String())
		return r, nil
	}

	if res.Fields.Bool("valid") {
		return Result{Status: StatusValid, AlreadyVerified: res.Fields.Bool("already_verified")}, nil
	}
	reason := reasonOf(res.Fields)
	r := Result{Status: classify(reason), Reason: reason}
	v.log.Info(ctx, "token not usable", "purpose", purpose.String(), "result", r.Status.String())
	return r, nil
}

func reasonOf(f gateway.Fields) string {
	for _, key := range []string{"reason", "message", "error"} {
		if s := f.String(key); s != "" {
			return s
		}
	}
	return ""
}

// classify maps the backend's free-text reason onto a Status. Anything not
// recognised as "used" or "no such account" is treated as expired.
func classify(reason string) Status {
	r := strings.ToLower(reason)
	switch {
	case strings.Contains(r, "used"):
		return StatusAlreadyUsed
	case strings.Contains(r, "not found"), strings.Contains(r, "no account"):
		return StatusAccountNotFound
	default:
		return StatusExpired
	}
}

// ConsumeToken performs the action the token was issued for and returns the
// backend's confirmation message. A reset is checked locally first: the
// passwords must match and pass the strength check.
func (v *Validator) ConsumeToken(ctx context.Context, token string, p Payload) (string, error) {
	if malformed(token) {
		return "", ErrMalformedToken
	}

	var (
		res *gateway.Response
		err error
	)
	switch p.Purpose {
	case PurposePasswordReset:
		if p.Password != p.Confirm {
			return "", ErrPasswordMismatch
		}
		if err := strength.Check(p.Password); err != nil {
			return "", err
		}
		body := map[string]string{"token": token, "password": p.Password}
		res, err = v.api.Do(ctx, http.MethodPost, PathResetPassword, body, gateway.WithoutAuth(), gateway.Silent())
	case PurposeEmailVerification:
		res, err = v.api.Do(ctx, http.MethodGet, PathVerifyEmail+url.PathEscape(token), nil, gateway.WithoutAuth(), gateway.Silent())
	default:
		return "", ErrUnknownPurpose
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.Purpose, err)
	}
	v.log.Info(ctx, "token consumed", "purpose", p.Purpose.String())
	return res.Message(), nil
}

// RequestReset asks for a password-reset link. The backend answers the same
// way whether or not the address is registered.
func (v *Validator) RequestReset(ctx context.Context, email string) (string, error) {
	res, err := v.api.Do(ctx, http.MethodPost, PathForgot, map[string]string{"email": strings.TrimSpace(email)}, gateway.WithoutAuth())
	if err != nil {
		return "", fmt.Errorf("request reset: %w", err)
	}
	return res.Message(), nil
}

// ResendVerification asks for a new email-verification link.
func (v *Validator) ResendVerification(ctx context.Context, email string) (string, error) {
	res, err := v.api.Do(ctx, http.MethodPost, PathResend, map[string]string{"email": strings.TrimSpace(email)}, gateway.WithoutAuth())
	if err != nil {
		return "", fmt.Errorf("resend verification: %w", err)
	}
	return res.Message(), nil
}

// Status reports the logged-in account's verification state.
func (v *Validator) Status(ctx context.Context) (*session.VerificationStatus, error) {
	res, err := v.api.Do(ctx, http.MethodGet, PathStatus, nil)
	if err != nil {
		return nil, fmt.Errorf("verification status: %w", err)
	}
	var st session.VerificationStatus
	if err := res.Decode(&st); err != nil {
		return nil, fmt.Errorf("verification status: %w", err)
	}
	return &st, nil
}
