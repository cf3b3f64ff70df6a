package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/strength"
	"github.com/pquerna/otp"
	"golang.org/x/sync/errgroup"
)

// DefaultIssuer labels provisioning URIs built on the client.
const DefaultIssuer = common.AppName

var ErrNoProvisioningURI = errors.New("no provisioning uri")

// TwoFactorSetup is what the backend returns when 2FA enrolment starts.
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qr_code"`
	URI         string   `json:"uri,omitempty"`
	BackupCodes []string `json:"backup_codes"`
}

// Key parses the provisioning URI into an otp.Key, for rendering or for
// checking the parameters an authenticator app will use.
func (s TwoFactorSetup) Key() (*otp.Key, error) {
	if s.URI == "" {
		return nil, ErrNoProvisioningURI
	}
	return otp.NewKeyFromURL(s.URI)
}

type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Overview is the profile together with the verification state.
type Overview struct {
	User         *session.User
	Verification session.VerificationStatus
}

// Account holds operations on the logged-in account.
type Account struct {
	api    API
	store  SessionStore
	log    logging.Logger
	issuer string
}

func NewAccount(api API, store SessionStore, opts ...Option) *Account {
	o := buildOptions(opts)
	return &Account{api: api, store: store, log: o.log, issuer: o.issuer}
}

func (a *Account) requireSession(ctx context.Context) error {
	if _, ok := a.store.Load(ctx); !ok {
		return ErrNotAuthenticated
	}
	return nil
}

// Profile fetches the profile from the backend and refreshes the cache.
func (a *Account) Profile(ctx context.Context) (*session.User, error) {
	if err := a.requireSession(ctx); err != nil {
		return nil, err
	}
	return fetchProfile(ctx, a.api, a.store)
}

func (a *Account) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*session.User, error) {
	if err := a.requireSession(ctx); err != nil {
		return nil, err
	}
	res, err := a.api.Do(ctx, http.MethodPut, PathProfile, upd)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	u, err := decodeUser(res)
	if errors.Is(err, ErrNoProfile) {
		return fetchProfile(ctx, a.api, a.store)
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if err := a.store.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return u, nil
}

// ChangePassword replaces the password. The new one must pass the strength
// check before anything is sent.
func (a *Account) ChangePassword(ctx context.Context, current, next string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	if err := strength.Check(next); err != nil {
		return err
	}
	body := map[string]string{"current_password": current, "new_password": next}
	if _, err := a.api.Do(ctx, http.MethodPost, PathChangePassword, body); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

// DeleteAccount removes the account and, on success, the local session.
func (a *Account) DeleteAccount(ctx context.Context, password string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	if _, err := a.api.Do(ctx, http.MethodPost, PathDeleteAccount, map[string]string{"password": password}); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	a.log.Info(ctx, "account deleted")
	return nil
}

// SetupTwoFactor starts enrolment. 2FA is not active until ConfirmTwoFactor
// succeeds. When the backend sends no provisioning URI one is built from the
// secret and the cached email.
func (a *Account) SetupTwoFactor(ctx context.Context) (*TwoFactorSetup, error) {
	if err := a.requireSession(ctx); err != nil {
		return nil, err
	}
	res, err := a.api.Do(ctx, http.MethodPost, PathSetup2FA, nil)
	if err != nil {
		return nil, fmt.Errorf("setup 2fa: %w", err)
	}
	var setup TwoFactorSetup
	if err := res.Decode(&setup); err != nil {
		return nil, fmt.Errorf("setup 2fa: %w", err)
	}
	if setup.URI == "" && setup.Secret != "" {
		account := ""
		if u, ok := a.store.LoadUser(ctx); ok {
			account = u.Email
		}
		setup.URI = provisioningURI(a.issuer, account, setup.Secret)
	}
	return &setup, nil
}

func provisioningURI(issuer, account, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + issuer + ":" + account,
		RawQuery: v.Encode(),
	}
	return u.String()
}

// ConfirmTwoFactor activates 2FA with a code from the authenticator app and
// returns the backup codes.
func (a *Account) ConfirmTwoFactor(ctx context.Context, code string) ([]string, error) {
	if err := a.requireSession(ctx); err != nil {
		return nil, err
	}
	if !isOTP(code) {
		return nil, ErrInvalidCode
	}
	res, err := a.api.Do(ctx, http.MethodPost, PathConfirm2FA, map[string]string{"token": code})
	if err != nil {
		return nil, fmt.Errorf("confirm 2fa: %w", err)
	}
	var codes []string
	if res.Fields.Has("backup_codes") {
		if err := res.Fields.Decode("backup_codes", &codes); err != nil {
			return nil, fmt.Errorf("confirm 2fa: %w", err)
		}
	}
	if _, err := fetchProfile(ctx, a.api, a.store); err != nil {
		a.log.Warn(ctx, "profile refresh after 2fa confirm failed", "error", err)
	}
	return codes, nil
}

func (a *Account) DisableTwoFactor(ctx context.Context, password string) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	if _, err := a.api.Do(ctx, http.MethodPost, PathDisable2FA, map[string]string{"password": password}); err != nil {
		return fmt.Errorf("disable 2fa: %w", err)
	}
	if _, err := fetchProfile(ctx, a.api, a.store); err != nil {
		a.log.Warn(ctx, "profile refresh after 2fa disable failed", "error", err)
	}
	return nil
}

// Overview fetches the profile and the verification state concurrently.
func (a *Account) Overview(ctx context.Context) (*Overview, error) {
	if err := a.requireSession(ctx); err != nil {
		return nil, err
	}

	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := fetchProfile(gctx, a.api, a.store)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		out.User = u
		return nil
	})
	g.Go(func() error {
		res, err := a.api.Do(gctx, http.MethodGet, PathVerifyStatus, nil)
		if err != nil {
			return fmt.Errorf("verification status: %w", err)
		}
		if err := res.Decode(&out.Verification); err != nil {
			return fmt.Errorf("verification status: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
