package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/auth"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

// accountErr turns a failed account operation into what the REPL shows.
func (a *App) accountErr(err error) error {
	if errors.Is(err, auth.ErrNotAuthenticated) {
		a.authed.Store(false)
		fmt.Fprintln(a.out, "You are not logged in.")
		return errReported
	}
	return shown(err)
}

// Profile prints the account together with its verification state.
func (a *App) Profile(ctx context.Context) error {
	ov, err := a.account.Overview(ctx)
	if err != nil {
		return a.accountErr(err)
	}
	printUser(a, ov.User)

	verified := "no"
	if ov.Verification.IsVerified {
		verified = "yes"
		if !ov.Verification.VerifiedAt.IsZero() {
			verified += " (" + ov.Verification.VerifiedAt.Format(time.DateOnly) + ")"
		}
	}
	fmt.Fprintf(a.out, "  email verified: %s\n", verified)
	return nil
}

func printUser(a *App, u *session.User) {
	if u == nil {
		return
	}
	fmt.Fprintf(a.out, "  id:     %d\n", u.ID)
	fmt.Fprintf(a.out, "  name:   %s\n", u.Name)
	fmt.Fprintf(a.out, "  email:  %s\n", u.Email)
	if u.IsFederated() {
		fmt.Fprintf(a.out, "  signed up with: %s\n", u.AuthType)
	}
	twoFA := "off"
	if u.TwoFactorEnabled {
		twoFA = "on"
	}
	fmt.Fprintf(a.out, "  two-factor: %s\n", twoFA)
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(a.out, "  member since: %s\n", u.CreatedAt.Format(time.DateOnly))
	}
}

// EditProfile changes the name and/or email. Empty answers keep the current
// value.
func (a *App) EditProfile(ctx context.Context) error {
	if !a.isLoggedIn() {
		return a.accountErr(auth.ErrNotAuthenticated)
	}
	name, err := a.prompt("New name (empty to keep)")
	if err != nil {
		return err
	}
	email, err := a.prompt("New email (empty to keep)")
	if err != nil {
		return err
	}
	if name == "" && email == "" {
		fmt.Fprintln(a.out, "Nothing to change.")
		return nil
	}

	u, err := a.account.UpdateProfile(ctx, auth.ProfileUpdate{Name: name, Email: email})
	if err != nil {
		return a.accountErr(err)
	}
	fmt.Fprintln(a.out, "Profile updated.")
	printUser(a, u)
	return nil
}

// ChangePassword asks for the current password and a new one.
func (a *App) ChangePassword(ctx context.Context) error {
	if !a.isLoggedIn() {
		return a.accountErr(auth.ErrNotAuthenticated)
	}
	current, err := a.secret("Current password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)

	next, err := a.newPassword("New password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)

	if err := a.account.ChangePassword(ctx, string(current), string(next)); err != nil {
		return a.accountErr(err)
	}
	fmt.Fprintln(a.out, "Password changed.")
	return nil
}

// DeleteAccount removes the account after an explicit confirmation.
func (a *App) DeleteAccount(ctx context.Context) error {
	if !a.isLoggedIn() {
		return a.accountErr(auth.ErrNotAuthenticated)
	}
	ok, err := Confirm(a.reader, "This permanently deletes your account. Continue?", a.out)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}
	password, err := a.secret("Password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.account.DeleteAccount(ctx, string(password)); err != nil {
		return a.accountErr(err)
	}
	a.authed.Store(false)
	fmt.Fprintln(a.out, "Account deleted.")
	return nil
}

// TwoFactor handles "2fa setup", "2fa confirm" and "2fa disable".
func (a *App) TwoFactor(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: 2fa setup|confirm|disable")
		return nil
	}
	switch args[0] {
	case "setup":
		return a.setupTwoFactor(ctx)
	case "confirm":
		return a.confirmTwoFactor(ctx)
	case "disable":
		password, err := a.secret("Password")
		if err != nil {
			return err
		}
		defer common.WipeByteArray(password)
		if err := a.account.DisableTwoFactor(ctx, string(password)); err != nil {
			return a.accountErr(err)
		}
		fmt.Fprintln(a.out, "Two-factor authentication disabled.")
		return nil
	default:
		fmt.Fprintln(a.out, "Usage: 2fa setup|confirm|disable")
		return nil
	}
}

func (a *App) setupTwoFactor(ctx context.Context) error {
	setup, err := a.account.SetupTwoFactor(ctx)
	if err != nil {
		return a.accountErr(err)
	}

	fmt.Fprintln(a.out, "Add this account to your authenticator app:")
	if key, err := setup.Key(); err == nil {
		fmt.Fprintf(a.out, "  issuer:  %s\n", key.Issuer())
		fmt.Fprintf(a.out, "  account: %s\n", key.AccountName())
	}
	fmt.Fprintf(a.out, "  secret:  %s\n", setup.Secret)
	if setup.URI != "" {
		fmt.Fprintf(a.out, "  uri:     %s\n", setup.URI)
	}
	if len(setup.BackupCodes) > 0 {
		fmt.Fprintf(a.out, "Backup codes (keep them safe): %s\n", strings.Join(setup.BackupCodes, " "))
	}
	fmt.Fprintln(a.out, "Two-factor authentication is not active until you confirm a code.")
	return a.confirmTwoFactor(ctx)
}

func (a *App) confirmTwoFactor(ctx context.Context) error {
	code, err := a.prompt("Enter the 6-digit code to confirm (empty to do it later with '2fa confirm')")
	if err != nil {
		return err
	}
	if code == "" {
		return nil
	}
	codes, err := a.account.ConfirmTwoFactor(ctx, code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCode) {
			fmt.Fprintln(a.out, "Codes are 6 digits.")
			return errReported
		}
		return a.accountErr(err)
	}
	fmt.Fprintln(a.out, "Two-factor authentication enabled.")
	if len(codes) > 0 {
		fmt.Fprintf(a.out, "Backup codes (keep them safe): %s\n", strings.Join(codes, " "))
	}
	return nil
}
