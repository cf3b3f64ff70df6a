package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/auth"
	"github.com/dmitrijs2005/gophauth/internal/client/gateway"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

// maxCodeAttempts bounds how often the login prompt asks for a second factor
// before dropping the challenge.
const maxCodeAttempts = 3

// shown marks gateway failures the user has already seen: non-silent calls
// are reported by the alert listener and a 401 by the session listener.
func shown(err error) error {
	if gateway.KindOf(err) != 0 {
		return fmt.Errorf("%w: %w", errReported, err)
	}
	return err
}

// Register prompts for name, email and password and creates the account.
// The password must pass the strength check before anything is sent.
func (a *App) Register(ctx context.Context) error {
	name, err := a.prompt("Enter name")
	if err != nil {
		return err
	}
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}
	password, err := a.newPassword("Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	_, msg, err := a.ctrl.Register(ctx, auth.RegisterRequest{Name: name, Email: email, Password: string(password)})
	if err != nil {
		fmt.Fprintln(a.out, "Registration failed:", err)
		return errReported
	}
	if msg == "" {
		msg = "Registration successful. Please verify your email before logging in."
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

// Login prompts for credentials and authenticates. When the account has two
// factor authentication on, it goes on to ask for a code; an unverified
// account is offered a new verification email.
func (a *App) Login(ctx context.Context) error {
	email, err := a.prompt("Enter email")
	if err != nil {
		return err
	}
	password, err := a.secret("Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	res, err := a.ctrl.Login(ctx, email, string(password))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			fmt.Fprintln(a.out, "Invalid email or password.")
		case gateway.KindOf(err) == gateway.KindTransport:
			fmt.Fprintln(a.out, "Cannot reach the server, try again later.")
		default:
			fmt.Fprintln(a.out, "Login failed:", err)
		}
		return errReported
	}

	switch res.Outcome {
	case auth.OutcomeAuthenticated:
		a.loggedIn(res.User)
		return nil
	case auth.OutcomeMFARequired:
		fmt.Fprintln(a.out, "Two-factor authentication is enabled for this account.")
		return a.secondFactor(ctx)
	case auth.OutcomeEmailUnverified:
		msg := res.Message
		if msg == "" {
			msg = "Your email address is not verified yet."
		}
		fmt.Fprintln(a.out, msg)
		ok, err := Confirm(a.reader, "Send a new verification email?", a.out)
		if err != nil || !ok {
			return err
		}
		sent, err := a.links.ResendVerification(ctx, res.Email)
		if err != nil {
			return shown(err)
		}
		fmt.Fprintln(a.out, sent)
		return nil
	default:
		return fmt.Errorf("unexpected login outcome %s", res.Outcome)
	}
}

// secondFactor answers the pending challenge from the prompt. An empty answer
// cancels it; "b" switches to a backup code.
func (a *App) secondFactor(ctx context.Context) error {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := a.prompt("Enter the 6-digit code from your authenticator ('b' for a backup code, empty to cancel)")
		if err != nil {
			a.mfa.Cancel()
			return err
		}

		var u *session.User
		switch strings.ToLower(code) {
		case "":
			a.mfa.Cancel()
			fmt.Fprintln(a.out, "Login cancelled.")
			return nil
		case "b":
			var backup string
			backup, err = a.prompt("Enter backup code")
			if err != nil {
				a.mfa.Cancel()
				return err
			}
			u, err = a.mfa.VerifyBackupCode(ctx, backup)
		default:
			u, err = a.mfa.VerifyCode(ctx, code)
		}

		switch {
		case err == nil:
			a.loggedIn(u)
			return nil
		case errors.Is(err, auth.ErrInvalidCode):
			fmt.Fprintln(a.out, "Codes are 6 digits; backup codes cannot be empty.")
		case auth.IsRejection(err):
			fmt.Fprintln(a.out, "Invalid verification code.")
		default:
			a.mfa.Cancel()
			fmt.Fprintln(a.out, "Verification failed:", err)
			return errReported
		}
	}

	a.mfa.Cancel()
	fmt.Fprintln(a.out, "Too many attempts, please log in again.")
	return errReported
}

func (a *App) loggedIn(u *session.User) {
	a.authed.Store(true)
	if u != nil && u.Name != "" {
		fmt.Fprintf(a.out, "Welcome, %s!\n", u.Name)
		return
	}
	fmt.Fprintln(a.out, "Login successful.")
}

// Logout ends the session. It always succeeds locally.
func (a *App) Logout(ctx context.Context) error {
	a.authed.Store(false)
	if err := a.ctrl.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

// Status prints whether a session is stored and until when it is usable.
func (a *App) Status(ctx context.Context) error {
	tok, ok := a.store.Token(ctx)
	if !ok {
		a.authed.Store(false)
		if ch, pending := a.mfa.Pending(); pending {
			fmt.Fprintf(a.out, "Waiting for a second factor (user %d).\n", ch.UserID)
			return nil
		}
		fmt.Fprintln(a.out, "Not logged in.")
		return nil
	}

	who := "unknown user"
	if u, ok := a.store.LoadUser(ctx); ok {
		who = fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	fmt.Fprintf(a.out, "Logged in as %s.\n", who)
	fmt.Fprintf(a.out, "Session valid until %s.\n", tok.Expiry.Local().Format(time.DateTime))
	if c, ok := session.PeekClaims(tok.Value); ok && !c.ExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "Server token expires %s.\n", c.ExpiresAt.Local().Format(time.DateTime))
	}
	return nil
}
