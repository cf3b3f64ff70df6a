package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/client/auth"
	"github.com/dmitrijs2005/gophauth/internal/client/verification"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/strength"
)

// Forgot requests a password-reset link.
func (a *App) Forgot(ctx context.Context) error {
	email, err := a.prompt("Enter the email of your account")
	if err != nil {
		return err
	}
	msg, err := a.links.RequestReset(ctx, email)
	if err != nil {
		return shown(err)
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

// Resend requests a new email-verification link.
func (a *App) Resend(ctx context.Context) error {
	email, err := a.prompt("Enter the email to verify")
	if err != nil {
		return err
	}
	msg, err := a.links.ResendVerification(ctx, email)
	if err != nil {
		return shown(err)
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

// OpenLink handles a link pasted from a reset or verification email, or the
// callback page of a social login. An email token is checked first so the
// user learns early if it is spent; the backend still has the last word when
// the token is used.
func (a *App) OpenLink(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: link <url from the email>")
		return nil
	}
	link := args[0]

	if auth.IsCallback(link) {
		return a.adoptCallback(ctx, link)
	}

	token, err := verification.ExtractToken(link)
	if err != nil {
		return err
	}
	purpose, ok := verification.PurposeFromURL(link)
	if !ok {
		if purpose, err = a.askPurpose(); err != nil {
			return err
		}
	}

	res, err := a.links.CheckToken(ctx, token, purpose)
	if err != nil {
		fmt.Fprintln(a.out, "Could not check the link:", err)
		return errReported
	}
	switch res.Status {
	case verification.StatusValid:
	case verification.StatusAlreadyUsed:
		fmt.Fprintln(a.out, "This link has already been used.")
		return nil
	case verification.StatusAccountNotFound:
		fmt.Fprintln(a.out, "The account for this link no longer exists.")
		return nil
	default:
		fmt.Fprintln(a.out, "This link is invalid or has expired. Request a new one.")
		return nil
	}

	if purpose == verification.PurposeEmailVerification {
		if res.AlreadyVerified {
			fmt.Fprintln(a.out, "Your email is already verified.")
			return nil
		}
		return a.consume(ctx, token, verification.Payload{Purpose: purpose})
	}

	password, err := a.secret("New password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)
	r := strength.Evaluate(string(password))
	fmt.Fprintf(a.out, "%s (%d/%d)\n", r.Tier.Label(), r.Score, strength.MaxScore)

	confirm, err := a.secret("Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	return a.consume(ctx, token, verification.Payload{
		Purpose:  purpose,
		Password: string(password),
		Confirm:  string(confirm),
	})
}

func (a *App) adoptCallback(ctx context.Context, link string) error {
	u, err := a.ctrl.AdoptCallback(ctx, link)
	if err != nil {
		fmt.Fprintln(a.out, "Social login failed:", err)
		return errReported
	}
	fmt.Fprintln(a.out, "Social login successful.")
	a.loggedIn(u)
	return nil
}

func (a *App) consume(ctx context.Context, token string, p verification.Payload) error {
	msg, err := a.links.ConsumeToken(ctx, token, p)
	switch {
	case err == nil:
		if msg == "" {
			msg = "Done."
		}
		fmt.Fprintln(a.out, msg)
		return nil
	case errors.Is(err, verification.ErrPasswordMismatch), errors.Is(err, strength.ErrTooWeak):
		return err
	default:
		// The pre-check is advisory; the token may have been used meanwhile.
		fmt.Fprintln(a.out, "The link could not be used:", err)
		return errReported
	}
}

func (a *App) askPurpose() (verification.Purpose, error) {
	answer, err := a.prompt("Is this a password reset or an email verification link? [reset/verify]")
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(answer) {
	case "reset", "r":
		return verification.PurposePasswordReset, nil
	case "verify", "v":
		return verification.PurposeEmailVerification, nil
	default:
		return 0, verification.ErrUnknownPurpose
	}
}
