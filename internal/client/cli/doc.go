// Package cli provides the interactive gophauth command-line client.
//
// It wires configuration, the durable session store, the request gateway and
// the auth, account and verification components, then runs a REPL on top of
// them. Typical flow: restore any stored session, log in (answering a second
// factor when asked), manage the account, and open password-reset or
// email-verification links pasted from mail.
//
// Key features:
//   - Register / Login / Logout, with TOTP or backup-code second factor
//   - Profile, password change, account deletion
//   - Two-factor setup, confirmation and removal
//   - Password-reset and email-verification links
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
