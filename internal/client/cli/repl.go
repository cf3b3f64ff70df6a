package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Status(ctx context.Context) error
	Profile(ctx context.Context) error
	EditProfile(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	DeleteAccount(ctx context.Context) error
	TwoFactor(ctx context.Context, args []string) error
	Forgot(ctx context.Context) error
	Resend(ctx context.Context) error
	OpenLink(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: register, login, forgot, resend, link <url>, status, exit"
	helpLoggedIn  = "Available commands: status, profile, edit, passwd, 2fa setup|confirm|disable, delete, link <url>, logout, exit"
)

// runREPL starts a simple read–eval–print loop for the gophauth CLI.
//
// It reads a line from in, parses the first token as the command, and
// dispatches to methods on 'a'. Command handlers read their own prompts from
// the same reader. The loop exits on EOF or when the user types "exit" or
// "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help                show available commands
//	  - register            create an account
//	  - login               authenticate (asks for a second factor if needed)
//	  - forgot              request a password-reset link
//	  - resend              request a new email-verification link
//	  - link <url>          open an emailed link or a social login callback
//	  - status              show session state
//	  - exit | quit         leave the program
//
//	Logged in, additionally:
//	  - profile             show profile and verification state
//	  - edit                change name or email
//	  - passwd              change password
//	  - 2fa setup|confirm|disable
//	  - delete              delete the account
//	  - logout              log out
//
// Handler errors are printed in one line and the loop continues; handlers
// print their own detailed messages.
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader, out io.Writer) {
	for {
		fmt.Fprintf(out, "ga%s> ", prefixSpace(statusFn()))
		line, err := in.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			fmt.Fprintln(out)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(out, helpLoggedIn)
			} else {
				fmt.Fprintln(out, helpLoggedOut)
			}

		case "register":
			cmdErr = a.Register(ctx)

		case "login":
			cmdErr = a.Login(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "status", "whoami":
			cmdErr = a.Status(ctx)

		case "profile":
			cmdErr = a.Profile(ctx)

		case "edit":
			cmdErr = a.EditProfile(ctx)

		case "passwd":
			cmdErr = a.ChangePassword(ctx)

		case "delete":
			cmdErr = a.DeleteAccount(ctx)

		case "2fa":
			cmdErr = a.TwoFactor(ctx, args)

		case "forgot":
			cmdErr = a.Forgot(ctx)

		case "resend":
			cmdErr = a.Resend(ctx)

		case "link":
			cmdErr = a.OpenLink(ctx, args)

		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return

		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}

		if cmdErr != nil && !errors.Is(cmdErr, errReported) {
			fmt.Fprintf(out, "%s: %v\n", cmd, cmdErr)
		}
		if err != nil {
			// Last line had no newline.
			return
		}
	}
}

func prefixSpace(s string) string {
	if s == "" {
		return ""
	}
	return " " + s
}

// errReported marks a failure the handler (or an event listener) has already
// shown to the user.
var errReported = errors.New("reported")
