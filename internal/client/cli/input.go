package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/strength"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
// In tests you can replace it with a stub to avoid touching the terminal.
var readPassword = term.ReadPassword

// GetSimpleText prints a prompt to w and reads a single line of input from reader.
// The trailing newline is trimmed. If EOF occurs after some input was read,
// the partial line is returned.
//
// Example prompt format:
//
//	Prompt text
//	> _
func GetSimpleText(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// GetPassword prints prompt to w and reads a password from the user's
// terminal without echo. A newline is printed after the read to keep the UI
// tidy.
//
// The returned byte slice should be wiped by the caller when no longer needed.
func GetPassword(prompt string, w io.Writer) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// Confirm asks a yes/no question; only "y" or "yes" count as yes.
func Confirm(reader *bufio.Reader, question string, w io.Writer) (bool, error) {
	answer, err := GetSimpleText(reader, question+" [y/N]", w)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// prompt reads one line of input for the app.
func (a *App) prompt(text string) (string, error) {
	return GetSimpleText(a.reader, text, a.out)
}

// secret reads a password: from the terminal without echo, or as a plain line
// when input is not a terminal.
func (a *App) secret(text string) ([]byte, error) {
	if a.secretsFromInput {
		line, err := GetSimpleText(a.reader, text, a.out)
		if err != nil {
			return nil, err
		}
		return []byte(line), nil
	}
	return GetPassword(text, a.out)
}

// newPassword reads a password twice, shows its strength and refuses one that
// is too weak or does not match.
func (a *App) newPassword(text string) ([]byte, error) {
	pw, err := a.secret(text)
	if err != nil {
		return nil, err
	}

	res := strength.Evaluate(string(pw))
	fmt.Fprintf(a.out, "%s (%d/%d)\n", res.Tier.Label(), res.Score, strength.MaxScore)
	if !res.Acceptable() {
		common.WipeByteArray(pw)
		return nil, strength.ErrTooWeak
	}

	again, err := a.secret("Repeat password")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(again)
	if string(again) != string(pw) {
		common.WipeByteArray(pw)
		return nil, errPasswordMismatch
	}
	return pw, nil
}

var errPasswordMismatch = errors.New("passwords do not match")
