// Package strength scores candidate passwords before they are submitted.
package strength

import (
	"errors"
	"unicode/utf8"
)

// MaxScore is the highest score Evaluate can return.
const MaxScore = 6

// MinAcceptable is the lowest score a new password may have.
const MinAcceptable = 3

// ErrTooWeak is returned by Check for passwords scoring below MinAcceptable.
var ErrTooWeak = errors.New("password is too weak")

type Tier int

const (
	Weak Tier = iota
	Moderate
	Strong
)

func (t Tier) String() string {
	switch t {
	case Moderate:
		return "moderate"
	case Strong:
		return "strong"
	default:
		return "weak"
	}
}

// Label is the one-line hint shown next to a password field.
func (t Tier) Label() string {
	switch t {
	case Moderate:
		return "Password is moderate"
	case Strong:
		return "Password is strong"
	default:
		return "Password is too weak"
	}
}

type Result struct {
	Score int
	Tier  Tier
}

// Acceptable reports whether the password may be submitted.
func (r Result) Acceptable() bool {
	return r.Score >= MinAcceptable
}

// Evaluate scores password: a point each for length >= 8 and >= 12, and a
// point each for an ASCII upper-case letter, lower-case letter, digit and any
// other character. Length counts runes.
func Evaluate(password string) Result {
	if password == "" {
		return Result{Score: 0, Tier: Weak}
	}

	score := 0
	n := utf8.RuneCountInString(password)
	if n >= 8 {
		score++
	}
	if n >= 12 {
		score++
	}

	var upper, lower, digit, other bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}
	for _, ok := range []bool{upper, lower, digit, other} {
		if ok {
			score++
		}
	}

	return Result{Score: score, Tier: tierOf(score)}
}

// Check returns ErrTooWeak unless password is acceptable.
func Check(password string) error {
	if !Evaluate(password).Acceptable() {
		return ErrTooWeak
	}
	return nil
}

func tierOf(score int) Tier {
	switch {
	case score < 3:
		return Weak
	case score < 5:
		return Moderate
	default:
		return Strong
	}
}
