package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/client/gateway"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/logging"
)

// CodeLength is the number of digits in a time-based one-time code.
const CodeLength = 6

// TempToken is the short-lived credential the backend issues between an
// accepted password and a confirmed second factor. It is not a string so it
// cannot be handed to anything expecting a bearer token, and it prints
// redacted.
type TempToken struct {
	value string
}

func (t TempToken) IsZero() bool { return t.value == "" }

func (t TempToken) String() string {
	if t.value == "" {
		return ""
	}
	return "[redacted]"
}

// Challenge is a pending second-factor step for one login attempt.
type Challenge struct {
	UserID    int64
	TempToken TempToken
}

// decodeChallenge reads user_id and temp_token from a requires_2fa body.
// user_id may arrive as a number or a numeric string.
func decodeChallenge(f gateway.Fields) (Challenge, error) {
	var raw json.RawMessage
	if err := f.Decode("user_id", &raw); err != nil {
		return Challenge{}, fmt.Errorf("challenge user id: %w", err)
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Challenge{}, fmt.Errorf("challenge user id: %w", err)
		}
		if id, err = strconv.ParseInt(s, 10, 64); err != nil {
			return Challenge{}, fmt.Errorf("challenge user id: %w", err)
		}
	}
	return Challenge{UserID: id, TempToken: TempToken{value: f.String("temp_token")}}, nil
}

// Resolver holds at most one pending Challenge and completes it with either a
// one-time code or a backup code. Only one verification may be in flight.
type Resolver struct {
	api   API
	store SessionStore
	log   logging.Logger

	mu       sync.Mutex
	pending  *Challenge
	inFlight bool
	// gen changes whenever the pending challenge is replaced or dropped, so a
	// verification that outlives its challenge does not clear a newer one.
	gen uint64
}

func NewResolver(api API, store SessionStore, opts ...Option) *Resolver {
	o := buildOptions(opts)
	return &Resolver{api: api, store: store, log: o.log}
}

// Begin replaces any pending challenge with ch.
func (r *Resolver) Begin(ch Challenge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = &ch
	r.gen++
}

// Pending returns the current challenge, if any.
func (r *Resolver) Pending() (Challenge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return Challenge{}, false
	}
	return *r.pending, true
}

// Cancel drops the pending challenge. It is safe to call at any time.
func (r *Resolver) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		r.pending = nil
		r.gen++
	}
}

type codeRequest struct {
	UserID     int64  `json:"user_id"`
	Token      string `json:"token,omitempty"`
	BackupCode string `json:"backup_code,omitempty"`
	TempToken  string `json:"temp_token,omitempty"`
}

// VerifyCode completes the challenge with a 6-digit one-time code. A code of
// the wrong shape is rejected locally with ErrInvalidCode. On any failure the
// challenge stays pending so the caller may retry.
func (r *Resolver) VerifyCode(ctx context.Context, code string) (*session.User, error) {
	code = strings.TrimSpace(code)
	if !isOTP(code) {
		return nil, ErrInvalidCode
	}
	return r.resolve(ctx, func(ch Challenge) codeRequest {
		return codeRequest{UserID: ch.UserID, Token: code, TempToken: ch.TempToken.value}
	})
}

// VerifyBackupCode completes the challenge with a single-use backup code.
// The backend consumes the code on success.
func (r *Resolver) VerifyBackupCode(ctx context.Context, code string) (*session.User, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInvalidCode
	}
	return r.resolve(ctx, func(ch Challenge) codeRequest {
		return codeRequest{UserID: ch.UserID, BackupCode: code, TempToken: ch.TempToken.value}
	})
}

func (r *Resolver) resolve(ctx context.Context, build func(Challenge) codeRequest) (*session.User, error) {
	r.mu.Lock()
	if r.pending == nil {
		r.mu.Unlock()
		return nil, ErrNoChallenge
	}
	if r.inFlight {
		r.mu.Unlock()
		return nil, ErrVerificationInFlight
	}
	ch, gen := *r.pending, r.gen
	r.inFlight = true
	r.mu.Unlock()

	log := r.log.With("user_id", ch.UserID)
	res, err := r.api.Do(ctx, http.MethodPost, PathVerify2FA, build(ch), gateway.WithoutAuth(), gateway.Silent())

	r.mu.Lock()
	r.inFlight = false
	if err == nil && res.Fields.Has("token") && r.gen == gen {
		r.pending = nil
		r.gen++
	}
	r.mu.Unlock()

	if err != nil {
		log.Info(ctx, "second factor rejected", "status", gateway.StatusOf(err))
		if k := gateway.KindOf(err); k == gateway.KindServer || k == gateway.KindSessionExpired {
			return nil, fmt.Errorf("%w: %w", ErrCodeRejected, err)
		}
		return nil, err
	}
	if !res.Fields.Has("token") {
		return nil, ErrNoToken
	}
	log.Info(ctx, "second factor accepted")

	if res.Fields.Has("user") {
		return decodeUser(res)
	}
	u, err := fetchProfile(ctx, r.api, r.store)
	if err != nil {
		return nil, fmt.Errorf("load profile after verification: %w", err)
	}
	return u, nil
}

func isOTP(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IsRejection reports whether err means the backend refused a code, as
// opposed to the call not completing.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCodeRejected) || errors.Is(err, ErrInvalidCode)
}
