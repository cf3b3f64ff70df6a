package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/gophauth/internal/client/events"
	"github.com/dmitrijs2005/gophauth/internal/client/gateway"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/client/storage"
	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

// ---- fake backend ----

type fakeUser struct {
	ID            int64
	Name          string
	Email         string
	Password      string
	Verified      bool
	TwoFA         bool
	Secret        string
	PendingSecret string
	Backup        map[string]bool
}

func (u *fakeUser) json() map[string]any {
	return map[string]any{
		"id":                 u.ID,
		"name":               u.Name,
		"email":              u.Email,
		"auth_type":          "email",
		"is_verified":        u.Verified,
		"two_factor_enabled": u.TwoFA,
		"created_at":         "2024-05-01T10:00:00.123456",
		"updated_at":         nil,
	}
}

// fakeBackend mimics the REST API closely enough for the flows: bearer
// sessions, temporary tokens for the second factor, TOTP via pquerna/otp.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	nextID   int64
	nextTok  int
	users    map[string]*fakeUser
	sessions map[string]int64
	temps    map[string]int64

	omitLoginUser bool

	// recorded traffic
	verifyAuth   []string
	verifyBodies []map[string]any
	logoutAuth   []string
	requests     []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	be := &fakeBackend{
		t:        t,
		nextID:   41,
		users:    make(map[string]*fakeUser),
		sessions: make(map[string]int64),
		temps:    make(map[string]int64),
	}

	r := chi.NewRouter()
	r.Use(be.record)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", be.register)
		r.Post("/auth/login", be.login)
		r.Post("/auth/verify-2fa", be.verify2FA)
		r.Post("/auth/logout", be.logout)

		r.Group(func(r chi.Router) {
			r.Use(be.bearer)
			r.Get("/user/profile", be.getProfile)
			r.Put("/user/profile", be.putProfile)
			r.Post("/user/change-password", be.changePassword)
			r.Post("/user/delete-account", be.deleteAccount)
			r.Get("/user/verification-status", be.verificationStatus)
			r.Post("/auth/setup-2fa", be.setup2FA)
			r.Post("/auth/confirm-2fa", be.confirm2FA)
			r.Post("/auth/disable-2fa", be.disable2FA)
		})
	})

	be.srv = httptest.NewServer(r)
	t.Cleanup(be.srv.Close)
	return be
}

func (be *fakeBackend) URL() string { return be.srv.URL + "/api" }

func (be *fakeBackend) addUser(u fakeUser) *fakeUser {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.nextID++
	u.ID = be.nextID
	if u.Backup == nil {
		u.Backup = make(map[string]bool)
	}
	be.users[u.Email] = &u
	return &u
}

// enable2FA switches the user to TOTP with a fresh secret and returns it.
func (be *fakeBackend) enable2FA(u *fakeUser, backup ...string) string {
	be.t.Helper()
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "GophAuth", AccountName: u.Email})
	require.NoError(be.t, err)

	be.mu.Lock()
	defer be.mu.Unlock()
	u.TwoFA = true
	u.Secret = key.Secret()
	for _, c := range backup {
		u.Backup[c] = true
	}
	return u.Secret
}

func (be *fakeBackend) requestCount(method, path string) int {
	be.mu.Lock()
	defer be.mu.Unlock()
	n := 0
	for _, r := range be.requests {
		if r == method+" "+path {
			n++
		}
	}
	return n
}

func (be *fakeBackend) setOmitLoginUser(v bool) {
	be.mu.Lock()
	defer be.mu.Unlock()
	be.omitLoginUser = v
}

func (be *fakeBackend) totalRequests() int {
	be.mu.Lock()
	defer be.mu.Unlock()
	return len(be.requests)
}

func (be *fakeBackend) logouts() []string {
	be.mu.Lock()
	defer be.mu.Unlock()
	return append([]string(nil), be.logoutAuth...)
}

func (be *fakeBackend) verifyCalls() ([]string, []map[string]any) {
	be.mu.Lock()
	defer be.mu.Unlock()
	return append([]string(nil), be.verifyAuth...), append([]map[string]any(nil), be.verifyBodies...)
}

func (be *fakeBackend) passwordOf(u *fakeUser) string {
	be.mu.Lock()
	defer be.mu.Unlock()
	return u.Password
}

func (be *fakeBackend) issueToken(id int64) string {
	be.nextTok++
	tok := fmt.Sprintf("tok-%d", be.nextTok)
	be.sessions[tok] = id
	return tok
}

func (be *fakeBackend) userByID(id int64) *fakeUser {
	for _, u := range be.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

type ctxUserKey struct{}

func withUser(r *http.Request, u *fakeUser) context.Context {
	return context.WithValue(r.Context(), ctxUserKey{}, u)
}

func userFrom(r *http.Request) *fakeUser {
	u, _ := r.Context().Value(ctxUserKey{}).(*fakeUser)
	return u
}

func (be *fakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		be.mu.Lock()
		be.requests = append(be.requests, r.Method+" "+strings.TrimPrefix(r.URL.Path, "/api"))
		be.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (be *fakeBackend) bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		be.mu.Lock()
		id, ok := be.sessions[tok]
		be.mu.Unlock()
		if !ok {
			reply(w, http.StatusUnauthorized, map[string]any{"msg": "Token has expired"})
			return
		}
		be.mu.Lock()
		u := be.userByID(id)
		be.mu.Unlock()
		if u == nil {
			reply(w, http.StatusNotFound, map[string]any{"error": "User not found"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r, u)))
	})
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request) map[string]any {
	var m map[string]any
	_ = json.NewDecoder(r.Body).Decode(&m)
	if m == nil {
		m = map[string]any{}
	}
	return m
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func (be *fakeBackend) register(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	email := str(body, "email")
	be.mu.Lock()
	_, exists := be.users[email]
	be.mu.Unlock()
	if exists {
		reply(w, http.StatusBadRequest, map[string]any{"error": "Email already registered"})
		return
	}
	u := be.addUser(fakeUser{Name: str(body, "name"), Email: email, Password: str(body, "password")})
	reply(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully. Please check your email to verify your account.",
		"user":    u.json(),
	})
}

func (be *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	be.mu.Lock()
	defer be.mu.Unlock()

	u := be.users[str(body, "email")]
	if u == nil || u.Password != str(body, "password") {
		reply(w, http.StatusUnauthorized, map[string]any{"error": "Invalid email or password"})
		return
	}
	if !u.Verified {
		reply(w, http.StatusForbidden, map[string]any{
			"error":              "Email not verified. Please verify your email.",
			"needs_verification": true,
		})
		return
	}
	if u.TwoFA {
		be.nextTok++
		tmp := fmt.Sprintf("tmp-%d", be.nextTok)
		be.temps[tmp] = u.ID
		reply(w, http.StatusOK, map[string]any{
			"message":      "Two-factor authentication required",
			"requires_2fa": true,
			"user_id":      u.ID,
			"temp_token":   tmp,
		})
		return
	}
	out := map[string]any{"message": "Login successful", "token": be.issueToken(u.ID)}
	if !be.omitLoginUser {
		out["user"] = u.json()
	}
	reply(w, http.StatusOK, out)
}

func (be *fakeBackend) verify2FA(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	be.mu.Lock()
	defer be.mu.Unlock()

	be.verifyAuth = append(be.verifyAuth, r.Header.Get("Authorization"))
	be.verifyBodies = append(be.verifyBodies, body)

	uid, _ := body["user_id"].(float64)
	tmp := str(body, "temp_token")
	if id, ok := be.temps[tmp]; !ok || id != int64(uid) {
		reply(w, http.StatusUnauthorized, map[string]any{"error": "Invalid or expired temporary token"})
		return
	}
	u := be.userByID(int64(uid))

	ok := false
	if code := str(body, "token"); code != "" {
		ok = totp.Validate(code, u.Secret)
	} else if code := str(body, "backup_code"); u.Backup[code] {
		delete(u.Backup, code)
		ok = true
	}
	if !ok {
		reply(w, http.StatusUnauthorized, map[string]any{"error": "Invalid 2FA token"})
		return
	}
	delete(be.temps, tmp)
	reply(w, http.StatusOK, map[string]any{"message": "2FA verification successful", "token": be.issueToken(u.ID)})
}

func (be *fakeBackend) logout(w http.ResponseWriter, r *http.Request) {
	be.mu.Lock()
	defer be.mu.Unlock()
	auth := r.Header.Get("Authorization")
	be.logoutAuth = append(be.logoutAuth, auth)
	delete(be.sessions, strings.TrimPrefix(auth, "Bearer "))
	reply(w, http.StatusOK, map[string]any{"message": "Logged out"})
}

func (be *fakeBackend) getProfile(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	be.mu.Lock()
	defer be.mu.Unlock()
	reply(w, http.StatusOK, map[string]any{"profile": u.json()})
}

func (be *fakeBackend) putProfile(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	u := userFrom(r)
	be.mu.Lock()
	defer be.mu.Unlock()
	if name := str(body, "name"); name != "" {
		u.Name = name
	}
	reply(w, http.StatusOK, map[string]any{"message": "Profile updated successfully", "user": u.json()})
}

func (be *fakeBackend) changePassword(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	u := userFrom(r)
	be.mu.Lock()
	defer be.mu.Unlock()
	if u.Password != str(body, "current_password") {
		reply(w, http.StatusBadRequest, map[string]any{"error": "Current password is incorrect"})
		return
	}
	u.Password = str(body, "new_password")
	reply(w, http.StatusOK, map[string]any{"message": "Password updated successfully"})
}

func (be *fakeBackend) deleteAccount(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	u := userFrom(r)
	be.mu.Lock()
	defer be.mu.Unlock()
	if u.Password != str(body, "password") {
		reply(w, http.StatusBadRequest, map[string]any{"error": "Password is incorrect"})
		return
	}
	delete(be.users, u.Email)
	reply(w, http.StatusOK, map[string]any{"message": "Account deleted successfully"})
}

func (be *fakeBackend) verificationStatus(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	be.mu.Lock()
	defer be.mu.Unlock()
	reply(w, http.StatusOK, map[string]any{
		"email":       u.Email,
		"is_verified": u.Verified,
		"verified_at": "2024-05-02T08:30:00",
	})
}

func (be *fakeBackend) setup2FA(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "GophAuth", AccountName: u.Email})
	if err != nil {
		reply(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	be.mu.Lock()
	defer be.mu.Unlock()
	u.PendingSecret = key.Secret()
	reply(w, http.StatusOK, map[string]any{
		"message":      "2FA setup initiated",
		"secret":       key.Secret(),
		"qr_code":      "data:image/png;base64,iVBORw0KGgo=",
		"backup_codes": []string{"AAAA-1111", "BBBB-2222"},
	})
}

func (be *fakeBackend) confirm2FA(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	u := userFrom(r)
	be.mu.Lock()
	defer be.mu.Unlock()
	if u.PendingSecret == "" || !totp.Validate(str(body, "token"), u.PendingSecret) {
		reply(w, http.StatusBadRequest, map[string]any{"error": "Invalid token"})
		return
	}
	u.Secret, u.PendingSecret, u.TwoFA = u.PendingSecret, "", true
	u.Backup = map[string]bool{"AAAA-1111": true, "BBBB-2222": true}
	reply(w, http.StatusOK, map[string]any{
		"message":      "2FA enabled successfully",
		"backup_codes": []string{"AAAA-1111", "BBBB-2222"},
	})
}

func (be *fakeBackend) disable2FA(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	u := userFrom(r)
	be.mu.Lock()
	defer be.mu.Unlock()
	if u.Password != str(body, "password") {
		reply(w, http.StatusBadRequest, map[string]any{"error": "Password is incorrect"})
		return
	}
	u.TwoFA, u.Secret = false, ""
	reply(w, http.StatusOK, map[string]any{"message": "2FA disabled successfully"})
}

// ---- harness ----

type harness struct {
	be      *fakeBackend
	store   *session.Store
	gw      *gateway.Gateway
	mfa     *Resolver
	ctrl    *Controller
	account *Account
	expired []events.SessionExpired
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{be: newFakeBackend(t)}
	h.store = session.NewStore(storage.NewMemoryRepository())
	h.gw = gateway.New(h.be.URL(), h.store, gateway.WithHTTPClient(h.be.srv.Client()))
	h.gw.SessionExpired().Subscribe(func(ev events.SessionExpired) { h.expired = append(h.expired, ev) })
	h.mfa = NewResolver(h.gw, h.store, opts...)
	h.ctrl = NewController(h.gw, h.store, h.mfa, opts...)
	h.account = NewAccount(h.gw, h.store, opts...)
	return h
}
