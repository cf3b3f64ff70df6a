package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/auth"
	"github.com/dmitrijs2005/gophauth/internal/client/config"
	"github.com/dmitrijs2005/gophauth/internal/client/events"
	"github.com/dmitrijs2005/gophauth/internal/client/gateway"
	"github.com/dmitrijs2005/gophauth/internal/client/session"
	"github.com/dmitrijs2005/gophauth/internal/client/storage"
	"github.com/dmitrijs2005/gophauth/internal/client/verification"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/filex"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"
)

// App is the interactive client. The UI's own idea of "logged in" is kept in
// authed so that a 401 on a pre-login call does not announce an expiry.
type App struct {
	config  *config.Config
	log     logging.Logger
	db      *sql.DB
	store   *session.Store
	gw      *gateway.Gateway
	ctrl    *auth.Controller
	mfa     *auth.Resolver
	account *auth.Account
	links   *verification.Validator
	metrics *metricsServer

	reader *bufio.Reader
	out    io.Writer
	// secretsFromInput reads passwords as plain lines when input is not a
	// terminal.
	secretsFromInput bool

	authed atomic.Bool
	unsubs []func()
}

type appOptions struct {
	in         io.Reader
	out        io.Writer
	logOut     io.Writer
	httpClient *http.Client
	registry   *prometheus.Registry
}

type AppOption func(*appOptions)

// WithIO replaces stdin/stdout. Passwords are then read as ordinary lines.
func WithIO(in io.Reader, out io.Writer) AppOption {
	return func(o *appOptions) { o.in, o.out = in, out }
}

// WithLogOutput sends the structured log somewhere other than stderr.
func WithLogOutput(w io.Writer) AppOption {
	return func(o *appOptions) { o.logOut = w }
}

func WithHTTPClient(c *http.Client) AppOption {
	return func(o *appOptions) { o.httpClient = c }
}

// WithRegistry sets where gateway metrics are registered and served from.
func WithRegistry(r *prometheus.Registry) AppOption {
	return func(o *appOptions) { o.registry = r }
}

// NewApp builds the client from c. The session store is opened (and migrated)
// at c.StoragePath, or kept in memory when the path is empty, and any stored
// session is restored.
func NewApp(ctx context.Context, c *config.Config, opts ...AppOption) (*App, error) {
	o := appOptions{
		in:         os.Stdin,
		out:        os.Stdout,
		logOut:     os.Stderr,
		httpClient: http.DefaultClient,
		registry:   prometheus.NewRegistry(),
	}
	for _, fn := range opts {
		fn(&o)
	}

	log, err := logging.New(o.logOut, c.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &App{
		config: c,
		log:    log,
		reader: bufio.NewReader(o.in),
		out:    o.out,
	}
	if f, ok := o.in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		a.secretsFromInput = true
	}

	repo, err := a.openRepository(ctx)
	if err != nil {
		return nil, err
	}

	a.store = session.NewStore(repo,
		session.WithExpiryDays(c.TokenExpiryDays),
		session.WithLogger(log.With("component", "session")),
	)
	if err := a.store.Init(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	a.gw = gateway.New(c.APIBaseURL, a.store,
		gateway.WithHTTPClient(o.httpClient),
		gateway.WithLogger(log.With("component", "gateway")),
		gateway.WithSessionExpired(events.NewBus[events.SessionExpired]()),
		gateway.WithAlerts(events.NewBus[events.Alert]()),
		gateway.WithMetrics(gateway.NewMetrics(o.registry)),
	)

	if c.MetricsAddr != "" {
		a.metrics, err = startMetrics(c.MetricsAddr, o.registry, log.With("component", "metrics"))
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	authOpts := []auth.Option{
		auth.WithLogger(log.With("component", "auth")),
		auth.WithServerLogout(c.ServerLogout),
	}
	a.mfa = auth.NewResolver(a.gw, a.store, authOpts...)
	a.ctrl = auth.NewController(a.gw, a.store, a.mfa, authOpts...)
	a.account = auth.NewAccount(a.gw, a.store, authOpts...)
	a.links = verification.NewValidator(a.gw, verification.WithLogger(log.With("component", "verification")))

	a.authed.Store(a.store.Authenticated(ctx))
	a.subscribe()
	return a, nil
}

func (a *App) openRepository(ctx context.Context) (storage.Repository, error) {
	if a.config.StoragePath == "" {
		return storage.NewMemoryRepository(), nil
	}
	path, err := filex.EnsureParentDir(a.config.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("session storage: %w", err)
	}
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open session storage: %w", err)
	}
	a.db = db
	return storage.NewSQLiteRepository(db), nil
}

func (a *App) subscribe() {
	a.unsubs = append(a.unsubs,
		a.gw.SessionExpired().Subscribe(func(events.SessionExpired) {
			// Pre-login calls also answer 401; only a live session expires.
			if a.authed.Swap(false) {
				fmt.Fprintln(a.out, "Your session has expired. Please log in again.")
			}
		}),
		a.gw.Alerts().Subscribe(func(ev events.Alert) {
			fmt.Fprintln(a.out, "Error:", ev.Message)
		}),
	)
}

// Run runs the REPL until exit or end of input, then closes the app.
func (a *App) Run(ctx context.Context) {
	defer a.Close()
	a.Root(ctx)
}

// MetricsAddr is the address metrics are served on, or "" when disabled.
func (a *App) MetricsAddr() string {
	if a.metrics == nil {
		return ""
	}
	return a.metrics.addr()
}

// Close detaches the event listeners, stops the metrics endpoint and closes
// the session database.
func (a *App) Close() {
	for _, u := range a.unsubs {
		u()
	}
	a.unsubs = nil
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metrics.close(ctx); err != nil {
			a.log.Warn(ctx, "stopping metrics endpoint failed", "error", err)
		}
		cancel()
		a.metrics = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn(context.Background(), "closing session storage failed", "error", err)
		}
		a.db = nil
	}
}

func (a *App) isLoggedIn() bool {
	return a.authed.Load()
}

// getStatus renders the prompt decoration: the account email while logged in
// and a marker while a second factor is pending.
func (a *App) getStatus() string {
	if _, pending := a.mfa.Pending(); pending {
		return "(2fa pending)"
	}
	if !a.isLoggedIn() {
		return ""
	}
	if u, ok := a.store.LoadUser(context.Background()); ok && u.Email != "" {
		return fmt.Sprintf("(%s)", u.Email)
	}
	return "(logged in)"
}

// Root prints the banner and runs the REPL.
func (a *App) Root(ctx context.Context) {
	fmt.Fprintf(a.out, "Welcome to %s CLI (type 'help' for commands)\n", common.AppName)
	if a.isLoggedIn() {
		fmt.Fprintln(a.out, "Restored previous session.")
	}
	runREPL(ctx, a, a.getStatus, a.reader, a.out)
}
