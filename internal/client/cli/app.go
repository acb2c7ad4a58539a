package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/kz4killua/course-alerts/internal/client/client"
	"github.com/kz4killua/course-alerts/internal/client/config"
	"github.com/kz4killua/course-alerts/internal/client/events"
	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/client/repositories"
	"github.com/kz4killua/course-alerts/internal/client/repositories/tokens"
	"github.com/kz4killua/course-alerts/internal/client/services"
	"github.com/kz4killua/course-alerts/internal/client/session"
	"github.com/kz4killua/course-alerts/internal/logging"
)

type searchResult struct {
	query   string
	courses []models.Course
	err     error
}

// App is the interactive client. One App owns one session.
type App struct {
	config *config.Config
	log    logging.Logger
	db     *sql.DB

	api       client.Client
	tokens    tokens.Store
	session   *session.Session
	catalog   *services.Catalog
	search    *services.CourseSearch
	subs      *services.Subscriptions
	selection *services.Selection
	notifier  services.Notifier
	now       func() time.Time

	reader   *bufio.Reader
	out      io.Writer
	hideCode bool

	term     models.Term
	sections []models.Section
	results  chan searchResult

	// subscribed caches the last subscriptions listing. Logouts reset it
	// from whichever goroutine made the failing request.
	subsMu     sync.Mutex
	subscribed []models.Section
}

// NewApp wires storage, the backend client and the services. Input is read
// from in and everything meant for the user goes to out; logs go to
// stderr.
func NewApp(ctx context.Context, c *config.Config, in io.Reader, out io.Writer) (*App, error) {
	log := logging.New(c.LogLevel, os.Stderr)

	db, err := repositories.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		log.Error(ctx, "initialize database", "path", c.DatabasePath, "error", err)
		return nil, err
	}
	store := tokens.NewSQLiteStore(db)

	a, err := newApp(c, log, store, in, out)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.db = db

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		a.hideCode = true
	}
	return a, nil
}

func newApp(c *config.Config, log logging.Logger, store tokens.Store, in io.Reader, out io.Writer) (*App, error) {
	// Forced logouts and search results arrive from other goroutines.
	out = &lockedWriter{w: out}
	logouts := events.NewBus[events.Logout]()

	api, err := client.NewHTTPClient(c.BackendURL, c.RequestTimeout, store, logouts, log.With("component", "http"))
	if err != nil {
		return nil, err
	}

	a := &App{
		config:    c,
		log:       log,
		api:       api,
		tokens:    store,
		session:   session.New(store, logouts, log.With("component", "session")),
		selection: services.NewSelection(),
		notifier:  &printNotifier{w: out},
		now:       time.Now,
		reader:    bufio.NewReader(in),
		out:       out,
		results:   make(chan searchResult, 1),
	}
	a.catalog = services.NewCatalog(api, log)
	a.subs = services.NewSubscriptions(api, a.notifier, log)
	a.search = services.NewCourseSearch(a.catalog, c.SearchDebounce, a.deliverSearch)

	a.session.Subscribe(func(u *models.User) {
		if u == nil {
			a.setSubscribed(nil)
			a.println("You have been signed out.")
		}
	})
	return a, nil
}

// Run restores the previous session and serves commands until the user
// exits or input ends.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	a.session.Hydrate(ctx, a.api)
	a.logTokenExpiry(ctx)

	a.println("Welcome to course alerts (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader, a.out)
}

// Close releases the session and the database.
func (a *App) Close() {
	a.search.Stop()
	a.session.Close()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn(context.Background(), "close database", "error", err)
		}
	}
}

func (a *App) cachedSubscribed() []models.Section {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	return a.subscribed
}

func (a *App) setSubscribed(sections []models.Section) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	a.subscribed = sections
}

func (a *App) isLoggedIn() bool {
	_, ok := a.session.User()
	return ok
}

func (a *App) getStatus() string {
	var parts []string
	if u, ok := a.session.User(); ok {
		parts = append(parts, u.Email)
	}
	if a.term.TermDesc != "" {
		parts = append(parts, a.term.TermDesc)
	}
	if n := a.selection.Len(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", n))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " · ") + ")"
}

func (a *App) logTokenExpiry(ctx context.Context) {
	access, err := a.tokens.AccessToken(ctx)
	if err != nil || access == "" {
		return
	}
	exp, err := client.AccessTokenExpiry(access)
	if err != nil {
		a.log.Debug(ctx, "read access token expiry", "error", err)
		return
	}
	a.log.Debug(ctx, "stored access token", "expires_at", exp)
}

func (a *App) loginDeps() services.LoginDeps {
	return services.LoginDeps{
		API:     a.api,
		Tokens:  a.tokens,
		Session: a.session,
		Log:     a.log.With("component", "login"),
		Now:     a.now,
	}
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
