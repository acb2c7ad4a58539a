package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kz4killua/course-alerts/internal/client/events"
	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/client/repositories/tokens"
	"github.com/kz4killua/course-alerts/internal/client/session"
	"github.com/kz4killua/course-alerts/internal/logging"
)

/*************
 * Fake backend
 *************/

type fakeAPI struct {
	mu sync.Mutex

	// outputs preset
	requestErr error
	verifyPair models.CredentialPair
	verifyErr  error
	profile    models.User
	profileErr error
	phoneErr   error
	createErr  error
	listResp   []models.Section
	listErr    error
	deleteErr  error
	terms      []models.Term
	courses    []models.Course
	sections   []models.Section

	// when set, runs inside UpdatePhone before it returns
	onPhone func()

	// when set, RequestSignIn/CreateSubscriptions signal entered and wait
	block   chan struct{}
	entered chan struct{}

	// inputs captured
	requestEmails []string
	verifyCalls   [][2]string
	phones        []string
	created       [][]string
	createdTerms  []string
	deleted       [][]string
	termFilters   []*bool
	searches      []string
}

func (f *fakeAPI) wait(ctx context.Context) {
	if f.block == nil {
		return
	}
	f.entered <- struct{}{}
	select {
	case <-f.block:
	case <-ctx.Done():
	}
}

func (f *fakeAPI) RequestSignIn(ctx context.Context, email string) error {
	f.mu.Lock()
	f.requestEmails = append(f.requestEmails, email)
	f.mu.Unlock()
	f.wait(ctx)
	return f.requestErr
}

func (f *fakeAPI) VerifySignIn(ctx context.Context, email, code string) (models.CredentialPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls = append(f.verifyCalls, [2]string{email, code})
	return f.verifyPair, f.verifyErr
}

func (f *fakeAPI) UpdatePhone(ctx context.Context, phone string) (models.User, error) {
	f.mu.Lock()
	f.phones = append(f.phones, phone)
	u := f.profile
	u.Phone = phone
	err, hook := f.phoneErr, f.onPhone
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return u, err
}

func (f *fakeAPI) GetProfile(ctx context.Context) (models.User, error) {
	return f.profile, f.profileErr
}

func (f *fakeAPI) CreateSubscriptions(ctx context.Context, term string, crns []string) ([]models.Section, error) {
	f.mu.Lock()
	f.createdTerms = append(f.createdTerms, term)
	f.created = append(f.created, crns)
	f.mu.Unlock()
	f.wait(ctx)
	return nil, f.createErr
}

func (f *fakeAPI) ListSubscriptions(ctx context.Context, term string) ([]models.Section, error) {
	return f.listResp, f.listErr
}

func (f *fakeAPI) DeleteSubscriptions(ctx context.Context, term string, crns []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, append([]string{term}, crns...))
	return f.deleteErr
}

func (f *fakeAPI) ListTerms(ctx context.Context, registrationOpen *bool) ([]models.Term, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.termFilters = append(f.termFilters, registrationOpen)
	return f.terms, nil
}

func (f *fakeAPI) ListCourses(ctx context.Context, term, search string) ([]models.Course, error) {
	f.mu.Lock()
	f.searches = append(f.searches, search)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.courses, nil
}

func (f *fakeAPI) ListSections(ctx context.Context, subjectCourse, term string) ([]models.Section, error) {
	return f.sections, nil
}

/*************
 * Helpers
 *************/

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	toasts []Toast
}

func (n *recordingNotifier) Notify(t Toast) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, t)
}

type env struct {
	api     *fakeAPI
	store   *tokens.MemoryStore
	session *session.Session
	clock   *fakeClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := tokens.NewMemoryStore()
	s := session.New(store, events.NewBus[events.Logout](), logging.NewNop())
	t.Cleanup(s.Close)
	return &env{api: &fakeAPI{}, store: store, session: s, clock: newFakeClock()}
}

func (e *env) deps() LoginDeps {
	return LoginDeps{API: e.api, Tokens: e.store, Session: e.session, Log: logging.NewNop(), Now: e.clock.Now}
}

func (e *env) tokens(t *testing.T) (string, string) {
	t.Helper()
	a, err := e.store.AccessToken(context.Background())
	require.NoError(t, err)
	r, err := e.store.RefreshToken(context.Background())
	require.NoError(t, err)
	return a, r
}
