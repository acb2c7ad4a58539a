package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kz4killua/course-alerts/internal/client/events"
	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/client/repositories/tokens"
	"github.com/kz4killua/course-alerts/internal/logging"
)

/*************
 * Fake backend
 *************/

type fakeBackend struct {
	mu sync.Mutex

	// state
	validAccess string
	rejectAll   bool
	profile     models.User

	// outputs preset
	refreshResp   models.CredentialPair
	refreshStatus int
	refreshGate   chan struct{}

	// inputs captured
	authHeaders   []string
	requestIDs    []string
	refreshBodies []string
	meCalls       int
	unauthorized  chan struct{}
}

func (f *fakeBackend) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	f.requestIDs = append(f.requestIDs, r.Header.Get("X-Request-ID"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeBackend) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/accounts/me", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.meCalls++
		ok := !f.rejectAll && f.validAccess != "" && r.Header.Get("Authorization") == "Bearer "+f.validAccess
		profile := f.profile
		f.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			if f.unauthorized != nil {
				f.unauthorized <- struct{}{}
			}
			return
		}
		writeJSON(w, http.StatusOK, profile)
	})

	r.Post("/accounts/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		if f.refreshGate != nil {
			<-f.refreshGate
		}

		f.mu.Lock()
		f.refreshBodies = append(f.refreshBodies, body["refresh"])
		status, resp := f.refreshStatus, f.refreshResp
		if status == 0 {
			f.validAccess = resp.Access
		}
		f.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{"detail": "Token is invalid or expired"})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
	return r
}

type harness struct {
	client  *HTTPClient
	store   *tokens.MemoryStore
	backend *fakeBackend
	logouts []events.Logout
	server  *httptest.Server
}

func newHarness(t *testing.T, backend *fakeBackend, extra func(chi.Router)) *harness {
	t.Helper()

	r := backend.routes()
	if extra != nil {
		extra(r)
	}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	h := &harness{store: tokens.NewMemoryStore(), backend: backend, server: srv}
	bus := events.NewBus[events.Logout]()
	bus.Subscribe(func(e events.Logout) { h.logouts = append(h.logouts, e) })

	c, err := NewHTTPClient(srv.URL, 5*time.Second, h.store, bus, logging.NewNop())
	require.NoError(t, err)
	h.client = c
	return h
}

func (h *harness) setTokens(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, h.store.SetPair(context.Background(), models.CredentialPair{Access: access, Refresh: refresh}))
}

func (h *harness) tokens(t *testing.T) (string, string) {
	t.Helper()
	a, err := h.store.AccessToken(context.Background())
	require.NoError(t, err)
	r, err := h.store.RefreshToken(context.Background())
	require.NoError(t, err)
	return a, r
}

/*************
 * Request decoration
 *************/

func TestHTTPClient_AttachesBearerAndRequestID(t *testing.T) {
	b := &fakeBackend{validAccess: "A1", profile: models.User{ID: 7, Email: "a@b.com"}}
	h := newHarness(t, b, nil)
	h.setTokens(t, "A1", "R1")

	u, err := h.client.GetProfile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, u.ID)

	require.Equal(t, []string{"Bearer A1"}, b.authHeaders)
	_, err = uuid.Parse(b.requestIDs[0])
	require.NoError(t, err, "X-Request-ID must be a uuid")
}

func TestHTTPClient_NoAuthorizationWithoutToken(t *testing.T) {
	b := &fakeBackend{}
	h := newHarness(t, b, func(r chi.Router) {
		r.Get("/courses/terms/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, []models.Term{})
		})
	})

	_, err := h.client.ListTerms(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{""}, b.authHeaders)
}

/*************
 * 401 policy
 *************/

func TestHTTPClient_RefreshesAndReissuesOnUnauthorized(t *testing.T) {
	b := &fakeBackend{
		validAccess: "A2",
		profile:     models.User{ID: 1, Email: "a@b.com"},
		refreshResp: models.CredentialPair{Access: "A2"},
	}
	h := newHarness(t, b, nil)
	h.setTokens(t, "A1", "R1")

	u, err := h.client.GetProfile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a@b.com", u.Email)

	require.Equal(t, []string{"R1"}, b.refreshBodies)
	require.Equal(t, 2, b.meCalls)
	require.Equal(t, []string{"Bearer A1", "", "Bearer A2"}, b.authHeaders,
		"refresh goes out without the expired access token")

	access, refresh := h.tokens(t)
	require.Equal(t, "A2", access)
	require.Equal(t, "R1", refresh)
	require.Empty(t, h.logouts)
}

func TestHTTPClient_StoresRotatedRefreshToken(t *testing.T) {
	b := &fakeBackend{
		validAccess: "A2",
		refreshResp: models.CredentialPair{Access: "A2", Refresh: "R2"},
	}
	h := newHarness(t, b, nil)
	h.setTokens(t, "A1", "R1")

	_, err := h.client.GetProfile(context.Background())
	require.NoError(t, err)

	access, refresh := h.tokens(t)
	require.Equal(t, "A2", access)
	require.Equal(t, "R2", refresh)
}

func TestHTTPClient_SecondUnauthorizedForcesLogout(t *testing.T) {
	// The refreshed token is still rejected: the request must not loop.
	b := &fakeBackend{rejectAll: true, refreshResp: models.CredentialPair{Access: "A2"}}
	h := newHarness(t, b, nil)
	h.setTokens(t, "A1", "R1")

	_, err := h.client.GetProfile(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Len(t, b.refreshBodies, 1)
	require.Len(t, h.logouts, 1)
	require.Equal(t, "retry rejected", h.logouts[0].Reason)

	access, refresh := h.tokens(t)
	require.Empty(t, access)
	require.Empty(t, refresh)
}

func TestHTTPClient_RefreshEndpointUnauthorizedForcesLogout(t *testing.T) {
	b := &fakeBackend{refreshStatus: http.StatusUnauthorized}
	h := newHarness(t, b, nil)
	h.setTokens(t, "A1", "R1")

	_, err := h.client.RefreshToken(context.Background(), "R1")
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Len(t, b.refreshBodies, 1, "the refresh endpoint is never refreshed for")
	require.Len(t, h.logouts, 1)
	access, refresh := h.tokens(t)
	require.Empty(t, access)
	require.Empty(t, refresh)
}

func TestHTTPClient_NoRefreshTokenForcesLogout(t *testing.T) {
	b := &fakeBackend{validAccess: "other"}
	h := newHarness(t, b, nil)
	require.NoError(t, h.store.SetAccessToken(context.Background(), "A1"))

	_, err := h.client.GetProfile(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Empty(t, b.refreshBodies)
	require.Len(t, h.logouts, 1)
	access, _ := h.tokens(t)
	require.Empty(t, access)
}

func TestHTTPClient_FailedRefreshReturnsOriginalError(t *testing.T) {
	b := &fakeBackend{validAccess: "other", refreshStatus: http.StatusInternalServerError}
	h := newHarness(t, b, nil)
	h.setTokens(t, "A1", "R1")

	_, err := h.client.GetProfile(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "Given token not valid for any token type", apiErr.Detail)

	require.Len(t, h.logouts, 1)
	require.Equal(t, "refresh failed", h.logouts[0].Reason)
}

func TestHTTPClient_NoAuthorizationAfterForcedLogout(t *testing.T) {
	b := &fakeBackend{validAccess: "other", refreshStatus: http.StatusUnauthorized}
	h := newHarness(t, b, nil)
	h.setTokens(t, "A1", "R1")

	_, err := h.client.GetProfile(context.Background())
	require.Error(t, err)

	_, _ = h.client.GetProfile(context.Background())
	last := b.authHeaders[len(b.authHeaders)-1]
	require.Empty(t, last)
}

func TestHTTPClient_CoalescesConcurrentRefreshes(t *testing.T) {
	b := &fakeBackend{
		refreshResp:  models.CredentialPair{Access: "A2"},
		refreshGate:  make(chan struct{}),
		unauthorized: make(chan struct{}, 2),
	}
	h := newHarness(t, b, nil)
	h.setTokens(t, "A1", "R1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.client.GetProfile(context.Background())
		}(i)
	}

	<-b.unauthorized
	<-b.unauthorized
	close(b.refreshGate)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.refreshBodies, 1)
	require.Empty(t, h.logouts)
}

func TestHTTPClient_ReissuesWithoutRefreshWhenTokenAlreadyChanged(t *testing.T) {
	// Another request refreshes while this one is in flight: its 401 was
	// for the old token, so it is re-sent with the new one as is.
	b := &fakeBackend{refreshResp: models.CredentialPair{Access: "A3"}}
	var h *harness
	h = newHarness(t, b, func(r chi.Router) {
		r.Get("/alerts/subscriptions", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "Bearer A2" {
				writeJSON(w, http.StatusOK, []models.Section{{CourseReferenceNumber: "40234"}})
				return
			}
			assert.NoError(t, h.store.SetAccessToken(r.Context(), "A2"))
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		})
	})
	h.setTokens(t, "A1", "R1")

	sections, err := h.client.ListSubscriptions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, sections, 1)

	require.Equal(t, []string{"Bearer A1", "Bearer A2"}, b.authHeaders)
	require.Empty(t, b.refreshBodies)
	require.Empty(t, h.logouts)

	access, refresh := h.tokens(t)
	require.Equal(t, "A2", access)
	require.Equal(t, "R1", refresh)
}

/*************
 * Error mapping
 *************/

func TestHTTPClient_NonUnauthorizedErrorPropagates(t *testing.T) {
	b := &fakeBackend{}
	h := newHarness(t, b, func(r chi.Router) {
		r.Post("/accounts/signin/request", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {"Enter a valid email address."}})
		})
	})
	h.setTokens(t, "A1", "R1")

	err := h.client.RequestSignIn(context.Background(), "nope")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "Enter a valid email address.", Detail(err, ""))
	require.Empty(t, b.refreshBodies)
	require.Empty(t, h.logouts)
}

func TestHTTPClient_ServerErrorIsUnavailable(t *testing.T) {
	b := &fakeBackend{}
	h := newHarness(t, b, func(r chi.Router) {
		r.Get("/alerts/subscriptions", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
	})

	_, err := h.client.ListSubscriptions(context.Background(), "202501")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, "An error occurred. Please try again.", Detail(err, ""))
}

func TestHTTPClient_NetworkFailureIsUnavailable(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, nil)
	h.server.Close()

	_, err := h.client.ListTerms(context.Background(), nil)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClient_CancelledContext(t *testing.T) {
	h := newHarness(t, &fakeBackend{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.client.ListTerms(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}

/*************
 * Endpoints
 *************/

func TestHTTPClient_CatalogQueries(t *testing.T) {
	var termsQuery, coursesQuery, sectionsCourse, sectionsTerm string
	h := newHarness(t, &fakeBackend{}, func(r chi.Router) {
		r.Get("/courses/terms/", func(w http.ResponseWriter, r *http.Request) {
			termsQuery = r.URL.RawQuery
			writeJSON(w, http.StatusOK, []models.Term{{Term: "202501", TermDesc: "Winter 2025"}})
		})
		r.Get("/courses/", func(w http.ResponseWriter, r *http.Request) {
			coursesQuery = r.URL.RawQuery
			writeJSON(w, http.StatusOK, []models.Course{{SubjectCourse: "CMPT141"}})
		})
		r.Get("/courses/{subjectCourse}/sections/", func(w http.ResponseWriter, r *http.Request) {
			sectionsCourse = chi.URLParam(r, "subjectCourse")
			sectionsTerm = r.URL.Query().Get("term")
			writeJSON(w, http.StatusOK, []models.Section{{CourseReferenceNumber: "40234"}})
		})
	})
	ctx := context.Background()

	open := true
	terms, err := h.client.ListTerms(ctx, &open)
	require.NoError(t, err)
	require.Equal(t, "registration_open=true", termsQuery)
	require.Equal(t, "Winter 2025", terms[0].TermDesc)

	courses, err := h.client.ListCourses(ctx, "202501", "cmpt")
	require.NoError(t, err)
	require.Equal(t, "search=cmpt&term=202501", coursesQuery)
	require.Equal(t, "CMPT141", courses[0].SubjectCourse)

	sections, err := h.client.ListSections(ctx, "CMPT141", "202501")
	require.NoError(t, err)
	assert.Equal(t, "CMPT141", sectionsCourse)
	assert.Equal(t, "202501", sectionsTerm)
	assert.Equal(t, "40234", sections[0].CourseReferenceNumber)
}

func TestHTTPClient_SubscriptionBodies(t *testing.T) {
	var bodies []subscriptionsBody
	var methods []string
	h := newHarness(t, &fakeBackend{}, func(r chi.Router) {
		handler := func(w http.ResponseWriter, r *http.Request) {
			var b subscriptionsBody
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&b))
			bodies = append(bodies, b)
			methods = append(methods, r.Method)
			if r.Method == http.MethodDelete {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, http.StatusCreated, []models.Section{{CourseReferenceNumber: "40234"}})
		}
		r.Post("/alerts/subscriptions", handler)
		r.Delete("/alerts/subscriptions", handler)
	})
	ctx := context.Background()

	created, err := h.client.CreateSubscriptions(ctx, "202501", []string{"40234"})
	require.NoError(t, err)
	require.Len(t, created, 1)

	require.NoError(t, h.client.DeleteSubscriptions(ctx, "202501", []string{"40234"}))

	want := subscriptionsBody{Term: "202501", CourseReferenceNumbers: []string{"40234"}}
	require.Equal(t, []subscriptionsBody{want, want}, bodies)
	require.Equal(t, []string{http.MethodPost, http.MethodDelete}, methods)
}

func TestHTTPClient_SignInAndPhone(t *testing.T) {
	var verifyBody, phoneBody map[string]string
	h := newHarness(t, &fakeBackend{}, func(r chi.Router) {
		r.Post("/accounts/signin/verify", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&verifyBody)
			writeJSON(w, http.StatusOK, models.CredentialPair{Access: "A", Refresh: "R"})
		})
		r.Patch("/accounts/me", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&phoneBody)
			writeJSON(w, http.StatusOK, models.User{ID: 1, Phone: phoneBody["phone"]})
		})
		r.Post("/accounts/token/verify", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	ctx := context.Background()

	pair, err := h.client.VerifySignIn(ctx, "a@b.com", "123456")
	require.NoError(t, err)
	require.Equal(t, models.CredentialPair{Access: "A", Refresh: "R"}, pair)
	require.Equal(t, map[string]string{"email": "a@b.com", "code": "123456"}, verifyBody)

	u, err := h.client.UpdatePhone(ctx, "+13065550123")
	require.NoError(t, err)
	require.Equal(t, "+13065550123", u.Phone)

	require.NoError(t, h.client.VerifyToken(ctx, "A"))
}

func TestNewHTTPClient_RejectsBadURL(t *testing.T) {
	bus := events.NewBus[events.Logout]()
	_, err := NewHTTPClient("ftp://example.com", time.Second, tokens.NewMemoryStore(), bus, logging.NewNop())
	require.Error(t, err)

	_, err = NewHTTPClient("://", time.Second, tokens.NewMemoryStore(), bus, logging.NewNop())
	require.Error(t, err)
}

func TestDetail(t *testing.T) {
	cases := []struct {
		name string
		err  error
		fb   string
		want string
	}{
		{"api detail", &APIError{Status: 400, Detail: "Invalid code."}, "", "Invalid code."},
		{"wrapped api detail", errors.Join(errors.New("ctx"), &APIError{Status: 400, Detail: "x"}), "", "x"},
		{"no detail uses fallback", &APIError{Status: 400}, "Could not send code.", "Could not send code."},
		{"plain error generic", errors.New("boom"), "", "An error occurred. Please try again."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Detail(tc.err, tc.fb))
		})
	}
}

func TestParseDetail(t *testing.T) {
	require.Equal(t, "nope", parseDetail([]byte(`{"detail":"nope"}`)))
	require.Equal(t, "bad phone", parseDetail([]byte(`{"phone":["bad phone"],"z":["later"]}`)))
	require.Equal(t, "", parseDetail([]byte(`<html>oops</html>`)))
	require.Equal(t, "", parseDetail(nil))
}
