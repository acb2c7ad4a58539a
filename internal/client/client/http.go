package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kz4killua/course-alerts/internal/client/events"
	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/client/repositories/tokens"
	"github.com/kz4killua/course-alerts/internal/common"
	"github.com/kz4killua/course-alerts/internal/logging"
)

const (
	pathTerms         = "courses/terms/"
	pathCourses       = "courses/"
	pathSignInRequest = "accounts/signin/request"
	pathSignInVerify  = "accounts/signin/verify"
	pathTokenRefresh  = "accounts/token/refresh"
	pathTokenVerify   = "accounts/token/verify"
	pathMe            = "accounts/me"
	pathSubscriptions = "alerts/subscriptions"

	maxErrorBody = 1 << 20
)

// HTTPClient implements Client over JSON/HTTP. It is safe for concurrent use.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	tokens  tokens.Store
	logouts *events.Bus[events.Logout]
	log     logging.Logger

	refreshes singleflight.Group
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client for the backend at baseURL. Forced logouts
// are announced on logouts.
func NewHTTPClient(baseURL string, timeout time.Duration, store tokens.Store, logouts *events.Bus[events.Logout], log logging.Logger) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url %q: scheme must be http or https", baseURL)
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(u.String(), "/") + "/",
		http:    &http.Client{Timeout: timeout},
		tokens:  store,
		logouts: logouts,
		log:     log,
	}, nil
}

// request is one logical call. retried survives the re-issue after a
// refresh; anonymous requests never carry the access token.
type request struct {
	method    string
	path      string
	query     url.Values
	body      any
	anonymous bool
	retried   bool
}

func (c *HTTPClient) do(ctx context.Context, r *request, out any) error {
	for {
		sent, err := c.send(ctx, r, out)
		if err == nil || !errors.Is(err, ErrUnauthorized) {
			return err
		}

		if r.retried {
			c.forceLogout(ctx, "retry rejected")
			return err
		}
		if r.path == pathTokenRefresh {
			c.forceLogout(ctx, "refresh token rejected")
			return err
		}

		// Another request may have refreshed while this one was in flight.
		if current, _ := c.tokens.AccessToken(ctx); sent != "" && current != "" && current != sent {
			r.retried = true
			continue
		}

		refresh, serr := c.tokens.RefreshToken(ctx)
		if serr != nil || refresh == "" {
			c.forceLogout(ctx, "no refresh token")
			return err
		}

		r.retried = true
		if rerr := c.refresh(ctx, refresh); rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn(ctx, "token refresh failed", "error", rerr)
			c.forceLogout(ctx, "refresh failed")
			return err
		}
	}
}

// refresh exchanges the refresh token for a new access token and stores it.
// Concurrent callers holding the same refresh token share one request.
func (c *HTTPClient) refresh(ctx context.Context, refresh string) error {
	// The shared call must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)

	ch := c.refreshes.DoChan(refresh, func() (any, error) {
		var pair models.CredentialPair
		r := &request{
			method:    http.MethodPost,
			path:      pathTokenRefresh,
			body:      map[string]string{"refresh": refresh},
			anonymous: true,
		}
		if _, err := c.send(shared, r, &pair); err != nil {
			return nil, err
		}
		if pair.Access == "" {
			return nil, errors.New("refresh response has no access token")
		}

		if pair.Refresh != "" {
			return nil, c.tokens.SetPair(shared, pair)
		}
		return nil, c.tokens.SetAccessToken(shared, pair.Access)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.log.Debug(ctx, "joined in-flight token refresh")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *HTTPClient) forceLogout(ctx context.Context, reason string) {
	if err := c.tokens.Clear(ctx); err != nil {
		c.log.Error(ctx, "clear stored tokens", "error", err)
	}
	c.log.Warn(ctx, "forced logout", "reason", reason)
	c.logouts.Publish(events.Logout{Reason: reason})
}

// send performs a single HTTP exchange and returns the access token it was
// authorized with.
func (c *HTTPClient) send(ctx context.Context, r *request, out any) (string, error) {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return "", fmt.Errorf("encode %s body: %w", r.path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return "", fmt.Errorf("create %s %s request: %w", r.method, r.path, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(common.RequestIDHeaderName, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var access string
	if !r.anonymous {
		access, err = c.tokens.AccessToken(ctx)
		if err != nil {
			return "", fmt.Errorf("read access token: %w", err)
		}
		if access != "" {
			req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+access)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return access, ctxErr
		}
		return access, fmt.Errorf("%s %s: %w: %v", r.method, r.path, ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug(ctx, "backend request",
		"method", r.method, "path", r.path, "status", resp.StatusCode, "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return access, &APIError{Status: resp.StatusCode, Detail: parseDetail(raw)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return access, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return access, fmt.Errorf("decode %s response: %w", r.path, err)
	}
	return access, nil
}

// ListTerms fetches the terms. A non-nil registrationOpen filters on
// registration status; nil returns every term.
func (c *HTTPClient) ListTerms(ctx context.Context, registrationOpen *bool) ([]models.Term, error) {
	q := url.Values{}
	if registrationOpen != nil {
		q.Set("registration_open", strconv.FormatBool(*registrationOpen))
	}

	var terms []models.Term
	err := c.do(ctx, &request{method: http.MethodGet, path: pathTerms, query: q}, &terms)
	return terms, err
}

// ListCourses searches the courses of term. Empty term or search leave
// that filter out.
func (c *HTTPClient) ListCourses(ctx context.Context, term, search string) ([]models.Course, error) {
	q := url.Values{}
	if term != "" {
		q.Set("term", term)
	}
	if search != "" {
		q.Set("search", search)
	}

	var courses []models.Course
	err := c.do(ctx, &request{method: http.MethodGet, path: pathCourses, query: q}, &courses)
	return courses, err
}

// ListSections fetches the sections of one course, such as "MATH1010U",
// in term. The course code is path-escaped.
func (c *HTTPClient) ListSections(ctx context.Context, subjectCourse, term string) ([]models.Section, error) {
	q := url.Values{}
	if term != "" {
		q.Set("term", term)
	}
	path := pathCourses + url.PathEscape(subjectCourse) + "/sections/"

	var sections []models.Section
	err := c.do(ctx, &request{method: http.MethodGet, path: path, query: q}, &sections)
	return sections, err
}

// RequestSignIn asks the backend to mail a one-time code to email.
func (c *HTTPClient) RequestSignIn(ctx context.Context, email string) error {
	return c.do(ctx, &request{
		method: http.MethodPost,
		path:   pathSignInRequest,
		body:   map[string]string{"email": email},
	}, nil)
}

// VerifySignIn exchanges the mailed code for a credential pair. The pair
// is returned, not stored; storing it is the caller's decision.
func (c *HTTPClient) VerifySignIn(ctx context.Context, email, code string) (models.CredentialPair, error) {
	var pair models.CredentialPair
	err := c.do(ctx, &request{
		method: http.MethodPost,
		path:   pathSignInVerify,
		body:   map[string]string{"email": email, "code": code},
	}, &pair)
	return pair, err
}

// RefreshToken calls the refresh endpoint directly. A 401 here forces a
// logout like any rejected refresh. The automatic refresh in do does not
// go through this method.
func (c *HTTPClient) RefreshToken(ctx context.Context, refresh string) (models.CredentialPair, error) {
	var pair models.CredentialPair
	err := c.do(ctx, &request{
		method: http.MethodPost,
		path:   pathTokenRefresh,
		body:   map[string]string{"refresh": refresh},
	}, &pair)
	return pair, err
}

// VerifyToken asks the backend whether token is still valid. A nil error
// means it is.
func (c *HTTPClient) VerifyToken(ctx context.Context, token string) error {
	return c.do(ctx, &request{
		method: http.MethodPost,
		path:   pathTokenVerify,
		body:   map[string]string{"token": token},
	}, nil)
}

// UpdatePhone sets the account's phone number, in E.164 form, and returns
// the updated profile.
func (c *HTTPClient) UpdatePhone(ctx context.Context, phone string) (models.User, error) {
	var u models.User
	err := c.do(ctx, &request{
		method: http.MethodPatch,
		path:   pathMe,
		body:   map[string]string{"phone": phone},
	}, &u)
	return u, err
}

// GetProfile fetches the signed-in account.
func (c *HTTPClient) GetProfile(ctx context.Context) (models.User, error) {
	var u models.User
	err := c.do(ctx, &request{method: http.MethodGet, path: pathMe}, &u)
	return u, err
}

type subscriptionsBody struct {
	Term                   string   `json:"term"`
	CourseReferenceNumbers []string `json:"course_reference_numbers"`
}

// CreateSubscriptions subscribes the signed-in account to alerts for the
// given CRNs of term and returns the sections now subscribed.
func (c *HTTPClient) CreateSubscriptions(ctx context.Context, term string, crns []string) ([]models.Section, error) {
	var sections []models.Section
	err := c.do(ctx, &request{
		method: http.MethodPost,
		path:   pathSubscriptions,
		body:   subscriptionsBody{Term: term, CourseReferenceNumbers: crns},
	}, &sections)
	return sections, err
}

// ListSubscriptions fetches the subscribed sections, of one term when term
// is set.
func (c *HTTPClient) ListSubscriptions(ctx context.Context, term string) ([]models.Section, error) {
	q := url.Values{}
	if term != "" {
		q.Set("term", term)
	}

	var sections []models.Section
	err := c.do(ctx, &request{method: http.MethodGet, path: pathSubscriptions, query: q}, &sections)
	return sections, err
}

// DeleteSubscriptions stops alerts for the given CRNs of term. The
// selection travels in the request body.
func (c *HTTPClient) DeleteSubscriptions(ctx context.Context, term string, crns []string) error {
	return c.do(ctx, &request{
		method: http.MethodDelete,
		path:   pathSubscriptions,
		body:   subscriptionsBody{Term: term, CourseReferenceNumbers: crns},
	}, nil)
}
