package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	xerrors "backoffice-console/internal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeSession is the minimal token owner the interceptors talk to.
type fakeSession struct {
	mu           sync.Mutex
	access       string
	refresh      string
	next         string
	refreshErr   error
	refreshCalls atomic.Int32
	logouts      atomic.Int32
}

func (s *fakeSession) hooks() Hooks {
	return Hooks{
		AccessToken: func() string {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.access
		},
		RefreshToken: func() string {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.refresh
		},
		Refresh: func(context.Context) (string, error) {
			s.refreshCalls.Add(1)
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.refreshErr != nil {
				return "", s.refreshErr
			}
			s.access = s.next
			return s.access, nil
		},
		OnUnauthorized: func() {
			s.logouts.Add(1)
		},
	}
}

type seen struct {
	mu      sync.Mutex
	headers []string
}

func (s *seen) add(h string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, h)
}

func (s *seen) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.headers...)
}

func newBackend(t *testing.T, validToken string, log *seen) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		log.add(auth)
		if auth != "Bearer "+validToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"token expired"}`)
			return
		}
		_, _ = io.WriteString(w, `{"data":["product:view"]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInstall_RetriesOnceAfterRefresh(t *testing.T) {
	t.Parallel()

	log := &seen{}
	srv := newBackend(t, "AT2", log)
	sess := &fakeSession{access: "AT1", refresh: "RT1", next: "AT2"}

	public, private := New("public", srv.URL), New("private", srv.URL)
	teardown := Install(sess.hooks(), public, private)
	t.Cleanup(teardown)

	var perms []string
	require.NoError(t, private.GetJSON(context.Background(), "/permissions/me", &perms))

	assert.Equal(t, []string{"product:view"}, perms)
	assert.Equal(t, int32(1), sess.refreshCalls.Load())
	assert.Equal(t, []string{"Bearer AT1", "Bearer AT2"}, log.all())
	assert.Zero(t, sess.logouts.Load())
}

func TestInstall_SecondUnauthorizedPropagates(t *testing.T) {
	t.Parallel()

	log := &seen{}
	srv := newBackend(t, "never-valid", log)
	sess := &fakeSession{access: "AT1", refresh: "RT1", next: "AT2"}

	public, private := New("public", srv.URL), New("private", srv.URL)
	t.Cleanup(Install(sess.hooks(), public, private))

	err := private.GetJSON(context.Background(), "/permissions/me", nil)
	require.True(t, IsStatus(err, http.StatusUnauthorized), "got %v", err)

	assert.Len(t, log.all(), 2)
	assert.Equal(t, int32(1), sess.refreshCalls.Load())
	assert.Equal(t, int32(1), sess.logouts.Load())
}

func TestInstall_NoRefreshToken(t *testing.T) {
	t.Parallel()

	log := &seen{}
	srv := newBackend(t, "AT2", log)
	sess := &fakeSession{access: "AT1"}

	public, private := New("public", srv.URL), New("private", srv.URL)
	t.Cleanup(Install(sess.hooks(), public, private))

	err := private.GetJSON(context.Background(), "/permissions/me", nil)
	require.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Zero(t, sess.refreshCalls.Load())
	assert.Equal(t, int32(1), sess.logouts.Load())
	assert.Len(t, log.all(), 1)
}

func TestInstall_RefreshFailurePropagates(t *testing.T) {
	t.Parallel()

	log := &seen{}
	srv := newBackend(t, "AT2", log)
	refreshErr := errors.New("refresh rejected")
	sess := &fakeSession{access: "AT1", refresh: "RT1", refreshErr: refreshErr}

	public, private := New("public", srv.URL), New("private", srv.URL)
	t.Cleanup(Install(sess.hooks(), public, private))

	err := private.GetJSON(context.Background(), "/permissions/me", nil)
	require.ErrorIs(t, err, refreshErr)
	assert.Equal(t, int32(1), sess.logouts.Load())
	assert.Len(t, log.all(), 1)
}

func TestInstall_RefreshNotFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		refresh func(ctx context.Context, cancel context.CancelFunc) (string, error)
		want    error
	}{
		{
			name: "caller cancelled while waiting",
			refresh: func(ctx context.Context, cancel context.CancelFunc) (string, error) {
				cancel()
				return "", ctx.Err()
			},
			want: context.Canceled,
		},
		{
			name: "session replaced during refresh",
			refresh: func(context.Context, context.CancelFunc) (string, error) {
				return "", xerrors.ErrSessionChanged
			},
			want: xerrors.ErrSessionChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			log := &seen{}
			srv := newBackend(t, "AT2", log)
			sess := &fakeSession{access: "AT1", refresh: "RT1"}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			hooks := sess.hooks()
			hooks.Refresh = func(ctx context.Context) (string, error) {
				sess.refreshCalls.Add(1)
				return tt.refresh(ctx, cancel)
			}

			public, private := New("public", srv.URL), New("private", srv.URL)
			t.Cleanup(Install(hooks, public, private))

			err := private.GetJSON(ctx, "/permissions/me", nil)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, int32(1), sess.refreshCalls.Load())
			assert.Zero(t, sess.logouts.Load())
			assert.Len(t, log.all(), 1)
		})
	}
}

func TestInstall_PublicClientNeverRetries(t *testing.T) {
	t.Parallel()

	log := &seen{}
	srv := newBackend(t, "AT2", log)
	sess := &fakeSession{access: "AT1", refresh: "RT1", next: "AT2"}

	public, private := New("public", srv.URL), New("private", srv.URL)
	t.Cleanup(Install(sess.hooks(), public, private))
	ctx := context.Background()

	err := public.PostForm(ctx, "/auth/login", nil, nil)
	require.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Zero(t, sess.logouts.Load(), "401 on login is not a session failure")

	err = public.PostForm(ctx, "/auth/refresh", nil, nil, AsRefresh())
	require.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, int32(1), sess.logouts.Load())

	assert.Zero(t, sess.refreshCalls.Load())
	assert.Equal(t, []string{"Bearer AT1", "Bearer AT1"}, log.all())
}

func TestInstall_RefreshCallOnPrivateClientIsTerminal(t *testing.T) {
	t.Parallel()

	log := &seen{}
	srv := newBackend(t, "AT2", log)
	sess := &fakeSession{access: "AT1", refresh: "RT1", next: "AT2"}

	public, private := New("public", srv.URL), New("private", srv.URL)
	t.Cleanup(Install(sess.hooks(), public, private))

	err := private.PostForm(context.Background(), "/auth/refresh", nil, nil, AsRefresh())
	require.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Zero(t, sess.refreshCalls.Load())
	assert.Equal(t, int32(1), sess.logouts.Load())
}

func TestInstall_NoTokenNoHeader(t *testing.T) {
	t.Parallel()

	log := &seen{}
	srv := newBackend(t, "AT2", log)
	sess := &fakeSession{}

	public, private := New("public", srv.URL), New("private", srv.URL)
	t.Cleanup(Install(sess.hooks(), public, private))

	_ = public.PostForm(context.Background(), "/auth/login", nil, nil)
	assert.Equal(t, []string{""}, log.all())
}

func TestInstall_Teardown(t *testing.T) {
	t.Parallel()

	public, private := New("public", "http://unused"), New("private", "http://unused")
	private.UseRequest(RequestID())

	teardown := Install((&fakeSession{}).hooks(), public, private)
	reqs, resps := private.Interceptors()
	assert.Equal(t, 2, reqs)
	assert.Equal(t, 1, resps)

	teardown()
	teardown()

	reqs, resps = private.Interceptors()
	assert.Equal(t, 1, reqs)
	assert.Zero(t, resps)
	reqs, resps = public.Interceptors()
	assert.Zero(t, reqs)
	assert.Zero(t, resps)
}

func TestInstall_ConcurrentUnauthorizedShareRefresh(t *testing.T) {
	t.Parallel()

	log := &seen{}
	srv := newBackend(t, "AT2", log)
	sess := &fakeSession{access: "AT1", refresh: "RT1", next: "AT2"}

	hooks := sess.hooks()
	var once sync.Once
	var shared string
	refresh := hooks.Refresh
	hooks.Refresh = func(ctx context.Context) (string, error) {
		var err error
		once.Do(func() { shared, err = refresh(ctx) })
		return shared, err
	}

	public, private := New("public", srv.URL), New("private", srv.URL)
	t.Cleanup(Install(hooks, public, private))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = private.GetJSON(context.Background(), "/permissions/me", nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), sess.refreshCalls.Load())
}

func TestRequestIDAndLogging(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Len(t, r.Header.Get(RequestIDHeader), 26)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	core, logs := observer.New(zap.DebugLevel)
	c := New("test", srv.URL)
	c.UseRequest(RequestID())
	c.UseResponse(LogResponses(zap.New(core)))

	err := c.GetJSON(context.Background(), "/missing", nil)
	require.True(t, IsStatus(err, http.StatusNotFound))

	entries := logs.FilterMessage("request returned error status").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/missing", fields["path"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Len(t, fields["request_id"], 26)
}
