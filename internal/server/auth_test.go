package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Iron-Ham/shortkeys/internal/config"
	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/store"
	"github.com/Iron-Ham/shortkeys/internal/store/memstore"
	"github.com/Iron-Ham/shortkeys/internal/testutil"
)

type fixture struct {
	db       *memstore.Store
	user     *store.User
	shortcut *store.Shortcut
	srv      *Server
	ts       *httptest.Server
	client   *http.Client
}

// newFixture seeds one local user and one shortcut owned by that user, the
// same data the signin route is exercised against.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := memstore.New()

	user, shortcut := testutil.SeedAccount(t, db)

	srv := New(config.Default().Server, db, opts...)
	ts := httptest.NewServer(srv.Handler())

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar, Transport: &http.Transport{DisableKeepAlives: true}}

	t.Cleanup(func() {
		client.CloseIdleConnections()
		ts.Close()
	})
	return &fixture{db: db, user: user, shortcut: shortcut, srv: srv, ts: ts, client: client}
}

var validCredentials = `{"username":"` + testutil.Username + `","password":"` + testutil.Password + `"}`

func (f *fixture) signin(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := f.client.Post(f.ts.URL+"/api/auth/signin", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := f.client.Get(f.ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestSignin(t *testing.T) {
	f := newFixture(t)

	resp := f.signin(t, validCredentials)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got map[string]any
	decode(t, resp, &got)
	assert.Equal(t, f.user.ID.Hex(), got["_id"])
	assert.Equal(t, "username", got["username"])
	assert.NotContains(t, got, "password")

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			session = c
		}
	}
	require.NotNil(t, session, "signin must set the session cookie")
	assert.True(t, session.HttpOnly)

	me := f.get(t, "/api/users/me")
	require.Equal(t, http.StatusOK, me.StatusCode)
	var meBody store.User
	decode(t, me, &meBody)
	assert.Equal(t, f.user.ID, meBody.ID)
	assert.Equal(t, []primitive.ObjectID{f.shortcut.ID}, meBody.Favorites)
}

func TestSignin_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "wrong password", body: `{"username":"username","password":"nope"}`, want: msgInvalidCredentials},
		{name: "unknown user", body: `{"username":"someone","password":"password"}`, want: msgInvalidCredentials},
		{name: "missing password", body: `{"username":"username"}`, want: msgMissingCredentials},
		{name: "malformed body", body: `{"username":`, want: msgMissingCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			resp := f.signin(t, tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var got message
			decode(t, resp, &got)
			assert.Equal(t, tt.want, got.Message)
			assert.Empty(t, resp.Cookies())
		})
	}
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.srv.authenticate(ctx, strings.NewReader(validCredentials))
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, user.ID)

	tests := []struct {
		name string
		body string
		want error
	}{
		{name: "wrong password", body: `{"username":"username","password":"nope"}`, want: errors.ErrInvalidCredentials},
		{name: "unknown user", body: `{"username":"someone","password":"password"}`, want: errors.ErrInvalidCredentials},
		{name: "missing username", body: `{"password":"password"}`, want: errors.ErrInvalidInput},
		{name: "malformed body", body: `not json`, want: errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := f.srv.authenticate(ctx, strings.NewReader(tt.body))
			assert.Nil(t, user)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMe_Unauthorized(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/users/me")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, f.ts.URL+"/api/users/me", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "forged"})
	forged, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer forged.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, forged.StatusCode)
	http.DefaultClient.CloseIdleConnections()
}

func TestSignout(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.signin(t, validCredentials).StatusCode)
	require.Equal(t, http.StatusOK, f.get(t, "/api/users/me").StatusCode)

	require.Equal(t, http.StatusOK, f.get(t, "/api/auth/signout").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/api/users/me").StatusCode)
}

func TestSessionForDeletedUser(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.signin(t, validCredentials).StatusCode)
	_, err := f.db.RemoveUsers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, f.get(t, "/api/users/me").StatusCode)
}
