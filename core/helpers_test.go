package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

const apiPrefix = "/api/v1"

// fakeAPI is an in-process MedHelp API. Handlers are registered with
// method patterns relative to the API base path.
type fakeAPI struct {
	t      *testing.T
	server *httptest.Server
	mux    *http.ServeMux

	mu    sync.Mutex
	calls map[string]int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	api := &fakeAPI{
		t:     t,
		mux:   http.NewServeMux(),
		calls: make(map[string]int),
	}
	api.server = httptest.NewServer(http.StripPrefix(apiPrefix, http.HandlerFunc(api.serve)))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.calls[r.Method+" "+r.URL.Path]++
	a.mu.Unlock()
	a.mux.ServeHTTP(w, r)
}

func (a *fakeAPI) handle(pattern string, handler http.HandlerFunc) {
	a.mux.HandleFunc(pattern, handler)
}

func (a *fakeAPI) count(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[key]
}

func (a *fakeAPI) URL() string {
	return a.server.URL + apiPrefix
}

// seedRefreshCookie puts a refresh cookie into jar as if an earlier login
// had set it.
func (a *fakeAPI) seedRefreshCookie(t *testing.T, jar http.CookieJar) {
	t.Helper()
	u, err := url.Parse(a.server.URL)
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}
	jar.SetCookies(u, []*http.Cookie{{Name: "refresh_token", Value: "refresh-1", Path: "/"}})
}

// recordingNavigator remembers every navigation request
type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNavigator) Navigate(route string) {
	n.mu.Lock()
	n.routes = append(n.routes, route)
	n.mu.Unlock()
}

func (n *recordingNavigator) Routes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.routes...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func hasRefreshCookie(r *http.Request) bool {
	c, err := r.Cookie("refresh_token")
	return err == nil && c.Value != ""
}

func testUser() *User {
	return &User{
		ID:          1,
		Email:       "test@example.com",
		Username:    "tester",
		Roles:       []string{"PHARMACIST"},
		Permissions: []string{"PRODUCT_READ", "PRESCRIPTION_READ"},
		UserType:    UserTypeInternal,
		FirstName:   "Test",
		LastName:    "User",
	}
}

func staticFingerprinter() *Fingerprinter {
	return NewFingerprinter(FingerprintSourceFunc(func(ctx context.Context) (map[string]string, error) {
		return map[string]string{"os": "test"}, nil
	}))
}

func mustCreateTestJar(t *testing.T) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}
	return jar
}

func mustCreateTestSession(t *testing.T, api *fakeAPI) (*Session, *recordingNavigator) {
	t.Helper()
	return mustCreateTestSessionWithJar(t, api, mustCreateTestJar(t))
}

func mustCreateTestSessionWithJar(t *testing.T, api *fakeAPI, jar http.CookieJar) (*Session, *recordingNavigator) {
	t.Helper()

	nav := &recordingNavigator{}
	session, err := NewSession(Config{
		BaseURL:       api.URL(),
		HTTPClient:    &http.Client{Jar: jar},
		Fingerprinter: staticFingerprinter(),
		Navigator:     nav,
	})
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return session, nav
}

// mustLogin signs the session in through the fake API's login handler
func mustLogin(t *testing.T, api *fakeAPI, session *Session) {
	t.Helper()

	api.handle("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "refresh-1", Path: "/", HttpOnly: true})
		writeJSON(w, http.StatusOK, map[string]any{"accessToken": "tok", "user": testUser(), "mfaRequired": false})
	})

	if _, err := session.Login(context.Background(), "test@example.com", "Password123!"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
}
