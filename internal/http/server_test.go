package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-verify/internal/discord"
	"moff.io/wallet-verify/internal/session"
	"moff.io/wallet-verify/internal/verify"
	"moff.io/wallet-verify/internal/wallet"
	"moff.io/wallet-verify/pkg/errors"
)

const testAccount = "0x00000000000000000000000000000000000000aB"

type fakeBackend struct {
	mu          sync.Mutex
	submissions []verify.Submission
}

func (b *fakeBackend) DiscordAuth(ctx context.Context, code string) (*verify.DiscordUser, error) {
	if code != "good-code" {
		return nil, errors.New("invalid code")
	}
	return &verify.DiscordUser{ID: "9001", Username: "alice"}, nil
}

func (b *fakeBackend) VerifyWallet(ctx context.Context, s verify.Submission) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submissions = append(b.submissions, s)
	return "", nil
}

type fakeProvider struct{}

func (fakeProvider) RequestAccounts(ctx context.Context) (string, error) {
	return testAccount, nil
}

func (fakeProvider) SignMessage(ctx context.Context, text string) (string, error) {
	return "0x1234567890abcdef", nil
}

func (fakeProvider) PairingURI() string {
	return "wc:topic@1?bridge=b&key=k"
}

func (fakeProvider) QRCode() ([]byte, error) {
	return []byte("\x89PNG"), nil
}

// fakeLocator pairs like a WalletConnect locator.
type fakeLocator struct{}

func (fakeLocator) Locate(context.Context) (wallet.Provider, error) {
	return fakeProvider{}, nil
}

func (fakeLocator) Pairs() bool {
	return true
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (l fakeLimiter) Allow(ctx context.Context, client string) (bool, time.Duration, error) {
	return l.allowed, 1500 * time.Millisecond, l.err
}

type testServer struct {
	*Server
	backend  *fakeBackend
	verified chan verify.Submission
}

func newTestServer(t *testing.T, opts Options) *testServer {
	backend := &fakeBackend{}
	verified := make(chan verify.Submission, 1)
	store := session.NewStore(time.Minute, time.Minute)
	deps := verify.Dependencies{
		Backend:  backend,
		Wallets:  fakeLocator{},
		LoginURL: discord.LoginURL(discord.NewOAuthConfig("123", "http://localhost:3000/verify")),
		OnVerified: func(ctx context.Context, s verify.Submission, message string) {
			verified <- s
		},
	}
	return &testServer{
		Server:   NewServer(store, deps, opts),
		backend:  backend,
		verified: verified,
	}
}

func (s *testServer) do(method, target string, asJSON bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if asJSON {
		req.Header.Set("Accept", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// open loads the link and returns the path of the created view.
func (s *testServer) open(t *testing.T, query url.Values) string {
	w := s.do(http.MethodGet, "/verify?"+query.Encode(), false)
	require.Equal(t, http.StatusSeeOther, w.Code)
	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/verify/"), location)
	return location
}

func (s *testServer) snapshot(t *testing.T, w *httptest.ResponseRecorder) verify.Snapshot {
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap verify.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestServer_InvalidLink(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(http.MethodGet, "/verify", false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), verify.StatusInvalidLink)
	assert.NotContains(t, w.Body.String(), "Connect Wallet")
	assert.Equal(t, 0, s.store.Len())

	w = s.do(http.MethodGet, "/verify/unknown", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), verify.StatusInvalidLink)

	w = s.do(http.MethodPost, "/verify/unknown/connect", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Page(t *testing.T) {
	s := newTestServer(t, Options{})
	path := s.open(t, url.Values{verify.ParamUser: {"42"}})

	w := s.do(http.MethodGet, path, false)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Login with Discord")
	assert.Contains(t, body, "https://discord.com/oauth2/authorize?client_id=123")
	assert.Contains(t, body, path+"/qr.png")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	// only connecting is possible before the wallet and the login
	assert.Contains(t, body, `id="connect" >`)
	assert.Contains(t, body, `id="sign" disabled>`)
	assert.Contains(t, body, `id="verify" disabled>`)

	s.do(http.MethodPost, path+"/connect", false)
	body = s.do(http.MethodGet, path, false).Body.String()
	assert.Contains(t, body, `id="connect" disabled>`)
	assert.Contains(t, body, `id="sign" >`)
	assert.Contains(t, body, `id="verify" disabled>`, "verify still needs the signature and the login")
}

func TestServer_FullFlow(t *testing.T) {
	s := newTestServer(t, Options{})
	path := s.open(t, url.Values{verify.ParamState: {"42"}, verify.ParamCode: {"good-code"}})

	snap := s.snapshot(t, s.do(http.MethodGet, path+"/state", true))
	require.NotNil(t, snap.DiscordUser)
	assert.Equal(t, "alice", snap.DiscordUser.Username)
	assert.Equal(t, verify.StatusLoggedIn("alice"), snap.Status)
	assert.False(t, snap.CanLogin)
	assert.True(t, snap.CanConnect)
	assert.False(t, snap.CanSign)

	snap = s.snapshot(t, s.do(http.MethodPost, path+"/connect", true))
	assert.Equal(t, verify.StatusWalletConnected, snap.Status)
	assert.Equal(t, testAccount, snap.Wallet)
	assert.False(t, snap.CanConnect)

	w := s.do(http.MethodGet, path+"/qr.png", false)
	assert.Equal(t, http.StatusNotFound, w.Code, "no pairing once connected")

	snap = s.snapshot(t, s.do(http.MethodPost, path+"/sign", true))
	assert.Equal(t, verify.StatusSigned, snap.Status)
	assert.True(t, snap.CanVerify)

	w = s.do(http.MethodPost, path+"/submit", false)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, path, w.Header().Get("Location"))

	snap = s.snapshot(t, s.do(http.MethodGet, path+"/state", true))
	assert.Equal(t, verify.StatusVerified, snap.Status)
	assert.Equal(t, verify.ProgressVerified.String(), snap.Progress)

	select {
	case sub := <-s.verified:
		assert.Equal(t, verify.Submission{
			UserID:    "42",
			DiscordID: "9001",
			Wallet:    testAccount,
			Signature: "0x1234567890abcdef",
		}, sub)
	case <-time.After(time.Second):
		t.Fatal("verified hook not called")
	}

	page := s.do(http.MethodGet, path, false).Body.String()
	assert.Contains(t, page, "Discord: alice")
	assert.Contains(t, page, "Signature: 0x12345678...")
}

func TestServer_StepGuards(t *testing.T) {
	s := newTestServer(t, Options{})
	path := s.open(t, url.Values{verify.ParamUser: {"42"}})

	snap := s.snapshot(t, s.do(http.MethodPost, path+"/sign", true))
	assert.Equal(t, verify.StatusConnectFirst, snap.Status)

	snap = s.snapshot(t, s.do(http.MethodPost, path+"/submit", true))
	assert.Equal(t, verify.StatusSignAndLoginFirst, snap.Status)
	assert.Empty(t, s.backend.submissions)
}

func TestServer_DiscordAuthFailed(t *testing.T) {
	s := newTestServer(t, Options{})
	path := s.open(t, url.Values{verify.ParamState: {"42"}, verify.ParamCode: {"bad"}})

	snap := s.snapshot(t, s.do(http.MethodGet, path+"/state", true))
	assert.Equal(t, verify.StatusDiscordAuthFailed, snap.Status)
	assert.True(t, snap.CanLogin)
	assert.NotEmpty(t, snap.LoginURL)
}

func TestServer_QRCode(t *testing.T) {
	s := newTestServer(t, Options{})
	path := s.open(t, url.Values{verify.ParamUser: {"42"}})

	w := s.do(http.MethodGet, path+"/qr.png", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", w.Body.String())
}

func TestServer_RateLimit(t *testing.T) {
	s := newTestServer(t, Options{Limiter: fakeLimiter{allowed: false}})
	path := s.open(t, url.Values{verify.ParamUser: {"42"}})

	w := s.do(http.MethodPost, path+"/connect", true)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))

	// reading the page is never limited
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, false).Code)

	s = newTestServer(t, Options{Limiter: fakeLimiter{err: errors.New("redis down")}})
	path = s.open(t, url.Values{verify.ParamUser: {"42"}})
	snap := s.snapshot(t, s.do(http.MethodPost, path+"/connect", true))
	assert.Equal(t, verify.StatusWalletConnected, snap.Status)
}

func TestServer_CORS(t *testing.T) {
	s := newTestServer(t, Options{AllowedOrigins: []string{"https://verify.example.org"}})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://verify.example.org")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://verify.example.org", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(t, Options{})
	s.open(t, url.Values{verify.ParamUser: {"42"}})
	w := s.do(http.MethodGet, "/healthz", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","views":1}`, w.Body.String())
}
