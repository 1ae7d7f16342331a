package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/articlecms/internal/article"
	"github.com/hitoshi/articlecms/internal/auth"
	"github.com/hitoshi/articlecms/internal/metrics"
	"github.com/hitoshi/articlecms/internal/middleware"
	"github.com/hitoshi/articlecms/internal/model"
)

// --- モック定義 ---

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string]*model.Session)}
}

func (s *memorySessionStore) Create(_ context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *memorySessionStore) FindByID(_ context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok || time.Now().After(session.ExpiresAt) {
		return nil, nil
	}
	return session, nil
}

type mockAuthService struct {
	beginProviderLoginFn     func(ctx context.Context, sessionID string) (string, error)
	handleProviderCallbackFn func(ctx context.Context, sessionID string, p auth.CallbackParams) (*model.User, error)
	loginLocalFn             func(ctx context.Context, sessionID, username, password string) (*model.User, error)
	logoutFn                 func(ctx context.Context, sessionID string) error
	currentUserFn            func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) BeginProviderLogin(ctx context.Context, sessionID string) (string, error) {
	if m.beginProviderLoginFn != nil {
		return m.beginProviderLoginFn(ctx, sessionID)
	}
	return "https://login.example.com/authorize?state=xyz", nil
}

func (m *mockAuthService) HandleProviderCallback(ctx context.Context, sessionID string, p auth.CallbackParams) (*model.User, error) {
	if m.handleProviderCallbackFn != nil {
		return m.handleProviderCallbackFn(ctx, sessionID, p)
	}
	return &model.User{ID: 1, Username: "alice", DisplayName: "Alice"}, nil
}

func (m *mockAuthService) LoginLocal(ctx context.Context, sessionID, username, password string) (*model.User, error) {
	if m.loginLocalFn != nil {
		return m.loginLocalFn(ctx, sessionID, username, password)
	}
	return nil, model.NewUnknownUserError(username)
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, sessionID)
	}
	return nil, nil
}

type mockArticleService struct {
	createFn func(ctx context.Context, input article.CreateInput) (*model.Article, error)
	listFn   func(ctx context.Context) ([]*model.Article, error)

	created *article.CreateInput
}

func (m *mockArticleService) Create(ctx context.Context, input article.CreateInput) (*model.Article, error) {
	m.created = &input
	if m.createFn != nil {
		return m.createFn(ctx, input)
	}
	return &model.Article{ID: 1, Title: input.Title}, nil
}

func (m *mockArticleService) List(ctx context.Context) ([]*model.Article, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

// --- テストフィクスチャ ---

type routerFixture struct {
	router   http.Handler
	store    *memorySessionStore
	auth     *mockAuthService
	articles *mockArticleService
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("failed to build renderer: %v", err)
	}

	store := newMemorySessionStore()
	authSvc := &mockAuthService{}
	articleSvc := &mockArticleService{}

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(1000))
	t.Cleanup(rl.Stop)

	registry := prometheus.NewRegistry()

	deps := &RouterDeps{
		SessionStore:  store,
		SessionConfig: middleware.SessionConfig{TTL: time.Hour},
		CSRFConfig:    middleware.CSRFConfig{},
		RateLimiter:   rl,
		Logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),

		AuthService:    authSvc,
		ArticleService: articleSvc,

		Renderer:     renderer,
		Cookies:      CookieConfig{},
		RedirectPath: "/getAToken",

		Metrics:  metrics.NewCollector(registry),
		Gatherer: registry,
	}

	return &routerFixture{
		router:   NewRouter(deps),
		store:    store,
		auth:     authSvc,
		articles: articleSvc,
	}
}

// seedSession はセッションをストアに登録し、Cookie付与関数を返す。
func (f *routerFixture) seedSession(session *model.Session) {
	f.store.sessions[session.ID] = session
}

// newRequest はセッションCookieとCSRFトークンを備えたリクエストを生成する。
func newSessionRequest(method, target, sessionID string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	}
	return req
}

func anonymousSession(id string) *model.Session {
	return &model.Session{ID: id, ExpiresAt: time.Now().Add(time.Hour)}
}

func authenticatedSession(id string, userID int64) *model.Session {
	return &model.Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}
}

// --- ルーティングのテスト ---

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_Metrics(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRouter_SecurityHeaders(t *testing.T) {
	f := newRouterFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestRouter_PostWithoutCSRFTokenRejected(t *testing.T) {
	f := newRouterFixture(t)
	f.seedSession(anonymousSession("sess-1"))

	req := newSessionRequest("POST", "/login", "sess-1", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
