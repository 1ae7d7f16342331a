package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/articlecms/internal/model"
)

// --- モック定義 ---

type mockSessionRepo struct {
	mu    sync.Mutex
	state map[string]string // sessionID -> pending state

	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	setOAuthStateFn  func(ctx context.Context, id, state string) error
	takeOAuthStateFn func(ctx context.Context, id string) (string, error)
	bindUserFn       func(ctx context.Context, id string, userID int64) error
	deleteByIDFn     func(ctx context.Context, id string) error

	boundUserID   int64
	boundSession  string
	deletedID     string
	takeCallCount int
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{state: make(map[string]string)}
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) SetOAuthState(ctx context.Context, id, state string) error {
	if m.setOAuthStateFn != nil {
		return m.setOAuthStateFn(ctx, id, state)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[id] = state
	return nil
}

func (m *mockSessionRepo) TakeOAuthState(ctx context.Context, id string) (string, error) {
	if m.takeOAuthStateFn != nil {
		return m.takeOAuthStateFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.takeCallCount++
	pending := m.state[id]
	delete(m.state, id)
	return pending, nil
}

func (m *mockSessionRepo) BindUser(ctx context.Context, id string, userID int64) error {
	if m.bindUserFn != nil {
		return m.bindUserFn(ctx, id, userID)
	}
	m.boundSession = id
	m.boundUserID = userID
	return nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	m.deletedID = id
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

type mockDirectory struct {
	findByPrincipalFn        func(ctx context.Context, principal string) (*model.User, error)
	findByIDFn               func(ctx context.Context, id int64) (*model.User, error)
	provisionFromClaimsFn    func(ctx context.Context, claims *Claims) (*model.User, error)
	verifyLocalCredentialsFn func(ctx context.Context, username, password string) (*model.User, error)

	provisionCalled bool
}

func (m *mockDirectory) FindByPrincipal(ctx context.Context, principal string) (*model.User, error) {
	if m.findByPrincipalFn != nil {
		return m.findByPrincipalFn(ctx, principal)
	}
	return nil, nil
}

func (m *mockDirectory) FindByID(ctx context.Context, id int64) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockDirectory) ProvisionFromClaims(ctx context.Context, claims *Claims) (*model.User, error) {
	m.provisionCalled = true
	if m.provisionFromClaimsFn != nil {
		return m.provisionFromClaimsFn(ctx, claims)
	}
	return &model.User{ID: 1, Username: claims.Principal()}, nil
}

func (m *mockDirectory) VerifyLocalCredentials(ctx context.Context, username, password string) (*model.User, error) {
	if m.verifyLocalCredentialsFn != nil {
		return m.verifyLocalCredentialsFn(ctx, username, password)
	}
	return nil, model.NewUnknownUserError(username)
}

type mockProvider struct {
	authCodeURLFn func(state string) string
	exchangeFn    func(ctx context.Context, code string) (*Claims, error)

	exchangeCalled bool
}

func (m *mockProvider) AuthCodeURL(state string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state)
	}
	return "https://login.example.com/authorize?state=" + state
}

func (m *mockProvider) Exchange(ctx context.Context, code string) (*Claims, error) {
	m.exchangeCalled = true
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return &Claims{PreferredUsername: "alice@example.com"}, nil
}

type mockMetrics struct {
	mu        sync.Mutex
	successes []string
	failures  []string // "method:reason"
}

func (m *mockMetrics) RecordLoginSuccess(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes = append(m.successes, method)
}

func (m *mockMetrics) RecordLoginFailure(method, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, method+":"+reason)
}

// --- テスト ---

func TestBeginProviderLogin(t *testing.T) {
	sessions := newMockSessionRepo()
	provider := &mockProvider{}
	svc := NewService(provider, &mockDirectory{}, sessions, NewStateTracker(sessions), nil)

	url, err := svc.BeginProviderLogin(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := sessions.state["sess-1"]
	if stored == "" {
		t.Fatal("state token should be stored on the session")
	}
	if !strings.Contains(url, stored) {
		t.Errorf("auth URL should carry the issued state: url=%s state=%s", url, stored)
	}
}

func TestHandleProviderCallback_Success(t *testing.T) {
	sessions := newMockSessionRepo()
	sessions.state["sess-1"] = "state-abc"

	directory := &mockDirectory{
		findByPrincipalFn: func(_ context.Context, principal string) (*model.User, error) {
			return &model.User{ID: 42, Username: principal}, nil
		},
	}
	metrics := &mockMetrics{}
	svc := NewService(&mockProvider{}, directory, sessions, NewStateTracker(sessions), metrics)

	user, err := svc.HandleProviderCallback(context.Background(), "sess-1", CallbackParams{
		State: "state-abc",
		Code:  "code-xyz",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 42 {
		t.Errorf("user ID = %d, want 42", user.ID)
	}
	if sessions.boundUserID != 42 || sessions.boundSession != "sess-1" {
		t.Errorf("session should be bound to user 42, got user=%d session=%q",
			sessions.boundUserID, sessions.boundSession)
	}
	if directory.provisionCalled {
		t.Error("existing user should not be provisioned again")
	}
	if len(metrics.successes) != 1 || metrics.successes[0] != MethodMicrosoft {
		t.Errorf("login success should be recorded for microsoft, got %v", metrics.successes)
	}
}

func TestHandleProviderCallback_ProvisionsUnknownPrincipal(t *testing.T) {
	sessions := newMockSessionRepo()
	sessions.state["sess-1"] = "state-abc"

	directory := &mockDirectory{
		provisionFromClaimsFn: func(_ context.Context, claims *Claims) (*model.User, error) {
			return &model.User{ID: 7, Username: claims.Principal()}, nil
		},
	}
	svc := NewService(&mockProvider{}, directory, sessions, NewStateTracker(sessions), nil)

	user, err := svc.HandleProviderCallback(context.Background(), "sess-1", CallbackParams{
		State: "state-abc",
		Code:  "code-xyz",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !directory.provisionCalled {
		t.Error("unknown principal should be auto-provisioned")
	}
	if sessions.boundUserID != 7 {
		t.Errorf("session should be bound to provisioned user 7, got %d", sessions.boundUserID)
	}
	if user.Username != "alice@example.com" {
		t.Errorf("username = %q, want claims principal", user.Username)
	}
}

func TestHandleProviderCallback_StateMismatch(t *testing.T) {
	sessions := newMockSessionRepo()
	sessions.state["sess-1"] = "state-abc"

	provider := &mockProvider{}
	metrics := &mockMetrics{}
	svc := NewService(provider, &mockDirectory{}, sessions, NewStateTracker(sessions), metrics)

	_, err := svc.HandleProviderCallback(context.Background(), "sess-1", CallbackParams{
		State: "forged-state",
		Code:  "code-xyz",
	})
	if model.AuthErrorCode(err) != model.ErrCodeStateMismatch {
		t.Fatalf("error code = %q, want STATE_MISMATCH", model.AuthErrorCode(err))
	}
	if provider.exchangeCalled {
		t.Error("token exchange must not run when state does not match")
	}
	if sessions.boundSession != "" {
		t.Error("session must not be bound on state mismatch")
	}
	// 不一致でもpending stateは消費される
	if _, stillPending := sessions.state["sess-1"]; stillPending {
		t.Error("pending state should be consumed even on mismatch")
	}
	if len(metrics.failures) != 1 || metrics.failures[0] != "microsoft:STATE_MISMATCH" {
		t.Errorf("failure metric = %v, want microsoft:STATE_MISMATCH", metrics.failures)
	}
}

func TestHandleProviderCallback_ReplayedStateRejected(t *testing.T) {
	sessions := newMockSessionRepo()
	sessions.state["sess-1"] = "state-abc"

	directory := &mockDirectory{
		findByPrincipalFn: func(_ context.Context, principal string) (*model.User, error) {
			return &model.User{ID: 1, Username: principal}, nil
		},
	}
	svc := NewService(&mockProvider{}, directory, sessions, NewStateTracker(sessions), nil)

	params := CallbackParams{State: "state-abc", Code: "code-xyz"}
	if _, err := svc.HandleProviderCallback(context.Background(), "sess-1", params); err != nil {
		t.Fatalf("first callback should succeed: %v", err)
	}

	// 同一stateの再送はpending state消費済みのため拒否される
	_, err := svc.HandleProviderCallback(context.Background(), "sess-1", params)
	if model.AuthErrorCode(err) != model.ErrCodeStateMismatch {
		t.Fatalf("replayed callback error code = %q, want STATE_MISMATCH", model.AuthErrorCode(err))
	}
}

func TestHandleProviderCallback_StateCheckedBeforeErrorParam(t *testing.T) {
	sessions := newMockSessionRepo()
	// pending stateなし

	svc := NewService(&mockProvider{}, &mockDirectory{}, sessions, NewStateTracker(sessions), nil)

	_, err := svc.HandleProviderCallback(context.Background(), "sess-1", CallbackParams{
		State:     "anything",
		ErrorCode: "access_denied",
	})
	if model.AuthErrorCode(err) != model.ErrCodeStateMismatch {
		t.Fatalf("state check must precede error param check, got %q", model.AuthErrorCode(err))
	}
}

func TestHandleProviderCallback_ProviderDenied(t *testing.T) {
	sessions := newMockSessionRepo()
	sessions.state["sess-1"] = "state-abc"

	provider := &mockProvider{}
	svc := NewService(provider, &mockDirectory{}, sessions, NewStateTracker(sessions), nil)

	_, err := svc.HandleProviderCallback(context.Background(), "sess-1", CallbackParams{
		State:            "state-abc",
		ErrorCode:        "access_denied",
		ErrorDescription: "user cancelled consent",
	})
	if model.AuthErrorCode(err) != model.ErrCodeProviderDenied {
		t.Fatalf("error code = %q, want PROVIDER_DENIED", model.AuthErrorCode(err))
	}
	if provider.exchangeCalled {
		t.Error("token exchange must not run when the provider returned an error")
	}
}

func TestHandleProviderCallback_MissingCode(t *testing.T) {
	sessions := newMockSessionRepo()
	sessions.state["sess-1"] = "state-abc"

	svc := NewService(&mockProvider{}, &mockDirectory{}, sessions, NewStateTracker(sessions), nil)

	_, err := svc.HandleProviderCallback(context.Background(), "sess-1", CallbackParams{
		State: "state-abc",
	})
	if model.AuthErrorCode(err) != model.ErrCodeMissingCode {
		t.Fatalf("error code = %q, want MISSING_CODE", model.AuthErrorCode(err))
	}
}

func TestHandleProviderCallback_ExchangeFailure(t *testing.T) {
	sessions := newMockSessionRepo()
	sessions.state["sess-1"] = "state-abc"

	provider := &mockProvider{
		exchangeFn: func(_ context.Context, _ string) (*Claims, error) {
			return nil, errors.New("token endpoint returned 400")
		},
	}
	svc := NewService(provider, &mockDirectory{}, sessions, NewStateTracker(sessions), nil)

	_, err := svc.HandleProviderCallback(context.Background(), "sess-1", CallbackParams{
		State: "state-abc",
		Code:  "code-xyz",
	})
	if model.AuthErrorCode(err) != model.ErrCodeProviderError {
		t.Fatalf("error code = %q, want PROVIDER_ERROR", model.AuthErrorCode(err))
	}
	if sessions.boundSession != "" {
		t.Error("session must not be bound when the exchange fails")
	}
}

func TestLoginLocal_Success(t *testing.T) {
	sessions := newMockSessionRepo()
	directory := &mockDirectory{
		verifyLocalCredentialsFn: func(_ context.Context, username, _ string) (*model.User, error) {
			return &model.User{ID: 5, Username: username}, nil
		},
	}
	metrics := &mockMetrics{}
	svc := NewService(&mockProvider{}, directory, sessions, NewStateTracker(sessions), metrics)

	user, err := svc.LoginLocal(context.Background(), "sess-1", "alice", "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != 5 {
		t.Errorf("user ID = %d, want 5", user.ID)
	}
	if sessions.boundUserID != 5 {
		t.Errorf("session should be bound to user 5, got %d", sessions.boundUserID)
	}
	if len(metrics.successes) != 1 || metrics.successes[0] != MethodLocal {
		t.Errorf("login success metric = %v, want [local]", metrics.successes)
	}
}

func TestLoginLocal_Failure(t *testing.T) {
	sessions := newMockSessionRepo()
	directory := &mockDirectory{
		verifyLocalCredentialsFn: func(_ context.Context, username, _ string) (*model.User, error) {
			return nil, model.NewBadCredentialsError(username)
		},
	}
	metrics := &mockMetrics{}
	svc := NewService(&mockProvider{}, directory, sessions, NewStateTracker(sessions), metrics)

	_, err := svc.LoginLocal(context.Background(), "sess-1", "alice", "wrong")
	if model.AuthErrorCode(err) != model.ErrCodeBadCredentials {
		t.Fatalf("error code = %q, want BAD_CREDENTIALS", model.AuthErrorCode(err))
	}
	if sessions.boundSession != "" {
		t.Error("session must not be bound on failed login")
	}
	if len(metrics.failures) != 1 || metrics.failures[0] != "local:BAD_CREDENTIALS" {
		t.Errorf("failure metric = %v, want local:BAD_CREDENTIALS", metrics.failures)
	}
}

func TestLogout(t *testing.T) {
	sessions := newMockSessionRepo()
	svc := NewService(&mockProvider{}, &mockDirectory{}, sessions, NewStateTracker(sessions), nil)

	if err := svc.Logout(context.Background(), "sess-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessions.deletedID != "sess-1" {
		t.Errorf("deleted session = %q, want sess-1", sessions.deletedID)
	}
}

func TestCurrentUser(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		session  *model.Session
		wantUser bool
	}{
		{
			name:     "セッションなし",
			session:  nil,
			wantUser: false,
		},
		{
			name:     "匿名セッション",
			session:  &model.Session{ID: "sess-1", ExpiresAt: now.Add(time.Hour)},
			wantUser: false,
		},
		{
			name:     "認証済みセッション",
			session:  &model.Session{ID: "sess-1", UserID: 9, ExpiresAt: now.Add(time.Hour)},
			wantUser: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := newMockSessionRepo()
			sessions.findByIDFn = func(_ context.Context, _ string) (*model.Session, error) {
				return tt.session, nil
			}
			directory := &mockDirectory{
				findByIDFn: func(_ context.Context, id int64) (*model.User, error) {
					return &model.User{ID: id, Username: "alice"}, nil
				},
			}
			svc := NewService(&mockProvider{}, directory, sessions, NewStateTracker(sessions), nil)

			user, err := svc.CurrentUser(context.Background(), "sess-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantUser && user == nil {
				t.Fatal("expected a user, got nil")
			}
			if !tt.wantUser && user != nil {
				t.Fatalf("expected nil user, got %+v", user)
			}
		})
	}
}
