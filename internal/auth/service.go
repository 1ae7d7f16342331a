// Package auth はOAuth2/OIDC認可コードフローとログイン処理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/articlecms/internal/model"
	"github.com/hitoshi/articlecms/internal/repository"
)

// ログイン方式のラベル。ログとメトリクスで共用する。
const (
	MethodLocal     = "local"
	MethodMicrosoft = "microsoft"
)

// Directory はユーザーディレクトリのインターフェース。
// internal/userのServiceが実装する。
type Directory interface {
	// FindByPrincipal は安定識別子の完全一致でユーザーを検索する。見つからない場合はnil。
	FindByPrincipal(ctx context.Context, principal string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnil。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// ProvisionFromClaims はクレームからユーザーを自動プロビジョニングする。
	// 同時プロビジョニングの競合は内部で回復される。
	ProvisionFromClaims(ctx context.Context, claims *Claims) (*model.User, error)

	// VerifyLocalCredentials はローカル資格情報を検証する。
	// 失敗時はUNKNOWN_USERまたはBAD_CREDENTIALSのAuthErrorを返す。
	VerifyLocalCredentials(ctx context.Context, username, password string) (*model.User, error)
}

// Metrics は認証メトリクスの収集インターフェース。nilの場合は記録しない。
type Metrics interface {
	RecordLoginSuccess(method string)
	RecordLoginFailure(method, reason string)
}

// Service は認証フローのビジネスロジックを提供する。
// 状態遷移: Anonymous → AwaitingProviderCallback → Authenticated。
// 各失敗はAnonymousに戻り、具体的理由はログのみに残す。
type Service struct {
	provider  IdentityProvider
	directory Directory
	sessions  repository.SessionRepository
	state     *StateTracker
	metrics   Metrics
}

// NewService はServiceを生成する。metricsはnil可。
func NewService(
	provider IdentityProvider,
	directory Directory,
	sessions repository.SessionRepository,
	state *StateTracker,
	metrics Metrics,
) *Service {
	return &Service{
		provider:  provider,
		directory: directory,
		sessions:  sessions,
		state:     state,
		metrics:   metrics,
	}
}

// BeginProviderLogin はIdPログインを開始する。
// セッションにstateトークンを発行し、リダイレクト先の認可URLを返す。
func (s *Service) BeginProviderLogin(ctx context.Context, sessionID string) (string, error) {
	state, err := s.state.Issue(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to issue state token: %w", err)
	}

	slog.Info("redirecting to microsoft login", slog.String("state", state))
	return s.provider.AuthCodeURL(state), nil
}

// CallbackParams はIdPコールバックのクエリパラメータ。
type CallbackParams struct {
	State            string
	Code             string
	ErrorCode        string
	ErrorDescription string
}

// HandleProviderCallback はIdPコールバックを処理する。
// 前提条件を順に検証し、すべて満たした場合のみユーザーを解決して
// セッションに束縛する: (a) state一致 (b) errorパラメータなし
// (c) 認可コードあり (d) トークン交換成功 (e) ディレクトリ解決成功。
// stateは比較結果にかかわらず消費される。
func (s *Service) HandleProviderCallback(ctx context.Context, sessionID string, p CallbackParams) (*model.User, error) {
	ok, err := s.state.ValidateAndConsume(ctx, sessionID, p.State)
	if err != nil {
		return nil, fmt.Errorf("failed to validate state: %w", err)
	}
	if !ok {
		return nil, s.fail(model.NewStateMismatchError())
	}

	if p.ErrorCode != "" {
		return nil, s.fail(model.NewProviderDeniedError(p.ErrorCode, p.ErrorDescription))
	}

	if p.Code == "" {
		return nil, s.fail(model.NewMissingCodeError())
	}

	// 認可コードは単回使用のため、交換は1回のみ試行し失敗はそのまま返す
	claims, err := s.provider.Exchange(ctx, p.Code)
	if err != nil {
		if model.AuthErrorCode(err) == "" {
			err = model.NewProviderError(err.Error())
		}
		return nil, s.fail(err)
	}

	principal := claims.Principal()
	user, err := s.directory.FindByPrincipal(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", principal, err)
	}
	if user == nil {
		user, err = s.directory.ProvisionFromClaims(ctx, claims)
		if err != nil {
			return nil, fmt.Errorf("failed to provision user %q: %w", principal, err)
		}
	}

	if err := s.sessions.BindUser(ctx, sessionID, user.ID); err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordLoginSuccess(MethodMicrosoft)
	}
	slog.Info("microsoft login successful",
		slog.String("principal", principal),
		slog.Int64("user_id", user.ID),
	)

	return user, nil
}

// LoginLocal はローカル資格情報でログインする。
// IdPフローを経由せず、検証成功時に直接セッションへユーザーを束縛する。
func (s *Service) LoginLocal(ctx context.Context, sessionID, username, password string) (*model.User, error) {
	user, err := s.directory.VerifyLocalCredentials(ctx, username, password)
	if err != nil {
		code := model.AuthErrorCode(err)
		if code == "" {
			return nil, fmt.Errorf("failed to verify credentials: %w", err)
		}
		if s.metrics != nil {
			s.metrics.RecordLoginFailure(MethodLocal, code)
		}
		slog.Warn("invalid login attempt",
			slog.String("username", username),
			slog.String("reason", code),
		)
		return nil, err
	}

	if err := s.sessions.BindUser(ctx, sessionID, user.ID); err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordLoginSuccess(MethodLocal)
	}
	slog.Info("user logged in successfully (local)", slog.String("username", username))

	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// CurrentUser はセッションに束縛されたユーザーを解決する。
// 未ログイン・期限切れ・ユーザー消失の場合はnilを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || !session.Authenticated() {
		return nil, nil
	}

	user, err := s.directory.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// fail は認証失敗の理由をログとメトリクスに記録し、エラーをそのまま返す。
// ブラウザ向けの汎用メッセージへの変換はハンドラー側の責務。
func (s *Service) fail(err error) error {
	code := model.AuthErrorCode(err)
	if s.metrics != nil {
		s.metrics.RecordLoginFailure(MethodMicrosoft, code)
	}
	slog.Warn("microsoft login failed",
		slog.String("reason", code),
		slog.String("detail", err.Error()),
	)
	return err
}
