// Package user はユーザーディレクトリ（検索・自動プロビジョニング・資格情報検証）を提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/articlecms/internal/auth"
	"github.com/hitoshi/articlecms/internal/model"
	"github.com/hitoshi/articlecms/internal/repository"
)

// AdminPolicy はプロビジョニング時に管理者フラグを決定するポリシー関数。
type AdminPolicy func(principal string) bool

// SubstringAdminPolicy はプリンシパルに"admin"を含む場合に管理者とする。
// 粗いポリシーでありセキュリティ境界ではない。運用で変更する場合は
// Configで別のAdminPolicyを注入すること。
func SubstringAdminPolicy(principal string) bool {
	return strings.Contains(principal, "admin")
}

// demoFallbackPassword はデモモード専用の固定パスワード。
// ハッシュ未設定ユーザーに対してのみ、DemoLogin=trueの場合だけ受け付ける。
const demoFallbackPassword = "admin"

// Config はディレクトリサービスの設定。
type Config struct {
	// AdminPolicy はnilの場合SubstringAdminPolicyを使用する。
	AdminPolicy AdminPolicy

	// DemoLogin はハッシュ未設定ユーザーへの固定パスワードログインを許可する。
	// 本番では必ずfalseにすること。
	DemoLogin bool
}

// Service はユーザーディレクトリの実装。
type Service struct {
	users     repository.UserRepository
	passwords *auth.Passwords
	config    Config
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, passwords *auth.Passwords, config Config) *Service {
	if config.AdminPolicy == nil {
		config.AdminPolicy = SubstringAdminPolicy
	}
	return &Service{
		users:     users,
		passwords: passwords,
		config:    config,
	}
}

// FindByPrincipal は安定識別子の完全一致でユーザーを検索する。見つからない場合はnil。
func (s *Service) FindByPrincipal(ctx context.Context, principal string) (*model.User, error) {
	return s.users.FindByUsername(ctx, principal)
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnil。
func (s *Service) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return s.users.FindByID(ctx, id)
}

// ProvisionFromClaims は初回の外部IdPログイン時にユーザーを自動作成する。
// ローカルパスワードは設定しない（外部IdP認証のみのアカウント）。
// 同一プリンシパルの同時プロビジョニングで一意制約違反が発生した場合は、
// 先に作成された既存レコードを再取得して返す（冪等）。
func (s *Service) ProvisionFromClaims(ctx context.Context, claims *auth.Claims) (*model.User, error) {
	principal := claims.Principal()

	user := &model.User{
		Username:    principal,
		DisplayName: claims.DisplayName(),
		Credential:  model.FederatedOnly(),
		IsAdmin:     s.config.AdminPolicy(principal),
		CreatedAt:   time.Now().UTC(),
	}

	err := s.users.Create(ctx, user)
	if errors.Is(err, model.ErrDuplicateUser) {
		existing, ferr := s.users.FindByUsername(ctx, principal)
		if ferr != nil {
			return nil, fmt.Errorf("failed to re-fetch user after provisioning conflict: %w", ferr)
		}
		if existing == nil {
			return nil, fmt.Errorf("user %q vanished after provisioning conflict", principal)
		}
		slog.Info("provisioning conflict recovered",
			slog.String("principal", principal),
			slog.Int64("user_id", existing.ID),
		)
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("provisioned new user from microsoft login",
		slog.String("principal", principal),
		slog.Bool("is_admin", user.IsAdmin),
	)
	return user, nil
}

// VerifyLocalCredentials はローカル資格情報を検証する。
// ユーザー不在はUNKNOWN_USER、パスワード不一致はBAD_CREDENTIALSを返す。
// 両者はログでのみ区別され、ブラウザには同一の汎用メッセージを返すこと。
func (s *Service) VerifyLocalCredentials(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnknownUserError(username)
	}

	hash, hasLocal := user.Credential.Hash()
	if hasLocal {
		if err := s.passwords.Verify(hash, password); err != nil {
			if errors.Is(err, auth.ErrPasswordMismatch) {
				return nil, model.NewBadCredentialsError(username)
			}
			return nil, fmt.Errorf("failed to verify password: %w", err)
		}
		return user, nil
	}

	// ハッシュ未設定ユーザーへの固定パスワードはデモ専用経路。
	// DemoLogin無効時はBAD_CREDENTIALSとして扱う。
	if s.config.DemoLogin && password == demoFallbackPassword {
		slog.Warn("demo fallback password accepted; do not enable DEMO_MODE in production",
			slog.String("username", username),
		)
		return user, nil
	}

	return nil, model.NewBadCredentialsError(username)
}

// compile-time interface check
var _ auth.Directory = (*Service)(nil)
