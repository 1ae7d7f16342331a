// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/articlecms/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByUsername はusername完全一致でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDをuser.IDに設定する。
	// usernameの一意制約違反の場合はmodel.ErrDuplicateUserを返す。
	Create(ctx context.Context, user *model.User) error
}

// ArticleRepository は記事データの永続化インターフェース。
type ArticleRepository interface {
	// Create は記事を作成し、採番されたIDをarticle.IDに設定する。
	Create(ctx context.Context, article *model.Article) error

	// ListAll は全記事をID降順（新しい順）で返す。
	ListAll(ctx context.Context) ([]*model.Article, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// SetOAuthState はセッションにpending stateトークンを設定する。
	// 既存のstateは上書きされる。
	SetOAuthState(ctx context.Context, id, state string) error

	// TakeOAuthState はpending stateトークンを取り出し、同時にクリアする（単回使用）。
	// stateが設定されていない場合は空文字列を返す。
	TakeOAuthState(ctx context.Context, id string) (string, error)

	// BindUser はセッションにユーザーIDを束縛し、認証済みにする。
	BindUser(ctx context.Context, id string, userID int64) error

	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
