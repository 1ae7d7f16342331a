package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/articlecms/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATEコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, username, display_name, password_hash, is_admin, created_at
		 FROM users WHERE id = $1`,
		id,
	)
}

// FindByUsername はusername完全一致でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, username, display_name, password_hash, is_admin, created_at
		 FROM users WHERE username = $1`,
		username,
	)
}

// Create はユーザーを作成し、採番されたIDをuser.IDに設定する。
// usernameの一意制約違反の場合はmodel.ErrDuplicateUserを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	var hash sql.NullString
	if h, ok := user.Credential.Hash(); ok {
		hash = sql.NullString{String: h, Valid: true}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, display_name, password_hash, is_admin, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		user.Username, user.DisplayName, hash, user.IsAdmin, user.CreatedAt,
	).Scan(&user.ID)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return model.ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// findOne は1件取得クエリを実行し、NULL許容カラムをモデルに詰め替える。
func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user := &model.User{}
	var hash sql.NullString

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.DisplayName, &hash, &user.IsAdmin, &user.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if hash.Valid {
		user.Credential = model.LocalCredential(hash.String)
	} else {
		user.Credential = model.FederatedOnly()
	}

	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
