package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/articlecms/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	var userID sql.NullInt64
	if session.UserID != 0 {
		userID = sql.NullInt64{Int64: session.UserID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, oauth_state, expires_at, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
		session.ID, userID, session.OAuthState, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var userID sql.NullInt64
	var state sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, oauth_state, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &userID, &state, &session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	session.UserID = userID.Int64
	session.OAuthState = state.String

	return session, nil
}

// SetOAuthState はセッションにpending stateトークンを設定する。
func (r *PostgresSessionRepo) SetOAuthState(ctx context.Context, id, state string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET oauth_state = $2 WHERE id = $1`,
		id, state,
	)
	if err != nil {
		return fmt.Errorf("failed to set oauth state: %w", err)
	}
	return requireOneRow(result, "session", id)
}

// TakeOAuthState はpending stateトークンを取り出し、同時にクリアする（単回使用）。
// 行ロックでクリアと読み出しを原子的に行い、同一stateの二重消費を防ぐ。
func (r *PostgresSessionRepo) TakeOAuthState(ctx context.Context, id string) (string, error) {
	var state sql.NullString
	err := r.db.QueryRowContext(ctx,
		`UPDATE sessions s SET oauth_state = NULL
		 FROM (SELECT id, oauth_state FROM sessions WHERE id = $1 FOR UPDATE) old
		 WHERE s.id = old.id
		 RETURNING old.oauth_state`,
		id,
	).Scan(&state)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to take oauth state: %w", err)
	}

	return state.String, nil
}

// BindUser はセッションにユーザーIDを束縛し、認証済みにする。
func (r *PostgresSessionRepo) BindUser(ctx context.Context, id string, userID int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET user_id = $2 WHERE id = $1`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to bind user to session: %w", err)
	}
	return requireOneRow(result, "session", id)
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// requireOneRow は更新対象が存在しなかった場合にエラーを返す。
func requireOneRow(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
