// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/articlecms/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionStore はセッションの読み書きに必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// SessionConfig はセッションミドルウェアの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	TTL          time.Duration
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、または期限切れの場合は匿名セッションを新規作成する。
// 匿名セッションはOAuthフローのstateトークン保持に必要なため、
// 未ログインリクエストでも常にセッションが存在する。
func NewSessionMiddleware(store SessionStore, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var session *model.Session

			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				found, err := store.FindByID(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("failed to find session", slog.String("error", err.Error()))
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				session = found
			}

			if session == nil {
				created, err := createAnonymousSession(r.Context(), store, config)
				if err != nil {
					slog.Error("failed to create session", slog.String("error", err.Error()))
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				session = created

				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    session.ID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   int(config.TTL.Seconds()),
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated は未ログインリクエストを/loginへリダイレクトするガード。
// セッションミドルウェアの後に配置すること。
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFromContext(r.Context())
		if !ok || !session.Authenticated() {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	return session, ok && session != nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// createAnonymousSession は匿名セッションを作成して永続化する。
func createAnonymousSession(ctx context.Context, store SessionStore, config SessionConfig) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:        id,
		ExpiresAt: time.Now().Add(config.TTL),
		CreatedAt: time.Now(),
	}
	if err := store.Create(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
