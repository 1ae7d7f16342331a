package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/articlecms/internal/auth"
	"github.com/hitoshi/articlecms/internal/middleware"
	"github.com/hitoshi/articlecms/internal/model"
)

// ブラウザに表示する定型メッセージ。
// 失敗の具体的な理由はサーバーログにのみ残し、ここでは区別しない。
const (
	flashInvalidCredentials = "Invalid username or password"
	flashProviderFailed     = "Microsoft sign-in failed."
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// BeginProviderLogin はstateを発行し、プロバイダーの認可URLを返す。
	BeginProviderLogin(ctx context.Context, sessionID string) (string, error)
	// HandleProviderCallback は認可コードコールバックを検証し、ユーザーをログインさせる。
	HandleProviderCallback(ctx context.Context, sessionID string, p auth.CallbackParams) (*model.User, error)
	// LoginLocal はユーザー名とパスワードでログインする。
	LoginLocal(ctx context.Context, sessionID, username, password string) (*model.User, error)
	// Logout はセッションを破棄する。
	Logout(ctx context.Context, sessionID string) error
	// CurrentUser はセッションに紐づくユーザーを返す。未ログインならnil。
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandler はログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	renderer *Renderer
	cookies  CookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, renderer *Renderer, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		renderer: renderer,
		cookies:  cookies,
	}
}

// ShowLogin はログインフォームを表示する。
// GET /login
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if ok && session.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h.renderer.Render(w, http.StatusOK, "login", &viewData{
		Title:     "Log In",
		Flashes:   popFlashes(w, r, h.cookies),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Values:    map[string]string{},
	})
}

// LoginLocal はフォームからのログインを処理する。
// POST /login
func (h *AuthHandler) LoginLocal(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	_, err := h.service.LoginLocal(r.Context(), session.ID, username, password)
	if err != nil {
		if model.AuthErrorCode(err) != "" {
			// 未知ユーザーとパスワード不一致を区別させない
			setFlash(w, h.cookies, flashInvalidCredentials)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		slog.Error("local login failed", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LoginMicrosoft はMicrosoftの認可エンドポイントへリダイレクトする。
// GET /login-microsoft
func (h *AuthHandler) LoginMicrosoft(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	authURL, err := h.service.BeginProviderLogin(r.Context(), session.ID)
	if err != nil {
		slog.Error("failed to begin provider login", slog.String("error", err.Error()))
		setFlash(w, h.cookies, flashProviderFailed)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback はプロバイダーからの認可コードコールバックを処理する。
// GET <redirect_path>（既定は /getAToken）
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	params := auth.CallbackParams{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		ErrorCode:        q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	user, err := h.service.HandleProviderCallback(r.Context(), session.ID, params)
	if err != nil {
		switch model.AuthErrorCode(err) {
		case model.ErrCodeStateMismatch:
			// 正規フロー外のリクエスト。メッセージなしでトップへ戻す。
			http.Redirect(w, r, "/", http.StatusSeeOther)
		case model.ErrCodeMissingCode:
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		case "":
			slog.Error("provider callback failed", slog.String("error", err.Error()))
			http.Error(w, "internal server error", http.StatusInternalServerError)
		default:
			setFlash(w, h.cookies, flashProviderFailed)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		}
		return
	}

	setFlash(w, h.cookies, "Welcome, "+user.DisplayName+"!")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout はセッションを破棄してトップへ戻す。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if ok {
		if err := h.service.Logout(r.Context(), session.ID); err != nil {
			slog.Error("logout failed", slog.String("error", err.Error()))
		}
	}

	// セッションCookieを削除し、次のリクエストで匿名セッションを再作成させる
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}
