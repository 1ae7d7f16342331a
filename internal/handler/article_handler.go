package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/articlecms/internal/article"
	"github.com/hitoshi/articlecms/internal/middleware"
	"github.com/hitoshi/articlecms/internal/model"
	"github.com/hitoshi/articlecms/internal/storage"
)

// maxUploadBytes は記事画像アップロードの上限サイズ。
const maxUploadBytes = 10 << 20 // 10MB

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	// Create は記事を検証・サニタイズして保存する。
	Create(ctx context.Context, input article.CreateInput) (*model.Article, error)
	// List は全記事を新しい順で返す。
	List(ctx context.Context) ([]*model.Article, error)
}

// ArticleHandler は記事一覧・作成のHTTPハンドラー。
type ArticleHandler struct {
	service  ArticleServiceInterface
	auth     AuthServiceInterface
	images   storage.ImageStore // 未設定（nil）の場合は画像を保存しない
	renderer *Renderer
	cookies  CookieConfig
}

// NewArticleHandler はArticleHandlerを生成する。
// imagesがnilの場合、アップロードされた画像は無視される。
func NewArticleHandler(
	service ArticleServiceInterface,
	auth AuthServiceInterface,
	images storage.ImageStore,
	renderer *Renderer,
	cookies CookieConfig,
) *ArticleHandler {
	return &ArticleHandler{
		service:  service,
		auth:     auth,
		images:   images,
		renderer: renderer,
		cookies:  cookies,
	}
}

// Index は記事一覧を表示する。
// GET /
func (h *ArticleHandler) Index(w http.ResponseWriter, r *http.Request) {
	articles, err := h.service.List(r.Context())
	if err != nil {
		slog.Error("failed to list articles", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	views := make([]articleView, 0, len(articles))
	for _, a := range articles {
		views = append(views, toArticleView(a))
	}

	h.renderer.Render(w, http.StatusOK, "index", &viewData{
		Title:     "Articles",
		User:      h.currentUser(r),
		Flashes:   popFlashes(w, r, h.cookies),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Articles:  views,
	})
}

// CreateForm は記事作成フォームを表示する。
// GET /create（要ログイン）
func (h *ArticleHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, "create", &viewData{
		Title:     "New Article",
		User:      h.currentUser(r),
		Flashes:   popFlashes(w, r, h.cookies),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Values:    map[string]string{},
	})
}

// Create は記事作成フォームの送信を処理する。
// POST /create（要ログイン）
func (h *ArticleHandler) Create(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok || !session.Authenticated() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	input := article.CreateInput{
		Title:  r.FormValue("title"),
		Author: r.FormValue("author"),
		Body:   r.FormValue("body"),
		UserID: session.UserID,
	}

	imageURL, err := h.saveImage(r)
	if err != nil {
		slog.Error("failed to upload image", slog.String("error", err.Error()))
		http.Error(w, "failed to store image", http.StatusInternalServerError)
		return
	}
	input.ImageURL = imageURL

	if _, err := h.service.Create(r.Context(), input); err != nil {
		if errors.Is(err, article.ErrMissingFields) {
			h.renderer.Render(w, http.StatusUnprocessableEntity, "create", &viewData{
				Title:     "New Article",
				User:      h.currentUser(r),
				Flashes:   []string{"Title, author and body are all required."},
				CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
				Values: map[string]string{
					"title":  input.Title,
					"author": input.Author,
					"body":   input.Body,
				},
			})
			return
		}
		slog.Error("failed to create article", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// saveImage はフォームの画像ファイルを保存し、公開URLを返す。
// 画像が添付されていない、またはストレージ未設定の場合は空文字列を返す。
func (h *ArticleHandler) saveImage(r *http.Request) (string, error) {
	file, header, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	if h.images == nil {
		slog.Warn("image upload ignored: blob storage not configured",
			slog.String("filename", header.Filename),
		)
		return "", nil
	}

	return h.images.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
}

// currentUser はセッションに紐づくユーザーを返す。未ログインならnil。
func (h *ArticleHandler) currentUser(r *http.Request) *model.User {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		return nil
	}
	user, err := h.auth.CurrentUser(r.Context(), session.ID)
	if err != nil {
		slog.Error("failed to resolve current user", slog.String("error", err.Error()))
		return nil
	}
	return user
}
