// Package handler はHTMLページのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/articlecms/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// pageNames はレイアウトと組み合わせて描画するページテンプレートの一覧。
var pageNames = []string{"index", "login", "create"}

// articleView は一覧描画用の記事ビュー。
// Bodyはサニタイズ済みHTMLのため、エスケープせずに描画する。
type articleView struct {
	Title     string
	Author    string
	Body      template.HTML
	ImageURL  string
	CreatedAt time.Time
}

// toArticleView はモデルを描画用ビューへ変換する。
func toArticleView(a *model.Article) articleView {
	return articleView{
		Title:     a.Title,
		Author:    a.Author,
		Body:      template.HTML(a.Body),
		ImageURL:  a.ImageURL,
		CreatedAt: a.CreatedAt,
	}
}

// viewData はテンプレートに渡す描画データ。
type viewData struct {
	Title     string
	User      *model.User
	Flashes   []string
	CSRFToken string
	Articles  []articleView
	Values    map[string]string // バリデーション失敗時のフォーム再表示用
}

// Renderer は埋め込みテンプレートによるHTML描画器。
// ページごとにレイアウトと合成したテンプレートを起動時に一度だけパースする。
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer は全ページテンプレートをパースしてRendererを生成する。
// テンプレートの構文エラーは起動時に検出される。
func NewRenderer() (*Renderer, error) {
	templates := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = t
	}
	return &Renderer{templates: templates}, nil
}

// Render は指定ページをレイアウト込みで描画する。
func (rd *Renderer) Render(w http.ResponseWriter, status int, page string, data *viewData) {
	t, ok := rd.templates[page]
	if !ok {
		slog.Error("unknown template", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = &viewData{}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		slog.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
	}
}
