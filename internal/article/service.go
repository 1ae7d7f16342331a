// Package article は記事の作成と一覧取得のビジネスロジックを提供する。
package article

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/articlecms/internal/model"
	"github.com/hitoshi/articlecms/internal/repository"
)

// fallbackUserID は作成者のユーザーIDが解決できない場合に使うフォールバック値。
const fallbackUserID = 1

// Sanitizer は記事本文のHTMLサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Metrics は記事メトリクスの収集インターフェース。nilの場合は記録しない。
type Metrics interface {
	RecordArticleCreated()
}

// CreateInput は記事作成の入力。
type CreateInput struct {
	Title    string
	Author   string
	Body     string
	ImageURL string // 画像なしの場合は空文字列
	UserID   int64  // 0の場合はフォールバック値を使用
}

// Service は記事のビジネスロジックを提供する。
type Service struct {
	articles  repository.ArticleRepository
	sanitizer Sanitizer
	metrics   Metrics
}

// NewService はServiceを生成する。metricsはnil可。
func NewService(articles repository.ArticleRepository, sanitizer Sanitizer, metrics Metrics) *Service {
	return &Service{
		articles:  articles,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// ErrMissingFields はtitle/author/bodyのいずれかが空であることを表す。
var ErrMissingFields = fmt.Errorf("title, author and body are required")

// Create は記事を作成する。
// title/author/bodyは前後空白を除去したうえで必須。本文は保存前にサニタイズする。
// 作成時刻はUTCで記録し、以後変更されない。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Article, error) {
	title := strings.TrimSpace(input.Title)
	author := strings.TrimSpace(input.Author)
	body := strings.TrimSpace(input.Body)

	if title == "" || author == "" || body == "" {
		return nil, ErrMissingFields
	}

	userID := input.UserID
	if userID == 0 {
		userID = fallbackUserID
	}

	article := &model.Article{
		Title:     title,
		Author:    author,
		Body:      s.sanitizer.Sanitize(body),
		ImageURL:  input.ImageURL,
		CreatedAt: time.Now().UTC(),
		UserID:    userID,
	}

	if err := s.articles.Create(ctx, article); err != nil {
		return nil, fmt.Errorf("failed to create article: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordArticleCreated()
	}
	slog.Info("article created",
		slog.String("title", title),
		slog.Int64("user_id", userID),
	)

	return article, nil
}

// List は全記事を新しい順（ID降順）で返す。
func (s *Service) List(ctx context.Context) ([]*model.Article, error) {
	articles, err := s.articles.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}
