package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/articlecms/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// Create は記事を作成し、採番されたIDをarticle.IDに設定する。
func (r *PostgresArticleRepo) Create(ctx context.Context, article *model.Article) error {
	var imageURL sql.NullString
	if article.ImageURL != "" {
		imageURL = sql.NullString{String: article.ImageURL, Valid: true}
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO articles (title, author, body, image_url, created_at, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		article.Title, article.Author, article.Body, imageURL, article.CreatedAt, article.UserID,
	).Scan(&article.ID)
	if err != nil {
		return fmt.Errorf("failed to insert article: %w", err)
	}

	return nil
}

// ListAll は全記事をID降順（新しい順）で返す。
func (r *PostgresArticleRepo) ListAll(ctx context.Context) ([]*model.Article, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, author, body, image_url, created_at, user_id
		 FROM articles
		 ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	var articles []*model.Article
	for rows.Next() {
		article := &model.Article{}
		var imageURL sql.NullString
		if err := rows.Scan(
			&article.ID, &article.Title, &article.Author, &article.Body,
			&imageURL, &article.CreatedAt, &article.UserID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		article.ImageURL = imageURL.String
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}

	return articles, nil
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
